package http

import (
	"errors"
	"net/http"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const (
	msgInvalidUserOrQuizID = "Invalid user or quiz ID"
	msgInvalidQuizID       = "Invalid quiz ID"
	msgQuizNotFound        = "Quiz not found"
	msgRequiredFields      = "Quiz Name and QuizType are required fields."
	msgInvalidBody         = "Invalid request body"
	msgInternal            = "Internal Server Error"
)

// QuizHandler exposes the quiz use cases as JSON endpoints.
type QuizHandler struct {
	service *app.QuizService
	log     *logrus.Entry
}

func NewQuizHandler(service *app.QuizService) *QuizHandler {
	return &QuizHandler{
		service: service,
		log:     logrus.WithField("component", "quiz_handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type createQuizResponse struct {
	QuizID  string `json:"quizId"`
	Message string `json:"message"`
}

type editQuizRequest struct {
	Questions []domain.Question `json:"questions"`
}

type quizResponse struct {
	Quiz domain.Quiz `json:"quiz"`
}

type impressionResponse struct {
	Impression int `json:"impression"`
}

type answerTallyResponse struct {
	QuizDetails []domain.AnswerTally `json:"quizDetails"`
}

type voteTallyResponse struct {
	QuizDetails []domain.VoteTally `json:"quizDetails"`
}

func (h *QuizHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err, msgInvalidUserOrQuizID)
		return
	}
	respond(w, r, http.StatusOK, dashboard)
}

func (h *QuizHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var draft domain.QuizDraft
	if err := render.DecodeJSON(r.Body, &draft); err != nil {
		respond(w, r, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), chi.URLParam(r, "userId"), draft)
	if err != nil {
		h.fail(w, r, err, msgInvalidUserOrQuizID)
		return
	}
	respond(w, r, http.StatusCreated, createQuizResponse{QuizID: quiz.ID, Message: "Quiz created successfully"})
}

func (h *QuizHandler) EditQuiz(w http.ResponseWriter, r *http.Request) {
	var req editQuizRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return
	}
	_, err := h.service.EditQuiz(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "quizId"), req.Questions)
	if err != nil {
		h.fail(w, r, err, msgInvalidUserOrQuizID)
		return
	}
	respond(w, r, http.StatusOK, messageResponse{Message: "Quiz updated successfully"})
}

func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), chi.URLParam(r, "quizId"))
	if err != nil {
		h.fail(w, r, err, msgInvalidQuizID)
		return
	}
	respond(w, r, http.StatusOK, quizResponse{Quiz: quiz})
}

func (h *QuizHandler) RecordImpression(w http.ResponseWriter, r *http.Request) {
	impression, err := h.service.RecordImpression(r.Context(), chi.URLParam(r, "quizId"))
	if err != nil {
		h.fail(w, r, err, msgInvalidQuizID)
		return
	}
	respond(w, r, http.StatusOK, impressionResponse{Impression: impression})
}

func (h *QuizHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.service.Analytics(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "quizId"))
	if err != nil {
		h.fail(w, r, err, msgInvalidUserOrQuizID)
		return
	}
	respond(w, r, http.StatusOK, analytics)
}

func (h *QuizHandler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuiz(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "quizId")); err != nil {
		h.fail(w, r, err, msgInvalidUserOrQuizID)
		return
	}
	respond(w, r, http.StatusOK, messageResponse{Message: "Quiz deleted successfully"})
}

func (h *QuizHandler) RecordResponses(w http.ResponseWriter, r *http.Request) {
	var responses []domain.Response
	if err := render.DecodeJSON(r.Body, &responses); err != nil {
		respond(w, r, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return
	}
	tallies, err := h.service.RecordResponses(r.Context(), chi.URLParam(r, "quizId"), responses)
	if err != nil {
		h.fail(w, r, err, msgInvalidQuizID)
		return
	}
	respond(w, r, http.StatusOK, answerTallyResponse{QuizDetails: tallies})
}

func (h *QuizHandler) RecordPollVotes(w http.ResponseWriter, r *http.Request) {
	var votes []domain.PollVote
	if err := render.DecodeJSON(r.Body, &votes); err != nil {
		respond(w, r, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return
	}
	tallies, err := h.service.RecordPollVotes(r.Context(), chi.URLParam(r, "quizId"), votes)
	if err != nil {
		h.fail(w, r, err, msgInvalidQuizID)
		return
	}
	respond(w, r, http.StatusOK, voteTallyResponse{QuizDetails: tallies})
}

// fail maps domain errors to status codes. invalidIDMsg differs between
// owner routes and public quiz routes.
func (h *QuizHandler) fail(w http.ResponseWriter, r *http.Request, err error, invalidIDMsg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		respond(w, r, http.StatusBadRequest, errorResponse{Error: invalidIDMsg})
	case errors.Is(err, domain.ErrQuizFieldsRequired):
		respond(w, r, http.StatusBadRequest, errorResponse{Error: msgRequiredFields})
	case errors.Is(err, domain.ErrInvalidQuiz), errors.Is(err, domain.ErrInvalidResponse):
		respond(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrQuizNotFound):
		respond(w, r, http.StatusNotFound, errorResponse{Error: msgQuizNotFound})
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		respond(w, r, http.StatusInternalServerError, errorResponse{Error: msgInternal})
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
