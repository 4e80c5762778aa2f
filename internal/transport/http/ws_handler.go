package http

import (
	"errors"
	"net/http"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSHandler streams live analytics of one quiz to its owner.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logrus.WithField("component", "ws_handler"),
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS upgrades the request and forwards analytics snapshots until the
// client goes away. Clients are not expected to send anything.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}
	if !domain.ValidIDs(userID, quizID) {
		http.Error(w, msgInvalidUserOrQuizID, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"quiz_id": quizID, "user_id": userID})

	updates, cancel, err := h.service.Subscribe(r.Context(), userID, quizID)
	if err != nil {
		msg := msgInternal
		if errors.Is(err, domain.ErrQuizNotFound) {
			msg = msgQuizNotFound
		} else {
			log.WithError(err).Error("subscribe failed")
		}
		_ = conn.WriteJSON(errorMessage(msg))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "analytics", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// viewers only listen: any frame other than close, JSON or not, gets an error reply
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		select {
		case send <- errorMessage("unsupported message type"):
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
