package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"
	"quiz-analytics-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewQuizStore()
	cache := memory.NewQuizCache(store, time.Minute)
	service := app.NewQuizService(store, cache, memory.NewFeedStore())
	server := httptest.NewServer(NewRouter(service, RouterOptions{}))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response of %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func pollDraft() map[string]any {
	return map[string]any{
		"quizName": "Lunch",
		"quizType": "Poll",
		"questions": []map[string]any{
			{"questionText": "Pizza or sushi?", "optionType": "text", "options": []map[string]any{{"text": "Pizza"}, {"text": "Sushi"}}},
		},
	}
}

func qaDraft() map[string]any {
	return map[string]any{
		"quizName": "Maths",
		"quizType": "Q&A",
		"questions": []map[string]any{
			{"questionText": "2 + 2?", "optionType": "text", "options": []map[string]any{{"text": "3"}, {"text": "4"}}, "correctAnswer": 1},
			{"questionText": "3 * 3?", "optionType": "text", "options": []map[string]any{{"text": "9"}, {"text": "6"}}, "correctAnswer": 0},
		},
	}
}

func createQuiz(t *testing.T, server *httptest.Server, userID string, draft map[string]any) string {
	t.Helper()
	var created struct {
		QuizID  string `json:"quizId"`
		Message string `json:"message"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/quiz/createQuiz/"+userID, draft, &created)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if created.Message != "Quiz created successfully" || !domain.ValidID(created.QuizID) {
		t.Fatalf("unexpected create response %+v", created)
	}
	return created.QuizID
}

func fetchQuiz(t *testing.T, server *httptest.Server, quizID string) domain.Quiz {
	t.Helper()
	var body struct {
		Quiz domain.Quiz `json:"quiz"`
	}
	if status := doJSON(t, http.MethodGet, server.URL+"/api/quiz/"+quizID, nil, &body); status != http.StatusOK {
		t.Fatalf("get quiz: expected 200, got %d", status)
	}
	return body.Quiz
}

func TestCreateQuizRequiresNameAndType(t *testing.T) {
	server := newTestServer(t)
	var body errorResponse
	status := doJSON(t, http.MethodPost, server.URL+"/api/quiz/createQuiz/"+domain.NewID(), map[string]any{"quizName": "No type"}, &body)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if body.Error != "Quiz Name and QuizType are required fields." {
		t.Fatalf("unexpected error message %q", body.Error)
	}
}

func TestDashboardAndAnalyticsFlow(t *testing.T) {
	server := newTestServer(t)
	user := domain.NewID()
	qaID := createQuiz(t, server, user, qaDraft())
	createQuiz(t, server, user, pollDraft())

	var impression impressionResponse
	for i := 0; i < 2; i++ {
		if status := doJSON(t, http.MethodPut, server.URL+"/api/quiz/impression/"+qaID, nil, &impression); status != http.StatusOK {
			t.Fatalf("impression: expected 200, got %d", status)
		}
	}
	if impression.Impression != 2 {
		t.Fatalf("expected 2 impressions, got %d", impression.Impression)
	}

	var dashboard domain.Dashboard
	if status := doJSON(t, http.MethodGet, server.URL+"/api/quiz/dashboard/"+user, nil, &dashboard); status != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", status)
	}
	if dashboard.NumberOfQuizzes != 2 || dashboard.TotalNumberOfQuestions != 3 || dashboard.TotalImpressions != 2 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}

	quiz := fetchQuiz(t, server, qaID)
	responses := []domain.Response{
		{QuestionID: quiz.Questions[0].ID, IsCorrect: true},
		{QuestionID: quiz.Questions[0].ID, IsCorrect: false},
		{QuestionID: quiz.Questions[1].ID, IsCorrect: true},
		{QuestionID: domain.NewID(), IsCorrect: true},
	}
	var tallies answerTallyResponse
	if status := doJSON(t, http.MethodPut, server.URL+"/api/quiz/"+qaID, responses, &tallies); status != http.StatusOK {
		t.Fatalf("responses: expected 200, got %d", status)
	}
	want := []domain.AnswerTally{{AnswerCount: 2, CorrectCount: 1, IncorrectCount: 1}, {AnswerCount: 1, CorrectCount: 1}}
	if len(tallies.QuizDetails) != 2 || tallies.QuizDetails[0] != want[0] || tallies.QuizDetails[1] != want[1] {
		t.Fatalf("unexpected tallies %+v", tallies.QuizDetails)
	}

	var analytics domain.QuizAnalytics
	if status := doJSON(t, http.MethodGet, server.URL+"/api/quiz/analytics/"+user+"/"+qaID, nil, &analytics); status != http.StatusOK {
		t.Fatalf("analytics: expected 200, got %d", status)
	}
	if analytics.Impression != 2 || analytics.QuizDetails[0].AnswerCount != 2 || *analytics.QuizDetails[0].CorrectAnswer != 1 {
		t.Fatalf("unexpected analytics %+v", analytics)
	}

	var notOwner errorResponse
	if status := doJSON(t, http.MethodGet, server.URL+"/api/quiz/analytics/"+domain.NewID()+"/"+qaID, nil, &notOwner); status != http.StatusNotFound {
		t.Fatalf("analytics by another user: expected 404, got %d", status)
	}
}

func TestPollVotesConcurrent(t *testing.T) {
	server := newTestServer(t)
	quizID := createQuiz(t, server, domain.NewID(), pollDraft())
	questionID := fetchQuiz(t, server, quizID).Questions[0].ID

	const voters = 25
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vote := []domain.PollVote{{QuestionID: questionID, SelectedOption: i % 2}}
			if status := doJSON(t, http.MethodPut, server.URL+"/api/quiz/poll/"+quizID, vote, nil); status != http.StatusOK {
				t.Errorf("poll vote: expected 200, got %d", status)
			}
		}(i)
	}
	wg.Wait()

	votes := fetchQuiz(t, server, quizID).Questions[0].OptionVotes
	if votes["0"]+votes["1"] != voters || votes["0"] != 13 || votes["1"] != 12 {
		t.Fatalf("lost votes: %+v", votes)
	}
}

func TestPollVoteRejectsNegativeOption(t *testing.T) {
	server := newTestServer(t)
	quizID := createQuiz(t, server, domain.NewID(), pollDraft())
	questionID := fetchQuiz(t, server, quizID).Questions[0].ID

	vote := []domain.PollVote{{QuestionID: questionID, SelectedOption: -1}}
	if status := doJSON(t, http.MethodPut, server.URL+"/api/quiz/poll/"+quizID, vote, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestEditAndDeleteQuiz(t *testing.T) {
	server := newTestServer(t)
	user := domain.NewID()
	quizID := createQuiz(t, server, user, qaDraft())
	quiz := fetchQuiz(t, server, quizID)

	responses := []domain.Response{{QuestionID: quiz.Questions[0].ID, IsCorrect: true}}
	doJSON(t, http.MethodPut, server.URL+"/api/quiz/"+quizID, responses, nil)

	kept := quiz.Questions[0]
	kept.QuestionText = "2 + 2 = ?"
	edit := map[string]any{"questions": []any{kept, map[string]any{"questionText": "New one", "options": []map[string]any{{"text": "a"}}}}}
	var msg messageResponse
	if status := doJSON(t, http.MethodPut, server.URL+"/api/quiz/editQuiz/"+user+"/"+quizID, edit, &msg); status != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d", status)
	}
	if msg.Message != "Quiz updated successfully" {
		t.Fatalf("unexpected edit message %q", msg.Message)
	}

	edited := fetchQuiz(t, server, quizID)
	if len(edited.Questions) != 2 || edited.Questions[0].QuestionText != "2 + 2 = ?" || edited.Questions[0].AnswerCount != 1 {
		t.Fatalf("expected retained question to keep its counters, got %+v", edited.Questions)
	}
	if edited.Questions[1].AnswerCount != 0 || !domain.ValidID(edited.Questions[1].ID) {
		t.Fatalf("expected new question to start fresh, got %+v", edited.Questions[1])
	}

	if status := doJSON(t, http.MethodDelete, server.URL+"/api/quiz/deleteQuiz/"+domain.NewID()+"/"+quizID, nil, nil); status != http.StatusNotFound {
		t.Fatalf("delete by another user: expected 404, got %d", status)
	}
	if status := doJSON(t, http.MethodDelete, server.URL+"/api/quiz/deleteQuiz/"+user+"/"+quizID, nil, &msg); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, server.URL+"/api/quiz/"+quizID, nil, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", status)
	}
}

func TestInvalidIDsAndBodies(t *testing.T) {
	server := newTestServer(t)
	valid := domain.NewID()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"analytics bad user", http.MethodGet, "/api/quiz/analytics/nope/" + valid, nil, http.StatusBadRequest, "Invalid user or quiz ID"},
		{"delete bad quiz", http.MethodDelete, "/api/quiz/deleteQuiz/" + valid + "/nope", nil, http.StatusBadRequest, "Invalid user or quiz ID"},
		{"get bad quiz", http.MethodGet, "/api/quiz/nope", nil, http.StatusBadRequest, "Invalid quiz ID"},
		{"responses bad quiz", http.MethodPut, "/api/quiz/nope", []domain.Response{}, http.StatusBadRequest, "Invalid quiz ID"},
		{"poll bad quiz", http.MethodPut, "/api/quiz/poll/nope", []domain.PollVote{}, http.StatusBadRequest, "Invalid quiz ID"},
		{"responses object body", http.MethodPut, "/api/quiz/" + valid, map[string]any{"questionId": valid}, http.StatusBadRequest, "Invalid request body"},
		{"responses unknown quiz", http.MethodPut, "/api/quiz/" + valid, []domain.Response{}, http.StatusNotFound, "Quiz not found"},
		{"impression unknown quiz", http.MethodPut, "/api/quiz/impression/" + valid, nil, http.StatusNotFound, "Quiz not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body errorResponse
			status := doJSON(t, tc.method, server.URL+tc.path, tc.body, &body)
			if status != tc.status || body.Error != tc.msg {
				t.Fatalf("expected %d %q, got %d %q", tc.status, tc.msg, status, body.Error)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
