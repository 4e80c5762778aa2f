package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"
	"quiz-analytics-service/internal/infra/memory"
)

const fixture = `
quizzes:
  - quizName: Capitals
    quizType: Q&A
    questions:
      - questionText: Capital of France?
        optionType: text
        options: [{text: Paris}, {text: Rome}]
        correctAnswer: 0
        timer: 10
  - quizName: Weekend
    quizType: Poll
    questions:
      - questionText: Beach or mountains?
        optionType: textAndImage
        options:
          - {text: Beach, imageUrl: "https://img.example/beach.png"}
          - {text: Mountains, imageUrl: "https://img.example/mountains.png"}
`

func TestParseSeed(t *testing.T) {
	drafts, err := parseSeed([]byte(fixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	q := drafts[0].Questions[0]
	if drafts[0].QuizType != domain.QuizTypeQA || q.CorrectAnswer == nil || *q.CorrectAnswer != 0 || q.Timer != 10 {
		t.Fatalf("unexpected first draft %+v", drafts[0])
	}
	if drafts[1].Questions[0].Options[1].ImageURL != "https://img.example/mountains.png" {
		t.Fatalf("expected image urls to be parsed, got %+v", drafts[1].Questions[0].Options)
	}

	if _, err := parseSeed([]byte("quizzes: []")); err == nil {
		t.Fatalf("expected error for empty fixture")
	}
}

func TestSeedQuizzes(t *testing.T) {
	drafts, err := parseSeed([]byte(fixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	store := memory.NewQuizStore()
	service := app.NewQuizService(store, memory.NewQuizCache(store, time.Minute), memory.NewFeedStore())
	user := domain.NewID()

	ids, err := seedQuizzes(context.Background(), service, user, drafts)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	dashboard, err := service.Dashboard(context.Background(), user)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dashboard.NumberOfQuizzes != 2 || dashboard.TotalNumberOfQuestions != 2 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}

	if _, err := seedQuizzes(context.Background(), service, "not-an-id", drafts); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
