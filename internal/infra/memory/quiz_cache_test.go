package memory

import (
	"context"
	"testing"
	"time"

	"quiz-analytics-service/internal/domain"
)

func TestQuizCacheCaches(t *testing.T) {
	store := NewQuizStore()
	quiz := sampleQuiz()
	if err := store.Create(context.Background(), quiz); err != nil {
		t.Fatalf("create: %v", err)
	}
	loader := &countingLoader{QuizLoader: store}
	cache := NewQuizCache(loader, time.Minute)

	if _, err := cache.GetQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.GetQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	cache.Invalidate(context.Background(), quiz.ID)
	if _, err := cache.GetQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuizCacheExpires(t *testing.T) {
	store := NewQuizStore()
	quiz := sampleQuiz()
	_ = store.Create(context.Background(), quiz)
	loader := &countingLoader{QuizLoader: store}
	cache := NewQuizCache(loader, time.Minute)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetQuiz(context.Background(), quiz.ID)
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetQuiz(context.Background(), quiz.ID)
	if loader.calls != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls)
	}
}

func TestQuizCachePropagatesNotFound(t *testing.T) {
	cache := NewQuizCache(NewQuizStore(), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), domain.NewID()); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestQuizCacheReturnsCopies(t *testing.T) {
	store := NewQuizStore()
	quiz := sampleQuiz()
	_ = store.Create(context.Background(), quiz)
	cache := NewQuizCache(store, time.Minute)

	first, _ := cache.GetQuiz(context.Background(), quiz.ID)
	first.Questions[0].OptionVotes["0"] = 99

	second, _ := cache.GetQuiz(context.Background(), quiz.ID)
	if second.Questions[0].OptionVotes["0"] != 0 {
		t.Fatalf("cached quiz was mutated through a returned copy")
	}
}

func TestQuizCacheDropsFillRacingInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewQuizStore()
	quiz := sampleQuiz()
	_ = store.Create(ctx, quiz)
	loader := newGatedLoader(store)
	cache := NewQuizCache(loader, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.GetQuiz(ctx, quiz.ID); err != nil {
			t.Errorf("get quiz: %v", err)
		}
	}()

	// a write commits and invalidates while the first load is still in flight
	<-loader.loaded
	tallies := map[string]domain.ResponseTally{quiz.Questions[0].ID: {Answers: 1, Correct: 1}}
	if _, err := store.RecordResponses(ctx, quiz.ID, tallies); err != nil {
		t.Fatalf("record: %v", err)
	}
	cache.Invalidate(ctx, quiz.ID)
	close(loader.release)
	<-done

	got, err := cache.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz after write: %v", err)
	}
	if got.Questions[0].AnswerCount != 1 {
		t.Fatalf("cache served the pre-write document: answerCount=%d", got.Questions[0].AnswerCount)
	}
}

// gatedLoader holds every load after reading the store until release is closed.
type gatedLoader struct {
	QuizLoader
	loaded  chan struct{}
	release chan struct{}
}

func newGatedLoader(inner QuizLoader) *gatedLoader {
	return &gatedLoader{QuizLoader: inner, loaded: make(chan struct{}, 1), release: make(chan struct{})}
}

func (l *gatedLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := l.QuizLoader.LoadQuiz(ctx, quizID)
	select {
	case l.loaded <- struct{}{}:
	default:
	}
	<-l.release
	return quiz, err
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	correct := 1
	return domain.Quiz{
		ID:       domain.NewID(),
		UserID:   domain.NewID(),
		QuizName: "Arithmetic",
		QuizType: domain.QuizTypeQA,
		Questions: []domain.Question{
			{
				ID:            domain.NewID(),
				QuestionText:  "What is 2 + 2?",
				OptionType:    domain.OptionTypeText,
				Options:       []domain.Option{{Text: "3"}, {Text: "4"}},
				CorrectAnswer: &correct,
				OptionVotes:   map[string]int{},
			},
			{
				ID:           domain.NewID(),
				QuestionText: "What is 3 + 3?",
				OptionType:   domain.OptionTypeText,
				Options:      []domain.Option{{Text: "6"}, {Text: "7"}},
				OptionVotes:  map[string]int{},
			},
		},
		CreatedOn: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
