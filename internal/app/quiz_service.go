package app

import (
	"context"
	"time"

	"quiz-analytics-service/internal/domain"

	"github.com/sirupsen/logrus"
)

// QuizStore persists quiz documents. The Record* and IncrementImpression
// methods must apply their change atomically with respect to concurrent
// callers on the same quiz and return the document as stored afterwards.
type QuizStore interface {
	Create(ctx context.Context, quiz domain.Quiz) error
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Quiz, error)
	UpdateQuestions(ctx context.Context, userID, quizID string, edit QuestionEdit) (domain.Quiz, error)
	Delete(ctx context.Context, userID, quizID string) error
	IncrementImpression(ctx context.Context, quizID string) (domain.Quiz, error)
	RecordResponses(ctx context.Context, quizID string, tallies map[string]domain.ResponseTally) (domain.Quiz, error)
	RecordPollVotes(ctx context.Context, quizID string, tallies map[string]map[string]int) (domain.Quiz, error)
}

// QuestionEdit derives the new question list from the stored one.
type QuestionEdit func(existing []domain.Question) ([]domain.Question, error)

// QuizCache serves public quiz reads (from memory/Redis) and loads through the store on a miss.
type QuizCache interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// EventPublisher emits domain events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Event routing keys.
const (
	EventQuizCreated       = "quiz.created"
	EventQuizUpdated       = "quiz.updated"
	EventQuizDeleted       = "quiz.deleted"
	EventQuizImpression    = "quiz.impression"
	EventResponsesRecorded = "quiz.responses.recorded"
	EventPollRecorded      = "quiz.poll.recorded"
)

// QuizService contains the quiz use cases.
type QuizService struct {
	store  QuizStore
	cache  QuizCache
	feeds  FeedRepository
	events EventPublisher
	now    func() time.Time
	log    *logrus.Entry
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithEvents publishes domain events through p.
func WithEvents(p EventPublisher) Option {
	return func(s *QuizService) { s.events = p }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func NewQuizService(store QuizStore, cache QuizCache, feeds FeedRepository, opts ...Option) *QuizService {
	s := &QuizService{
		store: store,
		cache: cache,
		feeds: feeds,
		now:   time.Now,
		log:   logrus.WithField("component", "quiz_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dashboard summarizes every quiz owned by userID.
func (s *QuizService) Dashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	if !domain.ValidID(userID) {
		return domain.Dashboard{}, domain.ErrInvalidID
	}
	quizzes, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return domain.BuildDashboard(quizzes), nil
}

// CreateQuiz validates draft and stores it as a new quiz owned by userID.
func (s *QuizService) CreateQuiz(ctx context.Context, userID string, draft domain.QuizDraft) (domain.Quiz, error) {
	if !domain.ValidID(userID) {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	quiz, err := domain.NewQuiz(userID, draft, s.now())
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := s.store.Create(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.log.WithFields(logrus.Fields{"quiz_id": quiz.ID, "user_id": userID, "questions": len(quiz.Questions)}).Info("quiz created")
	s.emit(ctx, EventQuizCreated, map[string]any{"quizId": quiz.ID, "userId": userID, "quizType": quiz.QuizType})
	return quiz, nil
}

// EditQuiz replaces the question list of a quiz owned by userID.
func (s *QuizService) EditQuiz(ctx context.Context, userID, quizID string, questions []domain.Question) (domain.Quiz, error) {
	if !domain.ValidIDs(userID, quizID) {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	quiz, err := s.store.UpdateQuestions(ctx, userID, quizID, func(existing []domain.Question) ([]domain.Question, error) {
		return domain.PrepareQuestions(existing, questions)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	s.afterWrite(ctx, quiz)
	s.emit(ctx, EventQuizUpdated, map[string]any{"quizId": quizID, "userId": userID, "questions": len(quiz.Questions)})
	return quiz, nil
}

// GetQuiz is the public read used by respondents.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if !domain.ValidID(quizID) {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	return s.cache.GetQuiz(ctx, quizID)
}

// RecordImpression counts one view of the quiz and returns the new total.
func (s *QuizService) RecordImpression(ctx context.Context, quizID string) (int, error) {
	if !domain.ValidID(quizID) {
		return 0, domain.ErrInvalidID
	}
	quiz, err := s.store.IncrementImpression(ctx, quizID)
	if err != nil {
		return 0, err
	}
	s.afterWrite(ctx, quiz)
	s.emit(ctx, EventQuizImpression, map[string]any{"quizId": quizID, "impression": quiz.Impression})
	return quiz.Impression, nil
}

// Analytics returns per-question counters for a quiz owned by userID.
func (s *QuizService) Analytics(ctx context.Context, userID, quizID string) (domain.QuizAnalytics, error) {
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, err
	}
	return quiz.Analytics(), nil
}

// DeleteQuiz removes a quiz owned by userID.
func (s *QuizService) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	if !domain.ValidIDs(userID, quizID) {
		return domain.ErrInvalidID
	}
	if err := s.store.Delete(ctx, userID, quizID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, quizID)
	s.log.WithFields(logrus.Fields{"quiz_id": quizID, "user_id": userID}).Info("quiz deleted")
	s.emit(ctx, EventQuizDeleted, map[string]any{"quizId": quizID, "userId": userID})
	return nil
}

// RecordResponses aggregates a batch of Q&A answers onto the quiz and returns
// the updated counters in question order.
func (s *QuizService) RecordResponses(ctx context.Context, quizID string, responses []domain.Response) ([]domain.AnswerTally, error) {
	if !domain.ValidID(quizID) {
		return nil, domain.ErrInvalidID
	}
	quiz, err := s.store.RecordResponses(ctx, quizID, domain.TallyResponses(responses))
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, quiz)
	s.emit(ctx, EventResponsesRecorded, map[string]any{"quizId": quizID, "responses": len(responses)})
	return quiz.AnswerTallies(), nil
}

// RecordPollVotes aggregates a batch of poll votes onto the quiz and returns
// the updated vote maps in question order.
func (s *QuizService) RecordPollVotes(ctx context.Context, quizID string, votes []domain.PollVote) ([]domain.VoteTally, error) {
	if !domain.ValidID(quizID) {
		return nil, domain.ErrInvalidID
	}
	if err := domain.ValidateVotes(votes); err != nil {
		return nil, err
	}
	quiz, err := s.store.RecordPollVotes(ctx, quizID, domain.TallyVotes(votes))
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, quiz)
	s.emit(ctx, EventPollRecorded, map[string]any{"quizId": quizID, "votes": len(votes)})
	return quiz.VoteTallies(), nil
}

// Subscribe returns a channel of analytics snapshots for a quiz owned by userID.
// The first value is the current state. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, userID, quizID string) (<-chan domain.QuizAnalytics, func(), error) {
	quiz, err := s.ownedQuiz(ctx, userID, quizID)
	if err != nil {
		return nil, nil, err
	}
	var (
		feed   *Feed
		ch     <-chan domain.QuizAnalytics
		cancel func()
	)
	for {
		feed = s.feeds.GetOrCreate(quizID)
		ch, cancel = feed.subscribe(quiz.Analytics())
		// a concurrent DeleteIfIdle may have dropped the feed before we joined it
		if current, ok := s.feeds.Get(quizID); ok && current == feed {
			break
		}
		cancel()
	}
	s.feeds.Touch(quizID)
	s.log.WithFields(logrus.Fields{"quiz_id": quizID, "viewers": feed.Viewers()}).Debug("analytics viewer joined")
	return ch, func() {
		cancel()
		s.feeds.DeleteIfIdle(quizID)
	}, nil
}

func (s *QuizService) ownedQuiz(ctx context.Context, userID, quizID string) (domain.Quiz, error) {
	if !domain.ValidIDs(userID, quizID) {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	quiz, err := s.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.UserID != userID {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// afterWrite drops the cached copy and pushes a fresh snapshot to live viewers.
func (s *QuizService) afterWrite(ctx context.Context, quiz domain.Quiz) {
	s.cache.Invalidate(ctx, quiz.ID)
	if feed, ok := s.feeds.Get(quiz.ID); ok {
		feed.publish(quiz.Analytics())
	}
}

func (s *QuizService) emit(ctx context.Context, eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("publish event failed")
	}
}
