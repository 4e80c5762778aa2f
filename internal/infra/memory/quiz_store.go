package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"
)

// QuizStore keeps quiz documents in a map. A single mutex serializes writers,
// which makes every aggregation atomic.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]domain.Quiz)}
}

func (s *QuizStore) Create(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz.Clone()
	return nil
}

func (s *QuizStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz.Clone(), nil
}

// ListByUser returns the user's quizzes, oldest first.
func (s *QuizStore) ListByUser(_ context.Context, userID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if quiz.UserID == userID {
			out = append(out, quiz.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *QuizStore) UpdateQuestions(_ context.Context, userID, quizID string, edit app.QuestionEdit) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok || quiz.UserID != userID {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	questions, err := edit(quiz.Clone().Questions)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	quiz.Revision++
	s.quizzes[quizID] = quiz.Clone()
	return quiz.Clone(), nil
}

func (s *QuizStore) Delete(_ context.Context, userID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok || quiz.UserID != userID {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

func (s *QuizStore) IncrementImpression(_ context.Context, quizID string) (domain.Quiz, error) {
	return s.mutate(quizID, func(q *domain.Quiz) { q.Impression++ })
}

func (s *QuizStore) RecordResponses(_ context.Context, quizID string, tallies map[string]domain.ResponseTally) (domain.Quiz, error) {
	return s.mutate(quizID, func(q *domain.Quiz) { q.ApplyResponseTallies(tallies) })
}

func (s *QuizStore) RecordPollVotes(_ context.Context, quizID string, tallies map[string]map[string]int) (domain.Quiz, error) {
	return s.mutate(quizID, func(q *domain.Quiz) { q.ApplyVoteTallies(tallies) })
}

func (s *QuizStore) mutate(quizID string, fn func(*domain.Quiz)) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	// stored values share nothing with callers, so in-place mutation is safe
	fn(&quiz)
	quiz.Revision++
	s.quizzes[quizID] = quiz
	return quiz.Clone(), nil
}
