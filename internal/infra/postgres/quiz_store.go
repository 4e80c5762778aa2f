package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore keeps each quiz as a JSONB document. Aggregations lock the row
// with SELECT ... FOR UPDATE inside a transaction, so concurrent writers
// serialize per quiz.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, user_id, data, created_on) VALUES ($1, $2, $3::jsonb, $4)`,
		quiz.ID, quiz.UserID, string(raw), quiz.CreatedOn)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if err != nil {
		return domain.Quiz{}, notFound(err, "load quiz")
	}
	return decode(raw)
}

func (s *QuizStore) ListByUser(ctx context.Context, userID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM quizzes WHERE user_id=$1 ORDER BY created_on, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quiz, err := decode(raw)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

func (s *QuizStore) UpdateQuestions(ctx context.Context, userID, quizID string, edit app.QuestionEdit) (domain.Quiz, error) {
	return s.mutate(ctx, quizID, func(q *domain.Quiz) error {
		if q.UserID != userID {
			return domain.ErrQuizNotFound
		}
		questions, err := edit(q.Questions)
		if err != nil {
			return err
		}
		q.Questions = questions
		return nil
	})
}

func (s *QuizStore) Delete(ctx context.Context, userID, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1 AND user_id=$2`, quizID, userID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// IncrementImpression bumps the counter and revision in place; a single UPDATE is atomic.
func (s *QuizStore) IncrementImpression(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		UPDATE quizzes
		SET data = jsonb_set(
			jsonb_set(data, '{impression}', to_jsonb(COALESCE((data->>'impression')::int, 0) + 1)),
			'{revision}', to_jsonb(COALESCE((data->>'revision')::bigint, 0) + 1))
		WHERE id=$1
		RETURNING data`, quizID).Scan(&raw)
	if err != nil {
		return domain.Quiz{}, notFound(err, "increment impression")
	}
	return decode(raw)
}

func (s *QuizStore) RecordResponses(ctx context.Context, quizID string, tallies map[string]domain.ResponseTally) (domain.Quiz, error) {
	return s.mutate(ctx, quizID, func(q *domain.Quiz) error {
		q.ApplyResponseTallies(tallies)
		return nil
	})
}

func (s *QuizStore) RecordPollVotes(ctx context.Context, quizID string, tallies map[string]map[string]int) (domain.Quiz, error) {
	return s.mutate(ctx, quizID, func(q *domain.Quiz) error {
		q.ApplyVoteTallies(tallies)
		return nil
	})
}

// mutate is a locked read-modify-write of one quiz document.
func (s *QuizStore) mutate(ctx context.Context, quizID string, fn func(*domain.Quiz) error) (domain.Quiz, error) {
	var out domain.Quiz
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var raw []byte
		if err := tx.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1 FOR UPDATE`, quizID).Scan(&raw); err != nil {
			return notFound(err, "lock quiz")
		}
		quiz, err := decode(raw)
		if err != nil {
			return err
		}
		if err := fn(&quiz); err != nil {
			return err
		}
		quiz.Revision++
		updated, err := json.Marshal(quiz)
		if err != nil {
			return fmt.Errorf("marshal quiz: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE quizzes SET data=$2::jsonb WHERE id=$1`, quizID, string(updated)); err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		out = quiz
		return nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return out, nil
}

func decode(raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrQuizNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
