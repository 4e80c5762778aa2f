package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// quizRecord is the row shape: indexed owner plus the whole document as JSON.
type quizRecord struct {
	ID        string         `gorm:"primaryKey;size:24"`
	UserID    string         `gorm:"size:24;not null;index:idx_quizzes_user_created"`
	CreatedOn time.Time      `gorm:"not null;index:idx_quizzes_user_created"`
	Data      datatypes.JSON `gorm:"not null"`
}

func (quizRecord) TableName() string { return "quizzes" }

// QuizStore keeps quizzes in a SQLite file through gorm. SQLite allows one
// writer at a time and the pool is capped at one connection, so each
// read-modify-write transaction is atomic.
type QuizStore struct {
	db *gorm.DB
}

// Open connects to path (":memory:" works for tests) and migrates the schema.
func Open(path string) (*QuizStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&quizRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	logrus.WithField("path", path).Debug("sqlite quiz store ready")
	return &QuizStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *QuizStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	rec, err := toRecord(quiz)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var rec quizRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", quizID).Error; err != nil {
		return domain.Quiz{}, notFound(err, "load quiz")
	}
	return rec.toDomain()
}

func (s *QuizStore) ListByUser(ctx context.Context, userID string) ([]domain.Quiz, error) {
	var recs []quizRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_on, id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	quizzes := make([]domain.Quiz, 0, len(recs))
	for _, rec := range recs {
		quiz, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
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
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", quizID, userID).Delete(&quizRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete quiz: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) IncrementImpression(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.mutate(ctx, quizID, func(q *domain.Quiz) error {
		q.Impression++
		return nil
	})
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

func (s *QuizStore) mutate(ctx context.Context, quizID string, fn func(*domain.Quiz) error) (domain.Quiz, error) {
	var out domain.Quiz
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec quizRecord
		if err := tx.First(&rec, "id = ?", quizID).Error; err != nil {
			return notFound(err, "load quiz")
		}
		quiz, err := rec.toDomain()
		if err != nil {
			return err
		}
		if err := fn(&quiz); err != nil {
			return err
		}
		quiz.Revision++
		updated, err := toRecord(quiz)
		if err != nil {
			return err
		}
		if err := tx.Model(&quizRecord{}).Where("id = ?", quizID).Update("data", updated.Data).Error; err != nil {
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

func toRecord(q domain.Quiz) (quizRecord, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return quizRecord{}, fmt.Errorf("marshal quiz: %w", err)
	}
	return quizRecord{
		ID:        q.ID,
		UserID:    q.UserID,
		CreatedOn: q.CreatedOn,
		Data:      datatypes.JSON(raw),
	}, nil
}

func (r quizRecord) toDomain() (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(r.Data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrQuizNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
