package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/domain"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// maxEditAttempts bounds optimistic retries of UpdateQuestions against
// concurrent counter updates.
const maxEditAttempts = 5

// QuizStore persists quizzes in a MongoDB collection. Counter updates are a
// single $inc with array filters, so concurrent respondents never lose writes.
type QuizStore struct {
	collection *mongo.Collection
}

func NewQuizStore(db *mongo.Database, collection string) *QuizStore {
	return &QuizStore{collection: db.Collection(collection)}
}

// InitializeIndexes creates the owner index used by the dashboard.
func (s *QuizStore) InitializeIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdOn", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) error {
	doc, err := toDocument(quiz)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	id, err := bson.ObjectIDFromHex(quizID)
	if err != nil {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	doc, err := s.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return domain.Quiz{}, err
	}
	return doc.toDomain(), nil
}

func (s *QuizStore) ListByUser(ctx context.Context, userID string) ([]domain.Quiz, error) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdOn", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer cursor.Close(ctx)

	quizzes := make([]domain.Quiz, 0)
	for cursor.Next(ctx) {
		var doc quizDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode quiz: %w", err)
		}
		quizzes = append(quizzes, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quizzes: %w", err)
	}
	return quizzes, nil
}

// UpdateQuestions replaces the question list with optimistic concurrency on
// the document version; a counter update landing in between forces a retry
// so its increments are carried into the edited questions.
func (s *QuizStore) UpdateQuestions(ctx context.Context, userID, quizID string, edit app.QuestionEdit) (domain.Quiz, error) {
	filter, err := ownedFilter(userID, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		current, err := s.findOne(ctx, filter)
		if err != nil {
			return domain.Quiz{}, err
		}
		questions, err := edit(current.toDomain().Questions)
		if err != nil {
			return domain.Quiz{}, err
		}
		docs, err := toQuestionDocuments(questions)
		if err != nil {
			return domain.Quiz{}, err
		}

		versioned := bson.M{"_id": current.ID, "userId": current.UserID, "version": current.Version}
		update := bson.M{
			"$set": bson.M{"questions": docs},
			"$inc": bson.M{"version": 1, "revision": 1},
		}
		updated, err := s.findOneAndUpdate(ctx, versioned, update, nil)
		if errors.Is(err, domain.ErrQuizNotFound) {
			logrus.WithFields(logrus.Fields{"quiz_id": quizID, "attempt": attempt + 1}).Debug("quiz changed during edit, retrying")
			continue
		}
		if err != nil {
			return domain.Quiz{}, err
		}
		return updated.toDomain(), nil
	}
	return domain.Quiz{}, fmt.Errorf("failed to edit quiz %s: too many concurrent updates", quizID)
}

func (s *QuizStore) Delete(ctx context.Context, userID, quizID string) error {
	filter, err := ownedFilter(userID, quizID)
	if err != nil {
		return err
	}
	result, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) IncrementImpression(ctx context.Context, quizID string) (domain.Quiz, error) {
	id, err := bson.ObjectIDFromHex(quizID)
	if err != nil {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	// version tracks the question list only
	update := bson.M{"$inc": bson.M{"impression": 1, "revision": 1}}
	doc, err := s.findOneAndUpdate(ctx, bson.M{"_id": id}, update, nil)
	if err != nil {
		return domain.Quiz{}, err
	}
	return doc.toDomain(), nil
}

func (s *QuizStore) RecordResponses(ctx context.Context, quizID string, tallies map[string]domain.ResponseTally) (domain.Quiz, error) {
	id, err := bson.ObjectIDFromHex(quizID)
	if err != nil {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	inc := bson.M{}
	filters := make([]any, 0, len(tallies))
	for questionID, t := range tallies {
		qid, err := bson.ObjectIDFromHex(questionID)
		if err != nil {
			continue // cannot match any stored question
		}
		ident := fmt.Sprintf("q%d", len(filters))
		filters = append(filters, bson.M{ident + "._id": qid})
		prefix := "questions.$[" + ident + "]."
		inc[prefix+"answerCount"] = t.Answers
		inc[prefix+"correctCount"] = t.Correct
		inc[prefix+"incorrectCount"] = t.Incorrect
	}
	return s.applyIncrements(ctx, id, inc, filters)
}

func (s *QuizStore) RecordPollVotes(ctx context.Context, quizID string, tallies map[string]map[string]int) (domain.Quiz, error) {
	id, err := bson.ObjectIDFromHex(quizID)
	if err != nil {
		return domain.Quiz{}, domain.ErrInvalidID
	}
	inc := bson.M{}
	filters := make([]any, 0, len(tallies))
	for questionID, perOption := range tallies {
		qid, err := bson.ObjectIDFromHex(questionID)
		if err != nil {
			continue
		}
		ident := fmt.Sprintf("q%d", len(filters))
		filters = append(filters, bson.M{ident + "._id": qid})
		for key, n := range perOption {
			inc["questions.$["+ident+"].optionVotes."+key] = n
		}
	}
	return s.applyIncrements(ctx, id, inc, filters)
}

// applyIncrements runs one atomic update and returns the document after it.
func (s *QuizStore) applyIncrements(ctx context.Context, id bson.ObjectID, inc bson.M, filters []any) (domain.Quiz, error) {
	if len(filters) == 0 {
		doc, err := s.findOne(ctx, bson.M{"_id": id})
		if err != nil {
			return domain.Quiz{}, err
		}
		return doc.toDomain(), nil
	}
	inc["version"] = 1
	inc["revision"] = 1
	doc, err := s.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": inc}, filters)
	if err != nil {
		return domain.Quiz{}, err
	}
	return doc.toDomain(), nil
}

func (s *QuizStore) findOne(ctx context.Context, filter bson.M) (quizDocument, error) {
	var doc quizDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return quizDocument{}, domain.ErrQuizNotFound
		}
		return quizDocument{}, fmt.Errorf("failed to get quiz: %w", err)
	}
	return doc, nil
}

func (s *QuizStore) findOneAndUpdate(ctx context.Context, filter, update bson.M, arrayFilters []any) (quizDocument, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(arrayFilters)
	}
	var doc quizDocument
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return quizDocument{}, domain.ErrQuizNotFound
		}
		return quizDocument{}, fmt.Errorf("failed to update quiz: %w", err)
	}
	return doc, nil
}

func ownedFilter(userID, quizID string) (bson.M, error) {
	id, err := bson.ObjectIDFromHex(quizID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	return bson.M{"_id": id, "userId": owner}, nil
}

type quizDocument struct {
	ID         bson.ObjectID      `bson:"_id"`
	UserID     bson.ObjectID      `bson:"userId"`
	QuizName   string             `bson:"quizName"`
	QuizType   string             `bson:"quizType"`
	Questions  []questionDocument `bson:"questions"`
	Impression int                `bson:"impression"`
	CreatedOn  time.Time          `bson:"createdOn"`
	Version    int64              `bson:"version"`
	Revision   int64              `bson:"revision"`
}

type questionDocument struct {
	ID             bson.ObjectID    `bson:"_id"`
	QuestionText   string           `bson:"questionText"`
	OptionType     string           `bson:"optionType,omitempty"`
	Options        []optionDocument `bson:"options"`
	CorrectAnswer  *int             `bson:"correctAnswer,omitempty"`
	Timer          int              `bson:"timer,omitempty"`
	AnswerCount    int              `bson:"answerCount"`
	CorrectCount   int              `bson:"correctCount"`
	IncorrectCount int              `bson:"incorrectCount"`
	OptionVotes    map[string]int   `bson:"optionVotes"`
}

type optionDocument struct {
	Text     string `bson:"text,omitempty"`
	ImageURL string `bson:"imageUrl,omitempty"`
}

func toDocument(q domain.Quiz) (quizDocument, error) {
	id, err := bson.ObjectIDFromHex(q.ID)
	if err != nil {
		return quizDocument{}, domain.ErrInvalidID
	}
	owner, err := bson.ObjectIDFromHex(q.UserID)
	if err != nil {
		return quizDocument{}, domain.ErrInvalidID
	}
	questions, err := toQuestionDocuments(q.Questions)
	if err != nil {
		return quizDocument{}, err
	}
	return quizDocument{
		ID:         id,
		UserID:     owner,
		QuizName:   q.QuizName,
		QuizType:   string(q.QuizType),
		Questions:  questions,
		Impression: q.Impression,
		CreatedOn:  q.CreatedOn,
		Revision:   q.Revision,
	}, nil
}

func toQuestionDocuments(questions []domain.Question) ([]questionDocument, error) {
	out := make([]questionDocument, 0, len(questions))
	for _, q := range questions {
		id, err := bson.ObjectIDFromHex(q.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: question id %q", domain.ErrInvalidQuiz, q.ID)
		}
		choices := make([]optionDocument, 0, len(q.Options))
		for _, o := range q.Options {
			choices = append(choices, optionDocument{Text: o.Text, ImageURL: o.ImageURL})
		}
		votes := q.OptionVotes
		if votes == nil {
			votes = map[string]int{}
		}
		out = append(out, questionDocument{
			ID:             id,
			QuestionText:   q.QuestionText,
			OptionType:     string(q.OptionType),
			Options:        choices,
			CorrectAnswer:  q.CorrectAnswer,
			Timer:          q.Timer,
			AnswerCount:    q.AnswerCount,
			CorrectCount:   q.CorrectCount,
			IncorrectCount: q.IncorrectCount,
			OptionVotes:    votes,
		})
	}
	return out, nil
}

func (d quizDocument) toDomain() domain.Quiz {
	questions := make([]domain.Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		choices := make([]domain.Option, 0, len(q.Options))
		for _, o := range q.Options {
			choices = append(choices, domain.Option{Text: o.Text, ImageURL: o.ImageURL})
		}
		votes := q.OptionVotes
		if votes == nil {
			votes = map[string]int{}
		}
		questions = append(questions, domain.Question{
			ID:             q.ID.Hex(),
			QuestionText:   q.QuestionText,
			OptionType:     domain.OptionType(q.OptionType),
			Options:        choices,
			CorrectAnswer:  q.CorrectAnswer,
			Timer:          q.Timer,
			AnswerCount:    q.AnswerCount,
			CorrectCount:   q.CorrectCount,
			IncorrectCount: q.IncorrectCount,
			OptionVotes:    votes,
		})
	}
	return domain.Quiz{
		ID:         d.ID.Hex(),
		UserID:     d.UserID.Hex(),
		QuizName:   d.QuizName,
		QuizType:   domain.QuizType(d.QuizType),
		Questions:  questions,
		Impression: d.Impression,
		CreatedOn:  d.CreatedOn.UTC(),
		Revision:   d.Revision,
	}
}
