package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz does not exist or is not owned by the caller.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidID is returned for user or quiz IDs that are not 24-hex ObjectIDs.
	ErrInvalidID = errors.New("invalid user or quiz ID")
	// ErrInvalidQuiz indicates a quiz draft or question list failed validation.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuizFieldsRequired is the ErrInvalidQuiz raised for a draft without a name or type.
	ErrQuizFieldsRequired = fmt.Errorf("%w: quiz name and quiz type are required", ErrInvalidQuiz)
	// ErrInvalidResponse indicates a malformed response or poll vote.
	ErrInvalidResponse = errors.New("invalid response")
)
