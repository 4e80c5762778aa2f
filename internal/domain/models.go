package domain

import "time"

// QuizType distinguishes scored quizzes from polls.
type QuizType string

const (
	QuizTypeQA   QuizType = "Q&A"
	QuizTypePoll QuizType = "Poll"
)

// Valid reports whether t is a known quiz type.
func (t QuizType) Valid() bool {
	return t == QuizTypeQA || t == QuizTypePoll
}

// OptionType describes how the options of a question are rendered.
type OptionType string

const (
	OptionTypeText         OptionType = "text"
	OptionTypeImage        OptionType = "image"
	OptionTypeTextAndImage OptionType = "textAndImage"
)

// Option is a single answer choice.
type Option struct {
	Text     string `json:"text,omitempty" yaml:"text"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"imageUrl"`
}

// Question carries its content plus the response counters aggregated onto it.
type Question struct {
	ID             string         `json:"_id"`
	QuestionText   string         `json:"questionText" yaml:"questionText"`
	OptionType     OptionType     `json:"optionType,omitempty" yaml:"optionType"`
	Options        []Option       `json:"options" yaml:"options"`
	CorrectAnswer  *int           `json:"correctAnswer,omitempty" yaml:"correctAnswer"`
	Timer          int            `json:"timer,omitempty" yaml:"timer"` // seconds, 0 disables
	AnswerCount    int            `json:"answerCount"`
	CorrectCount   int            `json:"correctCount"`
	IncorrectCount int            `json:"incorrectCount"`
	OptionVotes    map[string]int `json:"optionVotes"`
}

// Quiz is the single document type persisted by every store.
type Quiz struct {
	ID         string     `json:"_id"`
	UserID     string     `json:"userId"`
	QuizName   string     `json:"quizName"`
	QuizType   QuizType   `json:"quizType"`
	Questions  []Question `json:"questions"`
	Impression int        `json:"impression"`
	CreatedOn  time.Time  `json:"createdOn"`
	Revision   int64      `json:"revision"` // bumped by the store on every write
}

// QuizDraft is the client-supplied part of a new quiz.
type QuizDraft struct {
	QuizName  string     `json:"quizName" yaml:"quizName"`
	QuizType  QuizType   `json:"quizType" yaml:"quizType"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Response is one respondent's answer to a Q&A question.
type Response struct {
	QuestionID string `json:"questionId"`
	IsCorrect  bool   `json:"isCorrect"`
}

// PollVote is one respondent's selection on a poll question.
type PollVote struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
}

// QuizSummary is a dashboard row.
type QuizSummary struct {
	QuizName   string    `json:"quizName"`
	QuizType   QuizType  `json:"quizType"`
	CreatedOn  time.Time `json:"createdOn"`
	Impression int       `json:"impression"`
	QuizID     string    `json:"quizId"`
}

// Dashboard aggregates every quiz owned by one user.
type Dashboard struct {
	NumberOfQuizzes        int           `json:"numberOfQuizzes"`
	TotalNumberOfQuestions int           `json:"totalNumberOfQuestions"`
	TotalImpressions       int           `json:"totalImpressions"`
	QuizDetails            []QuizSummary `json:"quizDetails"`
}

// QuestionAnalytics is the per-question analytics projection.
type QuestionAnalytics struct {
	QuestionID     string         `json:"questionId"`
	QuestionText   string         `json:"questionText"`
	CorrectAnswer  *int           `json:"correctAnswer,omitempty"`
	AnswerCount    int            `json:"answerCount"`
	CorrectCount   int            `json:"correctCount"`
	IncorrectCount int            `json:"incorrectCount"`
	OptionVotes    map[string]int `json:"optionVotes"`
}

// QuizAnalytics is what owners see on the analytics page and the live feed.
type QuizAnalytics struct {
	QuizID      string              `json:"quizId"`
	QuizName    string              `json:"quizName"`
	QuizType    QuizType            `json:"quizType"`
	Impression  int                 `json:"impression"`
	CreatedOn   time.Time           `json:"createdOn"`
	Revision    int64               `json:"revision"`
	QuizDetails []QuestionAnalytics `json:"quizDetails"`
}

// AnswerTally is returned to respondents after a Q&A submission.
type AnswerTally struct {
	AnswerCount    int `json:"answerCount"`
	CorrectCount   int `json:"correctCount"`
	IncorrectCount int `json:"incorrectCount"`
}

// VoteTally is returned to respondents after a poll submission.
type VoteTally struct {
	OptionVotes map[string]int `json:"optionVotes"`
}
