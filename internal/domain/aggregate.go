package domain

import (
	"fmt"
	"strconv"
	"time"
)

// ResponseTally is the counter delta a batch of responses applies to one question.
type ResponseTally struct {
	Answers   int
	Correct   int
	Incorrect int
}

// TallyResponses folds a batch into per-question deltas so stores can apply
// the whole batch in one atomic step.
func TallyResponses(responses []Response) map[string]ResponseTally {
	tallies := make(map[string]ResponseTally, len(responses))
	for _, r := range responses {
		t := tallies[r.QuestionID]
		t.Answers++
		if r.IsCorrect {
			t.Correct++
		} else {
			t.Incorrect++
		}
		tallies[r.QuestionID] = t
	}
	return tallies
}

// TallyVotes folds a batch of poll votes into questionID -> option key -> delta.
func TallyVotes(votes []PollVote) map[string]map[string]int {
	tallies := make(map[string]map[string]int, len(votes))
	for _, v := range votes {
		perOption, ok := tallies[v.QuestionID]
		if !ok {
			perOption = make(map[string]int)
			tallies[v.QuestionID] = perOption
		}
		perOption[OptionKey(v.SelectedOption)]++
	}
	return tallies
}

// OptionKey is the optionVotes map key for an option index.
func OptionKey(index int) string {
	return strconv.Itoa(index)
}

// ValidateVotes rejects votes that cannot be keyed into optionVotes.
func ValidateVotes(votes []PollVote) error {
	for i, v := range votes {
		if v.SelectedOption < 0 {
			return fmt.Errorf("%w: vote %d selects option %d", ErrInvalidResponse, i, v.SelectedOption)
		}
	}
	return nil
}

// ApplyResponseTallies adds deltas to matching questions. Unknown question IDs
// are ignored. It returns the number of questions touched.
func (q *Quiz) ApplyResponseTallies(tallies map[string]ResponseTally) int {
	touched := 0
	for i := range q.Questions {
		t, ok := tallies[q.Questions[i].ID]
		if !ok {
			continue
		}
		q.Questions[i].AnswerCount += t.Answers
		q.Questions[i].CorrectCount += t.Correct
		q.Questions[i].IncorrectCount += t.Incorrect
		touched++
	}
	return touched
}

// ApplyVoteTallies adds poll deltas to matching questions, creating option
// keys on first vote. Unknown question IDs are ignored.
func (q *Quiz) ApplyVoteTallies(tallies map[string]map[string]int) int {
	touched := 0
	for i := range q.Questions {
		perOption, ok := tallies[q.Questions[i].ID]
		if !ok {
			continue
		}
		if q.Questions[i].OptionVotes == nil {
			q.Questions[i].OptionVotes = make(map[string]int, len(perOption))
		}
		for key, n := range perOption {
			q.Questions[i].OptionVotes[key] += n
		}
		touched++
	}
	return touched
}

// AnswerTallies projects the Q&A counters in question order.
func (q Quiz) AnswerTallies() []AnswerTally {
	out := make([]AnswerTally, 0, len(q.Questions))
	for _, question := range q.Questions {
		out = append(out, AnswerTally{
			AnswerCount:    question.AnswerCount,
			CorrectCount:   question.CorrectCount,
			IncorrectCount: question.IncorrectCount,
		})
	}
	return out
}

// VoteTallies projects the poll counters in question order.
func (q Quiz) VoteTallies() []VoteTally {
	out := make([]VoteTally, 0, len(q.Questions))
	for _, question := range q.Questions {
		out = append(out, VoteTally{OptionVotes: copyVotes(question.OptionVotes)})
	}
	return out
}

// Analytics builds the owner-facing analytics projection.
func (q Quiz) Analytics() QuizAnalytics {
	details := make([]QuestionAnalytics, 0, len(q.Questions))
	for _, question := range q.Questions {
		details = append(details, QuestionAnalytics{
			QuestionID:     question.ID,
			QuestionText:   question.QuestionText,
			CorrectAnswer:  question.CorrectAnswer,
			AnswerCount:    question.AnswerCount,
			CorrectCount:   question.CorrectCount,
			IncorrectCount: question.IncorrectCount,
			OptionVotes:    copyVotes(question.OptionVotes),
		})
	}
	return QuizAnalytics{
		QuizID:      q.ID,
		QuizName:    q.QuizName,
		QuizType:    q.QuizType,
		Impression:  q.Impression,
		CreatedOn:   q.CreatedOn,
		Revision:    q.Revision,
		QuizDetails: details,
	}
}

// BuildDashboard summarizes a user's quizzes.
func BuildDashboard(quizzes []Quiz) Dashboard {
	d := Dashboard{
		NumberOfQuizzes: len(quizzes),
		QuizDetails:     make([]QuizSummary, 0, len(quizzes)),
	}
	for _, q := range quizzes {
		d.TotalNumberOfQuestions += len(q.Questions)
		d.TotalImpressions += q.Impression
		d.QuizDetails = append(d.QuizDetails, QuizSummary{
			QuizName:   q.QuizName,
			QuizType:   q.QuizType,
			CreatedOn:  q.CreatedOn,
			Impression: q.Impression,
			QuizID:     q.ID,
		})
	}
	return d
}

// NewQuiz validates a draft and turns it into a fresh document owned by userID.
func NewQuiz(userID string, draft QuizDraft, now time.Time) (Quiz, error) {
	if draft.QuizName == "" || draft.QuizType == "" {
		return Quiz{}, ErrQuizFieldsRequired
	}
	if !draft.QuizType.Valid() {
		return Quiz{}, fmt.Errorf("%w: unknown quiz type %q", ErrInvalidQuiz, draft.QuizType)
	}
	questions, err := PrepareQuestions(nil, draft.Questions)
	if err != nil {
		return Quiz{}, err
	}
	return Quiz{
		ID:        NewID(),
		UserID:    userID,
		QuizName:  draft.QuizName,
		QuizType:  draft.QuizType,
		Questions: questions,
		CreatedOn: now.UTC(),
	}, nil
}

// PrepareQuestions validates an incoming question list and assigns IDs.
// Counters are server-owned: a question whose ID matches one in existing keeps
// its ID and counters, every other question gets a fresh ID and starts from zero.
func PrepareQuestions(existing, incoming []Question) ([]Question, error) {
	known := make(map[string]Question, len(existing))
	for _, q := range existing {
		known[q.ID] = q
	}

	out := make([]Question, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for i, q := range incoming {
		if q.CorrectAnswer != nil && (*q.CorrectAnswer < 0 || *q.CorrectAnswer >= len(q.Options)) {
			return nil, fmt.Errorf("%w: question %d has correctAnswer %d outside its %d options",
				ErrInvalidQuiz, i, *q.CorrectAnswer, len(q.Options))
		}
		switch q.OptionType {
		case "", OptionTypeText, OptionTypeImage, OptionTypeTextAndImage:
		default:
			return nil, fmt.Errorf("%w: question %d has unknown optionType %q", ErrInvalidQuiz, i, q.OptionType)
		}

		prev, retained := known[q.ID]
		if _, dup := seen[q.ID]; dup || !retained {
			retained = false
			q.ID = NewID()
		}
		seen[q.ID] = struct{}{}

		if retained {
			q.AnswerCount = prev.AnswerCount
			q.CorrectCount = prev.CorrectCount
			q.IncorrectCount = prev.IncorrectCount
			q.OptionVotes = copyVotes(prev.OptionVotes)
		} else {
			q.AnswerCount, q.CorrectCount, q.IncorrectCount = 0, 0, 0
			q.OptionVotes = map[string]int{}
		}
		if q.Options == nil {
			q.Options = []Option{}
		}
		out = append(out, q)
	}
	return out, nil
}

// Clone returns a deep copy so callers can mutate without sharing maps.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]Option(nil), question.Options...)
		question.OptionVotes = copyVotes(question.OptionVotes)
		if question.CorrectAnswer != nil {
			v := *question.CorrectAnswer
			question.CorrectAnswer = &v
		}
		out.Questions[i] = question
	}
	return out
}

func copyVotes(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
