// Package scoring grades single and multiple choice questions. Everything in
// it is side-effect free so live submission, guest submission and the review
// payload all reach the same numbers.
package scoring

import (
	"fmt"
)

// QuestionKind is derived once from the answer count when a question is loaded.
type QuestionKind int

const (
	KindInvalid QuestionKind = iota
	KindEmpty
	KindSingle
	KindMulti
)

const (
	SingleAnswerCount = 5
	MultiAnswerCount  = 8
	MultiCorrectCount = 3
	// MaxMultiSelection is the number of ids a learner may hold on a multi question.
	MaxMultiSelection = MultiCorrectCount
)

func KindOf(answerCount int) QuestionKind {
	switch answerCount {
	case 0:
		return KindEmpty
	case SingleAnswerCount:
		return KindSingle
	case MultiAnswerCount:
		return KindMulti
	default:
		return KindInvalid
	}
}

func (k QuestionKind) Points() int {
	switch k {
	case KindSingle:
		return 1
	case KindMulti:
		return 2
	default:
		return 0
	}
}

func (k QuestionKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindSingle:
		return "single"
	case KindMulti:
		return "multiple"
	default:
		return "invalid"
	}
}

type Answer struct {
	ID        string
	IsCorrect bool
}

type Question struct {
	ID      string
	Kind    QuestionKind
	Answers []Answer
}

// NewQuestion builds a question and derives its kind from the answers.
func NewQuestion(id string, answers []Answer) Question {
	return Question{ID: id, Kind: KindOf(len(answers)), Answers: answers}
}

type Points struct {
	Earned   int `json:"earned"`
	Possible int `json:"possible"`
}

// IntegrityError flags a question whose shape cannot be graded. It points at
// a content authoring defect, not at the learner's answer.
type IntegrityError struct {
	QuestionID  string
	AnswerCount int
	Correct     int
	Reason      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("question %s: %s (answers=%d, correct=%d)", e.QuestionID, e.Reason, e.AnswerCount, e.Correct)
}

func correctCount(q Question) int {
	n := 0
	for _, a := range q.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// Score grades one question. Invalid questions return {0,0} together with an
// *IntegrityError; a missing or wrongly shaped answer simply earns 0.
func Score(q Question, v AnswerValue) (Points, error) {
	kind := q.Kind
	if kind != KindInvalid && kind != KindOf(len(q.Answers)) {
		return Points{}, &IntegrityError{
			QuestionID:  q.ID,
			AnswerCount: len(q.Answers),
			Correct:     correctCount(q),
			Reason:      "kind " + kind.String() + " does not match answer count",
		}
	}

	switch kind {
	case KindEmpty:
		return Points{}, nil
	case KindSingle:
		p := Points{Possible: kind.Points()}
		id, ok := v.SingleID()
		if !ok {
			return p, nil
		}
		for _, a := range q.Answers {
			if a.ID == id && a.IsCorrect {
				p.Earned = p.Possible
				break
			}
		}
		return p, nil
	case KindMulti:
		if n := correctCount(q); n != MultiCorrectCount {
			return Points{}, &IntegrityError{
				QuestionID:  q.ID,
				AnswerCount: len(q.Answers),
				Correct:     n,
				Reason:      "multiple choice question must have exactly 3 correct answers",
			}
		}
		p := Points{Possible: kind.Points()}
		if !v.IsMulti() {
			return p, nil
		}
		correct, wrong := 0, 0
		for _, a := range q.Answers {
			if !v.Contains(a.ID) {
				continue
			}
			if a.IsCorrect {
				correct++
			} else {
				wrong++
			}
		}
		if correct == MultiCorrectCount && wrong == 0 {
			p.Earned = p.Possible
		}
		return p, nil
	default:
		return Points{}, &IntegrityError{
			QuestionID:  q.ID,
			AnswerCount: len(q.Answers),
			Correct:     correctCount(q),
			Reason:      "unsupported answer count",
		}
	}
}

// IsSelected reports whether answerID is part of the learner's selection for
// a question of the given kind. It follows Score: a scalar counts only on a
// single choice question and an array only on a multiple choice one.
func IsSelected(kind QuestionKind, v AnswerValue, answerID string) bool {
	switch kind {
	case KindSingle:
		id, ok := v.SingleID()
		return ok && id == answerID
	case KindMulti:
		return v.IsMulti() && v.Contains(answerID)
	default:
		return false
	}
}

// Percentage returns earned/total*100, or 0 when there is nothing to earn.
func Percentage(earned, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(earned) / float64(total) * 100
}

type Outcome struct {
	QuestionID string
	Kind       QuestionKind
	Points     Points
	Err        error
}

type Summary struct {
	Earned          int
	TotalPoints     int
	TotalQuestions  int
	Outcomes        []Outcome
	IntegrityErrors []*IntegrityError
}

func (s Summary) Percentage() float64 {
	return Percentage(s.Earned, s.TotalPoints)
}

// Tally scores every question against the sheet in the given order.
func Tally(questions []Question, sheet AnswerSheet) Summary {
	sum := Summary{Outcomes: make([]Outcome, 0, len(questions))}
	for _, q := range questions {
		p, err := Score(q, sheet[q.ID])
		sum.Earned += p.Earned
		sum.TotalPoints += p.Possible
		sum.TotalQuestions++
		if ie, ok := err.(*IntegrityError); ok {
			sum.IntegrityErrors = append(sum.IntegrityErrors, ie)
		}
		sum.Outcomes = append(sum.Outcomes, Outcome{
			QuestionID: q.ID,
			Kind:       q.Kind,
			Points:     p,
			Err:        err,
		})
	}
	return sum
}
