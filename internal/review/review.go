// Package review annotates a finished attempt for read-only replay.
package review

import (
	"qadam_backend/internal/model"
	"qadam_backend/internal/scoring"
)

type AnswerState string

const (
	SelectedCorrect     AnswerState = "selected_correct"
	SelectedIncorrect   AnswerState = "selected_incorrect"
	MissedCorrect       AnswerState = "missed_correct"
	UnselectedIncorrect AnswerState = "unselected_incorrect"
)

func StateOf(selected, correct bool) AnswerState {
	switch {
	case selected && correct:
		return SelectedCorrect
	case selected:
		return SelectedIncorrect
	case correct:
		return MissedCorrect
	default:
		return UnselectedIncorrect
	}
}

type VariantView struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	IsFree bool   `json:"isFree"`
}

type SubjectView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type AnswerView struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	IsCorrect bool        `json:"isCorrect"`
	Selected  bool        `json:"selected"`
	State     AnswerState `json:"state"`
}

type QuestionView struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	SolutionImageURL string         `json:"solutionImageUrl,omitempty"`
	Kind             string         `json:"kind"`
	Points           scoring.Points `json:"points"`
	Answers          []AnswerView   `json:"answers"`
}

type SubjectBlock struct {
	Subject   SubjectView    `json:"subject"`
	Questions []QuestionView `json:"questions"`
}

type Summary struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	TotalPoints    int     `json:"totalPoints"`
	Percentage     float64 `json:"percentage"`
}

type Payload struct {
	Variant     VariantView         `json:"variant"`
	TestData    []SubjectBlock      `json:"testData"`
	UserAnswers scoring.AnswerSheet `json:"userAnswers"`
	Summary     Summary             `json:"summary"`

	IntegrityErrors []*scoring.IntegrityError `json:"-"`
}

// Build scores the tree against the sheet and attaches a state to every
// answer. Selection and correctness come from the scoring package only.
func Build(tree *model.VariantTree, sheet scoring.AnswerSheet) Payload {
	if sheet == nil {
		sheet = scoring.AnswerSheet{}
	}
	sum := scoring.Tally(tree.ScoringQuestions(), sheet)
	points := make(map[string]scoring.Points, len(sum.Outcomes))
	for _, o := range sum.Outcomes {
		points[o.QuestionID] = o.Points
	}

	p := Payload{
		Variant: VariantView{
			ID:     tree.Variant.ID,
			Title:  tree.Variant.Title,
			IsFree: tree.Variant.IsFree,
		},
		TestData:    make([]SubjectBlock, 0, len(tree.Subjects)),
		UserAnswers: sheet,
		Summary: Summary{
			Score:          sum.Earned,
			TotalQuestions: sum.TotalQuestions,
			TotalPoints:    sum.TotalPoints,
			Percentage:     sum.Percentage(),
		},
		IntegrityErrors: sum.IntegrityErrors,
	}

	for _, st := range tree.Subjects {
		block := SubjectBlock{
			Subject: SubjectView{
				ID:    st.Subject.ID,
				Name:  st.Subject.Name,
				Order: st.Subject.Order,
			},
			Questions: make([]QuestionView, 0, len(st.Questions)),
		}
		for i := range st.Questions {
			q := &st.Questions[i]
			kind := q.Kind()
			value := sheet[q.ID]
			qv := QuestionView{
				ID:               q.ID,
				Text:             q.Text,
				ImageURL:         q.ImageURL,
				SolutionImageURL: q.SolutionImageURL,
				Kind:             kind.String(),
				Points:           points[q.ID],
				Answers:          make([]AnswerView, 0, len(q.Answers)),
			}
			for _, a := range q.Answers {
				selected := scoring.IsSelected(kind, value, a.ID)
				qv.Answers = append(qv.Answers, AnswerView{
					ID:        a.ID,
					Text:      a.Text,
					IsCorrect: a.IsCorrect,
					Selected:  selected,
					State:     StateOf(selected, a.IsCorrect),
				})
			}
			block.Questions = append(block.Questions, qv)
		}
		p.TestData = append(p.TestData, block)
	}
	return p
}
