package model

import "qadam_backend/internal/scoring"

// Block 题库分组（如：ЕНТ 2025）
type Block struct {
	UUIDBase
	Title string `gorm:"size:255;not null" json:"title"`
	Order int    `gorm:"column:order;default:0" json:"order"`
}

func (Block) TableName() string {
	return "blocks"
}

// Variant 一套完整的限时试卷
type Variant struct {
	UUIDBase
	BlockID string `gorm:"index;type:varchar(36)" json:"blockId"`
	Title   string `gorm:"size:255;not null" json:"title"`
	IsFree  bool   `gorm:"default:false" json:"isFree"`
	Order   int    `gorm:"column:order;default:0" json:"order"`
}

func (Variant) TableName() string {
	return "variants"
}

type Subject struct {
	UUIDBase
	VariantID string `gorm:"index;type:varchar(36)" json:"variantId"`
	Name      string `gorm:"size:255;not null" json:"name"`
	Order     int    `gorm:"column:order;default:0" json:"order"`
}

func (Subject) TableName() string {
	return "subjects"
}

type Question struct {
	UUIDBase
	SubjectID        string   `gorm:"index;type:varchar(36)" json:"subjectId"`
	Text             string   `gorm:"type:text" json:"text"`
	ImageURL         string   `gorm:"size:512" json:"imageUrl,omitempty"`
	SolutionImageURL string   `gorm:"size:512" json:"solutionImageUrl,omitempty"`
	Order            int      `gorm:"column:order;default:0" json:"order"`
	Answers          []Answer `gorm:"-" json:"answers,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// Kind 根据答案数量判定题型（5 单选 / 8 多选）
func (q *Question) Kind() scoring.QuestionKind {
	return scoring.KindOf(len(q.Answers))
}

// ToScoring 转换为评分引擎使用的结构
func (q *Question) ToScoring() scoring.Question {
	answers := make([]scoring.Answer, len(q.Answers))
	for i, a := range q.Answers {
		answers[i] = scoring.Answer{ID: a.ID, IsCorrect: a.IsCorrect}
	}
	return scoring.NewQuestion(q.ID, answers)
}

type Answer struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36)" json:"questionId"`
	Text       string `gorm:"type:text" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	Order      int    `gorm:"column:order;default:0" json:"order"`
}

func (Answer) TableName() string {
	return "answers"
}

type SubjectTree struct {
	Subject   Subject
	Questions []Question
}

// VariantTree 试卷全量内容树（含正确答案），仅在服务端使用
type VariantTree struct {
	Variant  Variant
	Subjects []SubjectTree
}

// ScoringQuestions 按存储顺序展开全部题目
func (t *VariantTree) ScoringQuestions() []scoring.Question {
	var qs []scoring.Question
	for _, s := range t.Subjects {
		for i := range s.Questions {
			qs = append(qs, s.Questions[i].ToScoring())
		}
	}
	return qs
}

// QuestionKinds 题目 ID 到题型的映射
func (t *VariantTree) QuestionKinds() map[string]scoring.QuestionKind {
	kinds := make(map[string]scoring.QuestionKind)
	for _, s := range t.Subjects {
		for i := range s.Questions {
			kinds[s.Questions[i].ID] = s.Questions[i].Kind()
		}
	}
	return kinds
}
