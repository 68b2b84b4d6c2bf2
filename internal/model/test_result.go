package model

import (
	"time"

	"qadam_backend/internal/scoring"
)

// TestResult 提交后生成的不可变成绩记录
type TestResult struct {
	UUIDBase
	UserID         uint                `gorm:"index;type:bigint unsigned" json:"userId"`
	VariantID      string              `gorm:"index;type:varchar(36)" json:"variantId"`
	SubmissionKey  string              `gorm:"uniqueIndex;size:80;not null" json:"submissionKey"`
	Score          int                 `gorm:"not null" json:"score"`
	TotalQuestions int                 `gorm:"not null" json:"totalQuestions"`
	TotalPoints    int                 `gorm:"not null" json:"totalPoints"`
	Percentage     float64             `gorm:"not null" json:"percentage"`
	TimeSpent      int                 `gorm:"not null" json:"timeSpent"`
	Answers        scoring.AnswerSheet `gorm:"type:json" json:"answers"`
	CompletedAt    time.Time           `gorm:"index" json:"completedAt"`
}

func (TestResult) TableName() string {
	return "test_results"
}
