package model

import (
	"fmt"
	"time"

	"qadam_backend/internal/scoring"
)

type AttemptStatus string

const (
	AttemptDraft     AttemptStatus = "draft"
	AttemptCompleted AttemptStatus = "completed"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// TestAttempt 进行中的答题会话（草稿）
//
// ActiveKey 仅在 draft 状态下有值，唯一索引保证同一 (user, variant) 至多一个草稿。
type TestAttempt struct {
	UUIDBase
	UserID           uint                `gorm:"index;type:bigint unsigned" json:"userId"`
	VariantID        string              `gorm:"index;type:varchar(36)" json:"variantId"`
	ActiveKey        *string             `gorm:"uniqueIndex;size:80" json:"-"`
	Answers          scoring.AnswerSheet `gorm:"type:json" json:"answers"`
	TimeSpentSeconds int                 `gorm:"default:0" json:"timeSpent"`
	Status           AttemptStatus       `gorm:"type:varchar(16);index;default:'draft'" json:"status"`
	SaveSeq          int64               `gorm:"default:0" json:"saveSeq"`
	StartedAt        time.Time           `json:"startedAt"`
	LastSavedAt      time.Time           `json:"lastSavedAt"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

func ActiveAttemptKey(userID uint, variantID string) string {
	return fmt.Sprintf("%d:%s", userID, variantID)
}
