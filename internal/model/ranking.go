package model

import "time"

// UserRanking 用户排名聚合，每次正式提交时在同一事务内更新
type UserRanking struct {
	UserID          uint      `gorm:"primaryKey;type:bigint unsigned" json:"userId"`
	TestsCompleted  int       `gorm:"default:0" json:"testsCompleted"`
	TotalScore      int       `gorm:"default:0" json:"totalScore"`
	TotalPoints     int       `gorm:"default:0" json:"totalPoints"`
	BestPercentage  float64   `gorm:"default:0" json:"bestPercentage"`
	LastCompletedAt time.Time `json:"lastCompletedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (UserRanking) TableName() string {
	return "user_rankings"
}
