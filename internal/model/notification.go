package model

type NotificationType string

const (
	NotificationTestCompleted NotificationType = "test_completed"
	NotificationAchievement   NotificationType = "achievement"
	NotificationCongrats      NotificationType = "congratulation"
)

// swagger:model Notification
type Notification struct {
	BaseModel
	UserID   uint             `gorm:"index;type:bigint unsigned" json:"userId"`
	Type     NotificationType `gorm:"type:varchar(32)" json:"type"`
	Title    string           `gorm:"size:255" json:"title"`
	Message  string           `gorm:"type:text" json:"message"`
	Metadata JSONMap          `gorm:"type:json" json:"metadata,omitempty"`
	Read     bool             `gorm:"default:false" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
