package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/pkg/logger"
	"qadam_backend/pkg/monitoring"

	"go.uber.org/zap"
)

type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID uint, page, limit int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userID, id uint) error
}

// EventPublisher 消息队列发布，RabbitMQClient 实现该接口
type EventPublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Notifier 提交流程依赖的通知出口
type Notifier interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// NotificationEvent 投递给下游推送服务的消息体
type NotificationEvent struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type NotificationService struct {
	Repo      NotificationStore
	Publisher EventPublisher
	Queue     string
}

func NewNotificationService(repo NotificationStore, publisher EventPublisher, queue string) *NotificationService {
	return &NotificationService{Repo: repo, Publisher: publisher, Queue: queue}
}

// CreateNotification 先入库，再尽力投递到队列
func (s *NotificationService) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := s.Repo.Create(ctx, n); err != nil {
		monitoring.NotificationFailures.Inc()
		return fmt.Errorf("store notification: %w", err)
	}

	if s.Publisher == nil {
		return nil
	}

	body, err := json.Marshal(NotificationEvent{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := s.Publisher.Publish(ctx, s.Queue, body); err != nil {
		monitoring.NotificationFailures.Inc()
		logger.Log.Warn("publish notification event failed",
			zap.Uint("userId", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, page, limit int) ([]model.Notification, int64, error) {
	return s.Repo.ListByUser(ctx, userID, page, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	return s.Repo.MarkRead(ctx, userID, id)
}
