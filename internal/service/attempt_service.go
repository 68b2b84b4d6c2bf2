package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/scoring"
	"qadam_backend/internal/util"
	"qadam_backend/pkg/logger"
	"qadam_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AttemptStore 草稿持久化
type AttemptStore interface {
	FindActive(ctx context.Context, userID uint, variantID string) (*model.TestAttempt, error)
	LoadOrCreate(ctx context.Context, userID uint, variantID string, now time.Time) (*model.TestAttempt, error)
	SaveProgress(ctx context.Context, u repository.ProgressUpdate) (bool, error)
	Abandon(ctx context.Context, userID uint, variantID string, now time.Time) error
	AbandonStale(ctx context.Context, budgetSeconds int, idleBefore time.Time) (int64, error)
}

type SessionView struct {
	Attempt          *model.TestAttempt `json:"attempt"`
	RemainingSeconds int                `json:"remainingSeconds"`
}

type SaveProgressRequest struct {
	Answers   scoring.AnswerSheet `json:"answers"`
	TimeSpent *int                `json:"timeSpent"`
	Seq       int64               `json:"seq"`
}

type SaveProgressResult struct {
	Applied     bool      `json:"applied"`
	LastSavedAt time.Time `json:"lastSavedAt"`
}

type AttemptService struct {
	Attempts AttemptStore
	Content  ContentReader
	Policy   *ExamPolicy
	now      func() time.Time
}

func NewAttemptService(attempts AttemptStore, content ContentReader, policy *ExamPolicy) *AttemptService {
	return &AttemptService{Attempts: attempts, Content: content, Policy: policy, now: time.Now}
}

func (s *AttemptService) remaining(timeSpent int) int {
	left := s.Policy.BudgetSeconds() - timeSpent
	if left < 0 {
		return 0
	}
	return left
}

// LoadOrCreate 返回当前草稿，不存在时创建
func (s *AttemptService) LoadOrCreate(ctx context.Context, userID uint, variantID string) (*SessionView, error) {
	if _, err := s.Content.GetVariant(ctx, variantID); err != nil {
		return nil, err
	}

	attempt, err := s.Attempts.LoadOrCreate(ctx, userID, variantID, s.now())
	if err != nil {
		return nil, err
	}
	if attempt.Answers == nil {
		attempt.Answers = scoring.AnswerSheet{}
	}
	return &SessionView{Attempt: attempt, RemainingSeconds: s.remaining(attempt.TimeSpentSeconds)}, nil
}

// Save 应用一次自动保存，seq 不大于已存储值的写入被丢弃
func (s *AttemptService) Save(ctx context.Context, userID uint, variantID string, req SaveProgressRequest) (*SaveProgressResult, error) {
	if req.TimeSpent == nil || *req.TimeSpent < 0 || req.Seq <= 0 {
		monitoring.AutosaveCounter.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("timeSpent and a positive seq are required: %w", util.ErrInvalidSubmission)
	}

	timeSpent := *req.TimeSpent
	if budget := s.Policy.BudgetSeconds(); timeSpent > budget {
		timeSpent = budget
	}

	now := s.now()
	applied, err := s.Attempts.SaveProgress(ctx, repository.ProgressUpdate{
		UserID:    userID,
		VariantID: variantID,
		Answers:   req.Answers,
		TimeSpent: timeSpent,
		Seq:       req.Seq,
		SavedAt:   now,
	})
	if err != nil {
		if errors.Is(err, util.ErrAttemptNotActive) {
			monitoring.AutosaveCounter.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	if !applied {
		monitoring.AutosaveCounter.WithLabelValues("stale").Inc()
		logger.Log.Debug("stale autosave dropped",
			zap.Uint("userId", userID),
			zap.String("variantId", variantID),
			zap.Int64("seq", req.Seq))
		return &SaveProgressResult{Applied: false, LastSavedAt: now}, nil
	}

	monitoring.AutosaveCounter.WithLabelValues("applied").Inc()
	return &SaveProgressResult{Applied: true, LastSavedAt: now}, nil
}

func (s *AttemptService) Abandon(ctx context.Context, userID uint, variantID string) error {
	return s.Attempts.Abandon(ctx, userID, variantID, s.now())
}

// Sweep 放弃已耗尽时间或闲置超过时间预算的草稿
func (s *AttemptService) Sweep(ctx context.Context) (int64, error) {
	budget := s.Policy.TimeBudget()
	return s.Attempts.AbandonStale(ctx, s.Policy.BudgetSeconds(), s.now().Add(-budget))
}

// RunSweeper 周期执行 Sweep，ctx 取消后退出
func (s *AttemptService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Log.Error("draft sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("stale drafts abandoned", zap.Int64("count", n))
			}
		}
	}
}
