package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/internal/review"
	"qadam_backend/internal/scoring"
	"qadam_backend/internal/util"
	"qadam_backend/pkg/logger"
	"qadam_backend/pkg/monitoring"
	"qadam_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ResultStore interface {
	CreateCompletion(ctx context.Context, result *model.TestResult) (*model.TestResult, bool, error)
	FindByID(ctx context.Context, id string) (*model.TestResult, error)
	ListByUser(ctx context.Context, userID uint, page, limit int) ([]model.TestResult, int64, error)
}

// Leaderboard 排行榜镜像，写入失败不影响提交结果
type Leaderboard interface {
	RecordScore(ctx context.Context, userID uint, score int) error
}

type SubmissionRequest struct {
	VariantID    string              `json:"variantId"`
	Answers      scoring.AnswerSheet `json:"answers"`
	TimeSpent    *int                `json:"timeSpent"`
	SubmissionID string              `json:"submissionId,omitempty"`
}

// Validate 请求级校验，在任何读取之前执行
func (r *SubmissionRequest) Validate() error {
	switch {
	case r.VariantID == "":
		return fmt.Errorf("variantId is required: %w", util.ErrInvalidSubmission)
	case r.Answers == nil:
		return fmt.Errorf("answers are required: %w", util.ErrInvalidSubmission)
	case r.TimeSpent == nil:
		return fmt.Errorf("timeSpent is required: %w", util.ErrInvalidSubmission)
	case *r.TimeSpent < 0:
		return fmt.Errorf("timeSpent must not be negative: %w", util.ErrInvalidSubmission)
	case len(r.SubmissionID) > 80:
		return fmt.Errorf("submissionId is too long: %w", util.ErrInvalidSubmission)
	}
	return nil
}

type SubmissionResponse struct {
	Result      *model.TestResult     `json:"result"`
	TestData    []review.SubjectBlock `json:"testData"`
	UserAnswers scoring.AnswerSheet   `json:"userAnswers"`
	Duplicate   bool                  `json:"duplicate"`
}

type GuestResult struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	TotalPoints    int     `json:"totalPoints"`
	Percentage     float64 `json:"percentage"`
	TimeSpent      int     `json:"timeSpent"`
	IsGuestResult  bool    `json:"isGuestResult"`
}

type SubmissionService struct {
	Content     ContentReader
	Attempts    AttemptStore
	Results     ResultStore
	Leaderboard Leaderboard
	Notifier    Notifier
	Policy      *ExamPolicy

	now func() time.Time
	// dispatch 执行提交后的异步任务
	dispatch func(func())
}

func NewSubmissionService(content ContentReader, attempts AttemptStore, results ResultStore, board Leaderboard, notifier Notifier, policy *ExamPolicy) *SubmissionService {
	return &SubmissionService{
		Content:     content,
		Attempts:    attempts,
		Results:     results,
		Leaderboard: board,
		Notifier:    notifier,
		Policy:      policy,
		now:         time.Now,
		dispatch:    func(f func()) { go f() },
	}
}

func (s *SubmissionService) loadTree(ctx context.Context, variantID string) (*model.VariantTree, error) {
	ctx, span := tracing.Tracer.Start(ctx, "submission.load_tree")
	defer span.End()
	span.SetAttributes(attribute.String("variant.id", variantID))
	return LoadVariantTree(ctx, s.Content, variantID)
}

func reportIntegrity(variantID string, errs []*scoring.IntegrityError) {
	for _, ie := range errs {
		monitoring.IntegrityErrorCounter.Inc()
		logger.Log.Error("question cannot be graded",
			zap.String("variantId", variantID),
			zap.String("questionId", ie.QuestionID),
			zap.Int("answerCount", ie.AnswerCount),
			zap.Int("correctCount", ie.Correct),
			zap.String("reason", ie.Reason))
	}
}

// submissionKey 客户端未提供时使用当前草稿 id，保证同一草稿只产生一条成绩
func (s *SubmissionService) submissionKey(ctx context.Context, userID uint, req *SubmissionRequest) (string, error) {
	if req.SubmissionID != "" {
		return req.SubmissionID, nil
	}
	draft, err := s.Attempts.FindActive(ctx, userID, req.VariantID)
	if err == nil {
		return "attempt:" + draft.ID, nil
	}
	if errors.Is(err, util.ErrAttemptNotFound) {
		return "result:" + uuid.NewString(), nil
	}
	return "", err
}

// Submit 正式提交：评分、持久化、排名与通知
func (s *SubmissionService) Submit(ctx context.Context, userID uint, req SubmissionRequest) (*SubmissionResponse, error) {
	if err := req.Validate(); err != nil {
		monitoring.SubmissionCounter.WithLabelValues("auth", "rejected").Inc()
		return nil, err
	}

	ctx, span := tracing.Tracer.Start(ctx, "submission.submit")
	defer span.End()
	span.SetAttributes(attribute.Int("user.id", int(userID)))

	tree, err := s.loadTree(ctx, req.VariantID)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("auth", "error").Inc()
		return nil, err
	}

	payload := review.Build(tree, req.Answers)
	reportIntegrity(req.VariantID, payload.IntegrityErrors)

	key, err := s.submissionKey(ctx, userID, &req)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("auth", "error").Inc()
		return nil, fmt.Errorf("resolve submission key: %w", err)
	}

	result := &model.TestResult{
		UserID:         userID,
		VariantID:      req.VariantID,
		SubmissionKey:  key,
		Score:          payload.Summary.Score,
		TotalQuestions: payload.Summary.TotalQuestions,
		TotalPoints:    payload.Summary.TotalPoints,
		Percentage:     payload.Summary.Percentage,
		TimeSpent:      *req.TimeSpent,
		Answers:        req.Answers.Clone(),
		CompletedAt:    s.now(),
	}

	stored, created, err := s.Results.CreateCompletion(ctx, result)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("auth", "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("persist test result: %w", err)
	}

	if !created {
		monitoring.SubmissionCounter.WithLabelValues("auth", "duplicate").Inc()
		logger.Log.Info("duplicate submission, returning stored result",
			zap.Uint("userId", userID),
			zap.String("submissionKey", key),
			zap.String("resultId", stored.ID))
		payload = review.Build(tree, stored.Answers)
	} else {
		monitoring.SubmissionCounter.WithLabelValues("auth", "created").Inc()
		s.afterCommit(stored)
	}

	return &SubmissionResponse{
		Result:      stored,
		TestData:    payload.TestData,
		UserAnswers: payload.UserAnswers,
		Duplicate:   !created,
	}, nil
}

// SubmitGuest 访客提交：同样评分，但不落库、不发通知
func (s *SubmissionService) SubmitGuest(ctx context.Context, req SubmissionRequest) (*GuestResult, error) {
	if err := req.Validate(); err != nil {
		monitoring.SubmissionCounter.WithLabelValues("guest", "rejected").Inc()
		return nil, err
	}

	ctx, span := tracing.Tracer.Start(ctx, "submission.submit_guest")
	defer span.End()

	tree, err := s.loadTree(ctx, req.VariantID)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues("guest", "error").Inc()
		return nil, err
	}
	if !tree.Variant.IsFree {
		monitoring.SubmissionCounter.WithLabelValues("guest", "rejected").Inc()
		return nil, util.ErrVariantNotFree
	}

	sum := scoring.Tally(tree.ScoringQuestions(), req.Answers)
	reportIntegrity(req.VariantID, sum.IntegrityErrors)
	monitoring.SubmissionCounter.WithLabelValues("guest", "created").Inc()

	return &GuestResult{
		Score:          sum.Earned,
		TotalQuestions: sum.TotalQuestions,
		TotalPoints:    sum.TotalPoints,
		Percentage:     sum.Percentage(),
		TimeSpent:      *req.TimeSpent,
		IsGuestResult:  true,
	}, nil
}

func (s *SubmissionService) afterCommit(result *model.TestResult) {
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.Leaderboard != nil {
			if err := s.Leaderboard.RecordScore(ctx, result.UserID, result.Score); err != nil {
				logger.Log.Warn("leaderboard update failed", zap.Uint("userId", result.UserID), zap.Error(err))
			}
		}

		if s.Notifier == nil {
			return
		}
		for _, n := range s.notificationsFor(result) {
			if err := s.Notifier.CreateNotification(ctx, n); err != nil {
				logger.Log.Warn("notification failed",
					zap.Uint("userId", result.UserID),
					zap.String("type", string(n.Type)),
					zap.Error(err))
			}
		}
	})
}

func (s *SubmissionService) notificationsFor(result *model.TestResult) []*model.Notification {
	exam := s.Policy.Current()
	meta := model.JSONMap{
		"resultId":   result.ID,
		"variantId":  result.VariantID,
		"score":      result.Score,
		"percentage": result.Percentage,
	}

	list := []*model.Notification{{
		UserID:   result.UserID,
		Type:     model.NotificationTestCompleted,
		Title:    "Test completed",
		Message:  fmt.Sprintf("You scored %d of %d points (%.1f%%).", result.Score, result.TotalPoints, result.Percentage),
		Metadata: meta,
	}}

	switch {
	case result.Percentage >= exam.AchievementThreshold:
		list = append(list, &model.Notification{
			UserID:   result.UserID,
			Type:     model.NotificationAchievement,
			Title:    "Outstanding result",
			Message:  fmt.Sprintf("%.1f%% puts you among the best. Keep it up!", result.Percentage),
			Metadata: meta,
		})
	case result.Percentage >= exam.CongratsThreshold:
		list = append(list, &model.Notification{
			UserID:   result.UserID,
			Type:     model.NotificationCongrats,
			Title:    "Well done",
			Message:  fmt.Sprintf("You passed with %.1f%%.", result.Percentage),
			Metadata: meta,
		})
	}
	return list
}
