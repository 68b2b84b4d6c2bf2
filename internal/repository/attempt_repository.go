package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/internal/scoring"
	"qadam_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// ProgressUpdate 一次自动保存的内容
type ProgressUpdate struct {
	UserID    uint
	VariantID string
	Answers   scoring.AnswerSheet
	TimeSpent int
	Seq       int64
	SavedAt   time.Time
}

func (r *AttemptRepository) FindActive(ctx context.Context, userID uint, variantID string) (*model.TestAttempt, error) {
	var a model.TestAttempt
	err := r.DB.WithContext(ctx).
		Where("active_key = ? AND status = ?", model.ActiveAttemptKey(userID, variantID), model.AttemptDraft).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

// LoadOrCreate 返回 (user, variant) 的草稿，不存在时插入。
// 并发创建由 active_key 唯一索引兜底，冲突时不做任何更新。
func (r *AttemptRepository) LoadOrCreate(ctx context.Context, userID uint, variantID string, now time.Time) (*model.TestAttempt, error) {
	key := model.ActiveAttemptKey(userID, variantID)
	draft := model.TestAttempt{
		UserID:      userID,
		VariantID:   variantID,
		ActiveKey:   &key,
		Answers:     scoring.AnswerSheet{},
		Status:      model.AttemptDraft,
		StartedAt:   now,
		LastSavedAt: now,
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "active_key"}}, DoNothing: true}).
		Create(&draft).Error
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	return r.FindActive(ctx, userID, variantID)
}

// SaveProgress 仅当草稿仍处于 draft 且 seq 更新时写入。
// 返回 false 表示该写入已过期（服务端已有更新的快照）。
func (r *AttemptRepository) SaveProgress(ctx context.Context, u ProgressUpdate) (bool, error) {
	key := model.ActiveAttemptKey(u.UserID, u.VariantID)
	answers := u.Answers
	if answers == nil {
		answers = scoring.AnswerSheet{}
	}

	res := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).
		Where("active_key = ? AND status = ? AND save_seq < ?", key, model.AttemptDraft, u.Seq).
		Updates(map[string]interface{}{
			"answers":            answers,
			"time_spent_seconds": u.TimeSpent,
			"save_seq":           u.Seq,
			"last_saved_at":      u.SavedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// 区分“过期写入”与“草稿已不存在”
	if _, err := r.FindActive(ctx, u.UserID, u.VariantID); err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) {
			return false, util.ErrAttemptNotActive
		}
		return false, err
	}
	return false, nil
}

func (r *AttemptRepository) Abandon(ctx context.Context, userID uint, variantID string, now time.Time) error {
	res := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).
		Where("active_key = ? AND status = ?", model.ActiveAttemptKey(userID, variantID), model.AttemptDraft).
		Updates(map[string]interface{}{
			"status":        model.AttemptAbandoned,
			"active_key":    gorm.Expr("NULL"),
			"last_saved_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrAttemptNotActive
	}
	return nil
}

// AbandonStale 将超时或长时间未保存的草稿置为 abandoned
func (r *AttemptRepository) AbandonStale(ctx context.Context, budgetSeconds int, idleBefore time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).
		Where("status = ? AND (time_spent_seconds >= ? OR last_saved_at < ?)", model.AttemptDraft, budgetSeconds, idleBefore).
		Updates(map[string]interface{}{
			"status":     model.AttemptAbandoned,
			"active_key": gorm.Expr("NULL"),
		})
	return res.RowsAffected, res.Error
}
