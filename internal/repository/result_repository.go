package repository

import (
	"context"
	"errors"
	"fmt"

	"qadam_backend/internal/model"
	"qadam_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

// CreateCompletion 在同一事务中写入成绩、结束草稿并更新排名聚合。
// submission_key 冲突时返回已存在的成绩，created 为 false。
func (r *ResultRepository) CreateCompletion(ctx context.Context, result *model.TestResult) (*model.TestResult, bool, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(result).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.TestAttempt{}).
			Where("active_key = ? AND status = ?", model.ActiveAttemptKey(result.UserID, result.VariantID), model.AttemptDraft).
			Updates(map[string]interface{}{
				"status":             model.AttemptCompleted,
				"active_key":         gorm.Expr("NULL"),
				"answers":            result.Answers,
				"time_spent_seconds": result.TimeSpent,
				"last_saved_at":      result.CompletedAt,
			}).Error; err != nil {
			return fmt.Errorf("complete draft: %w", err)
		}

		ranking := model.UserRanking{
			UserID:          result.UserID,
			TestsCompleted:  1,
			TotalScore:      result.Score,
			TotalPoints:     result.TotalPoints,
			BestPercentage:  result.Percentage,
			LastCompletedAt: result.CompletedAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"tests_completed":   gorm.Expr("tests_completed + 1"),
				"total_score":       gorm.Expr("total_score + ?", result.Score),
				"total_points":      gorm.Expr("total_points + ?", result.TotalPoints),
				"best_percentage":   gorm.Expr("GREATEST(best_percentage, ?)", result.Percentage),
				"last_completed_at": result.CompletedAt,
				"updated_at":        gorm.Expr("NOW()"),
			}),
		}).Create(&ranking).Error
	})

	if err == nil {
		return result, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	existing, findErr := r.FindBySubmissionKey(ctx, result.SubmissionKey)
	if findErr != nil {
		return nil, false, findErr
	}
	return existing, false, nil
}

func (r *ResultRepository) FindByID(ctx context.Context, id string) (*model.TestResult, error) {
	var res model.TestResult
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrResultNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *ResultRepository) FindBySubmissionKey(ctx context.Context, key string) (*model.TestResult, error) {
	var res model.TestResult
	if err := r.DB.WithContext(ctx).Where("submission_key = ?", key).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrResultNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ListByUser 按完成时间倒序分页
func (r *ResultRepository) ListByUser(ctx context.Context, userID uint, page, limit int) ([]model.TestResult, int64, error) {
	var (
		results []model.TestResult
		total   int64
	)
	q := r.DB.WithContext(ctx).Model(&model.TestResult{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("completed_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error
	return results, total, err
}
