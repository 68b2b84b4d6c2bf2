package repository

import (
	"context"
	"errors"
	"fmt"

	"qadam_backend/internal/model"
	"qadam_backend/internal/util"

	"gorm.io/gorm"
)

// ContentRepository 只读访问 Block → Variant → Subject → Question → Answer 内容树
type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) GetVariant(ctx context.Context, id string) (*model.Variant, error) {
	var v model.Variant
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("variant %s: %w", id, util.ErrVariantNotFound)
		}
		return nil, err
	}
	return &v, nil
}

func (r *ContentRepository) GetSubjectsByVariant(ctx context.Context, variantID string) ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.DB.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("`order` ASC").Order("id ASC").
		Find(&subjects).Error
	return subjects, err
}

func (r *ContentRepository) GetQuestionsBySubject(ctx context.Context, subjectID string) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("`order` ASC").Order("id ASC").
		Find(&questions).Error
	return questions, err
}

func (r *ContentRepository) GetAnswersByQuestion(ctx context.Context, questionID string) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("`order` ASC").Order("id ASC").
		Find(&answers).Error
	return answers, err
}
