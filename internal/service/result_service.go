package service

import (
	"context"

	"qadam_backend/internal/model"
	"qadam_backend/internal/review"
	"qadam_backend/internal/util"
)

type ReviewResponse struct {
	Result *model.TestResult `json:"result"`
	review.Payload
}

type ResultService struct {
	Results ResultStore
	Content ContentReader
	Storage StorageProvider
}

func NewResultService(results ResultStore, content ContentReader, storage StorageProvider) *ResultService {
	return &ResultService{Results: results, Content: content, Storage: storage}
}

func (s *ResultService) List(ctx context.Context, userID uint, page, limit int) ([]model.TestResult, int64, error) {
	return s.Results.ListByUser(ctx, userID, page, limit)
}

// Review 只允许成绩所有者查看，得分由存储的作答重新计算
func (s *ResultService) Review(ctx context.Context, userID uint, resultID string) (*ReviewResponse, error) {
	result, err := s.Results.FindByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result.UserID != userID {
		return nil, util.ErrPermissionDenied
	}

	tree, err := LoadVariantTree(ctx, s.Content, result.VariantID)
	if err != nil {
		return nil, err
	}

	payload := review.Build(tree, result.Answers)
	reportIntegrity(result.VariantID, payload.IntegrityErrors)
	if err := s.resolveImages(ctx, payload.TestData); err != nil {
		return nil, err
	}
	return &ReviewResponse{Result: result, Payload: payload}, nil
}

func (s *ResultService) resolveImages(ctx context.Context, blocks []review.SubjectBlock) error {
	for i := range blocks {
		for j := range blocks[i].Questions {
			q := &blocks[i].Questions[j]
			var err error
			if q.ImageURL, err = resolveImage(ctx, s.Storage, q.ImageURL); err != nil {
				return err
			}
			if q.SolutionImageURL, err = resolveImage(ctx, s.Storage, q.SolutionImageURL); err != nil {
				return err
			}
		}
	}
	return nil
}
