package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/internal/review"
	"qadam_backend/internal/util"
	"qadam_backend/pkg/kv"
	"qadam_backend/pkg/logger"

	"go.uber.org/zap"
)

// ContentReader 内容树的只读访问
type ContentReader interface {
	GetVariant(ctx context.Context, id string) (*model.Variant, error)
	GetSubjectsByVariant(ctx context.Context, variantID string) ([]model.Subject, error)
	GetQuestionsBySubject(ctx context.Context, subjectID string) ([]model.Question, error)
	GetAnswersByQuestion(ctx context.Context, questionID string) ([]model.Answer, error)
}

// LoadVariantTree 按存储顺序组装完整内容树（含正确答案）
func LoadVariantTree(ctx context.Context, content ContentReader, variantID string) (*model.VariantTree, error) {
	variant, err := content.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	subjects, err := content.GetSubjectsByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	tree := &model.VariantTree{Variant: *variant, Subjects: make([]model.SubjectTree, 0, len(subjects))}
	for _, subject := range subjects {
		questions, err := content.GetQuestionsBySubject(ctx, subject.ID)
		if err != nil {
			return nil, fmt.Errorf("load questions of subject %s: %w", subject.ID, err)
		}
		for i := range questions {
			answers, err := content.GetAnswersByQuestion(ctx, questions[i].ID)
			if err != nil {
				return nil, fmt.Errorf("load answers of question %s: %w", questions[i].ID, err)
			}
			questions[i].Answers = answers
		}
		tree.Subjects = append(tree.Subjects, model.SubjectTree{Subject: subject, Questions: questions})
	}
	return tree, nil
}

// 答题前下发的结构，不含 isCorrect
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type TestQuestion struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	SolutionImageURL string         `json:"solutionImageUrl,omitempty"`
	Kind             string         `json:"kind"`
	Answers          []AnswerOption `json:"answers"`
}

type TestSubject struct {
	Subject   review.SubjectView `json:"subject"`
	Questions []TestQuestion     `json:"questions"`
}

type TestPayload struct {
	Variant  review.VariantView `json:"variant"`
	TestData []TestSubject      `json:"testData"`
}

type TestService struct {
	Content ContentReader
	Cache   kv.Store
	Storage StorageProvider
	Policy  *ExamPolicy
}

func NewTestService(content ContentReader, cache kv.Store, storage StorageProvider, policy *ExamPolicy) *TestService {
	return &TestService{Content: content, Cache: cache, Storage: storage, Policy: policy}
}

func testCacheKey(variantID string) string {
	return "test_payload:" + variantID
}

// Payload 返回答题用试卷。guest 仅能访问免费试卷。
func (s *TestService) Payload(ctx context.Context, variantID string, guest bool) (*TestPayload, error) {
	if variantID == "" {
		return nil, fmt.Errorf("variant id is required: %w", util.ErrInvalidSubmission)
	}

	if cached, ok := s.cached(ctx, variantID); ok {
		if guest && !cached.Variant.IsFree {
			return nil, util.ErrVariantNotFree
		}
		return cached, nil
	}

	tree, err := LoadVariantTree(ctx, s.Content, variantID)
	if err != nil {
		return nil, err
	}
	if guest && !tree.Variant.IsFree {
		return nil, util.ErrVariantNotFree
	}

	payload, err := s.strip(ctx, tree)
	if err != nil {
		return nil, err
	}
	s.store(ctx, variantID, payload)
	return payload, nil
}

func (s *TestService) strip(ctx context.Context, tree *model.VariantTree) (*TestPayload, error) {
	payload := &TestPayload{
		Variant: review.VariantView{
			ID:     tree.Variant.ID,
			Title:  tree.Variant.Title,
			IsFree: tree.Variant.IsFree,
		},
		TestData: make([]TestSubject, 0, len(tree.Subjects)),
	}

	for _, st := range tree.Subjects {
		subject := TestSubject{
			Subject: review.SubjectView{
				ID:    st.Subject.ID,
				Name:  st.Subject.Name,
				Order: st.Subject.Order,
			},
			Questions: make([]TestQuestion, 0, len(st.Questions)),
		}
		for i := range st.Questions {
			q := &st.Questions[i]
			image, err := resolveImage(ctx, s.Storage, q.ImageURL)
			if err != nil {
				return nil, err
			}
			solution, err := resolveImage(ctx, s.Storage, q.SolutionImageURL)
			if err != nil {
				return nil, err
			}
			tq := TestQuestion{
				ID:               q.ID,
				Text:             q.Text,
				ImageURL:         image,
				SolutionImageURL: solution,
				Kind:             q.Kind().String(),
				Answers:          make([]AnswerOption, 0, len(q.Answers)),
			}
			for _, a := range q.Answers {
				tq.Answers = append(tq.Answers, AnswerOption{ID: a.ID, Text: a.Text})
			}
			subject.Questions = append(subject.Questions, tq)
		}
		payload.TestData = append(payload.TestData, subject)
	}
	return payload, nil
}

func (s *TestService) cached(ctx context.Context, variantID string) (*TestPayload, bool) {
	if s.Cache == nil {
		return nil, false
	}
	raw, err := s.Cache.Get(ctx, testCacheKey(variantID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.Log.Warn("test payload cache read failed", zap.String("variantId", variantID), zap.Error(err))
		}
		return nil, false
	}
	var payload TestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

func (s *TestService) store(ctx context.Context, variantID string, payload *TestPayload) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ttl := 10 * time.Minute
	if s.Policy != nil {
		ttl = s.Policy.Current().TestCacheTTL()
	}
	if err := s.Cache.Set(ctx, testCacheKey(variantID), raw, ttl); err != nil {
		logger.Log.Warn("test payload cache write failed", zap.String("variantId", variantID), zap.Error(err))
	}
}
