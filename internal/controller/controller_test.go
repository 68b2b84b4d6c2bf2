package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qadam_backend/internal/config"
	"qadam_backend/internal/model"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/service"
	"qadam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore 同时实现内容、草稿与成绩存储，够用即可
type memStore struct {
	mu       sync.Mutex
	variants map[string]model.Variant
	subjects map[string][]model.Subject
	question map[string][]model.Question
	answers  map[string][]model.Answer
	drafts   map[string]*model.TestAttempt
	results  map[string]*model.TestResult
}

func newMemStore() *memStore {
	m := &memStore{
		variants: map[string]model.Variant{},
		subjects: map[string][]model.Subject{},
		question: map[string][]model.Question{},
		answers:  map[string][]model.Answer{},
		drafts:   map[string]*model.TestAttempt{},
		results:  map[string]*model.TestResult{},
	}
	for _, v := range []model.Variant{
		{UUIDBase: model.UUIDBase{ID: "paid"}, Title: "Paid"},
		{UUIDBase: model.UUIDBase{ID: "free"}, Title: "Free", IsFree: true},
	} {
		m.variants[v.ID] = v
		sid := v.ID + "-s"
		m.subjects[v.ID] = []model.Subject{{UUIDBase: model.UUIDBase{ID: sid}, VariantID: v.ID, Name: "Math"}}
		qid := v.ID + "-q"
		m.question[sid] = []model.Question{{UUIDBase: model.UUIDBase{ID: qid}, SubjectID: sid, Text: "1+1?"}}
		for i, id := range []string{"A", "B", "C", "D", "E"} {
			m.answers[qid] = append(m.answers[qid], model.Answer{UUIDBase: model.UUIDBase{ID: id}, QuestionID: qid, Text: id, IsCorrect: i == 0, Order: i})
		}
	}
	return m
}

func (m *memStore) GetVariant(_ context.Context, id string) (*model.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, util.ErrVariantNotFound
	}
	return &v, nil
}

func (m *memStore) GetSubjectsByVariant(_ context.Context, id string) ([]model.Subject, error) {
	return m.subjects[id], nil
}

func (m *memStore) GetQuestionsBySubject(_ context.Context, id string) ([]model.Question, error) {
	return append([]model.Question(nil), m.question[id]...), nil
}

func (m *memStore) GetAnswersByQuestion(_ context.Context, id string) ([]model.Answer, error) {
	return m.answers[id], nil
}

func (m *memStore) FindActive(_ context.Context, userID uint, variantID string) (*model.TestAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.drafts[model.ActiveAttemptKey(userID, variantID)]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, util.ErrAttemptNotFound
}

func (m *memStore) LoadOrCreate(ctx context.Context, userID uint, variantID string, now time.Time) (*model.TestAttempt, error) {
	m.mu.Lock()
	key := model.ActiveAttemptKey(userID, variantID)
	if _, ok := m.drafts[key]; !ok {
		m.drafts[key] = &model.TestAttempt{UUIDBase: model.UUIDBase{ID: "draft-" + key}, UserID: userID, VariantID: variantID, ActiveKey: &key, Status: model.AttemptDraft, StartedAt: now}
	}
	m.mu.Unlock()
	return m.FindActive(ctx, userID, variantID)
}

func (m *memStore) SaveProgress(_ context.Context, u repository.ProgressUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.drafts[model.ActiveAttemptKey(u.UserID, u.VariantID)]
	if !ok {
		return false, util.ErrAttemptNotActive
	}
	if u.Seq <= a.SaveSeq {
		return false, nil
	}
	a.Answers, a.TimeSpentSeconds, a.SaveSeq = u.Answers, u.TimeSpent, u.Seq
	return true, nil
}

func (m *memStore) Abandon(_ context.Context, userID uint, variantID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.ActiveAttemptKey(userID, variantID)
	if _, ok := m.drafts[key]; !ok {
		return util.ErrAttemptNotActive
	}
	delete(m.drafts, key)
	return nil
}

func (m *memStore) AbandonStale(context.Context, int, time.Time) (int64, error) { return 0, nil }

func (m *memStore) CreateCompletion(_ context.Context, r *model.TestResult) (*model.TestResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.results[r.SubmissionKey]; ok {
		return existing, false, nil
	}
	r.ID = fmt.Sprintf("res-%d", len(m.results)+1)
	m.results[r.SubmissionKey] = r
	delete(m.drafts, model.ActiveAttemptKey(r.UserID, r.VariantID))
	return r, true, nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*model.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, util.ErrResultNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID uint, page, limit int) ([]model.TestResult, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TestResult
	for _, r := range m.results {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

const userID uint = 5

func setupRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	policy := service.NewExamPolicy(config.ExamConfig{TimeBudgetMinutes: 240, AutosaveIntervalSeconds: 30, AchievementThreshold: 95, CongratsThreshold: 70})
	storage := &service.LocalStorageProvider{}

	exam := NewExamController(
		service.NewTestService(store, nil, storage, policy),
		service.NewAttemptService(store, store, policy),
	)
	results := NewResultController(
		service.NewSubmissionService(store, store, store, nil, nil, policy),
		service.NewResultService(store, store, storage),
	)

	r := gin.New()
	asUser := func(c *gin.Context) {
		if c.GetHeader("X-Test-Guest") == "" {
			c.Set("user", &util.Claims{UserID: userID, Role: model.Student})
		}
		c.Next()
	}
	api := r.Group("/api", asUser)
	api.GET("/variants/:id/test", exam.GetTest)
	api.GET("/public/variants/:id/test", exam.GetPublicTest)
	api.GET("/variants/:id/session", exam.GetSession)
	api.PUT("/variants/:id/session", exam.SaveSession)
	api.POST("/variants/:id/session/abandon", exam.AbandonSession)
	api.POST("/test-results", results.Submit)
	api.POST("/public/test-results", results.SubmitGuest)
	api.GET("/test-results", results.List)
	api.GET("/test-results/:id/review", results.Review)
	return r, store
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestExam_GetTestHidesCorrectness(t *testing.T) {
	r, _ := setupRouter(t)
	code, env := call(t, r, http.MethodGet, "/api/variants/paid/test", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "isCorrect")

	code, _ = call(t, r, http.MethodGet, "/api/variants/none/test", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExam_PublicTest(t *testing.T) {
	r, _ := setupRouter(t)
	code, _ := call(t, r, http.MethodGet, "/api/public/variants/paid/test", nil, "X-Test-Guest", "1")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, r, http.MethodGet, "/api/public/variants/free/test", nil, "X-Test-Guest", "1")
	assert.Equal(t, http.StatusOK, code)

	// 已登录用户不受免费限制
	code, _ = call(t, r, http.MethodGet, "/api/public/variants/paid/test", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestExam_SessionLifecycle(t *testing.T) {
	r, _ := setupRouter(t)

	code, env := call(t, r, http.MethodGet, "/api/variants/paid/session", nil)
	require.Equal(t, http.StatusOK, code)
	var view struct {
		RemainingSeconds int `json:"remainingSeconds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 240*60, view.RemainingSeconds)

	code, env = call(t, r, http.MethodPut, "/api/variants/paid/session", gin.H{"answers": gin.H{"paid-q": "B"}, "timeSpent": 30, "seq": 2})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `true`, string(mustField(t, env.Data, "applied")))

	code, env = call(t, r, http.MethodPut, "/api/variants/paid/session", gin.H{"answers": gin.H{}, "timeSpent": 20, "seq": 1})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `false`, string(mustField(t, env.Data, "applied")))

	code, _ = call(t, r, http.MethodPut, "/api/variants/paid/session", gin.H{"answers": gin.H{}, "seq": 3})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/variants/paid/session/abandon", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, "/api/variants/paid/session/abandon", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}

func TestResult_SubmitIsIdempotent(t *testing.T) {
	r, store := setupRouter(t)
	body := gin.H{"variantId": "paid", "answers": gin.H{"paid-q": "A"}, "timeSpent": 100}

	code, env := call(t, r, http.MethodPost, "/api/test-results", body, SubmissionHeader, "client-key-1")
	require.Equal(t, http.StatusCreated, code)
	var first service.SubmissionResponse
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, 100.0, first.Result.Percentage)
	assert.Equal(t, "client-key-1", first.Result.SubmissionKey)

	code, env = call(t, r, http.MethodPost, "/api/test-results", body, SubmissionHeader, "client-key-1")
	require.Equal(t, http.StatusOK, code)
	var second service.SubmissionResponse
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Result.ID, second.Result.ID)
	assert.Len(t, store.results, 1)

	code, env = call(t, r, http.MethodGet, "/api/test-results/"+first.Result.ID+"/review", nil)
	require.Equal(t, http.StatusOK, code)
	var rv struct {
		Summary struct {
			Percentage float64 `json:"percentage"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rv))
	assert.Equal(t, first.Result.Percentage, rv.Summary.Percentage)
	assert.Contains(t, string(env.Data), "selected_correct")

	code, env = call(t, r, http.MethodGet, "/api/test-results?page=1&limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `1`, string(mustField(t, env.Data, "total")))
}

func TestResult_SubmitValidation(t *testing.T) {
	r, store := setupRouter(t)

	code, _ := call(t, r, http.MethodPost, "/api/test-results", gin.H{"answers": gin.H{}, "timeSpent": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/api/test-results", gin.H{"variantId": "paid", "answers": gin.H{}, "timeSpent": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/api/test-results", gin.H{"variantId": "paid", "timeSpent": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, store.results)
}

func TestResult_GuestSubmission(t *testing.T) {
	r, store := setupRouter(t)

	code, _ := call(t, r, http.MethodPost, "/api/public/test-results", gin.H{"variantId": "paid", "answers": gin.H{}, "timeSpent": 1}, "X-Test-Guest", "1")
	assert.Equal(t, http.StatusForbidden, code)

	code, env := call(t, r, http.MethodPost, "/api/public/test-results", gin.H{"variantId": "free", "answers": gin.H{"free-q": "A"}, "timeSpent": 9}, "X-Test-Guest", "1")
	require.Equal(t, http.StatusOK, code)
	var res service.GuestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.IsGuestResult)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Empty(t, store.results)
}

func TestResult_ReviewOwnerOnly(t *testing.T) {
	r, store := setupRouter(t)
	store.results["k"] = &model.TestResult{UUIDBase: model.UUIDBase{ID: "other"}, UserID: userID + 1, VariantID: "paid", SubmissionKey: "k"}

	code, _ := call(t, r, http.MethodGet, "/api/test-results/other/review", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, r, http.MethodGet, "/api/test-results/missing/review", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
