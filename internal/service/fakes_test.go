package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"qadam_backend/internal/config"
	"qadam_backend/internal/model"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/util"
)

func testPolicy() *ExamPolicy {
	return NewExamPolicy(config.ExamConfig{
		TimeBudgetMinutes:       240,
		AutosaveIntervalSeconds: 30,
		AchievementThreshold:    95,
		CongratsThreshold:       70,
		TestCacheTTLMinutes:     10,
		DraftSweepMinutes:       15,
	})
}

func answerRows(questionID string, ids []string, correct ...string) []model.Answer {
	isCorrect := make(map[string]bool)
	for _, c := range correct {
		isCorrect[c] = true
	}
	out := make([]model.Answer, len(ids))
	for i, id := range ids {
		out[i] = model.Answer{UUIDBase: model.UUIDBase{ID: id}, QuestionID: questionID, Text: "answer " + id, IsCorrect: isCorrect[id], Order: i}
	}
	return out
}

// fixtureTree 一道单选 (A 正确) + 一道多选 (X Y Z 正确)
func fixtureTree(variantID string, free bool) *model.VariantTree {
	q1 := model.Question{UUIDBase: model.UUIDBase{ID: variantID + "-q1"}, SubjectID: variantID + "-s1", Text: "2+2?", ImageURL: "questions/q1.png"}
	q1.Answers = answerRows(q1.ID, []string{"A", "B", "C", "D", "E"}, "A")
	q2 := model.Question{UUIDBase: model.UUIDBase{ID: variantID + "-q2"}, SubjectID: variantID + "-s1", Text: "Pick the primes", Order: 1}
	q2.Answers = answerRows(q2.ID, []string{"X", "Y", "Z", "P", "Q", "R", "S", "T"}, "X", "Y", "Z")

	return &model.VariantTree{
		Variant: model.Variant{UUIDBase: model.UUIDBase{ID: variantID}, Title: "Variant " + variantID, IsFree: free},
		Subjects: []model.SubjectTree{{
			Subject:   model.Subject{UUIDBase: model.UUIDBase{ID: variantID + "-s1"}, VariantID: variantID, Name: "Math"},
			Questions: []model.Question{q1, q2},
		}},
	}
}

type fakeContent struct {
	mu    sync.Mutex
	trees map[string]*model.VariantTree
	calls int
}

func newFakeContent(trees ...*model.VariantTree) *fakeContent {
	c := &fakeContent{trees: make(map[string]*model.VariantTree)}
	for _, t := range trees {
		c.trees[t.Variant.ID] = t
	}
	return c
}

func (c *fakeContent) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeContent) GetVariant(_ context.Context, id string) (*model.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	t, ok := c.trees[id]
	if !ok {
		return nil, fmt.Errorf("variant %s: %w", id, util.ErrVariantNotFound)
	}
	v := t.Variant
	return &v, nil
}

func (c *fakeContent) GetSubjectsByVariant(_ context.Context, variantID string) ([]model.Subject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Subject
	for _, st := range c.trees[variantID].Subjects {
		out = append(out, st.Subject)
	}
	return out, nil
}

func (c *fakeContent) GetQuestionsBySubject(_ context.Context, subjectID string) ([]model.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.trees {
		for _, st := range t.Subjects {
			if st.Subject.ID != subjectID {
				continue
			}
			out := make([]model.Question, len(st.Questions))
			for i, q := range st.Questions {
				q.Answers = nil
				out[i] = q
			}
			return out, nil
		}
	}
	return nil, nil
}

func (c *fakeContent) GetAnswersByQuestion(_ context.Context, questionID string) ([]model.Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.trees {
		for _, st := range t.Subjects {
			for _, q := range st.Questions {
				if q.ID == questionID {
					return append([]model.Answer(nil), q.Answers...), nil
				}
			}
		}
	}
	return nil, nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	byID map[string]*model.TestAttempt
	next int
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{byID: make(map[string]*model.TestAttempt)}
}

func (f *fakeAttempts) active(userID uint, variantID string) *model.TestAttempt {
	key := model.ActiveAttemptKey(userID, variantID)
	for _, a := range f.byID {
		if a.ActiveKey != nil && *a.ActiveKey == key && a.Status == model.AttemptDraft {
			return a
		}
	}
	return nil
}

func (f *fakeAttempts) FindActive(_ context.Context, userID uint, variantID string) (*model.TestAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.active(userID, variantID)
	if a == nil {
		return nil, util.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) LoadOrCreate(ctx context.Context, userID uint, variantID string, now time.Time) (*model.TestAttempt, error) {
	f.mu.Lock()
	if f.active(userID, variantID) == nil {
		f.next++
		key := model.ActiveAttemptKey(userID, variantID)
		f.byID[fmt.Sprintf("att-%d", f.next)] = &model.TestAttempt{
			UUIDBase:    model.UUIDBase{ID: fmt.Sprintf("att-%d", f.next)},
			UserID:      userID,
			VariantID:   variantID,
			ActiveKey:   &key,
			Status:      model.AttemptDraft,
			StartedAt:   now,
			LastSavedAt: now,
		}
	}
	f.mu.Unlock()
	return f.FindActive(ctx, userID, variantID)
}

func (f *fakeAttempts) SaveProgress(_ context.Context, u repository.ProgressUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.active(u.UserID, u.VariantID)
	if a == nil {
		return false, util.ErrAttemptNotActive
	}
	if u.Seq <= a.SaveSeq {
		return false, nil
	}
	a.Answers = u.Answers.Clone()
	a.TimeSpentSeconds = u.TimeSpent
	a.SaveSeq = u.Seq
	a.LastSavedAt = u.SavedAt
	return true, nil
}

func (f *fakeAttempts) Abandon(_ context.Context, userID uint, variantID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.active(userID, variantID)
	if a == nil {
		return util.ErrAttemptNotActive
	}
	a.Status = model.AttemptAbandoned
	a.ActiveKey = nil
	a.LastSavedAt = now
	return nil
}

func (f *fakeAttempts) AbandonStale(_ context.Context, budgetSeconds int, idleBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.byID {
		if a.Status == model.AttemptDraft && (a.TimeSpentSeconds >= budgetSeconds || a.LastSavedAt.Before(idleBefore)) {
			a.Status = model.AttemptAbandoned
			a.ActiveKey = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeAttempts) complete(userID uint, variantID string) {
	if a := f.active(userID, variantID); a != nil {
		a.Status = model.AttemptCompleted
		a.ActiveKey = nil
	}
}

func (f *fakeAttempts) get(id string) model.TestAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

type fakeResults struct {
	mu       sync.Mutex
	byKey    map[string]*model.TestResult
	attempts *fakeAttempts
	err      error
	next     int
}

func newFakeResults(attempts *fakeAttempts) *fakeResults {
	return &fakeResults{byKey: make(map[string]*model.TestResult), attempts: attempts}
}

func (f *fakeResults) CreateCompletion(_ context.Context, r *model.TestResult) (*model.TestResult, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if existing, ok := f.byKey[r.SubmissionKey]; ok {
		return existing, false, nil
	}
	f.next++
	r.ID = fmt.Sprintf("res-%d", f.next)
	f.byKey[r.SubmissionKey] = r
	if f.attempts != nil {
		f.attempts.mu.Lock()
		f.attempts.complete(r.UserID, r.VariantID)
		f.attempts.mu.Unlock()
	}
	return r, true, nil
}

func (f *fakeResults) FindByID(_ context.Context, id string) (*model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byKey {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, util.ErrResultNotFound
}

func (f *fakeResults) ListByUser(_ context.Context, userID uint, page, limit int) ([]model.TestResult, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestResult
	for _, r := range f.byKey {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	total := int64(len(out))
	start := (page - 1) * limit
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (f *fakeResults) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

type fakeBoard struct {
	mu     sync.Mutex
	scores map[uint]int
}

func (b *fakeBoard) RecordScore(_ context.Context, userID uint, score int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scores == nil {
		b.scores = make(map[uint]int)
	}
	b.scores[userID] += score
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*model.Notification
}

func (n *fakeNotifier) CreateNotification(_ context.Context, note *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) Types() []model.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationType, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Type
	}
	return out
}
