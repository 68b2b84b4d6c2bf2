package service

import (
	"context"
	"testing"
	"time"

	"qadam_backend/internal/model"
	"qadam_backend/internal/scoring"
	"qadam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttemptFixture() (*AttemptService, *fakeAttempts, *time.Time) {
	attempts := newFakeAttempts()
	svc := NewAttemptService(attempts, newFakeContent(fixtureTree("v1", false)), testPolicy())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, attempts, &now
}

func TestAttempt_LoadOrCreateIsIdempotent(t *testing.T) {
	svc, _, _ := newAttemptFixture()
	ctx := context.Background()

	first, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)
	assert.Equal(t, 240*60, first.RemainingSeconds)
	assert.Empty(t, first.Attempt.Answers)
	assert.Equal(t, model.AttemptDraft, first.Attempt.Status)

	second, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)

	_, err = svc.LoadOrCreate(ctx, 1, "missing")
	assert.ErrorIs(t, err, util.ErrVariantNotFound)
}

func TestAttempt_SaveRoundTripAndStaleWrites(t *testing.T) {
	svc, _, _ := newAttemptFixture()
	ctx := context.Background()
	_, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)

	sheet := scoring.AnswerSheet{"v1-q1": scoring.Single("C"), "v1-q2": scoring.Multi("X")}
	res, err := svc.Save(ctx, 1, "v1", SaveProgressRequest{Answers: sheet, TimeSpent: intPtr(600), Seq: 2})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// 较早发出的请求晚到，不能覆盖新快照
	res, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{Answers: scoring.AnswerSheet{}, TimeSpent: intPtr(570), Seq: 1})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	view, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)
	assert.Equal(t, sheet, view.Attempt.Answers)
	assert.Equal(t, 600, view.Attempt.TimeSpentSeconds)
	assert.Equal(t, 240*60-600, view.RemainingSeconds)
}

func TestAttempt_SaveValidation(t *testing.T) {
	svc, _, _ := newAttemptFixture()
	ctx := context.Background()

	_, err := svc.Save(ctx, 1, "v1", SaveProgressRequest{Seq: 1})
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)
	_, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{TimeSpent: intPtr(-5), Seq: 1})
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)
	_, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{TimeSpent: intPtr(5)})
	assert.ErrorIs(t, err, util.ErrInvalidSubmission)

	_, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{TimeSpent: intPtr(5), Seq: 1})
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)
}

func TestAttempt_SaveClampsToBudget(t *testing.T) {
	svc, attempts, _ := newAttemptFixture()
	ctx := context.Background()
	view, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)

	_, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{Answers: scoring.AnswerSheet{}, TimeSpent: intPtr(999999), Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, 240*60, attempts.get(view.Attempt.ID).TimeSpentSeconds)
}

func TestAttempt_AbandonEndsDraft(t *testing.T) {
	svc, attempts, _ := newAttemptFixture()
	ctx := context.Background()
	view, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)

	require.NoError(t, svc.Abandon(ctx, 1, "v1"))
	assert.Equal(t, model.AttemptAbandoned, attempts.get(view.Attempt.ID).Status)
	assert.ErrorIs(t, svc.Abandon(ctx, 1, "v1"), util.ErrAttemptNotActive)

	_, err = svc.Save(ctx, 1, "v1", SaveProgressRequest{TimeSpent: intPtr(5), Seq: 9})
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)

	next, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, view.Attempt.ID, next.Attempt.ID)
}

func TestAttempt_SweepAbandonsIdleDrafts(t *testing.T) {
	svc, attempts, now := newAttemptFixture()
	ctx := context.Background()
	idle, err := svc.LoadOrCreate(ctx, 1, "v1")
	require.NoError(t, err)

	*now = now.Add(5 * time.Hour)
	fresh, err := svc.LoadOrCreate(ctx, 2, "v1")
	require.NoError(t, err)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.AttemptAbandoned, attempts.get(idle.Attempt.ID).Status)
	assert.Equal(t, model.AttemptDraft, attempts.get(fresh.Attempt.ID).Status)
}
