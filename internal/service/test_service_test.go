package service

import (
	"context"
	"encoding/json"
	"testing"

	"qadam_backend/internal/util"
	"qadam_backend/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestPayload_HidesCorrectness(t *testing.T) {
	content := newFakeContent(fixtureTree("v1", false))
	svc := NewTestService(content, kv.NewMemoryStore(), &LocalStorageProvider{}, testPolicy())

	p, err := svc.Payload(context.Background(), "v1", false)
	require.NoError(t, err)
	require.Len(t, p.TestData, 1)
	require.Len(t, p.TestData[0].Questions, 2)

	q1 := p.TestData[0].Questions[0]
	assert.Equal(t, "single", q1.Kind)
	assert.Len(t, q1.Answers, 5)
	assert.Equal(t, "/uploads/questions/q1.png", q1.ImageURL)
	assert.Equal(t, "multiple", p.TestData[0].Questions[1].Kind)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isCorrect")
}

func TestTestPayload_GuestNeedsFreeVariant(t *testing.T) {
	content := newFakeContent(fixtureTree("v1", false), fixtureTree("free", true))
	svc := NewTestService(content, kv.NewMemoryStore(), nil, testPolicy())

	_, err := svc.Payload(context.Background(), "v1", true)
	assert.ErrorIs(t, err, util.ErrVariantNotFree)

	p, err := svc.Payload(context.Background(), "free", true)
	require.NoError(t, err)
	assert.True(t, p.Variant.IsFree)

	_, err = svc.Payload(context.Background(), "none", true)
	assert.ErrorIs(t, err, util.ErrVariantNotFound)
}

func TestTestPayload_ServedFromCache(t *testing.T) {
	content := newFakeContent(fixtureTree("v1", false))
	svc := NewTestService(content, kv.NewMemoryStore(), nil, testPolicy())
	ctx := context.Background()

	first, err := svc.Payload(ctx, "v1", false)
	require.NoError(t, err)
	calls := content.Calls()

	second, err := svc.Payload(ctx, "v1", false)
	require.NoError(t, err)
	assert.Equal(t, calls, content.Calls())
	assert.Equal(t, first, second)

	// 缓存命中时同样校验访客权限
	_, err = svc.Payload(ctx, "v1", true)
	assert.ErrorIs(t, err, util.ErrVariantNotFree)
}

func TestResolveImage(t *testing.T) {
	local := &LocalStorageProvider{}
	u, err := resolveImage(context.Background(), local, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", u)

	u, err = resolveImage(context.Background(), local, "/img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/img/a.png", u)

	u, err = resolveImage(context.Background(), local, "")
	require.NoError(t, err)
	assert.Empty(t, u)
}
