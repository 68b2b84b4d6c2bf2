// Package offline keeps a test-taking client usable without the network: it
// mirrors in-progress drafts locally and queues completed submissions until
// they can be replayed.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"qadam_backend/internal/scoring"
	"qadam_backend/pkg/kv"
)

const (
	draftPrefix   = "draft:"
	pendingPrefix = "pending:"
	guestUser     = "guest"
)

// Draft is the locally mirrored state of an unfinished session.
type Draft struct {
	Answers     scoring.AnswerSheet `json:"answers"`
	TimeSpent   int                 `json:"timeSpent"`
	Seq         int64               `json:"seq"`
	StartedAt   time.Time           `json:"startedAt"`
	LastSavedAt time.Time           `json:"lastSavedAt"`
}

type Mirror struct {
	store kv.Store
}

func NewMirror(store kv.Store) *Mirror {
	return &Mirror{store: store}
}

func draftKey(variantID, userID string) string {
	if userID == "" {
		userID = guestUser
	}
	return draftPrefix + variantID + ":" + userID
}

func (m *Mirror) SaveDraft(ctx context.Context, variantID, userID string, d Draft) error {
	if d.Answers == nil {
		d.Answers = scoring.AnswerSheet{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, draftKey(variantID, userID), data, 0)
}

// LoadDraft returns the mirrored draft, or ok=false when there is none.
func (m *Mirror) LoadDraft(ctx context.Context, variantID, userID string) (*Draft, bool, error) {
	data, err := m.store.Get(ctx, draftKey(variantID, userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false, err
	}
	if d.Answers == nil {
		d.Answers = scoring.AnswerSheet{}
	}
	return &d, true, nil
}

func (m *Mirror) ClearDraft(ctx context.Context, variantID, userID string) error {
	return m.store.Delete(ctx, draftKey(variantID, userID))
}
