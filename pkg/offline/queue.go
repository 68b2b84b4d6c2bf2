package offline

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"qadam_backend/internal/scoring"
	"qadam_backend/pkg/kv"
)

// PendingSubmission is a completed attempt that could not reach the server.
// ID doubles as the submission key so a replay is deduplicated server side.
type PendingSubmission struct {
	ID          string              `json:"id"`
	VariantID   string              `json:"variantId"`
	Answers     scoring.AnswerSheet `json:"answers"`
	TimeSpent   int                 `json:"timeSpent"`
	CompletedAt time.Time           `json:"completedAt"`
	Attempts    int                 `json:"attempts"`
	LastError   string              `json:"lastError,omitempty"`
}

type Queue struct {
	store kv.Store
}

func NewQueue(store kv.Store) *Queue {
	return &Queue{store: store}
}

func (q *Queue) Put(ctx context.Context, p PendingSubmission) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, pendingPrefix+p.ID, data, 0)
}

func (q *Queue) Get(ctx context.Context, id string) (*PendingSubmission, error) {
	data, err := q.store.Get(ctx, pendingPrefix+id)
	if err != nil {
		return nil, err
	}
	var p PendingSubmission
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.store.Delete(ctx, pendingPrefix+id)
}

// List returns pending submissions ordered by completion time. Records that
// disappear or fail to decode while listing are skipped.
func (q *Queue) List(ctx context.Context) ([]PendingSubmission, error) {
	keys, err := q.store.Keys(ctx, pendingPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]PendingSubmission, 0, len(keys))
	for _, key := range keys {
		data, err := q.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p PendingSubmission
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}
