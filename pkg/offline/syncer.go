package offline

import (
	"context"
	"time"

	"qadam_backend/pkg/apiclient"

	"go.uber.org/zap"
)

type FlushReport struct {
	Replayed  int
	Rejected  int
	Remaining int
}

// Syncer replays queued submissions once the connection is back.
type Syncer struct {
	API    API
	Queue  *Queue
	Logger *zap.Logger
	// OnReplayed is called for every submission the server accepted.
	OnReplayed func(p PendingSubmission, res *apiclient.SubmitResult)
}

func NewSyncer(api API, queue *Queue, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{API: api, Queue: queue, Logger: logger}
}

// Flush replays every pending submission with its original key. Accepted
// and permanently rejected records are removed; the rest stay queued.
func (s *Syncer) Flush(ctx context.Context) (FlushReport, error) {
	var report FlushReport
	pending, err := s.Queue.List(ctx)
	if err != nil {
		return report, err
	}

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			report.Remaining += len(pending) - i
			return report, err
		}

		res, err := s.API.Submit(ctx, apiclient.Submission{
			VariantID:    p.VariantID,
			Answers:      p.Answers,
			TimeSpent:    p.TimeSpent,
			SubmissionID: p.ID,
		})
		switch {
		case err == nil:
			if err := s.Queue.Delete(ctx, p.ID); err != nil {
				return report, err
			}
			report.Replayed++
			s.Logger.Info("pending submission replayed",
				zap.String("submissionId", p.ID),
				zap.Bool("duplicate", res.Duplicate))
			if s.OnReplayed != nil {
				s.OnReplayed(p, res)
			}
		case apiclient.Retryable(err):
			p.Attempts++
			p.LastError = err.Error()
			if err := s.Queue.Put(ctx, p); err != nil {
				return report, err
			}
			report.Remaining++
		default:
			if err := s.Queue.Delete(ctx, p.ID); err != nil {
				return report, err
			}
			report.Rejected++
			s.Logger.Warn("pending submission rejected",
				zap.String("submissionId", p.ID),
				zap.String("variantId", p.VariantID),
				zap.Error(err))
		}
	}
	return report, nil
}

// Run flushes on every tick until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.Logger.Warn("flush pending submissions failed", zap.Error(err))
			}
		}
	}
}
