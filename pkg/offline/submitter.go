package offline

import (
	"context"
	"errors"
	"time"

	"qadam_backend/pkg/apiclient"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrGuestOffline is returned when a guest submission cannot reach the
// server. Guest results are never queued.
var ErrGuestOffline = errors.New("offline: guest submission requires a connection")

// API is the part of apiclient.Client the offline layer needs.
type API interface {
	Authenticated() bool
	Submit(ctx context.Context, s apiclient.Submission) (*apiclient.SubmitResult, error)
	SubmitGuest(ctx context.Context, s apiclient.Submission) (*apiclient.GuestResult, error)
}

type Outcome int

const (
	OutcomeSubmitted Outcome = iota + 1
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Receipt describes what happened to a submission. Exactly one of Result,
// Guest and Pending is set.
type Receipt struct {
	Outcome   Outcome
	Result    *apiclient.Result
	Duplicate bool
	Guest     *apiclient.GuestResult
	Pending   *PendingSubmission
}

type Submitter struct {
	API    API
	Queue  *Queue
	Logger *zap.Logger
	// Offline short-circuits the network attempt when the caller already
	// knows there is no connection.
	Offline func() bool
	now     func() time.Time
}

func NewSubmitter(api API, queue *Queue, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{API: api, Queue: queue, Logger: logger, now: time.Now}
}

func (s *Submitter) knownOffline() bool {
	return s.Offline != nil && s.Offline()
}

// Submit sends the submission, or queues it when an authenticated request
// fails for a reason a later retry could fix. A missing SubmissionID is
// generated so that the queued copy and any replay share one key.
func (s *Submitter) Submit(ctx context.Context, sub apiclient.Submission) (*Receipt, error) {
	if !s.API.Authenticated() {
		if s.knownOffline() {
			return nil, ErrGuestOffline
		}
		res, err := s.API.SubmitGuest(ctx, sub)
		if err != nil {
			return nil, err
		}
		return &Receipt{Outcome: OutcomeSubmitted, Guest: res}, nil
	}

	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.NewString()
	}

	var sendErr error
	if !s.knownOffline() {
		res, err := s.API.Submit(ctx, sub)
		if err == nil {
			return &Receipt{Outcome: OutcomeSubmitted, Result: &res.Result, Duplicate: res.Duplicate}, nil
		}
		if !apiclient.Retryable(err) {
			return nil, err
		}
		sendErr = err
	}

	p := PendingSubmission{
		ID:          sub.SubmissionID,
		VariantID:   sub.VariantID,
		Answers:     sub.Answers.Clone(),
		TimeSpent:   sub.TimeSpent,
		CompletedAt: s.now(),
	}
	if sendErr != nil {
		p.LastError = sendErr.Error()
	}
	if err := s.Queue.Put(ctx, p); err != nil {
		if sendErr != nil {
			return nil, errors.Join(sendErr, err)
		}
		return nil, err
	}
	s.Logger.Info("submission queued",
		zap.String("submissionId", p.ID),
		zap.String("variantId", p.VariantID),
		zap.NamedError("cause", sendErr))
	return &Receipt{Outcome: OutcomeQueued, Pending: &p}, nil
}
