// Package testsession drives one learner's pass through a variant on the
// client: restoring the draft, toggling answers, the countdown, periodic
// autosave and the single final submission.
package testsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qadam_backend/internal/scoring"
	"qadam_backend/pkg/apiclient"
	"qadam_backend/pkg/offline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StateDraft     State = "draft"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

const (
	DefaultTimeBudget       = 240 * time.Minute
	DefaultAutosaveInterval = 30 * time.Second
	completeTimeout         = 30 * time.Second
)

var (
	ErrUnknownQuestion = errors.New("testsession: unknown question")
	ErrUnknownAnswer   = errors.New("testsession: unknown answer")
	ErrNotDraft        = errors.New("testsession: session is no longer a draft")
	ErrNotRestored     = errors.New("testsession: session has not been restored")
)

// API is the part of apiclient.Client a session talks to.
type API interface {
	Authenticated() bool
	GetTest(ctx context.Context, variantID string) (*apiclient.TestPayload, error)
	LoadSession(ctx context.Context, variantID string) (*apiclient.Session, error)
	SaveSession(ctx context.Context, variantID string, req apiclient.SaveRequest) (*apiclient.SaveResult, error)
	AbandonSession(ctx context.Context, variantID string) error
}

type Submitter interface {
	Submit(ctx context.Context, s apiclient.Submission) (*offline.Receipt, error)
}

type Config struct {
	VariantID string
	// UserID keys the local mirror; empty for guests.
	UserID           string
	TimeBudget       time.Duration
	AutosaveInterval time.Duration
	TickInterval     time.Duration
	// Payload skips fetching the question catalog when already loaded.
	Payload *apiclient.TestPayload
	Logger  *zap.Logger
	// OnComplete runs after a timer-triggered completion.
	OnComplete func(*offline.Receipt, error)
}

type question struct {
	kind    scoring.QuestionKind
	answers map[string]bool
}

type Session struct {
	cfg       Config
	api       API
	mirror    *offline.Mirror
	submitter Submitter
	log       *zap.Logger
	now       func() time.Time

	mu           sync.Mutex
	restored     bool
	state        State
	questions    map[string]question
	answers      scoring.AnswerSheet
	timeSpent    int
	budget       int
	seq          int64
	startedAt    time.Time
	lastSavedAt  time.Time
	submissionID string
	receipt      *offline.Receipt
	started      bool
	saving       bool
	stop         context.CancelFunc
	wg           sync.WaitGroup
}

func New(cfg Config, api API, mirror *offline.Mirror, submitter Submitter) *Session {
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:       cfg,
		api:       api,
		mirror:    mirror,
		submitter: submitter,
		log:       log.With(zap.String("variantId", cfg.VariantID)),
		now:       time.Now,
		budget:    int(cfg.TimeBudget / time.Second),
		answers:   scoring.AnswerSheet{},
	}
}

// Mount restores the session and starts its timers.
func (s *Session) Mount(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		return err
	}
	s.Start()
	return nil
}

// Restore loads the question catalog and the draft. The server copy is used
// when reachable; the local mirror replaces it when it holds more elapsed
// time, and stands in for it when the network is down.
func (s *Session) Restore(ctx context.Context) error {
	payload := s.cfg.Payload
	if payload == nil {
		p, err := s.api.GetTest(ctx, s.cfg.VariantID)
		if err != nil {
			return fmt.Errorf("load test: %w", err)
		}
		payload = p
	}
	questions := indexQuestions(payload)

	var server *apiclient.Session
	if s.api.Authenticated() {
		sess, err := s.api.LoadSession(ctx, s.cfg.VariantID)
		switch {
		case err == nil:
			server = sess
		case apiclient.Retryable(err):
			s.log.Warn("load server draft failed, using local copy", zap.Error(err))
		default:
			return fmt.Errorf("load session: %w", err)
		}
	}

	local, ok, err := s.mirror.LoadDraft(ctx, s.cfg.VariantID, s.cfg.UserID)
	if err != nil {
		s.log.Warn("load local draft failed", zap.Error(err))
		ok = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = questions
	s.state = StateDraft
	s.answers = scoring.AnswerSheet{}
	s.timeSpent = 0
	s.startedAt = s.now()
	s.submissionID = uuid.NewString()

	if server != nil {
		s.answers = server.Attempt.Answers.Clone()
		s.timeSpent = server.Attempt.TimeSpent
		s.seq = server.Attempt.SaveSeq
		s.lastSavedAt = server.Attempt.LastSavedAt
		if !server.Attempt.StartedAt.IsZero() {
			s.startedAt = server.Attempt.StartedAt
		}
		if server.Attempt.ID != "" {
			s.submissionID = "attempt:" + server.Attempt.ID
		}
	}
	if ok && (server == nil || local.TimeSpent > s.timeSpent) {
		s.answers = local.Answers.Clone()
		s.timeSpent = local.TimeSpent
		if local.Seq > s.seq {
			s.seq = local.Seq
		}
		if !local.StartedAt.IsZero() {
			s.startedAt = local.StartedAt
		}
		s.lastSavedAt = local.LastSavedAt
	}
	if s.timeSpent > s.budget {
		s.timeSpent = s.budget
	}
	s.restored = true
	return nil
}

func indexQuestions(p *apiclient.TestPayload) map[string]question {
	out := make(map[string]question)
	for _, sub := range p.TestData {
		for _, q := range sub.Questions {
			ids := make(map[string]bool, len(q.Answers))
			for _, a := range q.Answers {
				ids[a.ID] = true
			}
			out[q.ID] = question{kind: scoring.KindOf(len(q.Answers)), answers: ids}
		}
	}
	return out
}

// Start launches the countdown and autosave loops once.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || !s.restored || s.state != StateDraft {
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.TickInterval, func() { s.tick(ctx) })
	go s.loop(ctx, s.cfg.AutosaveInterval, func() { s.Autosave(ctx) })
}

func (s *Session) loop(ctx context.Context, interval time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Session) stopTimersLocked() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// Tick advances the countdown by one second and reports whether time is up.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDraft {
		return false
	}
	if s.timeSpent < s.budget {
		s.timeSpent++
	}
	return s.timeSpent >= s.budget
}

func (s *Session) tick(ctx context.Context) {
	if !s.Tick() {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	rc, err := s.Complete(cctx)
	if errors.Is(err, ErrNotDraft) {
		return
	}
	if err != nil {
		s.log.Error("complete on timeout failed", zap.Error(err))
	}
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(rc, err)
	}
}

// ToggleAnswer applies one click. On a multiple choice question the id is
// toggled and a fourth selection is ignored; on a single choice question the
// last click wins. Clicks after the session ended are ignored.
func (s *Session) ToggleAnswer(questionID, answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDraft {
		return nil
	}
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if !q.answers[answerID] {
		return fmt.Errorf("%w: %s", ErrUnknownAnswer, answerID)
	}

	if q.kind != scoring.KindMulti {
		s.answers[questionID] = scoring.Single(answerID)
		return nil
	}

	current := s.answers[questionID]
	ids := current.IDs()
	if current.IsMulti() && current.Contains(answerID) {
		kept := ids[:0]
		for _, id := range ids {
			if id != answerID {
				kept = append(kept, id)
			}
		}
		s.answers[questionID] = scoring.Multi(kept...)
		return nil
	}
	if !current.IsMulti() {
		ids = nil
	}
	if len(ids) >= scoring.MaxMultiSelection {
		return nil
	}
	s.answers[questionID] = scoring.Multi(append(ids, answerID)...)
	return nil
}

// Autosave pushes a sequence-stamped snapshot. Failures are kept in the
// local mirror and retried on the next tick; they never reach the caller.
func (s *Session) Autosave(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateDraft || s.saving {
		s.mu.Unlock()
		return
	}
	s.saving = true
	s.seq++
	req := apiclient.SaveRequest{Answers: s.answers.Clone(), TimeSpent: s.timeSpent, Seq: s.seq}
	draft := offline.Draft{Answers: req.Answers, TimeSpent: req.TimeSpent, Seq: req.Seq, StartedAt: s.startedAt, LastSavedAt: s.lastSavedAt}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	if s.api.Authenticated() {
		res, err := s.api.SaveSession(ctx, s.cfg.VariantID, req)
		if err == nil {
			if !res.Applied {
				s.log.Debug("autosave superseded", zap.Int64("seq", req.Seq))
			}
			s.mu.Lock()
			if res.LastSavedAt.After(s.lastSavedAt) {
				s.lastSavedAt = res.LastSavedAt
			}
			s.mu.Unlock()
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Warn("autosave failed, keeping local copy", zap.Int64("seq", req.Seq), zap.Error(err))
	}

	draft.LastSavedAt = s.now()
	if err := s.mirror.SaveDraft(ctx, s.cfg.VariantID, s.cfg.UserID, draft); err != nil {
		s.log.Error("save local draft failed", zap.Error(err))
	}
}

// Complete submits the attempt exactly once. Later calls return ErrNotDraft
// together with the first receipt.
func (s *Session) Complete(ctx context.Context) (*offline.Receipt, error) {
	s.mu.Lock()
	if !s.restored {
		s.mu.Unlock()
		return nil, ErrNotRestored
	}
	if s.state != StateDraft {
		rc := s.receipt
		s.mu.Unlock()
		return rc, ErrNotDraft
	}
	s.state = StateCompleted
	s.stopTimersLocked()
	sub := apiclient.Submission{
		VariantID:    s.cfg.VariantID,
		Answers:      s.answers.Clone(),
		TimeSpent:    s.timeSpent,
		SubmissionID: s.submissionID,
	}
	s.mu.Unlock()

	rc, err := s.submitter.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.receipt = rc
	s.mu.Unlock()

	if err := s.mirror.ClearDraft(ctx, s.cfg.VariantID, s.cfg.UserID); err != nil {
		s.log.Warn("clear local draft failed", zap.Error(err))
	}
	s.log.Info("session completed", zap.Stringer("outcome", rc.Outcome), zap.Int("timeSpent", sub.TimeSpent))
	return rc, nil
}

// Abandon stops the timers and, while time remains, marks the draft
// abandoned on the server (best effort) and drops the local copy.
func (s *Session) Abandon(ctx context.Context) {
	s.mu.Lock()
	s.stopTimersLocked()
	abandon := s.restored && s.state == StateDraft && s.timeSpent < s.budget
	if abandon {
		s.state = StateAbandoned
	}
	s.mu.Unlock()

	s.wg.Wait()
	if !abandon {
		return
	}

	if s.api.Authenticated() {
		if err := s.api.AbandonSession(ctx, s.cfg.VariantID); err != nil {
			s.log.Warn("abandon on server failed", zap.Error(err))
		}
	}
	if err := s.mirror.ClearDraft(ctx, s.cfg.VariantID, s.cfg.UserID); err != nil {
		s.log.Warn("clear local draft failed", zap.Error(err))
	}
}

// Unmount is called when the learner leaves the test screen.
func (s *Session) Unmount(ctx context.Context) { s.Abandon(ctx) }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Answers() scoring.AnswerSheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

func (s *Session) TimeSpent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeSpent
}

// Remaining returns the seconds left, never below zero.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeSpent >= s.budget {
		return 0
	}
	return s.budget - s.timeSpent
}

func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) Receipt() *offline.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipt
}
