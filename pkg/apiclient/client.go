// Package apiclient talks to the exam HTTP API on behalf of a test-taking
// client. It unwraps the {code, message, data} envelope and separates
// transport failures from server rejections.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qadam_backend/internal/scoring"
)

const SubmissionHeader = "X-Submission-Id"

// APIError is a response the server produced on purpose.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *APIError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests && e.Status != http.StatusRequestTimeout
}

// Retryable reports whether err may succeed when the same request is sent
// again later: network failures, timeouts, 5xx and throttling.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Permanent()
	}
	return true
}

type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	SolutionImageURL string         `json:"solutionImageUrl,omitempty"`
	Kind             string         `json:"kind"`
	Answers          []AnswerOption `json:"answers"`
}

type Subject struct {
	Subject struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"subject"`
	Questions []Question `json:"questions"`
}

type Variant struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	IsFree bool   `json:"isFree"`
}

type TestPayload struct {
	Variant  Variant   `json:"variant"`
	TestData []Subject `json:"testData"`
}

type Attempt struct {
	ID          string              `json:"id"`
	VariantID   string              `json:"variantId"`
	Answers     scoring.AnswerSheet `json:"answers"`
	TimeSpent   int                 `json:"timeSpent"`
	Status      string              `json:"status"`
	SaveSeq     int64               `json:"saveSeq"`
	StartedAt   time.Time           `json:"startedAt"`
	LastSavedAt time.Time           `json:"lastSavedAt"`
}

type Session struct {
	Attempt          Attempt `json:"attempt"`
	RemainingSeconds int     `json:"remainingSeconds"`
}

type SaveRequest struct {
	Answers   scoring.AnswerSheet `json:"answers"`
	TimeSpent int                 `json:"timeSpent"`
	Seq       int64               `json:"seq"`
}

type SaveResult struct {
	Applied     bool      `json:"applied"`
	LastSavedAt time.Time `json:"lastSavedAt"`
}

type Submission struct {
	VariantID    string              `json:"variantId"`
	Answers      scoring.AnswerSheet `json:"answers"`
	TimeSpent    int                 `json:"timeSpent"`
	SubmissionID string              `json:"submissionId,omitempty"`
}

type Result struct {
	ID             string              `json:"id"`
	VariantID      string              `json:"variantId"`
	SubmissionKey  string              `json:"submissionKey"`
	Score          int                 `json:"score"`
	TotalQuestions int                 `json:"totalQuestions"`
	TotalPoints    int                 `json:"totalPoints"`
	Percentage     float64             `json:"percentage"`
	TimeSpent      int                 `json:"timeSpent"`
	Answers        scoring.AnswerSheet `json:"answers"`
	CompletedAt    time.Time           `json:"completedAt"`
}

type SubmitResult struct {
	Result    Result `json:"result"`
	Duplicate bool   `json:"duplicate"`
}

type GuestResult struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	TotalPoints    int     `json:"totalPoints"`
	Percentage     float64 `json:"percentage"`
	TimeSpent      int     `json:"timeSpent"`
	IsGuestResult  bool    `json:"isGuestResult"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for baseURL, e.g. https://host/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether requests carry a bearer token.
func (c *Client) Authenticated() bool { return c.token != "" }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	if resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func variantPath(id, suffix string) string {
	return "/variants/" + url.PathEscape(id) + suffix
}

// GetTest loads the question catalog. Without a token the public route is
// used and only free variants are served.
func (c *Client) GetTest(ctx context.Context, variantID string) (*TestPayload, error) {
	path := variantPath(variantID, "/test")
	if !c.Authenticated() {
		path = "/public" + path
	}
	var p TestPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &p, nil); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) LoadSession(ctx context.Context, variantID string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, variantPath(variantID, "/session"), nil, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SaveSession(ctx context.Context, variantID string, req SaveRequest) (*SaveResult, error) {
	if req.Answers == nil {
		req.Answers = scoring.AnswerSheet{}
	}
	var res SaveResult
	if err := c.do(ctx, http.MethodPut, variantPath(variantID, "/session"), req, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) AbandonSession(ctx context.Context, variantID string) error {
	return c.do(ctx, http.MethodPost, variantPath(variantID, "/session/abandon"), nil, nil, nil)
}

func (c *Client) Submit(ctx context.Context, s Submission) (*SubmitResult, error) {
	if s.Answers == nil {
		s.Answers = scoring.AnswerSheet{}
	}
	var headers map[string]string
	if s.SubmissionID != "" {
		headers = map[string]string{SubmissionHeader: s.SubmissionID}
	}
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/test-results", s, &res, headers); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SubmitGuest(ctx context.Context, s Submission) (*GuestResult, error) {
	if s.Answers == nil {
		s.Answers = scoring.AnswerSheet{}
	}
	var res GuestResult
	if err := c.do(ctx, http.MethodPost, "/public/test-results", s, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}
