// Package job submits long-running report jobs to the insight engine and
// tracks them to a terminal state via adaptive status polling.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/notegraphhq/notegraph/internal/insight"
)

// Status is the client-side view of a job's lifecycle. The engine only ever
// reports queued, processing, completed, or failed (matched case-sensitively);
// timed_out and cancelled are client-side terminal states.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Progress is the engine's self-reported progress for a running job.
type Progress struct {
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
}

// Handle tracks one submitted job. It is mutated only by the Poller and
// discarded when the caller stops referencing it; JobID may be persisted
// externally to resume tracking across restarts.
type Handle struct {
	JobID    string
	Status   Status
	Progress *Progress
	Elapsed  time.Duration
}

// Endpoints names the engine's job endpoints. Status and Download have the
// job id appended as a path segment.
type Endpoints struct {
	Submit   string
	Status   string
	Download string
}

// PollConfig controls the polling loop. Intervals are tiered: fast early for
// quick feedback, slower later to reduce load on long-running jobs.
type PollConfig struct {
	FastInterval   time.Duration
	MediumInterval time.Duration
	SlowInterval   time.Duration
	FastUntil      time.Duration
	MediumUntil    time.Duration
	MaxElapsed     time.Duration
	MaxConsecutiveErrors int
}

// DefaultPollConfig returns the polling defaults for report jobs.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		FastInterval:         2 * time.Second,
		MediumInterval:       5 * time.Second,
		SlowInterval:         15 * time.Second,
		FastUntil:            30 * time.Second,
		MediumUntil:          2 * time.Minute,
		MaxElapsed:           10 * time.Minute,
		MaxConsecutiveErrors: 3,
	}
}

// WithDefaults fills zero-valued fields from DefaultPollConfig.
func (c PollConfig) WithDefaults() PollConfig {
	def := DefaultPollConfig()
	if c.FastInterval <= 0 {
		c.FastInterval = def.FastInterval
	}
	if c.MediumInterval <= 0 {
		c.MediumInterval = def.MediumInterval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = def.SlowInterval
	}
	if c.FastUntil <= 0 {
		c.FastUntil = def.FastUntil
	}
	if c.MediumUntil <= 0 {
		c.MediumUntil = def.MediumUntil
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = def.MaxElapsed
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	return c
}

// Interval returns the poll interval for the given elapsed time.
func (c PollConfig) Interval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < c.FastUntil:
		return c.FastInterval
	case elapsed < c.MediumUntil:
		return c.MediumInterval
	}
	return c.SlowInterval
}

// ErrNoJobID is returned when the submission response carries no job id.
// There is nothing to poll, so this is fatal and never retried.
var ErrNoJobID = errors.New("engine response missing job_id")

// ErrTimedOut is returned when the polling budget is exhausted while the job
// is still non-terminal. The job may still be running server-side; this is an
// unknown outcome, not a confirmed failure.
var ErrTimedOut = errors.New("report job still running after polling budget")

// FailedError is a server-reported job failure plus a keyword-matched
// remediation hint.
type FailedError struct {
	Message string
	Hint    string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return "report job failed"
	}
	return "report job failed: " + e.Message
}

// Poller submits jobs and polls them to completion. Safe for concurrent use;
// each tracked job carries its own Handle and PollState.
type Poller struct {
	exec   *insight.Executor
	cfg    PollConfig
	ep     Endpoints
	logger *slog.Logger
}

// NewPoller creates a Poller over the given executor and endpoints.
func NewPoller(exec *insight.Executor, cfg PollConfig, ep Endpoints, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{exec: exec, cfg: cfg.WithDefaults(), ep: ep, logger: logger}
}

// Submit posts body to the engine's job endpoint and returns a Handle for the
// created job. A response without a job_id is fatal.
func (p *Poller) Submit(ctx context.Context, body any) (*Handle, error) {
	resp, err := p.exec.Do(ctx, insight.Request{Method: http.MethodPost, Path: p.ep.Submit, Body: body})
	if err != nil {
		return nil, err
	}
	id := jsonString(resp.JSON, "job_id")
	if id == "" {
		return nil, ErrNoJobID
	}
	p.logger.Info("report job submitted", "job_id", id)
	return &Handle{JobID: id, Status: StatusQueued}, nil
}

// Wait polls the job until a terminal state and returns the downloaded report
// content on completion. onProgress, when non-nil, is invoked for every
// status payload carrying a progress object. Cancellation is checked before
// every sleep and every call; after it fires no further network calls or
// callbacks happen.
func (p *Poller) Wait(ctx context.Context, h *Handle, onProgress func(Progress)) (string, error) {
	var consecutiveErrors int

	for h.Elapsed < p.cfg.MaxElapsed {
		if err := ctx.Err(); err != nil {
			h.Status = StatusCancelled
			return "", cancelErr(err)
		}

		interval := p.cfg.Interval(h.Elapsed)
		if err := insight.Sleep(ctx, interval); err != nil {
			h.Status = StatusCancelled
			return "", cancelErr(err)
		}
		h.Elapsed += interval

		resp, err := p.exec.Do(ctx, insight.Request{Method: http.MethodGet, Path: p.ep.Status + "/" + h.JobID})
		if err != nil {
			if insight.IsCancelled(err) {
				h.Status = StatusCancelled
				return "", err
			}
			consecutiveErrors++
			if consecutiveErrors > p.cfg.MaxConsecutiveErrors {
				h.Status = StatusFailed
				return "", fmt.Errorf("status polling failed %d times in a row: %w", consecutiveErrors, err)
			}
			p.logger.Warn("status fetch failed",
				"job_id", h.JobID,
				"consecutive_errors", consecutiveErrors,
				"error", err,
			)
			continue
		}
		consecutiveErrors = 0

		if prog := parseProgress(resp.JSON); prog != nil {
			h.Progress = prog
			if onProgress != nil {
				onProgress(*prog)
			}
		}

		// Some engine versions flag the result ready before flipping the
		// status; fetch it immediately instead of waiting another tier.
		if ready, _ := resp.JSON["response_ready"].(bool); ready {
			return p.download(ctx, h)
		}

		switch jsonString(resp.JSON, "status") {
		case "completed":
			return p.download(ctx, h)
		case "failed":
			h.Status = StatusFailed
			msg := jsonString(resp.JSON, "error")
			return "", &FailedError{Message: msg, Hint: failureHint(msg)}
		case "queued":
			h.Status = StatusQueued
		case "processing":
			h.Status = StatusProcessing
		default:
			p.logger.Warn("unrecognized job status, continuing to poll",
				"job_id", h.JobID,
				"status", jsonString(resp.JSON, "status"),
			)
		}
	}

	h.Status = StatusTimedOut
	return "", fmt.Errorf("%w (%s elapsed)", ErrTimedOut, h.Elapsed)
}

// Run is Submit followed by Wait.
func (p *Poller) Run(ctx context.Context, body any, onProgress func(Progress)) (string, *Handle, error) {
	h, err := p.Submit(ctx, body)
	if err != nil {
		return "", nil, err
	}
	content, err := p.Wait(ctx, h, onProgress)
	return content, h, err
}

// download fetches the final artifact with its own independently retried call.
func (p *Poller) download(ctx context.Context, h *Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		h.Status = StatusCancelled
		return "", cancelErr(err)
	}

	resp, err := p.exec.Do(ctx, insight.Request{Method: http.MethodGet, Path: p.ep.Download + "/" + h.JobID})
	if err != nil {
		if insight.IsCancelled(err) {
			h.Status = StatusCancelled
		} else {
			h.Status = StatusFailed
		}
		return "", fmt.Errorf("downloading report: %w", err)
	}

	h.Status = StatusCompleted
	return ResultPayload(resp), nil
}

// failureHint matches known substrings of server-reported failure messages to
// remediation text.
func failureHint(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate"):
		return "The engine is rate limiting requests. Wait a moment and retry."
	case strings.Contains(lower, "unavailable") || strings.Contains(lower, "upstream") || strings.Contains(lower, "overload"):
		return "An engine dependency is temporarily unavailable. Try again shortly."
	case strings.Contains(lower, "auth") || strings.Contains(lower, "credential") || strings.Contains(lower, "api key"):
		return "Authentication with the engine failed. Check the configured API key."
	case strings.Contains(lower, "too large") || strings.Contains(lower, "token"):
		return "The request was too large for the engine. Reduce the input size."
	}
	return "The engine reported a failure. Try again later."
}

func cancelErr(cause error) error {
	return fmt.Errorf("%w: %v", insight.ErrCancelled, cause)
}

func parseProgress(obj map[string]any) *Progress {
	raw, ok := obj["progress"].(map[string]any)
	if !ok {
		return nil
	}
	p := &Progress{}
	p.Message, _ = raw["message"].(string)
	if pct, ok := raw["percent"].(float64); ok {
		p.Percent = pct
	}
	return p
}

func jsonString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
