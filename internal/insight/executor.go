package insight

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first. Every
// suspension point in the client (backoff, poll interval) goes through here
// so cancellation takes effect immediately rather than at the next wake-up.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryNotify is invoked before each backoff sleep with the attempt that just
// failed, the attempt budget, the failure category, and the upcoming delay.
type RetryNotify func(attempt, maxRetries int, category Category, delay time.Duration)

// ExecutorOption customizes an Executor at construction.
type ExecutorOption func(*Executor)

// WithRetryNotify registers a callback fired before each retry backoff.
func WithRetryNotify(fn RetryNotify) ExecutorOption {
	return func(e *Executor) { e.onRetry = fn }
}

// Executor issues bounded, cancellable engine calls and owns the attempt
// loop: classify, back off, escalate the per-attempt timeout, give up.
type Executor struct {
	transport Transport
	cfg       RetryConfig
	logger    *slog.Logger
	onRetry   RetryNotify
}

// NewExecutor builds an Executor over the given transport. Zero-valued
// config fields fall back to defaults.
func NewExecutor(t Transport, cfg RetryConfig, logger *slog.Logger, opts ...ExecutorOption) (*Executor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{transport: t, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the executor's effective retry configuration.
func (e *Executor) Config() RetryConfig { return e.cfg }

// Execute runs a single attempt bounded by timeout. Caller cancellation is
// surfaced as a cancelled *Error and is never treated as a failed attempt.
func (e *Executor) Execute(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Category: CategoryCancelled, Hint: Remediation(CategoryCancelled, 0), Err: ErrCancelled}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.transport.Do(attemptCtx, req)
	if err != nil {
		// Parent cancellation wins over the attempt deadline.
		if ctx.Err() != nil && attemptCtx.Err() != context.DeadlineExceeded {
			return nil, &Error{Category: CategoryCancelled, Hint: Remediation(CategoryCancelled, 0), Err: ErrCancelled}
		}
		return nil, err
	}
	return resp, nil
}

// Do issues the request with up to MaxRetries attempts. Fatal classifications
// return immediately; retryable ones back off with jitter and, after a
// timeout, escalate the next attempt's deadline. Exhaustion returns an
// *Error aggregating the last category, status, and remediation hint.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := e.cfg.BaseTimeout

	var (
		lastCat    Category
		lastStatus int
		lastErr    error
	)

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		resp, err := e.Execute(ctx, req, timeout)
		if err != nil {
			if IsCancelled(err) {
				return nil, err
			}
			lastCat = Classify(err, 0)
			lastStatus = 0
			lastErr = err
		} else if resp.Status >= 200 && resp.Status < 300 {
			return resp, nil
		} else {
			cat := Classify(nil, resp.Status)
			statusErr := fmt.Errorf("engine returned status %d", resp.Status)
			if !cat.Retryable() {
				return nil, &Error{Category: cat, Status: resp.Status, Hint: Remediation(cat, resp.Status), Err: statusErr}
			}
			lastCat = cat
			lastStatus = resp.Status
			lastErr = statusErr
		}

		if !lastCat.Retryable() {
			break
		}

		timeout = e.cfg.NextTimeout(timeout, lastCat == CategoryTimeout || lastCat == CategoryGatewayTimeout)

		if attempt < e.cfg.MaxRetries {
			delay := e.cfg.Delay(attempt)
			if e.onRetry != nil {
				e.onRetry(attempt, e.cfg.MaxRetries, lastCat, delay)
			}
			e.logger.Warn("retrying engine request",
				"method", req.Method,
				"path", req.Path,
				"attempt", attempt,
				"max_retries", e.cfg.MaxRetries,
				"category", lastCat.String(),
				"delay_ms", delay.Milliseconds(),
			)
			if err := Sleep(ctx, delay); err != nil {
				return nil, &Error{Category: CategoryCancelled, Hint: Remediation(CategoryCancelled, 0), Err: ErrCancelled}
			}
		}
	}

	return nil, &Error{
		Category: lastCat,
		Status:   lastStatus,
		Hint:     Remediation(lastCat, lastStatus),
		Err:      fmt.Errorf("exhausted %d attempts: %w", e.cfg.MaxRetries, lastErr),
	}
}
