package insight

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// Category classifies a failed attempt against the engine.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTimeout
	CategoryNetwork
	CategoryRateLimited
	CategoryServerError
	CategoryGatewayTimeout
	CategoryClientFatal
	CategoryCancelled
)

func (c Category) String() string {
	switch c {
	case CategoryTimeout:
		return "timeout"
	case CategoryNetwork:
		return "network"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryServerError:
		return "server_error"
	case CategoryGatewayTimeout:
		return "gateway_timeout"
	case CategoryClientFatal:
		return "client_fatal"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed. Unknown failures are
// retryable to stay conservative about transient conditions.
func (c Category) Retryable() bool {
	switch c {
	case CategoryClientFatal, CategoryCancelled:
		return false
	}
	return true
}

// RetryConfig controls the attempt loop: how many attempts, how backoff
// grows, and how the per-attempt timeout escalates after a timeout.
// Immutable once an Executor is built.
type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BaseTimeout       time.Duration
	MaxTimeout        time.Duration
	TimeoutMultiplier float64
}

// DefaultRetryConfig returns the retry defaults used against the engine.
// The timeout multiplier defaults to 1.0: the escalation mechanism exists but
// is held flat to respect the engine gateway's fixed upstream limit.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BaseTimeout:       60 * time.Second,
		MaxTimeout:        180 * time.Second,
		TimeoutMultiplier: 1.0,
	}
}

// WithDefaults fills zero-valued fields from DefaultRetryConfig, so callers
// can override only the knobs they care about.
func (c RetryConfig) WithDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = def.BaseTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = def.MaxTimeout
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = def.TimeoutMultiplier
	}
	return c
}

// Validate checks the config invariants.
func (c RetryConfig) Validate() error {
	if c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("base delay %s exceeds max delay %s", c.BaseDelay, c.MaxDelay)
	}
	if c.BaseTimeout > c.MaxTimeout {
		return fmt.Errorf("base timeout %s exceeds max timeout %s", c.BaseTimeout, c.MaxTimeout)
	}
	return nil
}

// Delay computes the backoff before the next attempt: exponential in the
// 1-based attempt number with ±25% jitter, capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		base *= 2
		if base >= float64(c.MaxDelay) {
			base = float64(c.MaxDelay)
			break
		}
	}
	jitter := 1 + (rand.Float64()*0.5 - 0.25)
	d := time.Duration(base * jitter)
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// NextTimeout escalates the per-attempt timeout after a timed-out attempt,
// capped at MaxTimeout. Non-timeout failures keep the current timeout.
func (c RetryConfig) NextTimeout(current time.Duration, hadTimeout bool) time.Duration {
	if !hadTimeout {
		return current
	}
	next := time.Duration(float64(current) * c.TimeoutMultiplier)
	if next > c.MaxTimeout {
		next = c.MaxTimeout
	}
	return next
}

// Classify maps a transport error or HTTP status to a Category. Message
// matching on the error text is a deliberate heuristic kept behind this one
// function so it can be swapped for structured error codes later.
func Classify(err error, status int) Category {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
			return CategoryCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return CategoryTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return CategoryTimeout
			}
			return CategoryNetwork
		}
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
			return CategoryTimeout
		case strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "broken pipe"):
			return CategoryNetwork
		}
		return CategoryUnknown
	}

	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusGatewayTimeout:
		return CategoryGatewayTimeout
	case status >= 500:
		return CategoryServerError
	case status >= 400:
		return CategoryClientFatal
	}
	return CategoryUnknown
}
