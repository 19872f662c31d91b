package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrCancelled is returned when an operation is aborted by its caller.
// Cancellation short-circuits every layer: no retries, no further calls.
var ErrCancelled = errors.New("operation cancelled")

// Error is the aggregated failure surfaced after retries are exhausted or a
// fatal response is seen. It carries the machine-readable category and a
// human remediation hint alongside the wrapped cause.
type Error struct {
	Category Category
	Status   int
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("engine request failed (%s, status %d): %v", e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("engine request failed (%s): %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsCancelled reports whether err represents caller cancellation at any layer.
func IsCancelled(err error) bool {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	var ie *Error
	return errors.As(err, &ie) && ie.Category == CategoryCancelled
}

// Remediation returns the human hint for a failure category. 401/403 get
// distinct credential guidance over the generic client-fatal text.
func Remediation(cat Category, status int) string {
	switch cat {
	case CategoryRateLimited:
		return "The engine is rate limiting requests. Wait a moment and retry."
	case CategoryTimeout, CategoryGatewayTimeout:
		return "The engine took too long to respond. Try again, or reduce the input size."
	case CategoryNetwork:
		return "Could not reach the engine. Check your network connection and the engine URL."
	case CategoryServerError:
		return "The engine is busy or unhealthy. Try again later."
	case CategoryClientFatal:
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "Authentication with the engine failed. Check the configured API key."
		case http.StatusNotFound:
			return "The engine endpoint was not found. Check the engine URL and version."
		}
		return "The engine rejected the request. Check the request parameters."
	case CategoryCancelled:
		return "The operation was cancelled."
	}
	return "An unexpected error occurred talking to the engine. Try again."
}
