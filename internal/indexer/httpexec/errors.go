package httpexec

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classifying failed executions. Callers match with
// errors.Is and translate into their own error taxonomy.
var (
	// ErrRateLimited means the site or a local budget said to back off.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionExpired means a relogin was attempted and the site still
	// served a login page.
	ErrSessionExpired = errors.New("session expired")
)

// RateLimitError carries how long the caller should wait before the
// next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
	Source     string // "site" or the exhausted local budget
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s, retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StatusError is a non-success HTTP status. The body is kept for
// diagnostics.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// ContentMismatchError is a success response whose content type does
// not match what the request asked for, typically an HTML error page
// where JSON or XML was expected.
type ContentMismatchError struct {
	Expected string
	Got      string
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("expected %s response, got %s", e.Expected, e.Got)
}
