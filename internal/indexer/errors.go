package indexer

import (
	"errors"
	"fmt"
)

// Error codes for categorizing indexer errors
const (
	ErrCodeAuthentication  = "AUTH_ERROR"
	ErrCodeSessionExpired  = "SESSION_EXPIRED"
	ErrCodeCaptcha         = "CAPTCHA_REQUIRED"
	ErrCodeRateLimit       = "RATE_LIMIT_ERROR"
	ErrCodeHTTP            = "HTTP_ERROR"
	ErrCodeContentMismatch = "CONTENT_MISMATCH"
	ErrCodeParse           = "PARSE_ERROR"
	ErrCodeDownload        = "DOWNLOAD_ERROR"
	ErrCodeNetwork         = "NETWORK_ERROR"
	ErrCodeConfiguration   = "CONFIG_ERROR"
)

// IndexerError represents a categorized error from an indexer operation.
type IndexerError struct {
	Code        string `json:"code"`                 // Error category code
	Message     string `json:"message"`              // Human-readable message
	IndexerName string `json:"indexer,omitempty"`    // Name of the affected indexer
	StatusCode  int    `json:"statusCode,omitempty"` // HTTP status, when the error came off the wire
	Retryable   bool   `json:"retryable"`            // Whether the operation can be retried
	Cause       error  `json:"-"`                    // Underlying error
}

// Error implements the error interface.
func (e *IndexerError) Error() string {
	if e.IndexerName != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.IndexerName, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is().
func (e *IndexerError) Is(target error) bool {
	var t *IndexerError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Common error instances for comparison
var (
	ErrAuthentication  = &IndexerError{Code: ErrCodeAuthentication, Message: "authentication failed"}
	ErrSessionExpired  = &IndexerError{Code: ErrCodeSessionExpired, Message: "session expired"}
	ErrCaptcha         = &IndexerError{Code: ErrCodeCaptcha, Message: "captcha required"}
	ErrRateLimit       = &IndexerError{Code: ErrCodeRateLimit, Message: "rate limit exceeded"}
	ErrHTTP            = &IndexerError{Code: ErrCodeHTTP, Message: "http error"}
	ErrContentMismatch = &IndexerError{Code: ErrCodeContentMismatch, Message: "unexpected content type"}
	ErrParse           = &IndexerError{Code: ErrCodeParse, Message: "parse error"}
	ErrDownload        = &IndexerError{Code: ErrCodeDownload, Message: "download failed"}
	ErrNetwork         = &IndexerError{Code: ErrCodeNetwork, Message: "network error"}
	ErrConfiguration   = &IndexerError{Code: ErrCodeConfiguration, Message: "configuration error"}
)

// NewAuthError creates an authentication error.
func NewAuthError(indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeAuthentication,
		Message:     "authentication failed",
		IndexerName: indexerName,
		Retryable:   false, // Auth errors usually need credential fixes
		Cause:       cause,
	}
}

// NewCaptchaError creates an error for a login blocked on a captcha
// challenge awaiting out-of-band user input.
func NewCaptchaError(indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeCaptcha,
		Message:     "captcha challenge must be solved before login can continue",
		IndexerName: indexerName,
		Retryable:   false,
		Cause:       cause,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeRateLimit,
		Message:     "rate limit exceeded",
		IndexerName: indexerName,
		StatusCode:  429,
		Retryable:   true, // Can retry after backoff
		Cause:       cause,
	}
}

// NewHTTPError creates an error for a non-success HTTP status.
func NewHTTPError(indexerName string, status int, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeHTTP,
		Message:     fmt.Sprintf("unexpected status %d", status),
		IndexerName: indexerName,
		StatusCode:  status,
		Retryable:   status >= 500,
		Cause:       cause,
	}
}

// NewContentMismatchError creates an error for a success response whose
// content type does not match what the request expected.
func NewContentMismatchError(indexerName, expected, got string) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeContentMismatch,
		Message:     fmt.Sprintf("expected %s, got %s", expected, got),
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// NewParseError creates a parsing error.
func NewParseError(indexerName string, message string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeParse,
		Message:     message,
		IndexerName: indexerName,
		Retryable:   false, // Parse errors are usually definition bugs
		Cause:       cause,
	}
}

// NewDownloadError creates a download error.
func NewDownloadError(indexerName string, message string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeDownload,
		Message:     message,
		IndexerName: indexerName,
		Retryable:   false,
		Cause:       cause,
	}
}

// NewNetworkError creates a transient network error.
func NewNetworkError(indexerName string, cause error) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeNetwork,
		Message:     "network error",
		IndexerName: indexerName,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(indexerName string, message string) *IndexerError {
	return &IndexerError{
		Code:        ErrCodeConfiguration,
		Message:     message,
		IndexerName: indexerName,
		Retryable:   false,
	}
}

// IsRetryable returns whether the error is retryable.
func IsRetryable(err error) bool {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Retryable
	}
	return false
}

// IsAuthError returns whether the error is an authentication error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsRateLimitError returns whether the error is a rate limit error.
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var indexerErr *IndexerError
	if errors.As(err, &indexerErr) {
		return indexerErr.Code
	}
	return ""
}
