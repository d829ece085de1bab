package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOriginForbidden  = errors.New("origin not allowed")
	ErrRequestTooLarge  = errors.New("request exceeds maximum allowed size")
	ErrPayloadTooLarge  = errors.New("file part exceeds maximum allowed size")
	ErrIncompleteUpload = errors.New("upload was not received completely")
	ErrUploadFailed     = errors.New("file upload to storage failed")
	ErrUsageUnavailable = errors.New("usage source unavailable")
)

// ValidationError is a user-facing rejection of bad input. It is never retried.
type ValidationError struct {
	Kind    RejectionKind
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(kind RejectionKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RateLimitError is returned when the caller exceeded the attempt cap.
// Usage is the snapshot read at rejection time, when one was available.
type RateLimitError struct {
	RetryAfter time.Duration
	Usage      *UsageSnapshot
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded; retry after %s", e.RetryAfter)
}

// QuotaExceededError is returned when the projected usage crosses the
// block threshold on at least one dimension.
type QuotaExceededError struct {
	Decision *QuotaDecision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota threshold exceeded for %v", e.Decision.Exceeded)
}
