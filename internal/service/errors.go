package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRunStopped means the sync row left the running state under us,
	// through a cancel or the reaper.
	ErrRunStopped = errors.New("sync run is no longer running")
)

// AuthError means the platform rejected the token. It is never retried.
type AuthError struct {
	Message   string
	ExpiresAt *time.Time
}

func (e *AuthError) Error() string {
	if e.ExpiresAt != nil {
		return fmt.Sprintf("auth error: %s (token expired at %s)", e.Message, e.ExpiresAt.Format(time.RFC3339))
	}
	return "auth error: " + e.Message
}

type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
}

type TransientNetworkError struct {
	Message string
	Err     error
}

func (e *TransientNetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient error: %s: %v", e.Message, e.Err)
	}
	return "transient error: " + e.Message
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("permanent error %d: %s", e.Code, e.Message)
	}
	return "permanent error: " + e.Message
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ConflictError reports that a job holding the same key is already running.
type ConflictError struct {
	Key       string
	RunningID int64
}

func (e *ConflictError) Error() string {
	if e.RunningID != 0 {
		return fmt.Sprintf("%s is already running (id %d)", e.Key, e.RunningID)
	}
	return e.Key + " is already running"
}

// Retryable reports whether a sync phase failing with err may be attempted again.
func Retryable(err error) bool {
	var rl *RateLimitError
	var tn *TransientNetworkError
	return errors.As(err, &rl) || errors.As(err, &tn)
}

// errorCode is the short code stored with api_errors entries.
func errorCode(err error) string {
	var (
		ae *AuthError
		rl *RateLimitError
		tn *TransientNetworkError
		pe *PermanentError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ae):
		return "auth"
	case errors.As(err, &rl):
		return "rate_limit"
	case errors.As(err, &tn):
		return "transient"
	case errors.As(err, &pe):
		if pe.Code != 0 {
			return fmt.Sprintf("permanent_%d", pe.Code)
		}
		return "permanent"
	case errors.As(err, &ve):
		return "validation"
	}
	return "internal"
}
