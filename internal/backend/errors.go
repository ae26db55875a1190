package backend

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies structured backend failures
type ErrorCode string

const (
	// CodeRateLimited signals the client must back off for Data.RetryAfter.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeForbidden   ErrorCode = "FORBIDDEN"
)

// ErrorData is the optional payload of a structured backend error
type ErrorData struct {
	// RetryAfter is how long the client should wait before retrying.
	RetryAfter time.Duration `json:"retry_after_ms"`
}

// Error is a structured backend failure, distinguishable from generic errors
// by its Code.
type Error struct {
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %s: %s", e.Code, e.Message)
	}
	return "backend: " + e.Message
}

// AsRateLimit reports whether err is a backend rate-limit error and, if so,
// how long to back off.
func AsRateLimit(err error) (time.Duration, bool) {
	var be *Error
	if errors.As(err, &be) && be.Code == CodeRateLimited {
		return be.Data.RetryAfter, true
	}
	return 0, false
}
