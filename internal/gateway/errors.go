package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Errors returned by the gateway and its backends.
//
// Backends either return these sentinels directly (wrapped) or an *APIError
// carrying the HTTP status; both forms satisfy errors.Is:
//
//	if errors.Is(err, gateway.ErrPermissionDenied) {
//	    // access to the sheet was revoked
//	}
var (
	// ErrRateLimited is a resource-exhausted response (HTTP 429).
	// It is transient and recovered by a cooldown sleep.
	ErrRateLimited = errors.New("spreadsheet API rate limit exceeded")

	// ErrPermissionDenied means the service account cannot access the sheet
	// (HTTP 403). It is permanent for the current run.
	ErrPermissionDenied = errors.New("permission denied for spreadsheet")

	// ErrInvalidLink is returned when a sheet link cannot be resolved to a spreadsheet.
	ErrInvalidLink = errors.New("invalid spreadsheet link")
)

// APIError is a failed spreadsheet API call.
type APIError struct {
	Code    int    // HTTP status code
	Message string // message from the API, if any
	Err     error  // underlying error, if any
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("spreadsheet API error %d: %s", e.Code, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is maps status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrPermissionDenied:
		return e.Code == http.StatusForbidden
	}
	return false
}

// Class is the retry classification of a gateway failure.
type Class int

const (
	// ClassOther is any failure that is neither rate limiting nor a permission problem.
	ClassOther Class = iota
	ClassRateLimited
	ClassPermissionDenied
	// ClassCancelled means the caller's context ended; never retried or downgraded.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermissionDenied:
		return "permission_denied"
	case ClassCancelled:
		return "cancelled"
	}
	return "other"
}

// Classify returns the retry class of err. nil classifies as ClassOther.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrPermissionDenied):
		return ClassPermissionDenied
	}
	return ClassOther
}

// IsRetryable returns true if the error is likely to succeed after a cooldown.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRateLimited
}

// IsPermissionDenied returns true if access to the sheet was refused.
func IsPermissionDenied(err error) bool {
	return Classify(err) == ClassPermissionDenied
}
