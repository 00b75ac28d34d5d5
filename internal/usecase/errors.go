package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"dinner-chat/internal/integrations/openai"
)

type ErrorCode string

const (
	ErrorUnconfigured    ErrorCode = "UNCONFIGURED"
	ErrorUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrorBusy            ErrorCode = "BUSY"
	ErrorSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal for anything else.
func CodeOf(err error) ErrorCode {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code
	}
	return ErrorInternal
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// UpstreamStatus extracts the completion endpoint's HTTP status from err.
func UpstreamStatus(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// classifyCompletionError maps a completion failure onto the send taxonomy.
func classifyCompletionError(err error) *Error {
	switch {
	case errors.Is(err, openai.ErrMissingAPIKey):
		return newError(ErrorUnconfigured, "api_key_missing", err)
	case errors.Is(err, openai.ErrMalformedResponse):
		return newError(ErrorUpstream, "openai_malformed_response", err)
	}
	if status, ok := UpstreamStatus(err); ok {
		if status == http.StatusUnauthorized {
			return newError(ErrorUnauthorized, "openai_unauthorized", err)
		}
		return newError(ErrorUpstream, "openai_error", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorTransport, "openai_request_canceled", err)
	}
	return newError(ErrorTransport, "openai_unreachable", err)
}
