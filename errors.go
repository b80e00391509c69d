package cloudpoll

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies the kind of API-level failure.
type ErrorCode string

// Error codes returned by compatible provider APIs.
const (
	ErrorCodeUnknown           ErrorCode = "unknown"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeInvalidInput      ErrorCode = "invalid_input"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeForbidden         ErrorCode = "forbidden"
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeConflict          ErrorCode = "conflict"
	ErrorCodeLocked            ErrorCode = "locked"
)

// Error is an API-level failure decoded from a provider error envelope.
// Code, Message and Details are preserved exactly as the API sent them.
type Error struct {
	Code    ErrorCode
	Message string

	// Details holds the envelope's details value verbatim. For malformed
	// envelopes it holds the whole response body.
	Details json.RawMessage

	// Status is the HTTP status code of the response, 0 when the error
	// was not produced from an HTTP response.
	Status int

	// RetryAfter is the server-requested wait from a Retry-After header,
	// 0 when the response carried none.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (%s)", e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// errorEnvelope mirrors the wire shape {"error": {"code", "message", "details"}}.
type errorEnvelope struct {
	Error struct {
		Code    ErrorCode       `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// ErrorFromResponse classifies a non-2xx response into an *Error. It never
// fails: bodies that do not carry a well-formed error envelope produce
// ErrorCodeUnknown with the raw body preserved in Details.
func ErrorFromResponse(statusCode int, body []byte) *Error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Code != "" || env.Error.Message != "") {
		apiErr := &Error{
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Details: env.Error.Details,
			Status:  statusCode,
		}
		if apiErr.Code == "" {
			apiErr.Code = ErrorCodeUnknown
		}
		return apiErr
	}

	return &Error{
		Code:    ErrorCodeUnknown,
		Message: fmt.Sprintf("unexpected error response (status %d)", statusCode),
		Details: json.RawMessage(body),
		Status:  statusCode,
	}
}

// IsError reports whether err is or wraps an API *Error with the given code.
func IsError(err error, code ErrorCode) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotFound reports whether err is an API not_found error.
func IsNotFound(err error) bool {
	return IsError(err, ErrorCodeNotFound)
}

// IsUnauthorized reports whether err is an API unauthorized or forbidden error.
func IsUnauthorized(err error) bool {
	return IsError(err, ErrorCodeUnauthorized) || IsError(err, ErrorCodeForbidden)
}

// IsRateLimited reports whether err is an API rate_limit_exceeded error.
func IsRateLimited(err error) bool {
	return IsError(err, ErrorCodeRateLimitExceeded)
}

// IsConflict reports whether err is an API conflict error.
func IsConflict(err error) bool {
	return IsError(err, ErrorCodeConflict)
}
