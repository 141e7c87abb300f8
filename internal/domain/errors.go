package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// ErrRequestNotFound indicates the request ID is not tracked.
var ErrRequestNotFound = errors.New("request not found")

// ErrRequestCancelled indicates the request was cancelled before a result
// could be delivered.
var ErrRequestCancelled = errors.New("request cancelled")

// Code classifies a generation error. The set is closed; retry policy is
// decided per code, never by matching message strings.
type Code int

const (
	// CodeUnknown covers errors that match no other category.
	CodeUnknown Code = iota

	// Transient network failures.
	CodeNetwork
	CodeRateLimited
	CodeTimeout
	CodeConnection

	// Transient storage failures.
	CodePersistence

	// Provider-side failures, treated as possibly transient.
	CodeProvider

	// Configuration and credential failures.
	CodeInvalidAPIKey
	CodeMissingCredentials
	CodeAuthentication
	CodeConfiguration

	// Semantic failures in the request itself.
	CodeValidation
	CodeUnsupported
	CodeInvalidRequest

	// Structural failures in the provider's response.
	CodeResponseFormat
	CodeDataConversion
)

// String returns the snake_case name of the code.
func (c Code) String() string {
	switch c {
	case CodeNetwork:
		return "network_error"
	case CodeRateLimited:
		return "rate_limit_exceeded"
	case CodeTimeout:
		return "timeout"
	case CodeConnection:
		return "connection_failed"
	case CodePersistence:
		return "persistence_error"
	case CodeProvider:
		return "provider_error"
	case CodeInvalidAPIKey:
		return "invalid_api_key"
	case CodeMissingCredentials:
		return "missing_credentials"
	case CodeAuthentication:
		return "authentication_failed"
	case CodeConfiguration:
		return "configuration_error"
	case CodeValidation:
		return "validation_error"
	case CodeUnsupported:
		return "unsupported_operation"
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeResponseFormat:
		return "unexpected_response_format"
	case CodeDataConversion:
		return "data_conversion_error"
	default:
		return "unknown_error"
	}
}

// Retryable reports whether errors of this code are worth retrying.
// Unknown and provider-side errors fail open toward retry; that is a
// tunable policy, not a guarantee (see DESIGN.md).
func (c Code) Retryable() bool {
	switch c {
	case CodeNetwork, CodeRateLimited, CodeTimeout, CodeConnection,
		CodePersistence, CodeProvider, CodeUnknown:
		return true
	default:
		return false
	}
}

// Error is the taxonomy error carried through the orchestration core.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// E creates a taxonomy error without an underlying cause.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a taxonomy error wrapping an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable classifies an arbitrary error for the retry loop. Context
// cancellation and expiry are never retried; unclassified errors are
// treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.Retryable()
	}
	return CodeUnknown.Retryable()
}

// CodeOf extracts the taxonomy code from an error, or CodeUnknown when the
// error carries none.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}
