package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors represent the failure taxonomy of the engine.
// Adapters wrap one of these with %w so callers can classify with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion Errors.

	// ErrUnsupportedFormat indicates a file format tag no normaliser handles.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParse indicates a file could not be decoded as its declared format.
	ErrParse = errors.New("parse error")

	// ErrPayloadTooLarge indicates a file exceeded the configured size ceiling.
	// The check happens before any parsing.
	ErrPayloadTooLarge = errors.New("payload too large")

	// Backend Errors.

	// ErrAuth indicates the backend rejected the credential, or none was given.
	// Never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimit indicates the backend throttled the request.
	ErrRateLimit = errors.New("rate limited")

	// ErrNetwork indicates a transport level failure or a 5xx from the backend.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates the per-attempt deadline elapsed.
	ErrTimeout = errors.New("request timed out")

	// ErrProviderResponse indicates the backend answered with something the
	// adapter could not use (unexpected status, empty content).
	ErrProviderResponse = errors.New("unexpected provider response")

	// ErrInvalidConfig indicates a backend configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid backend configuration")

	// ErrCanceled indicates the caller abandoned the request.
	ErrCanceled = errors.New("request canceled")

	// Result Errors.

	// ErrDirectiveValidation indicates a chart directive referenced fields
	// absent from the dataset it was derived from.
	ErrDirectiveValidation = errors.New("directive validation failed")

	// ErrStorage indicates the history store could not be read or written.
	ErrStorage = errors.New("storage error")
)

// ErrorKind is the stable name of a taxonomy entry. It is what gets persisted
// in history records and surfaced in failed results.
type ErrorKind string

// Known error kinds.
const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindInvalidInput      ErrorKind = "InvalidInput"
	ErrorKindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	ErrorKindParse             ErrorKind = "ParseError"
	ErrorKindPayloadTooLarge   ErrorKind = "PayloadTooLarge"
	ErrorKindAuth              ErrorKind = "AuthError"
	ErrorKindRateLimit         ErrorKind = "RateLimitError"
	ErrorKindNetwork           ErrorKind = "NetworkError"
	ErrorKindTimeout           ErrorKind = "TimeoutError"
	ErrorKindProviderResponse  ErrorKind = "ProviderResponseError"
	ErrorKindInvalidConfig     ErrorKind = "InvalidConfig"
	ErrorKindCanceled          ErrorKind = "Canceled"
	ErrorKindStorage           ErrorKind = "StorageError"
	ErrorKindUnknown           ErrorKind = "UnknownError"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnsupportedFormat, ErrorKindUnsupportedFormat},
	{ErrParse, ErrorKindParse},
	{ErrPayloadTooLarge, ErrorKindPayloadTooLarge},
	{ErrAuth, ErrorKindAuth},
	{ErrRateLimit, ErrorKindRateLimit},
	{ErrTimeout, ErrorKindTimeout},
	{ErrNetwork, ErrorKindNetwork},
	{ErrProviderResponse, ErrorKindProviderResponse},
	{ErrInvalidConfig, ErrorKindInvalidConfig},
	{ErrCanceled, ErrorKindCanceled},
	{ErrStorage, ErrorKindStorage},
	{ErrInvalidInput, ErrorKindInvalidInput},
}

// ClassifyError maps err onto the taxonomy. Bare context errors are mapped
// too: a deadline counts as a timeout, a cancellation as Canceled.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	}
	return ErrorKindUnknown
}

// DescribeError returns a short message suitable for end users.
func DescribeError(kind ErrorKind) string {
	switch kind {
	case ErrorKindUnsupportedFormat:
		return "The file format is not supported."
	case ErrorKindParse:
		return "The file could not be read as its declared format."
	case ErrorKindPayloadTooLarge:
		return "The file is larger than the configured limit."
	case ErrorKindAuth:
		return "The API key is missing, invalid or lacks permission."
	case ErrorKindRateLimit:
		return "The provider is throttling requests or the account quota is exhausted."
	case ErrorKindNetwork:
		return "The provider could not be reached."
	case ErrorKindTimeout:
		return "The provider did not answer in time."
	case ErrorKindProviderResponse:
		return "The provider returned a response that could not be used."
	case ErrorKindInvalidConfig:
		return "The backend configuration is incomplete."
	case ErrorKindCanceled:
		return "The request was canceled."
	case ErrorKindStorage:
		return "The history store is unavailable."
	case ErrorKindInvalidInput:
		return "The request is incomplete."
	case ErrorKindNone:
		return ""
	default:
		return "The analysis failed unexpectedly."
	}
}

// BackendError carries provider detail alongside a taxonomy sentinel.
type BackendError struct {
	// Kind is one of the backend sentinels (ErrAuth, ErrRateLimit, ...).
	Kind error

	// Provider that produced the failure.
	Provider Provider

	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// RetryAfter is the provider's requested wait, zero when absent.
	RetryAfter time.Duration

	// Message is the provider's own description, if any.
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap allows errors.Is to match the taxonomy sentinel.
func (e *BackendError) Unwrap() error {
	return e.Kind
}

// RetryAfterHint extracts the provider's requested wait from err, if any.
func RetryAfterHint(err error) time.Duration {
	var be *BackendError
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
