// Package apperror is the standardized error structure shared across the
// proxy's ingress, forwarder, and control surfaces.
package apperror

import "fmt"

// Kind categorizes an error by how the caller should react to it.
type Kind string

const (
	// KindClient represents malformed or invalid caller input. Never retried
	// by the proxy and never journaled.
	KindClient Kind = "CLIENT"

	// KindTransient represents a failure that may succeed if retried
	// unchanged (network blips, upstream 5xx/429, store contention).
	KindTransient Kind = "TRANSIENT"

	// KindTerminal represents an upstream 4xx (other than 429): retrying
	// with the same input will not help.
	KindTerminal Kind = "TERMINAL"

	// KindInternal represents an unexpected failure in the proxy itself
	// (store corruption, config error, programmer error).
	KindInternal Kind = "INTERNAL"
)

// AppError is the standardized error type returned by every layer of the
// proxy. It carries enough structure for the HTTP error handler, the
// forwarder's retry decision, and the control surface's status reporting
// to all agree on what happened.
type AppError struct {
	// Code is a machine-readable identifier, e.g. "UPSTREAM_UNREACHABLE".
	Code string
	// Message is a human-readable explanation safe to return to a caller.
	Message string
	// Kind determines retryability and default HTTP mapping.
	Kind Kind
	// Details holds optional structured context (validation field errors,
	// upstream status, etc).
	Details any
	// Err is the wrapped underlying error, if any.
	Err error
}

func New(code, message string, kind Kind, err error) *AppError {
	return &AppError{Code: code, Message: message, Kind: kind, Err: err}
}

func NewClient(code, message string, err error) *AppError {
	return New(code, message, KindClient, err)
}

func NewTransient(code, message string, err error) *AppError {
	return New(code, message, KindTransient, err)
}

func NewTerminal(code, message string, err error) *AppError {
	return New(code, message, KindTerminal, err)
}

func NewInternal(code, message string, err error) *AppError {
	return New(code, message, KindInternal, err)
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair to Details, initializing it as a map
// if necessary.
func (e *AppError) WithDetail(key string, value any) *AppError {
	m, ok := e.Details.(map[string]any)
	if !ok || m == nil {
		m = make(map[string]any)
	}
	m[key] = value
	e.Details = m
	return e
}

// IsRetryable reports whether replaying the originating operation might
// eventually succeed without changing its input.
func (e *AppError) IsRetryable() bool {
	return e.Kind == KindTransient
}

// GetHTTPStatus resolves the HTTP status code a caller should see for this
// error, first via the explicit code table, then by Kind.
func (e *AppError) GetHTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	switch e.Kind {
	case KindClient:
		return 400
	case KindTransient:
		return 503
	case KindTerminal:
		return 502
	default:
		return 500
	}
}

// ToMap renders the error for structured logging.
func (e *AppError) ToMap() map[string]any {
	m := map[string]any{
		"code":         e.Code,
		"kind":         string(e.Kind),
		"is_retryable": e.IsRetryable(),
	}
	if e.Details != nil {
		m["details"] = e.Details
	}
	if e.Err != nil {
		m["cause"] = e.Err.Error()
	}
	return m
}

func (e *AppError) String() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
