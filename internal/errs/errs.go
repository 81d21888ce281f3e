// Package errs defines the closed error-kind taxonomy used across the
// collection core and the dispatcher that classifies, logs, and decides
// recovery strategy for every failure a collector can raise.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classifications. No component may invent
// a kind outside this set; Unknown is the catch-all for anything else.
type Kind string

const (
	KindRateLimit          Kind = "RateLimit"
	KindConnection         Kind = "Connection"
	KindTimeout            Kind = "Timeout"
	KindAuthentication     Kind = "Authentication"
	KindServerError        Kind = "ServerError"
	KindParsing            Kind = "Parsing"
	KindValidation         Kind = "Validation"
	KindDatabaseConstraint Kind = "DatabaseConstraint"
	KindDatabaseConnection Kind = "DatabaseConnection"
	KindDatabaseTimeout    Kind = "DatabaseTimeout"
	KindDatabaseLock       Kind = "DatabaseLock"
	KindConfiguration      Kind = "Configuration"
	KindSystemResource     Kind = "SystemResource"
	KindCircuitOpen        Kind = "CircuitOpen"
	KindUnknown            Kind = "Unknown"
)

// Severity mirrors the log-level/alert-level the handler assigns a Kind.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is the single typed error value every component raises. It wraps an
// optional underlying cause and carries the classification plus any
// upstream-supplied retry hint.
type Error struct {
	Kind       Kind
	Component  string
	Operation  string
	Message    string
	RetryAfter float64 // seconds; 0 means "not specified"
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a classified error.
func New(kind Kind, component, operation, message string) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message}
}

// Wrap classifies an underlying error under kind.
func Wrap(kind Kind, component, operation string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: cause.Error(), Cause: cause}
}

// WithRetryAfter attaches an upstream retry hint and returns the receiver.
func (e *Error) WithRetryAfter(seconds float64) *Error {
	e.RetryAfter = seconds
	return e
}

// As classifies any error into an *Error, defaulting to KindUnknown when the
// error carries no classification of its own.
func As(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindUnknown, Component: "unknown", Operation: "unknown", Message: err.Error(), Cause: err}
}

// Transient reports whether retrying is ever appropriate for this kind
// ("transient" = connection, timeout, server-5xx, rate-limit, and the
// database connection, timeout and lock kinds).
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimit, KindConnection, KindTimeout, KindServerError,
		KindDatabaseConnection, KindDatabaseTimeout, KindDatabaseLock:
		return true
	default:
		return false
	}
}

// CountsTowardBreaker reports whether this kind should increment a circuit
// breaker's consecutive-failure counter. Only server-side and connection
// kinds count; validation and 4xx client errors never do.
func (k Kind) CountsTowardBreaker() bool {
	switch k {
	case KindConnection, KindTimeout, KindServerError:
		return true
	default:
		return false
	}
}

// Severity returns the default log/alert severity for a kind.
func (k Kind) Severity() Severity {
	switch k {
	case KindAuthentication, KindConfiguration, KindSystemResource:
		return SeverityCritical
	case KindRateLimit, KindParsing, KindUnknown:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// ShouldAlert reports whether the dispatcher should write a system alert row
// for a freshly classified error, independent of retry outcome.
func (k Kind) ShouldAlert() bool {
	switch k {
	case KindAuthentication, KindConfiguration, KindSystemResource, KindCircuitOpen:
		return true
	default:
		return false
	}
}
