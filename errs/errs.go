// Package errs provides structured error types and helpers for racesync services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category within the sync pipeline.
type Code string

const (
	// CodeValidation indicates conflicting source data; fatal, never auto-resolved.
	CodeValidation Code = "validation"
	// CodeMalformedRecord indicates a sub-record that failed shape or range checks.
	CodeMalformedRecord Code = "malformed_record"
	// CodeTransient indicates a network, timeout, or rate-limit class failure.
	CodeTransient Code = "transient"
	// CodeFatalSink indicates an authentication or schema rejection by the sink.
	CodeFatalSink Code = "fatal_sink"
	// CodeUnavailable indicates the upstream has aged the data out of its retention window.
	CodeUnavailable Code = "unavailable"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
)

// E captures structured error information produced across the racesync stack.
type E struct {
	Op         string
	Code       Code
	Message    string
	Collection string
	RaceKey    string
	HTTP       int

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:         strings.TrimSpace(op),
		Code:       code,
		Message:    "",
		Collection: "",
		RaceKey:    "",
		HTTP:       0,
		cause:      nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCollection records the destination collection involved in the failure.
func WithCollection(collection string) Option {
	trimmed := strings.TrimSpace(collection)
	return func(e *E) {
		e.Collection = trimmed
	}
}

// WithRaceKey records the race identity key involved in the failure.
func WithRaceKey(key string) Option {
	trimmed := strings.TrimSpace(key)
	return func(e *E) {
		e.RaceKey = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}
	if e.RaceKey != "" {
		parts = append(parts, "race_key="+e.RaceKey)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the error code from err, or empty when err carries no envelope.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ""
}

// IsTransient reports whether err belongs to the retryable failure class.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeTransient
}

// IsFatalSink reports whether err must abort the entire run.
func IsFatalSink(err error) bool {
	return CodeOf(err) == CodeFatalSink
}

// IsUnavailable reports whether the upstream aged the requested data out.
func IsUnavailable(err error) bool {
	return CodeOf(err) == CodeUnavailable
}

// IsNotFound reports whether the requested resource is missing.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
