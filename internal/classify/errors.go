package classify

import (
	"errors"
	"fmt"
)

// Sentinel errors recognized by the classifier.
//
// Wrap them to force a classification:
//
//	return fmt.Errorf("failed to refresh token: %w", classify.ErrSessionExpired)
var (
	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled is returned when the caller abandons an operation.
	ErrCanceled = errors.New("operation canceled")

	// ErrSessionExpired is returned when the session's credentials are no
	// longer accepted and the user has to sign in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrPermission is returned when the user may not touch a resource.
	ErrPermission = errors.New("permission denied")

	// ErrValidation is returned when input is rejected before or by the store.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a mutation targets an entity that is not
	// in the cache.
	ErrNotFound = errors.New("entity not found")

	// ErrPending is returned when a mutation targets an entity whose creation
	// has not been confirmed yet.
	ErrPending = errors.New("entity creation still pending")

	// ErrAIProvider is returned by AI providers for failures that have no
	// more specific cause.
	ErrAIProvider = errors.New("AI provider error")
)

// Coder is implemented by errors that carry a machine-readable code, such as
// remote store errors.
type Coder interface {
	ErrorCode() string
}

// Error is a classified failure. It is the only error type coordinators
// surface to callers.
type Error struct {
	Kind    Kind   // category, decides retry and notice
	Op      string // operation name, e.g. "notes.insert"
	Code    string // machine-readable code when one is known
	Message string // human-readable description
	Err     error  // underlying cause
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op, code, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Message: message}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode implements Coder.
func (e *Error) ErrorCode() string {
	return e.Code
}

// Retryable reports whether the failure may succeed on retry.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf classifies err with the default rules.
func KindOf(err error) Kind {
	return Default().Classify(err)
}

// Wrap classifies err with the default rules. See Classifier.Wrap.
func Wrap(op string, err error) *Error {
	return Default().Wrap(op, err)
}

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}

// IsUserActionRequired returns true if the user must sign in again before
// anything else can succeed.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindAuth
}

// NotFound returns the validation error for a mutation that targets an
// entity missing from the cache.
func NotFound(op, what, id string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Code:    "not_found",
		Message: fmt.Sprintf("%s %q not found", what, id),
		Err:     ErrNotFound,
	}
}

// Pending returns the validation error for a mutation that targets an
// entity whose creation is still in flight.
func Pending(op, what, id string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Code:    "pending",
		Message: fmt.Sprintf("%s %q is still being created", what, id),
		Err:     ErrPending,
	}
}

// Invalid returns a validation error for rejected input.
func Invalid(op string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Code:    "invalid",
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %w", ErrValidation, err),
	}
}
