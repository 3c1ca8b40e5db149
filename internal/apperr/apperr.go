// Package apperr defines the error taxonomy shared by the work order engine.
// Each error carries a Kind; callers match kinds with errors.Is against the
// exported sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is missing or invalid input. Nothing was mutated.
	KindValidation
	// KindPersistence is a failed remote update. The local mutation was reverted.
	KindPersistence
	// KindNotFound is a lookup miss, such as an unknown barcode.
	KindNotFound
	// KindInvariant is an operation rejected because it would break a state invariant.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

var (
	ErrValidation  = errors.New("validation error")
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("not found")
	ErrInvariant   = errors.New("invariant violation")

	// ErrConfirmationRequired is returned when an irreversible operation is
	// invoked without the caller's confirmation.
	ErrConfirmationRequired = &Error{Kind: KindValidation, Msg: "confirmation required"}
)

// Error is an engine error.
type Error struct {
	Kind  Kind
	Op    string
	Field string // set on validation errors naming an input field
	Query string // set on not-found errors so the caller can pivot to a manual search
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels and other *Error values of the same kind and message.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrPersistence:
		return e.Kind == KindPersistence
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvariant:
		return e.Kind == KindInvariant
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && t.Msg == e.Msg && t.Op == "" && t.Field == ""
	}
	return false
}

// Validation returns a validation error for the named field.
func Validation(op, field, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a failed remote update.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Msg: "failed to persist change", Err: err}
}

// NotFound reports a lookup miss for query.
func NotFound(op, query, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Query: query, Msg: fmt.Sprintf(format, args...)}
}

// Invariant reports an operation rejected before any mutation was attempted.
func Invariant(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvariant, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldOf returns the offending field of a validation error.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// QueryOf returns the failed lookup of a not-found error.
func QueryOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Query
	}
	return ""
}
