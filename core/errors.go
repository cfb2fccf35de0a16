package core

import "github.com/pkg/errors"

// Error kinds. Domain packages classify their errors with one of these through DomainError.
var (
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrMismatch        = errors.New("mismatch")
	ErrConflict        = errors.New("conflict")
	ErrTooManyRequests = errors.New("too many requests")
)

// DomainError is an expected business failure; Msg is safe to show to users.
type DomainError struct {
	Kind error
	Msg  string
}

func NewDomainError(kind error, msg string) *DomainError {
	return &DomainError{Kind: kind, Msg: msg}
}

func (err *DomainError) Error() string { return err.Msg }

func (err *DomainError) Unwrap() error { return err.Kind }

// IsKind reports whether the cause of err is a DomainError of the given kind.
func IsKind(err error, kind error) bool {
	derr, ok := errors.Cause(err).(*DomainError)
	return ok && derr.Kind == kind
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
