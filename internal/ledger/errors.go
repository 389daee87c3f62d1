package ledger

import (
	"errors"
	"fmt"
)

// Kind categorizes ledger errors.
type Kind string

const (
	// KindValidation indicates malformed input (negative balance, non-positive rate, ...).
	KindValidation Kind = "VALIDATION_ERROR"

	// KindNotFound indicates an unknown account id, currency account or rate pair.
	KindNotFound Kind = "NOT_FOUND"

	// KindTransfer indicates a simulated external transfer leg failed.
	KindTransfer Kind = "TRANSFER_FAILURE"

	// KindPersistence indicates the durable write of a committed operation failed.
	KindPersistence Kind = "PERSISTENCE_ERROR"
)

// Error is the structured error returned by every ledger-facing component.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed (e.g. "set balance").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf creates a KindValidation error.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a KindNotFound error.
func NotFoundf(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// TransferFailure wraps a failed external transfer leg.
func TransferFailure(op, message string, err error) *Error {
	return &Error{Kind: KindTransfer, Op: op, Message: message, Err: err}
}

// PersistenceFailure wraps a failed durable write.
func PersistenceFailure(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Message: "durable write failed", Err: err}
}

// KindOf returns the Kind of err, or "" if err is not (and does not wrap) an *Error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsTransfer reports whether err is a transfer failure.
func IsTransfer(err error) bool { return KindOf(err) == KindTransfer }

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }
