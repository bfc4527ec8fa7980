package tracker

import (
	"errors"
	"fmt"
)

// Kind classifies tracker failures.
type Kind string

const (
	// KindSubscription is a feed setup or delivery failure. It is terminal for the
	// mirror that reports it.
	KindSubscription Kind = "SUBSCRIPTION"
	// KindWrite is a failed insert or delete. Nothing local is changed.
	KindWrite Kind = "WRITE"
	// KindValidation is a rejected submission. No store call was made.
	KindValidation Kind = "VALIDATION"
)

// Error is the error type returned by the tracker.
type Error struct {
	Kind  Kind
	Op    string // "subscribe", "feed", "submit", "remove", "identity"
	Field string // offending field for validation errors
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func subscriptionError(op string, err error) *Error {
	return &Error{Kind: KindSubscription, Op: op, Err: err}
}

func writeError(op string, err error) *Error {
	return &Error{Kind: KindWrite, Op: op, Err: err}
}

func validationError(op, field string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: err}
}

func isKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}

// IsSubscriptionError reports whether err is a feed failure.
func IsSubscriptionError(err error) bool { return isKind(err, KindSubscription) }

// IsWriteError reports whether err is a failed store mutation.
func IsWriteError(err error) bool { return isKind(err, KindWrite) }

// IsValidationError reports whether err is a rejected input.
func IsValidationError(err error) bool { return isKind(err, KindValidation) }
