// Package ruleerr defines the error taxonomy shared by every stage of rule
// evaluation.
//
// All taxonomy errors abort the current rule immediately. None of them are
// retried. Outcomes such as "row already exists" or "row not found" are not
// errors and never appear here.
package ruleerr

import (
	"errors"
	"fmt"
)

// Code categorizes a rule evaluation failure.
type Code string

const (
	// MalformedRule indicates the text does not match IF <cond> THEN <action>;.
	MalformedRule Code = "MALFORMED_RULE"

	// MalformedAction indicates the THEN clause matches no action grammar.
	MalformedAction Code = "MALFORMED_ACTION"

	// UnresolvedTriplet indicates a bound reference has no value in the pool.
	UnresolvedTriplet Code = "UNRESOLVED_TRIPLET"

	// UnresolvedColumn indicates an unbound reference has no column for the agent.
	UnresolvedColumn Code = "UNRESOLVED_COLUMN"

	// StoreNotFound indicates a file-backed store locator does not exist.
	StoreNotFound Code = "STORE_NOT_FOUND"

	// UnsupportedStoreKind indicates a store kind that is not functional.
	UnsupportedStoreKind Code = "UNSUPPORTED_STORE_KIND"

	// UnknownAgent indicates the metadata store has no table for the agent.
	UnknownAgent Code = "UNKNOWN_AGENT"

	// InvalidIdentifier indicates a resolved table or column name that is
	// not safe to embed in a query.
	InvalidIdentifier Code = "INVALID_IDENTIFIER"

	// MalformedTriples indicates a triplex string that cannot be parsed.
	MalformedTriples Code = "MALFORMED_TRIPLES"

	// MalformedCondition indicates a condition expression that cannot be parsed
	// or evaluated.
	MalformedCondition Code = "MALFORMED_CONDITION"

	// InvalidContext indicates an agent context that failed validation.
	InvalidContext Code = "INVALID_CONTEXT"
)

// Error is a taxonomy error. Subject holds the offending text or key.
type Error struct {
	Code    Code
	Message string
	Subject string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%q)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a taxonomy error.
func New(code Code, message, subject string) *Error {
	return &Error{Code: code, Message: message, Subject: subject}
}

// Wrap creates a taxonomy error with an underlying cause.
func Wrap(code Code, message, subject string, err error) *Error {
	return &Error{Code: code, Message: message, Subject: subject, Err: err}
}

// Is reports whether err (or anything it wraps) is a taxonomy error with
// the given code.
func Is(err error, code Code) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// CodeOf returns the taxonomy code of err, or "" if err is not a taxonomy error.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
