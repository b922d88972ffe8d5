// Package domainerrors carries the error taxonomy shared by services and
// transports. Services return *Error values; transports map Code to a status.
//
// Stores should not construct these directly; they return sentinel errors from
// pkg/platform/sentinel and the owning service translates them.
package domainerrors

import (
	"errors"
)

// Code identifies a class of failure. Values are stable and appear on the wire.
type Code string

const (
	// Generic codes.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeRateLimited        Code = "rate_limited"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// Input errors. Rejected synchronously, never retried.
	CodeContentInvalid Code = "content_invalid"
	CodeNoSigners      Code = "no_signers"

	// Verification errors. Reported to the caller for a fresh attempt.
	CodeVerificationFailed  Code = "verification_failed"
	CodeVerificationTimeout Code = "verification_timeout"
	CodeMethodUnavailable   Code = "method_unavailable"
	CodeIdentityUnavailable Code = "identity_unavailable"

	// Concurrency and availability errors.
	CodeLedgerConflict    Code = "ledger_conflict"
	CodeLedgerUnavailable Code = "ledger_unavailable"

	// State errors.
	CodeAgreementClosed Code = "agreement_closed"
	CodeOutOfOrder      Code = "out_of_order"

	// Verification registry errors.
	CodeCodeNotFound Code = "code_not_found"
	CodeCodeRevoked  Code = "code_revoked"
)

// Error is a domain error with a stable code and a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message of the outermost domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
