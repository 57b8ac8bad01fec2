// Package domainerrors carries coded errors across service boundaries.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them
// into coded errors here so transports can map a Code to a status without
// inspecting messages. The locker taxonomy (already_initialized, counter_overflow,
// unauthorized, invalid_expiry, session_already_exists,
// confidential_service_error) is surfaced verbatim to callers.
package domainerrors

import "errors"

// Code classifies a domain error.
type Code string

const (
	// Locker taxonomy.
	CodeAlreadyInitialized   Code = "already_initialized"
	CodeCounterOverflow      Code = "counter_overflow"
	CodeUnauthorized         Code = "unauthorized"
	CodeInvalidExpiry        Code = "invalid_expiry"
	CodeSessionAlreadyExists Code = "session_already_exists"
	CodeConfidentialService  Code = "confidential_service_error"

	// Transport and infrastructure codes.
	CodeUnauthenticated    Code = "unauthenticated"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error with an optional cause.
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

// New returns a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err still yields an error so
// callers never lose the code.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether the outermost coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost coded error without its cause.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
