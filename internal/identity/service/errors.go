package service

import "errors"

// Code is the machine-readable kind of a service failure. Handlers map it to transport statuses.
type Code string

const (
	CodeEmailExists        Code = "email_exists"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountInactive    Code = "account_inactive"
	CodeInvalidToken       Code = "invalid_token"
	CodeAlreadyEnabled     Code = "already_enabled"
	CodeNotEnabled         Code = "not_enabled"
	CodeNotConfigured      Code = "not_configured"
	CodeWrongCode          Code = "wrong_code"
	CodeInvalidInput       Code = "invalid_input"
	CodeTwoFactorRequired  Code = "two_factor_required"
	CodeNotFound           Code = "not_found"
)

// Error is a domain failure with a machine code and a human-readable message.
// Two Errors match under errors.Is when their codes are equal, so callers can
// compare against the sentinels below regardless of the message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors for the auth service; the HTTP handler maps them to statuses.
var (
	ErrEmailExists        = &Error{Code: CodeEmailExists, Message: "email already registered"}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrAccountInactive    = &Error{Code: CodeAccountInactive, Message: "account is inactive"}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken, Message: "invalid or expired token"}
	ErrAlreadyEnabled     = &Error{Code: CodeAlreadyEnabled, Message: "two-factor authentication is already enabled"}
	ErrNotEnabled         = &Error{Code: CodeNotEnabled, Message: "two-factor authentication is not enabled"}
	ErrNotConfigured      = &Error{Code: CodeNotConfigured, Message: "two-factor authentication has not been set up"}
	ErrWrongCode          = &Error{Code: CodeWrongCode, Message: "invalid verification code"}
	ErrTwoFactorRequired  = &Error{Code: CodeTwoFactorRequired, Message: "a two-factor code is required"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
)

func invalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
