package errs

import (
	"errors"
	"fmt"
)

// Error is the coded error carried across service and transport layers.
// Code is stable for clients; Err keeps the original cause for debugging.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns a copy of e carrying err as the cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

// WrapMsg returns a copy of e with extra detail appended to the message.
func (e *Error) WrapMsg(detail string) *Error {
	return &Error{Code: e.Code, Message: e.Message + ": " + detail, Err: e.Err}
}

// Is matches by code so wrapped copies still compare equal to sentinels.
func Is(err error, target *Error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == target.Code
	}
	return false
}

// GetCode returns the error code, or CodeTransient for non-coded errors.
func GetCode(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeTransient
}

const (
	// auth 10xx
	CodeAuth = 1001

	// membership / lookup 20xx
	CodeNotMember = 2001
	CodeNotFound  = 2002

	// request 40xx
	CodeInvalid = 4001

	// storage / transport 50xx
	CodeTransient = 5001
)

var (
	// ErrAuth rejects a connection or request before any room join.
	ErrAuth = New(CodeAuth, "authentication failed")

	// ErrNotMember aborts a write against a group the actor does not belong
	// to; nothing is persisted.
	ErrNotMember = New(CodeNotMember, "not a member of this group")

	ErrNotFound = New(CodeNotFound, "target not found")

	// ErrInvalid rejects a request the caller can fix: a malformed body
	// or arguments that fail validation.
	ErrInvalid = New(CodeInvalid, "invalid request")

	// ErrTransient wraps store or transport failures mid-operation.
	ErrTransient = New(CodeTransient, "temporary failure")
)
