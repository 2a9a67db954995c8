package chat

import (
	"errors"
	"fmt"
)

// Code is the stable identifier surfaced to callers. Presentation layers
// localize on it, so values must never change.
type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeBlocked            Code = "BLOCKED"
	CodeAlreadyBlocked     Code = "ALREADY_BLOCKED"
	CodeNotBlocked         Code = "NOT_BLOCKED"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeFileTooLarge       Code = "FILE_TOO_LARGE"
	CodeFileTypeNotAllowed Code = "FILE_TYPE_NOT_ALLOWED"
	CodeInternal           Code = "INTERNAL"
)

// Error is the only error type returned across the Service boundary.
type Error struct {
	Code    Code
	Quota   QuotaKind // set only for CodeRateLimited
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Quota != "" {
		msg += " (" + string(e.Quota) + ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so callers can write errors.Is(err, chat.ErrBlocked).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Quota != "" && t.Quota != e.Quota {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func wrapError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func rateLimited(kind QuotaKind) *Error {
	return &Error{Code: CodeRateLimited, Quota: kind, Message: "quota exceeded"}
}

func invalidInput(msg string) *Error {
	return newError(CodeInvalidInput, msg)
}

func internal(msg string, cause error) *Error {
	return wrapError(CodeInternal, msg, cause)
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated    = newError(CodeUnauthenticated, "")
	ErrUnauthorized       = newError(CodeUnauthorized, "")
	ErrNotFound           = newError(CodeNotFound, "")
	ErrInvalidInput       = newError(CodeInvalidInput, "")
	ErrRateLimited        = newError(CodeRateLimited, "")
	ErrBlocked            = newError(CodeBlocked, "")
	ErrAlreadyBlocked     = newError(CodeAlreadyBlocked, "")
	ErrNotBlocked         = newError(CodeNotBlocked, "")
	ErrStorageUnavailable = newError(CodeStorageUnavailable, "")
	ErrFileTooLarge       = newError(CodeFileTooLarge, "")
	ErrFileTypeNotAllowed = newError(CodeFileTypeNotAllowed, "")
)

// CodeOf extracts the Code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// QuotaOf returns the exhausted quota for a RATE_LIMITED error.
func QuotaOf(err error) QuotaKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Quota
	}
	return ""
}

// Store adapters return these so the service can translate them.
var (
	ErrNoRows         = errors.New("chat: no rows")
	ErrDuplicateBlock = errors.New("chat: conversation already blocked")
)
