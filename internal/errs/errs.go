// Package errs defines the typed error taxonomy shared by the handshake,
// link lifecycle and sync components.
//
// Validation outcomes (bad codes, locked devices, expired links) are expected
// and user facing, so they are returned as *Error values carrying a Code
// rather than as opaque wrapped errors.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error category.
type Code string

const (
	CodeMalformed         Code = "MALFORMED"
	CodeInvalidAccessCode Code = "INVALID_ACCESS_CODE"
	CodeMissingParams     Code = "MISSING_PARAMS"
	CodeChecksumMismatch  Code = "CHECKSUM_MISMATCH"
	CodeExpiredLink       Code = "EXPIRED_LINK"
	CodeLocked            Code = "LOCKED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeSealed            Code = "SEALED"
	CodeRevoked           Code = "REVOKED"
	CodeStageRegression   Code = "STAGE_REGRESSION"
	CodeInvalidPolicy     Code = "INVALID_POLICY"
	CodeSyncFailed        Code = "SYNC_FAILED"
)

// Error is a categorized, user-presentable failure.
type Error struct {
	Code    Code
	Message string

	// Details carries structured context, e.g. the currently locked job.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of e with an extra detail attached.
func (e *Error) With(key, value string) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Details: make(map[string]string, len(e.Details)+1)}
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return out
}

// CodeOf returns the Code carried by err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// NotFound is a convenience constructor for unknown tokens or jobs.
func NotFound(what string) *Error {
	return Newf(CodeNotFound, "%s not found", what)
}
