// Package seoerr defines the error kinds shared by the fetch, parse and analysis layers.
package seoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it without string matching.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindEmptyResponse Kind = "empty_response"
	KindParseFailed   Kind = "parse_failed"
	KindInvalidInput  Kind = "invalid_input"
	KindDisabled      Kind = "disabled"
	KindNotFound      Kind = "not_found"
)

// Sentinels for errors.Is comparisons.
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrEmptyResponse = &Error{Kind: KindEmptyResponse}
	ErrParseFailed   = &Error{Kind: KindParseFailed}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrDisabled      = &Error{Kind: KindDisabled}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

// Error is a typed failure carrying its kind, the operation that failed and the cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so ErrTransport matches every transport failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New builds an error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
