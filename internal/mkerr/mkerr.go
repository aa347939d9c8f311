// Package mkerr defines the error categories raised across the engine, and a
// small helper for attaching file:line context the way the top-level driver
// wants to print it.
package mkerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind categorizes an error by where in the pipeline it originated. It is
// not a Go error type on its own; it is carried by *Error and checked with
// Is.
type Kind int

const (
	KindParse Kind = iota
	KindUnknownMacroRef
	KindUnclosedMacroRef
	KindIncludeNotFound
	KindNoRule
	KindCycleDetected
	KindRecipeFailed
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindUnknownMacroRef:
		return "UnknownMacroRef"
	case KindUnclosedMacroRef:
		return "UnclosedMacroRef"
	case KindIncludeNotFound:
		return "IncludeNotFound"
	case KindNoRule:
		return "NoRule"
	case KindCycleDetected:
		return "CycleDetected"
	case KindRecipeFailed:
		return "RecipeFailed"
	case KindIO:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Error is a categorized, optionally file:line-tagged error.
type Error struct {
	Kind Kind
	File string
	Line int
	msg  string
	err  error
}

func (e *Error) Error() string {
	loc := ""
	if e.File != "" {
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d: ", e.File, e.Line)
		} else {
			loc = fmt.Sprintf("%s: ", e.File)
		}
	}
	if e.err != nil {
		return fmt.Sprintf("%s%s: %s", loc, e.msg, e.err)
	}
	return loc + e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New builds a bare categorized error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf builds a bare categorized error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category and file:line context to an underlying error,
// using github.com/pkg/errors to record a stack on the wrapped error;
// Unwrap exposes it to errors.Is/errors.As. *Error has no Cause method, so
// errors.Cause stops at the *Error itself.
func Wrap(kind Kind, file string, line int, err error, msg string) *Error {
	return &Error{Kind: kind, File: file, Line: line, msg: msg, err: errors.WithStack(err)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, file string, line int, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, File: file, Line: line, msg: fmt.Sprintf(format, args...), err: errors.WithStack(err)}
}

// Is reports whether the first *Error found in err's unwrap chain has the
// given Kind. Any *Error wrapped beneath that one is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		err = errors.Unwrap(err)
	}
	return e != nil && e.Kind == kind
}
