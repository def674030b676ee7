package store

import (
	"context"
	"errors"
	"strings"
)

// ErrorKind is a short machine-readable category for a failed statement
type ErrorKind string

const (
	KindSyntax     ErrorKind = "syntax"     // malformed SQL, unknown table or column
	KindConstraint ErrorKind = "constraint" // NOT NULL, CHECK, UNIQUE, type mismatch
	KindBusy       ErrorKind = "busy"       // database locked past the busy timeout
	KindReadOnly   ErrorKind = "readonly"
	KindArguments  ErrorKind = "invalid_arguments" // bound values don't fit the statement
	KindOther      ErrorKind = "other"
)

// SQLite primary result codes
const (
	sqliteError      = 1
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteReadOnly   = 8
	sqliteConstraint = 19
	sqliteMismatch   = 20
	sqliteRange      = 25
)

// Error is a statement failure reported by the database
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError classifies a driver error. Context errors pass through untouched
// so callers can tell cancellation from a bad statement.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	if code, ok := driverErrorCode(err); ok {
		switch code & 0xff {
		case sqliteConstraint, sqliteMismatch:
			return KindConstraint
		case sqliteBusy, sqliteLocked:
			return KindBusy
		case sqliteReadOnly:
			return KindReadOnly
		case sqliteRange:
			return KindArguments
		case sqliteError:
			return KindSyntax
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "incomplete input"):
		return KindSyntax
	case strings.Contains(msg, "constraint failed"):
		return KindConstraint
	case strings.Contains(msg, "database is locked"):
		return KindBusy
	case strings.Contains(msg, "expected") && strings.Contains(msg, "arguments"):
		return KindArguments
	}
	return KindOther
}
