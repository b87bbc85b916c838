// Package dberr defines the typed failure kinds returned across the core's
// public boundary: document collection, index manager, blob store, and the
// SQL virtual table adapter all return *dberr.Error rather than bare errors.
package dberr

import "fmt"

// Kind classifies a failure so callers can branch on it without string
// matching. IndexCorrupted is fatal: the collection that produced it must be
// considered unusable.
type Kind int

const (
	InvalidArgument Kind = iota
	MissingDatabaseFile
	SchemaMismatch
	FieldMissing
	TypeMismatch
	UnsupportedOperator
	UnsupportedOperand
	MissingDocument
	IOError
	CorruptBlob
	SQLError
	OutOfMemory
	IndexCorrupted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case MissingDatabaseFile:
		return "MissingDatabaseFile"
	case SchemaMismatch:
		return "SchemaMismatch"
	case FieldMissing:
		return "FieldMissing"
	case TypeMismatch:
		return "TypeMismatch"
	case UnsupportedOperator:
		return "UnsupportedOperator"
	case UnsupportedOperand:
		return "UnsupportedOperand"
	case MissingDocument:
		return "MissingDocument"
	case IOError:
		return "IOError"
	case CorruptBlob:
		return "CorruptBlob"
	case SQLError:
		return "SQLError"
	case OutOfMemory:
		return "OutOfMemory"
	case IndexCorrupted:
		return "IndexCorrupted"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every package in the core.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a *Error that wraps an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// GetKind extracts the Kind from err, defaulting to IOError when err is not
// a *Error (an unexpected path — callers should prefer typed construction).
func GetKind(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return IOError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Fatal reports whether kind represents an unrecoverable, process-terminating
// condition per the collection's ingestion-atomicity contract.
func (k Kind) Fatal() bool {
	return k == IndexCorrupted
}
