package logstore

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrConfig reports missing or invalid settings. Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrIO reports a file open/write/read failure.
	ErrIO = errors.New("io error")

	// ErrArchive reports a failed archive creation. The source file is left in place.
	ErrArchive = errors.New("archive error")

	// ErrParse reports a malformed row. Queries skip such rows.
	ErrParse = errors.New("parse error")

	// ErrRetention reports a failed archive deletion during a sweep.
	ErrRetention = errors.New("retention error")

	// ErrInvalidEntry reports a reading that cannot be stored as a single row.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrNotStarted is returned by write operations on a stopped store.
	ErrNotStarted = errors.New("store not started")
)

// Error carries the kind of failure together with the operation and path involved.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error() + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func configErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrConfig, Op: "validate", Err: fmt.Errorf(format, args...)}
}
