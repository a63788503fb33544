package storage

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrInvalidConfig reports unusable or already loaded settings.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingField reports a required setting left blank.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidArgument reports a blank or absent required argument.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized reports rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTimeout reports a connection or read/write timeout.
	ErrTimeout = errors.New("timeout")

	// ErrTransportFailure covers every other failure talking to the store.
	ErrTransportFailure = errors.New("transport failure")
)

var kinds = []error{
	ErrInvalidConfig,
	ErrMissingField,
	ErrInvalidArgument,
	ErrNotFound,
	ErrAlreadyExists,
	ErrUnauthorized,
	ErrTimeout,
	ErrTransportFailure,
}

// Error is a failed backend operation.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Op is the operation that failed (e.g. "upload").
	Op string

	// Path is the location involved, if any.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

// NewError builds an *Error.
func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind carried by err, or nil if it has none.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
