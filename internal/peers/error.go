// Copyright (c) 2020-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peers

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrDuplicateConnection indicates a connection to the same remote
	// endpoint is already registered and deduplication is enabled.
	ErrDuplicateConnection = ErrorKind("ErrDuplicateConnection")

	// ErrAlreadyAdded indicates the target is already in the added node
	// list.
	ErrAlreadyAdded = ErrorKind("ErrAlreadyAdded")

	// ErrNotFound indicates the target is not in the added node list.
	ErrNotFound = ErrorKind("ErrNotFound")

	// ErrResolutionFailed indicates an added node target could not be
	// resolved.  It is only ever attached to a single listing entry.
	ErrResolutionFailed = ErrorKind("ErrResolutionFailed")

	// ErrInvalidTarget indicates an empty or otherwise unusable connection
	// target.
	ErrInvalidTarget = ErrorKind("ErrInvalidTarget")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a peer registry error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
type Error struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
