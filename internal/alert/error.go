// Copyright (c) 2020-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import "errors"

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrBadSignature indicates an alert signature does not verify against
	// any of the trusted alert keys.
	ErrBadSignature = ErrorKind("ErrBadSignature")

	// ErrSuperseded indicates an alert with the same id and an equal or
	// better version and priority is already known, or the id has been
	// cancelled.
	ErrSuperseded = ErrorKind("ErrSuperseded")

	// ErrAlreadyExpired indicates an alert was already past its expiration
	// when it was offered to the store.
	ErrAlreadyExpired = ErrorKind("ErrAlreadyExpired")

	// ErrInvalidKey indicates the private key material supplied for signing
	// is malformed or outside the valid range for the curve.
	ErrInvalidKey = ErrorKind("ErrInvalidKey")

	// ErrMalformed indicates the serialized alert could not be decoded.
	ErrMalformed = ErrorKind("ErrMalformed")

	// ErrInvalidAlert indicates an alert violates one of the field
	// constraints, such as a minimum version above the maximum version.
	ErrInvalidAlert = ErrorKind("ErrInvalidAlert")

	// ErrStoreInvariant indicates the store detected an internal
	// inconsistency.  The operation in progress is aborted.
	ErrStoreInvariant = ErrorKind("ErrStoreInvariant")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an alert related error.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
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

// alertError creates an Error given a set of arguments.
func alertError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}

// IsFatal returns whether the error indicates a condition that must abort the
// operation in progress rather than a rejection of untrusted input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrStoreInvariant)
}
