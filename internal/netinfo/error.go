// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netinfo

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrUnknownNetwork indicates a network name that does not identify a
	// routable network.
	ErrUnknownNetwork = ErrorKind("ErrUnknownNetwork")

	// ErrInvalidProxy indicates a proxy endpoint that is not a host:port.
	ErrInvalidProxy = ErrorKind("ErrInvalidProxy")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies a network configuration error.
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
