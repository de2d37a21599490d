// Package ssh provides the SSH side of source fetching: deploy key management and a
// connectivity probe against the git host.
package ssh

import "errors"

// TransportError represents an error from the SSH layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "dial", "handshake", "keygen")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// IsTemporary reports whether err is an SSH error worth retrying, such as an unreachable host.
func IsTemporary(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Temporary()
}
