package http

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound        = errors.New("http: resource not found")
	ErrForbidden       = errors.New("http: access forbidden")
	ErrUnauthorized    = errors.New("http: unauthorized")
	ErrServerError     = errors.New("http: server error")
	ErrTooManyRequests = errors.New("http: too many requests")
	ErrShortBody       = errors.New("http: body shorter than Content-Length")
)

// TransientTransferError is a transfer fault that may succeed when retried:
// dropped connections, truncated bodies, server-side errors.
type TransientTransferError struct {
	Op  string
	URL string
	Err error
}

func (e *TransientTransferError) Error() string {
	return fmt.Sprintf("http: transient %s failure for %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransientTransferError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err contains a TransientTransferError.
func IsTransient(err error) bool {
	var terr *TransientTransferError
	return errors.As(err, &terr)
}
