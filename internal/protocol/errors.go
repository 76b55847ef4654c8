package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed       = errors.New("malformed message")
	ErrNotFound        = errors.New("not found")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrVersionMismatch = errors.New("protocol version not supported")
)

// TransportError reports a failed read or write on the underlying connection.
// It is never answered with a protocol response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from the connection rather than the message.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusFor maps a handler error onto the status code sent back to the peer.
func StatusFor(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrVersionMismatch):
		return StatusVersionNotSupported
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	default:
		return StatusBadRequest
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
