package telnet

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Conn read operations.
var (
	// ErrPatternNotFound is returned by ReadUntil when the deadline elapses
	// before the pattern appears. Bytes collected so far are still returned.
	ErrPatternNotFound = errors.New("pattern not found before deadline")

	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// ConnectionError reports a failed connection attempt. Establishment
// failures are hard failures; they are never retried.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports a read or write failure on an established
// connection. The session owning the connection is no longer usable.
type TransportError struct {
	Op   string // "read" or "write"
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportDead reports whether err indicates the underlying connection
// can no longer be used.
func IsTransportDead(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrClosed)
}
