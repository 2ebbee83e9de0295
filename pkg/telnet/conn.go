// Package telnet implements a minimal client for line-oriented TCP
// services: a connection adapter with timeout-bounded reads, telnet
// option refusal, and response extraction. It is not a terminal
// emulator; escape sequences pass through untouched.
package telnet

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	readBufSize  = 4096
	drainWindow  = 5 * time.Millisecond
	writeTimeout = 10 * time.Second
)

// Conn wraps a TCP connection to a telnet-style service. Reads filter
// out telnet option negotiation, refusing every option the remote
// proposes. A Conn is exclusively owned by one command cycle at a time;
// only Close is safe to call concurrently.
type Conn struct {
	conn net.Conn
	addr string

	// pending holds filtered bytes read past a ReadUntil match, consumed
	// by the next read.
	pending []byte
	neg     negotiator

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial establishes a connection to host:port with a single attempt.
// Failures (refused, unreachable, resolution, timeout) are returned as
// a *ConnectionError.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Host: host, Port: port, Err: err}
	}
	return &Conn{conn: conn, addr: addr}, nil
}

// RemoteAddr returns the dialed address in host:port form.
func (c *Conn) RemoteAddr() string { return c.addr }

// Write sends raw bytes. The caller is responsible for command framing.
func (c *Conn) Write(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(p); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		return &TransportError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

// ReadAvailable returns whatever bytes arrive within the window. An
// elapsed window is not an error; absence of data is a valid outcome.
func (c *Conn) ReadAvailable(window time.Duration) ([]byte, error) {
	deadline := time.Now().Add(window)
	out := c.takePending()
	buf := make([]byte, readBufSize)

	for {
		if c.closed.Load() {
			return out, ErrClosed
		}
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			out = append(out, c.filter(buf[:n])...)
		}
		if err != nil {
			if isTimeout(err) {
				return out, nil
			}
			if c.closed.Load() {
				return out, ErrClosed
			}
			return out, &TransportError{Op: "read", Addr: c.addr, Err: err}
		}
		if !time.Now().Before(deadline) {
			return out, nil
		}
	}
}

// ReadUntil blocks until pattern is seen or the window elapses. On a
// miss it returns the bytes collected so far along with
// ErrPatternNotFound so the caller can fall back to a best-effort read.
// Bytes past the match are kept for the next read.
func (c *Conn) ReadUntil(pattern []byte, window time.Duration) ([]byte, error) {
	if len(pattern) == 0 {
		return c.ReadAvailable(window)
	}

	deadline := time.Now().Add(window)
	out := c.takePending()
	buf := make([]byte, readBufSize)

	for {
		if i := bytes.Index(out, pattern); i >= 0 {
			end := i + len(pattern)
			c.pending = append(c.pending, out[end:]...)
			return out[:end], nil
		}
		if c.closed.Load() {
			return out, ErrClosed
		}
		if !time.Now().Before(deadline) {
			return out, ErrPatternNotFound
		}
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			out = append(out, c.filter(buf[:n])...)
		}
		if err != nil {
			if isTimeout(err) {
				return out, ErrPatternNotFound
			}
			if c.closed.Load() {
				return out, ErrClosed
			}
			return out, &TransportError{Op: "read", Addr: c.addr, Err: err}
		}
	}
}

// Drain discards bytes buffered locally or in the kernel so a late
// response from a previous command cannot bleed into the next command's
// capture. It returns the number of data bytes discarded.
func (c *Conn) Drain() int {
	n := len(c.pending)
	c.pending = nil

	deadline := time.Now().Add(drainWindow)
	buf := make([]byte, readBufSize)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		m, err := c.conn.Read(buf)
		if m > 0 {
			n += len(c.filter(buf[:m]))
		}
		if err != nil {
			return n
		}
	}
}

// Close releases the transport. It is idempotent; a second call is a
// no-op returning the first call's result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// filter strips telnet command sequences from p and transmits refusals
// for any options the remote proposes. Refusal write failures are
// ignored; the following data read or write reports the dead transport.
func (c *Conn) filter(p []byte) []byte {
	data, replies := c.neg.filter(p)
	if len(replies) > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, _ = c.conn.Write(replies)
	}
	return data
}

func (c *Conn) takePending() []byte {
	out := c.pending
	c.pending = nil
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
