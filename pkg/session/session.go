// Package session tracks live telnet connections keyed by opaque
// identifiers, so one connection can be reused across separate tool
// invocations. The store is entirely in-memory; "not present" is the
// only closed state a session has.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/txn2/mcp-telnet/pkg/telnet"
)

// Session is a named handle to one open remote connection plus its
// bookkeeping metadata. The connection is exclusively owned: only the
// invocation that checked the session out may read or write it.
type Session struct {
	// ID is unique for the process lifetime and never reused for a
	// different connection.
	ID string

	// Host and Port identify the remote endpoint, immutable once set.
	Host string
	Port int

	// Conn is the live connection handle.
	Conn *telnet.Conn

	// StripEcho records the echo-stripping preference set at creation.
	StripEcho bool

	// CreatedAt is when the connection was established. LastUsedAt is
	// maintained by the store; read it via Info, not directly.
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// New creates a Session with a generated identifier.
func New(host string, port int, conn *telnet.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Host:       host,
		Port:       port,
		Conn:       conn,
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

// Info is a point-in-time copy of a session's metadata, safe to use
// without holding the session checked out.
type Info struct {
	ID         string
	Host       string
	Port       int
	CreatedAt  time.Time
	LastUsedAt time.Time
	Busy       bool
}

// Age returns how long ago the session was created.
func (i Info) Age() time.Duration {
	return time.Since(i.CreatedAt)
}
