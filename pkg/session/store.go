package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Store errors.
var (
	// ErrNotFound is returned when an identifier is absent from the
	// store. Whoever removed the session owns (and closed) its
	// connection.
	ErrNotFound = errors.New("session not found")

	// ErrBusy is returned when a session is already checked out by a
	// concurrent invocation. Commands are never interleaved on one
	// connection; callers fail fast rather than queue on the socket.
	ErrBusy = errors.New("session busy")
)

// Store is a concurrency-safe mapping from session identifier to
// Session. Checkout grants exclusive ownership of the connection; all
// map operations hold the lock briefly, and the lengthy read/write
// cycles happen outside it against a checked-out session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	order    []string // insertion order for List
	ttl      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type entry struct {
	sess *Session
	busy bool
}

// NewStore creates an empty store. A non-zero ttl enables idle
// eviction via StartCleanupRoutine.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
	}
}

// Put registers a new session, checked out by the caller. The caller
// must Release or Remove it when the invocation finishes.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = &entry{sess: sess, busy: true}
	s.order = append(s.order, sess.ID)
}

// Checkout atomically claims a session for exclusive use. It returns
// ErrNotFound for unknown identifiers and ErrBusy when another
// invocation holds the session.
func (s *Store) Checkout(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.busy {
		return nil, ErrBusy
	}
	e.busy = true
	return e.sess, nil
}

// Release returns a checked-out session to the store and refreshes its
// last-used time. Releasing a session that was removed mid-flight is a
// no-op.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return
	}
	e.busy = false
	e.sess.LastUsedAt = time.Now()
}

// Touch refreshes a session's last-used time.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.sess.LastUsedAt = time.Now()
	}
}

// Remove deletes a session from the store, transferring ownership of
// the connection to the caller, who is responsible for closing it. It
// works whether or not the session is checked out: an in-flight
// invocation holding a removed session sees its subsequent operations
// fail as inactive rather than silently succeed.
func (s *Store) Remove(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	s.removeFromOrder(id)
	return e.sess, true
}

// Get returns a metadata snapshot without claiming the session.
func (s *Store) Get(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return Info{}, false
	}
	return snapshot(e), true
}

// List returns metadata snapshots in insertion order.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.sessions[id]; ok {
			out = append(out, snapshot(e))
		}
	}
	return out
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup evicts sessions idle longer than the store TTL, closing their
// connections. Checked-out sessions are never evicted. No-op when the
// TTL is zero.
func (s *Store) Cleanup() {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	var evicted []*Session
	cutoff := time.Now().Add(-s.ttl)
	for id, e := range s.sessions {
		if e.busy || e.sess.LastUsedAt.After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		s.removeFromOrder(id)
		evicted = append(evicted, e.sess)
	}
	s.mu.Unlock()

	for _, sess := range evicted {
		slog.Info("session: evicted idle session",
			"session_id", sess.ID, "host", sess.Host, "port", sess.Port)
		_ = sess.Conn.Close()
	}
}

// StartCleanupRoutine starts a goroutine that periodically evicts idle
// sessions. It is stopped by Close.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Close stops the cleanup goroutine and closes every remaining
// connection. Safe to call when StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	s.mu.Lock()
	remaining := make([]*Session, 0, len(s.sessions))
	for id, e := range s.sessions {
		remaining = append(remaining, e.sess)
		delete(s.sessions, id)
	}
	s.order = nil
	s.mu.Unlock()

	for _, sess := range remaining {
		_ = sess.Conn.Close()
	}
	return nil
}

// removeFromOrder drops id from the insertion-order slice. Caller holds
// the lock.
func (s *Store) removeFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func snapshot(e *entry) Info {
	return Info{
		ID:         e.sess.ID,
		Host:       e.sess.Host,
		Port:       e.sess.Port,
		CreatedAt:  e.sess.CreatedAt,
		LastUsedAt: e.sess.LastUsedAt,
		Busy:       e.busy,
	}
}
