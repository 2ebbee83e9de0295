// Package client implements the telnet session lifecycle: resolving or
// creating a session, running command cycles against it, and the close
// and list operations exposed as MCP tools.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/mcp-telnet/pkg/session"
	"github.com/txn2/mcp-telnet/pkg/telnet"
)

// Default timing values, matching the original tool's defaults.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultCommandDelay   = 1 * time.Second
	DefaultResponseWait   = 2 * time.Second
	DefaultReadTimeout    = 10 * time.Second

	defaultMaxCommands = 100
)

// Config holds client-wide defaults. Per-request values override them.
type Config struct {
	ConnectTimeout time.Duration
	CommandDelay   time.Duration
	ResponseWait   time.Duration
	ReadTimeout    time.Duration
	PromptPattern  string

	// MaxCommands bounds the number of commands per invocation.
	MaxCommands int

	// SessionTTL enables idle eviction when non-zero; CleanupInterval
	// controls how often eviction runs.
	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandDelay <= 0 {
		c.CommandDelay = DefaultCommandDelay
	}
	if c.ResponseWait <= 0 {
		c.ResponseWait = DefaultResponseWait
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxCommands <= 0 {
		c.MaxCommands = defaultMaxCommands
	}
	return c
}

// Client owns the session store and executes tool invocations against
// it. Invocations for different sessions proceed in parallel;
// invocations for the same session fail fast with session.ErrBusy.
type Client struct {
	cfg   Config
	store *session.Store
}

// New creates a Client. Idle eviction starts when the config enables it.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:   cfg,
		store: session.NewStore(cfg.SessionTTL),
	}
	if cfg.SessionTTL > 0 {
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = cfg.SessionTTL / 2
		}
		c.store.StartCleanupRoutine(interval)
	}
	return c
}

// Store exposes read-only session metadata for resources and tests.
func (c *Client) Store() *session.Store { return c.store }

// Close shuts down the store and every remaining connection.
func (c *Client) Close() error {
	return c.store.Close()
}

// Request describes one execute invocation. Nil pointer fields take the
// client-wide defaults; zero is a meaningful value for the delays.
type Request struct {
	Host     string
	Port     int
	Commands []string

	// SessionID reuses an existing session. Unknown or empty IDs create
	// a fresh session; existing sessions are never matched by host/port.
	SessionID string

	CommandDelay  *time.Duration
	ResponseWait  *time.Duration
	ReadTimeout   *time.Duration
	StripEcho     *bool // default true
	PromptPattern string

	// CloseSession closes and forgets the session after this invocation.
	CloseSession bool
}

// Result aggregates one invocation's outcome.
type Result struct {
	Host          string                 `json:"host"`
	Port          int                    `json:"port"`
	SessionID     string                 `json:"session_id"`
	SessionActive bool                   `json:"session_active"`
	InitialBanner string                 `json:"initial_banner"`
	Responses     []telnet.CommandResult `json:"responses"`
}

// CloseResult reports the outcome of a close operation.
type CloseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionInfo describes one active session for listing.
type SessionInfo struct {
	Host       string  `json:"host"`
	Port       int     `json:"port"`
	AgeSeconds float64 `json:"age_seconds"`
}

// SessionList is the list operation's result.
type SessionList struct {
	ActiveSessions int                    `json:"active_sessions"`
	Sessions       map[string]SessionInfo `json:"sessions"`
}

// Execute resolves or creates a session, runs every requested command
// sequentially against it, and returns the aggregate. Connection
// establishment failures are hard errors and register nothing; after
// that point failures degrade into the result so commands already
// executed are never lost.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	exec := c.executor(req)

	sess, banner, err := c.resolveSession(ctx, req, exec)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Host:          sess.Host,
		Port:          sess.Port,
		SessionID:     sess.ID,
		SessionActive: true,
		InitialBanner: banner,
	}
	result.Responses = make([]telnet.CommandResult, 0, len(req.Commands))

	for _, cmd := range req.Commands {
		res, runErr := exec.Run(ctx, sess.Conn, cmd)
		result.Responses = append(result.Responses, res)
		c.store.Touch(sess.ID)

		if runErr != nil {
			// Dead transport: abandon remaining commands, keep what we
			// have, purge the session.
			slog.Warn("telnet: transport failed mid-sequence",
				"session_id", sess.ID, "command", cmd, "error", runErr)
			result.SessionActive = false
			break
		}
	}

	c.settleSession(sess, req.CloseSession, result)
	return result, nil
}

// CloseSession closes and forgets a session. Unknown identifiers report
// success=false rather than an error; a second close is idempotent in
// effect.
func (c *Client) CloseSession(id string) CloseResult {
	sess, ok := c.store.Remove(id)
	if !ok {
		return CloseResult{
			Success: false,
			Message: fmt.Sprintf("session %s not found", id),
		}
	}

	_ = sess.Conn.Close()
	slog.Info("telnet: session closed", "session_id", id,
		"host", sess.Host, "port", sess.Port)
	return CloseResult{
		Success: true,
		Message: fmt.Sprintf("session %s closed", id),
	}
}

// ListSessions reports every tracked session with its endpoint and age.
func (c *Client) ListSessions() SessionList {
	infos := c.store.List()
	out := SessionList{
		ActiveSessions: len(infos),
		Sessions:       make(map[string]SessionInfo, len(infos)),
	}
	for _, info := range infos {
		out.Sessions[info.ID] = SessionInfo{
			Host:       info.Host,
			Port:       info.Port,
			AgeSeconds: info.Age().Seconds(),
		}
	}
	return out
}

func (c *Client) validate(req Request) error {
	if req.Host == "" {
		return errors.New("host is required")
	}
	if req.Port < 1 || req.Port > 65535 {
		return fmt.Errorf("port %d out of range", req.Port)
	}
	if len(req.Commands) > c.cfg.MaxCommands {
		return fmt.Errorf("too many commands: %d (limit %d)",
			len(req.Commands), c.cfg.MaxCommands)
	}
	return nil
}

// executor builds the command executor for one invocation, applying
// client defaults to unset request fields.
func (c *Client) executor(req Request) *telnet.Executor {
	prompt := req.PromptPattern
	if prompt == "" {
		prompt = c.cfg.PromptPattern
	}
	return &telnet.Executor{
		CommandDelay: durOr(req.CommandDelay, c.cfg.CommandDelay),
		ResponseWait: durOr(req.ResponseWait, c.cfg.ResponseWait),
		ReadTimeout:  durOr(req.ReadTimeout, c.cfg.ReadTimeout),
		StripEcho:    boolOr(req.StripEcho, true),
		Strategies:   telnet.Strategies(prompt),
	}
}

// resolveSession checks out the requested session or dials a fresh one.
// A fresh session captures the connect banner; a reused one reports an
// empty banner.
func (c *Client) resolveSession(ctx context.Context, req Request, exec *telnet.Executor) (*session.Session, string, error) {
	if req.SessionID != "" {
		sess, err := c.store.Checkout(req.SessionID)
		switch {
		case err == nil:
			slog.Debug("telnet: reusing session", "session_id", sess.ID)
			return sess, "", nil
		case errors.Is(err, session.ErrBusy):
			return nil, "", fmt.Errorf("session %s: %w", req.SessionID, err)
		}
		// Unknown ID: fall through and create a new session.
	}

	conn, err := telnet.Dial(ctx, req.Host, req.Port, c.cfg.ConnectTimeout)
	if err != nil {
		return nil, "", err
	}

	sess := session.New(req.Host, req.Port, conn)
	sess.StripEcho = boolOr(req.StripEcho, true)
	c.store.Put(sess)

	slog.Info("telnet: session created", "session_id", sess.ID,
		"host", req.Host, "port", req.Port)

	// Best-effort banner read; a timeout simply yields an empty banner.
	// A transport failure here is handled by the first command cycle.
	banner, _ := exec.ReadBanner(conn)
	return sess, banner, nil
}

// settleSession finishes an invocation: purge-and-close when the caller
// asked for closure or the transport died, otherwise release the
// session for reuse.
func (c *Client) settleSession(sess *session.Session, closeRequested bool, result *Result) {
	if !result.SessionActive || closeRequested {
		if _, ok := c.store.Remove(sess.ID); ok {
			_ = sess.Conn.Close()
		}
		result.SessionActive = false
		return
	}
	c.store.Release(sess.ID)
}

func durOr(v *time.Duration, def time.Duration) time.Duration {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
