package telnet

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// lineTerminator frames every outgoing command, per the telnet NVT
// convention.
const lineTerminator = "\r\n"

// CommandResult is the outcome of one command cycle. A read window that
// elapses with no data yields an empty Response, never an error.
type CommandResult struct {
	Command   string    `json:"command"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Executor drives write→delay→read cycles against a Conn. It has no
// knowledge of session identity.
type Executor struct {
	// CommandDelay is a pacing pause between write and read, giving the
	// remote time to consume the input. It is not a timeout.
	CommandDelay time.Duration

	// ResponseWait is the total read budget per command.
	ResponseWait time.Duration

	// ReadTimeout caps how long the prompt strategy may block before
	// the chain falls back to draining. Zero means the full budget.
	ReadTimeout time.Duration

	// StripEcho removes a leading command echo from responses.
	StripEcho bool

	// Strategies is the ordered read chain; see Strategies.
	Strategies []ReadStrategy
}

// Run executes a single command cycle. Residual bytes buffered from a
// previous slow response are drained before the write, so they never
// pollute this command's capture. The returned error is non-nil only
// when the transport died; the CommandResult still carries whatever was
// extracted before the failure.
func (e *Executor) Run(ctx context.Context, conn *Conn, command string) (CommandResult, error) {
	if discarded := conn.Drain(); discarded > 0 {
		slog.Debug("telnet: discarded residual bytes before write",
			"addr", conn.RemoteAddr(), "bytes", discarded)
	}

	result := CommandResult{Command: command, Timestamp: time.Now()}

	if err := conn.Write([]byte(command + lineTerminator)); err != nil {
		return result, err
	}

	if err := e.pace(ctx); err != nil {
		return result, err
	}

	raw, err := e.readResponse(conn)
	result.Response = Extract(raw, command, e.StripEcho)
	result.Timestamp = time.Now()
	return result, err
}

// ReadBanner captures the text a service sends immediately after
// connecting, before any command. It uses the same read chain as a
// command cycle with echo stripping disabled.
func (e *Executor) ReadBanner(conn *Conn) (string, error) {
	raw, err := e.readResponse(conn)
	return Extract(raw, "", false), err
}

// pace waits CommandDelay or until the context is canceled.
func (e *Executor) pace(ctx context.Context) error {
	if e.CommandDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.CommandDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readResponse walks the strategy chain under a shared deadline budget.
// A strategy miss (ErrPatternNotFound) falls through with its collected
// bytes; a transport failure stops the chain and is returned.
func (e *Executor) readResponse(conn *Conn) ([]byte, error) {
	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = []ReadStrategy{drainRead{}}
	}

	deadline := time.Now().Add(e.ResponseWait)
	var out []byte

	for i, s := range strategies {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if e.ReadTimeout > 0 && i < len(strategies)-1 && remaining > e.ReadTimeout {
			// cap non-final strategies so the fallback keeps a share
			// of the budget
			remaining = e.ReadTimeout
		}

		b, err := s.Read(conn, remaining)
		out = append(out, b...)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrPatternNotFound) {
			return out, err
		}
		slog.Debug("telnet: read strategy missed, falling back",
			"strategy", s.Name(), "addr", conn.RemoteAddr())
	}
	return out, nil
}
