package telnet

import "time"

// ReadStrategy is one way of pulling a response off the wire within a
// deadline budget. Strategies are evaluated in order; a strategy that
// returns ErrPatternNotFound hands its collected bytes and the
// remaining budget to the next one.
type ReadStrategy interface {
	Name() string
	Read(conn *Conn, budget time.Duration) ([]byte, error)
}

// promptRead blocks until a known prompt pattern appears. Used first
// when the remote service has a stable prompt.
type promptRead struct {
	pattern []byte
}

func (promptRead) Name() string { return "prompt" }

func (r promptRead) Read(conn *Conn, budget time.Duration) ([]byte, error) {
	return conn.ReadUntil(r.pattern, budget)
}

// drainRead takes whatever arrives within the window. This is the
// primary strategy: most line-oriented services never send a
// recognizable delimiter.
type drainRead struct{}

func (drainRead) Name() string { return "drain" }

func (drainRead) Read(conn *Conn, budget time.Duration) ([]byte, error) {
	return conn.ReadAvailable(budget)
}

// Strategies builds the ordered read chain for a command cycle: the
// prompt strategy first when a pattern is configured, then the
// best-effort drain. The chain shares one deadline budget.
func Strategies(promptPattern string) []ReadStrategy {
	var chain []ReadStrategy
	if promptPattern != "" {
		chain = append(chain, promptRead{pattern: []byte(promptPattern)})
	}
	return append(chain, drainRead{})
}
