package telnet

// Telnet protocol command bytes (RFC 854).
const (
	cmdSE   = 240
	cmdSB   = 250
	cmdWill = 251
	cmdWont = 252
	cmdDo   = 253
	cmdDont = 254
	cmdIAC  = 255
)

type negState int

const (
	stateData negState = iota
	stateIAC
	stateOption
	stateSub
	stateSubIAC
)

// negotiator is a byte-level state machine that removes telnet command
// sequences from the data stream and answers option proposals with
// refusals. Options are never enabled; this keeps the stream a plain
// byte pipe the way a non-negotiating client would see it. Sequences
// split across reads are handled by carrying state between calls.
type negotiator struct {
	state negState
	cmd   byte
}

// filter returns the application data in p and the refusal bytes to
// send back to the remote.
func (n *negotiator) filter(p []byte) (data, replies []byte) {
	data = make([]byte, 0, len(p))
	for _, b := range p {
		switch n.state {
		case stateData:
			if b == cmdIAC {
				n.state = stateIAC
			} else {
				data = append(data, b)
			}
		case stateIAC:
			switch b {
			case cmdIAC:
				// escaped 0xFF data byte
				data = append(data, b)
				n.state = stateData
			case cmdWill, cmdWont, cmdDo, cmdDont:
				n.cmd = b
				n.state = stateOption
			case cmdSB:
				n.state = stateSub
			default:
				n.state = stateData
			}
		case stateOption:
			switch n.cmd {
			case cmdWill:
				replies = append(replies, cmdIAC, cmdDont, b)
			case cmdDo:
				replies = append(replies, cmdIAC, cmdWont, b)
			}
			n.state = stateData
		case stateSub:
			if b == cmdIAC {
				n.state = stateSubIAC
			}
		case stateSubIAC:
			if b == cmdSE {
				n.state = stateData
			} else {
				n.state = stateSub
			}
		}
	}
	return data, replies
}
