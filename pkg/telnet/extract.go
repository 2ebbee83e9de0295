package telnet

import (
	"strings"
	"unicode/utf8"
)

// Extract turns raw response bytes into the text reported for a
// command. Undecodable byte sequences are replaced rather than
// rejected; remote services are not guaranteed to send clean text. When
// stripEcho is set, a single leading echo of the sent command is
// removed. Line terminators are normalized to \n; everything else,
// including control bytes, is preserved verbatim.
func Extract(raw []byte, command string, stripEcho bool) string {
	text := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	if stripEcho {
		text = stripCommandEcho(text, command)
	}
	return normalizeNewlines(text)
}

// stripCommandEcho removes one leading occurrence of the command plus
// its trailing line terminator, if present. Only a prefix match counts;
// the command appearing later in the output is genuine response text.
func stripCommandEcho(text, command string) string {
	if command == "" || !strings.HasPrefix(text, command) {
		return text
	}
	rest := text[len(command):]
	switch {
	case strings.HasPrefix(rest, "\r\n"):
		rest = rest[2:]
	case strings.HasPrefix(rest, "\n"), strings.HasPrefix(rest, "\r"):
		// lone terminator, possibly a CRLF split across reads
		rest = rest[1:]
	}
	return rest
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
