package command

import "strings"

// Default command framing.
const (
	DefaultTerminator   = '%'
	DefaultMaxLineBytes = 80
	DefaultMaxTokens    = 8
)

// Tokenize splits line on whitespace and keeps at most maxTokens tokens.
func Tokenize(line string, maxTokens int) []string {
	if maxTokens <= 0 {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) > maxTokens {
		fields = fields[:maxTokens]
	}
	return fields
}

// LineAssembler builds commands one byte at a time. The terminator, '\n'
// and '\r' each end a command; bytes past the maximum length are dropped.
type LineAssembler struct {
	terminator byte
	buf        []byte
	max        int
	dropping   bool
	truncated  bool
}

// NewLineAssembler ends lines on terminator (or a newline) and keeps at
// most maxBytes of each. A non-positive maxBytes uses DefaultMaxLineBytes.
func NewLineAssembler(terminator byte, maxBytes int) *LineAssembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}
	return &LineAssembler{terminator: terminator, buf: make([]byte, 0, maxBytes), max: maxBytes}
}

// Feed adds one byte. It returns the finished command and true when b ends
// one; the command may be empty.
func (a *LineAssembler) Feed(b byte) (string, bool) {
	if b == a.terminator || b == '\n' || b == '\r' {
		line := string(a.buf)
		a.buf = a.buf[:0]
		a.truncated = a.dropping
		a.dropping = false
		return line, true
	}
	if len(a.buf) == a.max {
		a.dropping = true
		return "", false
	}
	a.buf = append(a.buf, b)
	return "", false
}

// Truncated reports whether the last finished command lost bytes.
func (a *LineAssembler) Truncated() bool { return a.truncated }
