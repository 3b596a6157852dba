// SPDX-License-Identifier: MIT

// Package diag keeps a bounded text log of what the capture path did, to be
// dumped and cleared on request.
package diag

import (
	"fmt"
	"io"
	"sync"
)

// LogBuffer is a fixed-size text log. A message that does not fit in the
// remaining space wipes the buffer and is written from the start, so the
// buffer always holds the most recent run of messages.
type LogBuffer struct {
	mu  sync.Mutex
	buf []byte
	pos int
}

// NewLogBuffer allocates a log of size bytes.
func NewLogBuffer(size int) *LogBuffer {
	if size < 2 {
		size = 2
	}
	return &LogBuffer{buf: make([]byte, size)}
}

// Printf appends a formatted message.
func (l *LogBuffer) Printf(format string, args ...any) {
	_, _ = l.Write(fmt.Appendf(nil, format, args...))
}

// Write appends p, resetting the log first when p does not fit. Messages
// longer than the whole buffer are truncated to size-1 bytes.
func (l *LogBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos+len(p) >= len(l.buf) {
		clear(l.buf)
		l.pos = 0
	}
	n := min(len(p), len(l.buf)-1)
	copy(l.buf[l.pos:], p[:n])
	l.pos += n
	return len(p), nil
}

// Len returns the number of bytes currently logged.
func (l *LogBuffer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos
}

// String returns the current contents.
func (l *LogBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.buf[:l.pos])
}

// Reset empties the log.
func (l *LogBuffer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.buf)
	l.pos = 0
}

// DumpAndClear writes the contents to w and empties the log.
func (l *LogBuffer) DumpAndClear(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := fmt.Fprintf(w, "Log contents[cp=%d]:\r\n<%s>\r\n", l.pos, l.buf[:l.pos])
	clear(l.buf)
	l.pos = 0
	return err
}
