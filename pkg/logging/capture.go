package logging

import (
	"strings"
	"sync"
)

// captureDepth is how many lines a LineCapture keeps.
const captureDepth = 32

// LineCapture is an io.Writer that keeps the most recent lines written to
// it, for the status endpoints.
type LineCapture struct {
	mu    sync.RWMutex
	lines []string
	next  int
	full  bool
}

// GlobalLogCapture receives the server log at INFO and above.
var GlobalLogCapture = NewLineCapture()

// GlobalEventCapture receives every playback event line.
var GlobalEventCapture = NewLineCapture()

// NewLineCapture creates an empty capture.
func NewLineCapture() *LineCapture {
	return &LineCapture{lines: make([]string, captureDepth)}
}

// Write stores p as one line. slog handlers write one record per call.
func (c *LineCapture) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[c.next] = line
	c.next = (c.next + 1) % len(c.lines)
	if c.next == 0 {
		c.full = true
	}
	return len(p), nil
}

// Last returns the newest line, or "" before anything was written.
func (c *LineCapture) Last() string {
	recent := c.Recent(1)
	if len(recent) == 0 {
		return ""
	}
	return recent[0]
}

// Recent returns up to n lines, newest first.
func (c *LineCapture) Recent(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	size := c.next
	if c.full {
		size = len(c.lines)
	}
	n = min(n, size)
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, c.lines[(c.next-i+len(c.lines))%len(c.lines)])
	}
	return out
}
