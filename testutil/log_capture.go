package testutil

import (
	"bytes"
	"log"
	"strings"
	"sync"
)

// LogCapture is a goroutine-safe sink for a *log.Logger, for asserting on
// the daemon's out/err logs.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogCapture creates an empty capture.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Logger returns a logger writing into the capture with no timestamps.
func (lc *LogCapture) Logger(prefix string) *log.Logger {
	return log.New(lc, prefix, 0)
}

func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns the number of times a substring appears in the log
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns all captured log lines
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}
