package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tripreel/pkg/model"
)

// eventTimeLayout matches the timestamps of the server log files.
const eventTimeLayout = "2006-01-02 15:04:05"

var (
	eventMu   sync.Mutex
	eventPath string
)

// SetEventLogPath sets the file playback events are appended to. An empty
// path only feeds GlobalEventCapture.
func SetEventLogPath(path string) {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventPath = path
}

// LogEvent records a playback event:
//
//	[2026-05-01 12:30:00] [segment] [01234567] Segment 1/2 - Paris to Brussels
func LogEvent(event *model.PlaybackEvent) {
	line := FormatEvent(event)

	eventMu.Lock()
	defer eventMu.Unlock()
	_, _ = GlobalEventCapture.Write([]byte(line))
	if eventPath == "" {
		return
	}
	if err := appendLine(eventPath, line); err != nil {
		slog.Error("Logging: event log write failed", "path", eventPath, "error", err)
	}
}

// FormatEvent renders an event as one log line without a trailing newline.
func FormatEvent(event *model.PlaybackEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s]", ts.Format(eventTimeLayout), event.Type)
	if event.SessionID != "" {
		line += fmt.Sprintf(" [%s]", shortID(event.SessionID))
	}
	line += " " + event.Title
	if event.Summary != "" {
		line += " - " + event.Summary
	}
	return line
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// shortID keeps the first block of a session UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
