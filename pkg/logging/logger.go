// Package logging sets up the server, request and playback event logs.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tripreel/pkg/config"
)

// RequestLogger logs HTTP requests to their own file.
var RequestLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// consoleLevel gates stdout output. Commands drawing progress bars raise it.
var consoleLevel = new(slog.LevelVar)

// Init rotates the previous run's logs to .old and installs the server
// logger as the slog default. The returned func closes the log files.
func Init(cfg *config.LogConfig) (func(), error) {
	rotate(cfg.Server.Path, cfg.Requests.Path, cfg.Events.Path)
	SetEventLogPath(cfg.Events.Path)

	serverLevel := ParseLevel(cfg.Server.Level)
	serverFile, err := openLog(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	requestFile, err := openLog(cfg.Requests.Path)
	if err != nil {
		serverFile.Close()
		return nil, fmt.Errorf("failed to setup requests logger: %w", err)
	}

	consoleLevel.Set(max(serverLevel, slog.LevelInfo))
	slog.SetDefault(slog.New(fanout{
		slog.NewTextHandler(serverFile, &slog.HandlerOptions{
			Level:     serverLevel,
			AddSource: serverLevel == slog.LevelDebug,
		}),
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: consoleLevel}),
		slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}))
	RequestLogger = slog.New(slog.NewTextHandler(requestFile, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Requests.Level),
	}))

	return func() {
		_ = errors.Join(serverFile.Close(), requestFile.Close())
	}, nil
}

// QuietConsole raises the console level to WARN until the returned func runs.
func QuietConsole() (restore func()) {
	prev := consoleLevel.Level()
	consoleLevel.Set(max(prev, slog.LevelWarn))
	return func() { consoleLevel.Set(prev) }
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// rotate renames existing log files to <name>.old, replacing older copies.
func rotate(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = os.Remove(p + ".old")
		_ = os.Rename(p, p+".old")
	}
}

// ParseLevel maps a config level name to a slog level, defaulting to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// nolint:gocritic // slog.Handler takes the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
