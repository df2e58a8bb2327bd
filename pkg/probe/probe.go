// Package probe runs startup checks for the external tools and services a
// render depends on.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckFunc performs a check and returns nil when it passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // a failing critical probe aborts the command
}

// Result is the outcome of a probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Passed reports whether the probe succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// Run executes the probes concurrently, each under its own timeout. Results
// keep the order of probes.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			cctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()
			results[i] = Result{Probe: p, Error: p.Check(cctx), Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Analyze logs every result and joins the errors of failed critical probes.
func Analyze(results []Result) error {
	var critical []error
	for _, r := range results {
		msg := fmt.Sprintf("Probe: [%s] %s (%v)", status(r), r.Probe.Name, r.Duration.Round(time.Millisecond))
		switch {
		case r.Passed():
			slog.Info(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}
	return errors.Join(critical...)
}

func status(r Result) string {
	if r.Passed() {
		return "PASS"
	}
	return "FAIL"
}

// Executable checks that name resolves to an executable on PATH.
func Executable(name string) CheckFunc {
	return func(context.Context) error {
		_, err := exec.LookPath(name)
		return err
	}
}

// File checks that path is an existing regular file. An empty path passes.
func File(path string) CheckFunc {
	return func(context.Context) error {
		if path == "" {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	}
}
