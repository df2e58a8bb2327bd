package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{Name: "ok", Check: func(context.Context) error { return nil }, Critical: true},
		{Name: "minor", Check: func(context.Context) error { return errors.New("minor issue") }},
		{Name: "slow", Check: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			if !hasDeadline {
				return errors.New("no deadline")
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		}},
	}

	results := Run(context.Background(), probes)
	require.Len(t, results, 3)
	assert.Equal(t, "ok", results[0].Probe.Name)
	assert.True(t, results[0].Passed())
	assert.False(t, results[1].Passed())
	assert.True(t, results[2].Passed())
	assert.GreaterOrEqual(t, results[2].Duration, 5*time.Millisecond)

	assert.NoError(t, Analyze(results), "non-critical failures do not abort")
}

func TestAnalyze_Critical(t *testing.T) {
	boom := errors.New("ffmpeg missing")
	results := Run(context.Background(), []Probe{
		{Name: "encoder", Check: func(context.Context) error { return boom }, Critical: true},
		{Name: "tiles", Check: func(context.Context) error { return errors.New("offline") }},
	})

	err := Analyze(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "encoder")
	assert.NotContains(t, err.Error(), "offline")
}

func TestChecks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "theme.mp3")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, File("")(ctx))
	assert.NoError(t, File(file)(ctx))
	assert.Error(t, File(dir)(ctx))
	assert.ErrorIs(t, File(filepath.Join(dir, "nope"))(ctx), os.ErrNotExist)

	assert.Error(t, Executable("definitely-not-a-real-binary-xyz")(ctx))
}
