package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/timing"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type fakeFFmpeg struct {
	stdin    bytes.Buffer
	args     []string
	muxArgs  []string
	waitErr  error
	startErr error
	muxErr   error
}

func (f *fakeFFmpeg) start(_ context.Context, _ string, args ...string) (io.WriteCloser, func() error, error) {
	if f.startErr != nil {
		return nil, nil, f.startErr
	}
	f.args = args
	out := args[len(args)-1]
	wait := func() error {
		if f.waitErr != nil {
			return f.waitErr
		}
		return os.WriteFile(out, f.stdin.Bytes(), 0o644)
	}
	return nopCloser{&f.stdin}, wait, nil
}

func (f *fakeFFmpeg) run(_ context.Context, _ string, args ...string) error {
	f.muxArgs = args
	if f.muxErr != nil {
		return f.muxErr
	}
	return os.WriteFile(args[len(args)-1], []byte("muxed"), 0o644)
}

func newTestRecorder(t *testing.T) (*Recorder, *fakeFFmpeg) {
	t.Helper()
	f := &fakeFFmpeg{}
	r := NewRecorder(Options{Output: filepath.Join(t.TempDir(), "out", "trip.mp4"), FrameRate: 25})
	r.start = f.start
	r.run = f.run
	return r, f
}

var frame = image.NewRGBA(image.Rect(0, 0, 4, 4))

func TestRecorder_Lifecycle(t *testing.T) {
	r, f := newTestRecorder(t)
	assert.ErrorIs(t, r.WriteFrame(frame), ErrNotRecording)
	require.NoError(t, r.Stop(), "stop while idle")

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Recording())
	assert.Contains(t, f.args, "image2pipe")
	assert.Contains(t, f.args, "libx264")
	assert.Contains(t, f.args, "yuv420p")

	for i := 0; i < 50; i++ {
		require.NoError(t, r.WriteFrame(frame))
	}
	assert.EqualValues(t, 50, r.Frames())
	assert.Equal(t, 2*time.Second, r.Elapsed())
	assert.True(t, bytes.HasPrefix(f.stdin.Bytes(), []byte("\x89PNG")))

	require.NoError(t, r.Stop())
	assert.False(t, r.Recording())
	assert.FileExists(t, r.Output())
	assert.NoFileExists(t, r.tempPath())
}

func TestRecorder_EncoderFailure(t *testing.T) {
	r, f := newTestRecorder(t)
	f.waitErr = errors.New("exit status 1")
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.WriteFrame(frame))
	assert.Error(t, r.Stop())
	assert.NoFileExists(t, r.Output())
}

func TestRecorder_StartFailure(t *testing.T) {
	r, f := newTestRecorder(t)
	f.startErr = errors.New("executable file not found")
	assert.Error(t, r.Start(context.Background()))
	assert.False(t, r.Recording())
}

func TestRecorder_AudioCue(t *testing.T) {
	r, f := newTestRecorder(t)
	require.NoError(t, r.Start(context.Background()))
	cue := NewAudioCue(r, "music.mp3")

	for i := 0; i < 75; i++ {
		require.NoError(t, r.WriteFrame(frame))
	}
	require.NoError(t, cue.Play())
	assert.True(t, cue.Playing())
	for i := 0; i < 100; i++ {
		require.NoError(t, r.WriteFrame(frame))
	}
	require.NoError(t, cue.Stop())
	require.NoError(t, cue.Stop())
	require.NoError(t, r.Stop())

	assert.Equal(t, []string{
		"-y", "-loglevel", "error", "-i", r.tempPath(),
		"-itsoffset", "3.000", "-t", "4.000", "-i", "music.mp3",
		"-map", "0:v", "-map", "1:a", "-c:v", "copy", "-c:a", "aac",
		"-t", "7.000", r.Output(),
	}, f.muxArgs)
	data, err := os.ReadFile(r.Output())
	require.NoError(t, err)
	assert.Equal(t, "muxed", string(data))
	assert.NoFileExists(t, r.tempPath())
}

func TestRecorder_MuxFailureKeepsVideo(t *testing.T) {
	r, f := newTestRecorder(t)
	f.muxErr = errors.New("no audio stream")
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.WriteFrame(frame))
	r.CueAudio("music.mp3", 0, 0)
	require.NoError(t, r.Stop())
	assert.FileExists(t, r.Output())
}

func TestAudioCue_NeedsRecording(t *testing.T) {
	r, _ := newTestRecorder(t)
	assert.Error(t, NewAudioCue(r, "a.mp3").Play())
}

func TestRecorder_Attach(t *testing.T) {
	r, _ := newTestRecorder(t)
	clk := timing.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 25)
	renders := 0
	detach := r.Attach(clk, func(context.Context) (image.Image, error) {
		renders++
		if renders == 3 {
			return nil, errors.New("tile server down")
		}
		return frame, nil
	})
	defer detach()

	require.NoError(t, clk.Sleep(context.Background(), 200*time.Millisecond))
	assert.Zero(t, renders, "nothing rendered before Start")

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, clk.Sleep(context.Background(), 200*time.Millisecond))
	assert.Equal(t, 5, renders)
	assert.EqualValues(t, 4, r.Frames(), "failed render is dropped")
	require.NoError(t, r.Stop())
}
