// Package capture records rendered frames into a video file with ffmpeg.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tripreel/pkg/timing"
)

// ErrNotRecording is returned when writing frames outside a recording.
var ErrNotRecording = errors.New("capture: not recording")

// Options configure a Recorder.
type Options struct {
	FFmpeg    string
	Output    string
	Bitrate   string
	FrameRate float64
}

// pipeStarter launches a process and returns its stdin and a wait function.
type pipeStarter func(ctx context.Context, name string, args ...string) (io.WriteCloser, func() error, error)

// commandRunner runs a process to completion.
type commandRunner func(ctx context.Context, name string, args ...string) error

// RenderFunc produces the image of the current frame.
type RenderFunc func(ctx context.Context) (image.Image, error)

type audioCue struct {
	path   string
	offset time.Duration
	length time.Duration
}

// Recorder pipes PNG frames into ffmpeg. The video is written to a
// temporary file and moved to Output when Stop succeeds.
type Recorder struct {
	opts  Options
	start pipeStarter
	run   commandRunner

	mu        sync.Mutex
	ctx       context.Context
	stdin     io.WriteCloser
	wait      func() error
	recording bool
	frames    int64
	failures  int64
	buf       bytes.Buffer
	cue       *audioCue
}

// NewRecorder creates a recorder.
func NewRecorder(opts Options) *Recorder {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 25
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "6M"
	}
	return &Recorder{opts: opts, start: startPipe, run: runCommand}
}

// Output returns the final video path.
func (r *Recorder) Output() string { return r.opts.Output }

func (r *Recorder) tempPath() string {
	dir, base := filepath.Split(r.opts.Output)
	return filepath.Join(dir, ".rec-"+base)
}

func (r *Recorder) encodeArgs() []string {
	fps := strconv.FormatFloat(r.opts.FrameRate, 'f', -1, 64)
	return []string{
		"-y", "-loglevel", "error",
		"-f", "image2pipe", "-vcodec", "png", "-framerate", fps, "-i", "-",
		"-c:v", "libx264", "-b:v", r.opts.Bitrate, "-pix_fmt", "yuv420p",
		"-r", fps, "-movflags", "+faststart",
		r.tempPath(),
	}
}

// Start launches the encoder.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return nil
	}
	if r.opts.Output == "" {
		return errors.New("capture: no output path")
	}
	if err := os.MkdirAll(filepath.Dir(r.opts.Output), 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	stdin, wait, err := r.start(ctx, r.opts.FFmpeg, r.encodeArgs()...)
	if err != nil {
		return fmt.Errorf("capture: start %s: %w", r.opts.FFmpeg, err)
	}
	r.ctx = ctx
	r.stdin = stdin
	r.wait = wait
	r.recording = true
	r.frames = 0
	r.failures = 0
	r.cue = nil
	slog.Info("Capture: recording", "output", r.opts.Output, "fps", r.opts.FrameRate)
	return nil
}

// Recording reports whether a recording is running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Elapsed is the video time covered by the frames written so far.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsedLocked()
}

func (r *Recorder) elapsedLocked() time.Duration {
	return time.Duration(float64(r.frames) / r.opts.FrameRate * float64(time.Second))
}

// WriteFrame encodes img as PNG and sends it to the encoder.
func (r *Recorder) WriteFrame(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return ErrNotRecording
	}
	r.buf.Reset()
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&r.buf, img); err != nil {
		return fmt.Errorf("capture: encode frame %d: %w", r.frames, err)
	}
	if _, err := r.stdin.Write(r.buf.Bytes()); err != nil {
		return fmt.Errorf("capture: write frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// Attach writes a rendered frame on every clock frame while recording.
func (r *Recorder) Attach(clock timing.Clock, render RenderFunc) (detach func()) {
	return clock.OnFrame(func(time.Time) {
		r.mu.Lock()
		ctx, on := r.ctx, r.recording
		r.mu.Unlock()
		if !on {
			return
		}

		img, err := render(ctx)
		if err == nil {
			err = r.WriteFrame(img)
		}
		if err != nil {
			r.mu.Lock()
			r.failures++
			first := r.failures == 1
			r.mu.Unlock()
			if first {
				slog.Warn("Capture: frame dropped", "error", err)
			}
		}
	})
}

// CueAudio schedules an audio file to start offset into the video and
// play for length (zero means until the video ends). It is muxed in on Stop.
func (r *Recorder) CueAudio(path string, offset, length time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cue = &audioCue{path: path, offset: max(offset, 0), length: max(length, 0)}
}

func (r *Recorder) muxArgs(cue *audioCue, duration time.Duration) []string {
	args := []string{"-y", "-loglevel", "error", "-i", r.tempPath(), "-itsoffset", seconds(cue.offset)}
	if cue.length > 0 {
		args = append(args, "-t", seconds(cue.length))
	}
	return append(args,
		"-i", cue.path,
		"-map", "0:v", "-map", "1:a",
		"-c:v", "copy", "-c:a", "aac",
		"-t", seconds(duration),
		r.opts.Output,
	)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Stop finishes the encoder, muxes a cued audio track and moves the video
// into place. Stopping an idle recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	stdin, wait, cue := r.stdin, r.wait, r.cue
	duration := r.elapsedLocked()
	frames, failures := r.frames, r.failures
	r.stdin, r.wait = nil, nil
	r.mu.Unlock()

	tmp := r.tempPath()
	closeErr := stdin.Close()
	if err := wait(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("capture: encoder failed: %w", err)
	}
	if closeErr != nil {
		slog.Debug("Capture: closing encoder input", "error", closeErr)
	}

	if cue != nil {
		// the recording context may already be cancelled; muxing must still finish
		if err := r.run(context.Background(), r.opts.FFmpeg, r.muxArgs(cue, duration)...); err != nil {
			slog.Warn("Capture: audio mux failed, keeping silent video", "error", err)
		} else {
			_ = os.Remove(tmp)
			slog.Info("Capture: finished", "output", r.opts.Output, "frames", frames, "dropped", failures, "audio", cue.path)
			return nil
		}
	}

	if err := os.Rename(tmp, r.opts.Output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("capture: move video into place: %w", err)
	}
	slog.Info("Capture: finished", "output", r.opts.Output, "frames", frames, "dropped", failures)
	return nil
}

// stderrTail keeps the last bytes written to it for error messages.
type stderrTail struct {
	buf []byte
}

func (s *stderrTail) Write(p []byte) (int, error) {
	const limit = 4096
	s.buf = append(s.buf, p...)
	if len(s.buf) > limit {
		s.buf = s.buf[len(s.buf)-limit:]
	}
	return len(p), nil
}

func startPipe(ctx context.Context, name string, args ...string) (io.WriteCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	tail := &stderrTail{}
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	wait := func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(tail.buf))
		}
		return nil
	}
	return stdin, wait, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
