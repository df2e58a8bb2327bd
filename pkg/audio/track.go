// Package audio plays the background music track of a playback.
package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// targetSampleRate is the rate the speaker is opened at.
const targetSampleRate = 48000

// ErrNotLoaded is returned when playing before a track was loaded.
var ErrNotLoaded = errors.New("audio: no track loaded")

// Track is one background music track played through the speaker.
// Stop pauses and rewinds, so the next Play starts from the beginning.
type Track struct {
	mu                 sync.RWMutex
	path               string
	volume             float64
	speakerInitialized bool
	sampleRate         beep.SampleRate

	stream   beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volumeFx *effects.Volume
	playing  bool
}

// NewTrack creates an empty track with the given volume (0.0 to 1.0).
func NewTrack(volume float64) *Track {
	t := &Track{}
	t.volume = clampVolume(volume)
	return t
}

// Load decodes the file at path, replacing any loaded track.
func (t *Track) Load(path string) error {
	stream, format, err := Decode(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.unloadLocked()
	t.path = path
	t.stream = stream
	t.format = format
	slog.Debug("Audio: track loaded", "path", path, "duration", format.SampleRate.D(stream.Len()))
	return nil
}

// Path returns the loaded file.
func (t *Track) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

func (t *Track) ensureSpeaker() error {
	if t.speakerInitialized {
		return nil
	}
	rate := beep.SampleRate(targetSampleRate)
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		slog.Error("Audio: failed to initialize speaker", "error", err)
		return err
	}
	t.speakerInitialized = true
	t.sampleRate = rate
	return nil
}

// Play starts or resumes playback.
func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream == nil {
		return ErrNotLoaded
	}
	if t.playing {
		return nil
	}
	if t.ctrl != nil {
		speaker.Lock()
		t.ctrl.Paused = false
		speaker.Unlock()
		t.playing = true
		return nil
	}

	if err := t.ensureSpeaker(); err != nil {
		return err
	}
	if t.stream.Position() >= t.stream.Len() {
		if err := t.stream.Seek(0); err != nil {
			return err
		}
	}

	resampled := beep.Resample(3, t.format.SampleRate, t.sampleRate, t.stream)
	t.volumeFx = &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(t.volume),
		Silent:   t.volume <= 0.01,
	}
	ctrl := &beep.Ctrl{Streamer: t.volumeFx}
	t.ctrl = ctrl
	t.playing = true

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		go t.finished(ctrl)
	})))
	slog.Debug("Audio: playing", "path", t.path)
	return nil
}

// finished runs when the speaker drained ctrl.
func (t *Track) finished(ctrl *beep.Ctrl) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == ctrl {
		t.ctrl = nil
		t.playing = false
	}
}

// Stop pauses playback and rewinds to the start.
func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream == nil {
		return nil
	}
	if t.ctrl == nil {
		t.playing = false
		return t.stream.Seek(0)
	}

	speaker.Lock()
	t.ctrl.Paused = true
	err := t.stream.Seek(0)
	speaker.Unlock()
	t.playing = false
	return err
}

// Playing reports whether the track is audible.
func (t *Track) Playing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playing
}

// SetVolume sets the volume (0.0 to 1.0), also while playing.
func (t *Track) SetVolume(vol float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.volume = clampVolume(vol)
	if t.volumeFx != nil && t.ctrl != nil {
		speaker.Lock()
		t.volumeFx.Volume = volumeToPower(t.volume)
		t.volumeFx.Silent = t.volume <= 0.01
		speaker.Unlock()
	}
}

// Volume returns the current volume.
func (t *Track) Volume() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.volume
}

// Position returns the playback position.
func (t *Track) Position() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stream == nil || t.format.SampleRate == 0 {
		return 0
	}
	return t.format.SampleRate.D(t.stream.Position())
}

// Duration returns the length of the loaded track.
func (t *Track) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stream == nil || t.format.SampleRate == 0 {
		return 0
	}
	return t.format.SampleRate.D(t.stream.Len())
}

// Close stops playback and releases the file.
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unloadLocked()
}

func (t *Track) unloadLocked() error {
	if t.ctrl != nil {
		speaker.Lock()
		t.ctrl.Streamer = nil
		speaker.Unlock()
		t.ctrl = nil
	}
	t.playing = false
	t.volumeFx = nil
	if t.stream == nil {
		return nil
	}
	err := t.stream.Close()
	t.stream = nil
	return err
}

func clampVolume(vol float64) float64 {
	if vol < 0 {
		return 0
	}
	if vol > 1 {
		return 1
	}
	return vol
}
