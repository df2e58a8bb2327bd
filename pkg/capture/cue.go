package capture

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// AudioCue stands in for a speaker when rendering headless: instead of
// playing, it marks where the track starts and stops in the recording.
type AudioCue struct {
	rec  *Recorder
	path string

	mu      sync.Mutex
	started time.Duration
	playing bool
}

// NewAudioCue creates a cue for the audio file at path.
func NewAudioCue(rec *Recorder, path string) *AudioCue {
	return &AudioCue{rec: rec, path: path}
}

// Play marks the current video time as the audio start.
func (a *AudioCue) Play() error {
	if !a.rec.Recording() {
		return errors.New("capture: audio cue needs a running recording")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playing {
		return nil
	}
	a.started = a.rec.Elapsed()
	a.playing = true
	slog.Debug("Capture: audio cued", "path", a.path, "offset", a.started)
	return nil
}

// Stop ends the cued span.
func (a *AudioCue) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playing {
		return nil
	}
	a.playing = false
	a.rec.CueAudio(a.path, a.started, a.rec.Elapsed()-a.started)
	return nil
}

// Playing reports whether the cue is open.
func (a *AudioCue) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}
