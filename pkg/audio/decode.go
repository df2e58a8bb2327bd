package audio

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// Decode opens an MP3 or WAV file.
func Decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}
	f.Close()

	// mp3 probing consumed the reader; start over for wav
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("Audio: failed to decode", "path", path, "error", err)
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return streamer, format, nil
}

// FileDuration returns the length of the audio file at path.
func FileDuration(path string) (time.Duration, error) {
	streamer, format, err := Decode(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}

// volumeToPower maps linear volume to the base-2 exponent of effects.Volume.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
