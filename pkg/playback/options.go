package playback

import (
	"time"

	"tripreel/pkg/config"
)

// Options tune one playback.
type Options struct {
	SegmentDuration time.Duration
	PrimingDelay    time.Duration
	PhotoWindow     time.Duration
	ZoomDuration    time.Duration
	SettleDelay     time.Duration
	FitPadding      int
	FitDuration     time.Duration
	AudioDelay      time.Duration
	InitialZoom     int
	ThumbnailSize   int

	RecordVideo bool
	PlayAudio   bool
	Fullscreen  bool
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		SegmentDuration: 10 * time.Second,
		PrimingDelay:    5 * time.Second,
		PhotoWindow:     5 * time.Second,
		ZoomDuration:    3 * time.Second,
		SettleDelay:     6 * time.Second,
		FitPadding:      150,
		FitDuration:     3500 * time.Millisecond,
		AudioDelay:      3 * time.Second,
		InitialZoom:     2,
		ThumbnailSize:   85,
	}
}

// OptionsFromConfig reads the pacing from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Playback
	return Options{
		SegmentDuration: p.SegmentDuration.D(),
		PrimingDelay:    p.PrimingDelay.D(),
		PhotoWindow:     p.PhotoWindow.D(),
		ZoomDuration:    p.ZoomDuration.D(),
		SettleDelay:     p.SettleDelay.D(),
		FitPadding:      p.FitPadding,
		FitDuration:     p.FitDuration.D(),
		AudioDelay:      p.AudioDelay.D(),
		InitialZoom:     p.InitialZoom,
		ThumbnailSize:   cfg.Thumbnail.Size,
	}
}
