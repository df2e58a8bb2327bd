package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tripreel/pkg/audio"
	"tripreel/pkg/capture"
	"tripreel/pkg/config"
	"tripreel/pkg/itinerary"
	"tripreel/pkg/logging"
	"tripreel/pkg/playback"
	"tripreel/pkg/probe"
	"tripreel/pkg/raster"
	"tripreel/pkg/timing"
)

type renderFlags struct {
	output  string
	style   string
	audio   string
	noAudio bool
	fps     float64
	segment string
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render <itinerary>",
		Short: "Render an itinerary to a video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRender(runCtx, cmd, cfg, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Video output path (default from config)")
	cmd.Flags().StringVar(&flags.style, "style", "", "Map style (overrides itinerary and config)")
	cmd.Flags().StringVar(&flags.audio, "audio", "", "Background audio file")
	cmd.Flags().BoolVar(&flags.noAudio, "no-audio", false, "Render without audio")
	cmd.Flags().Float64Var(&flags.fps, "fps", 0, "Frame rate (default from config)")
	cmd.Flags().StringVar(&flags.segment, "segment", "", "Segment duration, e.g. 8s")
	return cmd
}

func runRender(ctx context.Context, cmd *cobra.Command, cfg *config.Config, path string, flags renderFlags) error {
	it, err := itinerary.Open(path)
	if err != nil {
		return err
	}

	styleName := it.Style
	if flags.style != "" {
		styleName = flags.style
	}
	style, err := resolveStyle(cfg, styleName)
	if err != nil {
		return err
	}

	opts := playback.OptionsFromConfig(cfg)
	opts.RecordVideo = true
	if flags.segment != "" {
		d, err := config.ParseDuration(flags.segment)
		if err != nil {
			return fmt.Errorf("invalid --segment: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid --segment: must be positive")
		}
		opts.SegmentDuration = d
	}

	fps := cfg.Capture.FrameRate
	if flags.fps > 0 {
		fps = flags.fps
	}
	output := cfg.Capture.Output
	if flags.output != "" {
		output = flags.output
	}
	audioPath := firstNonEmpty(flags.audio, it.Audio, cfg.Audio.Track)
	if flags.noAudio {
		audioPath = ""
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	lock := flock.New(output + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", output, err)
	}
	if !locked {
		return fmt.Errorf("another render is writing %s", output)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Render: unlock failed", "error", err)
		}
		_ = os.Remove(output + ".lock")
	}()

	results := probe.Run(ctx, []probe.Probe{
		{Name: "ffmpeg", Check: probe.Executable(cfg.Capture.FFmpeg), Critical: true},
		{Name: "audio track", Check: probe.File(audioPath)},
	})
	if err := probe.Analyze(results); err != nil {
		return err
	}
	if !results[1].Passed() {
		audioPath = ""
	}
	opts.PlayAudio = audioPath != ""

	// progress bars own the terminal from here on
	if isTerminal(os.Stderr) {
		defer logging.QuietConsole()()
	}

	svcs, err := initServices(ctx, cfg, style)
	if err != nil {
		return err
	}
	defer svcs.Close()

	if err := prefetch(ctx, svcs.tiles, planTiles(it.Waypoints, opts, style, cfg.Render.Width, cfg.Render.Height)); err != nil {
		return err
	}

	clock := timing.NewVirtual(time.Now(), fps)
	sc := newScene(cfg, clock, style, nil)
	defer sc.Close()

	rast := raster.New(svcs.tiles, rasterOptions(cfg))
	rec := capture.NewRecorder(capture.Options{
		FFmpeg:    cfg.Capture.FFmpeg,
		Output:    output,
		Bitrate:   cfg.Capture.Bitrate,
		FrameRate: fps,
	})
	detach := rec.Attach(clock, func(ctx context.Context) (image.Image, error) {
		return rast.Render(ctx, sc.m.Snapshot())
	})
	defer detach()

	marker, traveler := loadIcons(cfg)
	deps := playback.Deps{
		Clock:      clock,
		View:       sc.view,
		Renderer:   sc.renderer,
		Assembler:  newAssembler(cfg, svcs.client, filepath.Dir(path)),
		Capture:    rec,
		Traveler:   traveler,
		MarkerIcon: marker,
	}
	if opts.PlayAudio {
		deps.Audio = capture.NewAudioCue(rec, audioPath)
	}

	estimate := playback.Estimate(it.Waypoints, opts)
	if opts.PlayAudio {
		if length, err := audio.FileDuration(audioPath); err != nil {
			slog.Warn("Render: cannot read audio length", "path", audioPath, "error", err)
		} else if length < estimate-opts.AudioDelay {
			slog.Info("Render: audio ends before playback", "audio", length.Round(time.Second), "playback", estimate)
		}
	}
	slog.Info("Render: starting", "itinerary", it.Title, "waypoints", len(it.Waypoints),
		"style", string(style), "fps", fps, "length", estimate, "output", output)

	if isTerminal(os.Stderr) {
		removeBar := attachProgress(clock, estimate)
		defer removeBar()
	}

	ctrl := playback.New(deps)
	if err := ctrl.Play(ctx, it.Waypoints, opts); err != nil {
		return err
	}

	fetched := svcs.tracker.Totals()
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d frames, %s)\n", output, rec.Frames(), estimate.Round(time.Second))
	fmt.Fprintf(cmd.OutOrStdout(), "Downloads: %d ok, %d failed, %d%% cache hits\n", fetched.APISuccess, fetched.APIFailures, fetched.HitRate())
	return nil
}

// attachProgress shows the playback time rendered so far against estimate.
func attachProgress(clock timing.Clock, estimate time.Duration) func() {
	start := clock.Now()
	total := int64(estimate / time.Second)
	bar := progressbar.Default(max(total, 1), "Rendering")
	remove := clock.OnFrame(func(now time.Time) {
		_ = bar.Set64(min(int64(now.Sub(start)/time.Second), total))
	})
	return func() {
		remove()
		_ = bar.Finish()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
