package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"tripreel/pkg/cache"
	"tripreel/pkg/capture"
	"tripreel/pkg/config"
	"tripreel/pkg/db"
	"tripreel/pkg/db/maintenance"
	"tripreel/pkg/mapview"
	"tripreel/pkg/media"
	"tripreel/pkg/raster"
	"tripreel/pkg/render"
	"tripreel/pkg/request"
	"tripreel/pkg/tiles"
	"tripreel/pkg/timing"
	"tripreel/pkg/tracker"
	"tripreel/pkg/view"
)

// services are the long-lived collaborators shared by every command that
// touches the network.
type services struct {
	db      *db.DB
	tracker *tracker.Tracker
	client  *request.Client
	tiles   *tiles.Source
}

func initServices(ctx context.Context, cfg *config.Config, style tiles.Style) (*services, error) {
	d, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := maintenance.Run(ctx, d, cfg.Tiles.CacheTTL.D()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	client := request.New(cache.NewSQLiteCache(d), tr, request.Options{
		Retries:   cfg.Request.Retries,
		Timeout:   cfg.Request.Timeout.D(),
		BaseDelay: cfg.Request.Backoff.BaseDelay.D(),
		MaxDelay:  cfg.Request.Backoff.MaxDelay.D(),
	})
	src := tiles.NewSource(client, style, tiles.SourceOptions{
		APIKey:      cfg.Tiles.APIKey,
		Retina:      cfg.Tiles.Retina,
		Concurrency: cfg.Tiles.Concurrency,
	})
	return &services{db: d, tracker: tr, client: client, tiles: src}, nil
}

func (s *services) Close() {
	if err := s.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// resolveStyle picks the flag value over the configured style.
func resolveStyle(cfg *config.Config, flag string) (tiles.Style, error) {
	name := cfg.Render.Style
	if flag != "" {
		name = flag
	}
	if name == "" {
		return tiles.DefaultStyle, nil
	}
	return tiles.ParseStyle(name)
}

// scene is one map with its camera and layer renderer.
type scene struct {
	m        *mapview.Map
	view     *view.Controller
	renderer *render.Renderer
}

// newScene creates a map bound to clock. The view registers its frame hook
// before the renderer so camera moves land before marker animation.
func newScene(cfg *config.Config, clock timing.Clock, style tiles.Style, display view.Display) *scene {
	m := mapview.New(cfg.Render.Width, cfg.Render.Height, string(style))
	return &scene{
		m:        m,
		view:     view.NewController(m, clock, display),
		renderer: render.NewRenderer(m, clock),
	}
}

func (s *scene) Close() {
	s.renderer.Close()
	s.view.Close()
}

// loadIcons reads the optional marker and traveler icons. A broken icon
// falls back to the built-in marker.
func loadIcons(cfg *config.Config) (marker image.Image, traveler *render.AnimatedImage) {
	if path := cfg.Render.MarkerIcon; path != "" {
		img, err := render.LoadIcon(path, 1)
		if err != nil {
			slog.Warn("Marker icon unavailable", "path", path, "error", err)
		} else {
			marker = img
		}
	}
	if path := cfg.Render.TravelerIcon; path != "" {
		anim, err := render.LoadAnimatedIcon(path, 1)
		if err != nil {
			slog.Warn("Traveler icon unavailable", "path", path, "error", err)
		} else {
			traveler = anim
		}
	}
	return marker, traveler
}

// newAssembler frames photos; relative paths resolve against baseDir.
func newAssembler(cfg *config.Config, f media.Fetcher, baseDir string) *media.Assembler {
	if baseDir == "" {
		baseDir = "."
	}
	return media.NewAssembler(media.NewSourceLoader(f, filepath.Clean(baseDir)), media.FrameOptions{
		InnerPadding:  cfg.Thumbnail.InnerPadding,
		BottomPadding: cfg.Thumbnail.BottomPadding,
		Quality:       cfg.Thumbnail.Quality,
	})
}

func rasterOptions(cfg *config.Config) raster.Options {
	opts := raster.DefaultOptions()
	opts.PathColor = cfg.Render.PathColor
	opts.PathWidth = cfg.Render.PathWidth
	opts.Labels = cfg.Render.Labels
	return opts
}

// sessionOutput names the video a live session records to. It sits next
// to the configured capture output.
func sessionOutput(cfg *config.Config, id string) string {
	ext := filepath.Ext(cfg.Capture.Output)
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(filepath.Dir(cfg.Capture.Output), "session-"+id+ext)
}

// newSessionRecorder creates a recorder for one live session and hooks it
// to clock. Frames are only rendered once playback starts the recorder.
func newSessionRecorder(cfg *config.Config, id string, clock timing.Clock, render capture.RenderFunc) (*capture.Recorder, func()) {
	rec := capture.NewRecorder(capture.Options{
		FFmpeg:    cfg.Capture.FFmpeg,
		Output:    sessionOutput(cfg, id),
		Bitrate:   cfg.Capture.Bitrate,
		FrameRate: 1 / clock.FrameInterval().Seconds(),
	})
	return rec, rec.Attach(clock, render)
}
