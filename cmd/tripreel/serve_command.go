package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tripreel/internal/api"
	"tripreel/pkg/audio"
	"tripreel/pkg/config"
	"tripreel/pkg/itinerary"
	"tripreel/pkg/logging"
	"tripreel/pkg/mapview"
	"tripreel/pkg/playback"
	"tripreel/pkg/raster"
	"tripreel/pkg/session"
	"tripreel/pkg/tiles"
	"tripreel/pkg/timing"
	"tripreel/pkg/version"
)

type serveFlags struct {
	address string
	style   string
	play    string
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live playback to browser viewers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.address, "address", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&flags.style, "style", "", "Default map style")
	cmd.Flags().StringVar(&flags.play, "play", "", "Itinerary to play once the server is up")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, flags serveFlags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("tripreel started", "version", version.Version)

	style, err := resolveStyle(cfg, flags.style)
	if err != nil {
		return err
	}
	svcs, err := initServices(ctx, cfg, style)
	if err != nil {
		return err
	}
	defer svcs.Close()

	clock := timing.NewReal(cfg.Playback.FrameRate)
	holder := &api.Scene{}
	hub := api.NewHub(holder, clock.FrameInterval())
	go hub.Run(ctx)

	track := audio.NewTrack(cfg.Audio.Volume)
	defer func() {
		if err := track.Close(); err != nil {
			slog.Warn("Audio: close failed", "error", err)
		}
	}()
	if cfg.Audio.Track != "" {
		if err := track.Load(cfg.Audio.Track); err != nil {
			slog.Warn("Audio: track unavailable", "path", cfg.Audio.Track, "error", err)
		}
	}

	rast := &lockedRasterizer{r: raster.New(svcs.tiles, rasterOptions(cfg))}
	marker, traveler := loadIcons(cfg)
	assembler := newAssembler(cfg, svcs.client, ".")
	factory := func(id string, st tiles.Style) (session.Player, func(), error) {
		sc := newScene(cfg, clock, st, hub)
		holder.Set(sc.m)
		deps := playback.Deps{
			Clock:      clock,
			View:       sc.view,
			Renderer:   sc.renderer,
			Assembler:  assembler,
			Traveler:   traveler,
			MarkerIcon: marker,
		}
		if track.Path() != "" {
			deps.Audio = track
		}
		rec, detach := newSessionRecorder(cfg, id, clock, func(ctx context.Context) (image.Image, error) {
			return rast.Render(ctx, sc.m.Snapshot())
		})
		deps.Capture = rec
		release := func() {
			detach()
			sc.Close()
		}
		slog.Debug("Session: scene ready", "session", id, "style", string(st), "output", rec.Output())
		return playback.New(deps), release, nil
	}
	mgr := session.NewManager(factory, style)
	defer func() {
		if err := mgr.Stop(); err != nil {
			slog.Debug("Session: ended with error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	addr := cfg.Server.Address
	if flags.address != "" {
		addr = flags.address
	}
	srv := api.NewServer(addr,
		api.NewPlaybackHandler(mgr, playback.OptionsFromConfig(cfg)),
		api.NewFrameHandler(holder, rast),
		api.NewStatsHandler(svcs.tracker, svcs.db, mgr, hub),
		hub,
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	if flags.play != "" {
		it, err := itinerary.Open(flags.play)
		if err != nil {
			return err
		}
		id, err := mgr.Start(ctx, it.Waypoints, it.Style, playback.OptionsFromConfig(cfg))
		if err != nil {
			return err
		}
		slog.Info("Session: playing", "session", id, "itinerary", it.Title)
	}

	return runServerLifecycle(ctx, srv, quit)
}

// lockedRasterizer serialises frame requests onto one rasterizer.
type lockedRasterizer struct {
	mu sync.Mutex
	r  *raster.Rasterizer
}

func (l *lockedRasterizer) Render(ctx context.Context, s mapview.Snapshot) (*image.RGBA, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Render(ctx, s)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
