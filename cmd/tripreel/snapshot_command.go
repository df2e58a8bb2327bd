package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"tripreel/pkg/config"
	"tripreel/pkg/geo"
	"tripreel/pkg/itinerary"
	"tripreel/pkg/mapview"
	"tripreel/pkg/raster"
	"tripreel/pkg/render"
	"tripreel/pkg/timing"
	"tripreel/pkg/view"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var output, style string

	cmd := &cobra.Command{
		Use:   "snapshot <itinerary>",
		Short: "Render the finished route as a single PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := runSnapshot(cmd.Context(), cfg, args[0], style, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "route.png", "PNG output path")
	cmd.Flags().StringVar(&style, "style", "", "Map style (overrides itinerary and config)")
	return cmd
}

func runSnapshot(ctx context.Context, cfg *config.Config, path, styleFlag, output string) error {
	it, err := itinerary.Open(path)
	if err != nil {
		return err
	}
	style, err := resolveStyle(cfg, firstNonEmpty(styleFlag, it.Style))
	if err != nil {
		return err
	}

	svcs, err := initServices(ctx, cfg, style)
	if err != nil {
		return err
	}
	defer svcs.Close()

	sc := newScene(cfg, timing.NewVirtual(time.Now(), cfg.Playback.FrameRate), style, nil)
	defer sc.Close()
	marker, _ := loadIcons(cfg)

	line := make(orb.LineString, 0, len(it.Waypoints))
	for i := range it.Waypoints {
		wp := &it.Waypoints[i]
		p := geo.ToProjected(wp.Coordinates)
		line = append(line, p)
		sc.renderer.PlaceMarker(p, &render.MarkerStyle{Icon: marker, Label: wp.Label()})
	}
	sc.renderer.SetLine(line)

	center, zoom := view.FitCamera(sc.renderer.Bound(), cfg.Render.Width, cfg.Render.Height, cfg.Playback.FitPadding)
	sc.m.SetCamera(mapview.Camera{Center: center, Zoom: zoom})

	img, err := raster.New(svcs.tiles, rasterOptions(cfg)).Render(ctx, sc.m.Snapshot())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return f.Close()
}
