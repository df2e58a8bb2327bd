package main

import (
	"context"
	"log/slog"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"

	"tripreel/pkg/geo"
	"tripreel/pkg/model"
	"tripreel/pkg/playback"
	"tripreel/pkg/tiles"
	"tripreel/pkg/view"
)

// maxPrefetchTiles bounds a prefetch; anything beyond loads during render.
const maxPrefetchTiles = 4000

// planTiles lists the tiles a playback of wps will show: every leg at its
// planned zoom, swept by a w x h viewport, plus the final fitted view.
func planTiles(wps []model.Waypoint, opts playback.Options, style tiles.Style, w, h int) []tiles.Tile {
	if len(wps) == 0 {
		return nil
	}
	zooms := playback.ZoomPlan(wps, opts.InitialZoom)

	seen := make(map[tiles.Tile]struct{})
	var out []tiles.Tile
	add := func(b orb.Bound, z int) {
		z = max(0, min(z, style.MaxZoom()))
		for _, t := range tiles.Covering(b, z) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	all := geo.EmptyBound()
	for i, wp := range wps {
		p := geo.ToProjected(wp.Coordinates)
		all = geo.Extend(all, p)

		leg := tiles.ViewportBound(p, float64(zooms[i]), w, h)
		if i+1 < len(wps) {
			next := geo.ToProjected(wps[i+1].Coordinates)
			leg = geo.Union(leg, tiles.ViewportBound(next, float64(zooms[i]), w, h))
		}
		add(leg, zooms[i])
	}

	center, zoom := view.FitCamera(all, w, h, opts.FitPadding)
	add(tiles.ViewportBound(center, zoom, w, h), int(math.Floor(zoom)))

	if len(out) > maxPrefetchTiles {
		slog.Warn("Prefetch: plan truncated", "tiles", len(out), "limit", maxPrefetchTiles)
		out = out[:maxPrefetchTiles]
	}
	return out
}

// prefetch downloads the planned tiles, with a progress bar on terminals.
func prefetch(ctx context.Context, src *tiles.Source, plan []tiles.Tile) error {
	if len(plan) == 0 {
		return nil
	}

	var progress func()
	if isTerminal(os.Stderr) {
		bar := progressbar.Default(int64(len(plan)), "Downloading Tiles")
		defer bar.Finish()
		progress = func() { _ = bar.Add(1) }
	}

	failed, err := src.Prefetch(ctx, plan, progress)
	if err != nil {
		return err
	}
	if failed > 0 {
		slog.Warn("Prefetch: some tiles failed", "failed", failed, "total", len(plan))
	} else {
		slog.Info("Prefetch: complete", "tiles", len(plan))
	}
	return nil
}
