package maintenance

import (
	"context"
	"log/slog"
	"time"

	"tripreel/pkg/db"
)

const lastPruneStateKey = "cache_last_pruned"

// pruneInterval limits how often startup maintenance touches the cache.
const pruneInterval = 24 * time.Hour

// Run executes maintenance tasks. Failures are logged, never fatal.
// It blocks until completion.
func Run(ctx context.Context, d *db.DB, ttl time.Duration) error {
	slog.Info("Starting database maintenance...")

	if !due(ctx, d, time.Now()) {
		slog.Debug("Cache pruning skipped, ran recently")
		return nil
	}

	n, err := d.PruneCache(ttl)
	if err != nil {
		slog.Error("Cache pruning failed", "error", err)
		return nil
	}
	slog.Info("Cache pruning completed", "removed", n, "ttl", ttl)

	if err := d.SetState(ctx, lastPruneStateKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to record prune time", "error", err)
	}
	return nil
}

func due(ctx context.Context, d *db.DB, now time.Time) bool {
	last, found := d.GetState(ctx, lastPruneStateKey)
	if !found {
		return true
	}
	t, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return true
	}
	return now.Sub(t) >= pruneInterval
}
