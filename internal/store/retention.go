package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionInterval = 10 * time.Minute

// StartRetentionWorker runs a background goroutine that periodically
// prunes exchanges older than retention. A non-positive retention disables it.
func StartRetentionWorker(ctx context.Context, j Journal, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retentionInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Journal retention worker started", "interval", retentionInterval, "retention", retention)

		pruneExpired(ctx, j, retention, time.Now)
		for {
			select {
			case <-ticker.C:
				pruneExpired(ctx, j, retention, time.Now)
			case <-ctx.Done():
				slog.Info("Journal retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExpired(ctx context.Context, j Journal, retention time.Duration, now func() time.Time) {
	n, err := j.PruneBefore(ctx, now().Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Journal retention worker failed to prune", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Journal retention worker pruned exchanges", "count", n)
	}
}
