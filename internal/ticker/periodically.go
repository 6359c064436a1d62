package ticker

import (
	"context"
	"log/slog"
	"time"
)

// Periodically runs the provided task function at the specified interval until the context is done. A failed run is logged under the given name and retried on the next tick.
func Periodically(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, task func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := task(ctx); err != nil {
				logger.Error("periodic task failed", "task", name, "err", err)
			}
		}
	}
}
