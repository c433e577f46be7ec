package ticker

import (
	"context"
	"log/slog"
	"time"
)

// Runs task once right away, then at every interval until ctx is done. A
// failing run is logged and the next tick tries again. Always returns
// ctx.Err().
func Periodically(ctx context.Context, logger *slog.Logger, interval time.Duration, task func(context.Context) error) error {
	run := func() {
		start := time.Now()
		err := task(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("periodic task failed", "err", err, "duration", time.Since(start))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
