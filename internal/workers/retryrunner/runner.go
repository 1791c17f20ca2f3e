package retryrunner

import (
	"context"
	"log/slog"
	"time"

	"sponsorhub/internal/ports"
)

// Run periodically retries pending unmapped payments so rows start importing
// as soon as an admin adds a matching rule, without waiting for a manual
// retry. Blocks until ctx is done; callers start it in a goroutine.
func Run(ctx context.Context, queue ports.UnmappedQueue, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			imported, remaining, err := queue.BulkRetry(ctx)
			if err != nil {
				log.Warn("unmapped retry failed", "err", err)
				continue
			}
			if imported > 0 {
				log.Info("unmapped retry imported rows", "imported", imported, "remaining", remaining)
			}
		}
	}
}
