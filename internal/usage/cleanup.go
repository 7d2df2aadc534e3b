package usage

import (
	"log/slog"
	"time"
)

// CleanupInterval is how often expired usage entries are deleted.
const CleanupInterval = 1 * time.Hour

// RunCleanupLoop calls cleanupFn once immediately and then every
// CleanupInterval until stop is closed.
func RunCleanupLoop(stop <-chan struct{}, cleanupFn func()) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	cleanupFn()

	for {
		select {
		case <-ticker.C:
			cleanupFn()
		case <-stop:
			return
		}
	}
}

func logCleanup(deleted int64, err error) {
	if err != nil {
		slog.Error("failed to clean up old usage entries", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("cleaned up old usage entries", "deleted", deleted)
	}
}

func retentionCutoff(days int) time.Time {
	return time.Now().AddDate(0, 0, -days).UTC()
}
