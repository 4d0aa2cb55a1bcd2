package tasks

import (
	"context"
	"fmt"
	"time"
)

// newPurgeStaleTask creates the scheduled task function that deletes messages
// older than the configured retention period.
func newPurgeStaleTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "purge_stale")
	retention := deps.Config.Scheduler.Retention

	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-retention)
		log.InfoContext(ctx, "Starting scheduled stale message purge...", "cutoff", cutoff)
		startTime := time.Now()

		deleted, err := deps.Store.DeleteMessagesBefore(ctx, cutoff)

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Stale message purge failed", "error", err, "duration", duration)
			return fmt.Errorf("stale message purge failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled stale message purge completed", "deleted", deleted, "duration", duration)
		return nil
	}
}
