package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tecky-admin/internal/logger"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on every tick until ctx is done.
// Runs never overlap; a tick that fires while a run is in progress is
// skipped.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	log := logger.From(ctx).With(logger.Component("scheduler"), zap.String("task", name))
	t := time.NewTicker(interval)
	defer t.Stop()

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("task failed", logger.Err(err), logger.DurationMs(time.Since(start)))
			return
		}
		log.Debug("task done", logger.DurationMs(time.Since(start)))
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
