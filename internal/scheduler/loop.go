// Package scheduler runs periodic jobs until their context ends.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// Loop runs job right away and then again every interval() after the
// previous run finished. interval is read before each wait so a changed
// setting applies from the next wait. Job errors are logged and do not stop
// the loop. Loop returns nil when ctx is done.
func Loop(ctx context.Context, name string, interval func() time.Duration, job Job) error {
	for {
		start := time.Now()
		if err := run(ctx, name, job); err != nil {
			slog.Error("Scheduled job failed", "job", name, "error", err, "duration", time.Since(start))
		}

		wait := interval()
		if wait <= 0 {
			wait = time.Minute
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Scheduler stopped", "job", name)
			return nil
		case <-timer.C:
		}
	}
}

// run calls job, converting a panic into a logged failure.
func run(ctx context.Context, name string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in scheduled job", "job", name, "panic", r)
		}
	}()
	return job(ctx)
}
