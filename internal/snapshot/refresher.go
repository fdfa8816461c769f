package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DailyRefresher runs a job once at startup and then at every UTC midnight
// until the context is cancelled. The stock catalogue and the event log
// retention both run on it.
type DailyRefresher struct {
	Name   string
	Run    func(ctx context.Context) error
	Logger *zap.Logger

	now func() time.Time
}

// Start schedules the job in the background.
func (r *DailyRefresher) Start(ctx context.Context) {
	go func() {
		// Run immediately once at startup
		r.runOnce(ctx)

		for {
			timer := time.NewTimer(r.untilMidnight())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			r.runOnce(ctx)
		}
	}()
}

func (r *DailyRefresher) untilMidnight() time.Duration {
	now := time.Now().UTC()
	if r.now != nil {
		now = r.now()
	}
	nextMidnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return nextMidnight.Sub(now)
}

func (r *DailyRefresher) runOnce(ctx context.Context) {
	if err := r.Run(ctx); err != nil {
		r.Logger.Warn("refresh failed", zap.String("job", r.Name), zap.Error(err))
		return
	}
	r.Logger.Debug("refresh done", zap.String("job", r.Name))
}
