package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HealthChecker probes the backend /health endpoint and returns the HTTP status.
type HealthChecker interface {
	Health(ctx context.Context) (int, error)
}

// HeartbeatScheduler runs the synthetic health check on a cron schedule.
type HeartbeatScheduler struct {
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	checker  HealthChecker
	monitor  *Monitor
	logger   *zap.Logger
}

func NewHeartbeatScheduler(schedule string, timeout time.Duration, checker HealthChecker, mon *Monitor, logger *zap.Logger) *HeartbeatScheduler {
	if schedule == "" {
		schedule = "@every 30s"
	}
	return &HeartbeatScheduler{
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		checker:  checker,
		monitor:  mon,
		logger:   logger,
	}
}

// Start runs one heartbeat immediately, then on every tick of the schedule.
func (h *HeartbeatScheduler) Start() error {
	if _, err := h.cron.AddFunc(h.schedule, func() { h.RunOnce() }); err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", h.schedule, err)
	}
	go h.RunOnce()
	h.cron.Start()
	h.logger.Info("heartbeat scheduler started", zap.String("schedule", h.schedule))
	return nil
}

// Stop halts the schedule and waits for a running heartbeat to finish.
func (h *HeartbeatScheduler) Stop() {
	<-h.cron.Stop().Done()
}

// RunOnce performs a single probe and records it.
func (h *HeartbeatScheduler) RunOnce() bool {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	status, err := h.checker.Health(ctx)
	latency := time.Since(start)

	up := h.monitor.RecordHeartbeat(status, latency, h.timeout, err)
	if !up {
		h.logger.Warn("heartbeat down", zap.Int("status", status), zap.Duration("latency", latency), zap.Error(err))
	} else {
		h.logger.Debug("heartbeat up", zap.Duration("latency", latency))
	}
	return up
}
