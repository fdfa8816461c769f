package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Monitor records telemetry into an EventLog.
type Monitor struct {
	log    EventLog
	logger *zap.Logger
	now    func() time.Time
}

func New(log EventLog, logger *zap.Logger) *Monitor {
	return &Monitor{log: log, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record fills in ID and Timestamp when missing and appends e.
func (m *Monitor) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	if err := m.log.Append(ctx, e); err != nil {
		m.logger.Warn("failed to record event", zap.String("action", e.Action), zap.Error(err))
		return err
	}
	return nil
}

func (m *Monitor) record(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.Record(ctx, e)
}

// RecordAPICall logs one REST round trip.
func (m *Monitor) RecordAPICall(method, endpoint string, status int, d time.Duration, err error) {
	attrs := map[string]interface{}{"method": method, "endpoint": endpoint}
	if err != nil {
		attrs["error"] = err.Error()
	}
	m.record(Event{
		Category:   CategoryAPI,
		Action:     "API_Call",
		Success:    err == nil && status > 0 && status < 400,
		StatusCode: status,
		Duration:   d,
		Attributes: attrs,
	})
}

// RecordHeartbeat logs one health probe and reports whether it counted as up.
func (m *Monitor) RecordHeartbeat(status int, latency, timeout time.Duration, err error) bool {
	up := err == nil && status == 200 && (timeout <= 0 || latency <= timeout)
	attrs := map[string]interface{}{}
	if err != nil {
		attrs["error"] = err.Error()
	}
	m.record(Event{
		Category:   CategoryHeartbeat,
		Action:     "Heartbeat",
		Success:    up,
		StatusCode: status,
		Duration:   latency,
		Attributes: attrs,
	})
	return up
}

// RecordError logs a failure not tied to a trace.
func (m *Monitor) RecordError(source string, err error) {
	if err == nil {
		return
	}
	m.record(Event{
		Category:   CategoryError,
		Action:     "Client_Error",
		Attributes: map[string]interface{}{"source": source, "error": err.Error()},
	})
}

// RecordSocket logs push-channel telemetry.
func (m *Monitor) RecordSocket(action string, attrs map[string]interface{}) {
	m.record(Event{Category: CategorySocket, Action: action, Success: true, Attributes: attrs})
}

// Aggregator returns an aggregator over this monitor's log.
func (m *Monitor) Aggregator() *Aggregator {
	return &Aggregator{log: m.log, now: m.now}
}
