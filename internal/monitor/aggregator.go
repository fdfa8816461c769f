package monitor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Aggregator derives rolling metrics from an EventLog. Nothing is
// aggregated server side; every call rescans the window.
type Aggregator struct {
	log EventLog
	now func() time.Time
}

func NewAggregator(log EventLog) *Aggregator {
	return &Aggregator{log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (a *Aggregator) window(ctx context.Context, d time.Duration) ([]Event, error) {
	events, err := a.log.Since(ctx, a.now().Add(-d))
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// Snapshot computes every metric in one pass per window.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	long, err := a.window(ctx, LongWindow)
	if err != nil {
		return Snapshot{}, err
	}
	cutoff := a.now().Add(-ShortWindow)
	short := make([]Event, 0, len(long))
	for _, e := range long {
		if !e.Timestamp.Before(cutoff) {
			short = append(short, e)
		}
	}

	return Snapshot{
		GeneratedAt:  a.now(),
		Purchases:    flowMetrics(long, PhasePurchase),
		Exchanges:    flowMetrics(long, PhaseExchange),
		Errors:       errorMetrics(long),
		Heartbeats:   heartbeatMetrics(long),
		APICalls:     apiMetrics(short),
		Availability: availability(short),
	}, nil
}

func (a *Aggregator) Purchases(ctx context.Context) (FlowMetrics, error) {
	events, err := a.window(ctx, LongWindow)
	if err != nil {
		return FlowMetrics{}, err
	}
	return flowMetrics(events, PhasePurchase), nil
}

func (a *Aggregator) Exchanges(ctx context.Context) (FlowMetrics, error) {
	events, err := a.window(ctx, LongWindow)
	if err != nil {
		return FlowMetrics{}, err
	}
	return flowMetrics(events, PhaseExchange), nil
}

func (a *Aggregator) Errors(ctx context.Context) (ErrorMetrics, error) {
	events, err := a.window(ctx, LongWindow)
	if err != nil {
		return ErrorMetrics{}, err
	}
	return errorMetrics(events), nil
}

func (a *Aggregator) Heartbeats(ctx context.Context) (HeartbeatMetrics, error) {
	events, err := a.window(ctx, LongWindow)
	if err != nil {
		return HeartbeatMetrics{}, err
	}
	return heartbeatMetrics(events), nil
}

func (a *Aggregator) APICalls(ctx context.Context) (APIMetrics, error) {
	events, err := a.window(ctx, ShortWindow)
	if err != nil {
		return APIMetrics{}, err
	}
	return apiMetrics(events), nil
}

func (a *Aggregator) Availability(ctx context.Context) (Availability, error) {
	events, err := a.window(ctx, ShortWindow)
	if err != nil {
		return Availability{}, err
	}
	return availability(events), nil
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSuccess
	outcomeFailed
)

// classify checks the exact success action first, so an event is never
// counted as both successful and failed.
func classify(action string, phase Phase) outcome {
	switch {
	case action == phase.SuccessAction():
		return outcomeSuccess
	case strings.Contains(action, "Error"):
		return outcomeFailed
	default:
		return outcomeNone
	}
}

func flowMetrics(events []Event, phase Phase) FlowMetrics {
	var m FlowMetrics
	starts := 0
	prefix := string(phase) + "_"
	for _, e := range events {
		if e.Category != phase.category() || !strings.HasPrefix(e.Action, prefix) {
			continue
		}
		if e.Action == phase.StartAction() {
			starts++
			continue
		}
		switch classify(e.Action, phase) {
		case outcomeSuccess:
			m.Successful++
		case outcomeFailed:
			m.Failed++
		}
	}

	// Traces started before the window may finish inside it.
	m.Total = starts
	if closed := m.Successful + m.Failed; closed > m.Total {
		m.Total = closed
	}
	m.SuccessRate = percent(m.Successful, m.Total)
	return m
}

func errorMetrics(events []Event) ErrorMetrics {
	m := ErrorMetrics{BySource: map[string]int{}}
	for _, e := range events {
		if e.Category != CategoryError {
			continue
		}
		m.Total++
		src, _ := e.Attributes["source"].(string)
		if src == "" {
			src = "unknown"
		}
		m.BySource[src]++
		if e.Timestamp.After(m.LastAt) {
			m.LastAt = e.Timestamp
		}
	}
	return m
}

func heartbeatMetrics(events []Event) HeartbeatMetrics {
	var m HeartbeatMetrics
	var latency time.Duration
	for _, e := range events {
		if e.Category != CategoryHeartbeat {
			continue
		}
		m.Total++
		if e.Success {
			m.Up++
		} else {
			m.Down++
		}
		latency += e.Duration
		if e.Timestamp.After(m.LastAt) {
			m.LastAt = e.Timestamp
		}
	}
	if m.Total > 0 {
		m.AvgLatencyMs = round1(float64(latency.Milliseconds()) / float64(m.Total))
	}
	return m
}

func apiMetrics(events []Event) APIMetrics {
	m := APIMetrics{ByEndpoint: map[string]int{}}
	var total time.Duration
	for _, e := range events {
		if e.Category != CategoryAPI {
			continue
		}
		m.Total++
		if !e.Success {
			m.Failed++
		}
		total += e.Duration
		if ep, ok := e.Attributes["endpoint"].(string); ok {
			m.ByEndpoint[ep]++
		}
	}
	if m.Total > 0 {
		m.AvgDurationMs = round1(float64(total.Milliseconds()) / float64(m.Total))
	}
	m.ErrorRate = percent(m.Failed, m.Total)
	return m
}

func availability(events []Event) Availability {
	var a Availability
	up := 0
	for _, e := range events {
		if e.Category != CategoryHeartbeat {
			continue
		}
		a.Samples++
		if e.Success {
			up++
		}
	}
	if a.Samples == 0 {
		a.Status = StatusUnknown
		return a
	}
	// Threshold on the exact ratio; rounding is for display only.
	a.Status = StatusFor(float64(up) * 100 / float64(a.Samples))
	a.Uptime = percent(up, a.Samples)
	return a
}

// StatusFor maps an uptime percentage to a status.
func StatusFor(uptime float64) AvailabilityStatus {
	switch {
	case uptime >= 95:
		return StatusHealthy
	case uptime >= 80:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) * 100 / float64(total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
