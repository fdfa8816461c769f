package monitor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "stocksim"

// Exporter publishes the aggregator snapshot as Prometheus gauges. Values
// are recomputed on every scrape.
type Exporter struct {
	agg    *Aggregator
	logger *zap.Logger

	flowEvents      *prometheus.Desc
	flowSuccessRate *prometheus.Desc
	errorsTotal     *prometheus.Desc
	heartbeats      *prometheus.Desc
	heartbeatLat    *prometheus.Desc
	apiCalls        *prometheus.Desc
	apiErrorRate    *prometheus.Desc
	apiDuration     *prometheus.Desc
	uptime          *prometheus.Desc
	status          *prometheus.Desc
}

func NewExporter(agg *Aggregator, logger *zap.Logger) *Exporter {
	return &Exporter{
		agg:    agg,
		logger: logger,
		flowEvents: prometheus.NewDesc(prometheus.BuildFQName(namespace, "flow", "events"),
			"Business flow events in the 24h window.", []string{"phase", "result"}, nil),
		flowSuccessRate: prometheus.NewDesc(prometheus.BuildFQName(namespace, "flow", "success_rate_percent"),
			"Business flow success rate in the 24h window.", []string{"phase"}, nil),
		errorsTotal: prometheus.NewDesc(prometheus.BuildFQName(namespace, "client", "errors"),
			"Client errors in the 24h window.", []string{"source"}, nil),
		heartbeats: prometheus.NewDesc(prometheus.BuildFQName(namespace, "heartbeat", "events"),
			"Heartbeats in the 24h window.", []string{"result"}, nil),
		heartbeatLat: prometheus.NewDesc(prometheus.BuildFQName(namespace, "heartbeat", "avg_latency_ms"),
			"Average heartbeat latency in the 24h window.", nil, nil),
		apiCalls: prometheus.NewDesc(prometheus.BuildFQName(namespace, "api", "calls"),
			"REST calls in the 1h window.", []string{"endpoint"}, nil),
		apiErrorRate: prometheus.NewDesc(prometheus.BuildFQName(namespace, "api", "error_rate_percent"),
			"REST error rate in the 1h window.", nil, nil),
		apiDuration: prometheus.NewDesc(prometheus.BuildFQName(namespace, "api", "avg_duration_ms"),
			"Average REST call duration in the 1h window.", nil, nil),
		uptime: prometheus.NewDesc(prometheus.BuildFQName(namespace, "availability", "uptime_percent"),
			"Heartbeat uptime in the 1h window.", nil, nil),
		status: prometheus.NewDesc(prometheus.BuildFQName(namespace, "availability", "status"),
			"1 for the current availability status.", []string{"status"}, nil),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.flowEvents
	ch <- e.flowSuccessRate
	ch <- e.errorsTotal
	ch <- e.heartbeats
	ch <- e.heartbeatLat
	ch <- e.apiCalls
	ch <- e.apiErrorRate
	ch <- e.apiDuration
	ch <- e.uptime
	ch <- e.status
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := e.agg.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("metrics snapshot failed", zap.Error(err))
		return
	}

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for phase, fm := range map[Phase]FlowMetrics{PhasePurchase: snap.Purchases, PhaseExchange: snap.Exchanges} {
		gauge(e.flowEvents, float64(fm.Total), string(phase), "total")
		gauge(e.flowEvents, float64(fm.Successful), string(phase), "success")
		gauge(e.flowEvents, float64(fm.Failed), string(phase), "failed")
		gauge(e.flowSuccessRate, fm.SuccessRate, string(phase))
	}
	for src, n := range snap.Errors.BySource {
		gauge(e.errorsTotal, float64(n), src)
	}
	gauge(e.heartbeats, float64(snap.Heartbeats.Up), "up")
	gauge(e.heartbeats, float64(snap.Heartbeats.Down), "down")
	gauge(e.heartbeatLat, snap.Heartbeats.AvgLatencyMs)
	for ep, n := range snap.APICalls.ByEndpoint {
		gauge(e.apiCalls, float64(n), ep)
	}
	gauge(e.apiErrorRate, snap.APICalls.ErrorRate)
	gauge(e.apiDuration, snap.APICalls.AvgDurationMs)
	gauge(e.uptime, snap.Availability.Uptime)
	for _, s := range []AvailabilityStatus{StatusHealthy, StatusDegraded, StatusUnhealthy, StatusUnknown} {
		v := 0.0
		if s == snap.Availability.Status {
			v = 1
		}
		gauge(e.status, v, string(s))
	}
}
