package monitor

import "time"

// Category groups events for aggregation.
type Category string

const (
	CategoryPurchase  Category = "purchase"
	CategoryExchange  Category = "exchange"
	CategoryAPI       Category = "api"
	CategoryHeartbeat Category = "heartbeat"
	CategoryError     Category = "error"
	CategorySocket    Category = "socket"
)

// Phase prefixes the action names of a functional trace.
type Phase string

const (
	PhasePurchase Phase = "StockPurchase"
	PhaseExchange Phase = "StockExchange"
)

func (p Phase) category() Category {
	if p == PhaseExchange {
		return CategoryExchange
	}
	return CategoryPurchase
}

// SuccessAction is the terminal success action of the phase, e.g. "StockPurchase_Success".
func (p Phase) SuccessAction() string { return string(p) + "_Success" }

// StartAction opens a trace, e.g. "StockPurchase_Start".
func (p Phase) StartAction() string { return string(p) + "_Start" }

// ErrorAction closes a failed trace, e.g. "StockPurchase_Error".
func (p Phase) ErrorAction() string { return string(p) + "_Error" }

// Event is one telemetry record in the local event log.
type Event struct {
	ID         string                 `json:"id"`
	Category   Category               `json:"category"`
	Action     string                 `json:"action"`
	TraceID    string                 `json:"traceId,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Success    bool                   `json:"success"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Duration   time.Duration          `json:"duration,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Fixed aggregation windows.
const (
	LongWindow  = 24 * time.Hour // purchases, exchanges, errors, heartbeats
	ShortWindow = time.Hour      // API calls, availability
)

type FlowMetrics struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"` // percent
}

type ErrorMetrics struct {
	Total    int            `json:"total"`
	BySource map[string]int `json:"bySource"`
	LastAt   time.Time      `json:"lastAt,omitempty"`
}

type HeartbeatMetrics struct {
	Total        int       `json:"total"`
	Up           int       `json:"up"`
	Down         int       `json:"down"`
	LastAt       time.Time `json:"lastAt,omitempty"`
	AvgLatencyMs float64   `json:"avgLatencyMs"`
}

type APIMetrics struct {
	Total         int            `json:"total"`
	Failed        int            `json:"failed"`
	ErrorRate     float64        `json:"errorRate"` // percent
	AvgDurationMs float64        `json:"avgDurationMs"`
	ByEndpoint    map[string]int `json:"byEndpoint"`
}

type AvailabilityStatus string

const (
	StatusHealthy   AvailabilityStatus = "healthy"
	StatusDegraded  AvailabilityStatus = "degraded"
	StatusUnhealthy AvailabilityStatus = "unhealthy"
	StatusUnknown   AvailabilityStatus = "unknown"
)

type Availability struct {
	Uptime  float64            `json:"uptime"` // percent
	Status  AvailabilityStatus `json:"status"`
	Samples int                `json:"samples"`
}

// Snapshot is every derived metric at one instant.
type Snapshot struct {
	GeneratedAt  time.Time        `json:"generatedAt"`
	Purchases    FlowMetrics      `json:"purchases"`
	Exchanges    FlowMetrics      `json:"exchanges"`
	Errors       ErrorMetrics     `json:"errors"`
	Heartbeats   HeartbeatMetrics `json:"heartbeats"`
	APICalls     APIMetrics       `json:"apiCalls"`
	Availability Availability     `json:"availability"`
}
