package relay

import "stocksim/internal/memorystore"

// Keys the relay publishes on, besides the per-type stock keys.
const (
	KeyStockUpdate  = "stock_update"
	KeyNotification = "notification"
	KeyPong         = "pong"
	KeyConnected    = "connected"
	KeyDisconnect   = "disconnect"
)

// StockEvent is delivered to both the type-specific key and KeyStockUpdate.
type StockEvent struct {
	Update       memorystore.StockUpdate  `json:"update"`
	Notification memorystore.Notification `json:"notification"`
}

// Stores are the in-memory views the relay keeps current.
type Stores struct {
	Notifications *memorystore.NotificationStore
	Updates       *memorystore.StockUpdateStore
	Stocks        *memorystore.StockTable
}

func NewStores() Stores {
	return Stores{
		Notifications: memorystore.NewNotificationStore(),
		Updates:       memorystore.NewStockUpdateStore(),
		Stocks:        memorystore.NewStockTable(),
	}
}

// Recorder receives socket telemetry.
type Recorder interface {
	RecordSocket(action string, attrs map[string]interface{})
}

// rawStockUpdate mirrors the wire shape; timestamp may be absent.
type rawStockUpdate struct {
	Type      string                      `json:"type"`
	Data      memorystore.StockUpdateData `json:"data"`
	Timestamp string                      `json:"timestamp"`
}
