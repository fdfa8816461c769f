package memorystore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxNotifications     = 20
	MaxStockUpdates      = 50
	NotificationLifetime = 5 * time.Second
)

// NotificationType is the severity class shown to the user.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is a toast built from an inbound server event.
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Expired reports whether the toast has outlived its display lifetime.
func (n Notification) Expired(now time.Time) bool {
	return now.Sub(n.Timestamp) >= NotificationLifetime
}

// StockUpdate is one "stock-update" push, kept for display only.
type StockUpdate struct {
	Type      string          `json:"type"` // e.g. "low_stock_alert"
	Data      StockUpdateData `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// StockUpdateData carries the payload fields the server may send. Optional
// counts are pointers so that an explicit zero survives decoding.
type StockUpdateData struct {
	Symbol            string           `json:"symbol"`
	Quantity          int64            `json:"quantity,omitempty"`
	RemainingQuantity *int64           `json:"remaining_quantity,omitempty"`
	RequestedQuantity int64            `json:"requested_quantity,omitempty"`
	AvailableQuantity *int64           `json:"available_quantity,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	Source            string           `json:"source,omitempty"` // peer group that bought
	Error             string           `json:"error,omitempty"`
}

// UnmarshalJSON reads counts and price leniently: 3, 3.0 and "3" all decode
// as 3, and a value that is not a number is left unset rather than failing
// the whole update.
func (d *StockUpdateData) UnmarshalJSON(b []byte) error {
	var raw struct {
		Symbol            string          `json:"symbol"`
		Quantity          json.RawMessage `json:"quantity"`
		RemainingQuantity json.RawMessage `json:"remaining_quantity"`
		RequestedQuantity json.RawMessage `json:"requested_quantity"`
		AvailableQuantity json.RawMessage `json:"available_quantity"`
		Price             json.RawMessage `json:"price"`
		Source            string          `json:"source"`
		Error             string          `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*d = StockUpdateData{Symbol: raw.Symbol, Source: raw.Source, Error: raw.Error}
	if n, ok := lenientNumber(raw.Quantity); ok {
		d.Quantity = n.IntPart()
	}
	if n, ok := lenientNumber(raw.RemainingQuantity); ok {
		v := n.IntPart()
		d.RemainingQuantity = &v
	}
	if n, ok := lenientNumber(raw.RequestedQuantity); ok {
		d.RequestedQuantity = n.IntPart()
	}
	if n, ok := lenientNumber(raw.AvailableQuantity); ok {
		v := n.IntPart()
		d.AvailableQuantity = &v
	}
	if n, ok := lenientNumber(raw.Price); ok {
		d.Price = &n
	}
	return nil
}

func lenientNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Decimal{}, false
	}
	n, err := decimal.NewFromString(s)
	return n, err == nil
}

// Stock is the latest known state of one listed symbol.
type Stock struct {
	Symbol    string          `json:"symbol"`
	ShortName string          `json:"shortName,omitempty"`
	LongName  string          `json:"longName,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency,omitempty"`
	Quantity  int64           `json:"quantity"`
	UpdatedAt time.Time       `json:"timestamp"`
}
