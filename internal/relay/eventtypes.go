package relay

import (
	"fmt"

	"stocksim/internal/memorystore"
)

// EventType is the type tag carried by a stock-update push.
type EventType string

const (
	ExternalPurchase      EventType = "external_purchase"
	InsufficientStock     EventType = "insufficient_stock"
	LowStockAlert         EventType = "low_stock_alert"
	OutOfStock            EventType = "out_of_stock"
	ExternalPurchaseError EventType = "external_purchase_error"
)

// EventTypeMeta holds the severity and message template for one tag.
type EventTypeMeta struct {
	Severity memorystore.NotificationType
	Message  func(d memorystore.StockUpdateData) string
}

var knownEventTypes = map[EventType]EventTypeMeta{
	ExternalPurchase: {
		Severity: memorystore.NotificationSuccess,
		Message: func(d memorystore.StockUpdateData) string {
			msg := fmt.Sprintf("External purchase: %d shares of %s", d.Quantity, d.Symbol)
			if d.Source != "" {
				msg += fmt.Sprintf(" by group %s", d.Source)
			}
			return msg
		},
	},
	InsufficientStock: {
		Severity: memorystore.NotificationWarning,
		Message: func(d memorystore.StockUpdateData) string {
			return fmt.Sprintf("Insufficient stock for %s: requested %d, available %d",
				d.Symbol, d.RequestedQuantity, deref(d.AvailableQuantity))
		},
	},
	LowStockAlert: {
		Severity: memorystore.NotificationWarning,
		Message: func(d memorystore.StockUpdateData) string {
			return fmt.Sprintf("Low stock alert: only %d shares of %s remaining",
				deref(d.RemainingQuantity), d.Symbol)
		},
	},
	OutOfStock: {
		Severity: memorystore.NotificationError,
		Message: func(d memorystore.StockUpdateData) string {
			return fmt.Sprintf("%s is out of stock", d.Symbol)
		},
	},
	ExternalPurchaseError: {
		Severity: memorystore.NotificationError,
		Message: func(d memorystore.StockUpdateData) string {
			reason := d.Error
			if reason == "" {
				reason = "unknown error"
			}
			if d.Symbol == "" {
				return "External purchase failed: " + reason
			}
			return fmt.Sprintf("External purchase of %s failed: %s", d.Symbol, reason)
		},
	},
}

var defaultEventType = EventTypeMeta{
	Severity: memorystore.NotificationInfo,
	Message: func(d memorystore.StockUpdateData) string {
		if d.Symbol == "" {
			return "Stock update received"
		}
		return fmt.Sprintf("Stock update for %s", d.Symbol)
	},
}

// IsKnown reports whether the tag has its own entry in the table.
func (e EventType) IsKnown() bool {
	_, ok := knownEventTypes[e]
	return ok
}

// Classify returns the table entry for tag, falling back to info.
func Classify(tag string) EventTypeMeta {
	if meta, ok := knownEventTypes[EventType(tag)]; ok {
		return meta
	}
	return defaultEventType
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
