package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"stocksim/internal/memorystore"
	"stocksim/pkg/realtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MakeMessageHandler returns the function the connection manager calls for
// every inbound envelope. Stock updates are stored, turned into a
// notification, and published under their type tag and under KeyStockUpdate.
func MakeMessageHandler(logger *zap.Logger, d *Dispatcher, stores Stores, rec Recorder) func(realtime.Envelope) {
	return func(env realtime.Envelope) {
		switch env.Event {
		case realtime.EventStockUpdate:
			ev, err := ParseStockEvent(env.Data, time.Now().UTC())
			if err != nil {
				logger.Warn("failed to parse stock update", zap.Error(err))
				return
			}

			stores.Updates.Add(ev.Update)
			if ev.Update.Data.Symbol != "" {
				stores.Stocks.Apply(ev.Update)
			}
			stores.Notifications.Add(ev.Notification)

			if rec != nil {
				rec.RecordSocket("Socket_StockUpdate", map[string]interface{}{
					"type":   ev.Update.Type,
					"symbol": ev.Update.Data.Symbol,
				})
			}

			d.Publish(ev.Update.Type, ev)
			d.Publish(KeyStockUpdate, ev)

		case realtime.EventPong:
			var p struct {
				TS int64 `json:"ts"`
			}
			var rtt time.Duration
			if len(env.Data) > 0 && json.Unmarshal(env.Data, &p) == nil && p.TS > 0 {
				rtt = time.Since(time.UnixMilli(p.TS))
			}
			if rec != nil {
				rec.RecordSocket("Socket_Pong", map[string]interface{}{"rtt_ms": rtt.Milliseconds()})
			}
			d.Publish(KeyPong, rtt)

		case realtime.EventConnected:
			d.Publish(KeyConnected, env.Data)

		case realtime.EventDisconnect:
			d.Publish(KeyDisconnect, env.Data)

		default:
			logger.Debug("unhandled event", zap.String("event", env.Event))
			d.Publish(env.Event, env.Data)
		}
	}
}

// ParseStockEvent decodes a stock-update payload and builds its notification.
// now is used when the payload carries no timestamp.
func ParseStockEvent(data []byte, now time.Time) (StockEvent, error) {
	var raw rawStockUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return StockEvent{}, fmt.Errorf("decode stock update: %w", err)
	}
	if raw.Type == "" {
		return StockEvent{}, fmt.Errorf("stock update without type")
	}

	ts := now
	if raw.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			ts = parsed
		}
	}

	update := memorystore.StockUpdate{Type: raw.Type, Data: raw.Data, Timestamp: ts}

	var fields map[string]interface{}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &envelope) == nil && len(envelope.Data) > 0 {
		_ = json.Unmarshal(envelope.Data, &fields)
	}

	return StockEvent{
		Update:       update,
		Notification: BuildNotification(update, fields),
	}, nil
}

// BuildNotification maps an update to a toast via the event type table.
// The toast is stamped with the local receive time so its display lifetime
// is not shortened by server clock skew.
func BuildNotification(u memorystore.StockUpdate, fields map[string]interface{}) memorystore.Notification {
	meta := Classify(u.Type)
	return memorystore.Notification{
		ID:        uuid.NewString(),
		Type:      meta.Severity,
		Message:   meta.Message(u.Data),
		Data:      fields,
		Timestamp: time.Now().UTC(),
	}
}

// Bind wires connection lifecycle keys into the notification store: the
// terminal connection error becomes an error toast.
func Bind(d *Dispatcher, stores Stores, logger *zap.Logger) (unbind func()) {
	return d.Subscribe(realtime.KeyConnectionError, func(payload interface{}) {
		cerr, ok := payload.(realtime.ConnectionError)
		if !ok {
			return
		}
		n := memorystore.Notification{
			ID:        uuid.NewString(),
			Type:      memorystore.NotificationError,
			Message:   fmt.Sprintf("Unable to reach the real-time server after %d attempts", cerr.Attempts),
			Data:      map[string]interface{}{"reason": cerr.Reason},
			Timestamp: time.Now().UTC(),
		}
		stores.Notifications.Add(n)
		logger.Warn("realtime connection abandoned", zap.Int("attempts", cerr.Attempts))
		d.Publish(KeyNotification, n)
	})
}
