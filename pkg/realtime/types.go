package realtime

import (
	"encoding/json"
	"time"
)

// Inbound and outbound event names on the push channel.
const (
	EventConnected   = "connected"
	EventDisconnect  = "disconnect"
	EventStockUpdate = "stock-update"
	EventPong        = "pong"
	EventPing        = "ping"
)

// Keys the manager publishes on.
const (
	KeyConnectionStatus = "connection_status"
	KeyConnectionError  = "connection_error"
)

// Envelope is one frame on the push channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectionStatus is a snapshot of the manager state. SocketID is empty
// while disconnected.
type ConnectionStatus struct {
	Connected         bool   `json:"connected"`
	SocketID          string `json:"socketId,omitempty"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

// ConnectionError is published once when reconnection gives up.
type ConnectionError struct {
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// connectedPayload is what the server sends with the "connected" event.
type connectedPayload struct {
	SocketID string `json:"socketId"`
	ID       string `json:"id"`
}

type pingPayload struct {
	TS int64 `json:"ts"`
}
