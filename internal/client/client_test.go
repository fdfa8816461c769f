package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stocksim/config"
	"stocksim/internal/memorystore"
	"stocksim/internal/relay"
	"stocksim/pkg/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeServer serves the REST backend and a websocket that pushes one
// low_stock_alert after the connected event.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stocks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"symbol":"AAPL","price":"189.5","quantity":10}]}`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(realtime.Envelope{Event: realtime.EventConnected, Data: json.RawMessage(`{"socketId":"sock-1"}`)})
		_ = conn.WriteJSON(realtime.Envelope{
			Event: realtime.EventStockUpdate,
			Data:  json.RawMessage(`{"type":"low_stock_alert","data":{"symbol":"AAPL","remaining_quantity":3}}`),
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, BypassAuth: true},
		Realtime: config.RealtimeConfig{
			URL:                  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
			ConnectTimeout:       2 * time.Second,
			ReconnectInterval:    50 * time.Millisecond,
			MaxReconnectAttempts: 5,
		},
		Monitor: config.MonitorConfig{
			HeartbeatSchedule: "@every 1h",
			HeartbeatTimeout:  time.Second,
			EventLogCapacity:  100,
			Store:             "memory",
		},
	}
}

// go test -v --run TestClientRelaysStockUpdate
func TestClientRelaysStockUpdate(t *testing.T) {
	srv := fakeServer(t)
	c, err := New(testConfig(srv), zap.NewNop())
	require.NoError(t, err)

	events := make(chan relay.StockEvent, 1)
	unsubscribe := c.Dispatcher.Subscribe("low_stock_alert", func(payload interface{}) {
		if ev, ok := payload.(relay.StockEvent); ok {
			events <- ev
		}
	})
	defer unsubscribe()

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	select {
	case ev := <-events:
		assert.Equal(t, memorystore.NotificationWarning, ev.Notification.Type)
		assert.Contains(t, ev.Notification.Message, "3")
	case <-time.After(3 * time.Second):
		t.Fatal("stock update never relayed")
	}

	assert.True(t, c.Conn.Status().Connected)
	assert.Equal(t, "sock-1", c.Conn.Status().SocketID)
	assert.Equal(t, 1, c.Stores.Updates.Len())

	require.Eventually(t, func() bool {
		s, ok := c.Stores.Stocks.Get("AAPL")
		return ok && s.Price.String() == "189.5"
	}, 2*time.Second, 20*time.Millisecond, "catalogue seeded")

	require.Eventually(t, func() bool {
		hb, err := c.Monitor.Aggregator().Heartbeats(context.Background())
		return err == nil && hb.Up == 1
	}, 2*time.Second, 20*time.Millisecond, "startup heartbeat recorded")
}

// go test -v --run TestClientGivesUp
func TestClientGivesUp(t *testing.T) {
	srv := fakeServer(t)
	cfg := testConfig(srv)
	cfg.Realtime.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/missing"
	cfg.Realtime.MaxReconnectAttempts = 2

	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		for _, n := range c.Stores.Notifications.All() {
			if n.Type == memorystore.NotificationError && strings.Contains(n.Message, "after 2 attempts") {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
	assert.False(t, c.Conn.Status().Connected)
}
