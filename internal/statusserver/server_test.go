package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stocksim/internal/memorystore"
	"stocksim/internal/monitor"
	"stocksim/internal/relay"
	"stocksim/pkg/realtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticStatus realtime.ConnectionStatus

func (s staticStatus) Status() realtime.ConnectionStatus { return realtime.ConnectionStatus(s) }

func newTestServer(t *testing.T) (*Server, relay.Stores, *relay.Dispatcher) {
	t.Helper()
	stores := relay.NewStores()
	mon := monitor.New(monitor.NewMemoryEventLog(100), zap.NewNop())
	s := New(":0", staticStatus{Connected: true, SocketID: "abc"}, stores, mon.Aggregator(), prometheus.NewRegistry(), zap.NewNop())
	d := relay.NewDispatcher(zap.NewNop())
	return s, stores, d
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// go test -v --run TestStatusEndpoints
func TestStatusEndpoints(t *testing.T) {
	s, stores, _ := newTestServer(t)
	h := s.Router()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st realtime.ConnectionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Connected)
	assert.Equal(t, "abc", st.SocketID)

	stores.Stocks.Upsert(memorystore.Stock{Symbol: "AAPL", Quantity: 7})
	rec = get(t, h, "/stocks/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quantity":7`)

	rec = get(t, h, "/stocks/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/metrics/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitor.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, monitor.StatusUnknown, snap.Availability.Status)
}

// go test -v --run TestNotificationEndpoints
func TestNotificationEndpoints(t *testing.T) {
	s, stores, _ := newTestServer(t)
	h := s.Router()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	stores.Notifications.Add(memorystore.Notification{ID: "old", Type: memorystore.NotificationInfo, Timestamp: now.Add(-10 * time.Second)})
	stores.Notifications.Add(memorystore.Notification{ID: "new", Type: memorystore.NotificationWarning, Timestamp: now.Add(-time.Second)})

	var all []memorystore.Notification
	require.NoError(t, json.Unmarshal(get(t, h, "/notifications").Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var active []memorystore.Notification
	require.NoError(t, json.Unmarshal(get(t, h, "/notifications?active=true").Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, "new", active[0].ID)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/notifications/new", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/notifications/new", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// go test -v --run TestStockUpdatesBySymbol
func TestStockUpdatesBySymbol(t *testing.T) {
	s, stores, _ := newTestServer(t)
	stores.Updates.Add(memorystore.StockUpdate{Type: "low_stock_alert", Data: memorystore.StockUpdateData{Symbol: "AAPL"}})
	stores.Updates.Add(memorystore.StockUpdate{Type: "out_of_stock", Data: memorystore.StockUpdateData{Symbol: "MSFT"}})

	var updates []memorystore.StockUpdate
	require.NoError(t, json.Unmarshal(get(t, s.Router(), "/stock-updates?symbol=msft").Body.Bytes(), &updates))
	require.Len(t, updates, 1)
	assert.Equal(t, "out_of_stock", updates[0].Type)
}

// go test -v --run TestConnectionGauges
func TestConnectionGauges(t *testing.T) {
	s, _, d := newTestServer(t)
	unsub := s.Subscribe(d)

	d.Publish(realtime.KeyConnectionStatus, realtime.ConnectionStatus{Connected: false, ReconnectAttempts: 3})
	assert.Equal(t, 0.0, testutil.ToFloat64(s.connected))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.attempts))

	d.Publish(realtime.KeyConnectionStatus, realtime.ConnectionStatus{Connected: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(s.connected))

	d.Publish(realtime.KeyConnectionError, realtime.ConnectionError{Attempts: 5})
	assert.Equal(t, 1.0, testutil.ToFloat64(s.connectionErrors))

	unsub()
	assert.Equal(t, 0, d.Count(realtime.KeyConnectionStatus))
	assert.Equal(t, 0, d.Count(realtime.KeyConnectionError))

	rec := get(t, s.Router(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stocksim_realtime_connection_errors_total 1"))
}
