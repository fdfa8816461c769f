package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stocksim/config"
	"stocksim/internal/client"
	"stocksim/pkg/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyBackend fails the first purchase with a 503 and answers the rest.
func flakyBackend(t *testing.T, purchases *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /purchases", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(purchases, 1) == 1 {
			http.Error(w, `{"message":"upstream busy"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","symbol":"AAPL","quantity":2,"total":"379","status":"accepted"}`))
	})
	mux.HandleFunc("GET /purchases", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","symbol":"AAPL","quantity":2,"total":"379","status":"completed"}]}`))
	})
	mux.HandleFunc("GET /auctions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"a1","symbol":"TSLA","quantity":4,"groupId":"g1","status":"open"}]}`))
	})
	mux.HandleFunc("POST /exchanges/{id}/respond", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","status":"accepted"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	c, err := client.New(&config.Config{
		Backend:  config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, BypassAuth: true},
		Realtime: config.RealtimeConfig{ConnectTimeout: time.Second, ReconnectInterval: time.Second, MaxReconnectAttempts: 1},
		Monitor:  config.MonitorConfig{HeartbeatSchedule: "@every 1h", HeartbeatTimeout: time.Second, EventLogCapacity: 100, Store: "memory"},
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

// go test -v --run TestBuyDeclinedRetry
func TestBuyDeclinedRetry(t *testing.T) {
	var purchases int32
	c := newTestClient(t, flakyBackend(t, &purchases))
	var out bytes.Buffer

	err := runCommand(context.Background(), c, []string{"buy", "AAPL", "2"}, strings.NewReader("n\n"), &out)
	require.Error(t, err)
	assert.Equal(t, "The server failed to process the request (503).", backend.Describe(err))
	assert.Contains(t, out.String(), "Retry once? [y/N]")
	assert.EqualValues(t, 1, atomic.LoadInt32(&purchases))
}

// go test -v --run TestBuyConfirmedRetry
func TestBuyConfirmedRetry(t *testing.T) {
	var purchases int32
	c := newTestClient(t, flakyBackend(t, &purchases))
	var out bytes.Buffer

	err := runCommand(context.Background(), c, []string{"buy", "AAPL", "2"}, strings.NewReader("y\n"), &out)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&purchases))
	assert.Contains(t, out.String(), "purchase p1: 2 AAPL, total 379.00 (accepted)")
}

// go test -v --run TestListCommands
func TestListCommands(t *testing.T) {
	var purchases int32
	c := newTestClient(t, flakyBackend(t, &purchases))
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runCommand(ctx, c, []string{"purchases"}, nil, &out))
	assert.Contains(t, out.String(), "SYMBOL")
	assert.Contains(t, out.String(), "379.00")

	out.Reset()
	require.NoError(t, runCommand(ctx, c, []string{"auctions"}, nil, &out))
	assert.Contains(t, out.String(), "TSLA")

	out.Reset()
	require.NoError(t, runCommand(ctx, c, []string{"respond", "x9", "accept"}, nil, &out))
	assert.Equal(t, "exchange x9 accepted\n", out.String())
}

// go test -v --run TestCommandUsage
func TestCommandUsage(t *testing.T) {
	var purchases int32
	c := newTestClient(t, flakyBackend(t, &purchases))

	err := runCommand(context.Background(), c, []string{"respond", "x9", "maybe"}, nil, &bytes.Buffer{})
	var u usageError
	require.ErrorAs(t, err, &u)
	assert.Contains(t, u.Error(), "accept|reject")

	err = runCommand(context.Background(), c, []string{"nope"}, nil, &bytes.Buffer{})
	require.ErrorAs(t, err, &u)
}
