package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method, endpoint string
	status           int
	err              error
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []call
}

func (o *recordingObserver) RecordAPICall(method, endpoint string, status int, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call{method, endpoint, status, err})
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stocks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, `{"message":"missing token"}`, http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"data":[{"symbol":"AAPL","shortName":"Apple","price":"189.5","currency":"USD","quantity":12}],"total":1}`))
	})
	mux.HandleFunc("/wallet/deposit", func(w http.ResponseWriter, r *http.Request) {
		var req DepositRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(Wallet{Balance: req.Amount.Add(decimal.NewFromInt(100)), Currency: "USD"})
	})
	mux.HandleFunc("/purchases", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"not enough stock"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run TestListStocks
func TestListStocks(t *testing.T) {
	srv := newBackend(t)
	obs := &recordingObserver{}
	c := NewRESTClient(srv.URL+"/", time.Second, WithToken("secret"), WithObserver(obs))

	stocks, err := c.ListStocks(context.Background(), 2, 25)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "AAPL", stocks[0].Symbol)
	assert.True(t, stocks[0].Price.Equal(decimal.RequireFromString("189.5")))
	assert.EqualValues(t, 12, stocks[0].Quantity)

	require.Len(t, obs.calls, 1)
	assert.Equal(t, "GET", obs.calls[0].method)
	assert.Equal(t, "/stocks", obs.calls[0].endpoint)
	assert.Equal(t, 200, obs.calls[0].status)
}

// go test -v --run TestBypassAuth
func TestBypassAuth(t *testing.T) {
	srv := newBackend(t)
	c := NewRESTClient(srv.URL, time.Second, WithToken("secret"), WithBypassAuth(true))

	_, err := c.ListStocks(context.Background(), 2, 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "You are not authorized to do that. Please log in again.", Describe(err))
}

// go test -v --run TestDeposit
func TestDeposit(t *testing.T) {
	srv := newBackend(t)
	c := NewRESTClient(srv.URL, time.Second)

	w, err := c.Deposit(context.Background(), DepositRequest{Amount: decimal.RequireFromString("25.50")})
	require.NoError(t, err)
	assert.Equal(t, "125.5", w.Balance.String())

	_, err = c.Deposit(context.Background(), DepositRequest{Amount: decimal.Zero})
	assert.Error(t, err)
}

// go test -v --run TestPurchaseRejected
func TestPurchaseRejected(t *testing.T) {
	srv := newBackend(t)
	obs := &recordingObserver{}
	c := NewRESTClient(srv.URL, time.Second, WithObserver(obs))

	_, err := c.Purchase(context.Background(), PurchaseRequest{Symbol: "AAPL", Quantity: 3})
	require.Error(t, err)
	assert.Equal(t, "not enough stock", Describe(err))
	assert.False(t, Retryable(err))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, http.StatusConflict, obs.calls[0].status)
	assert.Error(t, obs.calls[0].err)
}

// go test -v --run TestHealth
func TestHealth(t *testing.T) {
	srv := newBackend(t)
	c := NewRESTClient(srv.URL, time.Second)

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, status)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	status, err = NewRESTClient(down.URL, time.Second).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

// go test -v --run TestDescribeTimeout
func TestDescribeTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	c := NewRESTClient(slow.URL, 20*time.Millisecond)
	_, err := c.GetWallet(context.Background())
	require.Error(t, err)
	assert.Equal(t, "The request timed out. Please try again.", Describe(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetWallet(ctx)
	assert.Equal(t, "The request was cancelled.", Describe(err))
	assert.False(t, Retryable(err))
}

// go test -v --run TestRetryable
func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&APIError{Status: 502}))
	assert.True(t, Retryable(errors.New("read tcp: i/o timeout")))
	assert.False(t, Retryable(&APIError{Status: 400}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))

	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "A network error occurred. Please try again.", Describe(errors.New("boom")))
}

func newTradesBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /purchases", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","symbol":"AAPL","quantity":2,"total":"379","status":"completed"}],"total":1}`))
	})
	mux.HandleFunc("GET /exchanges", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"x1","symbol":"MSFT","quantity":1,"originGroup":"g1","targetGroup":"g2","status":"proposed"}]}`))
	})
	mux.HandleFunc("POST /exchanges/{id}/respond", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Accept bool `json:"accept"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status := "rejected"
		if body.Accept {
			status = "accepted"
		}
		_ = json.NewEncoder(w).Encode(Exchange{ID: r.PathValue("id"), Status: status})
	})
	mux.HandleFunc("GET /auctions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"a1","symbol":"TSLA","quantity":4,"groupId":"g1","status":"open"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run TestListTrades
func TestListTrades(t *testing.T) {
	srv := newTradesBackend(t)
	c := NewRESTClient(srv.URL, time.Second, WithBypassAuth(true))
	ctx := context.Background()

	purchases, err := c.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "p1", purchases[0].ID)
	assert.True(t, purchases[0].Total.Equal(decimal.NewFromInt(379)))

	exchanges, err := c.ListExchanges(ctx)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "g2", exchanges[0].TargetGroup)

	auctions, err := c.ListAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	assert.Equal(t, "TSLA", auctions[0].Symbol)
	assert.EqualValues(t, 4, auctions[0].Quantity)
}

// go test -v --run TestRespondExchange
func TestRespondExchange(t *testing.T) {
	srv := newTradesBackend(t)
	c := NewRESTClient(srv.URL, time.Second, WithBypassAuth(true))

	x, err := c.RespondExchange(context.Background(), "x1", true)
	require.NoError(t, err)
	assert.Equal(t, "x1", x.ID)
	assert.Equal(t, "accepted", x.Status)

	x, err = c.RespondExchange(context.Background(), "x1", false)
	require.NoError(t, err)
	assert.Equal(t, "rejected", x.Status)
}
