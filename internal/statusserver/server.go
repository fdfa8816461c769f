package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"stocksim/internal/monitor"
	"stocksim/internal/relay"
	"stocksim/pkg/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusSource reports the live connection status.
type StatusSource interface {
	Status() realtime.ConnectionStatus
}

// Subscriber is the dispatcher as seen by a listener.
type Subscriber interface {
	Subscribe(key string, fn relay.Listener) (unsubscribe func())
}

// Server exposes the client's in-memory state over HTTP.
type Server struct {
	addr     string
	conn     StatusSource
	stores   relay.Stores
	agg      *monitor.Aggregator
	registry *prometheus.Registry
	logger   *zap.Logger
	now      func() time.Time

	connected        prometheus.Gauge
	attempts         prometheus.Gauge
	connectionErrors prometheus.Counter
	requests         *prometheus.CounterVec

	mu     sync.Mutex
	unsubs []func()
	srv    *http.Server
}

func New(addr string, conn StatusSource, stores relay.Stores, agg *monitor.Aggregator, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		addr:     addr,
		conn:     conn,
		stores:   stores,
		agg:      agg,
		registry: registry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stocksim_realtime_connected",
			Help: "1 while the push channel is connected.",
		}),
		attempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stocksim_realtime_reconnect_attempts",
			Help: "Reconnect attempts since the last successful connection.",
		}),
		connectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stocksim_realtime_connection_errors_total",
			Help: "Times the client gave up reconnecting.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stocksim_status_http_requests_total",
			Help: "Requests served by the status server.",
		}, []string{"route", "method", "code"}),
	}
	registry.MustRegister(s.connected, s.attempts, s.connectionErrors, s.requests)
	return s
}

// Subscribe registers the server's connection listeners. Call the returned
// function (or Shutdown) to release them.
func (s *Server) Subscribe(d Subscriber) func() {
	unsubs := []func(){
		d.Subscribe(realtime.KeyConnectionStatus, func(payload interface{}) {
			st, ok := payload.(realtime.ConnectionStatus)
			if !ok {
				return
			}
			if st.Connected {
				s.connected.Set(1)
			} else {
				s.connected.Set(0)
			}
			s.attempts.Set(float64(st.ReconnectAttempts))
		}),
		d.Subscribe(realtime.KeyConnectionError, func(interface{}) {
			s.connectionErrors.Inc()
		}),
	}

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubs...)
	s.mu.Unlock()

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/notifications", s.handleNotifications)
	r.Delete("/notifications/{id}", s.handleDismiss)
	r.Get("/stock-updates", s.handleStockUpdates)
	r.Get("/stocks", s.handleStocks)
	r.Get("/stocks/{symbol}", s.handleStock)
	r.Get("/metrics/summary", s.handleSummary)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the listener and releases the subscriptions.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	srv := s.srv
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug("status request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conn.Status())
}

// handleNotifications lists toasts, newest first. ?active=true drops the
// ones past their display lifetime.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		writeJSON(w, http.StatusOK, s.stores.Notifications.Active(s.now()))
		return
	}
	writeJSON(w, http.StatusOK, s.stores.Notifications.All())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if !s.stores.Notifications.Dismiss(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStockUpdates(w http.ResponseWriter, r *http.Request) {
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		writeJSON(w, http.StatusOK, s.stores.Updates.BySymbol(strings.ToUpper(symbol)))
		return
	}
	writeJSON(w, http.StatusOK, s.stores.Updates.All())
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stores.Stocks.All())
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	stock, ok := s.stores.Stocks.Get(strings.ToUpper(chi.URLParam(r, "symbol")))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol")
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agg.Snapshot(r.Context())
	if err != nil {
		s.logger.Warn("metrics summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
