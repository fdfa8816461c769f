package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stocksim/config"
	"stocksim/internal/monitor"
	"stocksim/internal/relay"
	"stocksim/internal/snapshot"
	"stocksim/internal/statusserver"
	"stocksim/internal/trading"
	"stocksim/pkg/backend"
	"stocksim/pkg/realtime"
	"stocksim/pkg/storage/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// eventRetention is how long persisted monitoring events are kept. It must
// exceed monitor.LongWindow.
const eventRetention = 48 * time.Hour

// Client wires the relay pipeline: REST backend, push channel, dispatcher,
// stores and monitoring.
type Client struct {
	cfg    *config.Config
	logger *zap.Logger

	Backend    *backend.RESTClient
	Conn       *realtime.Manager
	Dispatcher *relay.Dispatcher
	Stores     relay.Stores
	Monitor    *monitor.Monitor
	Trading    *trading.Service
	Registry   *prometheus.Registry

	heartbeat *monitor.HeartbeatScheduler
	status    *statusserver.Server
	pg        *postgres.PostgresClient

	mu     sync.Mutex
	cancel context.CancelFunc
	unbind []func()
	done   sync.WaitGroup
}

// New builds every component without starting any of them.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		logger:     logger,
		Dispatcher: relay.NewDispatcher(logger),
		Stores:     relay.NewStores(),
		Registry:   prometheus.NewRegistry(),
	}

	// Event log: last 24h in memory, or Postgres when configured
	var eventLog monitor.EventLog = monitor.NewMemoryEventLog(cfg.Monitor.EventLogCapacity)
	if cfg.Monitor.Store == "postgres" {
		pg, err := postgres.InitializeAndMigrateEventRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		c.pg = pg
		eventLog = postgres.NewEventLog(pg)
	}
	c.Monitor = monitor.New(eventLog, logger)

	// REST backend, observed by the monitor
	opts := []backend.Option{backend.WithObserver(c.Monitor), backend.WithBypassAuth(cfg.Backend.BypassAuth)}
	if cfg.Backend.Token != "" {
		opts = append(opts, backend.WithToken(cfg.Backend.Token))
	}
	c.Backend = backend.NewRESTClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, opts...)
	c.Trading = trading.NewService(c.Backend, c.Monitor, logger)

	// Push channel: websocket first, long-polling fallback
	c.Conn = realtime.NewManager(c.dialer(), realtime.Options{
		ConnectTimeout:       cfg.Realtime.ConnectTimeout,
		ReconnectInterval:    cfg.Realtime.ReconnectInterval,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		PingInterval:         cfg.Realtime.PingInterval,
	}, c.Dispatcher, logger)
	c.Conn.SetMessageHandler(relay.MakeMessageHandler(logger, c.Dispatcher, c.Stores, c.Monitor))

	c.heartbeat = monitor.NewHeartbeatScheduler(cfg.Monitor.HeartbeatSchedule, cfg.Monitor.HeartbeatTimeout, c.Backend, c.Monitor, logger)

	c.Registry.MustRegister(
		monitor.NewExporter(c.Monitor.Aggregator(), logger),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Status.Addr != "" {
		c.status = statusserver.New(cfg.Status.Addr, c.Conn, c.Stores, c.Monitor.Aggregator(), c.Registry, logger)
	}

	return c, nil
}

func (c *Client) dialer() realtime.Dialer {
	header := http.Header{}
	if !c.cfg.Backend.BypassAuth && c.cfg.Backend.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Backend.Token)
	}

	var dialers []realtime.Dialer
	if c.cfg.Realtime.URL != "" {
		dialers = append(dialers, &realtime.WebSocketDialer{URL: c.cfg.Realtime.URL, Header: header})
	}
	if c.cfg.Realtime.PollingURL != "" {
		dialers = append(dialers, &realtime.PollingDialer{
			URL:    c.cfg.Realtime.PollingURL,
			Header: header,
			Client: &http.Client{Timeout: c.cfg.Realtime.ConnectTimeout + 30*time.Second},
		})
	}
	return &realtime.NegotiatingDialer{Dialers: dialers, Logger: c.logger}
}

// Start binds the listeners, seeds the stock table, starts monitoring and
// the status server, then opens the push channel. A failed first connect is
// not fatal: the manager keeps retrying up to its cap.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.unbind = append(c.unbind, relay.Bind(c.Dispatcher, c.Stores, c.logger))
	if c.status != nil {
		c.unbind = append(c.unbind, c.status.Subscribe(c.Dispatcher))
	}
	c.mu.Unlock()

	loader := &snapshot.StockLoader{Lister: c.Backend, Timeout: c.cfg.Backend.Timeout, Logger: c.logger}
	catalogue := &snapshot.DailyRefresher{
		Name: "stock-catalogue",
		Run: func(ctx context.Context) error {
			err := loader.Seed(ctx, c.Stores.Stocks)
			c.Monitor.RecordError("snapshot", err)
			return err
		},
		Logger: c.logger,
	}
	catalogue.Start(ctx)

	if c.pg != nil {
		retention := &snapshot.DailyRefresher{
			Name: "event-retention",
			Run: func(ctx context.Context) error {
				n, err := c.pg.DeleteOldEvents(ctx, time.Now().UTC().Add(-eventRetention))
				if err == nil {
					c.logger.Info("pruned monitoring events", zap.Int64("count", n))
				}
				return err
			},
			Logger: c.logger,
		}
		retention.Start(ctx)
	}

	if err := c.heartbeat.Start(); err != nil {
		cancel()
		return err
	}

	if c.status != nil {
		c.done.Add(1)
		go func() {
			defer c.done.Done()
			if err := c.status.Run(ctx); err != nil {
				c.logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	// Periodically log the relay state for visibility
	c.done.Add(1)
	go func() {
		defer c.done.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := c.Conn.Status()
				c.logger.Info("relay state",
					zap.Bool("connected", st.Connected),
					zap.Int("stocks", c.Stores.Stocks.CountAll()),
					zap.Int("updates", c.Stores.Updates.Len()),
					zap.Int("notifications", c.Stores.Notifications.Len()),
				)
			}
		}
	}()

	if err := c.Conn.Connect(ctx); err != nil {
		c.logger.Warn("initial connect failed, retrying in background", zap.Error(err))
	}
	return nil
}

// Stop tears everything down in reverse order. Safe to call once Start has
// returned.
func (c *Client) Stop() {
	c.Conn.Disconnect()
	c.heartbeat.Stop()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	unbind := c.unbind
	c.unbind = nil
	c.mu.Unlock()

	for _, u := range unbind {
		u()
	}
	c.done.Wait()

	if c.pg != nil {
		if err := c.pg.Close(); err != nil {
			c.logger.Warn("failed to close DB", zap.Error(err))
		}
	}
	c.logger.Info("client stopped")
}
