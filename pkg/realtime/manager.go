package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrMaxReconnect = errors.New("realtime: reconnect attempts exhausted")
)

// Publisher receives connection lifecycle events.
type Publisher interface {
	Publish(key string, payload interface{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration // zero disables the ping loop
}

// Manager owns the single push-channel connection. It is the only writer of
// ConnectionStatus; everything else reads snapshots or listens on
// KeyConnectionStatus.
type Manager struct {
	dialer Dialer
	opts   Options
	pub    Publisher
	logger *zap.Logger

	handler func(Envelope)

	mu          sync.Mutex
	transport   Transport
	status      ConnectionStatus
	connecting  bool // dial or retry loop in flight
	gen         uint64
	connCancel  context.CancelFunc
	retryCancel context.CancelFunc
}

// NewManager creates a manager. Call SetMessageHandler before Connect.
func NewManager(dialer Dialer, opts Options, pub Publisher, logger *zap.Logger) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 20 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	return &Manager{
		dialer: dialer,
		opts:   opts,
		pub:    pub,
		logger: logger,
	}
}

// SetMessageHandler sets the function that receives every inbound envelope.
func (m *Manager) SetMessageHandler(h func(Envelope)) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Status returns a copy of the current connection status.
func (m *Manager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect opens the connection. It is a no-op while connected or while a
// retry loop is already running. On failure the retry loop is started in the
// background and the first dial error is returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.status.Connected || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.status.ReconnectAttempts = 0
	if m.retryCancel != nil {
		m.retryCancel()
	}
	retryCtx, cancel := context.WithCancel(context.Background())
	m.retryCancel = cancel
	m.mu.Unlock()

	if err := m.dial(ctx); err != nil {
		m.logger.Error("realtime connect failed", zap.Error(err))
		m.publishStatus()
		go m.reconnectLoop(retryCtx)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the transport and resets the status. Listener
// registrations are untouched.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.gen++
	m.connecting = false
	m.status = ConnectionStatus{}
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.retryCancel != nil {
		m.retryCancel()
		m.retryCancel = nil
	}
	m.mu.Unlock()

	if t != nil {
		_ = t.Close()
		m.logger.Info("realtime disconnected", zap.String("transport", t.Name()))
	}
	m.publishStatus()
}

// Emit sends a client event.
func (m *Manager) Emit(event string, data interface{}) error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := t.Write(Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (m *Manager) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	t, err := m.dialer.Dial(dctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if !m.connecting {
		// Disconnect raced with the dial.
		m.mu.Unlock()
		_ = t.Close()
		return ErrNotConnected
	}
	m.gen++
	gen := m.gen
	connCtx, connCancel := context.WithCancel(context.Background())
	m.transport = t
	m.connCancel = connCancel
	m.connecting = false
	m.status = ConnectionStatus{Connected: true, SocketID: t.ID()}
	m.mu.Unlock()

	m.logger.Info("realtime connected", zap.String("transport", t.Name()), zap.String("sid", t.ID()))
	m.publishStatus()

	go m.readLoop(connCtx, t, gen)
	if m.opts.PingInterval > 0 {
		go m.pingLoop(connCtx)
	}
	return nil
}

// reconnectLoop waits the fixed interval before each attempt. When the cap
// is reached it publishes one ConnectionError and stops.
func (m *Manager) reconnectLoop(ctx context.Context) {
	var lastErr error
	for {
		m.mu.Lock()
		if m.status.ReconnectAttempts >= m.opts.MaxReconnectAttempts {
			attempts := m.status.ReconnectAttempts
			m.connecting = false
			m.mu.Unlock()
			m.giveUp(attempts, lastErr)
			return
		}
		m.mu.Unlock()

		timer := time.NewTimer(m.opts.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if !m.connecting {
			m.mu.Unlock()
			return
		}
		m.status.ReconnectAttempts++
		attempt := m.status.ReconnectAttempts
		m.mu.Unlock()

		m.logger.Info("realtime reconnecting", zap.Int("attempt", attempt), zap.Int("max", m.opts.MaxReconnectAttempts))
		if lastErr = m.dial(ctx); lastErr == nil {
			return
		}
		m.logger.Warn("realtime reconnect failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		m.publishStatus()
	}
}

func (m *Manager) giveUp(attempts int, cause error) {
	reason := ErrMaxReconnect.Error()
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", reason, cause)
	}
	m.logger.Error("realtime giving up", zap.Int("attempts", attempts), zap.String("reason", reason))
	m.pub.Publish(KeyConnectionError, ConnectionError{
		Attempts:  attempts,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func (m *Manager) readLoop(ctx context.Context, t Transport, gen uint64) {
	for {
		env, err := t.Read(ctx)
		if err != nil {
			m.dropped(gen, err)
			return
		}

		switch env.Event {
		case EventConnected:
			var p connectedPayload
			if len(env.Data) > 0 && json.Unmarshal(env.Data, &p) == nil {
				id := p.SocketID
				if id == "" {
					id = p.ID
				}
				if id != "" {
					m.mu.Lock()
					if m.gen == gen {
						m.status.SocketID = id
					}
					m.mu.Unlock()
					m.publishStatus()
				}
			}
		case EventDisconnect:
			m.logger.Info("server requested disconnect")
			m.dropped(gen, errors.New("server disconnect"))
			m.dispatch(env)
			return
		}

		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env Envelope) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(env)
	}
}

// dropped handles the loss of a live transport. Stale generations (after
// Disconnect or a newer connection) are ignored.
func (m *Manager) dropped(gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.transport == nil {
		m.mu.Unlock()
		return
	}
	t := m.transport
	m.transport = nil
	m.gen++
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.status.Connected = false
	m.status.SocketID = ""
	m.status.ReconnectAttempts = 0
	m.connecting = true
	if m.retryCancel != nil {
		m.retryCancel()
	}
	retryCtx, cancel := context.WithCancel(context.Background())
	m.retryCancel = cancel
	m.mu.Unlock()

	_ = t.Close()
	m.logger.Warn("realtime connection lost", zap.String("transport", t.Name()), zap.Error(cause))
	m.publishStatus()

	go m.reconnectLoop(retryCtx)
}

func (m *Manager) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := m.Emit(EventPing, pingPayload{TS: now.UnixMilli()}); err != nil {
				m.logger.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) publishStatus() {
	m.pub.Publish(KeyConnectionStatus, m.Status())
}
