package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport is one live connection to the push channel.
type Transport interface {
	Name() string
	// ID is the server-assigned session id, if the handshake carried one.
	ID() string
	Read(ctx context.Context) (Envelope, error)
	Write(env Envelope) error
	Close() error
}

// Dialer opens a Transport.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }

// NegotiatingDialer tries each dialer in order and returns the first
// transport that opens. Put the websocket dialer first and polling last.
type NegotiatingDialer struct {
	Dialers []Dialer
	Logger  *zap.Logger
}

func (n *NegotiatingDialer) Dial(ctx context.Context) (Transport, error) {
	var errs []error
	for _, d := range n.Dialers {
		t, err := d.Dial(ctx)
		if err == nil {
			return t, nil
		}
		if n.Logger != nil {
			n.Logger.Debug("transport dial failed, trying next", zap.Error(err))
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no transports configured")
	}
	return nil, errors.Join(errs...)
}

// WebSocketDialer dials the upgraded transport.
type WebSocketDialer struct {
	URL    string
	Header http.Header
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout(ctx),
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	return &wsTransport{conn: conn}, nil
}

func handshakeTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 45 * time.Second
}

type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) Name() string { return "websocket" }
func (t *wsTransport) ID() string   { return "" }

// Read blocks until a frame arrives. Closing the transport unblocks it.
func (t *wsTransport) Read(ctx context.Context) (Envelope, error) {
	var env Envelope
	if err := t.conn.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (t *wsTransport) Write(env Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// PollingDialer opens an HTTP long-polling session. The server answers
// GET ?transport=polling with {"sid": "..."}, then each GET with the sid
// returns a JSON array of envelopes and each POST delivers one envelope.
type PollingDialer struct {
	URL    string
	Header http.Header
	Client *http.Client
}

func (d *PollingDialer) Dial(ctx context.Context) (Transport, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{}
	}

	base, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("polling url: %w", err)
	}

	t := &pollingTransport{base: base, header: d.Header, client: client}
	req, err := t.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling handshake: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("polling handshake: status %d: %s", resp.StatusCode, body)
	}

	var hs struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("polling handshake decode: %w", err)
	}
	if hs.SID == "" {
		return nil, errors.New("polling handshake: empty sid")
	}
	t.sid = hs.SID
	t.done = make(chan struct{})
	return t, nil
}

const emptyPollDelay = 250 * time.Millisecond

type pollingTransport struct {
	base   *url.URL
	header http.Header
	client *http.Client
	sid    string

	pending   []Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func (t *pollingTransport) Name() string { return "polling" }
func (t *pollingTransport) ID() string   { return t.sid }

func (t *pollingTransport) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	u := *t.base
	q := u.Query()
	q.Set("transport", "polling")
	if t.sid != "" {
		q.Set("sid", t.sid)
	}
	u.RawQuery = q.Encode()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Read returns buffered envelopes first and long-polls when the buffer is empty.
func (t *pollingTransport) Read(ctx context.Context) (Envelope, error) {
	for len(t.pending) == 0 {
		select {
		case <-t.done:
			return Envelope{}, net.ErrClosed
		default:
		}

		pollCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-t.done:
				cancel()
			case <-pollCtx.Done():
			}
		}()
		batch, err := t.poll(pollCtx)
		cancel()
		if err != nil {
			return Envelope{}, err
		}
		if len(batch) == 0 {
			// Server answered without holding the poll open.
			select {
			case <-t.done:
			case <-ctx.Done():
				return Envelope{}, ctx.Err()
			case <-time.After(emptyPollDelay):
			}
			continue
		}
		t.pending = batch
	}

	env := t.pending[0]
	t.pending = t.pending[1:]
	return env, nil
}

func (t *pollingTransport) poll(ctx context.Context) ([]Envelope, error) {
	req, err := t.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll: status %d", resp.StatusCode)
	}

	var batch []Envelope
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("poll decode: %w", err)
	}
	return batch, nil
}

func (t *pollingTransport) Write(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := t.newRequest(ctx, http.MethodPost, body)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll write: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll write: status %d", resp.StatusCode)
	}
	return nil
}

func (t *pollingTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if req, err := t.newRequest(ctx, http.MethodDelete, nil); err == nil {
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	})
	return nil
}
