package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stocksim/internal/memorystore"
)

// Observer receives one call per REST round trip.
type Observer interface {
	RecordAPICall(method, endpoint string, status int, d time.Duration, err error)
}

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
	bypassAuth bool
	observer   Observer
}

type Option func(*RESTClient)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option { return func(c *RESTClient) { c.token = token } }

// WithBypassAuth skips the Authorization header entirely (development only).
func WithBypassAuth(bypass bool) Option { return func(c *RESTClient) { c.bypassAuth = bypass } }

func WithObserver(o Observer) Option { return func(c *RESTClient) { c.observer = o } }

func NewRESTClient(baseURL string, timeout time.Duration, opts ...Option) *RESTClient {
	c := &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health probes GET /health and returns the status code. Non-200 answers are
// not errors here; the caller decides what counts as up.
func (c *RESTClient) Health(ctx context.Context) (int, error) {
	status, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, nil
	}
	return status, err
}

// ListStocks returns one page of listed stocks.
func (c *RESTClient) ListStocks(ctx context.Context, page, count int) ([]memorystore.Stock, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if count > 0 {
		q.Set("count", fmt.Sprint(count))
	}
	path := "/stocks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp listResponse[memorystore.Stock]
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *RESTClient) GetWallet(ctx context.Context) (Wallet, error) {
	var w Wallet
	_, err := c.do(ctx, http.MethodGet, "/wallet", nil, &w)
	return w, err
}

func (c *RESTClient) Deposit(ctx context.Context, req DepositRequest) (Wallet, error) {
	if !req.Amount.IsPositive() {
		return Wallet{}, fmt.Errorf("deposit amount must be positive")
	}
	var w Wallet
	_, err := c.do(ctx, http.MethodPost, "/wallet/deposit", req, &w)
	return w, err
}

func (c *RESTClient) Purchase(ctx context.Context, req PurchaseRequest) (Purchase, error) {
	if req.Symbol == "" || req.Quantity <= 0 {
		return Purchase{}, fmt.Errorf("purchase needs a symbol and a positive quantity")
	}
	var p Purchase
	_, err := c.do(ctx, http.MethodPost, "/purchases", req, &p)
	return p, err
}

func (c *RESTClient) ListPurchases(ctx context.Context) ([]Purchase, error) {
	var resp listResponse[Purchase]
	_, err := c.do(ctx, http.MethodGet, "/purchases", nil, &resp)
	return resp.Data, err
}

func (c *RESTClient) ProposeExchange(ctx context.Context, req ExchangeRequest) (Exchange, error) {
	if req.Symbol == "" || req.Quantity <= 0 || req.TargetGroup == "" {
		return Exchange{}, fmt.Errorf("exchange needs a symbol, a positive quantity and a target group")
	}
	var x Exchange
	_, err := c.do(ctx, http.MethodPost, "/exchanges", req, &x)
	return x, err
}

func (c *RESTClient) ListExchanges(ctx context.Context) ([]Exchange, error) {
	var resp listResponse[Exchange]
	_, err := c.do(ctx, http.MethodGet, "/exchanges", nil, &resp)
	return resp.Data, err
}

// RespondExchange accepts or rejects a proposal addressed to us.
func (c *RESTClient) RespondExchange(ctx context.Context, id string, accept bool) (Exchange, error) {
	var x Exchange
	body := map[string]bool{"accept": accept}
	_, err := c.do(ctx, http.MethodPost, "/exchanges/"+url.PathEscape(id)+"/respond", body, &x)
	return x, err
}

func (c *RESTClient) CreateAuction(ctx context.Context, req AuctionRequest) (Auction, error) {
	if req.Symbol == "" || req.Quantity <= 0 {
		return Auction{}, fmt.Errorf("auction needs a symbol and a positive quantity")
	}
	var a Auction
	_, err := c.do(ctx, http.MethodPost, "/auctions", req, &a)
	return a, err
}

func (c *RESTClient) ListAuctions(ctx context.Context) ([]Auction, error) {
	var resp listResponse[Auction]
	_, err := c.do(ctx, http.MethodGet, "/auctions", nil, &resp)
	return resp.Data, err
}

// do sends one JSON request and decodes a 2xx body into out (if non-nil).
func (c *RESTClient) do(ctx context.Context, method, path string, in, out interface{}) (status int, err error) {
	start := time.Now()
	endpoint := path
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	defer func() {
		if c.observer != nil {
			c.observer.RecordAPICall(method, endpoint, status, time.Since(start), err)
		}
	}()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	// Construct the request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.bypassAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// errorMessage pulls "message" or "error" out of a JSON error body, falling
// back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
