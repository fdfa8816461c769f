package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stocksim/internal/monitor"
	"stocksim/pkg/backend"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNothingToRetry is returned by the retry calls when no failed flow is
// waiting, or when its single retry was already used.
var ErrNothingToRetry = errors.New("trading: nothing to retry")

// Backend is the part of the REST client the trading flows call.
type Backend interface {
	Purchase(ctx context.Context, req backend.PurchaseRequest) (backend.Purchase, error)
	Deposit(ctx context.Context, req backend.DepositRequest) (backend.Wallet, error)
	ProposeExchange(ctx context.Context, req backend.ExchangeRequest) (backend.Exchange, error)
	CreateAuction(ctx context.Context, req backend.AuctionRequest) (backend.Auction, error)
}

// Service runs the user-facing trading flows and traces each one. Requests
// are sent once. A purchase or deposit that fails with a retryable error can
// be retried exactly once, and only when the user asks for it.
type Service struct {
	backend Backend
	mon     *monitor.Monitor
	logger  *zap.Logger

	mu              sync.Mutex
	pendingPurchase *backend.PurchaseRequest
	pendingDeposit  *decimal.Decimal
}

func NewService(b Backend, mon *monitor.Monitor, logger *zap.Logger) *Service {
	return &Service{backend: b, mon: mon, logger: logger}
}

// Buy places a purchase order.
func (s *Service) Buy(ctx context.Context, symbol string, quantity int64) (backend.Purchase, error) {
	req := backend.PurchaseRequest{Symbol: symbol, Quantity: quantity}
	p, err := s.purchase(ctx, req, false)

	s.mu.Lock()
	s.pendingPurchase = nil
	if err != nil && backend.Retryable(err) {
		s.pendingPurchase = &req
	}
	s.mu.Unlock()
	return p, err
}

// CanRetryPurchase reports whether the last purchase failed in a way the
// user may retry.
func (s *Service) CanRetryPurchase() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingPurchase != nil
}

// RetryPurchase resends the last failed purchase. It consumes the retry
// whatever the outcome.
func (s *Service) RetryPurchase(ctx context.Context) (backend.Purchase, error) {
	s.mu.Lock()
	req := s.pendingPurchase
	s.pendingPurchase = nil
	s.mu.Unlock()

	if req == nil {
		return backend.Purchase{}, ErrNothingToRetry
	}
	return s.purchase(ctx, *req, true)
}

func (s *Service) purchase(ctx context.Context, req backend.PurchaseRequest, retry bool) (backend.Purchase, error) {
	attrs := map[string]interface{}{"symbol": req.Symbol, "quantity": req.Quantity, "retry": retry}
	trace := s.mon.StartTrace(ctx, monitor.PhasePurchase, attrs)
	trace.Step(ctx, "Requested", attrs)

	p, err := s.backend.Purchase(ctx, req)
	if err != nil {
		return p, s.fail(ctx, trace, "purchase", err)
	}

	if p.Status == "rejected" {
		return p, s.fail(ctx, trace, "purchase", fmt.Errorf("purchase %s rejected", p.ID))
	}
	if p.PaymentURL != "" {
		trace.Step(ctx, "PaymentPending", map[string]interface{}{"purchase_id": p.ID})
	}

	trace.Success(ctx, map[string]interface{}{"purchase_id": p.ID, "total": p.Total.String()})
	s.logger.Info("purchase placed", zap.String("symbol", req.Symbol), zap.Int64("quantity", req.Quantity), zap.String("id", p.ID))
	return p, nil
}

// ProposeExchange offers shares to another group. Not retryable.
func (s *Service) ProposeExchange(ctx context.Context, req backend.ExchangeRequest) (backend.Exchange, error) {
	trace := s.mon.StartTrace(ctx, monitor.PhaseExchange, map[string]interface{}{
		"symbol":       req.Symbol,
		"quantity":     req.Quantity,
		"target_group": req.TargetGroup,
	})

	x, err := s.backend.ProposeExchange(ctx, req)
	if err != nil {
		return x, s.fail(ctx, trace, "exchange", err)
	}

	trace.Success(ctx, map[string]interface{}{"exchange_id": x.ID})
	s.logger.Info("exchange proposed", zap.String("symbol", req.Symbol), zap.String("target", req.TargetGroup), zap.String("id", x.ID))
	return x, nil
}

// Deposit adds funds to the wallet.
func (s *Service) Deposit(ctx context.Context, amount decimal.Decimal) (backend.Wallet, error) {
	w, err := s.deposit(ctx, amount)

	s.mu.Lock()
	s.pendingDeposit = nil
	if err != nil && backend.Retryable(err) {
		s.pendingDeposit = &amount
	}
	s.mu.Unlock()
	return w, err
}

func (s *Service) CanRetryDeposit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingDeposit != nil
}

// RetryDeposit resends the last failed deposit, once.
func (s *Service) RetryDeposit(ctx context.Context) (backend.Wallet, error) {
	s.mu.Lock()
	amount := s.pendingDeposit
	s.pendingDeposit = nil
	s.mu.Unlock()

	if amount == nil {
		return backend.Wallet{}, ErrNothingToRetry
	}
	return s.deposit(ctx, *amount)
}

func (s *Service) deposit(ctx context.Context, amount decimal.Decimal) (backend.Wallet, error) {
	w, err := s.backend.Deposit(ctx, backend.DepositRequest{Amount: amount})
	if err != nil {
		s.mon.RecordError("deposit", err)
		return w, fmt.Errorf("deposit: %w", err)
	}
	s.logger.Info("deposit done", zap.String("amount", amount.String()), zap.String("balance", w.Balance.String()))
	return w, nil
}

func (s *Service) Auction(ctx context.Context, symbol string, quantity int64) (backend.Auction, error) {
	a, err := s.backend.CreateAuction(ctx, backend.AuctionRequest{Symbol: symbol, Quantity: quantity})
	if err != nil {
		s.mon.RecordError("auction", err)
		return a, fmt.Errorf("auction: %w", err)
	}
	return a, nil
}

func (s *Service) fail(ctx context.Context, trace *monitor.Trace, source string, err error) error {
	trace.Fail(ctx, err)
	s.mon.RecordError(source, err)
	s.logger.Warn(source+" failed", zap.String("trace", trace.ID()), zap.Error(err))
	return fmt.Errorf("%s: %w", source, err)
}
