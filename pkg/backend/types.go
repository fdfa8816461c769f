package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the user's simulated cash balance.
type Wallet struct {
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PurchaseRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Purchase is a buy order and its payment state.
type Purchase struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	Status     string          `json:"status"` // "pending", "accepted", "rejected"
	PaymentURL string          `json:"paymentUrl,omitempty"`
	CreatedAt  time.Time       `json:"createdAt,omitempty"`
}

type ExchangeRequest struct {
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
	TargetGroup string `json:"targetGroup"`
}

// Exchange is a share swap proposed to a peer group.
type Exchange struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Quantity    int64     `json:"quantity"`
	OriginGroup string    `json:"originGroup"`
	TargetGroup string    `json:"targetGroup"`
	Status      string    `json:"status"` // "proposed", "accepted", "rejected"
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type AuctionRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Auction offers shares to every peer group.
type Auction struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Quantity  int64     `json:"quantity"`
	GroupID   string    `json:"groupId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// listResponse is the envelope the backend uses for collections.
type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total,omitempty"`
}
