package exchange

import (
	"context"
	"time"

	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

// OrderRequest describes one order to place on the exchange.
type OrderRequest struct {
	Symbol string
	Side   models.OrderSide
	Type   models.OrderType
	Price  decimal.Decimal // zero for market orders
	Amount decimal.Decimal
}

// OrderAck is the exchange's acknowledgement of a submission or
// cancellation. The status is informational; the order ledger advances
// local state through reconciliation only.
type OrderAck struct {
	OrderID string
	Status  models.OrderStatus
}

// TradeFill is one execution the exchange reports for an order.
type TradeFill struct {
	TradeID      string
	Timestamp    time.Time
	TakerOrMaker string // "taker" or "maker"
	Price        decimal.Decimal
	Amount       decimal.Decimal
	FeeCurrency  string
	FeeCost      decimal.Decimal
	FeeRate      decimal.Decimal
}

// OrderReport is the exchange's view of an order at poll time.
type OrderReport struct {
	OrderID     string
	Status      models.OrderStatus
	Filled      decimal.Decimal
	Trades      []TradeFill
	FeeCurrency string
	FeeCost     decimal.Decimal
}

// Gateway abstracts order placement, cancellation and status queries
// against a remote venue. Every call may fail with a transient or a
// permanent error; callers use IsTransient to decide whether a retry is
// safe.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	FetchOrderStatus(ctx context.Context, symbol, orderID string) (*OrderReport, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (*OrderAck, error)
}
