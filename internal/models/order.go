package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the local view of an order's lifecycle. An order starts
// OPEN and moves to exactly one terminal status, never back.
type OrderStatus string

const (
	OrderStatusOpen           OrderStatus = "OPEN"
	OrderStatusClosed         OrderStatus = "CLOSED"
	OrderStatusCanceled       OrderStatus = "CANCELED"
	OrderStatusNotMinNotional OrderStatus = "NOT_MIN_NOTIONAL"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusOpen
}

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is one order submitted to the exchange on behalf of a bot.
// OrderID is the exchange-assigned identifier and the sole reconciliation
// key; until the exchange acknowledges the submission it holds a
// locally-generated provisional value.
type Order struct {
	gorm.Model
	BotID     uint
	OrderID   string    `gorm:"uniqueIndex;size:64"`
	Timestamp time.Time
	Status    OrderStatus `gorm:"size:32"`
	OrderType OrderType   `gorm:"size:16"`
	Side      OrderSide   `gorm:"size:8"`

	Price  decimal.Decimal `gorm:"type:decimal(32,16)"` // zero for market orders
	Amount decimal.Decimal `gorm:"type:decimal(32,16)"`
	Filled decimal.Decimal `gorm:"type:decimal(32,16)"`

	FeeCurrency string          `gorm:"size:16"`
	FeeCost     decimal.Decimal `gorm:"type:decimal(32,16)"`
	FeeRate     decimal.Decimal `gorm:"type:decimal(32,16)"`

	Trades []Trade
}
