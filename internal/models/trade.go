package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade is a single fill event reported by the exchange for an order.
// An order accumulates zero or more trades; their summed amount never
// exceeds the order's amount.
type Trade struct {
	gorm.Model
	OrderID      uint
	TradeID      string `gorm:"uniqueIndex;size:64"`
	Timestamp    time.Time
	TakerOrMaker string `gorm:"size:8"`

	Price  decimal.Decimal `gorm:"type:decimal(32,16)"`
	Amount decimal.Decimal `gorm:"type:decimal(32,16)"`

	FeeCurrency string          `gorm:"size:16"`
	FeeCost     decimal.Decimal `gorm:"type:decimal(32,16)"`
	FeeRate     decimal.Decimal `gorm:"type:decimal(32,16)"`
}
