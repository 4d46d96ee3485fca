package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Market is a tradable currency pair on one exchange. Precision and limits
// mirror the exchange's trading rules; every order must satisfy them before
// it is submitted.
type Market struct {
	gorm.Model
	BaseID   uint `gorm:"uniqueIndex:idx_base_quote_exchange"`
	Base     Currency
	QuoteID  uint `gorm:"uniqueIndex:idx_base_quote_exchange"`
	Quote    Currency
	Exchange string `gorm:"uniqueIndex:idx_base_quote_exchange;size:32"`
	Active   bool   `gorm:"default:true"`

	PrecisionAmount int32
	PrecisionPrice  int32
	LimitsAmountMin decimal.Decimal `gorm:"type:decimal(32,16)"`
	LimitsAmountMax decimal.Decimal `gorm:"type:decimal(32,16)"`
	LimitsPriceMin  decimal.Decimal `gorm:"type:decimal(32,16)"`
	LimitsPriceMax  decimal.Decimal `gorm:"type:decimal(32,16)"`
}

// Symbol returns the exchange ticker symbol, e.g. "TRXBNB".
func (m *Market) Symbol() string {
	return m.Base.Short + m.Quote.Short
}
