package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeMode selects the strategy evaluator that drives a bot.
type TradeMode string

const (
	TradeModeRisingChart TradeMode = "RISING_CHART"
)

// Bot binds an account to a market with one strategy configuration.
// LastPriceTick is the mutable runtime cursor of the rising-chart strategy:
// the reference price the next rise is measured against.
type Bot struct {
	gorm.Model
	AccountID uint
	Account   Account
	MarketID  uint
	Market    Market
	TradeMode TradeMode `gorm:"size:32;default:'RISING_CHART'"`
	Timeframe string    `gorm:"size:8;default:'1m'"`

	MaxAmount     decimal.Decimal `gorm:"type:decimal(32,16)"`
	MinRise       decimal.Decimal `gorm:"type:decimal(32,16)"` // percent
	StopLoss      decimal.Decimal `gorm:"type:decimal(32,16)"` // percent
	LastPriceTick decimal.Decimal `gorm:"type:decimal(32,16)"`

	Active bool `gorm:"default:true"`
	Paused bool `gorm:"default:false"`
}
