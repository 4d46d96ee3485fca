package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Timeframe values follow the exchange kline interval notation.
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
	Timeframe1d  = "1d"
)

// OHLCV is one closed price candle. Rows are append-only and immutable:
// exchanges may resend a closed candle, so re-ingestion of an existing
// (market, timeframe, timestamp) key is a no-op.
type OHLCV struct {
	gorm.Model
	MarketID  uint   `gorm:"uniqueIndex:idx_market_timeframe_timestamp"`
	Market    Market
	Timeframe string    `gorm:"uniqueIndex:idx_market_timeframe_timestamp;size:8"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_market_timeframe_timestamp"`

	OpenPrice    decimal.Decimal `gorm:"type:decimal(32,16)"`
	HighestPrice decimal.Decimal `gorm:"type:decimal(32,16)"`
	LowestPrice  decimal.Decimal `gorm:"type:decimal(32,16)"`
	ClosingPrice decimal.Decimal `gorm:"type:decimal(32,16)"`
	VolumePrice  decimal.Decimal `gorm:"type:decimal(32,16)"`
}
