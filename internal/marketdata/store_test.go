package marketdata

import (
	"testing"
	"time"

	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupStore(t *testing.T) (*gorm.DB, *Store) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.Currency{}, &models.Market{}, &models.OHLCV{}))
	return db, NewStore(db, zap.NewNop())
}

func candleAt(marketID uint, ts time.Time, close string) *models.OHLCV {
	return &models.OHLCV{
		MarketID:     marketID,
		Timeframe:    models.Timeframe1m,
		Timestamp:    ts,
		OpenPrice:    dec("0"),
		HighestPrice: dec("0"),
		LowestPrice:  dec("0"),
		ClosingPrice: dec(close),
		VolumePrice:  dec("0"),
	}
}

func TestStore_AppendAndLatest(t *testing.T) {
	_, store := setupStore(t)
	base := time.Date(2020, 4, 30, 23, 0, 0, 0, time.UTC)

	assert.NoError(t, store.Append(candleAt(1, base, "15.7987")))
	assert.NoError(t, store.Append(candleAt(1, base.Add(time.Minute), "15.8100")))

	latest, err := store.Latest(1, models.Timeframe1m)
	assert.NoError(t, err)
	assert.NotNil(t, latest)
	assert.True(t, latest.ClosingPrice.Equal(dec("15.8100")))
}

func TestStore_ReingestionIsNoOp(t *testing.T) {
	db, store := setupStore(t)
	ts := time.Date(2020, 4, 30, 23, 0, 0, 0, time.UTC)

	assert.NoError(t, store.Append(candleAt(1, ts, "15.7987")))
	// the exchange resends the closed candle with a different close price;
	// the first write wins
	assert.NoError(t, store.Append(candleAt(1, ts, "99.9999")))

	var count int64
	db.Model(&models.OHLCV{}).Count(&count)
	assert.Equal(t, int64(1), count)

	latest, err := store.Latest(1, models.Timeframe1m)
	assert.NoError(t, err)
	assert.True(t, latest.ClosingPrice.Equal(dec("15.7987")))
}

func TestStore_LatestWithoutCandles(t *testing.T) {
	_, store := setupStore(t)

	latest, err := store.Latest(42, models.Timeframe1m)
	assert.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStore_KeysAreIndependent(t *testing.T) {
	_, store := setupStore(t)
	ts := time.Date(2020, 4, 30, 23, 0, 0, 0, time.UTC)

	// same timestamp on different markets and timeframes is not a duplicate
	assert.NoError(t, store.Append(candleAt(1, ts, "1.0")))
	assert.NoError(t, store.Append(candleAt(2, ts, "2.0")))
	five := candleAt(1, ts, "3.0")
	five.Timeframe = models.Timeframe5m
	assert.NoError(t, store.Append(five))

	latest, err := store.Latest(2, models.Timeframe1m)
	assert.NoError(t, err)
	assert.True(t, latest.ClosingPrice.Equal(dec("2.0")))
}
