package marketdata

import (
	"errors"
	"fmt"

	"crypto-trading-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store holds time-ordered OHLCV candles keyed by (market, timeframe,
// timestamp). Writes are append-only; rows are immutable once written and
// safe under concurrent readers.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a new candle store on top of the shared database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Append inserts a candle. Re-ingestion of an existing key is a no-op:
// exchanges may resend a closed candle and the first write wins.
func (s *Store) Append(candle *models.OHLCV) error {
	var existing models.OHLCV
	err := s.db.
		Where("market_id = ? AND timeframe = ? AND timestamp = ?",
			candle.MarketID, candle.Timeframe, candle.Timestamp).
		First(&existing).Error
	if err == nil {
		s.logger.Debug("Candle already ingested, skipping",
			zap.Uint("market_id", candle.MarketID),
			zap.String("timeframe", candle.Timeframe),
			zap.Time("timestamp", candle.Timestamp),
		)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up candle: %w", err)
	}

	if err := s.db.Create(candle).Error; err != nil {
		return fmt.Errorf("failed to store candle: %w", err)
	}
	return nil
}

// Latest returns the most recent candle for a market and timeframe, or nil
// when none has been ingested yet.
func (s *Store) Latest(marketID uint, timeframe string) (*models.OHLCV, error) {
	var candle models.OHLCV
	err := s.db.
		Where("market_id = ? AND timeframe = ?", marketID, timeframe).
		Order("timestamp DESC").
		First(&candle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candle: %w", err)
	}
	return &candle, nil
}
