package database

import (
	"fmt"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate brings the schema up to date. Migration is additive only:
// open orders must survive a restart so the engine can keep reconciling
// them afterwards.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Currency{},
		&models.Market{},
		&models.Account{},
		&models.Bot{},
		&models.Order{},
		&models.Trade{},
		&models.OHLCV{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
