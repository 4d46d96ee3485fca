package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/database"
	"crypto-trading-bot-go/internal/exchange"
	"crypto-trading-bot-go/internal/ledger"
	"crypto-trading-bot-go/internal/logger"
	"crypto-trading-bot-go/internal/marketdata"
	"crypto-trading-bot-go/internal/models"
	"crypto-trading-bot-go/internal/trader"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize exchange REST client
	restClient := exchange.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to exchange API", zap.Error(err))
	}
	log.Info("Successfully connected to exchange API.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Core components
	candles := marketdata.NewStore(db, log.Named("marketdata"))
	led := ledger.New(db, restClient, log.Named("ledger"))
	runner := trader.NewRunner(log.Named("runner"), &cfg, db, restClient, led, candles)
	scheduler := trader.NewScheduler(log.Named("scheduler"), &cfg, db, runner)

	// Stream closed candles for every market an active bot trades on
	var bots []models.Bot
	if err := db.Preload("Market").Preload("Market.Base").Preload("Market.Quote").
		Where("active = ?", true).Find(&bots).Error; err != nil {
		log.Fatal("Failed to list active bots", zap.Error(err))
	}
	log.Info("Active bots loaded", zap.Int("count", len(bots)))

	subs := make([]exchange.Subscription, 0, len(bots))
	seen := make(map[string]struct{})
	for i := range bots {
		key := bots[i].Market.Symbol() + "@" + bots[i].Timeframe
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		subs = append(subs, exchange.Subscription{Market: bots[i].Market, Timeframe: bots[i].Timeframe})
	}
	stream := exchange.NewKlineStream(&cfg.Binance, candles, subs, log.Named("kline-stream"))
	go stream.Run(ctx)

	// Operator API
	api := trader.NewAPIServer(&cfg, db, log)
	api.Start()

	// Run the scheduler until shutdown
	scheduler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
