package trader

import (
	"context"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Scheduler fans one runner tick out to every active bot at a fixed
// cadence, bounding how many ticks run concurrently so the exchange rate
// limits are respected.
type Scheduler struct {
	logger *zap.Logger
	cfg    *config.Config
	db     *gorm.DB
	runner *Runner
}

// NewScheduler creates a scheduler driving the given runner.
func NewScheduler(logger *zap.Logger, cfg *config.Config, db *gorm.DB, runner *Runner) *Scheduler {
	return &Scheduler{
		logger: logger,
		cfg:    cfg,
		db:     db,
		runner: runner,
	}
}

// Run starts the scheduling loop and blocks until the context is
// cancelled. In-flight ticks of the current round complete before Run
// returns, so no fill is lost mid-reconciliation.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting scheduler", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler...")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce ticks every active bot. A bot's failure is logged and isolated;
// it never blocks or delays the other bots' ticks.
func (s *Scheduler) runOnce(ctx context.Context) {
	var bots []models.Bot
	if err := s.db.Where("active = ?", true).Find(&bots).Error; err != nil {
		s.logger.Error("Failed to list active bots", zap.Error(err))
		return
	}
	if len(bots) == 0 {
		s.logger.Debug("No active bots")
		return
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Trading.MaxConcurrentTicks)

	for _, bot := range bots {
		botID := bot.ID
		g.Go(func() error {
			if err := s.runner.Tick(ctx, botID); err != nil {
				s.logger.Error("Bot tick failed", zap.Uint("bot_id", botID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
