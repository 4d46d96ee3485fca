package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/exchange"
	"crypto-trading-bot-go/internal/ledger"
	"crypto-trading-bot-go/internal/marketdata"
	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runner executes one strategy iteration for a single bot: reconcile any
// in-flight orders first, then evaluate the strategy against the newest
// candle and submit the resulting action through the ledger.
type Runner struct {
	logger  *zap.Logger
	cfg     *config.Config
	db      *gorm.DB
	gateway exchange.Gateway
	ledger  *ledger.Ledger
	candles *marketdata.Store

	mu       sync.Mutex
	backoffs map[uint]*tickBackoff
}

// tickBackoff tracks consecutive transient failures for one bot.
type tickBackoff struct {
	failures int
	nextTry  time.Time
}

// NewRunner creates a bot runner over the shared components.
func NewRunner(logger *zap.Logger, cfg *config.Config, db *gorm.DB,
	gateway exchange.Gateway, led *ledger.Ledger, candles *marketdata.Store) *Runner {
	return &Runner{
		logger:   logger,
		cfg:      cfg,
		db:       db,
		gateway:  gateway,
		ledger:   led,
		candles:  candles,
		backoffs: make(map[uint]*tickBackoff),
	}
}

// Tick runs one full iteration for the bot. Deactivation is observed here,
// at the start of the tick; an in-flight gateway call from a previous tick
// has already completed and reconciled by the time this runs.
func (r *Runner) Tick(ctx context.Context, botID uint) error {
	var bot models.Bot
	err := r.db.
		Preload("Market").Preload("Market.Base").Preload("Market.Quote").
		First(&bot, botID).Error
	if err != nil {
		return fmt.Errorf("failed to load bot %d: %w", botID, err)
	}
	if !bot.Active {
		return nil
	}

	if r.inBackoff(bot.ID) {
		r.logger.Debug("Bot in backoff, skipping tick", zap.Uint("bot_id", bot.ID))
		return nil
	}

	l := r.logger.With(zap.Uint("bot_id", bot.ID), zap.String("market", bot.Market.Symbol()))

	open, err := r.ledger.OpenOrdersFor(bot.ID)
	if err != nil {
		return err
	}
	for i := range open {
		report, err := r.gateway.FetchOrderStatus(ctx, bot.Market.Symbol(), open[i].OrderID)
		if err != nil {
			if exchange.IsTransient(err) {
				l.Warn("Transient gateway error while polling order, will retry",
					zap.String("order_id", open[i].OrderID), zap.Error(err))
				r.recordFailure(&bot)
				return nil
			}
			return fmt.Errorf("failed to poll order %s: %w", open[i].OrderID, err)
		}
		if _, err := r.ledger.Reconcile(open[i].OrderID, report); err != nil {
			return err
		}
	}
	r.clearFailures(bot.ID)

	if bot.Paused {
		// a paused bot keeps reconciling but emits no new actions
		l.Debug("Bot paused, reconciliation only")
		return nil
	}

	candle, err := r.candles.Latest(bot.MarketID, bot.Timeframe)
	if err != nil {
		return err
	}
	if candle == nil {
		l.Debug("No candle available yet")
		return nil
	}

	// re-read open orders: reconciliation above may have closed some
	open, err = r.ledger.OpenOrdersFor(bot.ID)
	if err != nil {
		return err
	}
	position, err := r.position(&bot)
	if err != nil {
		return err
	}

	evaluator, ok := EvaluatorFor(bot.TradeMode)
	if !ok {
		return fmt.Errorf("no evaluator registered for trade mode %s", bot.TradeMode)
	}

	action := evaluator.Evaluate(Input{
		Bot:        bot,
		Market:     bot.Market,
		OpenOrders: open,
		Position:   position,
		Close:      candle.ClosingPrice,
	})

	if !action.NextPriceTick.IsZero() && !action.NextPriceTick.Equal(bot.LastPriceTick) {
		// persist the cursor at emission time, before the order is placed
		if err := r.db.Model(&bot).Update("last_price_tick", action.NextPriceTick).Error; err != nil {
			return fmt.Errorf("failed to update price tick for bot %d: %w", bot.ID, err)
		}
		bot.LastPriceTick = action.NextPriceTick
	}

	var side models.OrderSide
	switch action.Type {
	case ActionNone:
		return nil
	case ActionCancel:
		return r.cancelOpenOrders(ctx, &bot, open, l)
	case ActionBuy:
		side = models.OrderSideBuy
	case ActionSell:
		side = models.OrderSideSell
	}

	_, err = r.ledger.RecordSubmission(ctx, &bot, &bot.Market, side, action.OrderType, decimal.Zero, action.Amount)
	if err != nil {
		var vErr *ledger.ValidationError
		switch {
		case errors.As(err, &vErr):
			l.Error("Order rejected by validation, not submitted", zap.Error(err))
			return nil
		case exchange.IsTransient(err):
			l.Warn("Transient gateway error during submission, will retry", zap.Error(err))
			r.recordFailure(&bot)
			return nil
		default:
			l.Error("Order rejected by exchange", zap.Error(err))
			return nil
		}
	}

	l.Info("Strategy action executed",
		zap.String("side", string(side)),
		zap.String("amount", action.Amount.String()),
	)
	return nil
}

// cancelOpenOrders cancels every in-flight order and reconciles the final
// state the exchange reports, so a partial fill landed before the cancel
// is never lost.
func (r *Runner) cancelOpenOrders(ctx context.Context, bot *models.Bot, open []models.Order, l *zap.Logger) error {
	for i := range open {
		if _, err := r.gateway.CancelOrder(ctx, bot.Market.Symbol(), open[i].OrderID); err != nil {
			if exchange.IsTransient(err) {
				l.Warn("Transient gateway error during cancel, will retry",
					zap.String("order_id", open[i].OrderID), zap.Error(err))
				r.recordFailure(bot)
				return nil
			}
			return fmt.Errorf("failed to cancel order %s: %w", open[i].OrderID, err)
		}
		report, err := r.gateway.FetchOrderStatus(ctx, bot.Market.Symbol(), open[i].OrderID)
		if err != nil {
			if exchange.IsTransient(err) {
				r.recordFailure(bot)
				return nil
			}
			return err
		}
		if _, err := r.ledger.Reconcile(open[i].OrderID, report); err != nil {
			return err
		}
		l.Info("Order canceled", zap.String("order_id", open[i].OrderID))
	}
	return nil
}

// position finds the bot's open position: the most recent filled BUY order
// with no completed SELL after it. The entry price of a market order is
// derived from its fills.
func (r *Runner) position(bot *models.Bot) (*Position, error) {
	var buy models.Order
	err := r.db.
		Where("bot_id = ? AND side = ? AND status = ? AND filled > 0",
			bot.ID, models.OrderSideBuy, models.OrderStatusClosed).
		Order("timestamp DESC").
		First(&buy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position for bot %d: %w", bot.ID, err)
	}

	var sells int64
	err = r.db.Model(&models.Order{}).
		Where("bot_id = ? AND side = ? AND status = ? AND timestamp >= ?",
			bot.ID, models.OrderSideSell, models.OrderStatusClosed, buy.Timestamp).
		Count(&sells).Error
	if err != nil {
		return nil, err
	}
	if sells > 0 {
		return nil, nil
	}

	entry := buy.Price
	if entry.IsZero() {
		var trades []models.Trade
		if err := r.db.Where("order_id = ?", buy.ID).Find(&trades).Error; err != nil {
			return nil, err
		}
		var notional, volume decimal.Decimal
		for _, t := range trades {
			notional = notional.Add(t.Price.Mul(t.Amount))
			volume = volume.Add(t.Amount)
		}
		if volume.IsPositive() {
			entry = notional.Div(volume)
		}
	}

	return &Position{EntryPrice: entry, Amount: buy.Filled}, nil
}

// inBackoff reports whether the bot's next retry time is still in the future.
func (r *Runner) inBackoff(botID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backoffs[botID]
	return ok && time.Now().Before(b.nextTry)
}

// recordFailure advances the bot's backoff schedule and pauses the bot
// once the failure ceiling is reached. A paused bot still reconciles its
// open orders on later ticks.
func (r *Runner) recordFailure(bot *models.Bot) {
	r.mu.Lock()
	b, ok := r.backoffs[bot.ID]
	if !ok {
		b = &tickBackoff{}
		r.backoffs[bot.ID] = b
	}
	b.failures++
	b.nextTry = time.Now().Add(backoffDelay(b.failures))
	failures := b.failures
	r.mu.Unlock()

	if failures >= r.cfg.Trading.MaxTickFailures && !bot.Paused {
		r.logger.Warn("Pausing bot after repeated transient failures",
			zap.Uint("bot_id", bot.ID),
			zap.Int("failures", failures),
		)
		if err := r.db.Model(bot).Update("paused", true).Error; err != nil {
			r.logger.Error("Failed to pause bot", zap.Uint("bot_id", bot.ID), zap.Error(err))
		}
	}
}

// clearFailures resets the backoff schedule after a clean reconciliation.
func (r *Runner) clearFailures(botID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backoffs, botID)
}

// backoffDelay returns 1s, 2s, 4s, ... capped at one minute.
func backoffDelay(failures int) time.Duration {
	if failures > 6 {
		return time.Minute
	}
	return time.Second << (failures - 1)
}
