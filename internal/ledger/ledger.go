package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot-go/internal/exchange"
	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ValidationError reports an order that violates the market's declared
// precision or limits. Such an order is never sent to the exchange.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order validation failed on %s: %s", e.Field, e.Msg)
}

// Ledger owns all Order and Trade records. It is the single mutator of
// order state: submissions create rows, reconciliation advances them, and
// concurrent reconciliations for the same order id are serialized.
type Ledger struct {
	db      *gorm.DB
	gateway exchange.Gateway
	logger  *zap.Logger

	mu         sync.Mutex
	orderLocks map[string]*sync.Mutex
}

// New creates an order ledger over the shared database and gateway.
func New(db *gorm.DB, gateway exchange.Gateway, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:         db,
		gateway:    gateway,
		logger:     logger,
		orderLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing all writes for one order id.
func (l *Ledger) lockFor(orderID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.orderLocks[orderID]
	if !ok {
		m = &sync.Mutex{}
		l.orderLocks[orderID] = m
	}
	return m
}

// validate checks an order against the market's precision and limits.
func validate(market *models.Market, orderType models.OrderType, price, amount decimal.Decimal) error {
	if !amount.Equal(amount.RoundFloor(market.PrecisionAmount)) {
		return &ValidationError{Field: "amount",
			Msg: fmt.Sprintf("%s exceeds precision of %d decimal places", amount, market.PrecisionAmount)}
	}
	if amount.LessThan(market.LimitsAmountMin) {
		return &ValidationError{Field: "amount",
			Msg: fmt.Sprintf("%s is below market minimum %s", amount, market.LimitsAmountMin)}
	}
	if amount.GreaterThan(market.LimitsAmountMax) {
		return &ValidationError{Field: "amount",
			Msg: fmt.Sprintf("%s is above market maximum %s", amount, market.LimitsAmountMax)}
	}

	if orderType == models.OrderTypeLimit {
		if !price.Equal(price.RoundFloor(market.PrecisionPrice)) {
			return &ValidationError{Field: "price",
				Msg: fmt.Sprintf("%s exceeds precision of %d decimal places", price, market.PrecisionPrice)}
		}
		if price.LessThan(market.LimitsPriceMin) {
			return &ValidationError{Field: "price",
				Msg: fmt.Sprintf("%s is below market minimum %s", price, market.LimitsPriceMin)}
		}
		if price.GreaterThan(market.LimitsPriceMax) {
			return &ValidationError{Field: "price",
				Msg: fmt.Sprintf("%s is above market maximum %s", price, market.LimitsPriceMax)}
		}
	}
	return nil
}

// provisionalID generates the local key an order carries until the
// exchange assigns its own.
func provisionalID() string {
	return fmt.Sprintf("local-%d", time.Now().UnixNano())
}

// RecordSubmission validates, persists and submits one order. The row is
// created OPEN under a provisional key before the gateway call; on
// acknowledgement it is re-keyed to the exchange order id. On failure the
// row is marked terminal (NOT_MIN_NOTIONAL for a below-notional rejection,
// CANCELED otherwise) and the error is returned — a submission is never
// retried by the ledger, the caller decides.
func (l *Ledger) RecordSubmission(ctx context.Context, bot *models.Bot, market *models.Market,
	side models.OrderSide, orderType models.OrderType, price, amount decimal.Decimal) (*models.Order, error) {

	if err := validate(market, orderType, price, amount); err != nil {
		return nil, err
	}

	order := &models.Order{
		BotID:     bot.ID,
		OrderID:   provisionalID(),
		Timestamp: time.Now().UTC(),
		Status:    models.OrderStatusOpen,
		OrderType: orderType,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Filled:    decimal.Zero,
	}
	if err := l.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to record order submission: %w", err)
	}

	ack, err := l.gateway.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol: market.Symbol(),
		Side:   side,
		Type:   orderType,
		Price:  price,
		Amount: amount,
	})
	if err != nil {
		status := models.OrderStatusCanceled
		if exchange.IsMinNotional(err) {
			status = models.OrderStatusNotMinNotional
		}
		if dbErr := l.db.Model(order).Update("status", status).Error; dbErr != nil {
			l.logger.Error("Failed to mark rejected order",
				zap.String("order_id", order.OrderID), zap.Error(dbErr))
		}
		order.Status = status
		return order, err
	}

	order.OrderID = ack.OrderID
	if err := l.db.Model(order).Update("order_id", ack.OrderID).Error; err != nil {
		return nil, fmt.Errorf("failed to bind exchange order id %s: %w", ack.OrderID, err)
	}

	l.logger.Info("Order submitted",
		zap.Uint("bot_id", bot.ID),
		zap.String("symbol", market.Symbol()),
		zap.String("side", string(side)),
		zap.String("order_id", order.OrderID),
	)
	return order, nil
}

// Reconcile applies an exchange report to the order identified by
// orderID. It is an idempotent upsert: a report for an unknown order is
// logged and dropped, a report for an already-terminal order is a no-op,
// and re-applying the same report leaves the stored state unchanged.
func (l *Ledger) Reconcile(orderID string, report *exchange.OrderReport) (*models.Order, error) {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	var order models.Order
	err := l.db.Preload("Trades").Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.Warn("Dropping report for unknown order", zap.String("order_id", orderID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	if order.Status.Terminal() {
		l.logger.Debug("Dropping report for terminal order",
			zap.String("order_id", orderID), zap.String("status", string(order.Status)))
		return &order, nil
	}

	if report.Filled.GreaterThan(order.Amount) {
		l.logger.Warn("Dropping conflicting report: filled exceeds amount",
			zap.String("order_id", orderID),
			zap.String("filled", report.Filled.String()),
			zap.String("amount", order.Amount.String()),
		)
		return &order, nil
	}

	err = l.db.Transaction(func(tx *gorm.DB) error {
		seen := make(map[string]struct{}, len(order.Trades))
		for _, t := range order.Trades {
			seen[t.TradeID] = struct{}{}
		}
		for _, fill := range report.Trades {
			if _, ok := seen[fill.TradeID]; ok {
				continue
			}
			trade := models.Trade{
				OrderID:      order.ID,
				TradeID:      fill.TradeID,
				Timestamp:    fill.Timestamp,
				TakerOrMaker: fill.TakerOrMaker,
				Price:        fill.Price,
				Amount:       fill.Amount,
				FeeCurrency:  fill.FeeCurrency,
				FeeCost:      fill.FeeCost,
				FeeRate:      fill.FeeRate,
			}
			if err := tx.Create(&trade).Error; err != nil {
				return fmt.Errorf("failed to record trade %s: %w", fill.TradeID, err)
			}
			order.Trades = append(order.Trades, trade)
		}

		updates := map[string]interface{}{
			"status": report.Status,
		}
		if report.Filled.GreaterThan(order.Filled) {
			updates["filled"] = report.Filled
			order.Filled = report.Filled
		}
		if report.FeeCurrency != "" {
			updates["fee_currency"] = report.FeeCurrency
			updates["fee_cost"] = report.FeeCost
			order.FeeCurrency = report.FeeCurrency
			order.FeeCost = report.FeeCost
		}
		order.Status = report.Status

		if err := tx.Model(&models.Order{}).Where("order_id = ?", orderID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order %s: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if order.Status.Terminal() {
		l.logger.Info("Order reached terminal status",
			zap.String("order_id", orderID),
			zap.String("status", string(order.Status)),
			zap.String("filled", order.Filled.String()),
		)
	}
	return &order, nil
}

// OpenOrdersFor returns all non-terminal orders for a bot. The strategy
// evaluator consults this to avoid double-submission.
func (l *Ledger) OpenOrdersFor(botID uint) ([]models.Order, error) {
	var orders []models.Order
	err := l.db.
		Where("bot_id = ? AND status = ?", botID, models.OrderStatusOpen).
		Order("timestamp ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders for bot %d: %w", botID, err)
	}
	return orders, nil
}
