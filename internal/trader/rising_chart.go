package trader

import (
	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RisingChart buys into a market that has risen by at least MinRise
// percent since the bot's last price tick, and exits the position once the
// price drops StopLoss percent below the entry price.
type RisingChart struct{}

func (s *RisingChart) Name() string { return "RisingChart" }

// Evaluate applies the rising-chart policy. The rise check runs before the
// stop-loss check; a position can never be entered and exited in the same
// evaluation because the two branches are keyed on holding a position.
func (s *RisingChart) Evaluate(in Input) Action {
	if !in.Market.Active {
		return Action{}
	}
	if len(in.OpenOrders) > 0 {
		// single-flight: one non-terminal order per bot at a time
		return Action{}
	}

	if in.Position == nil {
		if in.Bot.LastPriceTick.IsZero() {
			// first observation: record the reference price, trade next time
			return Action{NextPriceTick: in.Close}
		}

		threshold := in.Bot.LastPriceTick.Mul(hundred.Add(in.Bot.MinRise)).Div(hundred)
		if in.Close.LessThan(threshold) {
			return Action{}
		}

		amount := in.Bot.MaxAmount
		if amount.GreaterThan(in.Market.LimitsAmountMax) {
			amount = in.Market.LimitsAmountMax
		}
		amount = amount.RoundFloor(in.Market.PrecisionAmount)
		if amount.LessThan(in.Market.LimitsAmountMin) {
			return Action{}
		}

		// The cursor moves at decision time, not at fill time, so the next
		// tick cannot re-trigger while the order is in flight.
		return Action{
			Type:          ActionBuy,
			OrderType:     models.OrderTypeMarket,
			Amount:        amount,
			NextPriceTick: in.Close,
		}
	}

	floor := in.Position.EntryPrice.Mul(hundred.Sub(in.Bot.StopLoss)).Div(hundred)
	if in.Close.LessThanOrEqual(floor) {
		return Action{
			Type:      ActionSell,
			OrderType: models.OrderTypeMarket,
			Amount:    in.Position.Amount,
		}
	}

	return Action{}
}
