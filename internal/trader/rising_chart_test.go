package trader

import (
	"testing"

	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testMarket mirrors the TRX/BNB trading rules used across the suite.
func testMarket() models.Market {
	return models.Market{
		Base:            models.Currency{Short: "TRX", Name: "TRON"},
		Quote:           models.Currency{Short: "BNB", Name: "Binance Coin"},
		Exchange:        "binance",
		Active:          true,
		PrecisionAmount: 3,
		PrecisionPrice:  4,
		LimitsAmountMin: dec("0.1"),
		LimitsAmountMax: dec("1000"),
		LimitsPriceMin:  dec("0.1"),
		LimitsPriceMax:  dec("1000"),
	}
}

func testBot() models.Bot {
	return models.Bot{
		TradeMode: models.TradeModeRisingChart,
		MaxAmount: dec("1"),
		MinRise:   dec("5"),
		StopLoss:  dec("2"),
		Active:    true,
	}
}

func TestRisingChart_BuysOnRise(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")

	// 6% rise against a 5% threshold
	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: testMarket(),
		Close:  dec("1.06"),
	})

	assert.Equal(t, ActionBuy, action.Type)
	assert.Equal(t, models.OrderTypeMarket, action.OrderType)
	assert.True(t, action.Amount.Equal(dec("1")))
	assert.True(t, action.NextPriceTick.Equal(dec("1.06")))
}

func TestRisingChart_NoActionBelowThreshold(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")

	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: testMarket(),
		Close:  dec("1.04"),
	})

	assert.Equal(t, ActionNone, action.Type)
	assert.True(t, action.NextPriceTick.IsZero())
}

func TestRisingChart_InactiveMarket(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")
	market := testMarket()
	market.Active = false

	// even a large rise must not trigger on an inactive market
	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: market,
		Close:  dec("2.00"),
	})

	assert.Equal(t, ActionNone, action.Type)
	assert.True(t, action.NextPriceTick.IsZero())
}

func TestRisingChart_SingleFlight(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")

	action := strategy.Evaluate(Input{
		Bot:        bot,
		Market:     testMarket(),
		OpenOrders: []models.Order{{OrderID: "1", Status: models.OrderStatusOpen}},
		Close:      dec("1.10"),
	})

	assert.Equal(t, ActionNone, action.Type)
}

func TestRisingChart_StopLoss(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("10")

	// entry at 10, a 2.1% drop breaches the 2% stop loss
	action := strategy.Evaluate(Input{
		Bot:      bot,
		Market:   testMarket(),
		Position: &Position{EntryPrice: dec("10"), Amount: dec("1")},
		Close:    dec("9.79"),
	})

	assert.Equal(t, ActionSell, action.Type)
	assert.Equal(t, models.OrderTypeMarket, action.OrderType)
	assert.True(t, action.Amount.Equal(dec("1")))
}

func TestRisingChart_HoldsAboveStopLoss(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("10")

	action := strategy.Evaluate(Input{
		Bot:      bot,
		Market:   testMarket(),
		Position: &Position{EntryPrice: dec("10"), Amount: dec("1")},
		Close:    dec("9.85"),
	})

	assert.Equal(t, ActionNone, action.Type)
}

func TestRisingChart_BootstrapTick(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot() // LastPriceTick unset

	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: testMarket(),
		Close:  dec("1.50"),
	})

	// first observation only records the reference price
	assert.Equal(t, ActionNone, action.Type)
	assert.True(t, action.NextPriceTick.Equal(dec("1.50")))
}

func TestRisingChart_AmountClampedToMarketRules(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")
	bot.MaxAmount = dec("1500.12345") // above limits_amount_max, too precise

	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: testMarket(),
		Close:  dec("1.06"),
	})

	assert.Equal(t, ActionBuy, action.Type)
	assert.True(t, action.Amount.Equal(dec("1000")))
}

func TestRisingChart_AmountBelowMarketMinimum(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")
	bot.MaxAmount = dec("0.05") // under limits_amount_min

	action := strategy.Evaluate(Input{
		Bot:    bot,
		Market: testMarket(),
		Close:  dec("1.06"),
	})

	assert.Equal(t, ActionNone, action.Type)
}

func TestRisingChart_Deterministic(t *testing.T) {
	strategy := &RisingChart{}
	bot := testBot()
	bot.LastPriceTick = dec("1.00")
	in := Input{Bot: bot, Market: testMarket(), Close: dec("1.06")}

	first := strategy.Evaluate(in)
	second := strategy.Evaluate(in)

	assert.Equal(t, first.Type, second.Type)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.True(t, first.NextPriceTick.Equal(second.NextPriceTick))
}
