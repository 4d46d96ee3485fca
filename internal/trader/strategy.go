package trader

import (
	"crypto-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
)

// ActionType is what the evaluator wants done this tick.
type ActionType int

const (
	ActionNone ActionType = iota
	ActionBuy
	ActionSell
	ActionCancel
)

// Position describes a filled BUY order still awaiting its matching SELL.
type Position struct {
	EntryPrice decimal.Decimal
	Amount     decimal.Decimal
}

// Input is everything an evaluator may consult for one tick.
type Input struct {
	Bot        models.Bot
	Market     models.Market
	OpenOrders []models.Order
	Position   *Position
	Close      decimal.Decimal // latest closing price
}

// Action is the evaluator's decision for one tick. A zero NextPriceTick
// leaves the bot's price cursor unchanged.
type Action struct {
	Type          ActionType
	OrderType     models.OrderType
	Amount        decimal.Decimal
	NextPriceTick decimal.Decimal
}

// Evaluator maps one tick of market data to at most one order action.
// Implementations must be pure and deterministic: the same Input always
// yields the same Action.
type Evaluator interface {
	Name() string
	Evaluate(in Input) Action
}

// evaluators is the trade-mode dispatch table. New strategies register
// here, one evaluator per trade mode.
var evaluators = map[models.TradeMode]Evaluator{
	models.TradeModeRisingChart: &RisingChart{},
}

// EvaluatorFor returns the evaluator driving a trade mode.
func EvaluatorFor(mode models.TradeMode) (Evaluator, bool) {
	e, ok := evaluators[mode]
	return e, ok
}
