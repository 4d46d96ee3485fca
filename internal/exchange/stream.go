package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	streamBaseURL        = "wss://stream.binance.com:9443/stream"
	testnetStreamBaseURL = "wss://testnet.binance.vision/stream"
)

// CandleSink receives closed candles from the stream. The market data
// store satisfies it.
type CandleSink interface {
	Append(candle *models.OHLCV) error
}

// Subscription names one market/timeframe kline stream to follow.
type Subscription struct {
	Market    models.Market
	Timeframe string
}

// KlineStream ingests closed candles from the exchange websocket feed into
// a candle sink. Unclosed (still forming) klines are dropped; the store
// only ever sees final candles.
type KlineStream struct {
	url    string
	sink   CandleSink
	logger *zap.Logger
	subs   map[string]Subscription // "SYMBOL@interval" -> subscription
}

// NewKlineStream builds a combined-stream subscriber for the given markets.
func NewKlineStream(cfg *config.Binance, sink CandleSink, subs []Subscription, logger *zap.Logger) *KlineStream {
	base := streamBaseURL
	if cfg.Testnet {
		base = testnetStreamBaseURL
	}

	names := make([]string, 0, len(subs))
	byKey := make(map[string]Subscription, len(subs))
	for _, sub := range subs {
		symbol := sub.Market.Symbol()
		names = append(names, strings.ToLower(symbol)+"@kline_"+sub.Timeframe)
		byKey[symbol+"@"+sub.Timeframe] = sub
	}

	return &KlineStream{
		url:    base + "?streams=" + strings.Join(names, "/"),
		sink:   sink,
		logger: logger,
		subs:   byKey,
	}
}

// klineEvent is the combined-stream kline payload.
type klineEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Kline  struct {
			OpenTime int64  `json:"t"`
			Interval string `json:"i"`
			Open     string `json:"o"`
			Close    string `json:"c"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Volume   string `json:"v"`
			Final    bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// Run connects and consumes the stream until the context is cancelled,
// reconnecting with capped exponential backoff.
func (s *KlineStream) Run(ctx context.Context) {
	if len(s.subs) == 0 {
		s.logger.Warn("No kline subscriptions configured, stream not started")
		return
	}

	failures := 0
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			s.logger.Info("Stopping kline stream...")
			return
		}

		failures++
		delay := reconnectDelay(failures)
		s.logger.Warn("Kline stream disconnected, reconnecting...",
			zap.Error(err),
			zap.Int("attempt", failures),
			zap.Duration("retry_after", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// reconnectDelay returns 1s, 2s, 4s, ... capped at one minute.
func reconnectDelay(failures int) time.Duration {
	if failures > 6 {
		return time.Minute
	}
	return time.Second << (failures - 1)
}

func (s *KlineStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("Kline stream connected", zap.Int("subscriptions", len(s.subs)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}

		var event klineEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Warn("Dropping unparseable stream message", zap.Error(err))
			continue
		}
		if !event.Data.Kline.Final {
			continue
		}

		s.ingest(&event)
	}
}

// ingest converts one closed kline into an OHLCV row and appends it.
func (s *KlineStream) ingest(event *klineEvent) {
	k := event.Data.Kline
	sub, ok := s.subs[event.Data.Symbol+"@"+k.Interval]
	if !ok {
		s.logger.Warn("Dropping kline for unknown subscription",
			zap.String("symbol", event.Data.Symbol),
			zap.String("interval", k.Interval),
		)
		return
	}

	open, err1 := decimal.NewFromString(k.Open)
	high, err2 := decimal.NewFromString(k.High)
	low, err3 := decimal.NewFromString(k.Low)
	closePrice, err4 := decimal.NewFromString(k.Close)
	volume, err5 := decimal.NewFromString(k.Volume)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		s.logger.Warn("Dropping kline with unparseable prices", zap.String("symbol", event.Data.Symbol))
		return
	}

	candle := &models.OHLCV{
		MarketID:     sub.Market.ID,
		Timeframe:    sub.Timeframe,
		Timestamp:    time.UnixMilli(k.OpenTime).UTC(),
		OpenPrice:    open,
		HighestPrice: high,
		LowestPrice:  low,
		ClosingPrice: closePrice,
		VolumePrice:  volume,
	}

	if err := s.sink.Append(candle); err != nil {
		s.logger.Error("Failed to store candle",
			zap.String("symbol", event.Data.Symbol),
			zap.Time("timestamp", candle.Timestamp),
			zap.Error(err),
		)
	}
}
