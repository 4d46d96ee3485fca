package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-trading-bot-go/internal/models"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeSink collects appended candles.
type fakeSink struct {
	candles chan *models.OHLCV
}

func (f *fakeSink) Append(candle *models.OHLCV) error {
	f.candles <- candle
	return nil
}

func TestKlineStream_IngestsClosedCandlesOnly(t *testing.T) {
	notFinal := `{"stream":"trxbnb@kline_1m","data":{"s":"TRXBNB","k":{"t":1588287600000,"i":"1m","o":"1.0","c":"1.1","h":"1.2","l":"0.9","v":"500","x":false}}}`
	final := `{"stream":"trxbnb@kline_1m","data":{"s":"TRXBNB","k":{"t":1588287600000,"i":"1m","o":"1.0","c":"1.1","h":"1.2","l":"0.9","v":"500","x":true}}}`

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		assert.NoError(t, err)
		defer conn.Close()

		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(notFinal)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(final)))

		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	market := models.Market{
		Base:  models.Currency{Short: "TRX"},
		Quote: models.Currency{Short: "BNB"},
	}
	market.ID = 7

	sink := &fakeSink{candles: make(chan *models.OHLCV, 2)}
	stream := &KlineStream{
		url:    "ws" + strings.TrimPrefix(server.URL, "http"),
		sink:   sink,
		logger: zap.NewNop(),
		subs: map[string]Subscription{
			"TRXBNB@1m": {Market: market, Timeframe: models.Timeframe1m},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	select {
	case candle := <-sink.candles:
		assert.Equal(t, uint(7), candle.MarketID)
		assert.Equal(t, models.Timeframe1m, candle.Timeframe)
		assert.Equal(t, time.UnixMilli(1588287600000).UTC(), candle.Timestamp)
		assert.True(t, candle.ClosingPrice.Equal(decimal.RequireFromString("1.1")))
		assert.True(t, candle.VolumePrice.Equal(decimal.RequireFromString("500")))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for candle")
	}

	// the unclosed kline was dropped, only the final one arrived
	assert.Empty(t, sink.candles)
}
