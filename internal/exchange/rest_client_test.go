package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:    client,
		apiKey:    "test_api_key",
		secretKey: "test_secret_key",
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestGetServerTime(t *testing.T) {
	// Arrange
	expectedTime := time.Now().UnixMilli()
	mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(mockResponse))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	// Act
	serverTime, err := rc.GetServerTime()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, expectedTime, serverTime)
}

func TestSubmitOrder_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"TRXBNB","orderId":12345,"status":"NEW","origQty":"1.000","executedQty":"0.000"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	ack, err := rc.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "TRXBNB",
		Side:   models.OrderSideBuy,
		Type:   models.OrderTypeMarket,
		Amount: decimal.NewFromInt(1),
	})

	assert.NoError(t, err)
	assert.Equal(t, "12345", ack.OrderID)
	assert.Equal(t, models.OrderStatusOpen, ack.Status)
}

func TestSubmitOrder_MinNotionalRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: NOTIONAL"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	ack, err := rc.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "TRXBNB",
		Side:   models.OrderSideBuy,
		Type:   models.OrderTypeMarket,
		Amount: decimal.RequireFromString("0.001"),
	})

	assert.Nil(t, ack)
	assert.Error(t, err)
	assert.True(t, IsMinNotional(err))
	assert.False(t, IsTransient(err))
}

func TestSubmitOrder_PermanentRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	_, err := rc.SubmitOrder(context.Background(), OrderRequest{
		Symbol: "TRXBNB",
		Side:   models.OrderSideBuy,
		Type:   models.OrderTypeMarket,
		Amount: decimal.NewFromInt(1),
	})

	assert.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, IsMinNotional(err))
	var perr *PermanentError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, -2010, perr.Code)
}

func TestFetchOrderStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/order":
			assert.Equal(t, "12345", r.URL.Query().Get("orderId"))
			_, _ = w.Write([]byte(`{"symbol":"TRXBNB","orderId":12345,"status":"PARTIALLY_FILLED","origQty":"100.000","executedQty":"40.000"}`))
		case "/myTrades":
			_, _ = w.Write([]byte(`[
				{"id":123,"orderId":12345,"price":"10.0000","qty":"25.000","commission":"0.01","commissionAsset":"BNB","time":1588287600000,"isMaker":false},
				{"id":124,"orderId":12345,"price":"10.0000","qty":"15.000","commission":"0.01","commissionAsset":"BNB","time":1588287660000,"isMaker":true}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	report, err := rc.FetchOrderStatus(context.Background(), "TRXBNB", "12345")

	assert.NoError(t, err)
	assert.Equal(t, "12345", report.OrderID)
	assert.Equal(t, models.OrderStatusOpen, report.Status)
	assert.True(t, report.Filled.Equal(decimal.NewFromInt(40)))
	assert.Len(t, report.Trades, 2)
	assert.Equal(t, "taker", report.Trades[0].TakerOrMaker)
	assert.Equal(t, "maker", report.Trades[1].TakerOrMaker)
	assert.Equal(t, "BNB", report.FeeCurrency)
	assert.True(t, report.FeeCost.Equal(decimal.RequireFromString("0.02")))
}

func TestCancelOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"TRXBNB","orderId":12345,"status":"CANCELED"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	ack, err := rc.CancelOrder(context.Background(), "TRXBNB", "12345")

	assert.NoError(t, err)
	assert.Equal(t, "12345", ack.OrderID)
	assert.Equal(t, models.OrderStatusCanceled, ack.Status)
}

func TestMapOrderStatus(t *testing.T) {
	assert.Equal(t, models.OrderStatusOpen, mapOrderStatus("NEW"))
	assert.Equal(t, models.OrderStatusOpen, mapOrderStatus("PARTIALLY_FILLED"))
	assert.Equal(t, models.OrderStatusClosed, mapOrderStatus("FILLED"))
	assert.Equal(t, models.OrderStatusCanceled, mapOrderStatus("CANCELED"))
	assert.Equal(t, models.OrderStatusCanceled, mapOrderStatus("REJECTED"))
	assert.Equal(t, models.OrderStatusCanceled, mapOrderStatus("EXPIRED"))
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, ApiKey: "k", SecretKey: "s"}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{Testnet: false}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
	})
}
