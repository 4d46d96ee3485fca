package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.binance.com/api/v3"
	testnetBaseURL = "https://testnet.binance.vision/api/v3"
	recvWindow     = "5000" // How long a request is valid in milliseconds
)

// RestClient is a client for the Binance REST API.
// It implements the Gateway interface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ Gateway = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().SetBaseURL(url)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// apiError is the error payload Binance returns on a rejected request.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// permanentError turns a rejected response body into a PermanentError,
// mapping the minimum-notional filter failure onto ErrMinNotional.
func permanentError(body []byte, status string) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Code == 0 {
		return &PermanentError{Msg: fmt.Sprintf("status %s: %s", status, string(body))}
	}
	perr := &PermanentError{Code: ae.Code, Msg: ae.Msg}
	if ae.Code == -1013 && strings.Contains(strings.ToUpper(ae.Msg), "NOTIONAL") {
		perr.Err = ErrMinNotional
	}
	return perr
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Retryable failures (network errors, 429/418, 5xx) surface as TransientError once
// the attempts are exhausted; everything else is a PermanentError.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Err: fmt.Errorf("rate limiter wait failed: %w", err)}
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, permanentError(resp.Body(), resp.Status())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, &TransientError{Err: ctx.Err()}
		}
	}

	if err == nil {
		err = fmt.Errorf("status %s: %s", resp.Status(), resp.String())
	}
	return nil, &TransientError{Err: fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)}
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// mapOrderStatus translates a Binance order status into the local lifecycle.
func mapOrderStatus(s string) models.OrderStatus {
	switch s {
	case "FILLED":
		return models.OrderStatusClosed
	case "CANCELED", "PENDING_CANCEL", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return models.OrderStatusCanceled
	default: // NEW, PARTIALLY_FILLED
		return models.OrderStatusOpen
	}
}

// signedParams finalizes request parameters with timestamp, recvWindow and signature.
func (c *RestClient) signedParams(params url.Values) url.Values {
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)
	params.Set("signature", c.sign(params.Encode()))
	return params
}

// createOrderResponse represents the response from creating a new order.
type createOrderResponse struct {
	Symbol           string `json:"symbol"`
	OrderID          int64  `json:"orderId"`
	ClientOrderID    string `json:"clientOrderId"`
	TransactTime     int64  `json:"transactTime"`
	Price            string `json:"price"`
	OrigQuantity     string `json:"origQty"`
	ExecutedQuantity string `json:"executedQty"`
	Status           string `json:"status"`
	Type             string `json:"type"`
	Side             string `json:"side"`
}

// SubmitOrder places a new order on Binance.
func (c *RestClient) SubmitOrder(ctx context.Context, order OrderRequest) (*OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Type))
	params.Set("quantity", order.Amount.String())
	if order.Type == models.OrderTypeLimit {
		params.Set("price", order.Price.String())
		params.Set("timeInForce", "GTC")
	}

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signedParams(params).Encode()).
		SetResult(&createOrderResponse{})

	resp, err := c.doRequest(ctx, "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*createOrderResponse)
	ack := &OrderAck{
		OrderID: strconv.FormatInt(result.OrderID, 10),
		Status:  mapOrderStatus(result.Status),
	}
	c.logger.Info("Successfully created order",
		zap.String("symbol", order.Symbol),
		zap.String("order_id", ack.OrderID),
		zap.String("status", string(ack.Status)),
	)
	return ack, nil
}

// orderStatusResponse represents the response from querying an order.
type orderStatusResponse struct {
	Symbol           string `json:"symbol"`
	OrderID          int64  `json:"orderId"`
	Price            string `json:"price"`
	OrigQuantity     string `json:"origQty"`
	ExecutedQuantity string `json:"executedQty"`
	Status           string `json:"status"`
	Type             string `json:"type"`
	Side             string `json:"side"`
	Time             int64  `json:"time"`
}

// myTrade represents one fill from the /myTrades endpoint.
type myTrade struct {
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Quantity        string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsMaker         bool   `json:"isMaker"`
}

// FetchOrderStatus polls the exchange for an order's current state and the
// fills accumulated so far.
func (c *RestClient) FetchOrderStatus(ctx context.Context, symbol, orderID string) (*OrderReport, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signedParams(params)).
		SetResult(&orderStatusResponse{})

	resp, err := c.doRequest(ctx, "GET", "/order", req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	status := resp.Result().(*orderStatusResponse)

	filled, err := decimal.NewFromString(status.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse executed quantity %q: %w", status.ExecutedQuantity, err)
	}

	report := &OrderReport{
		OrderID: strconv.FormatInt(status.OrderID, 10),
		Status:  mapOrderStatus(status.Status),
		Filled:  filled,
	}

	fills, err := c.fetchOrderTrades(ctx, symbol, orderID)
	if err != nil {
		return nil, err
	}
	report.Trades = fills
	for _, f := range fills {
		if report.FeeCurrency == "" {
			report.FeeCurrency = f.FeeCurrency
		}
		report.FeeCost = report.FeeCost.Add(f.FeeCost)
	}

	return report, nil
}

// fetchOrderTrades lists the fills the exchange recorded for one order.
func (c *RestClient) fetchOrderTrades(ctx context.Context, symbol, orderID string) ([]TradeFill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var trades []myTrade
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signedParams(params)).
		SetResult(&trades)

	resp, err := c.doRequest(ctx, "GET", "/myTrades", req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trades for order %s: %w", orderID, err)
	}
	result := resp.Result().(*[]myTrade)

	fills := make([]TradeFill, 0, len(*result))
	for _, t := range *result {
		price, err1 := decimal.NewFromString(t.Price)
		amount, err2 := decimal.NewFromString(t.Quantity)
		fee, err3 := decimal.NewFromString(t.Commission)
		if err1 != nil || err2 != nil || err3 != nil {
			c.logger.Warn("Skipping fill with unparseable fields",
				zap.Int64("trade_id", t.ID), zap.String("symbol", symbol))
			continue
		}

		takerOrMaker := "taker"
		if t.IsMaker {
			takerOrMaker = "maker"
		}

		fills = append(fills, TradeFill{
			TradeID:      strconv.FormatInt(t.ID, 10),
			Timestamp:    time.UnixMilli(t.Time).UTC(),
			TakerOrMaker: takerOrMaker,
			Price:        price,
			Amount:       amount,
			FeeCurrency:  t.CommissionAsset,
			FeeCost:      fee,
		})
	}
	return fills, nil
}

// CancelOrder cancels an open order.
func (c *RestClient) CancelOrder(ctx context.Context, symbol, orderID string) (*OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(c.signedParams(params)).
		SetResult(&createOrderResponse{})

	resp, err := c.doRequest(ctx, "DELETE", "/order", req)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	result := resp.Result().(*createOrderResponse)
	return &OrderAck{
		OrderID: strconv.FormatInt(result.OrderID, 10),
		Status:  mapOrderStatus(result.Status),
	}, nil
}
