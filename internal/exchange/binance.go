package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/execution"
	"signal-trade-bot-go/internal/orders"
)

const (
	binanceBaseURL        = "https://api.binance.com/api/v3"
	binanceTestnetBaseURL = "https://testnet.binance.vision/api/v3"
	binanceRecvWindow     = "5000" // How long a request is valid in milliseconds
)

// BinanceClient is a client for the Binance REST API.
type BinanceClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

var _ Client = (*BinanceClient)(nil)

// NewBinanceClient creates a new Binance REST API client.
func NewBinanceClient(cfg *config.ExchangeAPI, logger *zap.Logger) *BinanceClient {
	var baseURL string
	if cfg.Testnet {
		baseURL = binanceTestnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		baseURL = binanceBaseURL
	}

	client := resty.New().SetBaseURL(baseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &BinanceClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("binance"),
		limiter:   limiter,
	}
}

func (c *BinanceClient) Name() string {
	return "binance"
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *BinanceClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and
// retry logic.
func (c *BinanceClient) doRequest(ctx context.Context, method, path string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.SetContext(ctx).Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
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
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

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
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// Ping checks connectivity against the server time endpoint.
func (c *BinanceClient) Ping(ctx context.Context) error {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&serverTimeResponse{})
	if _, err := c.doRequest(ctx, "GET", "/time", req); err != nil {
		return fmt.Errorf("binance ping failed: %w", err)
	}
	return nil
}

// accountResponse is the subset of /account we care about.
type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetBalance returns the free balance of the given asset.
func (c *BinanceClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	params := url.Values{}
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", binanceRecvWindow)
	params.Set("signature", c.sign(params.Encode()))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&accountResponse{})

	resp, err := c.doRequest(ctx, "GET", "/account", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get account balance: %w", err)
	}

	account := resp.Result().(*accountResponse)
	for _, b := range account.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse balance for %s: %w", asset, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// SubmitOrder places the plan's initial order as a MARKET order sized in
// quote currency, tagged with the plan's deterministic client order id.
func (c *BinanceClient) SubmitOrder(ctx context.Context, p *execution.Payload) (*orders.OrderRef, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", strconv.FormatFloat(p.Capital.InitialOrderUSD, 'f', 2, 64))
	params.Set("newClientOrderId", p.ClientOrderID)
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", binanceRecvWindow)

	queryString := params.Encode()
	params.Set("signature", c.sign(queryString))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode()).
		SetResult(&orders.BinanceOrder{})

	resp, err := c.doRequest(ctx, "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order after multiple attempts",
			zap.Error(err),
			zap.String("symbol", p.Symbol),
			zap.String("client_order_id", p.ClientOrderID),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	raw := resp.Result().(*orders.BinanceOrder)
	ref := orders.NormalizeBinanceOrder(raw, p.MarketType)
	c.logger.Info("Order submitted",
		zap.String("symbol", ref.Symbol),
		zap.String("status", string(ref.Status)),
		zap.String("client_order_id", ref.ClientOrderID))
	return &ref, nil
}

// SyncOpenOrders fetches raw open-order statuses for the symbol and merges
// them into the local set.
func (c *BinanceClient) SyncOpenOrders(ctx context.Context, symbol string, local []orders.OrderRef) ([]orders.OrderRef, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", binanceRecvWindow)
	params.Set("signature", c.sign(params.Encode()))

	var raws []orders.BinanceOrder
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryParamsFromValues(params).
		SetResult(&raws)

	if _, err := c.doRequest(ctx, "GET", "/openOrders", req); err != nil {
		return nil, fmt.Errorf("failed to get open orders for %s: %w", symbol, err)
	}

	marketType := ""
	if len(local) > 0 {
		marketType = local[0].MarketType
	}
	return orders.SyncBinanceOrders(local, raws, marketType), nil
}
