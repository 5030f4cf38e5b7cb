package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/execution"
	"signal-trade-bot-go/internal/orders"
	"signal-trade-bot-go/internal/signal"
)

const okxBaseURL = "https://www.okx.com"

// OKXClient is a client for the OKX v5 REST API. OKX has no separate
// testnet host; demo trading is selected via a header.
type OKXClient struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	passphrase string
	testnet    bool
	logger     *zap.Logger
	limiter    *rate.Limiter
}

var _ Client = (*OKXClient)(nil)

// NewOKXClient creates a new OKX REST API client.
func NewOKXClient(cfg *config.ExchangeAPI, logger *zap.Logger) *OKXClient {
	if cfg.Testnet {
		logger.Warn("Using OKX demo trading mode")
	}
	return &OKXClient{
		client:     resty.New().SetBaseURL(okxBaseURL),
		apiKey:     cfg.ApiKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		testnet:    cfg.Testnet,
		logger:     logger.Named("okx"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

func (c *OKXClient) Name() string {
	return "okx"
}

// sign creates the OKX request signature: base64(HMAC-SHA256(timestamp +
// method + path + body)).
func (c *OKXClient) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// okxEnvelope is the uniform response wrapper of the v5 API.
type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doRequest executes one authenticated request with rate limiting. OKX
// reports API-level failures inside a 200 response, so the envelope code
// is checked too.
func (c *OKXClient) doRequest(ctx context.Context, method, path, body string) (*okxEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	req := c.client.R().
		SetContext(ctx).
		SetHeader("OK-ACCESS-KEY", c.apiKey).
		SetHeader("OK-ACCESS-SIGN", c.sign(timestamp, method, path, body)).
		SetHeader("OK-ACCESS-TIMESTAMP", timestamp).
		SetHeader("OK-ACCESS-PASSPHRASE", c.passphrase).
		SetHeader("Content-Type", "application/json").
		SetResult(&okxEnvelope{})
	if c.testnet {
		req.SetHeader("x-simulated-trading", "1")
	}
	if body != "" {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
	}

	envelope := resp.Result().(*okxEnvelope)
	if envelope.Code != "0" {
		return nil, fmt.Errorf("okx api error %s: %s", envelope.Code, envelope.Msg)
	}
	return envelope, nil
}

// Ping checks connectivity against the public time endpoint.
func (c *OKXClient) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	resp, err := c.client.R().SetContext(ctx).Get("/api/v5/public/time")
	if err != nil {
		return fmt.Errorf("okx ping failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("okx ping failed with status %s", resp.Status())
	}
	return nil
}

// GetBalance returns the available balance of the given currency.
func (c *OKXClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	path := "/api/v5/account/balance?ccy=" + strings.ToUpper(asset)
	envelope, err := c.doRequest(ctx, "GET", path, "")
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	var data []struct {
		Details []struct {
			Currency  string `json:"ccy"`
			Available string `json:"availBal"`
		} `json:"details"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}

	for _, d := range data {
		for _, detail := range d.Details {
			if strings.EqualFold(detail.Currency, asset) {
				avail, err := strconv.ParseFloat(detail.Available, 64)
				if err != nil {
					return 0, fmt.Errorf("failed to parse balance for %s: %w", asset, err)
				}
				return avail, nil
			}
		}
	}
	return 0, nil
}

// SubmitOrder places the plan's initial order as a market order. For spot
// market buys OKX sizes in quote currency; sells are sized in base
// currency, derived from the entry price.
func (c *OKXClient) SubmitOrder(ctx context.Context, p *execution.Payload) (*orders.OrderRef, error) {
	size := p.Capital.InitialOrderUSD
	if p.Side == signal.SideSell && p.EntryPrice > 0 {
		size = p.Capital.InitialOrderUSD / p.EntryPrice
	}

	order := map[string]string{
		"instId":  p.Symbol,
		"tdMode":  "cash",
		"side":    strings.ToLower(string(p.Side)),
		"ordType": "market",
		"sz":      strconv.FormatFloat(size, 'f', 8, 64),
		"clOrdId": okxClientOrderID(p.ClientOrderID),
	}
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	envelope, err := c.doRequest(ctx, "POST", "/api/v5/trade/order", string(body))
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", p.Symbol),
			zap.String("client_order_id", p.ClientOrderID))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	var data []struct {
		OrderID       string `json:"ordId"`
		ClientOrderID string `json:"clOrdId"`
		SCode         string `json:"sCode"`
		SMsg          string `json:"sMsg"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil || len(data) == 0 {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	if data[0].SCode != "0" {
		return nil, fmt.Errorf("order rejected by okx: %s %s", data[0].SCode, data[0].SMsg)
	}

	// The placement response carries no fill state; the order starts live
	// and the sync loop picks up fills from there.
	raw := orders.OKXOrder{
		OrderID:       data[0].OrderID,
		ClientOrderID: data[0].ClientOrderID,
		InstrumentID:  p.Symbol,
		Side:          strings.ToLower(string(p.Side)),
		OrderType:     "market",
		State:         "live",
		Size:          order["sz"],
		CreateTime:    strconv.FormatInt(time.Now().UnixMilli(), 10),
		UpdateTime:    strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	ref := orders.NormalizeOKXOrder(&raw, p.MarketType)
	c.logger.Info("Order submitted",
		zap.String("symbol", ref.Symbol),
		zap.String("status", string(ref.Status)),
		zap.String("client_order_id", ref.ClientOrderID))
	return &ref, nil
}

// SyncOpenOrders fetches the pending orders for the instrument and merges
// them into the local set.
func (c *OKXClient) SyncOpenOrders(ctx context.Context, symbol string, local []orders.OrderRef) ([]orders.OrderRef, error) {
	path := "/api/v5/trade/orders-pending?instId=" + symbol
	envelope, err := c.doRequest(ctx, "GET", path, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get pending orders for %s: %w", symbol, err)
	}

	var raws []orders.OKXOrder
	if err := json.Unmarshal(envelope.Data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode pending orders: %w", err)
	}

	marketType := ""
	if len(local) > 0 {
		marketType = local[0].MarketType
	}
	return orders.SyncOKXOrders(local, raws, marketType), nil
}

// okxClientOrderID strips characters OKX does not accept in client order
// ids (alphanumeric only, max 32).
func okxClientOrderID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}
