package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/execution"
	"signal-trade-bot-go/internal/orders"
	"signal-trade-bot-go/internal/signal"
)

// setupBinanceTestServer creates a test server and a BinanceClient pointed
// at it.
func setupBinanceTestServer(handler http.Handler) (*BinanceClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	bc := &BinanceClient{
		client:    client,
		apiKey:    "test_api_key",
		secretKey: "test_secret_key",
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return bc, server
}

func TestBinancePing(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, time.Now().UnixMilli())

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		// Act
		err := bc.Ping(context.Background())

		// Assert
		assert.NoError(t, err)
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1001, "msg": "bad request"}`))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		// Act
		err := bc.Ping(context.Background())

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "binance ping failed")
	})
}

func TestBinanceGetBalance(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := `{"balances": [
			{"asset": "BTC", "free": "0.5", "locked": "0"},
			{"asset": "USDT", "free": "1234.56", "locked": "10"}
		]}`

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/account", r.URL.Path)
			assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
			assert.NotEmpty(t, r.URL.Query().Get("signature"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		// Act
		balance, err := bc.GetBalance(context.Background(), "USDT")

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, 1234.56, balance)
	})

	t.Run("UnknownAssetIsZero", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"balances": []}`))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		balance, err := bc.GetBalance(context.Background(), "DOGE")

		assert.NoError(t, err)
		assert.Equal(t, 0.0, balance)
	})
}

func TestBinanceSubmitOrder(t *testing.T) {
	payload := &execution.Payload{
		Symbol:        "BTCUSDT",
		Side:          signal.SideBuy,
		MarketType:    "spot",
		ClientOrderID: "sig-0123456789abcdef0123",
		Capital:       execution.Capital{InitialOrderUSD: 2000},
	}

	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := `{
			"orderId": 98765,
			"clientOrderId": "sig-0123456789abcdef0123",
			"symbol": "BTCUSDT",
			"side": "BUY",
			"type": "MARKET",
			"status": "FILLED",
			"origQty": "0.04",
			"executedQty": "0.04",
			"cummulativeQuoteQty": "2000.00",
			"fills": [{"price": "50000", "qty": "0.04", "commission": "0.00004", "commissionAsset": "BTC"}]
		}`

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/order", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "BTCUSDT", r.PostForm.Get("symbol"))
			assert.Equal(t, "BUY", r.PostForm.Get("side"))
			assert.Equal(t, "MARKET", r.PostForm.Get("type"))
			assert.Equal(t, "2000.00", r.PostForm.Get("quoteOrderQty"))
			assert.Equal(t, payload.ClientOrderID, r.PostForm.Get("newClientOrderId"))
			assert.NotEmpty(t, r.PostForm.Get("signature"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		// Act
		ref, err := bc.SubmitOrder(context.Background(), payload)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, orders.StatusFilled, ref.Status)
		assert.Equal(t, "98765", ref.ExchangeOrderID)
		assert.Equal(t, payload.ClientOrderID, ref.ClientOrderID)
		assert.InDelta(t, 50000, ref.AvgPrice, 1e-9)
		assert.Equal(t, "spot", ref.MarketType)
	})

	t.Run("Rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -2010, "msg": "Account has insufficient balance"}`))
		})

		bc, server := setupBinanceTestServer(handler)
		defer server.Close()

		ref, err := bc.SubmitOrder(context.Background(), payload)

		assert.Error(t, err)
		assert.Nil(t, ref)
		assert.Contains(t, err.Error(), "failed to create order")
	})
}

func TestBinanceSyncOpenOrders(t *testing.T) {
	// Arrange
	mockResponse := `[{
		"orderId": 42,
		"clientOrderId": "sig-aaa",
		"symbol": "BTCUSDT",
		"status": "PARTIALLY_FILLED",
		"origQty": "1.0",
		"executedQty": "0.3",
		"cummulativeQuoteQty": "15000"
	}]`

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openOrders", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mockResponse))
	})

	bc, server := setupBinanceTestServer(handler)
	defer server.Close()

	local := []orders.OrderRef{
		{ExchangeOrderID: "42", ClientOrderID: "sig-aaa", MarketType: "spot",
			Status: orders.StatusNew, Quantity: 1, RemainingQuantity: 1},
		{ExchangeOrderID: "43", ClientOrderID: "sig-bbb", MarketType: "spot",
			Status: orders.StatusNew, Quantity: 2, RemainingQuantity: 2},
	}

	// Act
	synced, err := bc.SyncOpenOrders(context.Background(), "BTCUSDT", local)

	// Assert
	require.NoError(t, err)
	require.Len(t, synced, 2)
	assert.Equal(t, orders.StatusPartiallyFilled, synced[0].Status)
	assert.InDelta(t, 0.7, synced[0].RemainingQuantity, 1e-9)
	// The exchange said nothing about the second order; it stays as-is.
	assert.Equal(t, orders.StatusNew, synced[1].Status)
}

func TestNewBinanceClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.ExchangeAPI{Testnet: true, ApiKey: "k", SecretKey: "s", RateLimit: 20, RateLimitBurst: 5}
		bc := NewBinanceClient(cfg, zap.NewNop())
		assert.NotNil(t, bc)
		assert.Equal(t, cfg.ApiKey, bc.apiKey)
		assert.Equal(t, cfg.SecretKey, bc.secretKey)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.ExchangeAPI{Testnet: false, ApiKey: "k", SecretKey: "s", RateLimit: 20, RateLimitBurst: 5}
		bc := NewBinanceClient(cfg, zap.NewNop())
		assert.NotNil(t, bc)
		assert.Equal(t, "binance", bc.Name())
	})
}
