package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBinanceOrder_New(t *testing.T) {
	raw := &BinanceOrder{
		OrderID:          123456,
		ClientOrderID:    "sig-abc",
		Symbol:           "BTCUSDT",
		Side:             "BUY",
		Type:             "LIMIT",
		Status:           "NEW",
		Price:            "50000.00",
		OrigQuantity:     "0.5",
		ExecutedQuantity: "0",
		Time:             1700000000000,
		UpdateTime:       1700000000000,
	}

	ref := NormalizeBinanceOrder(raw, "spot")

	assert.Equal(t, "binance", ref.Exchange)
	assert.Equal(t, StatusNew, ref.Status)
	assert.Equal(t, "123456", ref.ExchangeOrderID)
	assert.Equal(t, 0.5, ref.Quantity)
	assert.Equal(t, 0.5, ref.RemainingQuantity)
	assert.Equal(t, 0.0, ref.AvgPrice, "average price stays 0 until the first fill")
	assert.Nil(t, ref.FilledAt)
	assert.Nil(t, ref.CancelledAt)
}

func TestNormalizeBinanceOrder_PartialFill(t *testing.T) {
	raw := &BinanceOrder{
		OrderID:             7,
		Symbol:              "ETHUSDT",
		Status:              "PARTIALLY_FILLED",
		Price:               "3000",
		OrigQuantity:        "2.0",
		ExecutedQuantity:    "0.75",
		CummulativeQuoteQty: "2250.0",
	}

	ref := NormalizeBinanceOrder(raw, "spot")

	assert.Equal(t, StatusPartiallyFilled, ref.Status)
	assert.InDelta(t, 1.25, ref.RemainingQuantity, 1e-9)
	assert.InDelta(t, 3000, ref.AvgPrice, 1e-9) // 2250 / 0.75
}

func TestNormalizeBinanceOrder_FilledWithFills(t *testing.T) {
	raw := &BinanceOrder{
		OrderID:          8,
		Symbol:           "BTCUSDT",
		Status:           "FILLED",
		OrigQuantity:     "1.0",
		ExecutedQuantity: "1.0",
		UpdateTime:       1700000100000,
		Fills: []BinanceFill{
			{Price: "50000", Quantity: "0.6", Commission: "0.0006", CommissionAsset: "BTC"},
			{Price: "50100", Quantity: "0.4", Commission: "0.0004", CommissionAsset: "BTC"},
		},
	}

	ref := NormalizeBinanceOrder(raw, "spot")

	assert.Equal(t, StatusFilled, ref.Status)
	assert.InDelta(t, 0, ref.RemainingQuantity, 1e-9)
	assert.InDelta(t, 50040, ref.AvgPrice, 1e-9) // fill-weighted mean
	assert.InDelta(t, 0.001, ref.Commission, 1e-12)
	assert.Equal(t, "BTC", ref.CommissionAsset)
	require.NotNil(t, ref.FilledAt)
	assert.Equal(t, ref.UpdatedAt, *ref.FilledAt)
}

func TestNormalizeBinanceOrder_StatusMapping(t *testing.T) {
	cases := map[string]Status{
		"NEW":              StatusNew,
		"PARTIALLY_FILLED": StatusPartiallyFilled,
		"FILLED":           StatusFilled,
		"CANCELED":         StatusCanceled,
		"PENDING_CANCEL":   StatusPending,
		"REJECTED":         StatusRejected,
		"EXPIRED":          StatusExpired,
		"SOMETHING_ODD":    StatusPending, // unknown states degrade to PENDING
	}
	for rawStatus, want := range cases {
		ref := NormalizeBinanceOrder(&BinanceOrder{Status: rawStatus}, "spot")
		assert.Equal(t, want, ref.Status, "raw status %s", rawStatus)
	}
}

func TestNormalizeBinanceOrder_CanceledSetsTimestamp(t *testing.T) {
	raw := &BinanceOrder{Status: "CANCELED", UpdateTime: 1700000200000}

	ref := NormalizeBinanceOrder(raw, "spot")

	require.NotNil(t, ref.CancelledAt)
	assert.Nil(t, ref.FilledAt)
}

func TestNormalizeOKXOrder(t *testing.T) {
	t.Run("Live", func(t *testing.T) {
		raw := &OKXOrder{
			OrderID:       "555001",
			ClientOrderID: "sigabc",
			InstrumentID:  "BTC-USDT",
			Side:          "buy",
			State:         "live",
			Price:         "50000",
			Size:          "0.5",
			AccFillSize:   "0",
			AvgPrice:      "",
			CreateTime:    "1700000000000",
			UpdateTime:    "1700000000000",
		}

		ref := NormalizeOKXOrder(raw, "spot")

		assert.Equal(t, "okx", ref.Exchange)
		assert.Equal(t, StatusNew, ref.Status)
		assert.Equal(t, "555001", ref.ExchangeOrderID)
		assert.Equal(t, 0.5, ref.RemainingQuantity)
		assert.Equal(t, 0.0, ref.AvgPrice)
	})

	t.Run("FilledNegatesFee", func(t *testing.T) {
		raw := &OKXOrder{
			OrderID:     "555002",
			State:       "filled",
			Size:        "1.0",
			AccFillSize: "1.0",
			AvgPrice:    "50050",
			Fee:         "-0.001", // OKX reports fees as negative numbers
			FeeCurrency: "BTC",
			UpdateTime:  "1700000100000",
		}

		ref := NormalizeOKXOrder(raw, "spot")

		assert.Equal(t, StatusFilled, ref.Status)
		assert.InDelta(t, 0, ref.RemainingQuantity, 1e-9)
		assert.Equal(t, 50050.0, ref.AvgPrice)
		assert.Equal(t, 0.001, ref.Commission)
		assert.Equal(t, "BTC", ref.CommissionAsset)
		require.NotNil(t, ref.FilledAt)
	})

	t.Run("UnknownStateDegradesToPending", func(t *testing.T) {
		ref := NormalizeOKXOrder(&OKXOrder{State: "mmp_canceled"}, "spot")
		assert.Equal(t, StatusPending, ref.Status)
	})

	t.Run("MissingAvgFallsBackToOrderPrice", func(t *testing.T) {
		raw := &OKXOrder{
			State:       "partially_filled",
			Price:       "3000",
			Size:        "2.0",
			AccFillSize: "0.5",
			AvgPrice:    "0",
		}

		ref := NormalizeOKXOrder(raw, "spot")

		assert.Equal(t, StatusPartiallyFilled, ref.Status)
		assert.Equal(t, 3000.0, ref.AvgPrice)
	})
}

func TestHasOrderStatusChanged(t *testing.T) {
	base := OrderRef{
		Status:            StatusNew,
		Quantity:          1.0,
		FilledQuantity:    0.25,
		RemainingQuantity: 0.75,
		AvgPrice:          50000,
	}

	t.Run("IdenticalSnapshots", func(t *testing.T) {
		assert.False(t, HasOrderStatusChanged(base, base))
	})

	t.Run("StatusChange", func(t *testing.T) {
		curr := base
		curr.Status = StatusPartiallyFilled
		assert.True(t, HasOrderStatusChanged(base, curr))
	})

	t.Run("FillProgress", func(t *testing.T) {
		curr := base
		curr.FilledQuantity = 0.5
		curr.RemainingQuantity = 0.5
		assert.True(t, HasOrderStatusChanged(base, curr))
	})

	t.Run("AvgPriceDrift", func(t *testing.T) {
		curr := base
		curr.AvgPrice = 50001
		assert.True(t, HasOrderStatusChanged(base, curr))
	})

	t.Run("FloatNoiseIgnored", func(t *testing.T) {
		curr := base
		curr.FilledQuantity += 1e-12
		assert.False(t, HasOrderStatusChanged(base, curr))
	})
}

func TestSyncBinanceOrders(t *testing.T) {
	local := []OrderRef{
		{ExchangeOrderID: "1", ClientOrderID: "a", Status: StatusNew, Quantity: 1, RemainingQuantity: 1},
		{ExchangeOrderID: "2", ClientOrderID: "b", Status: StatusNew, Quantity: 2, RemainingQuantity: 2},
		{ExchangeOrderID: "3", ClientOrderID: "c", Status: StatusFilled, Quantity: 3, FilledQuantity: 3},
	}

	raws := []BinanceOrder{
		{OrderID: 1, ClientOrderID: "a", Status: "PARTIALLY_FILLED", OrigQuantity: "1", ExecutedQuantity: "0.4", CummulativeQuoteQty: "20000"},
		// order 2 absent: the exchange said nothing about it
		{OrderID: 3, ClientOrderID: "c", Status: "CANCELED", OrigQuantity: "3"},
	}

	synced := SyncBinanceOrders(local, raws, "spot")
	require.Len(t, synced, 3)

	// Present and non-terminal: refreshed.
	assert.Equal(t, StatusPartiallyFilled, synced[0].Status)
	assert.InDelta(t, 0.6, synced[0].RemainingQuantity, 1e-9)

	// Silence is "unknown", never "cancelled".
	assert.Equal(t, StatusNew, synced[1].Status)
	assert.Equal(t, 2.0, synced[1].RemainingQuantity)

	// Terminal records never regress, even against fresh raw state.
	assert.Equal(t, StatusFilled, synced[2].Status)
	assert.Equal(t, 3.0, synced[2].FilledQuantity)
}

func TestSyncOKXOrders_MatchesByClientID(t *testing.T) {
	local := []OrderRef{
		{ExchangeOrderID: "", ClientOrderID: "sigabc", Status: StatusNew, Quantity: 1, RemainingQuantity: 1},
	}
	raws := []OKXOrder{
		{OrderID: "9000", ClientOrderID: "sigabc", State: "filled", Size: "1", AccFillSize: "1", AvgPrice: "100"},
	}

	synced := SyncOKXOrders(local, raws, "spot")

	require.Len(t, synced, 1)
	assert.Equal(t, StatusFilled, synced[0].Status)
	assert.Equal(t, "9000", synced[0].ExchangeOrderID)
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusFilled, StatusCanceled, StatusRejected, StatusExpired} {
		assert.True(t, IsTerminal(s), string(s))
	}
	for _, s := range []Status{StatusNew, StatusPartiallyFilled, StatusPending} {
		assert.False(t, IsTerminal(s), string(s))
	}
}
