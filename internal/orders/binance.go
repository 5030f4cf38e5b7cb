package orders

import (
	"strconv"
	"time"
)

// BinanceOrder is the raw order representation returned by the Binance
// REST API: numeric order id, string-encoded quantities, optional
// per-fill records on freshly placed orders.
type BinanceOrder struct {
	OrderID             int64         `json:"orderId"`
	ClientOrderID       string        `json:"clientOrderId"`
	Symbol              string        `json:"symbol"`
	Side                string        `json:"side"`
	Type                string        `json:"type"`
	Status              string        `json:"status"`
	Price               string        `json:"price"`
	OrigQuantity        string        `json:"origQty"`
	ExecutedQuantity    string        `json:"executedQty"`
	CummulativeQuoteQty string        `json:"cummulativeQuoteQty"`
	Time                int64         `json:"time"`
	UpdateTime          int64         `json:"updateTime"`
	Fills               []BinanceFill `json:"fills,omitempty"`
}

// BinanceFill is a single execution inside an order response.
type BinanceFill struct {
	Price           string `json:"price"`
	Quantity        string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// binanceStatusTable maps Binance order states onto the canonical enum.
// Adding an exchange means adding a table like this one, not a code path.
var binanceStatusTable = map[string]Status{
	"NEW":              StatusNew,
	"PARTIALLY_FILLED": StatusPartiallyFilled,
	"FILLED":           StatusFilled,
	"CANCELED":         StatusCanceled,
	"PENDING_CANCEL":   StatusPending,
	"REJECTED":         StatusRejected,
	"EXPIRED":          StatusExpired,
}

// NormalizeBinanceOrder maps a raw Binance order onto the canonical
// OrderRef. Unknown statuses default to PENDING.
func NormalizeBinanceOrder(raw *BinanceOrder, marketType string) OrderRef {
	status, ok := binanceStatusTable[raw.Status]
	if !ok {
		status = StatusPending
	}

	quantity := parseFloat(raw.OrigQuantity)
	filled := parseFloat(raw.ExecutedQuantity)
	price := parseFloat(raw.Price)

	ref := OrderRef{
		Exchange:          "binance",
		MarketType:        marketType,
		Symbol:            raw.Symbol,
		Side:              raw.Side,
		Type:              raw.Type,
		Status:            status,
		ExchangeOrderID:   strconv.FormatInt(raw.OrderID, 10),
		ClientOrderID:     raw.ClientOrderID,
		Price:             price,
		Quantity:          quantity,
		FilledQuantity:    filled,
		RemainingQuantity: quantity - filled,
		AvgPrice:          binanceAvgPrice(raw, filled, price),
		CreatedAt:         time.UnixMilli(raw.Time),
		UpdatedAt:         time.UnixMilli(raw.UpdateTime),
	}

	for _, f := range raw.Fills {
		ref.Commission += parseFloat(f.Commission)
		if ref.CommissionAsset == "" {
			ref.CommissionAsset = f.CommissionAsset
		}
	}

	switch status {
	case StatusFilled:
		t := ref.UpdatedAt
		ref.FilledAt = &t
	case StatusCanceled, StatusExpired:
		t := ref.UpdatedAt
		ref.CancelledAt = &t
	}

	return ref
}

// binanceAvgPrice resolves the average fill price: fill-weighted mean when
// individual fills are present, cumulative notional over filled quantity
// otherwise, and finally the quoted order price. It stays 0 until
// something has filled.
func binanceAvgPrice(raw *BinanceOrder, filled, price float64) float64 {
	if filled <= 0 {
		return 0
	}

	if len(raw.Fills) > 0 {
		var notional, qty float64
		for _, f := range raw.Fills {
			p := parseFloat(f.Price)
			q := parseFloat(f.Quantity)
			notional += p * q
			qty += q
		}
		if qty > 0 {
			return notional / qty
		}
	}

	if quote := parseFloat(raw.CummulativeQuoteQty); quote > 0 {
		return quote / filled
	}

	return price
}

// SyncBinanceOrders refreshes a local order set against raw Binance
// statuses, looked up by exchange order id and then client order id.
func SyncBinanceOrders(local []OrderRef, raws []BinanceOrder, marketType string) []OrderRef {
	byExchangeID := make(map[string]OrderRef, len(raws))
	byClientID := make(map[string]OrderRef, len(raws))
	for i := range raws {
		ref := NormalizeBinanceOrder(&raws[i], marketType)
		byExchangeID[ref.ExchangeOrderID] = ref
		if ref.ClientOrderID != "" {
			byClientID[ref.ClientOrderID] = ref
		}
	}
	return syncAgainst(local, byExchangeID, byClientID)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
