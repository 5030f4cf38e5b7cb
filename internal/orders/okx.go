package orders

import "time"

// OKXOrder is the raw order representation returned by the OKX REST API:
// string order id, lowercase states, every number encoded as a string.
type OKXOrder struct {
	OrderID       string `json:"ordId"`
	ClientOrderID string `json:"clOrdId"`
	InstrumentID  string `json:"instId"`
	Side          string `json:"side"`
	OrderType     string `json:"ordType"`
	State         string `json:"state"`
	Price         string `json:"px"`
	Size          string `json:"sz"`
	AccFillSize   string `json:"accFillSz"`
	AvgPrice      string `json:"avgPx"`
	Fee           string `json:"fee"`
	FeeCurrency   string `json:"feeCcy"`
	CreateTime    string `json:"cTime"` // unix milliseconds as string
	UpdateTime    string `json:"uTime"`
}

// okxStatusTable maps OKX order states onto the canonical enum.
var okxStatusTable = map[string]Status{
	"live":             StatusNew,
	"partially_filled": StatusPartiallyFilled,
	"filled":           StatusFilled,
	"canceled":         StatusCanceled,
}

// NormalizeOKXOrder maps a raw OKX order onto the canonical OrderRef.
// Unknown states default to PENDING.
func NormalizeOKXOrder(raw *OKXOrder, marketType string) OrderRef {
	status, ok := okxStatusTable[raw.State]
	if !ok {
		status = StatusPending
	}

	quantity := parseFloat(raw.Size)
	filled := parseFloat(raw.AccFillSize)
	price := parseFloat(raw.Price)

	avg := parseFloat(raw.AvgPrice)
	if filled <= 0 {
		avg = 0
	} else if avg <= 0 {
		avg = price
	}

	ref := OrderRef{
		Exchange:          "okx",
		MarketType:        marketType,
		Symbol:            raw.InstrumentID,
		Side:              raw.Side,
		Type:              raw.OrderType,
		Status:            status,
		ExchangeOrderID:   raw.OrderID,
		ClientOrderID:     raw.ClientOrderID,
		Price:             price,
		Quantity:          quantity,
		FilledQuantity:    filled,
		RemainingQuantity: quantity - filled,
		AvgPrice:          avg,
		Commission:        -parseFloat(raw.Fee), // OKX reports fees as negative numbers
		CommissionAsset:   raw.FeeCurrency,
		CreatedAt:         time.UnixMilli(int64(parseFloat(raw.CreateTime))),
		UpdatedAt:         time.UnixMilli(int64(parseFloat(raw.UpdateTime))),
	}

	switch status {
	case StatusFilled:
		t := ref.UpdatedAt
		ref.FilledAt = &t
	case StatusCanceled:
		t := ref.UpdatedAt
		ref.CancelledAt = &t
	}

	return ref
}

// SyncOKXOrders refreshes a local order set against raw OKX statuses.
func SyncOKXOrders(local []OrderRef, raws []OKXOrder, marketType string) []OrderRef {
	byExchangeID := make(map[string]OrderRef, len(raws))
	byClientID := make(map[string]OrderRef, len(raws))
	for i := range raws {
		ref := NormalizeOKXOrder(&raws[i], marketType)
		byExchangeID[ref.ExchangeOrderID] = ref
		if ref.ClientOrderID != "" {
			byClientID[ref.ClientOrderID] = ref
		}
	}
	return syncAgainst(local, byExchangeID, byClientID)
}
