package orders

import (
	"math"
	"time"
)

// Status is the canonical order lifecycle status every exchange-specific
// representation is mapped into.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusPending         Status = "PENDING"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// IsTerminal reports whether a status can never be transitioned away from.
func IsTerminal(s Status) bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderRef is the canonical order record. RemainingQuantity is always
// Quantity - FilledQuantity, and AvgPrice stays 0 until the first fill.
type OrderRef struct {
	Exchange        string
	MarketType      string
	Symbol          string
	Side            string
	Type            string
	Status          Status
	ExchangeOrderID string
	ClientOrderID   string

	Price             float64
	Quantity          float64
	FilledQuantity    float64
	RemainingQuantity float64
	AvgPrice          float64
	Commission        float64
	CommissionAsset   string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	FilledAt    *time.Time
	CancelledAt *time.Time
}

// quantityEpsilon absorbs float noise when comparing quantities and
// prices between two snapshots of the same order.
const quantityEpsilon = 1e-9

// HasOrderStatusChanged is the sync trigger: it decides whether a
// persisted record needs updating after a fresh normalization. Only the
// fields the polling loop cares about are compared.
func HasOrderStatusChanged(prev, curr OrderRef) bool {
	if prev.Status != curr.Status {
		return true
	}
	if !floatEqual(prev.FilledQuantity, curr.FilledQuantity) {
		return true
	}
	if !floatEqual(prev.RemainingQuantity, curr.RemainingQuantity) {
		return true
	}
	if !floatEqual(prev.AvgPrice, curr.AvgPrice) {
		return true
	}
	return false
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < quantityEpsilon
}

// syncAgainst merges fresh normalized state into a local order set. Orders
// with no matching raw status pass through unchanged: exchange silence is
// "unknown", never "cancelled". A record already in a terminal status is
// never regressed.
func syncAgainst(local []OrderRef, byExchangeID, byClientID map[string]OrderRef) []OrderRef {
	out := make([]OrderRef, 0, len(local))
	for _, o := range local {
		fresh, ok := byExchangeID[o.ExchangeOrderID]
		if !ok {
			fresh, ok = byClientID[o.ClientOrderID]
		}
		if !ok || IsTerminal(o.Status) {
			out = append(out, o)
			continue
		}
		out = append(out, fresh)
	}
	return out
}
