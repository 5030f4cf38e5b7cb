package exchange

import (
	"context"

	"signal-trade-bot-go/internal/execution"
	"signal-trade-bot-go/internal/orders"
)

// Client is what the decision loop needs from an exchange: a health probe
// for the gate, a balance read for sizing, order submission for the built
// plan, and a sync pass that refreshes local order state. Implementations
// own their raw wire shapes; everything crossing this boundary is already
// normalized.
type Client interface {
	// Name returns the exchange tag ("binance", "okx").
	Name() string

	// Ping checks connectivity. The gate treats an error as "unhealthy".
	Ping(ctx context.Context) error

	// GetBalance returns the free balance of the given asset.
	GetBalance(ctx context.Context, asset string) (float64, error)

	// SubmitOrder places the initial order of a plan and returns its
	// normalized state.
	SubmitOrder(ctx context.Context, p *execution.Payload) (*orders.OrderRef, error)

	// SyncOpenOrders fetches the exchange's current view of the symbol's
	// open orders and merges it into the local set. Orders the exchange
	// does not report come back unchanged.
	SyncOpenOrders(ctx context.Context, symbol string, local []orders.OrderRef) ([]orders.OrderRef, error)
}
