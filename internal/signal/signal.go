package signal

import "time"

// Side is the resolved direction of a trading signal. Adapters guarantee
// that only BUY or SELL escape the adapter layer; neutral producer values
// (WAIT, HOLD) never leave it.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Known signal source tags. The set is closed: the router dispatches over
// exactly these variants and falls back to the default for anything else.
const (
	SourceTechnical = "technical"
	SourceAI        = "ai"
	SourceCommunity = "community"
)

// UnifiedSignal is one trading opportunity in a shape independent of its
// origin. It is constructed fresh per poll by an adapter, never mutated,
// and consumed exactly once by the decision gate.
type UnifiedSignal struct {
	ID          string
	AccountID   string
	Symbol      string
	Timeframe   string
	Side        Side
	EntryPrice  float64 // 0 when the producer did not supply one
	StopLoss    float64
	TakeProfit  float64
	Leverage    int
	Confidence  float64 // 0-100
	Source      string
	GeneratedAt time.Time
	Raw         string // opaque producer payload, kept for audit
}
