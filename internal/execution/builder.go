package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signal-trade-bot-go/internal/models"
	"signal-trade-bot-go/internal/signal"
)

// DCALevel is one rung of the averaging ladder: an additional entry order
// placed when price moves against the position.
type DCALevel struct {
	Level        int     `json:"level"`
	TriggerPrice float64 `json:"trigger_price"`
	AmountUSD    float64 `json:"amount_usd"`
}

// PartialTakeProfit closes a fraction of the position at a price
// checkpoint on the way to the full target.
type PartialTakeProfit struct {
	Price        float64 `json:"price"`
	ClosePercent float64 `json:"close_percent"`
}

// RiskParams carries the exit side of the plan.
type RiskParams struct {
	StopPrice          float64             `json:"stop_price"`
	TargetPrice        float64             `json:"target_price"`
	TrailingActivation float64             `json:"trailing_activation,omitempty"`
	TrailingDistance   float64             `json:"trailing_distance,omitempty"` // percent
	PartialTakeProfits []PartialTakeProfit `json:"partial_take_profits,omitempty"`
}

// Capital describes how the sized total is split between the initial
// order and the DCA budget.
type Capital struct {
	TotalUSD            float64 `json:"total_usd"`
	InitialOrderUSD     float64 `json:"initial_order_usd"`
	InitialOrderPercent float64 `json:"initial_order_percent"`
	DCABudgetPercent    float64 `json:"dca_budget_percent"`
}

// Payload is the concrete order plan handed to an exchange client. It is
// the only thing this package produces.
type Payload struct {
	AccountID  string      `json:"account_id"`
	Exchange   string      `json:"exchange"`
	MarketType string      `json:"market_type"`
	Symbol     string      `json:"symbol"`
	Side       signal.Side `json:"side"`
	Leverage   int         `json:"leverage,omitempty"`
	Testnet    bool        `json:"testnet"`

	Capital   Capital    `json:"capital"`
	DCALevels []DCALevel `json:"dca_levels"`
	Risk      RiskParams `json:"risk"`

	// ClientOrderID is deterministic for a given signal id, market type and
	// side, so repeated builds can never produce divergent duplicate orders.
	ClientOrderID string    `json:"client_order_id"`
	SignalID      string    `json:"signal_id"`
	SignalSource  string    `json:"signal_source"`
	EntryPrice    float64   `json:"entry_price"`
	BuiltAt       time.Time `json:"built_at"`

	// Defaults lists the substitutions the resolver applied; the caller
	// logs them at warning level.
	Defaults []string `json:"-"`
}

// Build produces the order plan for a signal that passed the gate. It is a
// pure function: missing optional inputs are substituted with policy
// defaults, and even non-positive capital or price inputs yield a
// structurally valid (if degenerate) payload.
func Build(sig *signal.UnifiedSignal, cfg *models.BotConfig, exchange string, testnet bool, availableBalance float64) *Payload {
	ec := ResolveEffectiveConfig(sig, cfg, exchange, testnet, availableBalance)

	capital := decimal.NewFromFloat(ec.CapitalUSD)

	// Risk sizing: the amount we are willing to lose, translated into a
	// position size by the stop distance, then capped at the capital.
	riskAmount := capital.Mul(decimal.NewFromFloat(ec.RiskPercent)).Div(decimal.NewFromInt(100))
	stopFraction := decimal.NewFromFloat(ec.StopLossPercent).Div(decimal.NewFromInt(100))

	positionSize := decimal.Zero
	if stopFraction.IsPositive() {
		positionSize = riskAmount.Div(stopFraction)
	}
	if positionSize.GreaterThan(capital) {
		positionSize = capital
	}

	initialPct := decimal.NewFromFloat(ec.InitialOrderPercent)
	initialOrder := positionSize.Mul(initialPct).Div(decimal.NewFromInt(100)).RoundDown(2)

	levels := buildDCALadder(ec, positionSize, initialOrder)

	totalUSD, _ := positionSize.Round(2).Float64()
	initialUSD, _ := initialOrder.Float64()

	p := &Payload{
		AccountID:  sig.AccountID,
		Exchange:   ec.Exchange,
		MarketType: ec.MarketType,
		Symbol:     ec.Symbol,
		Side:       ec.Side,
		Leverage:   ec.Leverage,
		Testnet:    ec.Testnet,
		Capital: Capital{
			TotalUSD:            totalUSD,
			InitialOrderUSD:     initialUSD,
			InitialOrderPercent: ec.InitialOrderPercent,
			DCABudgetPercent:    100 - ec.InitialOrderPercent,
		},
		DCALevels: levels,
		Risk: RiskParams{
			StopPrice:   ec.StopPrice,
			TargetPrice: ec.TargetPrice,
		},
		ClientOrderID: clientOrderID(sig.ID, ec.MarketType, ec.Side),
		SignalID:      sig.ID,
		SignalSource:  sig.Source,
		EntryPrice:    ec.EntryPrice,
		BuiltAt:       time.Now(),
		Defaults:      ec.Defaults,
	}

	applyProfitStrategy(p, ec)

	return p
}

// buildDCALadder distributes the remaining budget evenly across the
// configured levels. Amounts are rounded down so the ladder plus the
// initial order can never exceed the sized total.
func buildDCALadder(ec EffectiveConfig, positionSize, initialOrder decimal.Decimal) []DCALevel {
	if ec.DCALevels == 0 {
		return []DCALevel{}
	}

	budget := positionSize.Sub(initialOrder)
	if budget.IsNegative() {
		budget = decimal.Zero
	}
	perLevel := budget.Div(decimal.NewFromInt(int64(ec.DCALevels))).RoundDown(2)

	levels := make([]DCALevel, 0, ec.DCALevels)
	for i := 1; i <= ec.DCALevels; i++ {
		// Each level steps further from entry: below it for longs, above it
		// for shorts.
		step := ec.DCAStepPercent * float64(i)
		trigger := offsetPrice(ec.EntryPrice, step, ec.Side == signal.SideSell)

		amount, _ := perLevel.Float64()
		levels = append(levels, DCALevel{
			Level:        i,
			TriggerPrice: trigger,
			AmountUSD:    amount,
		})
	}
	return levels
}

// applyProfitStrategy attaches the trailing block or the partial
// take-profit ladder depending on the strategy variant. The fixed variant
// leaves the plain stop/target pair as-is.
func applyProfitStrategy(p *Payload, ec EffectiveConfig) {
	switch ec.ProfitStrategy {
	case models.ProfitStrategyTrailing:
		if ec.EntryPrice > 0 && ec.TargetPrice > 0 {
			move := ec.TargetPrice - ec.EntryPrice
			p.Risk.TrailingActivation = ec.EntryPrice + move*trailingActivationOfMove
			p.Risk.TrailingDistance = ec.TrailingDistancePercent
		}
	case models.ProfitStrategyPartial:
		if ec.EntryPrice > 0 && ec.TargetPrice > 0 {
			move := ec.TargetPrice - ec.EntryPrice
			checkpoints := []float64{0.50, 0.75, 1.00}
			ladder := make([]PartialTakeProfit, 0, len(checkpoints))
			for _, c := range checkpoints {
				ladder = append(ladder, PartialTakeProfit{
					Price:        ec.EntryPrice + move*c,
					ClosePercent: ec.PartialClosePercent,
				})
			}
			p.Risk.PartialTakeProfits = ladder
		}
	}
}

// clientOrderID derives the idempotency key from the signal identity,
// market type and side.
func clientOrderID(signalID, marketType string, side signal.Side) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", signalID, marketType, side)))
	return "sig-" + hex.EncodeToString(sum[:])[:20]
}
