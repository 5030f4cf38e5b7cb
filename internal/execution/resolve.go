package execution

import (
	"fmt"

	"signal-trade-bot-go/internal/models"
	"signal-trade-bot-go/internal/signal"
)

// Hard policy floors. These are the last layer of the merge: signal-provided
// values win over bot configuration, which wins over these.
const (
	defaultRiskPercent       = 1.0
	defaultStopLossPercent   = 2.0
	defaultTakeProfitPercent = 4.0
	defaultInitialOrderPct   = 40.0 // of position size, when a DCA ladder exists
	defaultDCAStepPercent    = 1.5  // price distance added per DCA level
	defaultTrailingDistance  = 1.0
	defaultPartialClosePct   = 33.0
	maxPartialClosePct       = 100.0 / 3.0
	balanceSafetyFactor      = 0.95 // never size against more than 95% of live balance
	trailingActivationOfMove = 0.95 // trailing activates at 95% of the distance to target
)

// EffectiveConfig is the fully-resolved input of the builder: every field
// is populated before any arithmetic happens, so the sizing math never has
// to reach for a fallback mid-calculation.
type EffectiveConfig struct {
	Side       signal.Side
	Symbol     string
	Exchange   string
	MarketType string
	Testnet    bool
	Leverage   int

	CapitalUSD          float64
	RiskPercent         float64
	InitialOrderPercent float64
	DCALevels           int
	DCAStepPercent      float64

	StopLossPercent   float64
	TakeProfitPercent float64

	ProfitStrategy          string
	TrailingDistancePercent float64
	PartialClosePercent     float64

	EntryPrice  float64
	StopPrice   float64 // 0 means derive from entry and StopLossPercent
	TargetPrice float64 // 0 means derive from entry and TakeProfitPercent

	// Defaults lists every substitution that was applied, so the caller can
	// log them at warning level.
	Defaults []string
}

// ResolveEffectiveConfig merges signal-provided values over bot-configured
// defaults over hard policy floors.
func ResolveEffectiveConfig(sig *signal.UnifiedSignal, cfg *models.BotConfig, exchange string, testnet bool, availableBalance float64) EffectiveConfig {
	ec := EffectiveConfig{
		Side:       sig.Side,
		Symbol:     sig.Symbol,
		Exchange:   exchange,
		MarketType: cfg.MarketType,
		Testnet:    testnet,
		Leverage:   sig.Leverage,

		CapitalUSD:          cfg.CapitalUSD,
		RiskPercent:         cfg.RiskPercent,
		InitialOrderPercent: cfg.InitialOrderPercent,
		DCALevels:           cfg.DCALevels,
		DCAStepPercent:      defaultDCAStepPercent,

		StopLossPercent:   cfg.StopLossPercent,
		TakeProfitPercent: cfg.TakeProfitPercent,

		ProfitStrategy:          cfg.ProfitStrategy,
		TrailingDistancePercent: cfg.TrailingDistancePercent,
		PartialClosePercent:     cfg.PartialClosePercent,

		EntryPrice:  sig.EntryPrice,
		StopPrice:   sig.StopLoss,
		TargetPrice: sig.TakeProfit,
	}

	// A live balance caps the configured capital: sizing against money the
	// account does not have would just get the order rejected downstream.
	if availableBalance > 0 {
		capped := availableBalance * balanceSafetyFactor
		if ec.CapitalUSD <= 0 || capped < ec.CapitalUSD {
			ec.CapitalUSD = capped
			ec.note("capital capped to %v of available balance", balanceSafetyFactor)
		}
	}
	if ec.CapitalUSD < 0 {
		ec.CapitalUSD = 0
		ec.note("non-positive capital, payload will be degenerate")
	}

	if ec.RiskPercent <= 0 {
		ec.RiskPercent = defaultRiskPercent
		ec.note("risk percent defaulted to %v", defaultRiskPercent)
	}
	if ec.StopLossPercent <= 0 {
		ec.StopLossPercent = defaultStopLossPercent
		ec.note("stop-loss percent defaulted to %v", defaultStopLossPercent)
	}
	if ec.TakeProfitPercent <= 0 {
		ec.TakeProfitPercent = defaultTakeProfitPercent
		ec.note("take-profit percent defaulted to %v", defaultTakeProfitPercent)
	}

	if ec.DCALevels < 0 {
		ec.DCALevels = 0
	}
	if ec.InitialOrderPercent <= 0 || ec.InitialOrderPercent > 100 {
		if ec.DCALevels > 0 {
			ec.InitialOrderPercent = defaultInitialOrderPct
		} else {
			ec.InitialOrderPercent = 100
		}
	}
	// Without a DCA ladder the full position goes into the initial order.
	if ec.DCALevels == 0 {
		ec.InitialOrderPercent = 100
	}

	switch ec.ProfitStrategy {
	case models.ProfitStrategyFixed, models.ProfitStrategyTrailing, models.ProfitStrategyPartial:
	default:
		ec.ProfitStrategy = models.ProfitStrategyFixed
	}
	if ec.ProfitStrategy == models.ProfitStrategyTrailing && ec.TrailingDistancePercent <= 0 {
		ec.TrailingDistancePercent = defaultTrailingDistance
	}
	if ec.ProfitStrategy == models.ProfitStrategyPartial {
		if ec.PartialClosePercent <= 0 {
			ec.PartialClosePercent = defaultPartialClosePct
		}
		// Three checkpoints must not close more than the whole position.
		if ec.PartialClosePercent > maxPartialClosePct {
			ec.PartialClosePercent = maxPartialClosePct
			ec.note("partial close percent clamped to %.2f", maxPartialClosePct)
		}
	}

	if ec.MarketType == "" {
		ec.MarketType = models.MarketTypeSpot
	}

	// Direction-aware stop/target derivation when the signal did not
	// supply prices. With no entry price either, both stay zero and the
	// payload is degenerate but structurally valid.
	if ec.EntryPrice > 0 {
		if ec.StopPrice <= 0 {
			ec.StopPrice = offsetPrice(ec.EntryPrice, ec.StopLossPercent, ec.Side == signal.SideSell)
			ec.note("stop price derived from entry and stop-loss percent")
		}
		if ec.TargetPrice <= 0 {
			ec.TargetPrice = offsetPrice(ec.EntryPrice, ec.TakeProfitPercent, ec.Side == signal.SideBuy)
			ec.note("target price derived from entry and take-profit percent")
		}
	}

	return ec
}

// offsetPrice moves a price by pct percent, up or down.
func offsetPrice(price, pct float64, up bool) float64 {
	if up {
		return price * (1 + pct/100)
	}
	return price * (1 - pct/100)
}

func (ec *EffectiveConfig) note(format string, args ...any) {
	ec.Defaults = append(ec.Defaults, fmt.Sprintf(format, args...))
}
