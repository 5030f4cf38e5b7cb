package gate

import (
	"fmt"
	"time"

	"signal-trade-bot-go/internal/models"
	"signal-trade-bot-go/internal/signal"
)

// Rejection codes, one per filter, in pipeline order.
const (
	CodeBotDisabled        = "BOT_DISABLED"
	CodeMarketTypeMismatch = "MARKET_TYPE_MISMATCH"
	CodeSymbolNotAllowed   = "SYMBOL_NOT_ALLOWED"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"
	CodeMaxTradesReached   = "MAX_TRADES_REACHED"
	CodeDirectionDisabled  = "DIRECTION_DISABLED"
	CodeExchangeUnhealthy  = "EXCHANGE_UNHEALTHY"
	CodeLowConfidence      = "LOW_CONFIDENCE"
)

// DefaultCooldown applies when neither the bot config nor the options
// specify a cooldown window.
const DefaultCooldown = 15 * time.Minute

// Context is the ephemeral aggregate a single evaluation runs against.
// It is constructed once per decision cycle and never persisted.
type Context struct {
	Signal          *signal.UnifiedSignal
	Config          *models.BotConfig
	OpenPositions   int
	ExchangeHealthy bool
	LastTradeAt     time.Time // zero when the account has never traded
	AllowedSymbols  []string
	DeniedSymbols   []string
}

// Options are the static knobs of the pipeline.
type Options struct {
	Cooldown      time.Duration
	MinConfidence map[string]float64 // per-source defaults, used when the bot sets none
	Now           time.Time          // zero means time.Now()
}

// Verdict is the structured outcome of an evaluation. A rejection is not
// an error; the code is what the audit log keys on.
type Verdict struct {
	Passed bool
	Code   string
	Reason string
}

func pass() Verdict {
	return Verdict{Passed: true}
}

func reject(code, format string, args ...any) Verdict {
	return Verdict{Passed: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// filterFunc is a pure predicate over the context. No filter performs I/O.
type filterFunc func(*Context, Options) Verdict

// pipeline is the fixed evaluation order: cheap structural checks first,
// state-dependent checks next, the confidence threshold last. Reordering
// changes which code multi-failing inputs report, so the order is part of
// the contract.
var pipeline = []filterFunc{
	checkBotEnabled,
	checkMarketType,
	checkSymbol,
	checkCooldown,
	checkMaxTrades,
	checkDirection,
	checkExchangeHealth,
	checkConfidence,
}

// Evaluate runs the filter pipeline and short-circuits on the first
// failure.
func Evaluate(fc *Context, opts Options) Verdict {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	for _, filter := range pipeline {
		if v := filter(fc, opts); !v.Passed {
			return v
		}
	}
	return pass()
}

func checkBotEnabled(fc *Context, _ Options) Verdict {
	if !fc.Config.Active {
		return reject(CodeBotDisabled, "bot is disabled for account %s", fc.Config.AccountID)
	}
	return pass()
}

func checkMarketType(fc *Context, _ Options) Verdict {
	switch fc.Config.MarketType {
	case models.MarketTypeSpot:
		// Leveraged signals cannot be honored on a spot account.
		if fc.Signal.Leverage > 1 {
			return reject(CodeMarketTypeMismatch,
				"signal requires %dx leverage but bot trades spot", fc.Signal.Leverage)
		}
	case models.MarketTypeFutures:
		// Every signal shape is executable on futures.
	default:
		return reject(CodeMarketTypeMismatch, "unknown market type %q", fc.Config.MarketType)
	}
	return pass()
}

func checkSymbol(fc *Context, _ Options) Verdict {
	symbol := fc.Signal.Symbol
	for _, denied := range fc.DeniedSymbols {
		if symbol == denied {
			return reject(CodeSymbolNotAllowed, "symbol %s is on the deny list", symbol)
		}
	}
	if len(fc.AllowedSymbols) == 0 {
		return pass()
	}
	for _, allowed := range fc.AllowedSymbols {
		if symbol == allowed {
			return pass()
		}
	}
	return reject(CodeSymbolNotAllowed, "symbol %s is not on the allow list", symbol)
}

func checkCooldown(fc *Context, opts Options) Verdict {
	if fc.LastTradeAt.IsZero() {
		return pass()
	}
	cooldown := opts.Cooldown
	if fc.Config.CooldownMinutes > 0 {
		cooldown = time.Duration(fc.Config.CooldownMinutes) * time.Minute
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	elapsed := opts.Now.Sub(fc.LastTradeAt)
	if elapsed < cooldown {
		return reject(CodeCooldownActive, "last trade %s ago, cooldown is %s",
			elapsed.Round(time.Second), cooldown)
	}
	return pass()
}

func checkMaxTrades(fc *Context, _ Options) Verdict {
	max := fc.Config.MaxConcurrentTrades
	if max <= 0 {
		max = 1
	}
	if fc.OpenPositions >= max {
		return reject(CodeMaxTradesReached, "%d of %d concurrent trades already open",
			fc.OpenPositions, max)
	}
	return pass()
}

func checkDirection(fc *Context, _ Options) Verdict {
	switch fc.Signal.Side {
	case signal.SideBuy:
		if !fc.Config.AllowLong {
			return reject(CodeDirectionDisabled, "long trades are disabled")
		}
	case signal.SideSell:
		if !fc.Config.AllowShort {
			return reject(CodeDirectionDisabled, "short trades are disabled")
		}
	}
	return pass()
}

func checkExchangeHealth(fc *Context, _ Options) Verdict {
	if !fc.ExchangeHealthy {
		return reject(CodeExchangeUnhealthy, "exchange %s failed its health probe", fc.Config.Exchange)
	}
	return pass()
}

func checkConfidence(fc *Context, opts Options) Verdict {
	threshold := fc.Config.MinConfidence
	if threshold <= 0 {
		threshold = opts.MinConfidence[fc.Signal.Source]
	}
	if threshold <= 0 {
		threshold = 60
	}
	if fc.Signal.Confidence < threshold {
		return reject(CodeLowConfidence, "confidence %.1f is below threshold %.1f",
			fc.Signal.Confidence, threshold)
	}
	return pass()
}
