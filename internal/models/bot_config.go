package models

import (
	"strings"

	"gorm.io/gorm"
)

// Profit-taking strategy variants.
const (
	ProfitStrategyFixed    = "fixed"
	ProfitStrategyTrailing = "trailing"
	ProfitStrategyPartial  = "partial"
)

// Market types.
const (
	MarketTypeSpot    = "spot"
	MarketTypeFutures = "futures"
)

// BotConfig is the per-account trading policy. It is loaded fresh at the
// start of every decision cycle and only mutated through settings updates.
type BotConfig struct {
	gorm.Model
	AccountID    string `gorm:"index;not null"`
	Active       bool   `gorm:"default:true"`
	SignalSource string `gorm:"not null"`
	Exchange     string `gorm:"not null"`
	MarketType   string `gorm:"default:spot"`

	// Comma-separated symbol lists. Empty allow list means every symbol
	// not explicitly denied is tradable.
	AllowedSymbols string
	DeniedSymbols  string

	MinConfidence float64
	Timeframe     string `gorm:"default:1h"`

	CapitalUSD          float64
	RiskPercent         float64
	InitialOrderPercent float64
	MaxConcurrentTrades int `gorm:"default:1"`
	AllowLong           bool
	AllowShort          bool
	CooldownMinutes     int

	DCALevels         int
	StopLossPercent   float64
	TakeProfitPercent float64

	ProfitStrategy          string `gorm:"default:fixed"`
	TrailingDistancePercent float64
	PartialClosePercent     float64
}

// AllowList returns the parsed symbol allow list.
func (c *BotConfig) AllowList() []string {
	return splitSymbols(c.AllowedSymbols)
}

// DenyList returns the parsed symbol deny list.
func (c *BotConfig) DenyList() []string {
	return splitSymbols(c.DeniedSymbols)
}

func splitSymbols(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
