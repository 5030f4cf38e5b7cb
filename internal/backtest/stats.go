package backtest

import (
	"encoding/json"
	"math"
	"time"
)

// ProfitFactor is gross profit divided by gross loss. It is 0 when there
// are no wins and +Inf when there are wins but no losses; the sentinel
// serializes as the string "inf" to stay valid JSON.
type ProfitFactor float64

// MarshalJSON renders the +Inf sentinel as "inf".
func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(p), 1) {
		return json.Marshal("inf")
	}
	return json.Marshal(float64(p))
}

// Summary is the aggregate statistics block of one backtest run.
type Summary struct {
	WinRate          float64      `json:"win_rate"` // percent
	TotalPnL         float64      `json:"total_pnl"`
	AvgPnL           float64      `json:"avg_pnl"`
	MaxWin           float64      `json:"max_win"`
	MaxLoss          float64      `json:"max_loss"`
	ProfitFactor     ProfitFactor `json:"profit_factor"`
	AvgR             float64      `json:"avg_r"`
	AvgTradeDuration string       `json:"avg_trade_duration"`
}

// summarize computes the aggregate statistics over a completed trade list.
func summarize(trades []Trade, stopLossPercent float64) Summary {
	s := Summary{AvgTradeDuration: "0s"}
	if len(trades) == 0 {
		return s
	}

	var wins int
	var grossWin, grossLoss float64
	var totalDuration time.Duration
	for _, t := range trades {
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			wins++
			grossWin += t.PnL
			if t.PnL > s.MaxWin {
				s.MaxWin = t.PnL
			}
		} else {
			grossLoss += -t.PnL
			if t.PnL < s.MaxLoss {
				s.MaxLoss = t.PnL
			}
		}
		if stopLossPercent > 0 {
			s.AvgR += t.PnLPercent / stopLossPercent
		}
		totalDuration += t.ExitTime.Sub(t.EntryTime)
	}

	n := float64(len(trades))
	s.WinRate = float64(wins) / n * 100
	s.AvgPnL = s.TotalPnL / n
	s.AvgR /= n
	s.AvgTradeDuration = (totalDuration / time.Duration(len(trades))).String()
	s.ProfitFactor = profitFactor(grossWin, grossLoss)
	return s
}

// profitFactor applies the convention: 0 when nothing was won, +Inf when
// something was won and nothing lost.
func profitFactor(grossWin, grossLoss float64) ProfitFactor {
	if grossWin == 0 {
		return 0
	}
	if grossLoss == 0 {
		return ProfitFactor(math.Inf(1))
	}
	return ProfitFactor(grossWin / grossLoss)
}

// maxDrawdown returns the largest peak-to-trough percentage decline over
// the equity curve.
func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
