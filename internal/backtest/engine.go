package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/models"
)

// ErrNoCandles is returned when the requested range has no historical
// data. A backtest cannot silently substitute prices, so this is a hard
// failure for the run.
var ErrNoCandles = errors.New("no candles for requested range")

// Exit reasons recorded on simulated trades.
const (
	ExitTakeProfit     = "take_profit"
	ExitStopLoss       = "stop_loss"
	ExitOpposingSignal = "opposing_signal"
	ExitTimeout        = "timeout"
)

// Request describes one simulation run.
type Request struct {
	Symbol         string
	Timeframe      string
	Start          time.Time
	End            time.Time
	Exchange       string
	MarketType     string
	InitialCapital float64
	Config         *models.BotConfig // risk/DCA/exit parameter set
	MakerFee       float64           // fraction, e.g. 0.001
	TakerFee       float64
	Slippage       float64 // optional fraction applied to market fills
}

// Trade is one completed simulated round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	ExitReason string    `json:"exit_reason"`
}

// EquityPoint is one sample of the simulated account value.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result is the full output of one run.
type Result struct {
	RunID              string        `json:"run_id"`
	Symbol             string        `json:"symbol"`
	Timeframe          string        `json:"timeframe"`
	InitialCapital     float64       `json:"initial_capital"`
	FinalBalance       float64       `json:"final_balance"`
	TotalPnL           float64       `json:"total_pnl"`
	ReturnPercent      float64       `json:"return_percent"`
	MaxDrawdownPercent float64       `json:"max_drawdown_percent"`
	WinRate            float64       `json:"win_rate"`
	TradeCount         int           `json:"trade_count"`
	Trades             []Trade       `json:"trades"`
	EquityCurve        []EquityPoint `json:"equity_curve"`
	Summary            Summary       `json:"summary"`
}

// position is the single open-or-closed position of a run. The simulation
// is long-only: BUY opens, SELL (or a stop/target touch) closes.
type position struct {
	entryTime time.Time
	entry     float64
	quantity  float64
	cost      float64 // notional + entry fee
	stop      float64
	target    float64
}

// Engine replays historical candles through the sizing/exit policy. It
// deliberately uses its own trend+oscillator signal rule rather than the
// live adapters: the run validates sizing and exit policy in isolation,
// not live signal sourcing.
type Engine struct {
	db     *gorm.DB
	logger *zap.Logger
	params config.Backtest
}

// NewEngine creates a backtest engine over the given candle store.
func NewEngine(db *gorm.DB, logger *zap.Logger, params config.Backtest) *Engine {
	return &Engine{
		db:     db,
		logger: logger.Named("backtest"),
		params: params,
	}
}

// Run executes one simulation. Identical inputs produce identical trade
// lists and equity curves; all state is local to the call.
func (e *Engine) Run(ctx context.Context, req *Request) (*Result, error) {
	candles, err := e.loadCandles(ctx, req)
	if err != nil {
		return nil, err
	}

	slPct, tpPct, initialPct := resolveRiskParams(req.Config)
	stride := e.params.EquityStride
	if stride <= 0 {
		stride = 10
	}
	warmup := e.params.SlowPeriod
	if e.params.RSIPeriod+1 > warmup {
		warmup = e.params.RSIPeriod + 1
	}

	e.logger.Info("Starting backtest run",
		zap.String("symbol", req.Symbol),
		zap.String("timeframe", req.Timeframe),
		zap.Int("candles", len(candles)),
		zap.Float64("initial_capital", req.InitialCapital))

	balance := req.InitialCapital
	var pos *position
	var trades []Trade
	var curve []EquityPoint

	closes := make([]float64, 0, len(candles))

	for i, c := range candles {
		closes = append(closes, c.Close)
		candleTime := time.UnixMilli(c.OpenTime)

		// Exits first: a stop or target touched inside the candle takes
		// priority over a same-candle opposing signal.
		if pos != nil {
			if c.Low <= pos.stop {
				balance += e.closeTrade(&trades, pos, pos.stop, candleTime, ExitStopLoss, req.TakerFee)
				pos = nil
			} else if c.High >= pos.target {
				balance += e.closeTrade(&trades, pos, pos.target, candleTime, ExitTakeProfit, req.TakerFee)
				pos = nil
			}
		}

		if i >= warmup {
			switch e.ruleSignal(closes) {
			case sideSell:
				if pos != nil {
					exit := c.Close * (1 - req.Slippage)
					balance += e.closeTrade(&trades, pos, exit, candleTime, ExitOpposingSignal, req.TakerFee)
					pos = nil
				}
			case sideBuy:
				if pos == nil {
					pos = e.openTrade(&balance, c.Close, candleTime, initialPct, slPct, tpPct, req)
				}
			}
		}

		if i%stride == 0 || i == len(candles)-1 {
			curve = append(curve, EquityPoint{
				Time:   candleTime,
				Equity: markEquity(balance, pos, c.Close),
			})
		}
	}

	// Anything still open is closed at the final price.
	if pos != nil {
		last := candles[len(candles)-1]
		balance += e.closeTrade(&trades, pos, last.Close, time.UnixMilli(last.OpenTime), ExitTimeout, req.TakerFee)
		pos = nil
		curve[len(curve)-1].Equity = balance
	}

	result := &Result{
		RunID:              uuid.NewString(),
		Symbol:             req.Symbol,
		Timeframe:          req.Timeframe,
		InitialCapital:     req.InitialCapital,
		FinalBalance:       balance,
		TotalPnL:           balance - req.InitialCapital,
		MaxDrawdownPercent: maxDrawdown(curve),
		TradeCount:         len(trades),
		Trades:             trades,
		EquityCurve:        curve,
		Summary:            summarize(trades, slPct),
	}
	if req.InitialCapital > 0 {
		result.ReturnPercent = result.TotalPnL / req.InitialCapital * 100
	}
	result.WinRate = result.Summary.WinRate

	e.logger.Info("Backtest run complete",
		zap.String("run_id", result.RunID),
		zap.Int("trades", result.TradeCount),
		zap.Float64("total_pnl", result.TotalPnL),
		zap.Float64("max_drawdown_pct", result.MaxDrawdownPercent))

	return result, nil
}

func (e *Engine) loadCandles(ctx context.Context, req *Request) ([]models.Candle, error) {
	var candles []models.Candle
	err := e.db.WithContext(ctx).
		Where("symbol = ?", req.Symbol).
		Where("timeframe = ?", req.Timeframe).
		Where("open_time >= ? AND open_time <= ?", req.Start.UnixMilli(), req.End.UnixMilli()).
		Order("open_time ASC").
		Find(&candles).Error
	if err != nil {
		return nil, fmt.Errorf("loading candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s %s..%s", ErrNoCandles,
			req.Symbol, req.Timeframe,
			req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
	}
	return candles, nil
}

const (
	sideNone = 0
	sideBuy  = 1
	sideSell = -1
)

// ruleSignal derives a BUY/SELL/none signal from the trailing price
// window: fast-over-slow trend with an overbought veto for entries,
// fast-under-slow for exits.
func (e *Engine) ruleSignal(closes []float64) int {
	fast := sma(closes, e.params.FastPeriod)
	slow := sma(closes, e.params.SlowPeriod)
	if fast == 0 || slow == 0 {
		return sideNone
	}
	oscillator := rsi(closes, e.params.RSIPeriod)

	if fast > slow && oscillator < 70 {
		return sideBuy
	}
	if fast < slow {
		return sideSell
	}
	return sideNone
}

// openTrade sizes an entry from the available balance and opens the
// position if the total cost fits. It returns nil when it does not.
func (e *Engine) openTrade(balance *float64, price float64, at time.Time, initialPct, slPct, tpPct float64, req *Request) *position {
	fill := price * (1 + req.Slippage)
	spend := *balance * initialPct / 100
	if spend <= 0 || fill <= 0 {
		return nil
	}

	// The fee comes out of the same budget, so the notional is shaved down
	// to keep total cost within the available balance.
	notional := spend / (1 + req.TakerFee)
	fee := notional * req.TakerFee
	if notional+fee > *balance {
		return nil
	}

	*balance -= notional + fee
	return &position{
		entryTime: at,
		entry:     fill,
		quantity:  notional / fill,
		cost:      notional + fee,
		stop:      fill * (1 - slPct/100),
		target:    fill * (1 + tpPct/100),
	}
}

// closeTrade realizes a position at the given price, appends the trade and
// returns the proceeds to add back to the balance.
func (e *Engine) closeTrade(trades *[]Trade, pos *position, price float64, at time.Time, reason string, takerFee float64) float64 {
	proceeds := price * pos.quantity
	fee := proceeds * takerFee
	net := proceeds - fee

	pnl := net - pos.cost
	trade := Trade{
		EntryTime:  pos.entryTime,
		ExitTime:   at,
		EntryPrice: pos.entry,
		ExitPrice:  price,
		Quantity:   pos.quantity,
		PnL:        pnl,
		ExitReason: reason,
	}
	if pos.cost > 0 {
		trade.PnLPercent = pnl / pos.cost * 100
	}
	*trades = append(*trades, trade)
	return net
}

func markEquity(balance float64, pos *position, price float64) float64 {
	if pos == nil {
		return balance
	}
	return balance + pos.quantity*price
}

// resolveRiskParams applies the same policy floors the live builder uses.
func resolveRiskParams(cfg *models.BotConfig) (slPct, tpPct, initialPct float64) {
	slPct, tpPct, initialPct = 2, 4, 100
	if cfg == nil {
		return
	}
	if cfg.StopLossPercent > 0 {
		slPct = cfg.StopLossPercent
	}
	if cfg.TakeProfitPercent > 0 {
		tpPct = cfg.TakeProfitPercent
	}
	if cfg.InitialOrderPercent > 0 && cfg.InitialOrderPercent <= 100 {
		initialPct = cfg.InitialOrderPercent
	}
	return
}
