package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/models"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// setupBacktest wires an engine over a fresh in-memory candle store with
// short indicator windows so fixtures stay small. Warmup is
// max(slow, rsi+1) = 5 candles.
func setupBacktest(t *testing.T) (*Engine, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Candle{}))

	engine := NewEngine(db, zap.NewNop(), config.Backtest{
		FastPeriod:   3,
		SlowPeriod:   5,
		RSIPeriod:    3,
		EquityStride: 1,
	})
	return engine, db
}

// seedCandles writes hourly candles with the given closes. Highs and lows
// hug the close tightly so only the overrides can touch a stop or target.
func seedCandles(t *testing.T, db *gorm.DB, closes []float64, highs, lows map[int]float64) {
	for i, c := range closes {
		high, ok := highs[i]
		if !ok {
			high = c + 0.2
		}
		low, ok := lows[i]
		if !ok {
			low = c - 0.2
		}
		require.NoError(t, db.Create(&models.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  testStart.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:      c,
			High:      high,
			Low:       low,
			Close:     c,
			Volume:    100,
		}).Error)
	}
}

func testRequest() *Request {
	return &Request{
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		Start:          testStart,
		End:            testStart.Add(30 * 24 * time.Hour),
		InitialCapital: 1000,
		Config: &models.BotConfig{
			StopLossPercent:     2,
			TakeProfitPercent:   4,
			InitialOrderPercent: 100,
		},
	}
}

// Five flat warmup candles, then a rise with one pullback. The pullback
// candle is where the entry fires: the trend is up but the oscillator has
// cooled below its overbought veto.
func trendingCloses() []float64 {
	return []float64{100, 100, 100, 100, 100, 101, 100.5}
}

func TestEngineRun_NoCandles(t *testing.T) {
	engine, _ := setupBacktest(t)

	result, err := engine.Run(context.Background(), testRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCandles)
	assert.Nil(t, result)
}

func TestEngineRun_TakeProfitExit(t *testing.T) {
	engine, db := setupBacktest(t)

	// Entry at 100.5 puts the target at 104.52; the last candle's high
	// reaches through it.
	closes := append(trendingCloses(), 101.5, 102.5, 103.5, 104.8)
	seedCandles(t, db, closes, map[int]float64{10: 105.0}, nil)

	result, err := engine.Run(context.Background(), testRequest())

	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitTakeProfit, trade.ExitReason)
	assert.InDelta(t, 100.5, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 100.5*1.04, trade.ExitPrice, 1e-9)
	assert.Greater(t, trade.PnL, 0.0)
	assert.Greater(t, result.FinalBalance, result.InitialCapital)
	assert.InDelta(t, result.FinalBalance-result.InitialCapital, result.TotalPnL, 1e-9)
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.EquityCurve)
}

func TestEngineRun_StopLossExit(t *testing.T) {
	engine, db := setupBacktest(t)

	// Entry at 100.5 puts the stop at 98.49; the crash candle's low trades
	// through it.
	closes := append(trendingCloses(), 97, 96.5, 96)
	seedCandles(t, db, closes, nil, map[int]float64{7: 96.8})

	result, err := engine.Run(context.Background(), testRequest())

	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, 100.5*0.98, trade.ExitPrice, 1e-9)
	assert.Less(t, trade.PnL, 0.0)
	assert.Less(t, result.FinalBalance, result.InitialCapital)
	assert.Greater(t, result.MaxDrawdownPercent, 0.0)
}

func TestEngineRun_OpenPositionClosedAtEnd(t *testing.T) {
	engine, db := setupBacktest(t)

	// The data ends one candle after the entry, with neither stop nor
	// target touched.
	closes := append(trendingCloses(), 101)
	seedCandles(t, db, closes, nil, nil)

	result, err := engine.Run(context.Background(), testRequest())

	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, ExitTimeout, trade.ExitReason)
	assert.InDelta(t, 101, trade.ExitPrice, 1e-9)

	// The final equity sample reflects the forced close.
	last := result.EquityCurve[len(result.EquityCurve)-1]
	assert.InDelta(t, result.FinalBalance, last.Equity, 1e-9)
}

func TestEngineRun_Deterministic(t *testing.T) {
	engine, db := setupBacktest(t)

	closes := append(trendingCloses(), 101.5, 102.5, 103.5, 104.8)
	seedCandles(t, db, closes, map[int]float64{10: 105.0}, nil)

	first, err := engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	// Everything but the run id is identical between replays.
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.FinalBalance, second.FinalBalance)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestEngineRun_FeesReduceProceeds(t *testing.T) {
	engine, db := setupBacktest(t)

	closes := append(trendingCloses(), 101.5, 102.5, 103.5, 104.8)
	seedCandles(t, db, closes, map[int]float64{10: 105.0}, nil)

	free := testRequest()
	costly := testRequest()
	costly.TakerFee = 0.001

	withoutFees, err := engine.Run(context.Background(), free)
	require.NoError(t, err)
	withFees, err := engine.Run(context.Background(), costly)
	require.NoError(t, err)

	require.Len(t, withFees.Trades, 1)
	assert.Less(t, withFees.FinalBalance, withoutFees.FinalBalance)
}

func TestEngineRun_RangeFiltering(t *testing.T) {
	engine, db := setupBacktest(t)
	seedCandles(t, db, trendingCloses(), nil, nil)

	// A window that starts after the data ends finds nothing.
	req := testRequest()
	req.Start = testStart.Add(48 * time.Hour)

	_, err := engine.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoCandles)
}
