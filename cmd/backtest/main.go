package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"signal-trade-bot-go/internal/backtest"
	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/database"
	"signal-trade-bot-go/internal/logger"
	"signal-trade-bot-go/internal/models"
)

func main() {
	var (
		symbol    = flag.String("symbol", "BTCUSDT", "symbol to simulate")
		timeframe = flag.String("timeframe", "1h", "candle timeframe")
		days      = flag.Int("days", 30, "how many days back from now to replay")
		capital   = flag.Float64("capital", 10000, "initial capital in quote currency")
		stopLoss  = flag.Float64("stop-loss", 2, "stop-loss percent")
		target    = flag.Float64("take-profit", 4, "take-profit percent")
		initial   = flag.Float64("initial-order", 100, "initial order percent of balance")
	)
	flag.Parse()

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	engine := backtest.NewEngine(db, log, cfg.Backtest)

	end := time.Now()
	req := &backtest.Request{
		Symbol:         *symbol,
		Timeframe:      *timeframe,
		Start:          end.AddDate(0, 0, -*days),
		End:            end,
		InitialCapital: *capital,
		Config: &models.BotConfig{
			StopLossPercent:     *stopLoss,
			TakeProfitPercent:   *target,
			InitialOrderPercent: *initial,
		},
		MakerFee: cfg.Backtest.MakerFee,
		TakerFee: cfg.Backtest.TakerFee,
	}

	result, err := engine.Run(context.Background(), req)
	if err != nil {
		// A data gap is a terminal error for the run, not something to
		// paper over with partial output.
		log.Fatal("Backtest failed", zap.Error(err))
	}

	report, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode report", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, string(report))
}
