package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/database"
	"signal-trade-bot-go/internal/exchange"
	"signal-trade-bot-go/internal/logger"
	"signal-trade-bot-go/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize exchange clients. An unreachable exchange at startup is
	// not fatal: the per-cycle health probe gates trading on it anyway.
	clients := map[string]exchange.Client{
		"binance": exchange.NewBinanceClient(&cfg.Exchanges.Binance, log),
		"okx":     exchange.NewOKXClient(&cfg.Exchanges.OKX, log),
	}
	for name, client := range clients {
		if err := client.Ping(context.Background()); err != nil {
			log.Warn("Exchange unreachable at startup, continuing",
				zap.String("exchange", name), zap.Error(err))
		}
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine with its status API
	tradeEngine := trader.NewEngine(log, &cfg, db, clients)
	apiServer := trader.NewAPIServer(tradeEngine, cfg.Server.Port, log)
	apiServer.Start()

	tradeEngine.Run(ctx)

	if err := apiServer.Stop(context.Background()); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	log.Info("Bot has been shut down.")
}
