package trader

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-trade-bot-go/internal/config"
	"signal-trade-bot-go/internal/exchange"
	"signal-trade-bot-go/internal/models"
	"signal-trade-bot-go/internal/signal"
)

// Engine runs the live decision loop: poll active bot configurations, and
// for each one route a signal through the gate, build a plan and submit
// it. Every account's cycle is independent; a bounded worker pool runs
// them in parallel while an in-flight guard keeps any single account from
// running two cycles at once.
type Engine struct {
	UUID      string
	StartTime time.Time

	logger  *zap.Logger
	cfg     *config.Config
	db      *gorm.DB
	router  *signal.Router
	clients map[string]exchange.Client

	sem      chan struct{}
	inFlight sync.Map
	wg       sync.WaitGroup
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, clients map[string]exchange.Client) *Engine {
	workers := cfg.Trading.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		UUID:      uuid.NewString(),
		StartTime: time.Now(),
		logger:    logger.Named("engine"),
		cfg:       cfg,
		db:        db,
		router:    signal.NewRouter(db, logger),
		clients:   clients,
		sem:       make(chan struct{}, workers),
	}
}

// Run starts the engine's main loop and blocks until the context is
// cancelled. In-flight cycles are drained before returning.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting decision loop",
		zap.Duration("interval", interval),
		zap.Int("max_workers", cap(e.sem)),
		zap.Bool("dry_run", e.cfg.Trading.DryRun))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine, draining in-flight cycles...")
			e.wg.Wait()
			return
		case <-ticker.C:
			if err := e.pollOnce(ctx); err != nil {
				e.logger.Error("Polling cycle failed", zap.Error(err))
			}
		}
	}
}

// pollOnce loads the active bot configurations and dispatches one decision
// cycle per account onto the worker pool. Accounts with a cycle still in
// flight are skipped; the idempotent client order id is the second line of
// defense if that guard is ever violated.
func (e *Engine) pollOnce(ctx context.Context) error {
	var configs []models.BotConfig
	if err := e.db.WithContext(ctx).Where("active = ?", true).Find(&configs).Error; err != nil {
		return err
	}

	for i := range configs {
		botCfg := configs[i]
		if _, running := e.inFlight.LoadOrStore(botCfg.AccountID, struct{}{}); running {
			e.logger.Debug("Skipping account, previous cycle still in flight",
				zap.String("account_id", botCfg.AccountID))
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.inFlight.Delete(botCfg.AccountID)

			select {
			case e.sem <- struct{}{}:
				defer func() { <-e.sem }()
			case <-ctx.Done():
				return
			}

			e.runCycle(ctx, &botCfg)
		}()
	}
	return nil
}
