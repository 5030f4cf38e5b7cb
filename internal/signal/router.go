package signal

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-trade-bot-go/internal/models"
)

// Result is what the router hands back to the decision loop. Adapter
// failures are degraded into Err here; they are never propagated as
// panics or returned errors from Fetch.
type Result struct {
	Signal *UnifiedSignal
	Source string
	Err    error
}

// Router selects the adapter matching a bot's configured signal source.
// The source set is closed; unknown tags fall back to the default adapter
// with a logged warning.
type Router struct {
	logger   *zap.Logger
	adapters map[string]Adapter
	fallback Adapter
}

// NewRouter wires the fixed adapter set over the given store. The
// technical adapter doubles as the fallback for unknown source tags.
func NewRouter(db *gorm.DB, logger *zap.Logger) *Router {
	technical := NewTechnicalAdapter(db)
	adapters := map[string]Adapter{
		SourceTechnical: technical,
		SourceAI:        NewAIAdapter(db),
		SourceCommunity: NewCommunityAdapter(db),
	}
	return &Router{
		logger:   logger.Named("signal-router"),
		adapters: adapters,
		fallback: technical,
	}
}

// Fetch runs the configured adapter for the account and returns its
// result. It never returns a bare error: source unavailability is a local
// condition recorded in Result.Err.
func (r *Router) Fetch(ctx context.Context, accountID string, cfg *models.BotConfig) Result {
	adapter, ok := r.adapters[cfg.SignalSource]
	if !ok {
		r.logger.Warn("Unknown signal source, falling back to default adapter",
			zap.String("account_id", accountID),
			zap.String("source", cfg.SignalSource),
			zap.String("fallback", r.fallback.Source()))
		adapter = r.fallback
	}

	sig, err := adapter.Fetch(ctx, accountID, cfg)
	if err != nil {
		r.logger.Warn("Signal adapter failed",
			zap.String("account_id", accountID),
			zap.String("source", adapter.Source()),
			zap.Error(err))
		return Result{Source: adapter.Source(), Err: fmt.Errorf("source unavailable: %w", err)}
	}

	return Result{Signal: sig, Source: adapter.Source()}
}
