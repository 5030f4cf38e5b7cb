package signal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"signal-trade-bot-go/internal/models"
)

// Adapter fetches the freshest eligible signal for one source and maps it
// into the unified shape. Implementations are read-only against external
// state and must not let errors escape as panics.
type Adapter interface {
	// Source returns the tag this adapter serves.
	Source() string

	// Fetch returns the freshest matching signal, or nil when none is
	// available. A nil signal with a nil error means "nothing fresh enough",
	// not a failure.
	Fetch(ctx context.Context, accountID string, cfg *models.BotConfig) (*UnifiedSignal, error)
}

// storeAdapter is the shared gorm-backed implementation. Each source gets
// its own recency multiplier and confidence floor; everything else is
// identical query-and-map logic.
type storeAdapter struct {
	db              *gorm.DB
	source          string
	recencyFactor   float64 // scales the timeframe-derived freshness window
	confidenceFloor float64
}

// NewTechnicalAdapter serves indicator-engine rows. Standard freshness,
// moderate confidence floor.
func NewTechnicalAdapter(db *gorm.DB) Adapter {
	return &storeAdapter{db: db, source: SourceTechnical, recencyFactor: 1.0, confidenceFloor: 50}
}

// NewAIAdapter serves model-generated rows. Model output decays quickly,
// so the window is tighter and the floor higher.
func NewAIAdapter(db *gorm.DB) Adapter {
	return &storeAdapter{db: db, source: SourceAI, recencyFactor: 0.5, confidenceFloor: 60}
}

// NewCommunityAdapter serves curated community rows, which stay actionable
// longer than machine-generated ones.
func NewCommunityAdapter(db *gorm.DB) Adapter {
	return &storeAdapter{db: db, source: SourceCommunity, recencyFactor: 2.0, confidenceFloor: 40}
}

func (a *storeAdapter) Source() string {
	return a.source
}

func (a *storeAdapter) Fetch(ctx context.Context, accountID string, cfg *models.BotConfig) (*UnifiedSignal, error) {
	timeframe := cfg.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}

	minConfidence := a.confidenceFloor
	if cfg.MinConfidence > minConfidence {
		minConfidence = cfg.MinConfidence
	}

	cutoff := time.Now().Add(-a.recencyWindow(timeframe))

	query := a.db.WithContext(ctx).
		Where("source = ?", a.source).
		Where("timeframe = ?", timeframe).
		Where("confidence >= ?", minConfidence).
		Where("created_at > ?", cutoff).
		Where("signal_type IN ?", []string{"BUY", "SELL", "LONG", "SHORT"}).
		Order("created_at DESC")

	if allowed := cfg.AllowList(); len(allowed) > 0 {
		query = query.Where("symbol IN ?", allowed)
	}

	var record models.SignalRecord
	if err := query.First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("querying %s signals: %w", a.source, err)
	}

	side, ok := resolveSide(record.SignalType)
	if !ok {
		// Neutral rows are filtered by the query, but a producer could write
		// something unexpected; never let it past the adapter boundary.
		return nil, nil
	}

	return &UnifiedSignal{
		ID:          strconv.FormatUint(uint64(record.ID), 10),
		AccountID:   accountID,
		Symbol:      strings.ToUpper(record.Symbol),
		Timeframe:   record.Timeframe,
		Side:        side,
		EntryPrice:  record.EntryPrice,
		StopLoss:    record.StopLoss,
		TakeProfit:  record.TakeProfit,
		Leverage:    record.Leverage,
		Confidence:  record.Confidence,
		Source:      a.source,
		GeneratedAt: record.CreatedAt,
		Raw:         record.Payload,
	}, nil
}

// recencyWindow derives the freshness cutoff from the timeframe: short
// timeframes go stale fast, long ones stay actionable for hours.
func (a *storeAdapter) recencyWindow(timeframe string) time.Duration {
	var base time.Duration
	switch timeframe {
	case "1m", "3m", "5m":
		base = 15 * time.Minute
	case "15m", "30m":
		base = time.Hour
	case "1h", "2h":
		base = 4 * time.Hour
	case "4h", "6h", "12h":
		base = 12 * time.Hour
	default: // 1d and anything unrecognized
		base = 24 * time.Hour
	}
	return time.Duration(float64(base) * a.recencyFactor)
}

// resolveSide maps producer signal types onto the two sides the rest of
// the pipeline understands.
func resolveSide(signalType string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(signalType)) {
	case "BUY", "LONG":
		return SideBuy, true
	case "SELL", "SHORT":
		return SideSell, true
	default:
		return "", false
	}
}
