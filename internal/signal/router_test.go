package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal-trade-bot-go/internal/models"
)

// stubAdapter lets router tests control adapter behavior directly.
type stubAdapter struct {
	source string
	sig    *UnifiedSignal
	err    error
}

func (s *stubAdapter) Source() string { return s.source }

func (s *stubAdapter) Fetch(context.Context, string, *models.BotConfig) (*UnifiedSignal, error) {
	return s.sig, s.err
}

func TestRouter_Fetch_DispatchesBySource(t *testing.T) {
	aiSignal := &UnifiedSignal{ID: "7", Side: SideBuy, Source: SourceAI}
	r := &Router{
		logger: zap.NewNop(),
		adapters: map[string]Adapter{
			SourceTechnical: &stubAdapter{source: SourceTechnical},
			SourceAI:        &stubAdapter{source: SourceAI, sig: aiSignal},
		},
		fallback: &stubAdapter{source: SourceTechnical},
	}

	res := r.Fetch(context.Background(), "acct-1", &models.BotConfig{SignalSource: SourceAI})

	require.NoError(t, res.Err)
	assert.Equal(t, SourceAI, res.Source)
	assert.Same(t, aiSignal, res.Signal)
}

func TestRouter_Fetch_UnknownSourceFallsBack(t *testing.T) {
	fallbackSignal := &UnifiedSignal{ID: "1", Side: SideBuy, Source: SourceTechnical}
	r := &Router{
		logger:   zap.NewNop(),
		adapters: map[string]Adapter{},
		fallback: &stubAdapter{source: SourceTechnical, sig: fallbackSignal},
	}

	res := r.Fetch(context.Background(), "acct-1", &models.BotConfig{SignalSource: "astrology"})

	require.NoError(t, res.Err)
	assert.Equal(t, SourceTechnical, res.Source)
	assert.Same(t, fallbackSignal, res.Signal)
}

func TestRouter_Fetch_AdapterFailureDegrades(t *testing.T) {
	r := &Router{
		logger: zap.NewNop(),
		adapters: map[string]Adapter{
			SourceCommunity: &stubAdapter{source: SourceCommunity, err: errors.New("store offline")},
		},
		fallback: &stubAdapter{source: SourceTechnical},
	}

	res := r.Fetch(context.Background(), "acct-1", &models.BotConfig{SignalSource: SourceCommunity})

	// Failure is reported in the result, never as a panic or lost cycle.
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "source unavailable")
	assert.Contains(t, res.Err.Error(), "store offline")
	assert.Nil(t, res.Signal)
	assert.Equal(t, SourceCommunity, res.Source)
}

func TestRouter_Fetch_NoFreshSignalIsNotAnError(t *testing.T) {
	r := NewRouter(setupSignalDB(t), zap.NewNop())

	res := r.Fetch(context.Background(), "acct-1", &models.BotConfig{SignalSource: SourceTechnical})

	assert.NoError(t, res.Err)
	assert.Nil(t, res.Signal)
	assert.Equal(t, SourceTechnical, res.Source)
}
