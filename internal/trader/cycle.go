package trader

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"signal-trade-bot-go/internal/exchange"
	"signal-trade-bot-go/internal/execution"
	"signal-trade-bot-go/internal/gate"
	"signal-trade-bot-go/internal/models"
	"signal-trade-bot-go/internal/orders"
)

const healthProbeTimeout = 5 * time.Second

// runCycle executes one account's decision cycle: sync open orders, fetch
// a signal, evaluate eligibility, build the plan and submit it. Steps are
// strictly sequential; a failure at any step just ends the cycle — no
// partial state needs unwinding because nothing is written before the
// submission step.
func (e *Engine) runCycle(ctx context.Context, botCfg *models.BotConfig) {
	l := e.logger.With(
		zap.String("account_id", botCfg.AccountID),
		zap.String("source", botCfg.SignalSource),
		zap.String("exchange", botCfg.Exchange))

	client, ok := e.clients[botCfg.Exchange]
	if !ok {
		l.Error("No client configured for exchange")
		return
	}

	// Refresh local order state first so the gate sees current open
	// position counts.
	e.syncAccountOrders(ctx, botCfg, client, l)

	// 1. Route to the configured signal source.
	res := e.router.Fetch(ctx, botCfg.AccountID, botCfg)
	if res.Err != nil {
		// Source unavailability is a local condition, already logged by the
		// router; this cycle simply produces nothing.
		return
	}
	if res.Signal == nil {
		l.Debug("No fresh signal available")
		return
	}
	sig := res.Signal
	l = l.With(zap.String("signal_id", sig.ID), zap.String("symbol", sig.Symbol))

	// 2. Gather account state for the gate.
	openPositions, err := e.countOpenPositions(ctx, botCfg.AccountID)
	if err != nil {
		l.Error("Could not count open positions", zap.Error(err))
		return
	}
	lastTradeAt, err := e.lastTradeTime(ctx, botCfg.AccountID)
	if err != nil {
		l.Error("Could not read last trade time", zap.Error(err))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	healthy := client.Ping(probeCtx) == nil
	cancel()

	// 3. Evaluate eligibility.
	verdict := gate.Evaluate(&gate.Context{
		Signal:          sig,
		Config:          botCfg,
		OpenPositions:   openPositions,
		ExchangeHealthy: healthy,
		LastTradeAt:     lastTradeAt,
		AllowedSymbols:  botCfg.AllowList(),
		DeniedSymbols:   botCfg.DenyList(),
	}, gate.Options{
		Cooldown: time.Duration(e.cfg.Gate.CooldownMinutes) * time.Minute,
		MinConfidence: map[string]float64{
			"technical": e.cfg.Gate.DefaultMinConfidence,
			"ai":        e.cfg.Gate.DefaultMinConfidence,
			"community": e.cfg.Gate.DefaultMinConfidence,
		},
	})
	if !verdict.Passed {
		l.Info("Signal rejected",
			zap.String("code", verdict.Code),
			zap.String("reason", verdict.Reason))
		return
	}

	// 4. Build the order plan. A balance read failure falls back to the
	// configured capital; the builder treats 0 as "no balance supplied".
	balance, err := client.GetBalance(ctx, e.cfg.Trading.QuoteAsset)
	if err != nil {
		l.Warn("Balance unavailable, sizing from configured capital", zap.Error(err))
		balance = 0
	}

	payload := execution.Build(sig, botCfg, botCfg.Exchange, e.isTestnet(botCfg.Exchange), balance)
	for _, d := range payload.Defaults {
		l.Warn("Builder substituted a default", zap.String("default", d))
	}

	// 5. Submit.
	if e.cfg.Trading.DryRun {
		l.Warn("Dry run enabled, simulating submission",
			zap.String("client_order_id", payload.ClientOrderID),
			zap.Float64("initial_order_usd", payload.Capital.InitialOrderUSD))
		e.recordTrade(payload, payload.EntryPrice, 0, true, l)
		return
	}

	ref, err := client.SubmitOrder(ctx, payload)
	if err != nil {
		l.Error("Order submission failed", zap.Error(err))
		return
	}

	e.saveOrderRef(botCfg.AccountID, ref, l)
	e.recordTrade(payload, ref.AvgPrice, ref.FilledQuantity, false, l)
	l.Info("Decision cycle executed a trade",
		zap.String("client_order_id", ref.ClientOrderID),
		zap.String("status", string(ref.Status)))
}

// syncAccountOrders refreshes every non-terminal persisted order of the
// account against the exchange. Orders the exchange stays silent about are
// left untouched ("unknown, not cancelled").
func (e *Engine) syncAccountOrders(ctx context.Context, botCfg *models.BotConfig, client exchange.Client, l *zap.Logger) {
	var open []models.Order
	err := e.db.WithContext(ctx).
		Where("account_id = ?", botCfg.AccountID).
		Where("status NOT IN ?", terminalStatuses()).
		Find(&open).Error
	if err != nil {
		l.Error("Could not load open orders for sync", zap.Error(err))
		return
	}
	if len(open) == 0 {
		return
	}

	bySymbol := make(map[string][]models.Order)
	for _, o := range open {
		bySymbol[o.Symbol] = append(bySymbol[o.Symbol], o)
	}

	for symbol, group := range bySymbol {
		local := make([]orders.OrderRef, len(group))
		for i := range group {
			local[i] = refFromModel(&group[i])
		}

		synced, err := client.SyncOpenOrders(ctx, symbol, local)
		if err != nil {
			l.Warn("Order sync failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		for i := range synced {
			if !orders.HasOrderStatusChanged(local[i], synced[i]) {
				continue
			}
			record := group[i]
			applyRefToModel(&record, &synced[i])
			if err := e.db.WithContext(ctx).Save(&record).Error; err != nil {
				l.Error("Failed to persist synced order", zap.Error(err),
					zap.String("client_order_id", record.ClientOrderID))
				continue
			}
			l.Info("Order state updated",
				zap.String("client_order_id", record.ClientOrderID),
				zap.String("status", record.Status))
		}
	}
}

func (e *Engine) countOpenPositions(ctx context.Context, accountID string) (int, error) {
	var count int64
	err := e.db.WithContext(ctx).Model(&models.Order{}).
		Where("account_id = ?", accountID).
		Where("status NOT IN ?", terminalStatuses()).
		Count(&count).Error
	return int(count), err
}

func (e *Engine) lastTradeTime(ctx context.Context, accountID string) (time.Time, error) {
	var trade models.ExecutedTrade
	err := e.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return trade.CreatedAt, nil
}

func (e *Engine) saveOrderRef(accountID string, ref *orders.OrderRef, l *zap.Logger) {
	record := models.Order{AccountID: accountID}
	applyRefToModel(&record, ref)
	if err := e.db.Create(&record).Error; err != nil {
		l.Error("Failed to save order record", zap.Error(err))
	}
}

func (e *Engine) recordTrade(p *execution.Payload, price, quantity float64, simulated bool, l *zap.Logger) {
	trade := models.ExecutedTrade{
		AccountID:     p.AccountID,
		Exchange:      p.Exchange,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		SignalID:      p.SignalID,
		SignalSource:  p.SignalSource,
		ClientOrderID: p.ClientOrderID,
		Price:         price,
		Quantity:      quantity,
		QuoteQuantity: p.Capital.InitialOrderUSD,
		Timestamp:     time.Now().Unix(),
		IsSimulation:  simulated,
	}
	if err := e.db.Create(&trade).Error; err != nil {
		l.Error("Failed to save trade record", zap.Error(err))
	}
}

func (e *Engine) isTestnet(exchangeName string) bool {
	switch exchangeName {
	case "binance":
		return e.cfg.Exchanges.Binance.Testnet
	case "okx":
		return e.cfg.Exchanges.OKX.Testnet
	}
	return false
}

func terminalStatuses() []string {
	return []string{
		string(orders.StatusFilled),
		string(orders.StatusCanceled),
		string(orders.StatusRejected),
		string(orders.StatusExpired),
	}
}

// refFromModel converts a persisted order row into the canonical shape.
func refFromModel(m *models.Order) orders.OrderRef {
	return orders.OrderRef{
		Exchange:          m.Exchange,
		MarketType:        m.MarketType,
		Symbol:            m.Symbol,
		Side:              m.Side,
		Type:              m.Type,
		Status:            orders.Status(m.Status),
		ExchangeOrderID:   m.ExchangeOrderID,
		ClientOrderID:     m.ClientOrderID,
		Price:             m.Price,
		Quantity:          m.Quantity,
		FilledQuantity:    m.FilledQuantity,
		RemainingQuantity: m.RemainingQuantity,
		AvgPrice:          m.AvgPrice,
		Commission:        m.Commission,
		CommissionAsset:   m.CommissionAsset,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		FilledAt:          m.FilledAt,
		CancelledAt:       m.CancelledAt,
	}
}

// applyRefToModel copies canonical order state onto a persisted row.
func applyRefToModel(m *models.Order, ref *orders.OrderRef) {
	m.Exchange = ref.Exchange
	m.MarketType = ref.MarketType
	m.Symbol = ref.Symbol
	m.Side = ref.Side
	m.Type = ref.Type
	m.Status = string(ref.Status)
	m.ExchangeOrderID = ref.ExchangeOrderID
	m.ClientOrderID = ref.ClientOrderID
	m.Price = ref.Price
	m.Quantity = ref.Quantity
	m.FilledQuantity = ref.FilledQuantity
	m.RemainingQuantity = ref.RemainingQuantity
	m.AvgPrice = ref.AvgPrice
	m.Commission = ref.Commission
	m.CommissionAsset = ref.CommissionAsset
	m.FilledAt = ref.FilledAt
	m.CancelledAt = ref.CancelledAt
}
