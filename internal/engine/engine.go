package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pnl_engine/internal/core"
	"pnl_engine/internal/pnl"
	"pnl_engine/internal/position"
	"pnl_engine/pkg/telemetry"
)

// Update is what one inbound message produced: the trade result for a
// first-seen fill, the position movement, and the snapshots of every
// portfolio whose figures changed.
type Update struct {
	Trade      *core.TradeResult
	Position   *core.PositionUpdate
	Portfolios []core.PortfolioSnapshot
}

// IsEmpty reports whether the message changed nothing observable.
func (u *Update) IsEmpty() bool {
	return u.Trade == nil && u.Position == nil && len(u.Portfolios) == 0
}

// Engine feeds the PnL manager and the position tracker from a single
// message stream and mirrors the outcome into telemetry.
type Engine struct {
	manager *pnl.Manager
	tracker *position.Tracker
	store   SettingsStore
	metrics *telemetry.MetricsHolder
	logger  core.ILogger
}

// NewEngine wires the analytics components together. The store may be nil
// when settings persistence is not wanted.
func NewEngine(settings core.Settings, store SettingsStore, logger core.ILogger) *Engine {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Engine{
		manager: pnl.NewManager(settings, logger),
		tracker: position.NewTracker(settings.PositionMode, logger),
		store:   store,
		metrics: telemetry.GetGlobalMetrics(),
		logger:  logger.WithField("component", "engine"),
	}
}

// ProcessMessage applies one inbound message to both analytics components.
func (e *Engine) ProcessMessage(ctx context.Context, msg core.Message) (*Update, error) {
	trade, changed, err := e.manager.ProcessMessage(msg)
	if err != nil {
		return nil, err
	}

	posUpdate, err := e.tracker.ProcessMessage(msg)
	if err != nil {
		return nil, err
	}

	// A redelivered trade is counted but never re-broadcast.
	duplicate := trade != nil && trade.Duplicate
	if duplicate {
		trade = nil
	}

	update := &Update{
		Trade:    trade,
		Position: posUpdate,
	}
	for _, ledger := range changed {
		update.Portfolios = append(update.Portfolios, ledger.Snapshot())
	}

	e.recordMetrics(ctx, msg, update, duplicate)
	return update, nil
}

func (e *Engine) recordMetrics(ctx context.Context, msg core.Message, update *Update, duplicate bool) {
	if e.metrics.MessagesTotal != nil {
		e.metrics.MessagesTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("type", messageType(msg))))
	}

	if _, ok := msg.(*core.Reset); ok {
		e.metrics.ResetGauges()
		return
	}

	if duplicate && e.metrics.TradesDuplicateTotal != nil {
		e.metrics.TradesDuplicateTotal.Add(ctx, 1)
	}

	if update.Trade != nil {
		if e.metrics.TradesProcessedTotal != nil {
			e.metrics.TradesProcessedTotal.Add(ctx, 1)
		}
		if e.metrics.PnLRealizedTotal != nil {
			e.metrics.PnLRealizedTotal.Add(ctx, update.Trade.PnL.InexactFloat64())
		}
	}

	for _, snap := range update.Portfolios {
		e.metrics.SetUnrealizedPnL(snap.PortfolioName, snap.UnrealizedPnL.InexactFloat64())
	}
	if len(update.Portfolios) > 0 {
		e.metrics.SetPortfoliosActive(int64(len(e.manager.Snapshots())))
	}

	if update.Position != nil {
		key := update.Position.SecurityID + "@" + update.Position.PortfolioName
		e.metrics.SetPositionSize(key, update.Position.Value.InexactFloat64())
	}
}

func messageType(msg core.Message) string {
	switch m := msg.(type) {
	case *core.OrderRegister:
		return "order_register"
	case *core.OrderReplace:
		return "order_replace"
	case *core.Execution:
		return m.Class.String()
	case *core.Level1Change:
		return "level1"
	case *core.QuoteChange:
		return "quotes"
	case *core.Candle:
		return "candle"
	case *core.PositionChange:
		return "position_change"
	case *core.Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Settings returns the current engine settings.
func (e *Engine) Settings() core.Settings {
	s := e.manager.Settings()
	s.PositionMode = e.tracker.Mode()
	return s
}

// ApplySettings updates the feed toggles and persists the full settings.
// A changed position mode takes effect on the next engine start; switching
// accounting modes with live order records would corrupt positions.
func (e *Engine) ApplySettings(ctx context.Context, settings core.Settings) error {
	if settings.PositionMode != e.tracker.Mode() {
		e.logger.Warn("Position mode change requires restart",
			"current", string(e.tracker.Mode()), "requested", string(settings.PositionMode))
	}
	e.manager.SetSettings(settings)

	if e.store == nil {
		return nil
	}
	return e.store.SaveSettings(ctx, settings)
}

// RestoreSettings loads persisted settings, if any, into the manager.
func (e *Engine) RestoreSettings(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	saved, err := e.store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if saved == nil {
		return nil
	}
	e.manager.SetSettings(*saved)
	e.logger.Info("Restored persisted settings")
	return nil
}

// RealizedPnL returns total realized PnL across portfolios.
func (e *Engine) RealizedPnL() string {
	return e.manager.RealizedPnL().String()
}

// PnL returns total realized plus unrealized PnL across portfolios.
func (e *Engine) PnL() string {
	return e.manager.PnL().String()
}

// Snapshots returns the current per-portfolio figures.
func (e *Engine) Snapshots() []core.PortfolioSnapshot {
	return e.manager.Snapshots()
}

// Positions returns the current net positions.
func (e *Engine) Positions() []core.PositionUpdate {
	return e.tracker.Positions()
}
