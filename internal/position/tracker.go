// Package position computes net instrument positions per portfolio from
// order registrations and execution reports. It is independent from the
// PnL subsystem; both consume the same message stream.
package position

import (
	"sync"

	"github.com/shopspring/decimal"

	"pnl_engine/internal/core"
)

// orderRecord tracks one resting order until it reaches a final state.
type orderRecord struct {
	securityID    string
	portfolioName string
	side          core.Side
	volume        decimal.Decimal
	balance       decimal.Decimal
}

// Tracker maintains net position values keyed by security and portfolio.
// Depending on the configured accounting mode, deltas are inferred either
// from shrinking resting-order balances or directly from fill volumes.
type Tracker struct {
	mu sync.Mutex

	mode      core.PositionMode
	orders    map[int64]*orderRecord
	positions map[core.PositionKey]decimal.Decimal

	logger core.ILogger
}

// NewTracker creates a tracker with the given accounting mode.
func NewTracker(mode core.PositionMode, logger core.ILogger) *Tracker {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Tracker{
		mode:      mode,
		orders:    make(map[int64]*orderRecord),
		positions: make(map[core.PositionKey]decimal.Decimal),
		logger:    logger.WithField("component", "position_tracker"),
	}
}

// Mode returns the configured accounting mode.
func (t *Tracker) Mode() core.PositionMode {
	return t.mode
}

// GetPosition returns the current net position for a security and
// portfolio. Unknown keys are flat.
func (t *Tracker) GetPosition(securityID, portfolioName string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positions[core.NewPositionKey(securityID, portfolioName)]
}

// Positions returns a snapshot of every non-tracked-to-zero position.
func (t *Tracker) Positions() []core.PositionUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.PositionUpdate, 0, len(t.positions))
	for key, value := range t.positions {
		out = append(out, core.PositionUpdate{
			SecurityID:    key.SecurityID,
			PortfolioName: key.Portfolio,
			Value:         value,
		})
	}
	return out
}

// ProcessMessage applies one inbound message and returns the resulting
// position change, if any.
func (t *Tracker) ProcessMessage(msg core.Message) (*core.PositionUpdate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := msg.(type) {
	case *core.Reset:
		t.orders = make(map[int64]*orderRecord)
		t.positions = make(map[core.PositionKey]decimal.Decimal)
		return nil, nil

	case *core.OrderRegister:
		t.orders[m.TransactionID] = &orderRecord{
			securityID:    m.SecurityID,
			portfolioName: m.PortfolioName,
			side:          m.Side,
			volume:        m.Volume,
			balance:       m.Volume,
		}
		return nil, nil

	case *core.OrderReplace:
		t.orders[m.TransactionID] = &orderRecord{
			securityID:    m.SecurityID,
			portfolioName: m.PortfolioName,
			side:          m.Side,
			volume:        m.Volume,
			balance:       m.Volume,
		}
		return nil, nil

	case *core.Execution:
		if m.Class != core.ClassTransactions {
			// Market-data echo of the transaction feed.
			return nil, nil
		}
		return t.processExecutionLocked(m), nil
	}

	return nil, nil
}

func (t *Tracker) processExecutionLocked(msg *core.Execution) *core.PositionUpdate {
	var (
		rec   *orderRecord
		txKey int64
	)
	if msg.TransactionID != 0 {
		if r, ok := t.orders[msg.TransactionID]; ok {
			rec, txKey = r, msg.TransactionID
		}
	}
	if rec == nil {
		if r, ok := t.orders[msg.OriginalTransactionID]; ok {
			rec, txKey = r, msg.OriginalTransactionID
		}
	}

	var update *core.PositionUpdate

	if t.mode == core.PositionByOrder {
		update = t.applyBalanceLocked(rec, msg)
	} else {
		t.updateBalanceLocked(rec, msg)
		update = t.applyTradeLocked(rec, msg)
	}

	if rec != nil && msg.OrderState.IsFinal() {
		delete(t.orders, txKey)
	}

	return update
}

// applyBalanceLocked infers the filled amount from a shrinking balance and
// moves the position by it, signed by the order's side.
func (t *Tracker) applyBalanceLocked(rec *orderRecord, msg *core.Execution) *core.PositionUpdate {
	if rec == nil || msg.Balance == nil {
		return nil
	}

	newBalance := *msg.Balance
	if newBalance.IsNegative() {
		t.logger.Warn("Negative order balance, skipping",
			"tx_id", msg.TxID(), "balance", newBalance)
		return nil
	}
	if !newBalance.LessThan(rec.balance) {
		return nil
	}

	decrease := rec.balance.Sub(newBalance)
	rec.balance = newBalance

	delta := decrease
	if rec.side == core.SideSell {
		delta = delta.Neg()
	}
	return t.moveLocked(rec.securityID, rec.portfolioName, delta)
}

// updateBalanceLocked keeps the order record current without emitting a
// position change; in by-trade mode fills alone move the position.
func (t *Tracker) updateBalanceLocked(rec *orderRecord, msg *core.Execution) {
	if rec == nil || msg.Balance == nil {
		return
	}
	if b := *msg.Balance; !b.IsNegative() && b.LessThan(rec.balance) {
		rec.balance = b
	}
}

// applyTradeLocked moves the position by the fill volume, signed by side.
// A zero-volume fill is a venue data-quality quirk and is skipped.
func (t *Tracker) applyTradeLocked(rec *orderRecord, msg *core.Execution) *core.PositionUpdate {
	if !msg.HasTradeInfo() || msg.TradeVolume == nil {
		return nil
	}

	volume := *msg.TradeVolume
	if volume.IsZero() {
		t.logger.Warn("Zero volume fill, skipping",
			"tx_id", msg.TxID(), "trade_id", msg.TradeID, "security", msg.SecurityID)
		return nil
	}

	securityID, portfolioName := msg.SecurityID, msg.PortfolioName
	if rec != nil {
		securityID, portfolioName = rec.securityID, rec.portfolioName
	}

	delta := volume
	if msg.Side == core.SideSell {
		delta = delta.Neg()
	}
	return t.moveLocked(securityID, portfolioName, delta)
}

func (t *Tracker) moveLocked(securityID, portfolioName string, delta decimal.Decimal) *core.PositionUpdate {
	key := core.NewPositionKey(securityID, portfolioName)
	value := t.positions[key].Add(delta)
	t.positions[key] = value

	return &core.PositionUpdate{
		SecurityID:    securityID,
		PortfolioName: portfolioName,
		Value:         value,
	}
}
