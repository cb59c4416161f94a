package pnl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"pnl_engine/internal/core"
	"pnl_engine/pkg/apperrors"
)

// Manager is the single entry point for the message stream. It resolves the
// owning portfolio ledger through several partially overlapping identifiers
// (transaction id, exchange order id, exchange order string id), keeps the
// global realized accumulator, and reports which ledgers changed.
//
// Every composite operation runs inside one critical section so concurrent
// callers never observe partial index updates or create duplicate ledgers.
type Manager struct {
	mu sync.RWMutex

	settings core.Settings

	ledgers      map[string]*PortfolioLedger
	byTx         map[int64]*PortfolioLedger
	byOrderID    map[int64]*PortfolioLedger
	byOrderStrID map[string]*PortfolioLedger

	realizedPnL decimal.Decimal

	logger core.ILogger
}

// NewManager creates a manager with the given feature toggles.
func NewManager(settings core.Settings, logger core.ILogger) *Manager {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Manager{
		settings:     settings,
		ledgers:      make(map[string]*PortfolioLedger),
		byTx:         make(map[int64]*PortfolioLedger),
		byOrderID:    make(map[int64]*PortfolioLedger),
		byOrderStrID: make(map[string]*PortfolioLedger),
		logger:       logger.WithField("component", "pnl_manager"),
	}
}

// Settings returns the current feature toggles.
func (m *Manager) Settings() core.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSettings replaces the feature toggles.
func (m *Manager) SetSettings(s core.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// RealizedPnL returns the global realized accumulator. It always equals the
// sum of the realized accumulators of every ledger.
func (m *Manager) RealizedPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realizedPnL
}

// UnrealizedPnL sums unrealized PnL across every ledger.
func (m *Manager) UnrealizedPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := decimal.Zero
	for _, l := range m.ledgers {
		sum = sum.Add(l.UnrealizedPnL())
	}
	return sum
}

// PnL returns realized plus unrealized PnL across every ledger.
func (m *Manager) PnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := m.realizedPnL
	for _, l := range m.ledgers {
		sum = sum.Add(l.UnrealizedPnL())
	}
	return sum
}

// Snapshots returns the externally visible state of every ledger.
func (m *Manager) Snapshots() []core.PortfolioSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.PortfolioSnapshot, 0, len(m.ledgers))
	for _, l := range m.ledgers {
		out = append(out, l.Snapshot())
	}
	return out
}

// ProcessMessage applies one inbound message. For a fill it returns the
// trade result, flagged as Duplicate when the trade identity was seen
// before; the second value lists the ledgers whose PnL figures changed.
func (m *Manager) ProcessMessage(msg core.Message) (*core.TradeResult, []*PortfolioLedger, error) {
	if msg == nil {
		return nil, nil, apperrors.ErrNilMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch t := msg.(type) {
	case *core.Reset:
		m.ledgers = make(map[string]*PortfolioLedger)
		m.byTx = make(map[int64]*PortfolioLedger)
		m.byOrderID = make(map[int64]*PortfolioLedger)
		m.byOrderStrID = make(map[string]*PortfolioLedger)
		m.realizedPnL = decimal.Zero
		return nil, nil, nil

	case *core.OrderRegister:
		if t.PortfolioName == "" {
			return nil, nil, fmt.Errorf("order register tx=%d without portfolio: %w",
				t.TransactionID, apperrors.ErrMissingIdentifier)
		}
		ledger := m.getOrCreateLedgerLocked(t.PortfolioName)
		m.byTx[t.TransactionID] = ledger
		return nil, nil, nil

	case *core.OrderReplace:
		// The replacing order inherits the ledger of the one it replaces.
		if ledger, ok := m.byTx[t.OriginalTransactionID]; ok {
			m.byTx[t.TransactionID] = ledger
		} else if t.PortfolioName != "" {
			m.byTx[t.TransactionID] = m.getOrCreateLedgerLocked(t.PortfolioName)
		}
		return nil, nil, nil

	case *core.Execution:
		switch t.Class {
		case core.ClassTransactions:
			return m.processTransactionLocked(t)
		case core.ClassTicks:
			if !m.settings.UseTicks {
				return nil, nil, nil
			}
			changed, err := m.broadcastLocked(msg)
			return nil, changed, err
		case core.ClassOrderLog:
			if !m.settings.UseOrderLog {
				return nil, nil, nil
			}
			changed, err := m.broadcastLocked(msg)
			return nil, changed, err
		}
		return nil, nil, nil

	case *core.Level1Change:
		if !m.settings.UseLevel1 {
			return nil, nil, nil
		}
		changed, err := m.broadcastLocked(msg)
		return nil, changed, err

	case *core.QuoteChange:
		// Incremental book updates are skipped; only snapshots carry a
		// usable best bid/ask.
		if !m.settings.UseOrderBook || t.State != nil {
			return nil, nil, nil
		}
		changed, err := m.broadcastLocked(msg)
		return nil, changed, err

	case *core.Candle:
		if !m.settings.UseCandles {
			return nil, nil, nil
		}
		changed, err := m.broadcastLocked(msg)
		return nil, changed, err

	case *core.PositionChange:
		changed, err := m.broadcastLocked(msg)
		return nil, changed, err
	}

	return nil, nil, nil
}

// processTransactionLocked handles an own-order execution report: order
// acknowledgements refresh the correlation indices, fills feed the owning
// ledger. A report matching no known key may belong to activity outside
// this engine's purview and is silently ignored.
func (m *Manager) processTransactionLocked(msg *core.Execution) (*core.TradeResult, []*PortfolioLedger, error) {
	txID := msg.TxID()

	ledger := m.byTx[txID]

	// Only an order acknowledgement may fall back to the portfolio name or
	// exchange-assigned ids and refresh the correlation indices. A bare fill
	// resolves through the transaction id alone; one that misses may belong
	// to an order placed outside this engine and must not mint a ledger.
	if msg.HasOrderInfo() {
		if ledger == nil && msg.PortfolioName != "" {
			ledger = m.getOrCreateLedgerLocked(msg.PortfolioName)
		}
		if ledger == nil && msg.OrderID != 0 {
			ledger = m.byOrderID[msg.OrderID]
		}
		if ledger == nil && msg.OrderStringID != "" {
			ledger = m.byOrderStrID[strings.ToLower(msg.OrderStringID)]
		}
		if ledger != nil {
			// Later reports may carry only the exchange-assigned id.
			if txID != 0 {
				m.byTx[txID] = ledger
			}
			if msg.OrderID != 0 {
				m.byOrderID[msg.OrderID] = ledger
			}
			if msg.OrderStringID != "" {
				m.byOrderStrID[strings.ToLower(msg.OrderStringID)] = ledger
			}
		}
	}

	if ledger == nil {
		m.logger.Debug("Unresolved execution correlation, ignoring", "tx_id", txID, "trade_id", msg.TradeID)
		return nil, nil, nil
	}

	defer m.pruneFinalLocked(msg)

	if !msg.HasTradeInfo() {
		return nil, nil, nil
	}

	isNew, res, err := ledger.ProcessOwnTrade(msg)
	if err != nil {
		return nil, nil, err
	}
	if !isNew {
		// Transport redelivery: surface the stored result, flagged, so the
		// host can count it without touching the accumulators.
		res.Duplicate = true
		return &res, nil, nil
	}

	m.realizedPnL = m.realizedPnL.Add(res.PnL)
	return &res, []*PortfolioLedger{ledger}, nil
}

// pruneFinalLocked drops the correlation entries of an order that can no
// longer change, keeping the index maps from growing without bound.
func (m *Manager) pruneFinalLocked(msg *core.Execution) {
	if !msg.HasOrderInfo() || !msg.OrderState.IsFinal() {
		return
	}
	if msg.OrderID != 0 {
		delete(m.byOrderID, msg.OrderID)
	}
	if msg.OrderStringID != "" {
		delete(m.byOrderStrID, strings.ToLower(msg.OrderStringID))
	}
}

// broadcastLocked offers a market-data message to every ledger. Each ledger
// no-ops for instruments it does not own.
func (m *Manager) broadcastLocked(msg core.Message) ([]*PortfolioLedger, error) {
	var changed []*PortfolioLedger
	for _, l := range m.ledgers {
		touched, err := l.ProcessMarketData(msg)
		if err != nil {
			return changed, err
		}
		if touched {
			changed = append(changed, l)
		}
	}
	return changed, nil
}

func (m *Manager) getOrCreateLedgerLocked(portfolioName string) *PortfolioLedger {
	key := strings.ToLower(portfolioName)
	ledger, ok := m.ledgers[key]
	if !ok {
		ledger = NewPortfolioLedger(portfolioName, m.logger)
		m.ledgers[key] = ledger
		m.logger.Debug("Created portfolio ledger", "portfolio", portfolioName)
	}
	return ledger
}
