package pnl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"pnl_engine/internal/core"
	"pnl_engine/pkg/apperrors"
)

// PortfolioLedger aggregates per-instrument PnL queues for one portfolio.
// Trades are deduplicated by identity so transport-level redelivery never
// double-counts realized PnL. String keys compare case-insensitively.
type PortfolioLedger struct {
	mu sync.Mutex

	portfolioName string
	queues        map[string]*Queue
	tradeByID     map[int64]core.TradeResult
	tradeByStrID  map[string]core.TradeResult
	realizedPnL   decimal.Decimal

	logger core.ILogger
}

// NewPortfolioLedger creates an empty ledger for the named portfolio.
func NewPortfolioLedger(portfolioName string, logger core.ILogger) *PortfolioLedger {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &PortfolioLedger{
		portfolioName: portfolioName,
		queues:        make(map[string]*Queue),
		tradeByID:     make(map[int64]core.TradeResult),
		tradeByStrID:  make(map[string]core.TradeResult),
		logger:        logger.WithField("portfolio", portfolioName),
	}
}

// PortfolioName returns the name this ledger was created for.
func (l *PortfolioLedger) PortfolioName() string {
	return l.portfolioName
}

// RealizedPnL returns the ledger's realized accumulator. It always equals
// the sum of realized PnL across the owned instrument queues.
func (l *PortfolioLedger) RealizedPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedPnL
}

// UnrealizedPnL sums unrealized PnL across all owned instrument queues.
func (l *PortfolioLedger) UnrealizedPnL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := decimal.Zero
	for _, q := range l.queues {
		sum = sum.Add(q.UnrealizedPnL())
	}
	return sum
}

// PnL returns realized plus unrealized PnL.
func (l *PortfolioLedger) PnL() decimal.Decimal {
	return l.RealizedPnL().Add(l.UnrealizedPnL())
}

// Snapshot returns the externally visible state of the ledger.
func (l *PortfolioLedger) Snapshot() core.PortfolioSnapshot {
	return core.PortfolioSnapshot{
		PortfolioName: l.portfolioName,
		RealizedPnL:   l.RealizedPnL(),
		UnrealizedPnL: l.UnrealizedPnL(),
	}
}

// ProcessOwnTrade applies one fill to the owning instrument's queue. The
// trade identity is the numeric trade id when present, otherwise the string
// trade id. A message with neither is a no-op; a previously seen identity
// returns the stored result unchanged.
func (l *PortfolioLedger) ProcessOwnTrade(msg *core.Execution) (bool, core.TradeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		byID  bool
		strID string
	)
	switch {
	case msg.TradeID != 0:
		byID = true
		if res, ok := l.tradeByID[msg.TradeID]; ok {
			return false, res, nil
		}
	case msg.TradeStringID != "":
		strID = strings.ToLower(msg.TradeStringID)
		if res, ok := l.tradeByStrID[strID]; ok {
			return false, res, nil
		}
	default:
		return false, core.TradeResult{}, nil
	}

	if msg.TradePrice == nil || msg.TradeVolume == nil {
		return false, core.TradeResult{}, fmt.Errorf("trade %d/%q without price or volume: %w",
			msg.TradeID, msg.TradeStringID, apperrors.ErrMissingIdentifier)
	}

	queue := l.getOrCreateQueueLocked(msg.SecurityID)
	res, err := queue.Process(msg.Side, *msg.TradePrice, *msg.TradeVolume, msg.ServerTime)
	if err != nil {
		return false, core.TradeResult{}, err
	}

	if byID {
		l.tradeByID[msg.TradeID] = res
	} else {
		l.tradeByStrID[strID] = res
	}
	l.realizedPnL = l.realizedPnL.Add(res.PnL)

	return true, res, nil
}

// ProcessMarketData routes a price update to the owning instrument's queue.
// A ledger never creates a queue from a price update: instruments it has
// never traded are ignored. The returned flag reports whether any owned
// queue was touched (and the ledger's unrealized PnL may have moved).
func (l *PortfolioLedger) ProcessMarketData(msg core.Message) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch m := msg.(type) {
	case *core.Execution:
		// Tick or order-log entry replayed as a price source.
		if m.TradePrice == nil {
			return false, nil
		}
		q, ok := l.queues[securityKey(m.SecurityID)]
		if !ok {
			return false, nil
		}
		q.OnTick(*m.TradePrice)
		return true, nil

	case *core.Level1Change:
		q, ok := l.queues[securityKey(m.SecurityID)]
		if !ok {
			return false, nil
		}
		if err := q.UpdateSecurity(m); err != nil {
			return false, err
		}
		q.OnLevel1(m.LastTradePrice, m.BestBidPrice, m.BestAskPrice)
		return true, nil

	case *core.QuoteChange:
		q, ok := l.queues[securityKey(m.SecurityID)]
		if !ok {
			return false, nil
		}
		q.OnQuotes(m.BestBid, m.BestAsk)
		return true, nil

	case *core.Candle:
		q, ok := l.queues[securityKey(m.SecurityID)]
		if !ok {
			return false, nil
		}
		q.OnCandleClose(m.ClosePrice)
		return true, nil

	case *core.PositionChange:
		if m.Leverage == nil {
			return false, nil
		}
		if m.IsMoney {
			// Account-level signal: applies to every owned instrument.
			for _, q := range l.queues {
				if err := q.SetLeverage(*m.Leverage); err != nil {
					return false, err
				}
			}
			return len(l.queues) > 0, nil
		}
		q, ok := l.queues[securityKey(m.SecurityID)]
		if !ok {
			return false, nil
		}
		if err := q.SetLeverage(*m.Leverage); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// Reset clears all queues, trade identities and the realized accumulator.
func (l *PortfolioLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queues = make(map[string]*Queue)
	l.tradeByID = make(map[int64]core.TradeResult)
	l.tradeByStrID = make(map[string]core.TradeResult)
	l.realizedPnL = decimal.Zero
}

func (l *PortfolioLedger) getOrCreateQueueLocked(securityID string) *Queue {
	key := securityKey(securityID)
	q, ok := l.queues[key]
	if !ok {
		q = NewQueue(securityID)
		l.queues[key] = q
		l.logger.Debug("Created PnL queue", "security", securityID)
	}
	return q
}

func securityKey(securityID string) string {
	return strings.ToLower(securityID)
}
