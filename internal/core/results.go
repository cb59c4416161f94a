package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pnl_engine/pkg/apperrors"
)

// TradeResult is the economic effect of applying one trade to a ledger.
// Duplicate marks a redelivered trade identity: the figures repeat the
// first delivery and were not counted again.
type TradeResult struct {
	ServerTime   time.Time
	ClosedVolume decimal.Decimal
	PnL          decimal.Decimal
	Duplicate    bool
}

// NewTradeResult validates and builds a trade result. A negative closed
// volume indicates a matching bug upstream and is rejected.
func NewTradeResult(serverTime time.Time, closedVolume, pnl decimal.Decimal) (TradeResult, error) {
	if closedVolume.IsNegative() {
		return TradeResult{}, fmt.Errorf("closed volume %s: %w", closedVolume, apperrors.ErrNegativeClosedVolume)
	}
	return TradeResult{
		ServerTime:   serverTime,
		ClosedVolume: closedVolume,
		PnL:          pnl,
	}, nil
}

// PositionUpdate is the new net position after applying one delta.
type PositionUpdate struct {
	SecurityID    string
	PortfolioName string
	Value         decimal.Decimal
}

// PortfolioSnapshot is the externally visible state of one ledger.
type PortfolioSnapshot struct {
	PortfolioName string
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Total returns realized plus unrealized PnL.
func (s PortfolioSnapshot) Total() decimal.Decimal {
	return s.RealizedPnL.Add(s.UnrealizedPnL)
}
