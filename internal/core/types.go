package core

import "strings"

// Side is the direction of an order or trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns the string representation of a side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Invert returns the opposite side.
func (s Side) Invert() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// DataClass identifies which feed an execution message belongs to.
type DataClass int

const (
	// ClassTransactions marks own-order and own-trade reports.
	ClassTransactions DataClass = iota
	// ClassTicks marks anonymous trade-tape entries.
	ClassTicks
	// ClassOrderLog marks raw order-log entries.
	ClassOrderLog
)

// String returns the string representation of a data class.
func (c DataClass) String() string {
	switch c {
	case ClassTransactions:
		return "transactions"
	case ClassTicks:
		return "ticks"
	case ClassOrderLog:
		return "order_log"
	default:
		return "unknown"
	}
}

// OrderState is the lifecycle state of an order.
type OrderState int

const (
	OrderStateNone OrderState = iota
	OrderStatePending
	OrderStateActive
	OrderStateDone
	OrderStateFailed
)

// IsFinal reports whether the order can no longer change.
func (s OrderState) IsFinal() bool {
	return s == OrderStateDone || s == OrderStateFailed
}

// CandleState is the completion state of a candle.
type CandleState int

const (
	CandleActive CandleState = iota
	CandleFinished
)

// QuoteState distinguishes order-book snapshots from incremental updates.
// A nil *QuoteState on a QuoteChange means a full snapshot.
type QuoteState int

const (
	QuoteSnapshot QuoteState = iota
	QuoteIncrement
)

// PositionKey identifies a position bucket. Portfolio comparison is
// case-insensitive, so the portfolio part is stored lower-cased.
type PositionKey struct {
	SecurityID string
	Portfolio  string
}

// NewPositionKey builds a key with the portfolio name normalized.
func NewPositionKey(securityID, portfolioName string) PositionKey {
	return PositionKey{
		SecurityID: securityID,
		Portfolio:  strings.ToLower(portfolioName),
	}
}
