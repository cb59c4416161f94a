// Package core defines the message shapes, result types and interfaces
// shared by the PnL and position analytics components.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message is the common type for everything the analytics entry points
// consume. Concrete messages are produced by external transport adapters.
type Message interface {
	isMessage()
}

// OrderRegister announces a new order before any execution report for it.
type OrderRegister struct {
	TransactionID int64
	SecurityID    string
	PortfolioName string
	Side          Side
	Volume        decimal.Decimal
}

// OrderReplace announces an order replacement. The new order is tracked
// under its own transaction id.
type OrderReplace struct {
	TransactionID         int64
	OriginalTransactionID int64
	SecurityID            string
	PortfolioName         string
	Side                  Side
	Volume                decimal.Decimal
}

// Execution is a broker execution report. Depending on Class and on which
// optional fields are set it may describe an order acknowledgement, one or
// more fills, an anonymous tick or an order-log entry.
type Execution struct {
	Class                 DataClass
	TransactionID         int64
	OriginalTransactionID int64
	SecurityID            string
	PortfolioName         string
	Side                  Side

	// Order info.
	OrderID       int64
	OrderStringID string
	OrderState    OrderState
	OrderVolume   *decimal.Decimal
	Balance       *decimal.Decimal

	// Trade info.
	TradeID       int64
	TradeStringID string
	TradePrice    *decimal.Decimal
	TradeVolume   *decimal.Decimal

	ServerTime time.Time
}

// HasOrderInfo reports whether the message carries order-acknowledgement
// data (state, balance or an exchange-assigned id).
func (e *Execution) HasOrderInfo() bool {
	return e.OrderState != OrderStateNone ||
		e.Balance != nil ||
		e.OrderVolume != nil ||
		e.OrderID != 0 ||
		e.OrderStringID != ""
}

// HasTradeInfo reports whether the message carries fill data.
func (e *Execution) HasTradeInfo() bool {
	return e.TradeID != 0 ||
		e.TradeStringID != "" ||
		e.TradePrice != nil ||
		e.TradeVolume != nil
}

/// TxID returns the transaction id the message should correlate under:
// the freshly assigned id when present, otherwise the originating one.
func (e *Execution) TxID() int64 {
	if e.TransactionID != 0 {
		return e.TransactionID
	}
	return e.OriginalTransactionID
}

// Level1Change carries instrument economics and best prices. Nil fields
// are absent from the update.
type Level1Change struct {
	SecurityID     string
	PriceStep      *decimal.Decimal
	StepPrice      *decimal.Decimal
	LotMultiplier  *decimal.Decimal
	LastTradePrice *decimal.Decimal
	BestBidPrice   *decimal.Decimal
	BestAskPrice   *decimal.Decimal
}

// QuoteChange carries the best bid/ask of an order book. A non-nil State
// marks an incremental update rather than a snapshot.
type QuoteChange struct {
	SecurityID string
	BestBid    *decimal.Decimal
	BestAsk    *decimal.Decimal
	State      *QuoteState
}

// Candle carries a single candle; only the close price feeds analytics.
type Candle struct {
	SecurityID string
	ClosePrice decimal.Decimal
	State      CandleState
}

// PositionChange carries an account-level or per-instrument leverage
// update. IsMoney marks the account-level ("money") variant, which applies
// to every instrument of the portfolio.
type PositionChange struct {
	SecurityID    string
	PortfolioName string
	Leverage      *decimal.Decimal
	IsMoney       bool
}

// Reset tears down all accumulated state across every component. It is the
// designated recovery path after a reconnect and is always safe to send.
type Reset struct{}

func (*OrderRegister) isMessage()  {}
func (*OrderReplace) isMessage()   {}
func (*Execution) isMessage()      {}
func (*Level1Change) isMessage()   {}
func (*QuoteChange) isMessage()    {}
func (*Candle) isMessage()         {}
func (*PositionChange) isMessage() {}
func (*Reset) isMessage()          {}
