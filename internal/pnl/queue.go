// Package pnl computes running realized and unrealized profit-and-loss per
// portfolio from a stream of execution reports and price updates.
package pnl

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pnl_engine/internal/core"
	"pnl_engine/pkg/apperrors"
)

// lot is a price/volume slice of a still-open position.
type lot struct {
	price  decimal.Decimal
	volume decimal.Decimal
}

// Queue is the per-instrument lot ledger. Lots are held in a stack ordered
// by recency: a closing trade matches against the most recently opened lot
// first. Realized PnL accumulates on trade application; unrealized PnL is
// recomputed lazily against the latest reference price.
type Queue struct {
	mu sync.Mutex

	securityID string
	openSide   core.Side
	lots       []lot

	realizedPnL decimal.Decimal

	priceStep     decimal.Decimal
	stepPrice     *decimal.Decimal
	leverage      decimal.Decimal
	lotMultiplier decimal.Decimal
	multiplier    decimal.Decimal

	unrealized      decimal.Decimal
	unrealizedDirty bool

	lastPrice *decimal.Decimal
	bidPrice  *decimal.Decimal
	askPrice  *decimal.Decimal
}

// NewQueue creates a queue with neutral contract economics: price step,
// leverage and lot multiplier all 1, step price unset.
func NewQueue(securityID string) *Queue {
	q := &Queue{
		securityID:      securityID,
		priceStep:       decimal.New(1, 0),
		leverage:        decimal.New(1, 0),
		lotMultiplier:   decimal.New(1, 0),
		unrealizedDirty: true,
	}
	q.recomputeMultiplier()
	return q
}

// SecurityID returns the instrument this queue belongs to.
func (q *Queue) SecurityID() string {
	return q.securityID
}

// RealizedPnL returns the accumulated realized PnL.
func (q *Queue) RealizedPnL() decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.realizedPnL
}

// multiplier = (stepPrice unset ? 1 : stepPrice/priceStep) * leverage * lotMultiplier
func (q *Queue) recomputeMultiplier() {
	m := q.leverage.Mul(q.lotMultiplier)
	if q.stepPrice != nil {
		m = m.Mul(q.stepPrice.Div(q.priceStep))
	}
	q.multiplier = m
	q.unrealizedDirty = true
}

// UpdateSecurity assigns the contract economics carried by a level-1
// update. Only fields that are present and actually changed are applied;
// each applied field rederives the multiplier and invalidates the
// unrealized cache. Non-positive values are caller bugs and are rejected.
func (q *Queue) UpdateSecurity(msg *core.Level1Change) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if v := msg.PriceStep; v != nil {
		if !v.IsPositive() {
			return fmt.Errorf("price step %s for %s: %w", v, q.securityID, apperrors.ErrNonPositiveParameter)
		}
		if !v.Equal(q.priceStep) {
			q.priceStep = *v
			q.recomputeMultiplier()
		}
	}

	if v := msg.StepPrice; v != nil {
		if !v.IsPositive() {
			return fmt.Errorf("step price %s for %s: %w", v, q.securityID, apperrors.ErrNonPositiveParameter)
		}
		if q.stepPrice == nil || !v.Equal(*q.stepPrice) {
			sp := *v
			q.stepPrice = &sp
			q.recomputeMultiplier()
		}
	}

	if v := msg.LotMultiplier; v != nil {
		if !v.IsPositive() {
			return fmt.Errorf("lot multiplier %s for %s: %w", v, q.securityID, apperrors.ErrNonPositiveParameter)
		}
		if !v.Equal(q.lotMultiplier) {
			q.lotMultiplier = *v
			q.recomputeMultiplier()
		}
	}

	return nil
}

// SetLeverage assigns the account leverage for this instrument.
func (q *Queue) SetLeverage(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("leverage %s for %s: %w", v, q.securityID, apperrors.ErrNonPositiveParameter)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !v.Equal(q.leverage) {
		q.leverage = v
		q.recomputeMultiplier()
	}
	return nil
}

// Process applies one own trade. Opposite-direction volume is matched
// against open lots newest-first, crystallizing realized PnL; any leftover
// volume opens (or extends, or after a flip re-opens) a position in the
// trade's direction.
func (q *Queue) Process(side core.Side, price, volume decimal.Decimal, serverTime time.Time) (core.TradeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unrealizedDirty = true

	closed := decimal.Zero
	raw := decimal.Zero
	remaining := volume

	if len(q.lots) > 0 && q.openSide != side {
		for remaining.IsPositive() && len(q.lots) > 0 {
			top := &q.lots[len(q.lots)-1]

			matched := top.volume
			if remaining.LessThan(matched) {
				matched = remaining
			}

			diff := top.price.Sub(price).Mul(matched)
			if q.openSide == core.SideSell {
				raw = raw.Add(diff)
			} else {
				raw = raw.Sub(diff)
			}

			top.volume = top.volume.Sub(matched)
			remaining = remaining.Sub(matched)
			closed = closed.Add(matched)

			if top.volume.IsZero() {
				q.lots = q.lots[:len(q.lots)-1]
			}
		}
	}

	if remaining.IsPositive() {
		q.lots = append(q.lots, lot{price: price, volume: remaining})
		q.openSide = side
	}

	pnl := raw.Mul(q.multiplier)
	q.realizedPnL = q.realizedPnL.Add(pnl)

	return core.NewTradeResult(serverTime, closed, pnl)
}

// UnrealizedPnL marks the open lots against the preferred reference price:
// bid for a long position, ask for a short one, the last trade price when
// the preferred side is unknown. Without any reference price the value
// is zero. The result is cached until a trade or price change arrives.
func (q *Queue) UnrealizedPnL() decimal.Decimal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.unrealizedDirty {
		return q.unrealized
	}

	q.unrealized = q.computeUnrealized()
	q.unrealizedDirty = false
	return q.unrealized
}

func (q *Queue) computeUnrealized() decimal.Decimal {
	if len(q.lots) == 0 {
		return decimal.Zero
	}

	ref := q.bidPrice
	if q.openSide == core.SideSell {
		ref = q.askPrice
	}
	if ref == nil {
		ref = q.lastPrice
	}
	if ref == nil {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, l := range q.lots {
		diff := l.price.Sub(*ref).Mul(l.volume)
		if q.openSide == core.SideSell {
			sum = sum.Add(diff)
		} else {
			sum = sum.Sub(diff)
		}
	}
	return sum.Mul(q.multiplier)
}

// OnTick stores the last trade price from the tape.
func (q *Queue) OnTick(price decimal.Decimal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.setLast(price) {
		q.unrealizedDirty = true
	}
}

// OnCandleClose stores a candle close as the last known price.
func (q *Queue) OnCandleClose(price decimal.Decimal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.setLast(price) {
		q.unrealizedDirty = true
	}
}

// OnLevel1 stores the prices carried by a level-1 update.
func (q *Queue) OnLevel1(last, bid, ask *decimal.Decimal) {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	if last != nil {
		changed = q.setLast(*last) || changed
	}
	if bid != nil {
		changed = q.setBid(*bid) || changed
	}
	if ask != nil {
		changed = q.setAsk(*ask) || changed
	}
	if changed {
		q.unrealizedDirty = true
	}
}

// OnQuotes stores the best bid/ask of an order-book snapshot.
func (q *Queue) OnQuotes(bestBid, bestAsk *decimal.Decimal) {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	if bestBid != nil {
		changed = q.setBid(*bestBid) || changed
	}
	if bestAsk != nil {
		changed = q.setAsk(*bestAsk) || changed
	}
	if changed {
		q.unrealizedDirty = true
	}
}

// A fresh last price supersedes the stored bid/ask, and a fresh bid or ask
// supersedes the stored last price. Otherwise a position valued off a
// quote would keep being marked against a stale tape price and vice versa.

func (q *Queue) setLast(price decimal.Decimal) bool {
	changed := q.lastPrice == nil || !q.lastPrice.Equal(price)
	if q.bidPrice != nil || q.askPrice != nil {
		q.bidPrice = nil
		q.askPrice = nil
		changed = true
	}
	p := price
	q.lastPrice = &p
	return changed
}

func (q *Queue) setBid(price decimal.Decimal) bool {
	changed := q.bidPrice == nil || !q.bidPrice.Equal(price)
	if q.lastPrice != nil {
		q.lastPrice = nil
		changed = true
	}
	p := price
	q.bidPrice = &p
	return changed
}

func (q *Queue) setAsk(price decimal.Decimal) bool {
	changed := q.askPrice == nil || !q.askPrice.Equal(price)
	if q.lastPrice != nil {
		q.lastPrice = nil
		changed = true
	}
	p := price
	q.askPrice = &p
	return changed
}
