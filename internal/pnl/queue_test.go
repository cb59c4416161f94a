package pnl

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnl_engine/internal/core"
	"pnl_engine/pkg/apperrors"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	dec := decimal.RequireFromString(v)
	return &dec
}

func mustProcess(t *testing.T, q *Queue, side core.Side, price, volume string) core.TradeResult {
	t.Helper()
	res, err := q.Process(side, d(price), d(volume), time.Now())
	require.NoError(t, err)
	return res
}

func TestQueueOpenThenClose(t *testing.T) {
	q := NewQueue("SBER@TQBR")
	require.NoError(t, q.UpdateSecurity(&core.Level1Change{
		SecurityID: "SBER@TQBR",
		PriceStep:  dp("1"),
		StepPrice:  dp("1"),
	}))

	res := mustProcess(t, q, core.SideBuy, "10", "1")
	assert.Equal(t, "0", res.PnL.String())
	assert.Equal(t, "0", res.ClosedVolume.String())
	assert.Equal(t, "0", q.RealizedPnL().String())

	res = mustProcess(t, q, core.SideSell, "12", "1")
	assert.Equal(t, "2", res.PnL.String())
	assert.Equal(t, "1", res.ClosedVolume.String())
	assert.Equal(t, "2", q.RealizedPnL().String())

	// Flat again: a fresh tape price must not produce unrealized PnL.
	q.OnTick(d("11"))
	assert.Equal(t, "0", q.UnrealizedPnL().String())
}

func TestQueueLIFOCostBasis(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideBuy, "100", "10")
	mustProcess(t, q, core.SideBuy, "110", "5")

	// The close must match against the most recently opened lot (5@110),
	// not the older 10@100.
	res := mustProcess(t, q, core.SideSell, "120", "5")
	assert.Equal(t, "5", res.ClosedVolume.String())
	assert.Equal(t, "50", res.PnL.String())

	// The next close reaches the remaining 10@100.
	res = mustProcess(t, q, core.SideSell, "120", "10")
	assert.Equal(t, "10", res.ClosedVolume.String())
	assert.Equal(t, "200", res.PnL.String())
	assert.Equal(t, "250", q.RealizedPnL().String())
}

func TestQueueMultiplierScaling(t *testing.T) {
	q := NewQueue("TEST")
	require.NoError(t, q.UpdateSecurity(&core.Level1Change{
		SecurityID: "TEST",
		PriceStep:  dp("1"),
		StepPrice:  dp("2"),
	}))

	mustProcess(t, q, core.SideBuy, "100", "5")
	res := mustProcess(t, q, core.SideSell, "110", "5")

	// Raw 50, scaled by stepPrice/priceStep = 2.
	assert.Equal(t, "100", res.PnL.String())
}

func TestQueueShortPositionSign(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideSell, "100", "3")
	res := mustProcess(t, q, core.SideBuy, "90", "3")

	assert.Equal(t, "30", res.PnL.String())
	assert.Equal(t, "3", res.ClosedVolume.String())
}

func TestQueueFlipThroughFlat(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideBuy, "100", "10")

	// One trade both closes the long and opens a reversed short.
	res := mustProcess(t, q, core.SideSell, "110", "15")
	assert.Equal(t, "10", res.ClosedVolume.String())
	assert.Equal(t, "100", res.PnL.String())

	q.OnTick(d("105"))
	// Short 5@110 marked at 105.
	assert.Equal(t, "25", q.UnrealizedPnL().String())
}

func TestQueueUnrealizedReferencePrice(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideBuy, "100", "1")

	// No price known at all.
	assert.Equal(t, "0", q.UnrealizedPnL().String())

	q.OnTick(d("110"))
	assert.Equal(t, "10", q.UnrealizedPnL().String())

	// A quote supersedes the tape: a long position is marked at the bid.
	q.OnQuotes(dp("130"), dp("131"))
	assert.Equal(t, "30", q.UnrealizedPnL().String())

	// Flip short: the ask side takes over.
	mustProcess(t, q, core.SideSell, "130", "2")
	q.OnQuotes(dp("124"), dp("125"))
	assert.Equal(t, "5", q.UnrealizedPnL().String())
}

func TestQueueLastPriceSupersedesQuotes(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideBuy, "100", "1")

	q.OnQuotes(dp("130"), dp("131"))
	assert.Equal(t, "30", q.UnrealizedPnL().String())

	// A newer candle close must not lose against the stale bid.
	q.OnCandleClose(d("150"))
	assert.Equal(t, "50", q.UnrealizedPnL().String())

	// And a newer quote must supersede the candle close again.
	q.OnQuotes(dp("120"), dp("121"))
	assert.Equal(t, "20", q.UnrealizedPnL().String())
}

func TestQueueUnrealizedCacheCoherence(t *testing.T) {
	q := NewQueue("TEST")

	mustProcess(t, q, core.SideBuy, "100", "2")
	q.OnTick(d("105"))

	first := q.UnrealizedPnL()
	second := q.UnrealizedPnL()
	assert.True(t, first.Equal(second))

	q.OnTick(d("106"))
	assert.Equal(t, "12", q.UnrealizedPnL().String())

	// A trade invalidates the cache as well.
	mustProcess(t, q, core.SideBuy, "106", "1")
	assert.Equal(t, "12", q.UnrealizedPnL().String())
}

func TestQueueRejectsNonPositiveEconomics(t *testing.T) {
	q := NewQueue("TEST")

	err := q.UpdateSecurity(&core.Level1Change{SecurityID: "TEST", PriceStep: dp("0")})
	assert.True(t, errors.Is(err, apperrors.ErrNonPositiveParameter))

	err = q.UpdateSecurity(&core.Level1Change{SecurityID: "TEST", StepPrice: dp("-1")})
	assert.True(t, errors.Is(err, apperrors.ErrNonPositiveParameter))

	err = q.UpdateSecurity(&core.Level1Change{SecurityID: "TEST", LotMultiplier: dp("0")})
	assert.True(t, errors.Is(err, apperrors.ErrNonPositiveParameter))

	err = q.SetLeverage(d("0"))
	assert.True(t, errors.Is(err, apperrors.ErrNonPositiveParameter))
}

func TestQueueLeverageScalesPnL(t *testing.T) {
	q := NewQueue("TEST")
	require.NoError(t, q.SetLeverage(d("3")))

	mustProcess(t, q, core.SideBuy, "100", "1")
	res := mustProcess(t, q, core.SideSell, "110", "1")
	assert.Equal(t, "30", res.PnL.String())
}
