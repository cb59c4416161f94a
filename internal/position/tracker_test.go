package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnl_engine/internal/core"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func registerOrder(t *testing.T, tr *Tracker, txID int64, side core.Side, volume string) {
	t.Helper()
	_, err := tr.ProcessMessage(&core.OrderRegister{
		TransactionID: txID,
		SecurityID:    "TEST",
		PortfolioName: "pf",
		Side:          side,
		Volume:        d(volume),
	})
	require.NoError(t, err)
}

func balanceReport(txID int64, balance string, state core.OrderState) *core.Execution {
	return &core.Execution{
		Class:                 core.ClassTransactions,
		OriginalTransactionID: txID,
		SecurityID:            "TEST",
		PortfolioName:         "pf",
		Balance:               dp(balance),
		OrderState:            state,
		ServerTime:            time.Now(),
	}
}

func tradeReport(txID, tradeID int64, side core.Side, volume string) *core.Execution {
	return &core.Execution{
		Class:                 core.ClassTransactions,
		OriginalTransactionID: txID,
		SecurityID:            "TEST",
		PortfolioName:         "pf",
		Side:                  side,
		TradeID:               tradeID,
		TradePrice:            dp("100"),
		TradeVolume:           dp(volume),
		ServerTime:            time.Now(),
	}
}

func TestByOrderBalanceShrink(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(balanceReport(1, "6", core.OrderStateActive))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "4", upd.Value.String())

	upd, err = tr.ProcessMessage(balanceReport(1, "0", core.OrderStateDone))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "10", upd.Value.String())

	assert.Equal(t, "10", tr.GetPosition("TEST", "pf").String())
}

func TestByOrderSellShrinksPosition(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideSell, "5")

	upd, err := tr.ProcessMessage(balanceReport(1, "0", core.OrderStateDone))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "-5", upd.Value.String())
}

func TestByOrderUnchangedBalanceIsNoOp(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(balanceReport(1, "10", core.OrderStateActive))
	require.NoError(t, err)
	assert.Nil(t, upd)

	// A balance above the tracked one must not move the position either.
	_, err = tr.ProcessMessage(balanceReport(1, "4", core.OrderStateActive))
	require.NoError(t, err)
	upd, err = tr.ProcessMessage(balanceReport(1, "7", core.OrderStateActive))
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.Equal(t, "6", tr.GetPosition("TEST", "pf").String())
}

func TestByOrderNegativeBalanceSkipped(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(balanceReport(1, "-1", core.OrderStateActive))
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.True(t, tr.GetPosition("TEST", "pf").IsZero())
}

func TestByOrderIgnoresFillVolumes(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(tradeReport(1, 1, core.SideBuy, "4"))
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.True(t, tr.GetPosition("TEST", "pf").IsZero())
}

func TestByTradeFillVolumes(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(tradeReport(1, 1, core.SideBuy, "4"))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "4", upd.Value.String())

	upd, err = tr.ProcessMessage(tradeReport(1, 2, core.SideSell, "1"))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "3", upd.Value.String())
}

func TestByTradeZeroVolumeSkipped(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	upd, err := tr.ProcessMessage(tradeReport(1, 1, core.SideBuy, "0"))
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.True(t, tr.GetPosition("TEST", "pf").IsZero())
}

func TestByTradeFallsBackToMessageKeys(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)

	// No registered order: the fill's own security and portfolio apply.
	msg := tradeReport(99, 1, core.SideBuy, "2")
	msg.SecurityID = "OTHER"
	msg.PortfolioName = "other_pf"

	upd, err := tr.ProcessMessage(msg)
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "OTHER", upd.SecurityID)
	assert.Equal(t, "2", tr.GetPosition("OTHER", "other_pf").String())
}

func TestFinalStateDropsOrderRecord(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	_, err := tr.ProcessMessage(balanceReport(1, "0", core.OrderStateDone))
	require.NoError(t, err)

	// A late duplicate for the completed order finds no record.
	upd, err := tr.ProcessMessage(balanceReport(1, "0", core.OrderStateDone))
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.Equal(t, "10", tr.GetPosition("TEST", "pf").String())
}

func TestOrderReplaceTracksNewTransaction(t *testing.T) {
	tr := NewTracker(core.PositionByOrder, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	_, err := tr.ProcessMessage(&core.OrderReplace{
		TransactionID:         2,
		OriginalTransactionID: 1,
		SecurityID:            "TEST",
		PortfolioName:         "pf",
		Side:                  core.SideBuy,
		Volume:                d("8"),
	})
	require.NoError(t, err)

	upd, err := tr.ProcessMessage(balanceReport(2, "3", core.OrderStateActive))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "5", upd.Value.String())
}

func TestPortfolioKeyCaseInsensitive(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)

	first := tradeReport(1, 1, core.SideBuy, "2")
	first.PortfolioName = "Alpha"
	second := tradeReport(2, 2, core.SideBuy, "3")
	second.PortfolioName = "ALPHA"

	_, err := tr.ProcessMessage(first)
	require.NoError(t, err)
	_, err = tr.ProcessMessage(second)
	require.NoError(t, err)

	assert.Equal(t, "5", tr.GetPosition("TEST", "alpha").String())
	assert.Len(t, tr.Positions(), 1)
}

func TestMarketDataExecutionsIgnored(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)

	msg := tradeReport(1, 1, core.SideBuy, "2")
	msg.Class = core.ClassTicks

	upd, err := tr.ProcessMessage(msg)
	require.NoError(t, err)
	assert.Nil(t, upd)
	assert.Empty(t, tr.Positions())
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(core.PositionByTrade, nil)
	registerOrder(t, tr, 1, core.SideBuy, "10")

	_, err := tr.ProcessMessage(tradeReport(1, 1, core.SideBuy, "4"))
	require.NoError(t, err)
	require.Equal(t, "4", tr.GetPosition("TEST", "pf").String())

	_, err = tr.ProcessMessage(&core.Reset{})
	require.NoError(t, err)

	assert.Empty(t, tr.Positions())
	assert.True(t, tr.GetPosition("TEST", "pf").IsZero())
}
