package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnl_engine/internal/core"
)

func ownTrade(securityID string, tradeID int64, side core.Side, price, volume string) *core.Execution {
	return &core.Execution{
		Class:      core.ClassTransactions,
		SecurityID: securityID,
		Side:       side,
		TradeID:    tradeID,
		TradePrice: dp(price),
		TradeVolume: dp(volume),
		ServerTime: time.Now(),
	}
}

func TestLedgerRealizedFlow(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	isNew, res, err := ledger.ProcessOwnTrade(ownTrade("TEST", 1, core.SideBuy, "10", "1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "0", res.PnL.String())
	assert.Equal(t, "0", ledger.RealizedPnL().String())

	isNew, res, err = ledger.ProcessOwnTrade(ownTrade("TEST", 2, core.SideSell, "15", "1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "5", res.PnL.String())
	assert.Equal(t, "5", ledger.RealizedPnL().String())
	assert.Equal(t, "0", ledger.UnrealizedPnL().String())
	assert.Equal(t, "5", ledger.PnL().String())
}

func TestLedgerTradeIdempotence(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	_, _, err := ledger.ProcessOwnTrade(ownTrade("TEST", 1, core.SideBuy, "100", "10"))
	require.NoError(t, err)

	closing := ownTrade("TEST", 2, core.SideSell, "110", "10")
	isNew, first, err := ledger.ProcessOwnTrade(closing)
	require.NoError(t, err)
	require.True(t, isNew)
	assert.Equal(t, "100", first.PnL.String())

	// Redelivery returns the stored result and counts nothing twice.
	isNew, second, err := ledger.ProcessOwnTrade(closing)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.True(t, first.PnL.Equal(second.PnL))
	assert.True(t, first.ClosedVolume.Equal(second.ClosedVolume))
	assert.Equal(t, "100", ledger.RealizedPnL().String())
}

func TestLedgerStringIdentityCaseInsensitive(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	trade := ownTrade("TEST", 0, core.SideBuy, "100", "1")
	trade.TradeStringID = "Fill-A"
	isNew, _, err := ledger.ProcessOwnTrade(trade)
	require.NoError(t, err)
	assert.True(t, isNew)

	redelivery := ownTrade("TEST", 0, core.SideBuy, "100", "1")
	redelivery.TradeStringID = "FILL-a"
	isNew, _, err = ledger.ProcessOwnTrade(redelivery)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestLedgerTradeWithoutIdentityIsNoOp(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	trade := ownTrade("TEST", 0, core.SideBuy, "100", "1")
	isNew, res, err := ledger.ProcessOwnTrade(trade)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "0", res.PnL.String())
	assert.Equal(t, "0", ledger.RealizedPnL().String())
}

func TestLedgerMarketDataNeverCreatesQueue(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	touched, err := ledger.ProcessMarketData(&core.Level1Change{
		SecurityID:     "UNKNOWN",
		LastTradePrice: dp("100"),
	})
	require.NoError(t, err)
	assert.False(t, touched)
	assert.Equal(t, "0", ledger.UnrealizedPnL().String())
}

func TestLedgerRoutesMarketDataToOwnedQueue(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	_, _, err := ledger.ProcessOwnTrade(ownTrade("TEST", 1, core.SideBuy, "100", "2"))
	require.NoError(t, err)

	touched, err := ledger.ProcessMarketData(&core.Candle{SecurityID: "TEST", ClosePrice: d("110")})
	require.NoError(t, err)
	assert.True(t, touched)
	assert.Equal(t, "20", ledger.UnrealizedPnL().String())

	// Instrument identity compares case-insensitively.
	touched, err = ledger.ProcessMarketData(&core.Candle{SecurityID: "test", ClosePrice: d("115")})
	require.NoError(t, err)
	assert.True(t, touched)
	assert.Equal(t, "30", ledger.UnrealizedPnL().String())
}

func TestLedgerMoneyLeverageBroadcast(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	_, _, err := ledger.ProcessOwnTrade(ownTrade("AAA", 1, core.SideBuy, "100", "1"))
	require.NoError(t, err)
	_, _, err = ledger.ProcessOwnTrade(ownTrade("BBB", 2, core.SideBuy, "200", "1"))
	require.NoError(t, err)

	_, err = ledger.ProcessMarketData(&core.Candle{SecurityID: "AAA", ClosePrice: d("110")})
	require.NoError(t, err)
	_, err = ledger.ProcessMarketData(&core.Candle{SecurityID: "BBB", ClosePrice: d("210")})
	require.NoError(t, err)
	assert.Equal(t, "20", ledger.UnrealizedPnL().String())

	// Account-level signal doubles every instrument's multiplier.
	touched, err := ledger.ProcessMarketData(&core.PositionChange{
		PortfolioName: "pf",
		Leverage:      dp("2"),
		IsMoney:       true,
	})
	require.NoError(t, err)
	assert.True(t, touched)
	assert.Equal(t, "40", ledger.UnrealizedPnL().String())
}

func TestLedgerReset(t *testing.T) {
	ledger := NewPortfolioLedger("pf", nil)

	closing := ownTrade("TEST", 2, core.SideSell, "110", "10")
	_, _, err := ledger.ProcessOwnTrade(ownTrade("TEST", 1, core.SideBuy, "100", "10"))
	require.NoError(t, err)
	_, _, err = ledger.ProcessOwnTrade(closing)
	require.NoError(t, err)
	require.Equal(t, "100", ledger.RealizedPnL().String())

	ledger.Reset()

	assert.Equal(t, "0", ledger.RealizedPnL().String())
	assert.Equal(t, "0", ledger.UnrealizedPnL().String())

	// A previously seen trade id is no longer recognized as a duplicate.
	isNew, _, err := ledger.ProcessOwnTrade(closing)
	require.NoError(t, err)
	assert.True(t, isNew)
}
