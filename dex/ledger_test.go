package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/config"
	"meridian/domain"
)

func newTestState(t *testing.T) *domain.AgentState {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DexStartingBalanceSol = 10
	cfg.GasFeeSol = 0.001
	return domain.NewAgentState(cfg)
}

// The book must always reconcile: stake still deployed plus the cash
// balance equals the starting balance plus realized pnl (net of close-side
// gas) minus the open-side gas paid on every entry.
func TestLedgerBalanceInvariant(t *testing.T) {
	state := newTestState(t)
	ledger := NewLedger(state)
	startingBalance := state.DexPaperBalanceSol
	now := time.Now()

	require.NoError(t, ledger.Open(domain.DexPosition{
		TokenAddress: "tokenA", Symbol: "AAA", EntryPrice: 1.0, EntryStakeSol: 1.0, EntryTime: now,
	}, 0.001, 200))
	require.NoError(t, ledger.Open(domain.DexPosition{
		TokenAddress: "tokenB", Symbol: "BBB", EntryPrice: 2.0, EntryStakeSol: 2.0, EntryTime: now,
	}, 0.001, 200))

	_, err := ledger.Close("tokenA", 1.5, domain.ExitTakeProfit, now.Add(time.Minute), 0.001, 200)
	require.NoError(t, err)

	var totalStake, totalPnL float64
	for _, pos := range state.DexPositions {
		totalStake += pos.EntryStakeSol
	}
	for _, rec := range state.DexTradeHistory {
		totalPnL += rec.PnLSol
	}
	openGas := 0.001 * float64(len(state.DexPositions)+len(state.DexTradeHistory))

	lhs := totalStake + state.DexPaperBalanceSol
	rhs := startingBalance + totalPnL - openGas
	assert.InDelta(t, rhs, lhs, 1e-9)
}

// Closing at 1.5x the entry price with no slippage must realize +50% on
// the stake, less one close-side gas fee, regardless of the SOL/USD rate
// used to size the token amount.
func TestLedgerCloseRealizesPriceRatio(t *testing.T) {
	state := newTestState(t)
	ledger := NewLedger(state)
	now := time.Now()

	require.NoError(t, ledger.Open(domain.DexPosition{
		TokenAddress: "tokenA", Symbol: "AAA", EntryPrice: 2.0, EntryStakeSol: 1.0, EntryTime: now,
	}, 0.001, 150))

	rec, err := ledger.Close("tokenA", 3.0, domain.ExitTakeProfit, now.Add(time.Minute), 0.001, 150)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, rec.PnLPct, 1e-9)
	assert.InDelta(t, 0.5-0.001, rec.PnLSol, 1e-9)
}

func TestLedgerOpenRejectsDuplicateToken(t *testing.T) {
	state := newTestState(t)
	ledger := NewLedger(state)
	now := time.Now()

	require.NoError(t, ledger.Open(domain.DexPosition{
		TokenAddress: "tokenA", Symbol: "AAA", EntryPrice: 1.0, EntryStakeSol: 1.0, EntryTime: now,
	}, 0.001, 200))

	err := ledger.Open(domain.DexPosition{
		TokenAddress: "tokenA", Symbol: "AAA", EntryPrice: 1.0, EntryStakeSol: 1.0, EntryTime: now,
	}, 0.001, 200)
	assert.Error(t, err, "no duplicate token_address among open positions")
}

func TestLedgerOpenRejectsInsufficientBalance(t *testing.T) {
	state := newTestState(t)
	ledger := NewLedger(state)
	err := ledger.Open(domain.DexPosition{
		TokenAddress: "tokenA", Symbol: "AAA", EntryPrice: 1.0, EntryStakeSol: 999, EntryTime: time.Now(),
	}, 0.001, 200)
	assert.Error(t, err)
}

func TestPeakPriceMonotonicNonDecreasing(t *testing.T) {
	pos := domain.DexPosition{EntryPrice: 1.0, PeakPrice: 1.0}
	pos.BumpPeak(1.2)
	assert.Equal(t, 1.2, pos.PeakPrice)
	pos.BumpPeak(0.9) // a dip must never lower the peak
	assert.Equal(t, 1.2, pos.PeakPrice)
	pos.BumpPeak(1.5)
	assert.Equal(t, 1.5, pos.PeakPrice)
}

func TestConcentrationCapReducesOversizedStake(t *testing.T) {
	// A 1.0 SOL candidate against a 1.0 SOL portfolio under a 40% cap
	// must come back reduced to 0.4 SOL.
	reduced, wasReduced := ConcentrationCap(1.0, 1.0, 40)
	assert.True(t, wasReduced)
	assert.InDelta(t, 0.4, reduced, 1e-9)
}

func TestConcentrationCapLeavesFittingStakeAlone(t *testing.T) {
	reduced, wasReduced := ConcentrationCap(0.2, 1.0, 40)
	assert.False(t, wasReduced)
	assert.InDelta(t, 0.2, reduced, 1e-9)
}
