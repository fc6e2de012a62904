package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meridian/domain"
)

func sampleHistory() []domain.DexTradeRecord {
	now := time.Now()
	return []domain.DexTradeRecord{
		{Symbol: "A", EntryStakeSol: 1.0, PnLSol: 0.3, PnLPct: 30, EntryTime: now, ExitTime: now.Add(time.Minute)},
		{Symbol: "B", EntryStakeSol: 1.0, PnLSol: -0.2, PnLPct: -20, EntryTime: now, ExitTime: now.Add(2 * time.Minute)},
		{Symbol: "C", EntryStakeSol: 1.0, PnLSol: 0.5, PnLPct: 50, EntryTime: now, ExitTime: now.Add(3 * time.Minute)},
	}
}

// Calling the calculator twice on the same history yields identical
// results: the metrics depend only on the history, never on wall clock.
func TestCalculateDexTradingMetricsIsIdempotent(t *testing.T) {
	history := sampleHistory()
	a := CalculateDexTradingMetrics(history)
	b := CalculateDexTradingMetrics(history)
	assert.Equal(t, a, b)
}

func TestCalculateDexTradingMetricsBasics(t *testing.T) {
	m := CalculateDexTradingMetrics(sampleHistory())
	assert.Equal(t, 3, m.TotalTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 40.0, m.AvgWinPct, 1e-9)
	assert.InDelta(t, -20.0, m.AvgLossPct, 1e-9)
}

func TestCalculateDexTradingMetricsEmptyHistory(t *testing.T) {
	m := CalculateDexTradingMetrics(nil)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
}

// Replaying history reproduces the loss streak an incremental
// tick-by-tick update would have produced.
func TestReplayStreakAndDrawdownRoundtrip(t *testing.T) {
	now := time.Now()
	history := []domain.DexTradeRecord{
		{EntryStakeSol: 1.0, PnLSol: -0.1, ExitTime: now},
		{EntryStakeSol: 1.0, PnLSol: -0.1, ExitTime: now.Add(time.Minute)},
		{EntryStakeSol: 1.0, PnLSol: 0.5, ExitTime: now.Add(2 * time.Minute)},
		{EntryStakeSol: 1.0, PnLSol: -0.1, ExitTime: now.Add(3 * time.Minute)},
	}
	maxStreak, currentStreak, _ := ReplayStreakAndDrawdown(history, 10.0)
	assert.Equal(t, 2, maxStreak)
	assert.Equal(t, 1, currentStreak)
}
