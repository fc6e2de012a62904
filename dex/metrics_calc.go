package dex

import (
	"meridian/domain"
	"meridian/pkg/formulas"
)

// TradingMetrics is derived entirely from trade history on every read; no
// running sum is ever trusted, per the ledger's "derived on read"
// invariant. Calling this twice on the same history yields identical
// results regardless of wall-clock time (metrics idempotence).
type TradingMetrics struct {
	TotalTrades    int
	WinRate        float64
	AvgWinPct      float64
	AvgLossPct     float64
	Expectancy     float64
	ProfitFactor   float64
	Sharpe         *float64
}

// CalculateDexTradingMetrics computes TradingMetrics from the full trade
// history. It depends only on history — no state counters, no clock.
func CalculateDexTradingMetrics(history []domain.DexTradeRecord) TradingMetrics {
	m := TradingMetrics{TotalTrades: len(history)}
	if len(history) == 0 {
		return m
	}

	var wins, losses int
	var sumWinPct, sumLossPct, sumWinSol, sumLossSol float64
	returns := make([]float64, 0, len(history))

	for _, t := range history {
		returns = append(returns, t.PnLPct/100)
		if t.PnLSol >= 0 {
			wins++
			sumWinPct += t.PnLPct
			sumWinSol += t.PnLSol
		} else {
			losses++
			sumLossPct += t.PnLPct
			sumLossSol += -t.PnLSol
		}
	}

	m.WinRate = float64(wins) / float64(len(history))
	if wins > 0 {
		m.AvgWinPct = sumWinPct / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = sumLossPct / float64(losses) // negative
	}

	avgLossMagnitude := formulas.Abs(m.AvgLossPct)
	m.Expectancy = m.WinRate*m.AvgWinPct - (1-m.WinRate)*avgLossMagnitude

	if sumLossSol > 0 {
		m.ProfitFactor = sumWinSol / sumLossSol
	} else if sumWinSol > 0 {
		m.ProfitFactor = sumWinSol // no losses yet: report gross wins as the factor
	}

	m.Sharpe = formulas.CalculateSharpeRatio(returns)
	return m
}

// ReplayStreakAndDrawdown recomputes current/ max loss streak and max
// drawdown purely from history, for the "streak roundtrip" property: it
// must reproduce whatever updateStreakAndDrawdown accumulated incrementally
// tick by tick.
func ReplayStreakAndDrawdown(history []domain.DexTradeRecord, startingBalance float64) (maxConsecutiveLosses, currentLossStreak int, maxDrawdownPct float64) {
	balance := startingBalance
	peak := startingBalance
	values := []float64{startingBalance}

	streak := 0
	maxStreak := 0
	for _, t := range history {
		balance += t.PnLSol // a closed trade moves the book by its pnl, already net of close gas
		values = append(values, balance)

		if t.PnLSol < 0 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
		if balance > peak {
			peak = balance
		}
	}

	if dd := formulas.CalculateMaxDrawdown(values); dd != nil {
		maxDrawdownPct = *dd * 100
	}
	return maxStreak, streak, maxDrawdownPct
}
