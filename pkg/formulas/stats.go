// Package formulas holds the small set of statistics the DEX ledger and
// equity trader derive on read from trade history — never trusted as
// running sums.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts a price series to percentage returns.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// CalculateSharpeRatio is mean(returns) / stdev(returns), not annualized:
// the DEX ledger's trade-level returns have no fixed period, so a
// periods-per-year factor would fabricate a cadence the data doesn't have.
func CalculateSharpeRatio(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	sd := StdDev(returns)
	if sd == 0 {
		return nil
	}
	sharpe := Mean(returns) / sd
	return &sharpe
}

// CalculateMaxDrawdown returns the maximum peak-to-trough fractional
// decline in a value series, or nil if there's not enough history.
func CalculateMaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	maxDD := 0.0
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return &maxDD
}

// Abs is a small helper kept local to avoid importing math.Abs at every
// call site that only needs float64 absolute value.
func Abs(f float64) float64 {
	return math.Abs(f)
}
