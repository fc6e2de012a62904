package dex

// DrawdownUpdate recomputes the peak/drawdown-pause pair after a new
// totalValue observation. Drawdown halt blocks new entries once the
// portfolio falls maxDrawdownPct below its all-time peak; a new high
// clears the pause unconditionally.
func DrawdownUpdate(peakValue, totalValue, maxDrawdownPct float64, currentlyPaused bool) (newPeak float64, drawdownPct float64, paused bool) {
	newPeak = peakValue
	if totalValue > newPeak {
		newPeak = totalValue
	}

	if newPeak <= 0 {
		return newPeak, 0, currentlyPaused
	}
	drawdownPct = (newPeak - totalValue) / newPeak * 100

	paused = currentlyPaused
	if totalValue >= newPeak {
		paused = false
	} else if drawdownPct >= maxDrawdownPct {
		paused = true
	}
	return newPeak, drawdownPct, paused
}
