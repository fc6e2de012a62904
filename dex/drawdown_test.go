package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The drawdown halt blocks entries and clears only on a new high.
func TestDrawdownPausesAtThreshold(t *testing.T) {
	peak, ddPct, paused := DrawdownUpdate(10.0, 6.4, 35, false)
	assert.Equal(t, 10.0, peak)
	assert.InDelta(t, 36.0, ddPct, 1e-9)
	assert.True(t, paused)
}

func TestDrawdownStaysUnpausedBelowThreshold(t *testing.T) {
	_, _, paused := DrawdownUpdate(10.0, 7.0, 35, false)
	assert.False(t, paused)
}

func TestDrawdownClearsOnlyOnNewHigh(t *testing.T) {
	// still paused and still below the old peak: pause persists.
	peak, _, paused := DrawdownUpdate(10.0, 8.0, 35, true)
	assert.Equal(t, 10.0, peak)
	assert.True(t, paused, "recovering but not past the old peak must not clear the pause")

	// a genuine new high clears it unconditionally.
	peak, _, paused = DrawdownUpdate(10.0, 10.5, 35, true)
	assert.Equal(t, 10.5, peak)
	assert.False(t, paused)
}
