package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meridian/domain"
)

func TestRecordStopLossTripsAtThreshold(t *testing.T) {
	now := time.Now()
	var recent []domain.RecentStopLoss
	var until *time.Time

	recent, until = RecordStopLoss(recent, "AAA", now, 24, 3, 1)
	assert.Nil(t, until)
	recent, until = RecordStopLoss(recent, "BBB", now.Add(time.Minute), 24, 3, 1)
	assert.Nil(t, until)
	recent, until = RecordStopLoss(recent, "CCC", now.Add(2*time.Minute), 24, 3, 1)
	assert.NotNil(t, until, "third loss within the window should trip the breaker")
	assert.Len(t, recent, 3)
}

func TestRecordStopLossWindowExcludesOldLosses(t *testing.T) {
	now := time.Now()
	old := []domain.RecentStopLoss{
		{Timestamp: now.Add(-48 * time.Hour), Symbol: "OLD1"},
		{Timestamp: now.Add(-48 * time.Hour), Symbol: "OLD2"},
	}
	kept, until := RecordStopLoss(old, "NEW", now, 24, 3, 1)
	assert.Nil(t, until, "stale losses outside the window must not count toward the threshold")
	assert.Len(t, kept, 1)
}

// The circuit breaker blocks entries unless an early-clear condition is
// met after the minimum cooldown has elapsed.
func TestEvaluateBreakerBlocksWithinWindow(t *testing.T) {
	now := time.Now()
	opened := now.Add(-10 * time.Minute)
	until := now.Add(50 * time.Minute)
	d := EvaluateBreaker(&until, opened, now, 30, false, false)
	assert.True(t, d.Active)
}

func TestEvaluateBreakerEarlyClearAfterMinCooldown(t *testing.T) {
	now := time.Now()
	opened := now.Add(-35 * time.Minute)
	until := now.Add(25 * time.Minute)
	d := EvaluateBreaker(&until, opened, now, 30, false, true) // strong unheld candidate, momentum=75 analog
	assert.False(t, d.Active)
	assert.Equal(t, "early_clear_strong_candidate", d.Reason)
}

func TestEvaluateBreakerNoEarlyClearBeforeMinCooldown(t *testing.T) {
	now := time.Now()
	opened := now.Add(-20 * time.Minute) // under the 30min minimum
	until := now.Add(40 * time.Minute)
	d := EvaluateBreaker(&until, opened, now, 30, true, true)
	assert.True(t, d.Active, "early-clear conditions don't apply before the minimum cooldown elapses")
}

func TestEvaluateBreakerExpiresByTime(t *testing.T) {
	now := time.Now()
	until := now.Add(-time.Second)
	d := EvaluateBreaker(&until, now.Add(-2*time.Hour), now, 30, false, false)
	assert.False(t, d.Active)
	assert.Equal(t, "expired_or_unset", d.Reason)
}
