package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meridian/domain"
)

// Price recovery unlocks re-entry before the wall-clock fallback, and
// momentum-based re-entry requires the minimum elapsed time.
func TestCooldownReentryViaPriceRecovery(t *testing.T) {
	now := time.Now()
	cd := NewCooldown(1.0, now, 24)
	recovered := 1.0 * 1.16 // 16% above exit, past the 15% recovery threshold
	assert.True(t, CanReenter(cd, recovered, 0, 15, 70, now.Add(time.Minute)))
}

func TestCooldownBlocksReentryBelowRecoveryAndMomentum(t *testing.T) {
	now := time.Now()
	cd := NewCooldown(1.0, now, 24)
	assert.False(t, CanReenter(cd, 1.05, 50, 15, 70, now.Add(time.Minute)))
}

func TestCooldownMomentumReentryRequiresMinElapsed(t *testing.T) {
	now := time.Now()
	cd := NewCooldown(1.0, now, 24)
	// strong momentum but too soon
	assert.False(t, CanReenter(cd, 1.0, 80, 15, 70, now.Add(time.Minute)))
	// strong momentum after the 5-minute minimum
	assert.True(t, CanReenter(cd, 1.0, 80, 15, 70, now.Add(6*time.Minute)))
}

func TestCooldownFallbackExpiryAlwaysUnlocks(t *testing.T) {
	now := time.Now()
	cd := NewCooldown(1.0, now, 24)
	assert.True(t, CanReenter(cd, 0.5, 0, 15, 70, now.Add(25*time.Hour)))
}

func TestPruneCooldownsDropsEntriesOlderThan24h(t *testing.T) {
	now := time.Now()
	cooldowns := map[string]domain.StopLossCooldown{
		"fresh": NewCooldown(1.0, now.Add(-1*time.Hour), 24),
		"stale": NewCooldown(1.0, now.Add(-25*time.Hour), 24),
	}
	PruneCooldowns(cooldowns, now)
	_, freshOK := cooldowns["fresh"]
	_, staleOK := cooldowns["stale"]
	assert.True(t, freshOK)
	assert.False(t, staleOK)
}
