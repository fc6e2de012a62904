package equity

import (
	"testing"

	"meridian/config"
)

func TestStalenessBelowMinHoldNeverStale(t *testing.T) {
	cfg := config.DefaultConfig()
	score, stale := Staleness(cfg, 1, -50, 100, 0)
	if stale || score != 0 {
		t.Fatalf("score=%v stale=%v, want 0/false below stale_min_hold_hours", score, stale)
	}
}

func TestStalenessTimeTermAtMaxHold(t *testing.T) {
	cfg := config.DefaultConfig()
	score, _ := Staleness(cfg, cfg.StaleMaxHoldDays*24, 10, 100, 100)
	if score < 40 {
		t.Fatalf("score=%v, want at least the full +40 time term at max hold", score)
	}
}

func TestStalenessSocialDecayTriggersStale(t *testing.T) {
	cfg := config.DefaultConfig()
	// Full time term, no price penalty, heavy volume decay → 40 + 30 = exactly 70, the stale threshold.
	score, stale := Staleness(cfg, cfg.StaleMaxHoldDays*24, 5, 100, 1)
	if !stale {
		t.Fatalf("score=%v, want stale=true with heavy social decay at max hold", score)
	}
}

func TestStalenessMaxHoldWithWeakGainForcesStale(t *testing.T) {
	cfg := config.DefaultConfig()
	// Low score in isolation but max hold + gain below stale_min_gain_pct
	// forces stale via the OR clause.
	_, stale := Staleness(cfg, cfg.StaleMaxHoldDays*24, cfg.StaleMinGainPct-1, 100, 100)
	if !stale {
		t.Fatalf("expected forced stale at max hold with weak gain")
	}
}
