// Package equity implements the equity/crypto trader: exit-first position
// management, staleness scoring, signal-driven entries with LLM gating,
// PDT guarding, and the options sub-flow.
package equity

import (
	"time"

	"meridian/config"
)

// Staleness scores a held position in [0,100] from three independent
// terms: time held, unrealized loss or weak gain, and social-interest
// decay. It never errors; every input is already in hand from the position
// entry and current quote.
func Staleness(cfg config.Config, holdHours, plPct, entryVolume, currentVolume float64) (score float64, stale bool) {
	if holdHours < cfg.StaleMinHoldHours {
		return 0, false
	}
	holdDays := holdHours / 24

	// Time term: 0 at stale_mid_hold_days, +40 at stale_max_hold_days,
	// linear in between; flat once past the max.
	timeScore := 0.0
	switch {
	case holdDays >= cfg.StaleMaxHoldDays:
		timeScore = 40
	case holdDays > cfg.StaleMidHoldDays:
		span := cfg.StaleMaxHoldDays - cfg.StaleMidHoldDays
		if span > 0 {
			timeScore = 40 * (holdDays - cfg.StaleMidHoldDays) / span
		}
	}
	score += timeScore

	// Price term.
	if plPct < 0 {
		loss := -plPct * 3
		if loss > 30 {
			loss = 30
		}
		score += loss
	} else if plPct < cfg.StaleMidMinGainPct && holdDays >= cfg.StaleMidHoldDays {
		score += 15
	}

	// Social decay term.
	if entryVolume > 0 {
		ratio := currentVolume / entryVolume
		switch {
		case ratio <= cfg.StaleSocialVolumeDecay:
			score += 30
		case ratio <= 0.5:
			score += 15
		}
	}

	stale = score >= cfg.StaleScoreThreshold || (holdDays >= cfg.StaleMaxHoldDays && plPct < cfg.StaleMinGainPct)
	return score, stale
}

// HoldHours is a small convenience wrapper so callers don't repeat the
// time.Since/Hours() dance at every call site.
func HoldHours(entryTime, now time.Time) float64 {
	return now.Sub(entryTime).Hours()
}
