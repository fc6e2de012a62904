package crisis

import (
	"context"
	"fmt"
	"time"

	"meridian/config"
	"meridian/domain"
	"meridian/logger"
)

// Monitor scores fetched indicators into a CrisisLevel and applies that
// level's effects to the rest of AgentState. It never mutates positions
// itself: Check returns the level and the caller (actor) drives
// liquidation through the equity/DEX traders before any entry step runs,
// so a level-3 liquidation can never race a same-tick DEX entry.
type Monitor struct {
	sources *Sources
}

func NewMonitor(sources *Sources) *Monitor { return &Monitor{sources: sources} }

// Score evaluates the indicator snapshot into a 0-3 level and the list of
// triggered indicator names.
func Score(cfg config.Config, ind domain.Indicators) (domain.CrisisLevel, []string) {
	score := 0
	var triggered []string

	add := func(name string, v *float64, warn, crit float64, higherIsWorse bool) {
		if v == nil {
			return
		}
		val := *v
		bad := func(threshold float64) bool {
			if higherIsWorse {
				return val >= threshold
			}
			return val <= threshold
		}
		if bad(crit) {
			score += 2
			triggered = append(triggered, name)
		} else if bad(warn) {
			score += 1
			triggered = append(triggered, name)
		}
	}

	// VIX contributes up to 3 points at vix_critical, one extra point
	// above the standard warn/critical ladder.
	if ind.VIX != nil {
		switch {
		case *ind.VIX >= cfg.VixCritical:
			score += 3
			triggered = append(triggered, "vix")
		case *ind.VIX >= cfg.VixWarning:
			score += 1
			triggered = append(triggered, "vix")
		}
	}

	add("hy_spread", ind.HYSpread, cfg.HySpreadWarning, cfg.HySpreadCritical, true)
	if ind.YieldCurve2Y10Y != nil && *ind.YieldCurve2Y10Y <= cfg.YieldCurveWarning {
		score += 1
		triggered = append(triggered, "yield_curve_inverted")
	}
	if ind.TED != nil && *ind.TED >= cfg.TedWarning {
		score += 1
		triggered = append(triggered, "ted")
	}
	if ind.BTCWeeklyPct != nil {
		switch {
		case *ind.BTCWeeklyPct <= cfg.BtcWeeklyCritical:
			score += 2
			triggered = append(triggered, "btc_weekly")
		case *ind.BTCWeeklyPct <= cfg.BtcWeeklyWarning:
			score += 1
			triggered = append(triggered, "btc_weekly")
		}
	}
	if ind.USDTPeg != nil && *ind.USDTPeg <= cfg.UsdtPegWarning {
		score += 1
		triggered = append(triggered, "usdt_peg")
	}
	// stocks_above_200ma is permanently unsourced (nil); scoring tolerates
	// its absence by construction since `add`/the inline checks above all
	// no-op on a nil pointer.

	var level domain.CrisisLevel
	switch {
	case score >= 6:
		level = domain.CrisisFullCrisis
	case score >= 4:
		level = domain.CrisisHighAlert
	case score >= 2:
		level = domain.CrisisElevated
	default:
		level = domain.CrisisNormal
	}
	return level, triggered
}

// Check runs one crisis evaluation: fetch indicators, score, transition.
// Manual override suspends evaluation: Check returns the override's level
// unconditionally and never re-fetches. It does not suspend that level's
// effects; the caller applies them as it would for a scored level.
func (m *Monitor) Check(ctx context.Context, state *domain.AgentState, now time.Time) domain.CrisisLevel {
	cs := &state.CrisisState
	if cs.ManualOverride != nil {
		cs.Level = cs.ManualOverride.Level
		return cs.Level
	}

	ind := m.sources.Fetch(ctx)
	level, triggered := Score(state.Config, ind)

	cs.Indicators = ind
	cs.TriggeredIndicators = triggered

	if level != cs.Level {
		if level > cs.Level {
			state.AppendLog("warn", fmt.Sprintf("crisis level escalated %s -> %s (triggers: %v)", cs.Level, level, triggered))
			logger.Warnf("[Crisis] level escalated %s -> %s", cs.Level, level)
		} else {
			state.AppendLog("info", fmt.Sprintf("crisis level de-escalated %s -> %s", cs.Level, level))
		}
		cs.Level = level
		cs.LastLevelChange = now
	}
	return level
}

// LiquidationTarget is one position crisis level 3 forces closed. The
// monitor itself never touches the broker/DEX ledger — it only reports
// what must close; the actor executes.
type LiquidationTarget struct {
	Symbol   string
	IsDex    bool
	TokenKey string // dex position map key, when IsDex
}

// PositionsToClose returns what level 2/3 effects require closing this
// tick: at level 3, everything; at level 2, only equity positions whose
// unrealized P&L is below crisis_level2_min_profit_to_hold.
func PositionsToClose(cfg config.Config, level domain.CrisisLevel, equityPnLPct map[string]float64, dexPnLPct map[string]float64) []LiquidationTarget {
	var out []LiquidationTarget
	switch level {
	case domain.CrisisFullCrisis:
		for sym := range equityPnLPct {
			out = append(out, LiquidationTarget{Symbol: sym})
		}
		for addr := range dexPnLPct {
			out = append(out, LiquidationTarget{Symbol: addr, IsDex: true, TokenKey: addr})
		}
	case domain.CrisisHighAlert:
		for sym, pnl := range equityPnLPct {
			if pnl < cfg.CrisisLevel2MinProfitToHold {
				out = append(out, LiquidationTarget{Symbol: sym})
			}
		}
	}
	return out
}
