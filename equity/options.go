package equity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"meridian/broker"
	"meridian/domain"
	"meridian/logger"
)

// enterOption pursues a single options contract alongside an equity entry
// when confidence and entry quality clear the options thresholds.
// Expiration: closest DTE to the midpoint of [options_min_dte,
// options_max_dte]. Strike: nearest to the delta-biased target among
// contracts whose snapshot delta falls in [options_min_delta,
// options_max_delta], quote spread ≤ options_max_spread_pct, and
// affordable within options_max_pct_per_trade of equity.
func (t *Trader) enterOption(ctx context.Context, state *domain.AgentState, c candidateScore, acct broker.Account, now time.Time) {
	cfg := state.Config
	ob := t.broker.Options()
	if ob == nil {
		return // crypto broker has no options desk
	}

	expirations, err := ob.GetExpirations(ctx, c.symbol)
	if err != nil || len(expirations) == 0 {
		logger.Warnf("[Equity] options: no expirations for %s: %v", c.symbol, err)
		return
	}
	var inWindow []time.Time
	for _, e := range expirations {
		dte := e.Sub(now).Hours() / 24
		if dte >= float64(cfg.OptionsMinDTE) && dte <= float64(cfg.OptionsMaxDTE) {
			inWindow = append(inWindow, e)
		}
	}
	if len(inWindow) == 0 {
		state.AppendLog("info", fmt.Sprintf("options: no expiration in DTE window for %s", c.symbol))
		return
	}
	target := float64(cfg.OptionsMinDTE+cfg.OptionsMaxDTE) / 2
	exp := nearestByDTE(inWindow, target, now)

	chain, err := ob.GetChain(ctx, c.symbol, exp)
	if err != nil || len(chain) == 0 {
		logger.Warnf("[Equity] options: no chain for %s %s: %v", c.symbol, exp, err)
		return
	}

	bullish := c.research.Verdict == "buy"
	kind := "put"
	if bullish {
		kind = "call"
	}
	targetDelta := (cfg.OptionsMinDelta + cfg.OptionsMaxDelta) / 2
	if !bullish {
		targetDelta = -targetDelta
	}

	var best *broker.OptionContract
	var bestSnap broker.OptionSnapshot
	bestDist := math.Inf(1)
	maxSpend := acct.Equity * cfg.OptionsMaxPctPerTrade / 100

	for i := range chain {
		contract := chain[i]
		if contract.Kind != kind {
			continue
		}
		snap, err := ob.GetSnapshot(ctx, contract.Symbol)
		if err != nil {
			continue
		}
		absDelta := math.Abs(snap.Delta)
		if absDelta < cfg.OptionsMinDelta || absDelta > cfg.OptionsMaxDelta {
			continue
		}
		if snap.SpreadPct() > cfg.OptionsMaxSpreadPct {
			continue
		}
		mid := snap.Mid()
		if mid <= 0 {
			continue
		}
		maxContracts := int(maxSpend / (mid * 100))
		if maxContracts < 1 {
			continue
		}
		dist := math.Abs(snap.Delta - targetDelta)
		if dist < bestDist {
			bestDist = dist
			cc := contract
			best = &cc
			bestSnap = snap
		}
	}
	if best == nil {
		state.AppendLog("info", fmt.Sprintf("options: no eligible %s contract for %s", kind, c.symbol))
		return
	}

	mid := bestSnap.Mid()
	qty := 1.0
	res, err := t.broker.CreateOrder(ctx, broker.OrderRequest{
		Symbol:      best.Symbol,
		Qty:         &qty,
		Side:        broker.SideBuy,
		Type:        broker.OrderTypeLimit,
		LimitPrice:  &mid,
		TimeInForce: broker.TIFDay,
	})
	if err != nil {
		logger.Warnf("[Equity] options order %s failed: %v", best.Symbol, err)
		return
	}

	state.PositionEntries[best.Symbol] = domain.PositionEntry{
		Symbol:         best.Symbol,
		EntryTime:      now,
		EntryPrice:     res.FilledAvgPrice,
		PeakPrice:      res.FilledAvgPrice,
		IsOption:       true,
		OptionContract: best.Symbol,
	}
	state.AppendLog("info", fmt.Sprintf("opened option %s on %s (delta target %.2f)", best.Symbol, c.symbol, targetDelta))
}

func nearestByDTE(expirations []time.Time, targetDTE float64, now time.Time) time.Time {
	sort.Slice(expirations, func(i, j int) bool {
		di := math.Abs(expirations[i].Sub(now).Hours()/24 - targetDTE)
		dj := math.Abs(expirations[j].Sub(now).Hours()/24 - targetDTE)
		return di < dj
	})
	return expirations[0]
}

// RunOptionsExits closes any tracked option position whose P&L crosses the
// options stop-loss/take-profit thresholds.
func (t *Trader) RunOptionsExits(ctx context.Context, state *domain.AgentState, now time.Time) {
	ob := t.broker.Options()
	if ob == nil {
		return
	}
	cfg := state.Config
	for symbol, entry := range state.PositionEntries {
		if !entry.IsOption {
			continue
		}
		snap, err := ob.GetSnapshot(ctx, entry.OptionContract)
		if err != nil {
			logger.Warnf("[Equity] options exit: snapshot %s failed: %v", entry.OptionContract, err)
			continue
		}
		mid := snap.Mid()
		if mid <= 0 || entry.EntryPrice == 0 {
			continue
		}
		plPct := (mid - entry.EntryPrice) / entry.EntryPrice * 100
		if plPct <= -cfg.OptionsStopLossPct || plPct >= cfg.OptionsTakeProfitPct {
			if err := t.broker.ClosePosition(ctx, symbol); err != nil {
				logger.Warnf("[Equity] options close %s failed: %v", symbol, err)
				continue
			}
			delete(state.PositionEntries, symbol)
			state.AppendLog("info", fmt.Sprintf("closed option %s, pl=%.1f%%", symbol, plPct))
		}
	}
}
