package equity

import (
	"context"
	"fmt"
	"math"
	"time"

	"meridian/broker"
	"meridian/domain"
	"meridian/llm"
	"meridian/logger"
	"meridian/metrics"
	"meridian/notify"
)

// Trader is the equity/crypto position manager: exits-first, then
// signal-driven entries gated by LLM confidence, against a real broker.
type Trader struct {
	broker     broker.Broker
	researcher *llm.Researcher
	notifier   notify.Notifier
}

func NewTrader(br broker.Broker, researcher *llm.Researcher, notifier notify.Notifier) *Trader {
	return &Trader{broker: br, researcher: researcher, notifier: notifier}
}

// RunExits walks every open non-option position and closes it on
// take-profit, stop-loss, or staleness.
func (t *Trader) RunExits(ctx context.Context, state *domain.AgentState, now time.Time) {
	positions, err := t.broker.GetPositions(ctx)
	if err != nil {
		logger.Warnf("[Equity] exits: GetPositions failed: %v", err)
		return
	}
	cfg := state.Config
	stopLossPct := cfg.StopLossPct
	if state.CrisisState.Level == domain.CrisisElevated {
		stopLossPct = cfg.CrisisLevel1StopLossPct
	}

	for _, pos := range positions {
		entry, tracked := state.PositionEntries[pos.Symbol]
		if tracked && entry.IsOption {
			continue // options exits handled by the options sub-flow
		}
		plPct := pos.UnrealizedPLPct
		if plPct == 0 && pos.AvgEntryPrice != 0 {
			plPct = (pos.CurrentPrice - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		}

		reason := ""
		switch {
		case plPct >= cfg.TakeProfitPct:
			reason = "take_profit"
		case plPct <= -stopLossPct:
			reason = "stop_loss"
		case tracked:
			holdHours := HoldHours(entry.EntryTime, now)
			entryVol := entry.EntrySocialVolume
			currentVol := 0.0
			if samples := state.SocialHistory[pos.Symbol]; len(samples) > 0 {
				currentVol = samples[len(samples)-1].Volume
			}
			score, stale := Staleness(cfg, holdHours, plPct, entryVol, currentVol)
			state.StalenessAnalysis[pos.Symbol] = domain.StalenessResult{Symbol: pos.Symbol, Score: score, Stale: stale, Timestamp: now}
			if stale {
				reason = "stale"
			}
		}
		if reason == "" {
			continue
		}
		t.closePosition(ctx, state, pos.Symbol, reason, now)
	}
}

// closePosition sells via the broker and clears the symbol's tracked
// entry/social/staleness state.
func (t *Trader) closePosition(ctx context.Context, state *domain.AgentState, symbol, reason string, now time.Time) {
	entry, tracked := state.PositionEntries[symbol]
	if tracked && !entry.IsCrypto {
		if ok, warn := t.pdtGuard(ctx, symbol, entry, now); !ok {
			state.AppendLog("warn", fmt.Sprintf("PDT guard refused closing %s: day trade limit reached", symbol))
			return
		} else if warn {
			state.AppendLog("warn", fmt.Sprintf("PDT guard: %s close brings day trade count to 3 this cycle", symbol))
		}
	}

	if err := t.broker.ClosePosition(ctx, symbol); err != nil {
		logger.Warnf("[Equity] close %s failed: %v", symbol, err)
		state.AppendLog("error", fmt.Sprintf("failed to close %s: %v", symbol, err))
		metrics.RecordOrder("sell", "rejected")
		return
	}
	metrics.RecordOrder("sell", "filled")
	if t.notifier != nil {
		t.notifier.NotifyTrade(fmt.Sprintf("closed %s (%s)", symbol, reason))
	}

	delete(state.PositionEntries, symbol)
	delete(state.SocialHistory, symbol)
	delete(state.StalenessAnalysis, symbol)
	delete(state.PositionResearch, symbol)
	state.AppendLog("info", fmt.Sprintf("closed %s (%s)", symbol, reason))
}

// pdtGuard refuses a sell that would complete a pattern-day-trade round
// trip; it only applies to same-day round trips on non-crypto assets.
func (t *Trader) pdtGuard(ctx context.Context, symbol string, entry domain.PositionEntry, now time.Time) (allow bool, warn bool) {
	ey, em, ed := entry.EntryTime.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	if ey != ny || em != nm || ed != nd {
		return true, false
	}
	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		logger.Warnf("[Equity] PDT guard: GetAccount failed for %s, allowing close: %v", symbol, err)
		return true, false
	}
	if acct.Equity < 25000 && acct.DaytradeCount >= 3 {
		return false, false
	}
	if acct.DaytradeCount == 2 {
		return true, true
	}
	return true, false
}

// candidateScore pairs a symbol with the confidence the analyst assigned it
// for entry ranking.
type candidateScore struct {
	symbol     string
	signal     domain.Signal
	research   domain.ResearchResult
	confidence float64
}

// RunEntries filters eligible signals, researches the top candidates, and
// buys the ones that clear min_analyst_confidence after Twitter-confirmation
// adjustment.
func (t *Trader) RunEntries(ctx context.Context, state *domain.AgentState, now time.Time) {
	cfg := state.Config
	if !cfg.StocksEnabled && !cfg.CryptoEnabled {
		return
	}
	mult := state.CrisisState.Level.PositionMultiplier()
	if mult <= 0 {
		state.AppendLog("info", fmt.Sprintf("entries blocked: CRISIS_MODE_BLOCKING (level %s)", state.CrisisState.Level))
		return
	}

	bySymbol := map[string]domain.Signal{}
	for _, sig := range state.SignalCache {
		if sig == nil || sig.RawSentiment < cfg.MinSentimentScore {
			continue
		}
		if sig.IsCrypto && !cfg.CryptoEnabled {
			continue
		}
		if !sig.IsCrypto && !cfg.StocksEnabled {
			continue
		}
		if _, held := state.PositionEntries[sig.Symbol]; held {
			continue
		}
		if existing, ok := bySymbol[sig.Symbol]; !ok || sig.Sentiment > existing.Sentiment {
			bySymbol[sig.Symbol] = *sig
		}
	}
	if len(bySymbol) == 0 {
		return
	}

	var scored []candidateScore
	for sym, sig := range bySymbol {
		res := t.researcher.ResearchSignal(ctx, sig, &state.CostTracker)
		state.SignalResearch[sym] = res
		confidence := res.Confidence
		if res.Verdict != "buy" {
			continue
		}
		if cfg.TwitterEnabled {
			if tc, ok := state.TwitterConfirmations[sym]; ok {
				if tc.Confirmed {
					confidence *= cfg.TwitterConfirmBoost
				} else if tc.Contradicted {
					confidence *= cfg.TwitterContradictPenalty
				}
			}
		}
		scored = append(scored, candidateScore{symbol: sym, signal: sig, research: res, confidence: confidence})
	}

	// Top 3 by confidence.
	for i := 0; i < len(scored); i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].confidence > scored[i].confidence {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
	if len(scored) > 3 {
		scored = scored[:3]
	}

	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		logger.Warnf("[Equity] entries: GetAccount failed: %v", err)
		return
	}

	for _, c := range scored {
		if c.confidence < cfg.MinAnalystConfidence {
			continue
		}
		t.buy(ctx, state, c, acct, mult, now)
	}
}

// buy sizes and submits a notional market buy, then books the position
// entry and (when eligible) pursues an options contract alongside it.
func (t *Trader) buy(ctx context.Context, state *domain.AgentState, c candidateScore, acct broker.Account, crisisMult float64, now time.Time) {
	cfg := state.Config
	if cfg.StocksEnabled {
		if asset, err := t.broker.GetAsset(ctx, c.symbol); err == nil && asset.AssetClass != "crypto" {
			if !allowedExchange(cfg.AllowedExchanges, asset.Exchange) {
				state.AppendLog("info", fmt.Sprintf("skip %s: exchange %s not in allowed list", c.symbol, asset.Exchange))
				return
			}
		}
	}

	sizePct := math.Min(20, cfg.PositionSizePctOfCash) / 100
	size := math.Min(acct.Cash*sizePct*c.confidence*crisisMult, cfg.MaxPositionValue*crisisMult)
	if !validOrderSize(c.symbol, acct.Cash, c.confidence, size, cfg.MaxPositionValue) {
		metrics.RecordOrder("buy", "blocked")
		state.AppendLog("info", fmt.Sprintf("buy_blocked %s: invalid order (cash=%.2f confidence=%.2f size=%.2f)", c.symbol, acct.Cash, c.confidence, size))
		return
	}

	notional := size
	tif := broker.TIFDay
	if c.signal.IsCrypto {
		tif = broker.TIFGTC
	}
	res, err := t.broker.CreateOrder(ctx, broker.OrderRequest{
		Symbol:       c.symbol,
		Notional:     &notional,
		Side:         broker.SideBuy,
		Type:         broker.OrderTypeMarket,
		TimeInForce:  tif,
	})
	if err != nil {
		logger.Warnf("[Equity] buy %s failed: %v", c.symbol, err)
		state.AppendLog("error", fmt.Sprintf("buy %s failed: %v", c.symbol, err))
		metrics.RecordOrder("buy", "rejected")
		return
	}
	metrics.RecordOrder("buy", "filled")
	if t.notifier != nil {
		t.notifier.NotifyTrade(fmt.Sprintf("bought %s, confidence=%.2f size=$%.2f", c.symbol, c.confidence, size))
	}

	state.PositionEntries[c.symbol] = domain.PositionEntry{
		Symbol:            c.symbol,
		EntryTime:         now,
		EntryPrice:        res.FilledAvgPrice,
		EntrySentiment:    c.signal.Sentiment,
		EntrySocialVolume: c.signal.Volume,
		EntrySources:      []string{c.signal.Source},
		EntryReason:       c.research.Reasoning,
		PeakPrice:         res.FilledAvgPrice,
		PeakSentiment:     c.signal.Sentiment,
		IsCrypto:          c.signal.IsCrypto,
	}
	state.AppendLog("info", fmt.Sprintf("bought %s, confidence=%.2f size=$%.2f", c.symbol, c.confidence, size))

	if cfg.OptionsEnabled && c.confidence >= cfg.OptionsMinConfidence && c.research.EntryQuality == "excellent" {
		t.enterOption(ctx, state, c, acct, now)
	}
}

func allowedExchange(allowed []string, exchange string) bool {
	for _, a := range allowed {
		if a == exchange {
			return true
		}
	}
	return false
}

// validOrderSize enforces the pre-submission invariants every buy must
// clear: non-empty symbol, positive cash, confidence in (0,1], finite size
// within the per-position cap.
func validOrderSize(symbol string, cash, confidence, size, maxPositionValue float64) bool {
	if symbol == "" || cash <= 0 {
		return false
	}
	if confidence <= 0 || confidence > 1 {
		return false
	}
	if size <= 0 || size > maxPositionValue*1.01 {
		return false
	}
	return !math.IsInf(size, 0) && !math.IsNaN(size)
}
