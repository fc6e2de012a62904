package actor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"meridian/crisis"
	"meridian/domain"
	"meridian/logger"
	"meridian/metrics"
	"meridian/signals"
)

// tick runs one full scheduling pass: crisis check, data gather, research,
// trading, persistence. The caller holds a.mu.
func (a *Actor) tick(ctx context.Context, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TickErrorsTotal.Inc()
			err = fmt.Errorf("tick panic: %v", r)
			a.state.AppendLog("error", err.Error())
		}
	}()

	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	s := a.state
	cfg := s.Config

	// 1. Disabled: return without rescheduling.
	if !s.Enabled {
		metrics.UpdateFromState(s)
		return nil
	}

	// 2. Market clock.
	clock, clockErr := a.br.GetClock(ctx)
	if clockErr != nil {
		logger.Warnf("[Actor] GetClock failed: %v", clockErr)
	}

	// 3. Crisis check.
	if cfg.CrisisModeEnabled && now.Sub(s.LastCrisisCheck) >= time.Duration(cfg.CrisisCheckIntervalMs)*time.Millisecond {
		s.LastCrisisCheck = now
		prevLevel := s.CrisisState.Level
		level := a.crisisMonitor.Check(ctx, s, now)
		if level > prevLevel && a.notifier != nil {
			a.notifier.NotifyCrisis(fmt.Sprintf("crisis level escalated %s -> %s", prevLevel, level))
		}
		a.runCrisisActions(ctx, level, now)
		if level == domain.CrisisFullCrisis {
			metrics.UpdateFromState(s)
			return a.persist(now.Add(cfg.TickInterval()))
		}
	}

	// 4. Data gather.
	if now.Sub(s.LastDataGather) >= time.Duration(cfg.DataPollIntervalMs)*time.Millisecond {
		a.gatherSignals(ctx, now)
		s.LastDataGather = now
	}

	// 5. Research up to 5 top signals.
	if now.Sub(s.LastResearch) >= time.Duration(cfg.ResearchIntervalMs)*time.Millisecond {
		a.researchTopSignals(ctx, now)
		s.LastResearch = now
	}

	// 6. Pre-market window plan.
	if isPremarketWindow(now) && s.PremarketPlan == nil {
		a.buildPremarketPlan(ctx, now)
	}

	// 7. Crypto/equity trading. One trader covers both asset classes:
	// crypto is gated on cfg.CryptoEnabled, equities flow through the
	// same exits-then-entries pass.
	if cfg.CryptoEnabled || cfg.StocksEnabled {
		a.equityTrader.RunExits(ctx, s, now)
		a.equityTrader.RunEntries(ctx, s, now)
	}

	// 8. DEX scan/trade/snapshot.
	if cfg.DexEnabled {
		a.dexEngine.Run(ctx, now)
	}

	// 9. Market-hours-only steps.
	if clock.IsOpen {
		if isPlanExecWindow(now) && s.PremarketPlan != nil && !s.PremarketPlan.Executed {
			a.executePremarketPlan(ctx, now)
		}
		if now.Sub(s.LastAnalyst) >= time.Duration(cfg.AnalystIntervalMs)*time.Millisecond {
			a.equityTrader.RunAnalystPass(ctx, s, now)
			s.LastAnalyst = now
		}
		if now.Sub(s.LastPositionResearch) >= time.Duration(cfg.PositionResearchMs)*time.Millisecond {
			a.researchHeldPositions(ctx, now)
			s.LastPositionResearch = now
		}
		if cfg.OptionsEnabled {
			a.equityTrader.RunOptionsExits(ctx, s, now)
		}
		if cfg.TwitterEnabled {
			a.checkBreakingNewsForHeld(ctx, now)
		}
	}

	metrics.UpdateFromState(s)
	return a.persist(now.Add(cfg.TickInterval()))
}

// isPremarketWindow reports whether now falls in the weekday 09:25-09:29
// local pre-market analysis window.
func isPremarketWindow(now time.Time) bool {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	h, m := now.Hour(), now.Minute()
	return h == 9 && m >= 25 && m <= 29
}

// isPlanExecWindow reports whether now falls in the 09:30-09:32 window the
// cached pre-market plan executes in.
func isPlanExecWindow(now time.Time) bool {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	h, m := now.Hour(), now.Minute()
	return h == 9 && m >= 30 && m <= 32
}

// runCrisisActions executes the liquidations crisis levels 2 and 3 require
// and notifies when it closes any position.
func (a *Actor) runCrisisActions(ctx context.Context, level domain.CrisisLevel, now time.Time) {
	s := a.state
	if level < domain.CrisisElevated {
		return
	}

	equityPnL, err := a.equityTrader.EquityPnLPct(ctx)
	if err != nil {
		logger.Warnf("[Actor] crisis: equity P&L fetch failed: %v", err)
		equityPnL = map[string]float64{}
	}
	dexPriceOf := a.dexPriceOf()
	dexPnL := map[string]float64{}
	for addr, pos := range s.DexPositions {
		dexPnL[addr] = pos.PnLPct(dexPriceOf(addr))
	}

	targets := crisis.PositionsToClose(s.Config, level, equityPnL, dexPnL)
	if len(targets) == 0 {
		return
	}

	var equitySymbols []string
	for _, t := range targets {
		if !t.IsDex {
			equitySymbols = append(equitySymbols, t.Symbol)
		}
	}
	if len(equitySymbols) > 0 {
		a.equityTrader.RunCrisisLiquidation(ctx, s, equitySymbols, now)
	}
	for _, t := range targets {
		if t.IsDex {
			a.dexEngine.ForceClose(t.TokenKey, dexPriceOf, now)
		}
	}
	s.CrisisState.PositionsClosedInCrisis = append(s.CrisisState.PositionsClosedInCrisis, equitySymbolsAndTokens(targets)...)

	msg := fmt.Sprintf("crisis level %s: closed %d position(s)", level, len(targets))
	s.AppendLog("warn", msg)
	if err := a.store.AppendAlert("warn", msg); err != nil {
		logger.Warnf("[Actor] durable alert write failed: %v", err)
	}
	if a.notifier != nil {
		a.notifier.NotifyCrisis(msg)
	}
}

func equitySymbolsAndTokens(targets []crisis.LiquidationTarget) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Symbol)
	}
	return out
}

// dexPriceOf mirrors dex.Engine's own last-scan-then-entry-price fallback,
// needed here since the crisis path prices positions outside Engine.Run.
func (a *Actor) dexPriceOf() func(string) float64 {
	s := a.state
	byToken := map[string]float64{}
	for _, c := range s.DexSignals {
		byToken[c.TokenAddress] = c.PriceUsd
	}
	return func(addr string) float64 {
		if p, ok := byToken[addr]; ok {
			return p
		}
		if pos, ok := s.DexPositions[addr]; ok {
			return pos.EntryPrice
		}
		return 0
	}
}

// gatherSignals runs every social-signal source, isolating each source's
// failure, validates newly-seen tickers, and folds the result into the
// signal cache.
func (a *Actor) gatherSignals(ctx context.Context, now time.Time) {
	s := a.state
	cfg := s.Config

	var fresh []domain.Signal
	fresh = append(fresh, a.gatherer.FetchTrending(ctx, cfg.DecayHalfLifeMinutes, now)...)
	for _, sub := range cfg.Subreddits {
		fresh = append(fresh, a.gatherer.FetchReddit(ctx, sub, cfg.DecayHalfLifeMinutes, now)...)
	}
	if cfg.CryptoEnabled {
		fresh = append(fresh, a.fetchCryptoSnapshots(ctx, now)...)
	}

	symbolSet := map[string]bool{}
	for _, sig := range fresh {
		if sig.IsCrypto {
			continue // crypto pairs come from the fixed watchlist, not free text
		}
		symbolSet[sig.Symbol] = true
	}
	candidates := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		candidates = append(candidates, sym)
	}
	validated := map[string]bool{}
	for _, sym := range a.validator.ValidateCandidates(ctx, candidates) {
		validated[sym] = true
	}

	blacklist := map[string]bool{}
	for _, b := range cfg.UserTickerBlacklist {
		blacklist[b] = true
	}

	for i := range fresh {
		sig := fresh[i]
		if !sig.IsCrypto && (blacklist[sig.Symbol] || !validated[sig.Symbol]) {
			continue
		}
		s.SignalCache = append(s.SignalCache, &sig)
	}
	s.SignalCache = signals.Prune(s.SignalCache, now)

	// Record a social-volume sample for every held symbol so the staleness
	// analysis has a decay baseline to compare against.
	agg := signals.AggregateBySymbol(s.SignalCache)
	for sym := range s.PositionEntries {
		sample := agg[sym]
		sample.Timestamp = now
		history := append(s.SocialHistory[sym], sample)
		if len(history) > 100 {
			history = history[len(history)-100:]
		}
		s.SocialHistory[sym] = history
	}
}

// cryptoWatchlist is the fixed set of crypto pairs the gather step snapshots
// every poll; unlike equities there is no social-trending source to drive
// discovery, so the universe is a small fixed list.
var cryptoWatchlist = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

func (a *Actor) fetchCryptoSnapshots(ctx context.Context, now time.Time) []domain.Signal {
	var out []domain.Signal
	for _, sym := range cryptoWatchlist {
		snap, err := a.br.GetCryptoSnapshot(ctx, sym)
		if err != nil {
			logger.Warnf("[Actor] crypto snapshot %s failed: %v", sym, err)
			continue
		}
		out = append(out, domain.Signal{
			Symbol:       sym,
			Source:       "crypto_snapshot",
			RawSentiment: 0,
			Sentiment:    0,
			Volume:       1,
			Freshness:    1,
			Timestamp:    now,
			IsCrypto:     true,
			Price:        &snap.Price,
		})
	}
	return out
}

// researchTopSignals researches the 5 signals with the largest |sentiment|
// currently cached.
func (a *Actor) researchTopSignals(ctx context.Context, now time.Time) {
	s := a.state
	agg := signals.AggregateBySymbol(s.SignalCache)
	type scored struct {
		symbol string
		sample domain.SocialSample
	}
	var all []scored
	for sym, sample := range agg {
		all = append(all, scored{sym, sample})
	}
	sort.Slice(all, func(i, j int) bool {
		return abs(all[i].sample.Sentiment) > abs(all[j].sample.Sentiment)
	})
	if len(all) > 5 {
		all = all[:5]
	}
	for _, c := range all {
		sig := domain.Signal{Symbol: c.symbol, Sentiment: c.sample.Sentiment, Volume: c.sample.Volume, Timestamp: now}
		s.SignalResearch[c.symbol] = a.researcher.ResearchSignal(ctx, sig, &s.CostTracker)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// buildPremarketPlan caches a set of planned decisions ahead of the open,
// executed verbatim (via a second entries pass) once the market opens.
func (a *Actor) buildPremarketPlan(ctx context.Context, now time.Time) {
	s := a.state
	agg := signals.AggregateBySymbol(s.SignalCache)

	var decisions []domain.PlannedDecision
	for sym, sample := range agg {
		if _, held := s.PositionEntries[sym]; held {
			continue
		}
		if sample.Sentiment < s.Config.MinSentimentScore {
			continue
		}
		sig := domain.Signal{Symbol: sym, Sentiment: sample.Sentiment, Volume: sample.Volume, Timestamp: now}
		res := a.researcher.ResearchSignal(ctx, sig, &s.CostTracker)
		s.SignalResearch[sym] = res
		decisions = append(decisions, domain.PlannedDecision{
			Symbol: sym, Action: res.Verdict, Confidence: res.Confidence, Reasoning: res.Reasoning,
		})
	}

	s.PremarketPlan = &domain.PremarketPlan{GeneratedAt: now, Decisions: decisions}
	s.AppendLog("info", fmt.Sprintf("pre-market plan cached: %d decisions", len(decisions)))
}

// executePremarketPlan promotes the cached plan into an entries pass: the
// plan's decisions already live in SignalResearch, so RunEntries' own
// top-3-by-confidence selection picks them up naturally.
func (a *Actor) executePremarketPlan(ctx context.Context, now time.Time) {
	s := a.state
	a.equityTrader.RunEntries(ctx, s, now)
	s.PremarketPlan.Executed = true
	s.AppendLog("info", "pre-market plan executed")
}

// researchHeldPositions refreshes the LLM's verdict on every open position
// roughly every five minutes during market hours.
func (a *Actor) researchHeldPositions(ctx context.Context, now time.Time) {
	s := a.state
	for symbol, entry := range s.PositionEntries {
		plPct := 0.0
		if entry.EntryPrice != 0 {
			plPct = (entry.PeakPrice - entry.EntryPrice) / entry.EntryPrice * 100
		}
		holdHours := now.Sub(entry.EntryTime).Hours()
		s.PositionResearch[symbol] = a.researcher.ResearchPosition(ctx, symbol, holdHours, plPct, &s.CostTracker)
	}
}

// checkBreakingNewsForHeld runs the Twitter confirmation check for every
// held position; every entry in this book is a long, so the thesis is
// always bullish.
func (a *Actor) checkBreakingNewsForHeld(ctx context.Context, now time.Time) {
	s := a.state
	for symbol, entry := range s.PositionEntries {
		if entry.IsCrypto {
			continue
		}
		a.twitter.CheckBreakingNews(ctx, s, symbol, true, now)
	}
}

