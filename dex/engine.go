package dex

import (
	"context"
	"fmt"
	"time"

	"meridian/config"
	"meridian/domain"
	"meridian/logger"
	"meridian/metrics"
	"meridian/notify"
)

// Engine orchestrates one DEX momentum tick: rate-limited scan, exits
// before entries, circuit breaker / drawdown gating, and a portfolio
// snapshot. It mutates the AgentState it's constructed with; callers
// (the actor) own serialization.
type Engine struct {
	provider Provider
	ledger   *Ledger
	state    *domain.AgentState
	notifier notify.Notifier
	solUsd   float64 // last good SOL/USD rate, fallback until the first fetch
}

func NewEngine(provider Provider, state *domain.AgentState, notifier notify.Notifier) *Engine {
	return &Engine{provider: provider, ledger: NewLedger(state), state: state, notifier: notifier, solUsd: state.Config.SolUsdFallback}
}

// markOf prices an open position at its latest scan mark, falling back to
// the entry price for a token the scanner has stopped returning.
func (e *Engine) markOf(addr string) float64 {
	pos, ok := e.state.DexPositions[addr]
	if !ok {
		return 0
	}
	if pos.LastPrice > 0 {
		return pos.LastPrice
	}
	return pos.EntryPrice
}

// Run executes one DEX tick: scan (if due), exits, entries, snapshot,
// cooldown hygiene. Every sub-step's provider failure is isolated and
// logged; it never aborts the tick.
func (e *Engine) Run(ctx context.Context, now time.Time) {
	cfg := e.state.Config

	if now.Sub(e.state.LastDexScan) >= time.Duration(cfg.DexScanIntervalMs)*time.Millisecond {
		candidates, err := e.provider.FindMomentumTokens(ctx, DefaultTierFilters())
		if err != nil {
			logger.Warnf("⚠️  [DEX] scan failed: %v", err)
			e.state.AppendLog("warn", fmt.Sprintf("dex scan failed: %v", err))
		} else {
			e.state.DexSignals = candidates
			e.state.LastDexScan = now
		}
	}

	priceByToken := map[string]float64{}
	for _, c := range e.state.DexSignals {
		priceByToken[c.TokenAddress] = c.PriceUsd
	}
	priceOf := func(addr string) float64 {
		if p, ok := priceByToken[addr]; ok {
			return p
		}
		if pos, ok := e.state.DexPositions[addr]; ok {
			return pos.EntryPrice // stale fallback: entry price
		}
		return 0
	}

	solUsd, err := e.provider.SolUsdPrice(ctx)
	if err != nil {
		logger.Warnf("⚠️  [DEX] SOL/USD price fetch failed, using fallback: %v", err)
		solUsd = e.solUsd
	}
	if solUsd <= 0 {
		solUsd = cfg.SolUsdFallback
	}
	e.solUsd = solUsd

	e.runExits(ctx, now, priceOf)
	e.runEntries(ctx, now, priceOf, solUsd)
	e.recordSnapshot(now, priceOf)
	PruneCooldowns(e.state.DexStopLossCooldowns, now)
}

// runExits evaluates every open position's exit rules, first-match-wins,
// per the momentum engine's six-rule ladder.
func (e *Engine) runExits(ctx context.Context, now time.Time, priceOf func(string) float64) {
	cfg := e.state.Config

	candidateByAddr := map[string]domain.DexCandidate{}
	for _, c := range e.state.DexSignals {
		candidateByAddr[c.TokenAddress] = c
	}

	for addr, pos := range e.state.DexPositions {
		price := priceOf(addr)
		if price <= 0 {
			continue
		}
		pos.BumpPeak(price)
		pos.LastPrice = price
		e.state.DexPositions[addr] = pos

		plPct := pos.PnLPct(price)
		cand, inLatestScan := candidateByAddr[addr]

		reason, fire := e.evaluateExit(cfg, pos, cand, inLatestScan, plPct, price)
		if !inLatestScan {
			if plPct > 0 {
				// in profit: lost_momentum never fires, trailing stop remains in charge.
			} else {
				pos.MissedScans++
				e.state.DexPositions[addr] = pos
				if pos.MissedScans >= 10 && !fire {
					reason, fire = domain.ExitLostMomentum, true
				}
			}
		} else {
			pos.MissedScans = 0
			e.state.DexPositions[addr] = pos
		}

		if !fire {
			continue
		}

		e.closePosition(addr, pos, price, reason, now)
	}
}

// evaluateExit implements rules 2-6 of the exit ladder (momentum decay,
// liquidity gate on take profit, trailing stop, take profit, fixed stop
// loss, with the trailing stop checked before take profit); rule 1 (missing from scan)
// is handled by the caller since it needs the missed-scan counter.
func (e *Engine) evaluateExit(cfg config.Config, pos domain.DexPosition, cand domain.DexCandidate, inLatestScan bool, plPct, price float64) (domain.ExitReason, bool) {
	if inLatestScan && pos.EntryMomentumScore > 0 {
		if cand.MomentumScore < 0.4*pos.EntryMomentumScore {
			if plPct < 0 {
				return domain.ExitLostMomentum, true
			}
			logger.Infof("ℹ️  [DEX] %s momentum decayed but position is in profit, holding", pos.Symbol)
			e.state.AppendLog("info", fmt.Sprintf("dex %s momentum decayed but in profit, holding", pos.Symbol))
		}
	}

	liquidity := cand.Liquidity
	if liquidity == 0 {
		liquidity = pos.EntryLiquidity
	}
	positionValueUSD := pos.MarkToMarket(price)
	canSafelyExit := liquidity >= 5*positionValueUSD

	// Trailing stop is evaluated ahead of take profit: once the peak has
	// armed the trail, a price that has already retraced below the trail
	// distance reflects money actually at risk right now, even if it's
	// still sitting above the static take-profit target. A stale take-
	// profit match on a price that's already falling away from its peak
	// would hold the position into a worse exit than the trail offers.
	activation, distance := cfg.TrailingStopActivationPct, cfg.TrailingStopDistancePct
	if pos.Tier == domain.TierLottery || pos.Tier == domain.TierMicrospray || pos.Tier == domain.TierBreakout {
		activation, distance = cfg.LotteryTrailingActivation, cfg.LotteryTrailingDistance
	}
	trailingActivated := false
	if cfg.TrailingStopEnabled && pos.EntryPrice > 0 {
		peakGainPct := (pos.PeakPrice - pos.EntryPrice) / pos.EntryPrice * 100
		if peakGainPct >= activation {
			trailingActivated = true
			if price <= pos.PeakPrice*(1-distance/100) {
				return domain.ExitTrailingStop, true
			}
		}
	}

	if plPct >= cfg.TakeProfitPct {
		if canSafelyExit {
			return domain.ExitTakeProfit, true
		}
		logger.Infof("⚠️  [DEX] %s take_profit delayed: liquidity too thin to exit safely", pos.Symbol)
		e.state.AppendLog("warn", fmt.Sprintf("dex %s take_profit_delayed_low_liquidity", pos.Symbol))
	}

	if !trailingActivated && plPct <= -cfg.StopLossPct {
		return domain.ExitStopLoss, true
	}

	return "", false
}

func (e *Engine) closePosition(addr string, pos domain.DexPosition, price float64, reason domain.ExitReason, now time.Time) {
	cfg := e.state.Config
	slip := Slippage(SlippageModel(cfg.SlippageModel), pos.MarkToMarket(price), pos.EntryLiquidity)
	exitPrice := ApplySellSlippage(price, slip)

	record, err := e.ledger.Close(addr, exitPrice, reason, now, cfg.GasFeeSol, e.solUsd)
	if err != nil {
		logger.Errorf("❌ [DEX] close %s failed: %v", pos.Symbol, err)
		e.state.AppendLog("error", fmt.Sprintf("dex close %s failed: %v", pos.Symbol, err))
		return
	}
	e.state.AppendLog("info", fmt.Sprintf("dex closed %s (%s): %+.2f%% / %+.4f SOL", pos.Symbol, reason, record.PnLPct, record.PnLSol))

	e.updateStreakAndDrawdown(record, now)
	metrics.RecordDexTrade(string(reason), record.PnLSol)
	tm := CalculateDexTradingMetrics(e.state.DexTradeHistory)
	metrics.SetDexDerived(tm.WinRate, tm.ProfitFactor, tm.Sharpe)
	if e.notifier != nil {
		e.notifier.NotifyTrade(fmt.Sprintf("DEX closed %s (%s): %+.2f%% / %+.4f SOL", pos.Symbol, reason, record.PnLPct, record.PnLSol))
	}

	if reason == domain.ExitStopLoss || reason == domain.ExitTrailingStop {
		e.state.DexStopLossCooldowns[addr] = NewCooldown(record.ExitPrice, now, cfg.StopLossCooldownHours)
	}

	if reason == domain.ExitStopLoss {
		kept, until := RecordStopLoss(e.state.DexRecentStopLosses, pos.Symbol, now, cfg.CircuitBreakerWindowHours, cfg.CircuitBreakerLosses, cfg.CircuitBreakerPauseHours)
		e.state.DexRecentStopLosses = kept
		if until != nil {
			e.state.DexCircuitBreakerUntil = until
			logger.Warnf("🛑 [DEX] circuit breaker tripped, paused until %s", until.Format(time.RFC3339))
			e.state.AppendLog("warn", fmt.Sprintf("dex circuit breaker tripped, paused until %s", until.Format(time.RFC3339)))
		}
	}
}

// ForceClose closes a single DEX position outside the normal exit ladder,
// for crisis-level forced liquidation. priceOf supplies the
// mark; a position with no available price is left open since there is
// nothing sane to exit it at.
func (e *Engine) ForceClose(addr string, priceOf func(string) float64, now time.Time) {
	pos, ok := e.state.DexPositions[addr]
	if !ok {
		return
	}
	price := priceOf(addr)
	if price <= 0 {
		price = pos.EntryPrice
	}
	if price <= 0 {
		e.state.AppendLog("warn", fmt.Sprintf("dex force-close %s skipped: no usable price", pos.Symbol))
		return
	}
	e.closePosition(addr, pos, price, domain.ExitManual, now)
}

func (e *Engine) updateStreakAndDrawdown(record domain.DexTradeRecord, now time.Time) {
	if record.PnLSol < 0 {
		e.state.DexCurrentLossStreak++
		if e.state.DexCurrentLossStreak > e.state.DexMaxConsecutiveLosses {
			e.state.DexMaxConsecutiveLosses = e.state.DexCurrentLossStreak
		}
	} else {
		e.state.DexCurrentLossStreak = 0
	}

	totalValue := e.ledger.TotalValue(e.markOf, e.solUsd)
	peak, ddPct, paused := DrawdownUpdate(e.state.DexPeakBalance, totalValue, e.state.Config.MaxDrawdownPct, e.state.DexDrawdownPaused)
	e.state.DexPeakBalance = peak
	if ddPct > e.state.DexMaxDrawdownPct {
		e.state.DexMaxDrawdownPct = ddPct
		if e.state.DexDrawdownStartTime == nil {
			e.state.DexDrawdownStartTime = &now
		}
	}
	if paused && !e.state.DexDrawdownPaused {
		logger.Warnf("🛑 [DEX] drawdown halt: %.1f%% below peak, pausing new entries", ddPct)
		e.state.AppendLog("warn", fmt.Sprintf("dex drawdown halt: %.1f%% below peak, pausing new entries", ddPct))
	}
	if !paused && e.state.DexDrawdownPaused {
		e.state.DexDrawdownStartTime = nil
		e.state.AppendLog("info", "dex drawdown halt cleared on new portfolio high")
	}
	e.state.DexDrawdownPaused = paused
}

// runEntries evaluates every scanned candidate's preconditions in order;
// the first failure skips the candidate.
func (e *Engine) runEntries(ctx context.Context, now time.Time, priceOf func(string) float64, solUsd float64) {
	cfg := e.state.Config

	breakerActive := false
	if e.state.DexCircuitBreakerUntil != nil {
		anyRecovered := false
		for addr, pos := range e.state.DexPositions {
			if pos.PnLPct(priceOf(addr)) > 0 {
				anyRecovered = true
				break
			}
		}
		strongCandidate := false
		for _, c := range e.state.DexSignals {
			if _, held := e.state.DexPositions[c.TokenAddress]; !held && c.MomentumScore >= cfg.ReentryMinMomentum {
				strongCandidate = true
				break
			}
		}
		openedAt := e.state.DexCircuitBreakerUntil.Add(-time.Duration(cfg.CircuitBreakerPauseHours * float64(time.Hour)))
		decision := EvaluateBreaker(e.state.DexCircuitBreakerUntil, openedAt, now, cfg.BreakerMinCooldownMinutes, anyRecovered, strongCandidate)
		breakerActive = decision.Active
		if !decision.Active {
			e.state.DexCircuitBreakerUntil = nil
			logger.Infof("✅ [DEX] circuit breaker cleared: %s", decision.Reason)
			e.state.AppendLog("info", fmt.Sprintf("dex circuit breaker cleared: %s", decision.Reason))
		}
	}

	tierCounts := map[domain.Tier]int{}
	for _, pos := range e.state.DexPositions {
		tierCounts[pos.Tier]++
	}
	sharedOpen := tierCounts[domain.TierEarly] + tierCounts[domain.TierEstablished]

	for _, cand := range e.state.DexSignals {
		if !e.entryAllowed(ctx, cfg, cand, breakerActive, tierCounts, sharedOpen, now) {
			continue
		}
		e.openPosition(ctx, cfg, cand, solUsd, now)
		if _, opened := e.state.DexPositions[cand.TokenAddress]; opened {
			tierCounts[cand.Tier]++
			if cand.Tier == domain.TierEarly || cand.Tier == domain.TierEstablished {
				sharedOpen++
			}
		}
	}
}

func (e *Engine) entryAllowed(ctx context.Context, cfg config.Config, cand domain.DexCandidate, breakerActive bool, tierCounts map[domain.Tier]int, sharedOpen int, now time.Time) bool {
	tok, err := ParseToken(cand.TokenAddress)
	if err != nil {
		logger.Warnf("⚠️  [DEX] skip %s: %v", cand.Symbol, err)
		return false
	}
	if _, held := e.state.DexPositions[cand.TokenAddress]; held {
		return false
	}
	if cand.MomentumScore < cfg.MomentumEntryThreshold {
		return false
	}
	if cd, cooling := e.state.DexStopLossCooldowns[cand.TokenAddress]; cooling {
		if !CanReenter(cd, cand.PriceUsd, cand.MomentumScore, cfg.ReentryRecoveryPct, cfg.ReentryMinMomentum, now) {
			return false
		}
	}
	if breakerActive {
		return false
	}
	if e.state.DexDrawdownPaused {
		return false
	}

	limit, shared := tierMaxConcurrent(cand.Tier, cfg.MicrosprayMaxConcurrent, cfg.BreakoutMaxConcurrent, cfg.LotteryMaxConcurrent, cfg.MaxPositions)
	if shared {
		if sharedOpen >= limit {
			return false
		}
	} else if tierCounts[cand.Tier] >= limit {
		return false
	}

	if cfg.DexChartAnalysisEnabled {
		analysis, err := e.provider.AnalyzeChart(ctx, cand.TokenAddress, cand.AgeHours)
		switch {
		case err != nil:
			logger.Warnf("⚠️  [DEX] chart analysis failed for %s (%s), proceeding without it: %v", cand.Symbol, tok.Short(), err)
		case analysis == nil:
			logger.Infof("ℹ️  [DEX] no chart data for %s (%s), proceeding", cand.Symbol, tok.Short())
		case analysis.EntryScore < cfg.DexChartMinEntryScore:
			return false
		}
	}

	return true
}

func (e *Engine) openPosition(ctx context.Context, cfg config.Config, cand domain.DexCandidate, solUsd float64, now time.Time) {
	totalValueSol := e.ledger.TotalValue(e.markOf, solUsd)
	stakeSol := tierStakeSol(cfg, cand, totalValueSol)

	reduced, wasReduced := ConcentrationCap(stakeSol, totalValueSol, cfg.MaxSinglePositionPct)
	if wasReduced {
		logger.Infof("⚠️  [DEX] paper_buy_reduced %s from %.4f to %.4f SOL (%.0f%% cap)", cand.Symbol, stakeSol, reduced, cfg.MaxSinglePositionPct)
		e.state.AppendLog("info", fmt.Sprintf("dex paper_buy_reduced %s from %.4f to %.4f SOL (%.0f%% cap)", cand.Symbol, stakeSol, reduced, cfg.MaxSinglePositionPct))
		stakeSol = reduced
	}
	if stakeSol < cfg.MinViableSol {
		logger.Infof("ℹ️  [DEX] skip %s: reduced stake %.4f below min viable %.4f", cand.Symbol, stakeSol, cfg.MinViableSol)
		e.state.AppendLog("info", fmt.Sprintf("dex skip %s: reduced stake %.4f below min viable %.4f", cand.Symbol, stakeSol, cfg.MinViableSol))
		return
	}

	positionUSD := stakeSol * solUsd
	slip := Slippage(SlippageModel(cfg.SlippageModel), positionUSD, cand.Liquidity)
	entryPrice := ApplyBuySlippage(cand.PriceUsd, slip)

	pos := domain.DexPosition{
		TokenAddress:       cand.TokenAddress,
		Symbol:             cand.Symbol,
		EntryPrice:         entryPrice,
		EntryStakeSol:      stakeSol,
		EntryTime:          now,
		EntryMomentumScore: cand.MomentumScore,
		EntryLiquidity:     cand.Liquidity,
		Tier:               cand.Tier,
	}
	if err := e.ledger.Open(pos, cfg.GasFeeSol, solUsd); err != nil {
		logger.Warnf("⚠️  [DEX] open %s failed: %v", cand.Symbol, err)
		e.state.AppendLog("warn", fmt.Sprintf("dex open %s failed: %v", cand.Symbol, err))
		return
	}
	e.state.AppendLog("info", fmt.Sprintf("dex opened %s (%s) stake=%.4f SOL @ %.8f", pos.Symbol, pos.Tier, pos.EntryStakeSol, pos.EntryPrice))
}

// tierStakeSol implements the per-tier sizing table.
func tierStakeSol(cfg config.Config, cand domain.DexCandidate, totalValueSol float64) float64 {
	switch cand.Tier {
	case domain.TierMicrospray:
		return cfg.MicrosprayPositionSol
	case domain.TierBreakout:
		return cfg.BreakoutPositionSol
	case domain.TierLottery:
		return cfg.LotteryPositionSol
	case domain.TierEarly:
		v := totalValueSol * cfg.PctOfBalance * cfg.EarlyMultiplier
		if v > cfg.MaxPositionSol {
			v = cfg.MaxPositionSol
		}
		return v
	case domain.TierEstablished:
		v := totalValueSol * cfg.PctOfBalance
		if v > cfg.MaxPositionSol {
			v = cfg.MaxPositionSol
		}
		return v
	default:
		return cfg.MicrosprayPositionSol
	}
}

func (e *Engine) recordSnapshot(now time.Time, priceOf func(string) float64) {
	total := e.ledger.TotalValue(priceOf, e.solUsd)
	e.state.DexPortfolioHistory = append(e.state.DexPortfolioHistory, domain.PortfolioSnapshot{
		Timestamp:  now,
		TotalValue: total,
		Balance:    e.state.DexPaperBalanceSol,
		OpenCount:  len(e.state.DexPositions),
	})
	if len(e.state.DexPortfolioHistory) > 2000 {
		e.state.DexPortfolioHistory = e.state.DexPortfolioHistory[len(e.state.DexPortfolioHistory)-2000:]
	}
	if total > e.state.DexPeakValue {
		e.state.DexPeakValue = total
	}
}

// ResetPaperTrading wipes the paper book back to the configured starting
// balance: open positions, trade history, streak/drawdown counters,
// cooldowns and the circuit breaker all reset together.
func ResetPaperTrading(state *domain.AgentState) {
	state.DexPositions = map[string]domain.DexPosition{}
	state.DexTradeHistory = []domain.DexTradeRecord{}
	state.DexPaperBalanceSol = state.Config.DexStartingBalanceSol
	state.DexPeakBalance = state.Config.DexStartingBalanceSol
	state.DexPeakValue = state.Config.DexStartingBalanceSol
	state.DexMaxConsecutiveLosses = 0
	state.DexCurrentLossStreak = 0
	state.DexMaxDrawdownPct = 0
	state.DexMaxDrawdownDurationMs = 0
	state.DexDrawdownPaused = false
	state.DexDrawdownStartTime = nil
	state.DexRealizedPnLSol = 0
	state.DexPortfolioHistory = nil
	state.DexRecentStopLosses = nil
	state.DexCircuitBreakerUntil = nil
	state.DexStopLossCooldowns = map[string]domain.StopLossCooldown{}
}
