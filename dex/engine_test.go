package dex

import (
	"testing"

	"meridian/config"
	"meridian/domain"
)

// TestEvaluateExitTrailingStopBeatsTakeProfit walks the literal price path
// entry $1.00 -> peak $1.80 -> current $1.34: plPct (34%) clears the
// take-profit threshold (15%), but the trailing stop (armed at +50% off
// peak, 25% trail) is checked first and has already breached, so it must
// fire instead of take_profit.
func newTestEngine() *Engine {
	return &Engine{state: domain.NewAgentState(config.DefaultConfig())}
}

func TestEvaluateExitTrailingStopBeatsTakeProfit(t *testing.T) {
	e := newTestEngine()
	cfg := config.DefaultConfig()
	pos := domain.DexPosition{
		EntryPrice: 1.00,
		PeakPrice:  1.80,
		Tier:       domain.TierEstablished,
	}
	price := 1.34
	plPct := pos.PnLPct(price)

	reason, fire := e.evaluateExit(cfg, pos, domain.DexCandidate{}, false, plPct, price)
	if !fire || reason != domain.ExitTrailingStop {
		t.Fatalf("reason=%v fire=%v, want trailing_stop to fire ahead of take_profit", reason, fire)
	}
}

// TestEvaluateExitTakeProfitFiresWithoutTrailingActivation confirms
// take_profit still fires on its own when the trailing stop was never
// armed (peak never cleared the activation threshold).
func TestEvaluateExitTakeProfitFiresWithoutTrailingActivation(t *testing.T) {
	e := newTestEngine()
	cfg := config.DefaultConfig()
	pos := domain.DexPosition{
		EntryPrice: 1.00,
		PeakPrice:  1.16, // +16%, below the 50% trailing activation
		Tier:       domain.TierEstablished,
	}
	price := 1.16
	plPct := pos.PnLPct(price)

	reason, fire := e.evaluateExit(cfg, pos, domain.DexCandidate{Liquidity: 1_000_000}, false, plPct, price)
	if !fire || reason != domain.ExitTakeProfit {
		t.Fatalf("reason=%v fire=%v, want take_profit with the trailing stop never armed", reason, fire)
	}
}

// TestEvaluateExitLostMomentumHoldsWhenInProfit matches the in-scan
// momentum-decay rule: a decayed momentum score only fires lost_momentum
// when the position is underwater, never while still in profit.
func TestEvaluateExitLostMomentumHoldsWhenInProfit(t *testing.T) {
	e := newTestEngine()
	cfg := config.DefaultConfig()
	pos := domain.DexPosition{
		EntryPrice:         1.00,
		PeakPrice:          1.05,
		EntryMomentumScore: 1.0,
		Tier:               domain.TierEstablished,
	}
	cand := domain.DexCandidate{MomentumScore: 0.1} // well below 0.4x entry score
	price := 1.05
	plPct := pos.PnLPct(price)

	reason, fire := e.evaluateExit(cfg, pos, cand, true, plPct, price)
	if fire {
		t.Fatalf("reason=%v fire=%v, want no exit while in profit despite decayed momentum", reason, fire)
	}
}

// TestEvaluateExitLostMomentumFiresWhenUnderwater is the same decay but
// underwater, where lost_momentum must fire.
func TestEvaluateExitLostMomentumFiresWhenUnderwater(t *testing.T) {
	e := newTestEngine()
	cfg := config.DefaultConfig()
	pos := domain.DexPosition{
		EntryPrice:         1.00,
		PeakPrice:          1.00,
		EntryMomentumScore: 1.0,
		Tier:               domain.TierEstablished,
	}
	cand := domain.DexCandidate{MomentumScore: 0.1}
	price := 0.97
	plPct := pos.PnLPct(price)

	reason, fire := e.evaluateExit(cfg, pos, cand, true, plPct, price)
	if !fire || reason != domain.ExitLostMomentum {
		t.Fatalf("reason=%v fire=%v, want lost_momentum while underwater with decayed momentum", reason, fire)
	}
}

// TestEvaluateExitTakeProfitDelayedByThinLiquidity confirms take_profit is
// withheld (not converted to another reason) when exiting the full position
// size would require more than a fifth of available liquidity.
func TestEvaluateExitTakeProfitDelayedByThinLiquidity(t *testing.T) {
	e := newTestEngine()
	cfg := config.DefaultConfig()
	pos := domain.DexPosition{
		EntryPrice:  1.00,
		PeakPrice:   1.16,
		TokenAmount: 1000,
		Tier:        domain.TierEstablished,
	}
	price := 1.16
	plPct := pos.PnLPct(price)
	// position value = 1160, liquidity must be >= 5x that (5800) to safely exit.
	cand := domain.DexCandidate{Liquidity: 1000}

	_, fire := e.evaluateExit(cfg, pos, cand, false, plPct, price)
	if fire {
		t.Fatalf("expected take_profit to be withheld under thin liquidity, not replaced by another exit")
	}
}
