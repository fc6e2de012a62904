package equity

import (
	"context"
	"time"

	"meridian/domain"
)

// RunCrisisLiquidation closes every equity position crisis.PositionsToClose
// names for the current level. The crisis monitor never touches broker
// state itself; this is the one caller that executes its report.
func (t *Trader) RunCrisisLiquidation(ctx context.Context, state *domain.AgentState, symbols []string, now time.Time) {
	for _, sym := range symbols {
		t.closePosition(ctx, state, sym, "crisis_liquidation", now)
	}
}

// EquityPnLPct builds the symbol->unrealized-P&L-pct map crisis.
// PositionsToClose needs, from the broker's live position list.
func (t *Trader) EquityPnLPct(ctx context.Context) (map[string]float64, error) {
	positions, err := t.broker.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		out[p.Symbol] = p.UnrealizedPLPct
	}
	return out, nil
}
