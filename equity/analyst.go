package equity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"meridian/domain"
	"meridian/logger"
)

// RunAnalystPass runs the periodic LLM portfolio analyst: aggregates the
// top 10 candidates by volume plus current positions, asks for
// BUY/SELL/HOLD, and executes SELL only when the position has been held at
// least llm_min_hold_minutes. BUY/HOLD carry no hold-time gate.
func (t *Trader) RunAnalystPass(ctx context.Context, state *domain.AgentState, now time.Time) {
	cfg := state.Config
	candidates := topCandidatesByVolume(state.SignalCache, 10)

	var positions []domain.PositionEntry
	for _, p := range state.PositionEntries {
		positions = append(positions, p)
	}

	verdicts, err := t.researcher.RunAnalystPass(ctx, candidates, positions, &state.CostTracker)
	if err != nil {
		logger.Warnf("[Equity] analyst pass failed: %v", err)
		state.AppendLog("warn", fmt.Sprintf("analyst pass failed: %v", err))
		return
	}

	for _, v := range verdicts {
		switch v.Action {
		case "SELL":
			entry, held := state.PositionEntries[v.Symbol]
			if !held {
				continue
			}
			if now.Sub(entry.EntryTime) < time.Duration(cfg.LLMMinHoldMinutes*float64(time.Minute)) {
				state.AppendLog("info", fmt.Sprintf("analyst SELL on %s deferred: below min hold", v.Symbol))
				continue
			}
			t.closePosition(ctx, state, v.Symbol, "analyst_sell", now)
		case "BUY", "HOLD":
			// No min-hold gate applies; BUY is handled by RunEntries and HOLD
			// is a no-op here. The verdict is still logged as research so the
			// admin surface can show the analyst's reasoning.
			state.SignalResearch[v.Symbol] = domain.ResearchResult{
				Symbol: v.Symbol, Verdict: v.Action, Confidence: v.Confidence, Reasoning: v.Reasoning, Timestamp: now,
			}
		}
	}
}

func topCandidatesByVolume(cache []*domain.SignalLog, n int) []domain.Signal {
	bySymbol := map[string]domain.Signal{}
	for _, s := range cache {
		if s == nil {
			continue
		}
		if existing, ok := bySymbol[s.Symbol]; !ok || s.Volume > existing.Volume {
			bySymbol[s.Symbol] = *s
		}
	}
	out := make([]domain.Signal, 0, len(bySymbol))
	for _, s := range bySymbol {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
