package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meridian/config"
	"meridian/domain"
	"meridian/logger"
	"meridian/metrics"
)

// verdictWire is the JSON-mode completion's expected shape. A parse
// failure is treated as no recommendation: ResearchSignal/ResearchPosition return a
// "wait"/zero-confidence ResearchResult rather than an error, so a flaky
// completion never blocks a tick.
type verdictWire struct {
	Verdict      string  `json:"verdict"`
	Confidence   float64 `json:"confidence"`
	EntryQuality string  `json:"entry_quality"`
	Reasoning    string  `json:"reasoning"`
}

// Researcher assembles prompts from signals/positions and parses the
// model's JSON-mode verdict into a domain.ResearchResult.
type Researcher struct {
	client *Client
	cfg    config.Config
}

func NewResearcher(client *Client, cfg config.Config) *Researcher {
	return &Researcher{client: client, cfg: cfg}
}

// Reconfigure swaps the researcher's model/base-URL/key and tunables in
// place, so the admin /config route can "reinitialize the LLM" without the
// actor tearing down and rebuilding its collaborators.
func (r *Researcher) Reconfigure(client *Client, cfg config.Config) {
	r.client = client
	r.cfg = cfg
}

// ResearchSignal asks the model to evaluate a fresh candidate signal for
// entry.
func (r *Researcher) ResearchSignal(ctx context.Context, sig domain.Signal, ct *domain.CostTracker) domain.ResearchResult {
	prompt := fmt.Sprintf(
		"Evaluate %s as a trading candidate.\nSource: %s (%s)\nWeighted sentiment: %.3f\nVolume: %.1f\nFreshness: %.2f\n\n"+
			"Respond with a JSON object: {\"verdict\": \"buy|sell|hold|wait\", \"confidence\": 0.0-1.0, \"entry_quality\": \"poor|fair|good|excellent\", \"reasoning\": \"...\"}",
		sig.Symbol, sig.Source, sig.SourceDetail, sig.Sentiment, sig.Volume, sig.Freshness,
	)
	return r.complete(ctx, sig.Symbol, "You are a disciplined trading analyst. Only recommend high-conviction setups.", prompt, ct)
}

// ResearchPosition asks the model whether to hold, sell, or stay on a held
// position given current staleness/confirmation signals.
func (r *Researcher) ResearchPosition(ctx context.Context, symbol string, holdHours float64, plPct float64, ct *domain.CostTracker) domain.ResearchResult {
	prompt := fmt.Sprintf(
		"Held position %s: hold time %.1fh, unrealized P&L %.2f%%. "+
			"Respond with a JSON object: {\"verdict\": \"buy|sell|hold\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}",
		symbol, holdHours, plPct,
	)
	return r.complete(ctx, symbol, "You are a disciplined trading analyst managing an open position.", prompt, ct)
}

func (r *Researcher) complete(ctx context.Context, symbol, systemPrompt, userPrompt string, ct *domain.CostTracker) domain.ResearchResult {
	now := time.Now()
	resp, err := r.client.Complete(ctx, Request{
		Model: r.cfg.LLMModel,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      r.cfg.LLMMaxTokens,
		Temperature:    r.cfg.LLMTemperature,
		ResponseFormat: "json_object",
	})
	if err != nil {
		logger.Warnf("[LLM] research %s failed: %v", symbol, err)
		metrics.RecordLLMCall(r.cfg.LLMModel, "error", time.Since(now).Seconds())
		return domain.ResearchResult{Symbol: symbol, Verdict: "wait", Timestamp: now}
	}
	RecordUsage(ct, r.cfg.LLMModel, resp.Usage)
	metrics.LLMCostUSDTotal.Add(Cost(r.cfg.LLMModel, resp.Usage))

	var wire verdictWire
	content := strings.TrimSpace(resp.Content)
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		logger.Warnf("[LLM] research %s: unparseable verdict, treating as no recommendation: %v", symbol, err)
		metrics.RecordLLMCall(r.cfg.LLMModel, "unparseable", time.Since(now).Seconds())
		return domain.ResearchResult{Symbol: symbol, Verdict: "wait", Timestamp: now}
	}
	metrics.RecordLLMCall(r.cfg.LLMModel, "ok", time.Since(now).Seconds())

	return domain.ResearchResult{
		Symbol:       symbol,
		Verdict:      strings.ToLower(wire.Verdict),
		Confidence:   wire.Confidence,
		EntryQuality: strings.ToLower(wire.EntryQuality),
		Reasoning:    wire.Reasoning,
		Timestamp:    now,
	}
}

// AnalystVerdict is the periodic analyst pass's per-symbol
// recommendation.
type AnalystVerdict struct {
	Symbol     string
	Action     string // BUY, SELL, HOLD
	Confidence float64
	Reasoning  string
}

// RunAnalystPass feeds the top candidates and current positions to the
// analyst model in one batched completion and returns one verdict per
// symbol. The prompt states the min-hold rule in prose for every verdict;
// callers enforce it in code only for SELL.
func (r *Researcher) RunAnalystPass(ctx context.Context, candidates []domain.Signal, positions []domain.PositionEntry, ct *domain.CostTracker) ([]AnalystVerdict, error) {
	var sb strings.Builder
	sb.WriteString("Candidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s sentiment=%.3f volume=%.1f\n", c.Symbol, c.Sentiment, c.Volume)
	}
	sb.WriteString("\nCurrent positions:\n")
	for _, p := range positions {
		fmt.Fprintf(&sb, "- %s entry=%.2f held_since=%s\n", p.Symbol, p.EntryPrice, p.EntryTime.Format(time.RFC3339))
	}
	sb.WriteString("\nA SELL recommendation only applies if the position has been held at least 30 minutes; BUY/HOLD are unaffected by hold time.\n")
	sb.WriteString("Respond with a JSON object: {\"verdicts\": [{\"symbol\": \"...\", \"action\": \"BUY|SELL|HOLD\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}]}")

	resp, err := r.client.Complete(ctx, Request{
		Model: r.cfg.LLMModel,
		Messages: []Message{
			{Role: "system", Content: "You are the agent's periodic portfolio analyst."},
			{Role: "user", Content: sb.String()},
		},
		MaxTokens:      r.cfg.LLMMaxTokens,
		Temperature:    r.cfg.LLMTemperature,
		ResponseFormat: "json_object",
	})
	if err != nil {
		metrics.RecordLLMCall(r.cfg.LLMModel, "error", 0)
		return nil, fmt.Errorf("analyst pass failed: %w", err)
	}
	RecordUsage(ct, r.cfg.LLMModel, resp.Usage)
	metrics.LLMCostUSDTotal.Add(Cost(r.cfg.LLMModel, resp.Usage))

	var wire struct {
		Verdicts []struct {
			Symbol     string  `json:"symbol"`
			Action     string  `json:"action"`
			Confidence float64 `json:"confidence"`
			Reasoning  string  `json:"reasoning"`
		} `json:"verdicts"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &wire); err != nil {
		return nil, fmt.Errorf("analyst pass: unparseable response: %w", err)
	}
	out := make([]AnalystVerdict, 0, len(wire.Verdicts))
	for _, v := range wire.Verdicts {
		out = append(out, AnalystVerdict{Symbol: v.Symbol, Action: strings.ToUpper(v.Action), Confidence: v.Confidence, Reasoning: v.Reasoning})
	}
	return out, nil
}
