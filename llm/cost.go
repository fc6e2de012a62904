package llm

import "meridian/domain"

// pricePerMillion maps model to prompt/completion rates in dollars per
// million tokens.
var pricePerMillion = map[string][2]float64{
	"gpt-4o":      {2.5, 10.0},
	"gpt-4o-mini": {0.15, 0.6},
}

// Cost returns the USD cost of a completion under model's rate table;
// unknown models fall back to gpt-4o-mini's rate rather than reporting
// zero, since an undercounted cost ledger is worse than an approximate one.
func Cost(model string, usage Usage) float64 {
	rates, ok := pricePerMillion[model]
	if !ok {
		rates = pricePerMillion["gpt-4o-mini"]
	}
	promptCost := float64(usage.PromptTokens) / 1_000_000 * rates[0]
	completionCost := float64(usage.CompletionTokens) / 1_000_000 * rates[1]
	return promptCost + completionCost
}

// RecordUsage folds one completion's usage into the persisted cost tracker.
func RecordUsage(ct *domain.CostTracker, model string, usage Usage) {
	ct.TotalPromptTokens += usage.PromptTokens
	ct.TotalCompletionTokens += usage.CompletionTokens
	ct.TotalCostUSD += Cost(model, usage)
	ct.CallCount++
}
