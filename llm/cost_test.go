package llm

import (
	"testing"

	"meridian/domain"
)

func TestCostKnownModel(t *testing.T) {
	got := Cost("gpt-4o", Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	want := 2.5 + 10.0
	if got != want {
		t.Fatalf("Cost(gpt-4o) = %v, want %v", got, want)
	}
}

func TestCostUnknownModelFallsBackToMini(t *testing.T) {
	got := Cost("some-future-model", Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	want := 0.15 + 0.6
	if got != want {
		t.Fatalf("Cost(unknown) = %v, want %v", got, want)
	}
}

func TestRecordUsageAccumulates(t *testing.T) {
	ct := &domain.CostTracker{}
	RecordUsage(ct, "gpt-4o-mini", Usage{PromptTokens: 1000, CompletionTokens: 500})
	RecordUsage(ct, "gpt-4o-mini", Usage{PromptTokens: 2000, CompletionTokens: 1000})
	if ct.CallCount != 2 {
		t.Fatalf("CallCount = %d, want 2", ct.CallCount)
	}
	if ct.TotalPromptTokens != 3000 || ct.TotalCompletionTokens != 1500 {
		t.Fatalf("token totals wrong: %+v", ct)
	}
	if ct.TotalCostUSD <= 0 {
		t.Fatalf("TotalCostUSD should accumulate, got %v", ct.TotalCostUSD)
	}
}
