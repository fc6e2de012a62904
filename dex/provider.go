package dex

import (
	"context"

	"meridian/domain"
)

// TierFilter is the per-tier scan filter the provider applies.
type TierFilter struct {
	Tier        domain.Tier
	MinAgeHours float64
	MaxAgeHours float64
	MinLiquidityUSD float64
	Min5mPumpPct    float64 // breakout tier only; 0 disables the extra gate
	MinLegitimacy   float64 // early tier only; 0 disables the gate
}

// Pattern is one recognized chart pattern from AnalyzeChart.
type Pattern struct {
	Pattern     string `json:"pattern"`
	Signal      string `json:"signal"`
	Description string `json:"description"`
}

// ChartAnalysis is the chart analyzer's verdict on a candidate token.
type ChartAnalysis struct {
	Timeframe      string    `json:"timeframe"`
	Candles        int       `json:"candles"`
	EntryScore     float64   `json:"entry_score"` // [0, 100]
	Recommendation string    `json:"recommendation"`
	TrendIndicator string    `json:"trend"`
	VolumeProfile  string    `json:"volume_profile"`
	Patterns       []Pattern `json:"patterns"`
}

// Provider is the DEX data collaborator: a momentum scanner and an
// optional OHLCV chart analyzer. Both fail soft — errors are logged by the
// caller, never fatal to a tick.
type Provider interface {
	FindMomentumTokens(ctx context.Context, filters []TierFilter) ([]domain.DexCandidate, error)
	AnalyzeChart(ctx context.Context, tokenAddress string, ageHours float64) (*ChartAnalysis, error)
	SolUsdPrice(ctx context.Context) (float64, error)
}

// DefaultTierFilters returns the five tiers' scan filters with fixed
// liquidity/age thresholds from the momentum engine's tier table; they do
// not read the config.
func DefaultTierFilters() []TierFilter {
	return []TierFilter{
		{Tier: domain.TierMicrospray, MinAgeHours: 0.5, MaxAgeHours: 2, MinLiquidityUSD: 10_000},
		{Tier: domain.TierBreakout, MinAgeHours: 2, MaxAgeHours: 6, MinLiquidityUSD: 15_000, Min5mPumpPct: 50},
		{Tier: domain.TierLottery, MinAgeHours: 1, MaxAgeHours: 6, MinLiquidityUSD: 15_000},
		{Tier: domain.TierEarly, MinAgeHours: 6, MaxAgeHours: 72, MinLiquidityUSD: 30_000, MinLegitimacy: 40},
		{Tier: domain.TierEstablished, MinAgeHours: 72, MaxAgeHours: 336, MinLiquidityUSD: 50_000},
	}
}

// tierMaxConcurrent returns the cap on simultaneously open positions for a
// tier; early/established share the engine-wide MaxPositions cap.
func tierMaxConcurrent(tier domain.Tier, microspray, breakout, lottery, shared int) (limit int, sharesPool bool) {
	switch tier {
	case domain.TierMicrospray:
		return microspray, false
	case domain.TierBreakout:
		return breakout, false
	case domain.TierLottery:
		return lottery, false
	default:
		return shared, true
	}
}
