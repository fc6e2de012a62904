package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"meridian/domain"
	"meridian/logger"
)

const (
	dexScreenerSearchAPI = "https://api.dexscreener.com/latest/dex/search"
	solanaChainID        = "solana"
)

// dexScreenerResponse and friends mirror the DexScreener search API's
// camelCase JSON shape.
type dexScreenerResponse struct {
	SchemaVersion string            `json:"schemaVersion"`
	Pairs         []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID       string          `json:"chainId"`
	DexID         string          `json:"dexId"`
	URL           string          `json:"url"`
	PairAddress   string          `json:"pairAddress"`
	BaseToken     dexScreenerTok  `json:"baseToken"`
	PriceUsd      string          `json:"priceUsd"`
	Txns          dexScreenerTxns `json:"txns"`
	Volume        dexScreenerVol  `json:"volume"`
	PriceChange   dexScreenerChg  `json:"priceChange"`
	Liquidity     dexScreenerLiq  `json:"liquidity"`
	PairCreatedAt int64           `json:"pairCreatedAt"` // epoch millis
}

type dexScreenerTok struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}
type dexScreenerBuysSells struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}
type dexScreenerTxns struct {
	M5 dexScreenerBuysSells `json:"m5"`
	H1 dexScreenerBuysSells `json:"h1"`
}
type dexScreenerVol struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
	M5  float64 `json:"m5"`
}
type dexScreenerChg struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}
type dexScreenerLiq struct {
	Usd float64 `json:"usd"`
}

// DexScreenerProvider polls the public DexScreener search endpoint once per
// configured search query, scores candidates into domain.DexCandidate and
// assigns tiers locally. SOL/USD is cached with a 5-minute TTL; on fetch
// failure it falls back to the last fetched price, or to the config's
// static price when none has been fetched yet.
type DexScreenerProvider struct {
	httpClient *http.Client
	queries    []string // search terms per scan; "solana" catches broad new-pair flow

	mu           sync.Mutex
	solUsdCache  float64
	solUsdAt     time.Time
	solUsdFallback float64
}

// NewDexScreenerProvider constructs a provider with a bounded HTTP
// client.
func NewDexScreenerProvider(solUsdFallback float64, queries ...string) *DexScreenerProvider {
	if len(queries) == 0 {
		queries = []string{"solana"}
	}
	return &DexScreenerProvider{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		queries:        queries,
		solUsdFallback: solUsdFallback,
	}
}

func (p *DexScreenerProvider) FindMomentumTokens(ctx context.Context, filters []TierFilter) ([]domain.DexCandidate, error) {
	seen := map[string]domain.DexCandidate{}

	for _, q := range p.queries {
		pairs, err := p.search(ctx, q)
		if err != nil {
			logger.Warnf("⚠️  [DEX] DexScreener search %q failed: %v", q, err)
			continue
		}
		now := time.Now()
		for _, pair := range pairs {
			if pair.ChainID != solanaChainID {
				continue
			}
			cand, ok := scoreCandidate(pair, now)
			if !ok {
				continue
			}
			if tier, ok := matchTier(cand, filters); ok {
				cand.Tier = tier
				seen[cand.TokenAddress] = cand
			}
		}
	}

	out := make([]domain.DexCandidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out, nil
}

func (p *DexScreenerProvider) search(ctx context.Context, query string) ([]dexScreenerPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dexScreenerSearchAPI+"?q="+query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener status %d", resp.StatusCode)
	}
	var parsed dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode dexscreener response: %w", err)
	}
	return parsed.Pairs, nil
}

// scoreCandidate converts a raw pair into a scored DexCandidate. The
// momentum score blends 6h/24h price action, 5m buy/sell pressure and
// liquidity depth into [0, 100].
func scoreCandidate(pair dexScreenerPair, now time.Time) (domain.DexCandidate, bool) {
	priceUsd, err := strconv.ParseFloat(pair.PriceUsd, 64)
	if err != nil || priceUsd <= 0 {
		return domain.DexCandidate{}, false
	}
	if pair.PairCreatedAt == 0 {
		return domain.DexCandidate{}, false
	}

	age := now.Sub(time.UnixMilli(pair.PairCreatedAt))
	ageHours := age.Hours()
	if ageHours < 0 {
		return domain.DexCandidate{}, false
	}

	buySellRatio := 0.5
	if total := pair.Txns.M5.Buys + pair.Txns.M5.Sells; total > 0 {
		buySellRatio = float64(pair.Txns.M5.Buys) / float64(total)
	}

	liqScore := math.Min(pair.Liquidity.Usd/100_000, 1) * 20
	priceScore := clamp((pair.PriceChange.H6+pair.PriceChange.H24)/2, 0, 200) / 200 * 40
	volScore := math.Min(pair.Volume.M5/20_000, 1) * 20
	pressureScore := buySellRatio * 20
	momentum := clamp(liqScore+priceScore+volScore+pressureScore, 0, 100)

	legitimacy := clamp(liqScore*2+float64(pair.Txns.H1.Buys+pair.Txns.H1.Sells)/2, 0, 100)

	var change5m *float64
	if pair.Txns.M5.Buys+pair.Txns.M5.Sells > 0 {
		v := pair.PriceChange.M5
		change5m = &v
	}

	return domain.DexCandidate{
		TokenAddress:    pair.BaseToken.Address,
		Symbol:          pair.BaseToken.Symbol,
		Name:            pair.BaseToken.Name,
		URL:             pair.URL,
		PriceUsd:        priceUsd,
		PriceChange5m:   change5m,
		PriceChange6h:   pair.PriceChange.H6,
		PriceChange24h:  pair.PriceChange.H24,
		Volume24h:       pair.Volume.H24,
		Liquidity:       pair.Liquidity.Usd,
		AgeHours:        ageHours,
		AgeDays:         ageHours / 24,
		MomentumScore:   momentum,
		LegitimacyScore: legitimacy,
		DexID:           pair.DexID,
	}, true
}

func matchTier(cand domain.DexCandidate, filters []TierFilter) (domain.Tier, bool) {
	for _, f := range filters {
		if cand.AgeHours < f.MinAgeHours || cand.AgeHours > f.MaxAgeHours {
			continue
		}
		if cand.Liquidity < f.MinLiquidityUSD {
			continue
		}
		if f.Min5mPumpPct > 0 {
			if cand.PriceChange5m == nil || *cand.PriceChange5m < f.Min5mPumpPct {
				continue
			}
		}
		if f.MinLegitimacy > 0 && cand.LegitimacyScore < f.MinLegitimacy {
			continue
		}
		return f.Tier, true
	}
	return "", false
}

func (p *DexScreenerProvider) SolUsdPrice(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.solUsdAt) < 5*time.Minute && p.solUsdCache > 0 {
		return p.solUsdCache, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dexScreenerSearchAPI+"?q=SOL", nil)
	if err != nil {
		return p.fallback(), err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.fallback(), err
	}
	defer resp.Body.Close()

	var parsed dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return p.fallback(), err
	}
	for _, pair := range parsed.Pairs {
		if pair.BaseToken.Symbol != "SOL" {
			continue
		}
		if price, err := strconv.ParseFloat(pair.PriceUsd, 64); err == nil && price > 0 {
			p.solUsdCache = price
			p.solUsdAt = time.Now()
			return price, nil
		}
	}
	return p.fallback(), fmt.Errorf("no SOL pair found in dexscreener response")
}

func (p *DexScreenerProvider) fallback() float64 {
	if p.solUsdCache > 0 {
		return p.solUsdCache
	}
	return p.solUsdFallback
}

// AnalyzeChart is a narrow placeholder: DexScreener's public search API
// doesn't expose OHLCV candles, so this provider reports "no data" rather
// than fabricate one. Per the entry precondition in the momentum engine,
// absence of chart data is non-fatal and the candidate proceeds.
func (p *DexScreenerProvider) AnalyzeChart(ctx context.Context, tokenAddress string, ageHours float64) (*ChartAnalysis, error) {
	return nil, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
