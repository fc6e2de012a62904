// Package crisis implements the 4-level macro de-risking state machine:
// concurrent indicator fetch, threshold scoring, level transitions, and the
// de-risking actions a level imposes on the rest of the agent.
package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meridian/domain"
	"meridian/logger"
)

// Sources is the crisis monitor's external collaborator: every indicator
// fetch is an independent HTTP GET, fired concurrently and joined. Every
// failure yields a nil pointer rather than an error; crisis scoring must
// tolerate any subset of indicators being absent.
type Sources struct {
	http       *http.Client
	fredAPIKey string
}

func NewSources(fredAPIKey string) *Sources {
	return &Sources{http: &http.Client{Timeout: 10 * time.Second}, fredAPIKey: fredAPIKey}
}

// Fetch gathers every indicator concurrently and returns the joined
// Indicators snapshot. StocksAbove200MA stays nil until a breadth source
// exists; scoring skips nil indicators.
func (s *Sources) Fetch(ctx context.Context) domain.Indicators {
	fetchers := []func(context.Context) func(*domain.Indicators){
		s.fetchVIX,
		s.fetchBTC,
		s.fetchUSDT,
		s.fetchGoldSilver,
		s.fetchHYSpreadProxy,
		s.fetchDXY,
		s.fetchUSDJPY,
		s.fetchKRE,
		s.fetchYieldCurve,
		s.fetchTED,
		s.fetchFedBalanceSheet,
	}

	results := make(chan func(*domain.Indicators), len(fetchers))
	for _, f := range fetchers {
		f := f
		go func() { results <- f(ctx) }()
	}

	ind := domain.Indicators{LastUpdated: time.Now()}
	for range fetchers {
		if set := <-results; set != nil {
			set(&ind)
		}
	}
	return ind
}

func ptr(f float64) *float64 { return &f }

// yahooChart hits a Yahoo Finance chart endpoint and returns the closing
// prices of the requested range, newest-last. Every caller treats a fetch
// error as "indicator absent", never fatal.
func (s *Sources) yahooChart(ctx context.Context, symbol, rangeStr, interval string) ([]float64, error) {
	url := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=%s", symbol, rangeStr, interval)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("yahoo chart %s: status %d", symbol, resp.StatusCode)
	}

	var wire struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	if len(wire.Chart.Result) == 0 || len(wire.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: empty result", symbol)
	}
	closes := []float64{}
	for _, c := range wire.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: no closes", symbol)
	}
	return closes, nil
}

func weeklyPct(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	first, last := closes[0], closes[len(closes)-1]
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

func (s *Sources) fetchVIX(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "^VIX", "5d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] VIX fetch failed: %v", err)
		return nil
	}
	v := closes[len(closes)-1]
	return func(ind *domain.Indicators) { ind.VIX = ptr(v) }
}

func (s *Sources) fetchBTC(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "BTC-USD", "7d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] BTC fetch failed: %v", err)
		return nil
	}
	price := closes[len(closes)-1]
	weekly := weeklyPct(closes)
	return func(ind *domain.Indicators) { ind.BTCPrice = ptr(price); ind.BTCWeeklyPct = ptr(weekly) }
}

func (s *Sources) fetchUSDT(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "USDT-USD", "1d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] USDT fetch failed: %v", err)
		return nil
	}
	peg := closes[len(closes)-1]
	return func(ind *domain.Indicators) { ind.USDTPeg = ptr(peg) }
}

func (s *Sources) fetchGoldSilver(ctx context.Context) func(*domain.Indicators) {
	gold, errG := s.yahooChart(ctx, "GC=F", "5d", "1d")
	silver, errS := s.yahooChart(ctx, "SI=F", "5d", "1d")
	if errG != nil || errS != nil {
		logger.Warnf("[Crisis] gold/silver fetch failed: gold=%v silver=%v", errG, errS)
		return nil
	}
	ratio := gold[len(gold)-1] / silver[len(silver)-1]
	silverWeekly := weeklyPct(silver)
	return func(ind *domain.Indicators) { ind.GoldSilverRatio = ptr(ratio); ind.SilverWeeklyPct = ptr(silverWeekly) }
}

// fetchHYSpreadProxy computes a synthetic HY-OAS stand-in from HYG vs TLT
// 5-day relative performance: max(200, 300 - 10*proxy), where proxy is HYG's
// 5-day % change minus TLT's. FRED has
// no intraday HY-OAS series, so this proxy is the best available read.
func (s *Sources) fetchHYSpreadProxy(ctx context.Context) func(*domain.Indicators) {
	hyg, errH := s.yahooChart(ctx, "HYG", "5d", "1d")
	tlt, errT := s.yahooChart(ctx, "TLT", "5d", "1d")
	if errH != nil || errT != nil {
		logger.Warnf("[Crisis] HY spread proxy fetch failed: hyg=%v tlt=%v", errH, errT)
		return nil
	}
	proxy := weeklyPct(hyg) - weeklyPct(tlt)
	spread := 300 + proxy*-10 // underperformance of HYG vs TLT widens the proxy spread
	if spread < 200 {
		spread = 200
	}
	return func(ind *domain.Indicators) { ind.HYSpread = ptr(spread) }
}

func (s *Sources) fetchDXY(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "DX-Y.NYB", "1d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] DXY fetch failed: %v", err)
		return nil
	}
	v := closes[len(closes)-1]
	return func(ind *domain.Indicators) { ind.DXY = ptr(v) }
}

func (s *Sources) fetchUSDJPY(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "USDJPY=X", "1d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] USDJPY fetch failed: %v", err)
		return nil
	}
	v := closes[len(closes)-1]
	return func(ind *domain.Indicators) { ind.USDJPY = ptr(v) }
}

func (s *Sources) fetchKRE(ctx context.Context) func(*domain.Indicators) {
	closes, err := s.yahooChart(ctx, "KRE", "7d", "1d")
	if err != nil {
		logger.Warnf("[Crisis] KRE fetch failed: %v", err)
		return nil
	}
	v := closes[len(closes)-1]
	weekly := weeklyPct(closes)
	return func(ind *domain.Indicators) { ind.KRE = ptr(v); ind.KREWeeklyPct = ptr(weekly) }
}

func (s *Sources) fredSeries(ctx context.Context, series string) (float64, error) {
	if s.fredAPIKey == "" {
		return 0, fmt.Errorf("no FRED API key configured")
	}
	url := fmt.Sprintf("https://api.stlouisfed.org/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=1", series, s.fredAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("fred %s: status %d", series, resp.StatusCode)
	}
	var wire struct {
		Observations []struct {
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return 0, err
	}
	if len(wire.Observations) == 0 {
		return 0, fmt.Errorf("fred %s: no observations", series)
	}
	var v float64
	if _, err := fmt.Sscanf(wire.Observations[0].Value, "%f", &v); err != nil {
		return 0, fmt.Errorf("fred %s: unparseable value %q", series, wire.Observations[0].Value)
	}
	return v, nil
}

func (s *Sources) fetchYieldCurve(ctx context.Context) func(*domain.Indicators) {
	v, err := s.fredSeries(ctx, "T10Y2Y")
	if err != nil {
		logger.Warnf("[Crisis] yield curve fetch failed: %v", err)
		return nil
	}
	return func(ind *domain.Indicators) { ind.YieldCurve2Y10Y = ptr(v) }
}

func (s *Sources) fetchTED(ctx context.Context) func(*domain.Indicators) {
	v, err := s.fredSeries(ctx, "TEDRATE")
	if err != nil {
		logger.Warnf("[Crisis] TED fetch failed: %v", err)
		return nil
	}
	return func(ind *domain.Indicators) { ind.TED = ptr(v) }
}

func (s *Sources) fetchFedBalanceSheet(ctx context.Context) func(*domain.Indicators) {
	v, err := s.fredSeries(ctx, "WALCL")
	if err != nil {
		logger.Warnf("[Crisis] Fed balance sheet fetch failed: %v", err)
		return nil
	}
	return func(ind *domain.Indicators) { ind.FedBalanceSheet = ptr(v) }
}
