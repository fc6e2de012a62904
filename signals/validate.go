package signals

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"meridian/broker"
	"meridian/logger"
)

// Validator resolves bare-word ticker candidates in two layers: the SEC's
// public company-tickers list (refreshed on a 24h TTL) settles the common
// case without touching the broker; anything the SEC list doesn't know
// falls through to a broker asset lookup, cached per process.
type Validator struct {
	br   broker.Broker
	http *http.Client

	mu         sync.Mutex
	cache      map[string]validationEntry
	ttl        time.Duration
	secSymbols map[string]bool
	secFetched time.Time
}

type validationEntry struct {
	valid   bool
	fetched time.Time
}

const defaultValidationTTL = 24 * time.Hour

func NewValidator(br broker.Broker) *Validator {
	return &Validator{
		br:    br,
		http:  &http.Client{Timeout: 15 * time.Second},
		cache: map[string]validationEntry{},
		ttl:   defaultValidationTTL,
	}
}

// secKnown reports whether the SEC company-tickers list knows symbol,
// fetching or refreshing the list if it is stale. A fetch failure keeps
// whatever list is already loaded.
func (v *Validator) secKnown(ctx context.Context, symbol string) bool {
	v.mu.Lock()
	stale := v.secSymbols == nil || time.Since(v.secFetched) >= v.ttl
	v.mu.Unlock()

	if stale {
		v.refreshSECList(ctx)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.secSymbols[strings.ToUpper(symbol)]
}

func (v *Validator) refreshSECList(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.sec.gov/files/company_tickers.json", nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", "meridian-agent/1.0")
	resp, err := v.http.Do(req)
	if err != nil {
		logger.Warnf("[Signals] SEC ticker list fetch failed: %v", err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode >= 400 {
		logger.Warnf("[Signals] SEC ticker list fetch failed: status %d err %v", resp.StatusCode, err)
		return
	}
	var wire map[string]struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Warnf("[Signals] SEC ticker list parse failed: %v", err)
		return
	}
	symbols := make(map[string]bool, len(wire))
	for _, row := range wire {
		symbols[strings.ToUpper(row.Ticker)] = true
	}

	v.mu.Lock()
	v.secSymbols = symbols
	v.secFetched = time.Now()
	v.mu.Unlock()
}

// Valid reports whether symbol resolves to a known or tradable asset: the
// SEC list first, then the per-process broker-lookup cache.
func (v *Validator) Valid(ctx context.Context, symbol string) bool {
	if v.secKnown(ctx, symbol) {
		return true
	}

	v.mu.Lock()
	if e, ok := v.cache[symbol]; ok && time.Since(e.fetched) < v.ttl {
		v.mu.Unlock()
		return e.valid
	}
	v.mu.Unlock()

	asset, err := v.br.GetAsset(ctx, symbol)
	valid := err == nil && asset.Tradable

	v.mu.Lock()
	v.cache[symbol] = validationEntry{valid: valid, fetched: time.Now()}
	v.mu.Unlock()
	return valid
}

// ValidateCandidates filters bare candidates down to confirmed tradable
// symbols, checked concurrently since each check may be a network call.
func (v *Validator) ValidateCandidates(ctx context.Context, candidates []string) []string {
	type res struct {
		symbol string
		ok     bool
	}
	out := make(chan res, len(candidates))
	for _, c := range candidates {
		c := c
		go func() { out <- res{c, v.Valid(ctx, c)} }()
	}
	var valid []string
	for range candidates {
		r := <-out
		if r.ok {
			valid = append(valid, r.symbol)
		}
	}
	return valid
}
