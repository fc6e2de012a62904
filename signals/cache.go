package signals

import (
	"math"
	"sort"
	"time"

	"meridian/domain"
)

const (
	// CacheMaxEntries caps the in-memory signal cache, keeping the
	// entries with the largest |sentiment| once exceeded.
	CacheMaxEntries = 200
	// CacheTTL expires entries older than 24h regardless of cap.
	CacheTTL = 24 * time.Hour
)

// Prune drops entries older than CacheTTL, then trims to CacheMaxEntries
// by keeping the entries with the largest |sentiment|.
func Prune(cache []*domain.SignalLog, now time.Time) []*domain.SignalLog {
	fresh := cache[:0:0]
	for _, s := range cache {
		if now.Sub(s.Timestamp) <= CacheTTL {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) <= CacheMaxEntries {
		return fresh
	}
	sort.Slice(fresh, func(i, j int) bool {
		return math.Abs(fresh[i].Sentiment) > math.Abs(fresh[j].Sentiment)
	})
	return fresh[:CacheMaxEntries]
}

// AggregateBySymbol sums recent signal volume/sentiment per symbol, for
// callers that need a single snapshot (e.g. the premarket plan) rather than
// the raw per-mention log.
func AggregateBySymbol(cache []*domain.SignalLog) map[string]domain.SocialSample {
	out := map[string]domain.SocialSample{}
	for _, s := range cache {
		agg := out[s.Symbol]
		agg.Volume += s.Volume
		agg.Sentiment += s.Sentiment * s.Volume
		if s.Timestamp.After(agg.Timestamp) {
			agg.Timestamp = s.Timestamp
		}
		out[s.Symbol] = agg
	}
	for sym, agg := range out {
		if agg.Volume > 0 {
			agg.Sentiment /= agg.Volume
		}
		out[sym] = agg
	}
	return out
}
