package signals

import (
	"testing"
	"time"

	"meridian/domain"
)

func TestPruneDropsExpired(t *testing.T) {
	now := time.Now()
	cache := []*domain.SignalLog{
		{Symbol: "OLD", Timestamp: now.Add(-25 * time.Hour)},
		{Symbol: "FRESH", Timestamp: now.Add(-1 * time.Hour)},
	}
	out := Prune(cache, now)
	if len(out) != 1 || out[0].Symbol != "FRESH" {
		t.Fatalf("Prune = %+v, want only FRESH", out)
	}
}

func TestPruneCapsAtMax(t *testing.T) {
	now := time.Now()
	var cache []*domain.SignalLog
	for i := 0; i < CacheMaxEntries+50; i++ {
		cache = append(cache, &domain.SignalLog{Symbol: "X", Timestamp: now.Add(-time.Duration(i) * time.Minute)})
	}
	out := Prune(cache, now)
	if len(out) != CacheMaxEntries {
		t.Fatalf("len = %d, want %d", len(out), CacheMaxEntries)
	}
}

func TestAggregateBySymbolVolumeWeighted(t *testing.T) {
	now := time.Now()
	cache := []*domain.SignalLog{
		{Symbol: "AAPL", Sentiment: 1.0, Volume: 1, Timestamp: now},
		{Symbol: "AAPL", Sentiment: -1.0, Volume: 3, Timestamp: now},
	}
	agg := AggregateBySymbol(cache)
	a := agg["AAPL"]
	if a.Volume != 4 {
		t.Fatalf("volume = %v, want 4", a.Volume)
	}
	want := (1.0*1 + -1.0*3) / 4
	if a.Sentiment != want {
		t.Fatalf("sentiment = %v, want %v", a.Sentiment, want)
	}
}
