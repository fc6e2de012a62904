package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meridian/domain"
	"meridian/logger"
)

// Gatherer fetches raw social mentions from one source and turns them into
// weighted Signal entries. Every fetch failure logs and returns an empty
// slice rather than an error — one dead source must never stall the tick.
type Gatherer struct {
	http *http.Client
}

func NewGatherer() *Gatherer {
	return &Gatherer{http: &http.Client{Timeout: 10 * time.Second}}
}

func (g *Gatherer) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "meridian-agent/1.0")
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}

// getWithBackoff retries a GET with exponential backoff, for the
// StockTwits endpoints that intermittently 403 behind their CDN.
func (g *Gatherer) getWithBackoff(ctx context.Context, url string, maxAttempts int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			}
		}
		body, err := g.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// FetchStockTwits pulls the public symbol stream for a watched ticker and
// turns each message into a weighted Signal. StockTwits messages carry an
// explicit basic/bullish/bearish sentiment tag the API computes itself, so
// raw_sentiment comes straight from that rather than a text classifier.
func (g *Gatherer) FetchStockTwits(ctx context.Context, symbol string, halfLifeMinutes float64, now time.Time) []domain.Signal {
	body, err := g.getWithBackoff(ctx, fmt.Sprintf("https://api.stocktwits.com/api/2/streams/symbol/%s.json", symbol), 3)
	if err != nil {
		logger.Warnf("[Signals] stocktwits fetch %s failed: %v", symbol, err)
		return nil
	}
	var wire struct {
		Messages []struct {
			Body      string    `json:"body"`
			CreatedAt time.Time `json:"created_at"`
			Entities  struct {
				Sentiment *struct {
					Basic string `json:"basic"`
				} `json:"sentiment"`
			} `json:"entities"`
			Likes struct {
				Total int `json:"total"`
			} `json:"likes"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Warnf("[Signals] stocktwits parse %s failed: %v", symbol, err)
		return nil
	}

	var out []domain.Signal
	for _, m := range wire.Messages {
		raw := 0.0
		if m.Entities.Sentiment != nil {
			switch strings.ToLower(m.Entities.Sentiment.Basic) {
			case "bullish":
				raw = 1
			case "bearish":
				raw = -1
			}
		}
		age := now.Sub(m.CreatedAt)
		likes := m.Likes.Total
		freshness := TimeDecay(age, halfLifeMinutes)
		weighted := WeightedSentiment(raw, "stocktwits", age, halfLifeMinutes, &likes, nil, nil)
		out = append(out, domain.Signal{
			Symbol:       symbol,
			Source:       "stocktwits",
			RawSentiment: raw,
			Sentiment:    weighted,
			Volume:       1,
			Freshness:    freshness,
			Timestamp:    m.CreatedAt,
		})
	}
	return out
}

// FetchTrending pulls StockTwits's public trending-symbols list and fetches
// each one's stream, so the gather step gets fresh candidates beyond
// whatever's already held or watched.
func (g *Gatherer) FetchTrending(ctx context.Context, halfLifeMinutes float64, now time.Time) []domain.Signal {
	body, err := g.getWithBackoff(ctx, "https://api.stocktwits.com/api/2/trending/symbols.json", 3)
	if err != nil {
		logger.Warnf("[Signals] stocktwits trending fetch failed: %v", err)
		return nil
	}
	var wire struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Warnf("[Signals] stocktwits trending parse failed: %v", err)
		return nil
	}

	var out []domain.Signal
	for _, s := range wire.Symbols {
		out = append(out, g.FetchStockTwits(ctx, s.Symbol, halfLifeMinutes, now)...)
	}
	return out
}

// redditSubreddits maps the polled communities to their source keys.
// fintwit is X/Twitter and handled separately via the Twitter confirmation
// flow, not this gatherer.
var redditSubreddits = map[string]string{
	"wsb":        "wallstreetbets",
	"stocks":     "stocks",
	"investing":  "investing",
	"options":    "options",
}

// FetchReddit pulls a subreddit's newest posts (public .json endpoint, no
// OAuth) and extracts tickers from title+selftext. Reddit gives no
// first-party sentiment tag, so raw_sentiment is a crude lexical count of
// bullish/bearish keywords clamped to [-1, 1] — good enough as one input
// among many weighted sources, not a standalone classifier.
func (g *Gatherer) FetchReddit(ctx context.Context, source string, halfLifeMinutes float64, now time.Time) []domain.Signal {
	sub, ok := redditSubreddits[source]
	if !ok {
		return nil
	}
	body, err := g.get(ctx, fmt.Sprintf("https://old.reddit.com/r/%s/new.json?limit=50", sub))
	if err != nil {
		logger.Warnf("[Signals] reddit fetch r/%s failed: %v", sub, err)
		return nil
	}
	var wire struct {
		Data struct {
			Children []struct {
				Data struct {
					Title        string  `json:"title"`
					Selftext     string  `json:"selftext"`
					CreatedUTC   float64 `json:"created_utc"`
					Ups          int     `json:"ups"`
					NumComments  int     `json:"num_comments"`
					LinkFlairText *string `json:"link_flair_text"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		logger.Warnf("[Signals] reddit parse r/%s failed: %v", sub, err)
		return nil
	}

	var out []domain.Signal
	for _, c := range wire.Data.Children {
		p := c.Data
		text := p.Title + " " + p.Selftext
		cashtags, bare := ExtractTickers(text)
		symbols := append(append([]string{}, cashtags...), bare...)
		if len(symbols) == 0 {
			continue
		}
		raw := lexicalSentiment(text)
		created := time.Unix(int64(p.CreatedUTC), 0)
		age := now.Sub(created)
		ups, comments := p.Ups, p.NumComments
		freshness := TimeDecay(age, halfLifeMinutes)
		weighted := WeightedSentiment(raw, source, age, halfLifeMinutes, &ups, &comments, p.LinkFlairText)
		for _, sym := range symbols {
			out = append(out, domain.Signal{
				Symbol:       sym,
				Source:       source,
				SourceDetail: "r/" + sub,
				RawSentiment: raw,
				Sentiment:    weighted,
				Volume:       1,
				Freshness:    freshness,
				Timestamp:    created,
			})
		}
	}
	return out
}

var bullishWords = []string{"moon", "calls", "bullish", "buy", "long", "squeeze", "breakout", "rocket"}
var bearishWords = []string{"puts", "bearish", "sell", "short", "crash", "dump", "bagholder"}

// lexicalSentiment is a crude bullish/bearish keyword count clamped to
// [-1, 1]; Reddit posts carry no first-party sentiment score the way
// StockTwits messages do.
func lexicalSentiment(text string) float64 {
	lower := strings.ToLower(text)
	score := 0
	for _, w := range bullishWords {
		score += strings.Count(lower, w)
	}
	for _, w := range bearishWords {
		score -= strings.Count(lower, w)
	}
	switch {
	case score > 3:
		return 1
	case score < -3:
		return -1
	default:
		return float64(score) / 3
	}
}
