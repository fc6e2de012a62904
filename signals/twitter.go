package signals

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

// TwitterChecker checks X/Twitter for breaking news confirming or
// contradicting a held position's thesis, rate-limited by a daily read
// budget. It talks the bearer-token v2 recent-search endpoint directly;
// the call surface is too small to justify an SDK.
type TwitterChecker struct {
	http        *http.Client
	bearerToken string
}

func NewTwitterChecker(bearerToken string) *TwitterChecker {
	return &TwitterChecker{http: &http.Client{Timeout: 10 * time.Second}, bearerToken: bearerToken}
}

// CheckBreakingNews queries recent tweets mentioning symbol and classifies
// the result as confirming or contradicting the position's entry thesis
// using the same lexical sentiment heuristic the Reddit gatherer uses.
// Budget exhaustion is a silent no-op, never an error.
func (c *TwitterChecker) CheckBreakingNews(ctx context.Context, state *domain.AgentState, symbol string, bullishThesis bool, now time.Time) {
	if c.bearerToken == "" {
		return
	}
	if now.Sub(state.TwitterDailyReset) >= 24*time.Hour {
		state.TwitterDailyReads = 0
		state.TwitterDailyReset = now
	}
	if state.TwitterDailyReads >= state.Config.TwitterDailyBudget {
		return
	}

	url := fmt.Sprintf("https://api.twitter.com/2/tweets/search/recent?query=%%24%s&max_results=20", symbol)
	body, err := c.get(ctx, url)
	state.TwitterDailyReads++
	if err != nil {
		logger.Warnf("[Signals] twitter check %s failed: %v", symbol, err)
		return
	}

	var wire struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return
	}

	score := 0.0
	for _, t := range wire.Data {
		score += lexicalSentiment(t.Text)
	}
	if len(wire.Data) > 0 {
		score /= float64(len(wire.Data))
	}

	confirmed := (bullishThesis && score > 0.1) || (!bullishThesis && score < -0.1)
	contradicted := (bullishThesis && score < -0.1) || (!bullishThesis && score > 0.1)
	state.TwitterConfirmations[symbol] = domain.TwitterConfirmation{
		Symbol: symbol, Confirmed: confirmed, Contradicted: contradicted, Timestamp: now,
	}
}

func (c *TwitterChecker) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	resp, err := c.http.Do(req)
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
