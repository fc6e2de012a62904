package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"meridian/logger"
)

// Discord posts to an incoming webhook URL. Webhooks need nothing beyond
// a POST of a JSON body, so no SDK is pulled in for this.
type Discord struct {
	webhookURL string
	http       *http.Client
	gate       *cooldownGate
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 5 * time.Second},
		gate:       newCooldownGate(),
	}
}

func (d *Discord) post(content string) {
	if d.webhookURL == "" {
		return
	}
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.http.Do(req)
	if err != nil {
		logger.Debugf("[Notify] discord post failed: %v", err)
		return
	}
	resp.Body.Close()
}

// NotifyTrade sends a trade event, rate-limited per key to once every
// 30m.
func (d *Discord) NotifyTrade(message string) {
	if !d.gate.allow("trade:"+message[:min(len(message), 32)], tradeCooldown, time.Now()) {
		return
	}
	d.post(message)
}

// NotifyCrisis sends a crisis-level event, rate-limited to once every 5m;
// escalations are urgent enough to deserve a shorter window than routine
// trade chatter.
func (d *Discord) NotifyCrisis(message string) {
	if !d.gate.allow("crisis", crisisCooldown, time.Now()) {
		return
	}
	d.post(message)
}
