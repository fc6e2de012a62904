package broker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meridian/logger"
)

// PriceStream is an optional streaming quote subscription the crypto
// snapshot gatherer consults before falling back to a polled REST call:
// dial, read loop, reconnect-on-drop, feeding a plain read-mostly cache
// since the actor's tick polls rather than reacts to pushed prices.
type PriceStream struct {
	wsURL string

	mu     sync.RWMutex
	prices map[string]streamedPrice

	running bool
	stopCh  chan struct{}
}

type streamedPrice struct {
	price     float64
	updatedAt time.Time
}

// NewPriceStream builds a stream against Binance's combined miniTicker feed
// for the given symbols (lowercased automatically, per Binance's stream
// naming convention).
func NewPriceStream(symbols []string) *PriceStream {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	return &PriceStream{
		wsURL:  "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/"),
		prices: map[string]streamedPrice{},
		stopCh: make(chan struct{}),
	}
}

// Start dials the stream in the background. A dial failure is logged and
// left to the reconnect loop; callers never block on Start and the crypto
// snapshot gatherer's REST fallback covers the gap until it reconnects.
func (p *PriceStream) Start() {
	p.running = true
	go p.runLoop()
}

func (p *PriceStream) Stop() {
	p.running = false
	close(p.stopCh)
}

// Price returns the last streamed price for symbol and whether it is fresh
// enough (within maxAge) to trust over a fresh REST call.
func (p *PriceStream) Price(symbol string, maxAge time.Duration) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sp, ok := p.prices[strings.ToUpper(symbol)]
	if !ok || time.Since(sp.updatedAt) > maxAge {
		return 0, false
	}
	return sp.price, true
}

func (p *PriceStream) runLoop() {
	for p.running {
		if err := p.connectAndRead(); err != nil {
			logger.Warnf("[PriceStream] %v", err)
			select {
			case <-p.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
	}
}

func (p *PriceStream) connectAndRead() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(p.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	for p.running {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		p.handleMessage(raw)
	}
	return nil
}

type miniTickerEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func (p *PriceStream) handleMessage(raw []byte) {
	var env miniTickerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	price, err := strconv.ParseFloat(env.Data.Close, 64)
	if err != nil || env.Data.Symbol == "" {
		return
	}
	p.mu.Lock()
	p.prices[env.Data.Symbol] = streamedPrice{price: price, updatedAt: time.Now()}
	p.mu.Unlock()
}
