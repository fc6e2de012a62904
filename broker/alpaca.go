package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"meridian/logger"
)

// AlpacaBroker implements Broker against Alpaca's paper/live trading and
// options REST API, normalized into typed Account/Position/OrderResult
// instead of map[string]interface{}.
type AlpacaBroker struct {
	keyID     string
	secretKey string
	baseURL   string
	dataURL   string
	client    *http.Client
}

func NewAlpacaBroker(keyID, secretKey, baseURL string) *AlpacaBroker {
	return &AlpacaBroker{
		keyID:     keyID,
		secretKey: secretKey,
		baseURL:   baseURL,
		dataURL:   "https://data.alpaca.markets",
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *AlpacaBroker) doRequest(ctx context.Context, method, base, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (a *AlpacaBroker) GetAccount(ctx context.Context) (Account, error) {
	raw, err := a.doRequest(ctx, "GET", a.baseURL, "/v2/account", nil)
	if err != nil {
		return Account{}, err
	}
	var wire struct {
		Cash          string `json:"cash"`
		Equity        string `json:"equity"`
		DaytradeCount int    `json:"daytrade_count"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Account{}, fmt.Errorf("parse account: %w", err)
	}
	cash, _ := strconv.ParseFloat(wire.Cash, 64)
	equity, _ := strconv.ParseFloat(wire.Equity, 64)
	return Account{Cash: cash, Equity: equity, DaytradeCount: wire.DaytradeCount}, nil
}

func (a *AlpacaBroker) GetPositions(ctx context.Context) ([]Position, error) {
	raw, err := a.doRequest(ctx, "GET", a.baseURL, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	var wire []struct {
		Symbol         string `json:"symbol"`
		Qty            string `json:"qty"`
		MarketValue    string `json:"market_value"`
		CurrentPrice   string `json:"current_price"`
		UnrealizedPL   string `json:"unrealized_pl"`
		UnrealizedPLPC string `json:"unrealized_plpc"`
		AvgEntryPrice  string `json:"avg_entry_price"`
		AssetClass     string `json:"asset_class"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}
	out := make([]Position, 0, len(wire))
	for _, p := range wire {
		qty, _ := strconv.ParseFloat(p.Qty, 64)
		mv, _ := strconv.ParseFloat(p.MarketValue, 64)
		cp, _ := strconv.ParseFloat(p.CurrentPrice, 64)
		upl, _ := strconv.ParseFloat(p.UnrealizedPL, 64)
		uplpc, _ := strconv.ParseFloat(p.UnrealizedPLPC, 64)
		avg, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		out = append(out, Position{
			Symbol: p.Symbol, Qty: qty, MarketValue: mv, CurrentPrice: cp,
			UnrealizedPL: upl, UnrealizedPLPct: uplpc * 100, AvgEntryPrice: avg,
			AssetClass: p.AssetClass,
		})
	}
	return out, nil
}

func (a *AlpacaBroker) GetClock(ctx context.Context) (Clock, error) {
	raw, err := a.doRequest(ctx, "GET", a.baseURL, "/v2/clock", nil)
	if err != nil {
		return Clock{}, err
	}
	var wire struct {
		Timestamp time.Time `json:"timestamp"`
		IsOpen    bool      `json:"is_open"`
		NextOpen  time.Time `json:"next_open"`
		NextClose time.Time `json:"next_close"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Clock{}, fmt.Errorf("parse clock: %w", err)
	}
	return Clock{IsOpen: wire.IsOpen, Timestamp: wire.Timestamp, NextOpen: wire.NextOpen, NextClose: wire.NextClose}, nil
}

func (a *AlpacaBroker) GetAsset(ctx context.Context, symbol string) (Asset, error) {
	raw, err := a.doRequest(ctx, "GET", a.baseURL, "/v2/assets/"+symbol, nil)
	if err != nil {
		return Asset{}, err
	}
	var wire struct {
		Symbol       string `json:"symbol"`
		Exchange     string `json:"exchange"`
		Class        string `json:"class"`
		Tradable     bool   `json:"tradable"`
		Fractionable bool   `json:"fractionable"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Asset{}, fmt.Errorf("parse asset: %w", err)
	}
	return Asset{Symbol: wire.Symbol, Exchange: wire.Exchange, AssetClass: wire.Class, Tradable: wire.Tradable, Fractionable: wire.Fractionable}, nil
}

func (a *AlpacaBroker) GetSnapshot(ctx context.Context, symbol string) (Snapshot, error) {
	raw, err := a.doRequest(ctx, "GET", a.dataURL, "/v2/stocks/"+symbol+"/trades/latest", nil)
	if err != nil {
		return Snapshot{}, err
	}
	var wire struct {
		Trade struct {
			Price     float64   `json:"p"`
			Timestamp time.Time `json:"t"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if wire.Trade.Price <= 0 {
		return Snapshot{}, fmt.Errorf("no trade price for %s", symbol)
	}
	return Snapshot{Symbol: symbol, Price: wire.Trade.Price, Timestamp: wire.Trade.Timestamp}, nil
}

// GetCryptoSnapshot is unsupported on the equity broker and always returns
// an error; the actor holds one broker and does not route crypto symbols
// elsewhere.
func (a *AlpacaBroker) GetCryptoSnapshot(ctx context.Context, symbol string) (Snapshot, error) {
	return Snapshot{}, fmt.Errorf("alpaca broker does not serve crypto snapshots, use the CEX broker for %s", symbol)
}

func (a *AlpacaBroker) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body := map[string]any{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"time_in_force": string(req.TimeInForce),
	}
	if req.Notional != nil {
		body["notional"] = strconv.FormatFloat(*req.Notional, 'f', 2, 64)
	}
	if req.Qty != nil {
		body["qty"] = strconv.FormatFloat(*req.Qty, 'f', -1, 64)
	}
	if req.LimitPrice != nil {
		body["limit_price"] = strconv.FormatFloat(*req.LimitPrice, 'f', 2, 64)
	}

	raw, err := a.doRequest(ctx, "POST", a.baseURL, "/v2/orders", body)
	if err != nil {
		return OrderResult{}, err
	}
	var wire struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		FilledAvgPrice string `json:"filled_avg_price"`
		FilledQty      string `json:"filled_qty"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return OrderResult{}, fmt.Errorf("parse order: %w", err)
	}
	avg, _ := strconv.ParseFloat(wire.FilledAvgPrice, 64)
	qty, _ := strconv.ParseFloat(wire.FilledQty, 64)
	logger.Infof("[Alpaca] order %s %s %s -> %s", req.Side, req.Symbol, string(req.Type), wire.Status)
	return OrderResult{ID: wire.ID, Status: wire.Status, FilledAvgPrice: avg, FilledQty: qty}, nil
}

func (a *AlpacaBroker) ClosePosition(ctx context.Context, symbol string) error {
	_, err := a.doRequest(ctx, "DELETE", a.baseURL, "/v2/positions/"+symbol, nil)
	return err
}

func (a *AlpacaBroker) Options() OptionsBroker { return alpacaOptions{a} }

// alpacaOptions implements OptionsBroker against Alpaca's options chain
// endpoints, reusing the same signed-request transport as the stock side.
type alpacaOptions struct{ a *AlpacaBroker }

func (o alpacaOptions) GetExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	raw, err := o.a.doRequest(ctx, "GET", o.a.baseURL, "/v2/options/contracts?underlying_symbols="+underlying, nil)
	if err != nil {
		return nil, err
	}
	var wire struct {
		OptionContracts []struct {
			ExpirationDate string `json:"expiration_date"`
		} `json:"option_contracts"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse expirations: %w", err)
	}
	seen := map[string]bool{}
	out := []time.Time{}
	for _, c := range wire.OptionContracts {
		if seen[c.ExpirationDate] {
			continue
		}
		seen[c.ExpirationDate] = true
		if t, err := time.Parse("2006-01-02", c.ExpirationDate); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (o alpacaOptions) GetChain(ctx context.Context, underlying string, expiration time.Time) ([]OptionContract, error) {
	path := fmt.Sprintf("/v2/options/contracts?underlying_symbols=%s&expiration_date=%s", underlying, expiration.Format("2006-01-02"))
	raw, err := o.a.doRequest(ctx, "GET", o.a.baseURL, path, nil)
	if err != nil {
		return nil, err
	}
	var wire struct {
		OptionContracts []struct {
			Symbol         string `json:"symbol"`
			StrikePrice    string `json:"strike_price"`
			Type           string `json:"type"`
			ExpirationDate string `json:"expiration_date"`
		} `json:"option_contracts"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse chain: %w", err)
	}
	out := make([]OptionContract, 0, len(wire.OptionContracts))
	for _, c := range wire.OptionContracts {
		strike, _ := strconv.ParseFloat(c.StrikePrice, 64)
		exp, _ := time.Parse("2006-01-02", c.ExpirationDate)
		out = append(out, OptionContract{Symbol: c.Symbol, Underlying: underlying, Strike: strike, Kind: c.Type, Expiration: exp})
	}
	return out, nil
}

func (o alpacaOptions) GetSnapshot(ctx context.Context, contractSymbol string) (OptionSnapshot, error) {
	raw, err := o.a.doRequest(ctx, "GET", o.a.dataURL, "/v1beta1/options/snapshots/"+contractSymbol, nil)
	if err != nil {
		return OptionSnapshot{}, err
	}
	var wire struct {
		LatestQuote struct {
			BidPrice float64 `json:"bp"`
			AskPrice float64 `json:"ap"`
		} `json:"latestQuote"`
		Greeks struct {
			Delta float64 `json:"delta"`
		} `json:"greeks"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return OptionSnapshot{}, fmt.Errorf("parse options snapshot: %w", err)
	}
	return OptionSnapshot{Symbol: contractSymbol, Bid: wire.LatestQuote.BidPrice, Ask: wire.LatestQuote.AskPrice, Delta: wire.Greeks.Delta}, nil
}
