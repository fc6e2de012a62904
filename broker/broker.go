// Package broker defines the external trading-venue collaborator: account,
// positions, market clock, asset/snapshot lookups, order submission and
// options chain access. Concrete adapters (Alpaca for equities/options,
// Binance for crypto) implement Broker; the equity/crypto trader never talks
// to a venue's wire format directly.
package broker

import (
	"context"
	"time"
)

// Account is the broker-reported cash/equity/day-trade-count snapshot the
// PDT guard and position sizing read every tick.
type Account struct {
	Cash          float64
	Equity        float64
	DaytradeCount int
}

// Position is one broker-held position, normalized across venues.
type Position struct {
	Symbol          string
	Qty             float64
	MarketValue     float64
	CurrentPrice    float64
	UnrealizedPL    float64
	UnrealizedPLPct float64
	AvgEntryPrice   float64
	AssetClass      string // "us_equity", "crypto", "us_option"
}

// Clock is the venue's market-hours state.
type Clock struct {
	IsOpen    bool
	Timestamp time.Time
	NextOpen  time.Time
	NextClose time.Time
}

// Asset is a tradability/exchange lookup result.
type Asset struct {
	Symbol       string
	Exchange     string
	AssetClass   string // "us_equity" or "crypto"
	Tradable     bool
	Fractionable bool
}

// Snapshot is a point-in-time quote.
type Snapshot struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Side and Type are the closed sets CreateOrder accepts.
type Side string
type OrderType string
type TimeInForce string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"

	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"

	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
)

// OrderRequest is a notional-or-qty order; exactly one of Notional/Qty
// should be set by the caller.
type OrderRequest struct {
	Symbol      string
	Notional    *float64
	Qty         *float64
	Side        Side
	Type        OrderType
	LimitPrice  *float64
	TimeInForce TimeInForce
}

// OrderResult is the broker's ack, including fill details when available
// synchronously (paper venues usually fill market orders immediately).
type OrderResult struct {
	ID             string
	Status         string
	FilledAvgPrice float64
	FilledQty      float64
}

// OptionContract is one strike/expiration row from a chain lookup.
type OptionContract struct {
	Symbol     string
	Underlying string
	Strike     float64
	Kind       string // "call" or "put"
	Expiration time.Time
}

// OptionSnapshot is a contract's quote plus the greek the delta-biased
// strike selection needs.
type OptionSnapshot struct {
	Symbol string
	Bid    float64
	Ask    float64
	Delta  float64
}

func (s OptionSnapshot) Mid() float64 { return (s.Bid + s.Ask) / 2 }

func (s OptionSnapshot) SpreadPct() float64 {
	mid := s.Mid()
	if mid <= 0 {
		return 100
	}
	return (s.Ask - s.Bid) / mid * 100
}

// OptionsBroker is the options sub-flow's narrow collaborator.
type OptionsBroker interface {
	GetExpirations(ctx context.Context, underlying string) ([]time.Time, error)
	GetChain(ctx context.Context, underlying string, expiration time.Time) ([]OptionContract, error)
	GetSnapshot(ctx context.Context, contractSymbol string) (OptionSnapshot, error)
}

// Broker is the external trading-venue capability set: account, positions,
// clock, assets, snapshots, orders, and the options chain. Every method
// fails soft with a Go error; callers translate that into a logged,
// non-fatal tick outcome.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetClock(ctx context.Context) (Clock, error)
	GetAsset(ctx context.Context, symbol string) (Asset, error)
	GetSnapshot(ctx context.Context, symbol string) (Snapshot, error)
	GetCryptoSnapshot(ctx context.Context, symbol string) (Snapshot, error)
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) error
	Options() OptionsBroker
}
