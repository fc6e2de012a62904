package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"meridian/logger"
)

// BinanceBroker implements Broker for the CEX crypto leg (spot), wrapping
// adshao/go-binance/v2. Equities-only calls (options, clock) are served by
// the Alpaca side; this type covers the crypto snapshot and order paths.
type BinanceBroker struct {
	client *binance.Client
	stream *PriceStream // optional; nil until StartStream is called
}

func NewBinanceBroker(apiKey, secretKey string) *BinanceBroker {
	return &BinanceBroker{client: binance.NewClient(apiKey, secretKey)}
}

// StartStream subscribes to a live miniTicker feed for symbols so
// GetCryptoSnapshot can serve from the stream cache instead of a REST round
// trip on every tick; a dial failure just leaves stream nil-equivalent (the
// cache never populates) and GetCryptoSnapshot falls back to polling.
func (b *BinanceBroker) StartStream(symbols []string) {
	b.stream = NewPriceStream(symbols)
	b.stream.Start()
}

func (b *BinanceBroker) GetAccount(ctx context.Context) (Account, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("binance account: %w", err)
	}
	var usdt float64
	for _, bal := range acct.Balances {
		if bal.Asset == "USDT" {
			free, _ := strconv.ParseFloat(bal.Free, 64)
			locked, _ := strconv.ParseFloat(bal.Locked, 64)
			usdt = free + locked
		}
	}
	// Crypto has no pattern-day-trader rule; daytrade_count always reports 0
	// so the equity trader's PDT guard is a no-op for crypto symbols.
	return Account{Cash: usdt, Equity: usdt, DaytradeCount: 0}, nil
}

func (b *BinanceBroker) GetPositions(ctx context.Context) ([]Position, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance positions: %w", err)
	}
	out := []Position{}
	for _, bal := range acct.Balances {
		if bal.Asset == "USDT" {
			continue
		}
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		qty := free + locked
		if qty <= 0 {
			continue
		}
		symbol := bal.Asset + "USDT"
		price, err := b.spotPrice(ctx, symbol)
		if err != nil {
			logger.Warnf("[Binance] price lookup failed for %s: %v", symbol, err)
			continue
		}
		out = append(out, Position{
			Symbol: symbol, Qty: qty, MarketValue: qty * price, CurrentPrice: price,
			AssetClass: "crypto",
		})
	}
	return out, nil
}

// GetClock reports crypto markets as perpetually open.
func (b *BinanceBroker) GetClock(ctx context.Context) (Clock, error) {
	now := time.Now()
	return Clock{IsOpen: true, Timestamp: now, NextOpen: now, NextClose: now.Add(24 * time.Hour)}, nil
}

func (b *BinanceBroker) GetAsset(ctx context.Context, symbol string) (Asset, error) {
	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil || len(info.Symbols) == 0 {
		return Asset{}, fmt.Errorf("binance asset lookup failed for %s: %w", symbol, err)
	}
	s := info.Symbols[0]
	return Asset{Symbol: s.Symbol, Exchange: "BINANCE", AssetClass: "crypto", Tradable: s.Status == "TRADING"}, nil
}

// GetSnapshot is unsupported on the crypto broker and always returns an
// error; the actor holds one broker and does not route equity symbols
// elsewhere.
func (b *BinanceBroker) GetSnapshot(ctx context.Context, symbol string) (Snapshot, error) {
	return Snapshot{}, fmt.Errorf("binance broker does not serve equity snapshots, use the equity broker for %s", symbol)
}

func (b *BinanceBroker) GetCryptoSnapshot(ctx context.Context, symbol string) (Snapshot, error) {
	if b.stream != nil {
		if price, fresh := b.stream.Price(symbol, 10*time.Second); fresh {
			return Snapshot{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
		}
	}
	price, err := b.spotPrice(ctx, symbol)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (b *BinanceBroker) spotPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		return 0, fmt.Errorf("binance price fetch failed for %s: %w", symbol, err)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

func (b *BinanceBroker) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	side := binance.SideTypeBuy
	if req.Side == SideSell {
		side = binance.SideTypeSell
	}
	svc := b.client.NewCreateOrderService().Symbol(req.Symbol).Side(side).Type(binance.OrderTypeMarket)
	if req.Notional != nil {
		svc = svc.QuoteOrderQty(strconv.FormatFloat(*req.Notional, 'f', 2, 64))
	} else if req.Qty != nil {
		svc = svc.Quantity(strconv.FormatFloat(*req.Qty, 'f', 8, 64))
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance order failed: %w", err)
	}
	avg, qty := fillFromBinance(res)
	logger.Infof("[Binance] order %s %s -> %s", req.Side, req.Symbol, res.Status)
	return OrderResult{ID: strconv.FormatInt(res.OrderID, 10), Status: string(res.Status), FilledAvgPrice: avg, FilledQty: qty}, nil
}

func fillFromBinance(res *binance.CreateOrderResponse) (avgPrice, qty float64) {
	var notional float64
	for _, f := range res.Fills {
		price, _ := strconv.ParseFloat(f.Price, 64)
		amt, _ := strconv.ParseFloat(f.Quantity, 64)
		qty += amt
		notional += price * amt
	}
	if qty > 0 {
		avgPrice = notional / qty
	}
	return avgPrice, qty
}

func (b *BinanceBroker) ClosePosition(ctx context.Context, symbol string) error {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance close position: %w", err)
	}
	base := symbol
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		base = symbol[:len(symbol)-4]
	}
	var qty float64
	for _, bal := range acct.Balances {
		if bal.Asset == base {
			free, _ := strconv.ParseFloat(bal.Free, 64)
			qty = free
		}
	}
	if qty <= 0 {
		return fmt.Errorf("no open %s balance to close", symbol)
	}
	_, err = b.CreateOrder(ctx, OrderRequest{Symbol: symbol, Qty: &qty, Side: SideSell, Type: OrderTypeMarket, TimeInForce: TIFGTC})
	return err
}

// Options is unsupported on crypto; the options sub-flow never routes here.
func (b *BinanceBroker) Options() OptionsBroker { return nil }
