package equity

import (
	"context"
	"testing"
	"time"

	"meridian/broker"
	"meridian/domain"
)

// fakeBroker answers GetAccount from a fixed value; the other Broker methods
// are untouched by the pdtGuard/validOrderSize tests and panic if called,
// except Options, which returns nil.
type fakeBroker struct {
	account broker.Account
	err     error
}

func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) { return f.account, f.err }
func (f *fakeBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	panic("not used")
}
func (f *fakeBroker) GetClock(ctx context.Context) (broker.Clock, error)     { panic("not used") }
func (f *fakeBroker) GetAsset(ctx context.Context, symbol string) (broker.Asset, error) {
	panic("not used")
}
func (f *fakeBroker) GetSnapshot(ctx context.Context, symbol string) (broker.Snapshot, error) {
	panic("not used")
}
func (f *fakeBroker) GetCryptoSnapshot(ctx context.Context, symbol string) (broker.Snapshot, error) {
	panic("not used")
}
func (f *fakeBroker) CreateOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	panic("not used")
}
func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) error { panic("not used") }
func (f *fakeBroker) Options() broker.OptionsBroker                          { return nil }

func TestPDTGuardAllowsRoundTripsOlderThan24h(t *testing.T) {
	tr := &Trader{broker: &fakeBroker{account: broker.Account{Equity: 1000, DaytradeCount: 5}}}
	entry := domain.PositionEntry{EntryTime: time.Now().Add(-25 * time.Hour)}
	allow, warn := tr.pdtGuard(context.Background(), "AAPL", entry, time.Now())
	if !allow || warn {
		t.Fatalf("allow=%v warn=%v, want allow=true warn=false for a stale entry regardless of day trade count", allow, warn)
	}
}

func TestPDTGuardRefusesAtThreeDaytradesUnderEquityFloor(t *testing.T) {
	tr := &Trader{broker: &fakeBroker{account: broker.Account{Equity: 24999, DaytradeCount: 3}}}
	entry := domain.PositionEntry{EntryTime: time.Now()}
	allow, _ := tr.pdtGuard(context.Background(), "AAPL", entry, time.Now())
	if allow {
		t.Fatalf("expected refusal at daytrade_count=3 with equity below $25k")
	}
}

func TestPDTGuardAllowsAtThreeDaytradesAboveEquityFloor(t *testing.T) {
	tr := &Trader{broker: &fakeBroker{account: broker.Account{Equity: 25000, DaytradeCount: 3}}}
	entry := domain.PositionEntry{EntryTime: time.Now()}
	allow, _ := tr.pdtGuard(context.Background(), "AAPL", entry, time.Now())
	if !allow {
		t.Fatalf("expected allow once equity clears the $25k PDT exemption floor")
	}
}

func TestPDTGuardWarnsAtTwoDaytrades(t *testing.T) {
	tr := &Trader{broker: &fakeBroker{account: broker.Account{Equity: 1000, DaytradeCount: 2}}}
	entry := domain.PositionEntry{EntryTime: time.Now()}
	allow, warn := tr.pdtGuard(context.Background(), "AAPL", entry, time.Now())
	if !allow || !warn {
		t.Fatalf("allow=%v warn=%v, want allow=true warn=true at daytrade_count=2", allow, warn)
	}
}

func TestPDTGuardAllowsOnBrokerError(t *testing.T) {
	tr := &Trader{broker: &fakeBroker{err: context.DeadlineExceeded}}
	entry := domain.PositionEntry{EntryTime: time.Now()}
	allow, warn := tr.pdtGuard(context.Background(), "AAPL", entry, time.Now())
	if !allow || warn {
		t.Fatalf("expected fail-open (allow, no warn) when GetAccount errors")
	}
}

func TestValidOrderSizeRejectsEmptySymbol(t *testing.T) {
	if validOrderSize("", 1000, 0.8, 100, 500) {
		t.Fatal("expected rejection of an empty symbol")
	}
}

func TestValidOrderSizeRejectsNonPositiveCash(t *testing.T) {
	if validOrderSize("AAPL", 0, 0.8, 100, 500) {
		t.Fatal("expected rejection when cash is not positive")
	}
}

func TestValidOrderSizeRejectsOutOfRangeConfidence(t *testing.T) {
	if validOrderSize("AAPL", 1000, 0, 100, 500) {
		t.Fatal("expected rejection of confidence=0")
	}
	if validOrderSize("AAPL", 1000, 1.5, 100, 500) {
		t.Fatal("expected rejection of confidence>1")
	}
}

func TestValidOrderSizeAcceptsAtMaxPositionValueWithSlack(t *testing.T) {
	if !validOrderSize("AAPL", 1000, 0.5, 500*1.01, 500) {
		t.Fatal("expected acceptance at exactly max_position_value*1.01")
	}
}

func TestValidOrderSizeRejectsAboveMaxPositionValueSlack(t *testing.T) {
	if validOrderSize("AAPL", 1000, 0.5, 500*1.02, 500) {
		t.Fatal("expected rejection just past the 1% slack over max_position_value")
	}
}

func TestValidOrderSizeRejectsNonPositiveSize(t *testing.T) {
	if validOrderSize("AAPL", 1000, 0.5, 0, 500) {
		t.Fatal("expected rejection of a zero size")
	}
}

func TestAllowedExchangeMembership(t *testing.T) {
	allowed := []string{"NASDAQ", "NYSE"}
	if !allowedExchange(allowed, "NASDAQ") {
		t.Fatal("expected NASDAQ to be allowed")
	}
	if allowedExchange(allowed, "OTC") {
		t.Fatal("expected OTC to be rejected")
	}
}
