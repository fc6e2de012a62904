package crisis

import (
	"testing"

	"meridian/config"
	"meridian/domain"
)

func f(v float64) *float64 { return &v }

func TestScoreFullCrisisEscalation(t *testing.T) {
	cfg := config.DefaultConfig()
	ind := domain.Indicators{
		VIX:          f(46),  // >= vix_critical(40): +3
		HYSpread:     f(650), // >= hy_spread_critical(600): +2
		BTCWeeklyPct: f(-22), // <= btc_weekly_critical(-20): +2
	}
	level, triggered := Score(cfg, ind)
	if level != domain.CrisisFullCrisis {
		t.Fatalf("level = %v, want FullCrisis (score should be 3+2+2=7)", level)
	}
	if len(triggered) == 0 {
		t.Fatalf("expected triggered indicators to be recorded")
	}
}

func TestScoreNormalWhenIndicatorsMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	level, triggered := Score(cfg, domain.Indicators{})
	if level != domain.CrisisNormal {
		t.Fatalf("level = %v, want Normal when every indicator is nil", level)
	}
	if len(triggered) != 0 {
		t.Fatalf("expected no triggers, got %v", triggered)
	}
}

func TestScoreToleratesPartialData(t *testing.T) {
	cfg := config.DefaultConfig()
	// Only VIX present, at warning (not critical): contributes 1 point,
	// below the 2-point floor for level 1.
	level, _ := Score(cfg, domain.Indicators{VIX: f(32)})
	if level != domain.CrisisNormal {
		t.Fatalf("level = %v, want Normal (single 1pt trigger stays below Elevated's floor)", level)
	}
}

func TestPositionsToCloseLevel3ClosesEverything(t *testing.T) {
	cfg := config.DefaultConfig()
	targets := PositionsToClose(cfg, domain.CrisisFullCrisis, map[string]float64{"AAPL": 5}, map[string]float64{"addr1": -2})
	if len(targets) != 2 {
		t.Fatalf("expected 2 liquidation targets, got %d", len(targets))
	}
}

func TestPositionsToCloseLevel2OnlyUnprofitable(t *testing.T) {
	cfg := config.DefaultConfig()
	targets := PositionsToClose(cfg, domain.CrisisHighAlert, map[string]float64{"AAPL": 5, "MSFT": 1}, nil)
	if len(targets) != 1 || targets[0].Symbol != "MSFT" {
		t.Fatalf("expected only MSFT (below min-profit-to-hold) closed, got %+v", targets)
	}
}
