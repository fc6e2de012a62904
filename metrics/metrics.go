// Package metrics exposes the agent's Prometheus gauges/counters on a
// custom registry: one promauto.With(Registry) block per concern and
// Update*/Record* setter functions, covering the equity/crypto, DEX and
// crisis surfaces plus the LLM cost ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"meridian/domain"
)

// Registry is the custom prometheus registry for the agent's metrics.
var Registry = prometheus.NewRegistry()

var (
	// --- equity/crypto ---

	EquityPositionsCount = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "equity", Name: "positions_count",
		Help: "Number of open equity/crypto positions.",
	})
	EquityPositionPnLPct = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "equity", Name: "position_pnl_percent",
		Help: "Unrealized P&L percentage per held symbol.",
	}, []string{"symbol"})
	EquityOrdersTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian", Subsystem: "equity", Name: "orders_total",
		Help: "Total equity/crypto orders submitted, by side and result.",
	}, []string{"side", "result"}) // result: filled, rejected, blocked

	// --- DEX momentum engine ---

	DexPositionsCount = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "positions_count",
		Help: "Number of open DEX paper positions.",
	})
	DexPaperBalanceSol = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "paper_balance_sol",
		Help: "Current DEX paper SOL balance.",
	})
	DexPortfolioValueSol = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "portfolio_value_sol",
		Help: "Balance plus mark-to-market of every open DEX position.",
	})
	DexDrawdownCurrentPct = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "drawdown_current_percent",
		Help: "Current drawdown from the DEX portfolio's all-time peak.",
	})
	DexDrawdownMaxPct = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "drawdown_max_percent",
		Help: "Maximum drawdown observed over the DEX trade history.",
	})
	DexWinRate = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "win_rate",
		Help: "Fraction of closed DEX trades that were profitable.",
	})
	DexProfitFactor = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "profit_factor",
		Help: "Gross SOL profit divided by gross SOL loss.",
	})
	DexSharpe = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "sharpe_ratio",
		Help: "Sharpe ratio of the DEX trade-return series.",
	})
	DexTradesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "trades_total",
		Help: "Total closed DEX trades, by exit reason and result.",
	}, []string{"exit_reason", "result"}) // result: win, loss
	DexCircuitBreakerActive = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "circuit_breaker_active",
		Help: "1 while the DEX circuit breaker is pausing new entries, else 0.",
	})
	DexDrawdownPaused = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "dex", Name: "drawdown_paused",
		Help: "1 while the DEX drawdown halt is blocking new entries, else 0.",
	})

	// --- crisis monitor ---

	CrisisLevel = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "crisis", Name: "level",
		Help: "Current crisis level, 0 (normal) to 3 (full crisis).",
	})
	CrisisIndicator = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "crisis", Name: "indicator_value",
		Help: "Last-fetched value of each macro indicator the crisis monitor scores.",
	}, []string{"indicator"})

	// --- LLM cost ledger ---

	LLMCallsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian", Subsystem: "llm", Name: "calls_total",
		Help: "Total LLM completions, by model and outcome.",
	}, []string{"model", "outcome"}) // outcome: ok, error, unparseable
	LLMCostUSDTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "meridian", Subsystem: "llm", Name: "cost_usd_total",
		Help: "Cumulative LLM spend in USD.",
	})
	LLMRequestDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meridian", Subsystem: "llm", Name: "request_duration_seconds",
		Help:    "LLM completion latency.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"model"})

	// --- tick scheduler ---

	TickDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "meridian", Subsystem: "actor", Name: "tick_duration_seconds",
		Help:    "Wall-clock duration of one actor tick.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	})
	TickErrorsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "meridian", Subsystem: "actor", Name: "tick_errors_total",
		Help: "Ticks that recovered from a panic or top-level error.",
	})
	AgentEnabled = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "meridian", Subsystem: "actor", Name: "enabled",
		Help: "1 while the agent is enabled and scheduling ticks, else 0.",
	})
)

// RecordDexTrade records one closed DEX trade in the trades-total counter.
func RecordDexTrade(exitReason string, pnlSol float64) {
	result := "loss"
	if pnlSol >= 0 {
		result = "win"
	}
	DexTradesTotal.WithLabelValues(exitReason, result).Inc()
}

// RecordOrder records one equity/crypto order submission outcome.
func RecordOrder(side, result string) {
	EquityOrdersTotal.WithLabelValues(side, result).Inc()
}

// RecordLLMCall records one LLM completion's outcome and latency.
func RecordLLMCall(model, outcome string, durationSeconds float64) {
	LLMCallsTotal.WithLabelValues(model, outcome).Inc()
	LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// Init registers the standard Go/process collectors alongside the agent's
// own metrics.
func Init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// SetDexDerived resyncs the trade-history-derived gauges; the DEX engine
// calls this after recomputing its metrics so this package doesn't have to
// depend on the engine's calculator.
func SetDexDerived(winRate, profitFactor float64, sharpe *float64) {
	DexWinRate.Set(winRate)
	DexProfitFactor.Set(profitFactor)
	if sharpe != nil {
		DexSharpe.Set(*sharpe)
	}
}

// UpdateFromState refreshes every gauge from the current AgentState. Called
// once per tick by the actor — counters are updated at the point an event
// happens, gauges are cheaper to simply resync wholesale.
func UpdateFromState(state *domain.AgentState) {
	if state.Enabled {
		AgentEnabled.Set(1)
	} else {
		AgentEnabled.Set(0)
	}

	DexPositionsCount.Set(float64(len(state.DexPositions)))
	DexPaperBalanceSol.Set(state.DexPaperBalanceSol)
	DexDrawdownCurrentPct.Set(dexCurrentDrawdown(state))
	DexDrawdownMaxPct.Set(state.DexMaxDrawdownPct)
	if state.DexCircuitBreakerUntil != nil {
		DexCircuitBreakerActive.Set(1)
	} else {
		DexCircuitBreakerActive.Set(0)
	}
	if state.DexDrawdownPaused {
		DexDrawdownPaused.Set(1)
	} else {
		DexDrawdownPaused.Set(0)
	}
	if len(state.DexPortfolioHistory) > 0 {
		DexPortfolioValueSol.Set(state.DexPortfolioHistory[len(state.DexPortfolioHistory)-1].TotalValue)
	}

	EquityPositionsCount.Set(float64(len(state.PositionEntries)))

	CrisisLevel.Set(float64(state.CrisisState.Level))
}

func dexCurrentDrawdown(state *domain.AgentState) float64 {
	if state.DexPeakBalance <= 0 {
		return 0
	}
	return (state.DexPeakBalance - state.DexPaperBalanceSol) / state.DexPeakBalance * 100
}
