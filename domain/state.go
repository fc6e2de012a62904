package domain

import (
	"time"

	"meridian/config"
)

// SocialSample is one historical (timestamp, volume, sentiment) reading for
// a symbol, used by the staleness analysis's social-decay term.
type SocialSample struct {
	Timestamp time.Time `json:"ts"`
	Volume    float64   `json:"vol"`
	Sentiment float64   `json:"sent"`
}

// ResearchResult is the LLM's verdict on a candidate or held symbol.
type ResearchResult struct {
	Symbol       string    `json:"symbol"`
	Verdict      string    `json:"verdict"` // buy, sell, hold, wait
	Confidence   float64   `json:"confidence"`
	EntryQuality string    `json:"entry_quality,omitempty"` // e.g. "excellent"
	Reasoning    string    `json:"reasoning"`
	Timestamp    time.Time `json:"timestamp"`
}

// StalenessResult caches a symbol's most recent staleness score so the tick
// doesn't recompute it more than once per cycle.
type StalenessResult struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Stale     bool      `json:"stale"`
	Timestamp time.Time `json:"timestamp"`
}

// TwitterConfirmation caches whether breaking-news checks confirmed or
// contradicted a held symbol's thesis.
type TwitterConfirmation struct {
	Symbol      string    `json:"symbol"`
	Confirmed   bool      `json:"confirmed"`
	Contradicted bool     `json:"contradicted"`
	Timestamp   time.Time `json:"timestamp"`
}

// PremarketPlan is the 09:25-09:29 analysis cached for execution at 09:30.
type PremarketPlan struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Decisions   []PlannedDecision `json:"decisions"`
	Executed    bool              `json:"executed"`
}

// PlannedDecision is one entry in a PremarketPlan.
type PlannedDecision struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// CostTracker accumulates the LLM cost ledger across the process lifetime.
type CostTracker struct {
	TotalPromptTokens     int64   `json:"total_prompt_tokens"`
	TotalCompletionTokens int64   `json:"total_completion_tokens"`
	TotalCostUSD          float64 `json:"total_cost_usd"`
	CallCount             int64   `json:"call_count"`
}

// LogEntry is one ring-buffer row, the primary operator-facing feedback
// surface absent a dashboard.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// AgentState is the root, single-instance object the actor exclusively
// owns. All mutation happens under the actor's lock, inside a tick or an
// admin mutation; external callers observe it only through the admin
// interface.
type AgentState struct {
	Config config.Config `json:"config"`

	Enabled bool `json:"enabled"`

	SignalCache    []*SignalLog             `json:"-"` // in-memory only; the 24h TTL means the next gather pass rebuilds it anyway
	PositionEntries map[string]PositionEntry `json:"position_entries"`
	SocialHistory  map[string][]SocialSample `json:"social_history"`

	SignalResearch      map[string]ResearchResult      `json:"signal_research"`
	PositionResearch    map[string]ResearchResult      `json:"position_research"`
	StalenessAnalysis   map[string]StalenessResult     `json:"staleness_analysis"`
	TwitterConfirmations map[string]TwitterConfirmation `json:"twitter_confirmations"`
	TwitterDailyReads   int                             `json:"twitter_daily_reads"`
	TwitterDailyReset   time.Time                       `json:"twitter_daily_reset"`
	PremarketPlan       *PremarketPlan                  `json:"premarket_plan,omitempty"`

	DexSignals          []DexCandidate                  `json:"-"` // last scan result, not persisted
	DexPositions        map[string]DexPosition          `json:"dex_positions"`
	DexTradeHistory      []DexTradeRecord                `json:"dex_trade_history"`
	DexRealizedPnLSol    float64                         `json:"dex_realized_pnl_sol"`
	DexPaperBalanceSol   float64                         `json:"dex_paper_balance_sol"`
	DexPortfolioHistory  []PortfolioSnapshot             `json:"dex_portfolio_history"`

	DexMaxConsecutiveLosses int        `json:"dex_max_consecutive_losses"`
	DexCurrentLossStreak    int        `json:"dex_current_loss_streak"`
	DexMaxDrawdownPct       float64    `json:"dex_max_drawdown_pct"`
	DexMaxDrawdownDurationMs int64     `json:"dex_max_drawdown_duration_ms"`
	DexDrawdownStartTime    *time.Time `json:"dex_drawdown_start_time,omitempty"`
	DexPeakBalance          float64    `json:"dex_peak_balance"`
	DexPeakValue            float64    `json:"dex_peak_value"`
	DexDrawdownPaused       bool       `json:"dex_drawdown_paused"`

	DexRecentStopLosses  []RecentStopLoss    `json:"dex_recent_stop_losses"`
	DexCircuitBreakerUntil *time.Time        `json:"dex_circuit_breaker_until,omitempty"`

	DexStopLossCooldowns map[string]StopLossCooldown `json:"dex_stop_loss_cooldowns"`

	CrisisState CrisisState `json:"crisis_state"`

	LastDataGather       time.Time `json:"last_data_gather"`
	LastAnalyst          time.Time `json:"last_analyst"`
	LastResearch         time.Time `json:"last_research"`
	LastPositionResearch time.Time `json:"last_position_research"`
	LastDexScan          time.Time `json:"last_dex_scan"`
	LastCrisisCheck      time.Time `json:"last_crisis_check"`

	Logs        []LogEntry  `json:"logs"`
	CostTracker CostTracker `json:"cost_tracker"`
}

// DexCandidate is a provider-sourced momentum token before entry.
type DexCandidate struct {
	TokenAddress     string  `json:"token_address"`
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	PriceUsd         float64 `json:"price_usd"`
	PriceChange5m    *float64 `json:"price_change_5m,omitempty"`
	PriceChange6h    float64 `json:"price_change_6h"`
	PriceChange24h   float64 `json:"price_change_24h"`
	Volume24h        float64 `json:"volume_24h"`
	Liquidity        float64 `json:"liquidity"`
	AgeHours         float64 `json:"age_hours"`
	AgeDays          float64 `json:"age_days"`
	MomentumScore    float64 `json:"momentum_score"`
	LegitimacyScore  float64 `json:"legitimacy_score"`
	Tier             Tier    `json:"tier"`
	DexID            string  `json:"dex_id"`
}

// SignalLog aliases Signal for the cache field; the cache churns every
// tick and would bloat the single-row state blob, so it stays in memory
// and the next gather pass repopulates it after a restart.
type SignalLog = Signal

// NewAgentState builds a freshly defaulted root state for first boot.
func NewAgentState(cfg config.Config) *AgentState {
	now := time.Now()
	return &AgentState{
		Config:               cfg,
		Enabled:              true,
		PositionEntries:      map[string]PositionEntry{},
		SocialHistory:        map[string][]SocialSample{},
		SignalResearch:       map[string]ResearchResult{},
		PositionResearch:     map[string]ResearchResult{},
		StalenessAnalysis:    map[string]StalenessResult{},
		TwitterConfirmations: map[string]TwitterConfirmation{},
		TwitterDailyReset:    now,
		DexPositions:         map[string]DexPosition{},
		DexTradeHistory:      []DexTradeRecord{},
		DexPaperBalanceSol:   cfg.DexStartingBalanceSol,
		DexPeakBalance:       cfg.DexStartingBalanceSol,
		DexPeakValue:         cfg.DexStartingBalanceSol,
		DexStopLossCooldowns: map[string]StopLossCooldown{},
		CrisisState: CrisisState{
			Level:           CrisisNormal,
			LastLevelChange: now,
		},
	}
}

// AppendLog pushes a ring-buffer entry, trimming to the last 500.
func (s *AgentState) AppendLog(level, msg string) {
	s.Logs = append(s.Logs, LogEntry{Timestamp: time.Now(), Level: level, Message: msg})
	const maxLogs = 500
	if len(s.Logs) > maxLogs {
		s.Logs = s.Logs[len(s.Logs)-maxLogs:]
	}
}
