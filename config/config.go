// Package config holds the agent's tunables. DefaultConfig gives every field
// a sane default; a zero-value Config is not valid on its own. LoadEnv overlays
// environment variables, Merge overlays a partial JSON document (used by the
// admin /config route).
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"meridian/logger"
)

// Config groups every tunable the agent reads. Field names match the
// vocabulary used in operator-facing logs and the admin API, not Go
// convention for JSON keys, since the admin surface is the primary reader.
type Config struct {
	// --- runtime / scheduling ---
	TickIntervalMs        int64 `json:"tick_interval_ms"`
	DataPollIntervalMs    int64 `json:"data_poll_interval_ms"`
	ResearchIntervalMs    int64 `json:"research_interval_ms"`
	AnalystIntervalMs     int64 `json:"analyst_interval_ms"`
	CrisisCheckIntervalMs int64 `json:"crisis_check_interval_ms"`
	PositionResearchMs    int64 `json:"position_research_interval_ms"`

	// --- signals ---
	DecayHalfLifeMinutes float64  `json:"decay_half_life_minutes"`
	MinSentimentScore    float64  `json:"min_sentiment_score"`
	SignalCacheCap       int      `json:"signal_cache_cap"`
	SignalTTLHours       float64  `json:"signal_ttl_hours"`
	Subreddits           []string `json:"subreddits"`
	TwitterEnabled       bool     `json:"twitter_enabled"`
	TwitterDailyBudget   int      `json:"twitter_daily_budget"`
	UserTickerBlacklist  []string `json:"user_ticker_blacklist"`

	// --- equity / crypto trader ---
	StocksEnabled           bool    `json:"stocks_enabled"`
	CryptoEnabled           bool    `json:"crypto_enabled"`
	TakeProfitPct           float64 `json:"take_profit_pct"`
	StopLossPct             float64 `json:"stop_loss_pct"`
	PositionSizePctOfCash   float64 `json:"position_size_pct_of_cash"`
	MaxPositionValue        float64 `json:"max_position_value"`
	MinAnalystConfidence    float64 `json:"min_analyst_confidence"`
	LLMMinHoldMinutes       float64 `json:"llm_min_hold_minutes"`
	AllowedExchanges        []string `json:"allowed_exchanges"`
	TwitterConfirmBoost     float64 `json:"twitter_confirm_boost"`
	TwitterContradictPenalty float64 `json:"twitter_contradict_penalty"`

	// --- staleness ---
	StaleMinHoldHours      float64 `json:"stale_min_hold_hours"`
	StaleMidHoldDays       float64 `json:"stale_mid_hold_days"`
	StaleMaxHoldDays       float64 `json:"stale_max_hold_days"`
	StaleMidMinGainPct     float64 `json:"stale_mid_min_gain_pct"`
	StaleMinGainPct        float64 `json:"stale_min_gain_pct"`
	StaleSocialVolumeDecay float64 `json:"stale_social_volume_decay"`
	StaleScoreThreshold    float64 `json:"stale_score_threshold"`

	// --- options sub-flow ---
	OptionsEnabled         bool    `json:"options_enabled"`
	OptionsMinConfidence   float64 `json:"options_min_confidence"`
	OptionsMinDTE          int     `json:"options_min_dte"`
	OptionsMaxDTE          int     `json:"options_max_dte"`
	OptionsMinDelta        float64 `json:"options_min_delta"`
	OptionsMaxDelta        float64 `json:"options_max_delta"`
	OptionsMaxSpreadPct    float64 `json:"options_max_spread_pct"`
	OptionsMaxPctPerTrade  float64 `json:"options_max_pct_per_trade"`
	OptionsStopLossPct     float64 `json:"options_stop_loss_pct"`
	OptionsTakeProfitPct   float64 `json:"options_take_profit_pct"`

	// --- DEX momentum engine ---
	DexEnabled              bool    `json:"dex_enabled"`
	DexScanIntervalMs       int64   `json:"dex_scan_interval_ms"`
	DexStartingBalanceSol   float64 `json:"dex_starting_balance_sol"`
	MicrosprayPositionSol   float64 `json:"microspray_position_sol"`
	BreakoutPositionSol     float64 `json:"breakout_position_sol"`
	LotteryPositionSol      float64 `json:"lottery_position_sol"`
	EarlyMultiplier         float64 `json:"early_multiplier"`
	PctOfBalance            float64 `json:"pct_of_balance"`
	MaxPositionSol          float64 `json:"max_position_sol"`
	MaxSinglePositionPct    float64 `json:"max_single_position_pct"`
	MinViableSol            float64 `json:"min_viable_sol"`
	GasFeeSol               float64 `json:"gas_fee_sol"`
	SlippageModel           string  `json:"slippage_model"` // none, conservative, realistic
	MomentumEntryThreshold  float64 `json:"momentum_entry_threshold"`
	DexChartAnalysisEnabled bool    `json:"dex_chart_analysis_enabled"`
	DexChartMinEntryScore   float64 `json:"dex_chart_min_entry_score"`
	SolUsdFallback          float64 `json:"sol_usd_fallback"`
	MicrosprayMaxConcurrent int     `json:"microspray_max_concurrent"`
	BreakoutMaxConcurrent   int     `json:"breakout_max_concurrent"`
	LotteryMaxConcurrent    int     `json:"lottery_max_concurrent"`
	MaxPositions            int     `json:"max_positions"`

	TrailingStopEnabled       bool    `json:"trailing_stop_enabled"`
	TrailingStopActivationPct float64 `json:"trailing_stop_activation_pct"`
	TrailingStopDistancePct   float64 `json:"trailing_stop_distance_pct"`
	LotteryTrailingActivation float64 `json:"lottery_trailing_activation"`
	LotteryTrailingDistance   float64 `json:"lottery_trailing_distance"`

	ReentryRecoveryPct      float64 `json:"reentry_recovery_pct"`
	ReentryMinMomentum      float64 `json:"reentry_min_momentum"`
	StopLossCooldownHours   float64 `json:"stop_loss_cooldown_hours"`

	CircuitBreakerWindowHours   float64 `json:"circuit_breaker_window_hours"`
	CircuitBreakerLosses        int     `json:"circuit_breaker_losses"`
	CircuitBreakerPauseHours    float64 `json:"circuit_breaker_pause_hours"`
	BreakerMinCooldownMinutes   float64 `json:"breaker_min_cooldown_minutes"`

	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	// --- crisis monitor ---
	CrisisModeEnabled             bool    `json:"crisis_mode_enabled"`
	VixWarning                    float64 `json:"vix_warning"`
	VixCritical                   float64 `json:"vix_critical"`
	HySpreadWarning                float64 `json:"hy_spread_warning"`
	HySpreadCritical                float64 `json:"hy_spread_critical"`
	YieldCurveWarning              float64 `json:"yield_curve_warning"`
	TedWarning                     float64 `json:"ted_warning"`
	BtcWeeklyWarning               float64 `json:"btc_weekly_warning_pct"`
	BtcWeeklyCritical              float64 `json:"btc_weekly_critical_pct"`
	UsdtPegWarning                 float64 `json:"usdt_peg_warning"`
	CrisisLevel1StopLossPct        float64 `json:"crisis_level1_stop_loss_pct"`
	CrisisLevel2MinProfitToHold    float64 `json:"crisis_level2_min_profit_to_hold"`
	FredAPIKey                     string  `json:"-"`

	// --- LLM ---
	LLMProvider    string  `json:"llm_provider"`
	LLMModel       string  `json:"llm_model"`
	LLMMaxTokens   int     `json:"llm_max_tokens"`
	LLMTemperature float64 `json:"llm_temperature"`
	LLMAPIKey      string  `json:"-"`
	LLMBaseURL     string  `json:"llm_base_url"`

	// --- broker / secrets (never round-tripped through /config merge) ---
	AlpacaKeyID     string `json:"-"`
	AlpacaSecretKey string `json:"-"`
	AlpacaBaseURL   string `json:"alpaca_base_url"`
	BinanceAPIKey    string `json:"-"`
	BinanceSecretKey string `json:"-"`
	APIToken        string `json:"-"`
	KillSwitchSecret string `json:"-"`
	KillSwitchTOTPSecret string `json:"-"`
	TwitterBearerToken   string `json:"-"`
	DiscordWebhookURL    string `json:"-"`
	TelegramBotToken     string `json:"-"`
	TelegramChatID       int64  `json:"-"`

	// --- persistence ---
	DBPath string `json:"-"`

	// --- admin HTTP ---
	AdminListenAddr string `json:"admin_listen_addr"`
}

// DefaultConfig returns the agent's baseline configuration. Every tunable
// named in the component design carries the same default used throughout
// this document's scenarios.
func DefaultConfig() Config {
	return Config{
		TickIntervalMs:        30_000,
		DataPollIntervalMs:    60_000,
		ResearchIntervalMs:    120_000,
		AnalystIntervalMs:     180_000,
		CrisisCheckIntervalMs: 300_000,
		PositionResearchMs:    300_000,

		DecayHalfLifeMinutes: 120,
		MinSentimentScore:    0.3,
		SignalCacheCap:       200,
		SignalTTLHours:       24,
		Subreddits:           []string{"wsb", "stocks", "investing", "options"},
		TwitterEnabled:       false,
		TwitterDailyBudget:   200,

		StocksEnabled:            true,
		CryptoEnabled:            true,
		TakeProfitPct:            15,
		StopLossPct:              8,
		PositionSizePctOfCash:    10,
		MaxPositionValue:         2000,
		MinAnalystConfidence:     0.6,
		LLMMinHoldMinutes:        30,
		AllowedExchanges:         []string{"NYSE", "NASDAQ", "ARCA", "BATS"},
		TwitterConfirmBoost:      1.15,
		TwitterContradictPenalty: 0.85,

		StaleMinHoldHours:      24,
		StaleMidHoldDays:       3,
		StaleMaxHoldDays:       7,
		StaleMidMinGainPct:     2,
		StaleMinGainPct:        5,
		StaleSocialVolumeDecay: 0.3,
		StaleScoreThreshold:    70,

		OptionsEnabled:        false,
		OptionsMinConfidence:  0.75,
		OptionsMinDTE:         14,
		OptionsMaxDTE:         45,
		OptionsMinDelta:       0.3,
		OptionsMaxDelta:       0.7,
		OptionsMaxSpreadPct:   10,
		OptionsMaxPctPerTrade: 5,
		OptionsStopLossPct:    50,
		OptionsTakeProfitPct:  100,

		DexEnabled:              true,
		DexScanIntervalMs:        30_000,
		DexStartingBalanceSol:    10,
		MicrosprayPositionSol:    0.005,
		BreakoutPositionSol:      0.015,
		LotteryPositionSol:       0.02,
		EarlyMultiplier:          0.5,
		PctOfBalance:             0.05,
		MaxPositionSol:           0.5,
		MaxSinglePositionPct:     40,
		MinViableSol:             0.01,
		GasFeeSol:                0.001,
		SlippageModel:            "realistic",
		MomentumEntryThreshold:   60,
		DexChartAnalysisEnabled:  true,
		DexChartMinEntryScore:    40,
		SolUsdFallback:           200,
		MicrosprayMaxConcurrent:  10,
		BreakoutMaxConcurrent:    5,
		LotteryMaxConcurrent:     5,
		MaxPositions:             15,

		TrailingStopEnabled:       true,
		TrailingStopActivationPct: 50,
		TrailingStopDistancePct:   25,
		LotteryTrailingActivation: 100,
		LotteryTrailingDistance:   20,

		ReentryRecoveryPct:    15,
		ReentryMinMomentum:    70,
		StopLossCooldownHours: 24,

		CircuitBreakerWindowHours: 24,
		CircuitBreakerLosses:      3,
		CircuitBreakerPauseHours:  1,
		BreakerMinCooldownMinutes: 30,

		MaxDrawdownPct: 35,

		CrisisModeEnabled:           true,
		VixWarning:                  30,
		VixCritical:                 40,
		HySpreadWarning:              450,
		HySpreadCritical:             600,
		YieldCurveWarning:            0, // inverted (<=0) is a warning signal
		TedWarning:                   50,
		BtcWeeklyWarning:             -15,
		BtcWeeklyCritical:            -20,
		UsdtPegWarning:               0.995,
		CrisisLevel1StopLossPct:      5,
		CrisisLevel2MinProfitToHold:  2,

		LLMProvider:    "localai",
		LLMModel:       "gpt-4o-mini",
		LLMMaxTokens:   2000,
		LLMTemperature: 0.2,

		AlpacaBaseURL: "https://paper-api.alpaca.markets",

		DBPath: "meridian.db",

		AdminListenAddr: ":8070",
	}
}

// LoadEnv overlays environment variables (loaded from .env via godotenv, if
// present) onto cfg's secrets and deployment-specific fields. Missing
// variables keep cfg's existing value.
func LoadEnv(cfg Config) Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file loaded: %v", err)
	}

	cfg.AlpacaKeyID = envOr("ALPACA_KEY_ID", cfg.AlpacaKeyID)
	cfg.AlpacaSecretKey = envOr("ALPACA_SECRET_KEY", cfg.AlpacaSecretKey)
	cfg.AlpacaBaseURL = envOr("ALPACA_BASE_URL", cfg.AlpacaBaseURL)
	cfg.BinanceAPIKey = envOr("BINANCE_API_KEY", cfg.BinanceAPIKey)
	cfg.BinanceSecretKey = envOr("BINANCE_SECRET_KEY", cfg.BinanceSecretKey)
	cfg.APIToken = envOr("API_TOKEN", cfg.APIToken)
	cfg.KillSwitchSecret = envOr("KILL_SWITCH_SECRET", cfg.KillSwitchSecret)
	cfg.KillSwitchTOTPSecret = envOr("KILL_SWITCH_TOTP_SECRET", cfg.KillSwitchTOTPSecret)
	cfg.LLMAPIKey = envOr("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMBaseURL = envOr("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.FredAPIKey = envOr("FRED_API_KEY", cfg.FredAPIKey)
	cfg.DBPath = envOr("DB_PATH", cfg.DBPath)
	cfg.AdminListenAddr = envOr("ADMIN_LISTEN_ADDR", cfg.AdminListenAddr)
	cfg.TwitterBearerToken = envOr("TWITTER_BEARER_TOKEN", cfg.TwitterBearerToken)
	cfg.DiscordWebhookURL = envOr("DISCORD_WEBHOOK_URL", cfg.DiscordWebhookURL)
	cfg.TelegramBotToken = envOr("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		}
	}
	if v := os.Getenv("DEX_STARTING_BALANCE_SOL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DexStartingBalanceSol = f
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Merge overlays a partial JSON document onto cfg, per the admin /config
// route contract: a missing field keeps cfg's current value. Fields marked
// "-" in the json tag (secrets) are never reachable from this path.
func Merge(cfg Config, partial []byte) (Config, error) {
	merged := cfg
	if err := json.Unmarshal(partial, &merged); err != nil {
		return cfg, err
	}
	merged.AlpacaKeyID, merged.AlpacaSecretKey = cfg.AlpacaKeyID, cfg.AlpacaSecretKey
	merged.APIToken, merged.KillSwitchSecret = cfg.APIToken, cfg.KillSwitchSecret
	merged.KillSwitchTOTPSecret = cfg.KillSwitchTOTPSecret
	merged.LLMAPIKey, merged.FredAPIKey = cfg.LLMAPIKey, cfg.FredAPIKey
	merged.DBPath = cfg.DBPath
	return merged, nil
}

// Sanitize resets the fields that must be positive (tick interval, DEX
// starting balance, max drawdown, SOL/USD fallback) to their DefaultConfig
// values when they are zero or negative; other fields pass through
// unchanged. store.Load applies it after loading a persisted state.
func Sanitize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TickIntervalMs <= 0 {
		cfg.TickIntervalMs = def.TickIntervalMs
	}
	if cfg.DexStartingBalanceSol <= 0 {
		cfg.DexStartingBalanceSol = def.DexStartingBalanceSol
	}
	if cfg.MaxDrawdownPct <= 0 {
		cfg.MaxDrawdownPct = def.MaxDrawdownPct
	}
	if cfg.SolUsdFallback <= 0 {
		cfg.SolUsdFallback = def.SolUsdFallback
	}
	return cfg
}

// TickInterval returns the scheduling cadence as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}
