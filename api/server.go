// Package api is the agent's admin HTTP surface: gin routes over the
// actor's locked state. One handler method per route on a *Server
// receiver; gin.H JSON bodies, c.ShouldBindJSON request decoding.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"meridian/actor"
	"meridian/broker"
	"meridian/config"
	"meridian/dex"
	"meridian/domain"
	"meridian/llm"
	"meridian/logger"
	"meridian/store"
)

// Server wires the actor to gin. Every handler either reads a locked
// snapshot via actor.WithState or mutates one via actor.Mutate/Trigger —
// no handler ever touches AgentState directly.
type Server struct {
	actor *actor.Actor
	store *store.Store
	br    broker.Broker

	apiToken   string
	killSecret string
}

func NewServer(a *actor.Actor, st *store.Store, br broker.Broker, apiToken, killSecret string) *Server {
	return &Server{actor: a, store: st, br: br, apiToken: apiToken, killSecret: killSecret}
}

// RegisterRoutes attaches the admin routes to router, plus the access-log
// middleware and the dashboard session-issuance route.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger())

	router.GET("/status", s.handleStatus)
	router.GET("/logs", s.handleLogs)
	router.GET("/costs", s.handleCosts)
	router.GET("/signals", s.handleSignals)

	auth := router.Group("/", s.bearerOrSessionAuth())
	auth.POST("/session", s.handleSession)
	auth.POST("/config", s.handleConfig)
	auth.POST("/enable", s.handleEnable)
	auth.POST("/disable", s.handleDisable)
	auth.POST("/trigger", s.handleTrigger)
	auth.POST("/dex/reset", s.handleDexReset)
	auth.POST("/dex/clear-cooldowns", s.handleDexClearCooldowns)
	auth.POST("/dex/clear-breaker", s.handleDexClearBreaker)
	auth.POST("/crisis/toggle", s.handleCrisisToggle)
	auth.POST("/crisis/check", s.handleCrisisCheck)

	router.POST("/kill", s.bearerAuth(s.killSecret), s.handleKill)
}

// bearerAuth compares the request's "Authorization: Bearer <token>" header
// against want in constant time. A blank want always rejects: there is no
// "auth disabled" mode for a route that can move money or shut the agent
// down.
func (s *Server) bearerAuth(want string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		got := c.GetHeader("Authorization")
		if want == "" || !strings.HasPrefix(got, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		token := strings.TrimPrefix(got, prefix)
		if !constantTimeEqual(token, want) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// bearerOrSessionAuth accepts either the raw API bearer token or a still-
// valid dashboard session JWT (see auth.go), so the dashboard doesn't have
// to hold the long-lived API token in browser storage after initial login.
func (s *Server) bearerOrSessionAuth() gin.HandlerFunc {
	bearer := s.bearerAuth(s.apiToken)
	return func(c *gin.Context) {
		if s.verifySession(c) {
			c.Next()
			return
		}
		bearer(c)
	}
}

// handleStatus returns the full dashboard snapshot: account, positions,
// clock, config, signals, the last 100 logs, research, DEX positions with
// live P&L and derived metrics, portfolio history, and crisis state.
func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	account, err := s.br.GetAccount(ctx)
	if err != nil {
		logger.Warnf("[API] status: account lookup failed: %v", err)
	}
	positions, err := s.br.GetPositions(ctx)
	if err != nil {
		logger.Warnf("[API] status: positions lookup failed: %v", err)
	}
	clock, err := s.br.GetClock(ctx)
	if err != nil {
		logger.Warnf("[API] status: clock lookup failed: %v", err)
	}

	nextTick, err := s.store.Alarm()
	if err != nil {
		logger.Warnf("[API] status: alarm lookup failed: %v", err)
	}

	var resp gin.H
	s.actor.WithState(func(st *domain.AgentState) {
		logs := st.Logs
		if len(logs) > 100 {
			logs = logs[len(logs)-100:]
		}
		dexPositions := make([]dexPositionView, 0, len(st.DexPositions))
		for addr, pos := range st.DexPositions {
			dexPositions = append(dexPositions, dexPositionView{
				TokenAddress: addr,
				DexPosition:  pos,
				PnLPct:       pos.PnLPct(pos.LastPrice),
			})
		}
		resp = gin.H{
			"enabled":         st.Enabled,
			"next_tick":       nextTick,
			"account":         account,
			"positions":       positions,
			"clock":           clock,
			"config":          st.Config,
			"signal_cache":    st.SignalCache,
			"logs":            logs,
			"signal_research": st.SignalResearch,
			"position_research": st.PositionResearch,
			"premarket_plan":  st.PremarketPlan,
			"dex_positions":   dexPositions,
			"dex_metrics":     dex.CalculateDexTradingMetrics(st.DexTradeHistory),
			"dex_balance_sol": st.DexPaperBalanceSol,
			"dex_portfolio_history": st.DexPortfolioHistory,
			"crisis_state":    st.CrisisState,
			"cost_tracker":    st.CostTracker,
		}
	})
	c.JSON(http.StatusOK, resp)
}

type dexPositionView struct {
	TokenAddress string             `json:"token_address"`
	PnLPct       float64            `json:"pnl_pct"`
	domain.DexPosition
}

// handleConfig partially merges the posted JSON document onto the live
// config, persists it, and reinitializes the LLM client/researcher so a
// changed model/base-URL/key takes effect without a process restart.
func (s *Server) handleConfig(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var mergeErr error
	err = s.actor.Mutate(func(st *domain.AgentState) {
		merged, mErr := config.Merge(st.Config, body)
		if mErr != nil {
			mergeErr = mErr
			return
		}
		st.Config = config.Sanitize(merged)
	})
	if mergeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config: " + mergeErr.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist config: " + err.Error()})
		return
	}

	s.actor.WithState(func(st *domain.AgentState) {
		client := llm.NewClient(st.Config.LLMBaseURL, st.Config.LLMAPIKey)
		s.actor.ReconfigureLLM(client, st.Config)
	})

	c.JSON(http.StatusOK, gin.H{"message": "config updated"})
}

func (s *Server) handleEnable(c *gin.Context) {
	if err := s.actor.Mutate(func(st *domain.AgentState) { st.Enabled = true }); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enabled"})
}

// handleDisable disables the agent and clears its scheduled alarm.
func (s *Server) handleDisable(c *gin.Context) {
	if err := s.actor.Mutate(func(st *domain.AgentState) { st.Enabled = false }); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disabled"})
}

// handleTrigger runs one tick synchronously and reports whether it errored.
func (s *Server) handleTrigger(c *gin.Context) {
	if err := s.actor.Trigger(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tick complete"})
}

// handleKill is the emergency stop: disable, clear the alarm, clear the
// signal cache and any cached pre-market plan. Open positions are left
// alone; the kill switch stops new decisions, it does not liquidate.
func (s *Server) handleKill(c *gin.Context) {
	var totpSecret string
	s.actor.WithState(func(st *domain.AgentState) { totpSecret = st.Config.KillSwitchTOTPSecret })
	if !checkTOTP(c, totpSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing TOTP code"})
		return
	}

	err := s.actor.Mutate(func(st *domain.AgentState) {
		st.Enabled = false
		st.SignalCache = nil
		st.PremarketPlan = nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Warn("[API] kill switch engaged")
	c.JSON(http.StatusOK, gin.H{"message": "killed"})
}

func (s *Server) handleLogs(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var logs []domain.LogEntry
	s.actor.WithState(func(st *domain.AgentState) {
		logs = st.Logs
		if len(logs) > limit {
			logs = logs[len(logs)-limit:]
		}
	})
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleCosts(c *gin.Context) {
	var ct domain.CostTracker
	s.actor.WithState(func(st *domain.AgentState) { ct = st.CostTracker })
	c.JSON(http.StatusOK, ct)
}

func (s *Server) handleSignals(c *gin.Context) {
	var signals []*domain.Signal
	s.actor.WithState(func(st *domain.AgentState) { signals = st.SignalCache })
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// handleDexReset wipes the paper-trading ledger back to a fresh starting
// balance, used when an operator wants to restart the DEX book without
// touching equity/crypto state.
func (s *Server) handleDexReset(c *gin.Context) {
	err := s.actor.Mutate(func(st *domain.AgentState) {
		dex.ResetPaperTrading(st)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dex state reset"})
}

func (s *Server) handleDexClearCooldowns(c *gin.Context) {
	err := s.actor.Mutate(func(st *domain.AgentState) {
		st.DexStopLossCooldowns = map[string]domain.StopLossCooldown{}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dex cooldowns cleared"})
}

func (s *Server) handleDexClearBreaker(c *gin.Context) {
	err := s.actor.Mutate(func(st *domain.AgentState) {
		st.DexCircuitBreakerUntil = nil
		st.DexRecentStopLosses = nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "dex circuit breaker cleared"})
}

// handleCrisisToggle sets or clears the manual override that short-circuits
// the crisis monitor's own scoring.
func (s *Server) handleCrisisToggle(c *gin.Context) {
	var req struct {
		ManualOverride *bool `json:"manualOverride"`
		Level          *int  `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	err := s.actor.Mutate(func(st *domain.AgentState) {
		if req.ManualOverride != nil && !*req.ManualOverride {
			st.CrisisState.ManualOverride = nil
			return
		}
		level := domain.CrisisNormal
		if req.Level != nil {
			level = domain.CrisisLevel(*req.Level)
		}
		st.CrisisState.ManualOverride = &domain.CrisisOverride{Level: level}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "crisis override updated"})
}

// handleCrisisCheck runs one full tick through the actor and reports the
// resulting crisis level. The tick's crisis step re-evaluates only once
// crisis_check_interval_ms has elapsed since the last check, so this route
// does not force a fresh indicator read.
func (s *Server) handleCrisisCheck(c *gin.Context) {
	if err := s.actor.Trigger(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var level domain.CrisisLevel
	s.actor.WithState(func(st *domain.AgentState) { level = st.CrisisState.Level })
	c.JSON(http.StatusOK, gin.H{"level": level, "label": level.String()})
}
