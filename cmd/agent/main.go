// Command agent boots the trading actor: loads config and persisted state,
// wires every collaborator (broker, LLM, DEX provider, crisis sources,
// signal gatherers, notifiers), starts the tick loop, and serves the admin
// HTTP surface until an interrupt signal arrives.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meridian/actor"
	"meridian/api"
	"meridian/broker"
	"meridian/config"
	"meridian/crisis"
	"meridian/dex"
	"meridian/equity"
	"meridian/llm"
	"meridian/logger"
	"meridian/metrics"
	"meridian/notify"
	"meridian/signals"
	"meridian/store"
)

func main() {
	logger.SetGlobalLogger(logger.New(logger.Config{Level: "info", Pretty: true}))
	logger.Info("starting meridian agent")
	metrics.Init()

	cfg := config.LoadEnv(config.DefaultConfig())

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Errorf("open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	state, err := st.Load(cfg)
	if err != nil {
		logger.Errorf("load state: %v", err)
		os.Exit(1)
	}
	cfg = state.Config

	var br broker.Broker
	if cfg.CryptoEnabled && cfg.AlpacaKeyID == "" {
		bb := broker.NewBinanceBroker(cfg.BinanceAPIKey, cfg.BinanceSecretKey)
		bb.StartStream([]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
		br = bb
	} else {
		br = broker.NewAlpacaBroker(cfg.AlpacaKeyID, cfg.AlpacaSecretKey, cfg.AlpacaBaseURL)
	}

	var notifiers []notify.Notifier
	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(cfg.DiscordWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notifier := notify.NewMulti(notifiers...)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	researcher := llm.NewResearcher(llmClient, cfg)

	provider := dex.NewDexScreenerProvider(cfg.SolUsdFallback)
	dexEngine := dex.NewEngine(provider, state, notifier)

	crisisSources := crisis.NewSources(cfg.FredAPIKey)
	crisisMonitor := crisis.NewMonitor(crisisSources)

	equityTrader := equity.NewTrader(br, researcher, notifier)

	gatherer := signals.NewGatherer()
	validator := signals.NewValidator(br)
	twitter := signals.NewTwitterChecker(cfg.TwitterBearerToken)

	ag := actor.New(state, st, br, crisisMonitor, dexEngine, equityTrader, researcher, gatherer, validator, twitter, notifier)

	ctx, cancelRun := context.WithCancel(context.Background())

	// The loop always runs; a disabled agent's tick returns immediately,
	// so /enable takes effect on the next fire without a restart.
	go ag.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := api.NewServer(ag, st, br, cfg.APIToken, cfg.KillSwitchSecret)
	srv.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	httpServer := &http.Server{
		Addr:    cfg.AdminListenAddr,
		Handler: router,
	}

	go func() {
		logger.Infof("admin HTTP surface listening on %s", cfg.AdminListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("admin server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down meridian agent")
	cancelRun()
	ag.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("admin server forced shutdown: %v", err)
	}

	logger.Info("meridian agent stopped")
}
