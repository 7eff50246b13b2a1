package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autofolio/autofolio/internal/config"
	"github.com/autofolio/autofolio/internal/database"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/monitor"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/providers"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/rules"
	"github.com/autofolio/autofolio/internal/scheduler"
	"github.com/autofolio/autofolio/internal/server"
	"github.com/autofolio/autofolio/internal/services"
	"github.com/autofolio/autofolio/internal/signals"
	"github.com/autofolio/autofolio/internal/trading"
	"github.com/autofolio/autofolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting autofolio")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	// Trade ledger
	db, err := database.New(cfg.LedgerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	tradeRepo := trading.NewTradeRepository(db.Conn(), log)

	// Durable stores. Each carries its own flock so a separate monitoring
	// process can share the files safely.
	signalStore := signals.NewStore(cfg.SignalHistoryPath(), cfg.SignalLockPath(), cfg.LockTimeout, log)
	buyQueue := queue.New(cfg.QueuePath(), cfg.QueueLockPath(), cfg.LockTimeout, log)
	portfolioStore := portfolio.New(cfg.PortfolioPath(), cfg.PortfolioLockPath(), cfg.LockTimeout, cfg.InitialCash, log)
	equity := portfolio.NewEquityCurve(cfg.DataDir+"/equity.json", log)
	watchlist := monitor.NewWatchlist(cfg.WatchlistPath(), log)
	rulesWatcher := rules.NewConfigWatcher(cfg.RulesPath(), log)
	execLog := scheduler.NewExecutionLog(cfg.ExecutionLogPath(), log)

	// External analysis/regime services
	analysisClient := providers.NewClient(cfg.AnalysisServiceURL, cfg.ProviderTimeout, cfg.ProviderRateRPS, log)
	regimeClient := analysisClient
	if cfg.RegimeServiceURL != cfg.AnalysisServiceURL {
		regimeClient = providers.NewClient(cfg.RegimeServiceURL, cfg.ProviderTimeout, cfg.ProviderRateRPS, log)
	}

	eventManager := events.NewManager(log)

	mon := monitor.New(monitor.Config{
		PositionInterval:  cfg.PositionCheckInterval,
		WatchlistInterval: cfg.WatchlistCheckInterval,
		PriceMovePct:      cfg.PriceMoveThresholdPct,
		ScanHour:          cfg.UniverseScanHour,
		WatchlistScore:    cfg.WatchlistMinScore,
	}, analysisClient, analysisClient, signalStore, buyQueue, portfolioStore, watchlist, eventManager, log)

	execService := services.NewTradeExecutionService(portfolioStore, tradeRepo, signalStore, eventManager, log)

	calendar := scheduler.NewTradingCalendar(log)
	dailyJob := scheduler.NewDailyExecutionJob(
		calendar, rulesWatcher, mon, signalStore, buyQueue, portfolioStore,
		equity, analysisClient, regimeClient, execService, execLog, eventManager,
		cfg.RunRetryDelay, log)
	monitorJob := scheduler.NewMonitorJob(calendar, mon, eventManager, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.MonitorCronSpec, monitorJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register monitor job")
	}
	if err := sched.AddJob(cfg.ExecutionCronSpec, dailyJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register execution job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		DevMode:     cfg.DevMode,
		Scheduler:   sched,
		DailyJob:    dailyJob,
		ExecLog:     execLog,
		Monitor:     mon,
		Portfolio:   portfolioStore,
		Equity:      equity,
		SignalStore: signalStore,
		BuyQueue:    buyQueue,
		TradeRepo:   tradeRepo,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
