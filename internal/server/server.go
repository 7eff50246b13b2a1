package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/monitor"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/scheduler"
	"github.com/autofolio/autofolio/internal/signals"
	"github.com/autofolio/autofolio/internal/trading"
)

// Config holds server configuration
type Config struct {
	Port    int
	Log     zerolog.Logger
	DevMode bool

	Scheduler   *scheduler.Scheduler
	DailyJob    *scheduler.DailyExecutionJob
	ExecLog     *scheduler.ExecutionLog
	Monitor     *monitor.Monitor
	Portfolio   *portfolio.Store
	Equity      *portfolio.EquityCurve
	SignalStore *signals.Store
	BuyQueue    *queue.BuyQueue
	TradeRepo   *trading.TradeRepository
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	scheduler   *scheduler.Scheduler
	dailyJob    *scheduler.DailyExecutionJob
	execLog     *scheduler.ExecutionLog
	monitor     *monitor.Monitor
	portfolio   *portfolio.Store
	equity      *portfolio.EquityCurve
	signalStore *signals.Store
	buyQueue    *queue.BuyQueue
	tradeRepo   *trading.TradeRepository
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		scheduler:   cfg.Scheduler,
		dailyJob:    cfg.DailyJob,
		execLog:     cfg.ExecLog,
		monitor:     cfg.Monitor,
		portfolio:   cfg.Portfolio,
		equity:      cfg.Equity,
		signalStore: cfg.SignalStore,
		buyQueue:    cfg.BuyQueue,
		tradeRepo:   cfg.TradeRepo,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/start", s.handleSchedulerStart)
			r.Post("/stop", s.handleSchedulerStop)
		})

		r.Post("/monitor/cycle", s.handleMonitorCycle)
		r.Post("/monitor/price", s.handleMonitorPrice)

		r.Route("/execution", func(r chi.Router) {
			r.Post("/run", s.handleExecutionRun)
			r.Get("/history", s.handleExecutionHistory)
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.handleWatchlistGet)
			r.Post("/", s.handleWatchlistAdd)
			r.Delete("/{symbol}", s.handleWatchlistRemove)
		})

		r.Get("/portfolio", s.handlePortfolio)
		r.Get("/trades", s.handleTrades)
		r.Get("/signals/changes", s.handleSignalChanges)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
