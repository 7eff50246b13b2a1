package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autofolio/autofolio/pkg/formulas"
)

// riskFreeRate is the annual rate used for the Sharpe ratio on the status
// surface.
const riskFreeRate = 0.02

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "autofolio",
	})
}

// handleStatus reports monitor, scheduler and portfolio state in one call.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.portfolio.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pending, err := s.buyQueue.Peek()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	midnight := time.Now().Truncate(24 * time.Hour)
	tradesToday, err := s.tradeRepo.CountSince(midnight)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"scheduler": map[string]interface{}{
			"running": s.scheduler.IsRunning(),
			"jobs":    s.scheduler.Jobs(),
		},
		"monitor": s.monitor.Status(),
		"portfolio": map[string]interface{}{
			"cash":           state.Cash,
			"position_count": len(state.Positions),
			"total_value":    state.TotalValue(nil),
			"locked":         s.portfolio.IsLocked(),
		},
		"buy_queue_size": len(pending),
		"trades_today":   tradesToday,
		"performance":    formulas.Summarize(s.equity.Values(), riskFreeRate),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSchedulerStart starts the cron loop.
func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Start()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleSchedulerStop stops the cron loop, waiting for in-flight jobs.
func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleMonitorCycle triggers one monitor cycle synchronously.
func (s *Server) handleMonitorCycle(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.RunCycle(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleMonitorPrice feeds an out-of-band price observation to the monitor.
// A large enough move arms the watchlist re-check trigger for the symbol.
func (s *Server) handleMonitorPrice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(body.Symbol))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if body.Price <= 0 {
		s.writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	s.monitor.ObservePrice(symbol, body.Price)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"observed": body.Price,
	})
}

// handleExecutionRun triggers the daily execution job in the background.
// The outcome lands in the execution history.
func (s *Server) handleExecutionRun(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.scheduler.RunNow(s.dailyJob); err != nil {
			s.log.Error().Err(err).Msg("Manual execution run failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// handleExecutionHistory returns the retained run log, oldest first.
func (s *Server) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.execLog.Entries()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleWatchlistGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": s.monitor.Watchlist().List(),
	})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Symbol) == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	added, err := s.monitor.Watchlist().Add(body.Symbol)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": strings.ToUpper(strings.TrimSpace(body.Symbol)),
		"added":  added,
	})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	removed, err := s.monitor.Watchlist().Remove(symbol)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "symbol not on watchlist")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  strings.ToUpper(strings.TrimSpace(symbol)),
		"removed": true,
	})
}

// handlePortfolio returns the current portfolio snapshot.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	state, err := s.portfolio.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleTrades lists recent trades from the ledger; ?symbol= filters,
// ?limit= caps the count (default 50).
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		trades, err := s.tradeRepo.BySymbol(symbol)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	trades, err := s.tradeRepo.Recent(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// handleSignalChanges lists classified change events; ?since= takes RFC3339
// (default last 24h), ?symbol= filters.
func (s *Server) handleSignalChanges(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	changes, err := s.signalStore.ChangesSince(since, r.URL.Query().Get("symbol"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"changes": changes})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
