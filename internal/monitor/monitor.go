// Package monitor implements the tiered signal monitor. Portfolio positions
// (tier 1) are re-checked on a short interval, the watchlist (tier 2) on a
// longer one with a price-move event trigger that short-circuits it, and the
// full universe (tier 3) once per day. Every check feeds the signal history
// store; the monitor itself never trades off a raw score, only queues buy
// candidates from classified upgrade events.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/providers"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/signals"
)

// Tier identifies a monitoring priority class.
type Tier string

const (
	TierPositions Tier = "tier1"
	TierWatchlist Tier = "tier2"
	TierUniverse  Tier = "tier3"
)

// Config holds the monitor cadences and thresholds.
type Config struct {
	PositionInterval  time.Duration // tier 1 re-check interval
	WatchlistInterval time.Duration // tier 2 re-check interval
	PriceMovePct      float64       // tier 2 event trigger threshold
	ScanHour          int           // tier 3 daily window start (local hour)
	WatchlistScore    float64       // tier 3 score needed to join the watchlist
}

// CycleResult summarizes one monitor cycle.
type CycleResult struct {
	Checked int                   `json:"checked"`
	Skipped int                   `json:"skipped"`
	Queued  int                   `json:"queued"`
	Changes []signals.ChangeEvent `json:"changes"`
}

// Status is the monitor's observable state.
type Status struct {
	PositionCount  int        `json:"position_count"`
	WatchlistCount int        `json:"watchlist_count"`
	LastCycle      *time.Time `json:"last_cycle,omitempty"`
	LastScan       *time.Time `json:"last_universe_scan,omitempty"`
	PendingTrigger []string   `json:"pending_price_triggers,omitempty"`
}

// Monitor drives the tiered checks.
type Monitor struct {
	cfg       Config
	analysis  providers.AnalysisProvider
	universe  providers.UniverseProvider
	store     *signals.Store
	buyQueue  *queue.BuyQueue
	portfolio *portfolio.Store
	watchlist *Watchlist
	events    *events.Manager
	log       zerolog.Logger

	mu         sync.Mutex
	lastPrices map[string]float64  // last price observed at check time
	triggered  map[string]struct{} // symbols flagged by the price-move trigger
	lastCycle  time.Time

	now func() time.Time
}

// New creates a tiered monitor.
func New(
	cfg Config,
	analysis providers.AnalysisProvider,
	universe providers.UniverseProvider,
	store *signals.Store,
	buyQueue *queue.BuyQueue,
	port *portfolio.Store,
	watchlist *Watchlist,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Monitor {
	return &Monitor{
		cfg:        cfg,
		analysis:   analysis,
		universe:   universe,
		store:      store,
		buyQueue:   buyQueue,
		portfolio:  port,
		watchlist:  watchlist,
		events:     eventManager,
		log:        log.With().Str("component", "monitor").Logger(),
		lastPrices: make(map[string]float64),
		triggered:  make(map[string]struct{}),
		now:        time.Now,
	}
}

// Watchlist exposes the watchlist for the control surface.
func (m *Monitor) Watchlist() *Watchlist { return m.watchlist }

// ObservePrice feeds an out-of-band price observation (e.g. from a quote
// stream). When the price moved at least PriceMovePct from the last checked
// price, the symbol is flagged for an immediate tier-2 re-check.
func (m *Monitor) ObservePrice(symbol string, price float64) {
	if price <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.lastPrices[symbol]
	if !ok || last <= 0 {
		m.lastPrices[symbol] = price
		return
	}

	movePct := math.Abs(price-last) / last * 100
	if movePct >= m.cfg.PriceMovePct {
		m.triggered[symbol] = struct{}{}
		m.log.Info().
			Str("symbol", symbol).
			Float64("move_pct", movePct).
			Msg("Price move trigger armed")
	}
}

// RunCycle runs one pass over all tiers, returning the classified changes.
// Per-symbol provider failures degrade to skips and never abort the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	now := m.now()

	positions, err := m.portfolio.Positions()
	if err != nil {
		return result, fmt.Errorf("monitor cycle: %w", err)
	}

	// Tier 1: portfolio positions, unconditional on their interval.
	for sym := range positions {
		if !m.due(TierPositions, sym, m.cfg.PositionInterval, now) {
			continue
		}
		m.checkSymbol(ctx, sym, TierPositions, &result)
	}

	// Tier 2: watchlist, interval OR armed price trigger.
	for _, sym := range m.watchlist.List() {
		if _, held := positions[sym]; held {
			continue // already covered by tier 1
		}
		if !m.due(TierWatchlist, sym, m.cfg.WatchlistInterval, now) && !m.fired(sym) {
			continue
		}
		m.clearTrigger(sym)
		m.checkSymbol(ctx, sym, TierWatchlist, &result)
	}

	// Tier 3: full universe scan, once per day in its window.
	if m.scanDue(now) {
		m.runUniverseScan(ctx, &result)
		_ = m.store.SetLastCheck(string(TierUniverse), now)
	}

	m.mu.Lock()
	m.lastCycle = now
	m.mu.Unlock()

	m.log.Info().
		Int("checked", result.Checked).
		Int("skipped", result.Skipped).
		Int("changes", len(result.Changes)).
		Int("queued", result.Queued).
		Msg("Monitor cycle complete")

	return result, nil
}

// CheckSymbol runs a single on-demand check outside the tier schedule.
func (m *Monitor) CheckSymbol(ctx context.Context, symbol string) (*signals.ChangeEvent, error) {
	analysis, err := m.analysis.Analyze(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", symbol, err)
	}
	return m.record(symbol, analysis)
}

// Status reports aggregate monitor state for observability.
func (m *Monitor) Status() Status {
	st := Status{WatchlistCount: len(m.watchlist.List())}
	if positions, err := m.portfolio.Positions(); err == nil {
		st.PositionCount = len(positions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastCycle.IsZero() {
		t := m.lastCycle
		st.LastCycle = &t
	}
	for sym := range m.triggered {
		st.PendingTrigger = append(st.PendingTrigger, sym)
	}
	if t, ok, err := m.store.LastCheck(string(TierUniverse)); err == nil && ok {
		st.LastScan = &t
	}
	return st
}

// checkSymbol analyzes one symbol and feeds the history store. Failures are
// counted as skips.
func (m *Monitor) checkSymbol(ctx context.Context, symbol string, tier Tier, result *CycleResult) {
	analysis, err := m.analysis.Analyze(ctx, symbol)
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Str("tier", string(tier)).Msg("Check skipped")
		result.Skipped++
		return
	}

	result.Checked++
	_ = m.store.SetLastCheck(checkKey(tier, symbol), m.now())

	event, err := m.record(symbol, analysis)
	if err != nil {
		m.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to record signal")
		return
	}
	if event == nil {
		return
	}

	result.Changes = append(result.Changes, *event)
	if m.enqueueIfUpgrade(*event, analysis) {
		result.Queued++
	}
}

// record updates price tracking and the signal store.
func (m *Monitor) record(symbol string, analysis domain.Analysis) (*signals.ChangeEvent, error) {
	if analysis.CurrentPrice > 0 {
		m.mu.Lock()
		m.lastPrices[symbol] = analysis.CurrentPrice
		m.mu.Unlock()
	}
	return m.store.UpdateSignal(symbol, analysis.Recommendation, analysis.Score, analysis.Confidence, analysis.AgentScores)
}

// enqueueIfUpgrade turns an actionable upgrade event into a queued buy
// opportunity. Sell-side events are left for the scheduler's partition step.
func (m *Monitor) enqueueIfUpgrade(event signals.ChangeEvent, analysis domain.Analysis) bool {
	switch event.ChangeType {
	case domain.ChangeUpgrade, domain.ChangeMajorUpgrade:
	default:
		return false
	}
	if event.Urgency != domain.UrgencyMedium && event.Urgency != domain.UrgencyHigh {
		return false
	}
	if analysis.Recommendation != domain.SignalStrongBuy && analysis.Recommendation != domain.SignalBuy {
		return false
	}

	added, err := m.buyQueue.Enqueue(queue.Opportunity{
		Symbol: event.Symbol,
		Signal: analysis.Recommendation,
		Score:  analysis.Score,
		Price:  analysis.CurrentPrice,
		Reason: event.Reason,
	})
	if err != nil {
		m.log.Error().Err(err).Str("symbol", event.Symbol).Msg("Failed to queue opportunity")
		return false
	}
	if added {
		m.events.Emit(events.OpportunityQueued, "monitor", map[string]interface{}{
			"symbol": event.Symbol,
			"signal": string(analysis.Recommendation),
			"score":  analysis.Score,
			"reason": event.Reason,
		})
	}
	return added
}

// runUniverseScan checks the whole universe and promotes high scorers to
// the watchlist.
func (m *Monitor) runUniverseScan(ctx context.Context, result *CycleResult) {
	symbols, err := m.universe.Universe(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Universe scan skipped")
		return
	}

	m.log.Info().Int("universe", len(symbols)).Msg("Running universe scan")

	for _, sym := range symbols {
		if m.watchlist.Contains(sym) {
			continue
		}

		analysis, err := m.analysis.Analyze(ctx, sym)
		if err != nil {
			result.Skipped++
			continue
		}
		result.Checked++

		if analysis.Score >= m.cfg.WatchlistScore {
			if _, err := m.watchlist.Add(sym); err != nil {
				m.log.Error().Err(err).Str("symbol", sym).Msg("Failed to add to watchlist")
				continue
			}
			// Seed the history so the next tier-2 check classifies
			// against this baseline, and start its tier-2 clock now.
			if event, err := m.record(sym, analysis); err == nil && event != nil {
				result.Changes = append(result.Changes, *event)
			}
			_ = m.store.SetLastCheck(checkKey(TierWatchlist, sym), m.now())
		}
	}
}

// due reports whether a tier check for a symbol is older than interval.
func (m *Monitor) due(tier Tier, symbol string, interval time.Duration, now time.Time) bool {
	last, ok, err := m.store.LastCheck(checkKey(tier, symbol))
	if err != nil || !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// scanDue reports whether today's universe scan window is open and the scan
// has not run yet today.
func (m *Monitor) scanDue(now time.Time) bool {
	if now.Hour() < m.cfg.ScanHour {
		return false
	}
	last, ok, err := m.store.LastCheck(string(TierUniverse))
	if err != nil || !ok {
		return true
	}
	y1, m1, d1 := last.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

func (m *Monitor) fired(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.triggered[symbol]
	return ok
}

func (m *Monitor) clearTrigger(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggered, symbol)
}

func checkKey(tier Tier, symbol string) string {
	return string(tier) + ":" + symbol
}
