package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/decision"
	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/monitor"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/providers"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/rules"
	"github.com/autofolio/autofolio/internal/services"
	"github.com/autofolio/autofolio/internal/signals"
)

// lastRunKey is the signal-store clock key recording the last successful
// daily run, used to window the change events the next run reacts to.
const lastRunKey = "execution:last_run"

// DailyExecutionJob is the once-a-day trading run. Sells always complete
// before any buy so freed cash is available in the same run. The buy-queue
// lock and the portfolio lock are never held at the same time: the queue is
// drained first, then each execution takes the portfolio lock on its own.
type DailyExecutionJob struct {
	calendar     *TradingCalendar
	rulesWatcher *rules.ConfigWatcher
	monitor      *monitor.Monitor
	signalStore  *signals.Store
	buyQueue     *queue.BuyQueue
	portfolio    *portfolio.Store
	equity       *portfolio.EquityCurve
	analysis     providers.AnalysisProvider
	regime       providers.RegimeProvider
	execService  *services.TradeExecutionService
	execLog      *ExecutionLog
	eventManager *events.Manager
	log          zerolog.Logger

	retryDelay time.Duration
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewDailyExecutionJob wires the daily run.
func NewDailyExecutionJob(
	calendar *TradingCalendar,
	rulesWatcher *rules.ConfigWatcher,
	mon *monitor.Monitor,
	signalStore *signals.Store,
	buyQueue *queue.BuyQueue,
	portfolioStore *portfolio.Store,
	equity *portfolio.EquityCurve,
	analysis providers.AnalysisProvider,
	regime providers.RegimeProvider,
	execService *services.TradeExecutionService,
	execLog *ExecutionLog,
	eventManager *events.Manager,
	retryDelay time.Duration,
	log zerolog.Logger,
) *DailyExecutionJob {
	return &DailyExecutionJob{
		calendar:     calendar,
		rulesWatcher: rulesWatcher,
		monitor:      mon,
		signalStore:  signalStore,
		buyQueue:     buyQueue,
		portfolio:    portfolioStore,
		equity:       equity,
		analysis:     analysis,
		regime:       regime,
		execService:  execService,
		execLog:      execLog,
		eventManager: eventManager,
		retryDelay:   retryDelay,
		now:          time.Now,
		sleep:        time.Sleep,
		log:          log.With().Str("job", "daily_execution").Logger(),
	}
}

// Name implements Job.
func (j *DailyExecutionJob) Name() string { return "daily_execution" }

// Run implements Job. A failed run is retried exactly once after a fixed
// delay; a second failure is terminal for the day and surfaces only through
// the execution log.
func (j *DailyExecutionJob) Run() error {
	now := j.now()

	if !j.calendar.IsTradingDay(now) {
		_ = j.execLog.Append(LogEntry{
			Timestamp: now,
			Status:    RunSkipped,
			Summary:   "not a trading day",
		})
		j.log.Info().Msg("Skipping run: not a trading day")
		return nil
	}

	summary, err := j.runOnce()
	if err == nil {
		_ = j.execLog.Append(LogEntry{Timestamp: j.now(), Status: RunSuccess, Summary: summary})
		return nil
	}

	j.log.Error().Err(err).Msg("Daily run failed, will retry once")
	j.eventManager.EmitError("scheduler", err, map[string]interface{}{
		"job":      j.Name(),
		"attempt":  1,
		"retrying": true,
	})
	_ = j.execLog.Append(LogEntry{
		Timestamp: j.now(),
		Status:    RunFailure,
		Summary:   "run failed, retrying",
		Error:     err.Error(),
	})

	j.sleep(j.retryDelay)

	summary, retryErr := j.runOnce()
	if retryErr == nil {
		_ = j.execLog.Append(LogEntry{Timestamp: j.now(), Status: RunSuccessRetry, Summary: summary})
		return nil
	}

	j.eventManager.EmitError("scheduler", retryErr, map[string]interface{}{
		"job":      j.Name(),
		"attempt":  2,
		"retrying": false,
	})
	_ = j.execLog.Append(LogEntry{
		Timestamp: j.now(),
		Status:    RunFailureRetry,
		Summary:   "retry failed, giving up for today",
		Error:     retryErr.Error(),
	})
	return fmt.Errorf("daily run failed after retry: %w", retryErr)
}

// runOnce performs one full pass: reload rules, monitor cycle, sells, buys.
// Per-symbol failures are isolated; only orchestration errors propagate.
func (j *DailyExecutionJob) runOnce() (string, error) {
	ctx := context.Background()
	start := j.now()

	reloaded, err := j.rulesWatcher.ReloadIfChanged()
	if err != nil {
		return "", fmt.Errorf("reloading rules: %w", err)
	}
	if reloaded {
		j.eventManager.Emit(events.RulesReloaded, "scheduler", nil)
	}
	r := j.rulesWatcher.Current()

	cycle, err := j.monitor.RunCycle(ctx)
	if err != nil {
		return "", fmt.Errorf("monitor cycle: %w", err)
	}

	since, ok, err := j.signalStore.LastCheck(lastRunKey)
	if err != nil || !ok {
		since = start.Add(-24 * time.Hour)
	}

	sellsDone := 0
	buysDone := 0

	if r.AutomationActive {
		remaining := r.MaxTradesPerRun
		if remaining <= 0 {
			remaining = int(^uint(0) >> 1)
		}

		sellsDone, err = j.executeSells(ctx, r, since, &remaining)
		if err != nil {
			return "", fmt.Errorf("sell pass: %w", err)
		}

		buysDone, err = j.executeBuys(ctx, r, &remaining)
		if err != nil {
			return "", fmt.Errorf("buy pass: %w", err)
		}
	} else {
		j.log.Info().Msg("Automation inactive, monitor cycle only")
	}

	if err := j.signalStore.SetLastCheck(lastRunKey, start); err != nil {
		j.log.Warn().Err(err).Msg("Failed to persist run timestamp")
	}

	j.recordEquity(ctx)

	summary := fmt.Sprintf("checked=%d changes=%d queued=%d sells=%d buys=%d",
		cycle.Checked, len(cycle.Changes), cycle.Queued, sellsDone, buysDone)

	j.eventManager.Emit(events.ExecutionRunDone, "scheduler", map[string]interface{}{
		"sells":   sellsDone,
		"buys":    buysDone,
		"checked": cycle.Checked,
	})

	return summary, nil
}

// executeSells evaluates every held position against the sell hierarchy.
// Positions flagged by a critical change event go first, then high-urgency
// ones, then the rest, so the trades-per-run cap spends itself on the most
// urgent exits.
func (j *DailyExecutionJob) executeSells(ctx context.Context, r *rules.Rules, since time.Time, remaining *int) (int, error) {
	positions, err := j.portfolio.Positions()
	if err != nil {
		return 0, fmt.Errorf("reading positions: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	changes, err := j.signalStore.ChangesSince(since, "")
	if err != nil {
		return 0, fmt.Errorf("reading change events: %w", err)
	}

	critical, high := j.partitionSellEvents(changes, positions)

	ordered := make([]string, 0, len(positions))
	seen := make(map[string]bool, len(positions))
	for _, ev := range critical {
		if !seen[ev.Symbol] {
			ordered = append(ordered, ev.Symbol)
			seen[ev.Symbol] = true
		}
	}
	for _, ev := range high {
		if !seen[ev.Symbol] {
			ordered = append(ordered, ev.Symbol)
			seen[ev.Symbol] = true
		}
	}
	rest := make([]string, 0, len(positions))
	for sym := range positions {
		if !seen[sym] {
			rest = append(rest, sym)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	eventBySymbol := make(map[string]signals.ChangeEvent)
	for _, ev := range append(critical, high...) {
		if _, ok := eventBySymbol[ev.Symbol]; !ok {
			eventBySymbol[ev.Symbol] = ev
		}
	}

	sold := 0
	for _, sym := range ordered {
		if *remaining <= 0 {
			j.log.Info().Int("max", r.MaxTradesPerRun).Msg("Trade cap reached, stopping sell pass")
			break
		}
		pos := positions[sym]

		analysis, err := j.analysis.Analyze(ctx, sym)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", sym).Msg("No fresh analysis, skipping sell check")
			continue
		}

		dec := decision.EvaluateSell(pos, analysis, r, j.now())
		if !dec.ShouldSell {
			if dec.Deferred {
				j.log.Info().Str("symbol", sym).Str("reason", dec.Reason).Msg("Take-profit deferred")
			}
			continue
		}

		result := j.execService.ExecuteSell(pos, dec, analysis.CurrentPrice)
		if result.Status != "success" {
			continue
		}
		sold++
		*remaining--

		if ev, ok := eventBySymbol[sym]; ok {
			j.execService.MarkChangeConsumed(ev, domain.ActionSell)
		}
	}
	return sold, nil
}

// partitionSellEvents splits unconsumed change events into critical and
// high-urgency sell candidates for symbols actually held. Buy upgrades are
// not returned: the monitor already routed those into the buy queue.
func (j *DailyExecutionJob) partitionSellEvents(changes []signals.ChangeEvent, positions map[string]portfolio.Position) (critical, high []signals.ChangeEvent) {
	for _, ev := range changes {
		if ev.ActionTaken != nil {
			continue
		}
		if _, held := positions[ev.Symbol]; !held {
			continue
		}
		switch ev.Urgency {
		case domain.UrgencyCritical:
			critical = append(critical, ev)
		case domain.UrgencyHigh:
			high = append(high, ev)
		}
	}
	return critical, high
}

// executeBuys drains the queue, re-validates every entry against fresh
// analysis, and executes the survivors through the buy engine. The local
// portfolio view is updated after each fill so later candidates see the
// cash and sector exposure the earlier ones consumed.
func (j *DailyExecutionJob) executeBuys(ctx context.Context, r *rules.Rules, remaining *int) (int, error) {
	opps, err := j.buyQueue.DequeueAll()
	if err != nil {
		return 0, fmt.Errorf("draining buy queue: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	fresh := make(map[string]domain.Analysis, len(opps))
	for _, opp := range opps {
		analysis, err := j.analysis.Analyze(ctx, opp.Symbol)
		if err != nil {
			j.log.Warn().Err(err).Str("symbol", opp.Symbol).Msg("Fresh analysis failed")
			continue
		}
		fresh[opp.Symbol] = analysis
	}

	kept, rejected := j.buyQueue.ValidateAndFilter(opps, fresh)
	for _, rej := range rejected {
		j.eventManager.Emit(events.OpportunityDropped, "scheduler", map[string]interface{}{
			"symbol": rej.Symbol,
			"reason": rej.RejectReason,
		})
	}
	if len(kept) == 0 {
		return 0, nil
	}

	// Highest-scoring candidates get first claim on the remaining cash.
	sort.Slice(kept, func(a, b int) bool {
		return fresh[kept[a].Symbol].Score > fresh[kept[b].Symbol].Score
	})

	adj := decision.LookupRegime(j.currentRegime(ctx))

	state, err := j.portfolio.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("reading portfolio: %w", err)
	}
	prices := make(map[string]float64, len(fresh))
	for sym, analysis := range fresh {
		prices[sym] = analysis.CurrentPrice
	}

	cash := state.Cash
	positionCount := len(state.Positions)
	totalValue := state.TotalValue(prices)
	sectorValue := make(map[string]float64)

	bought := 0
	for _, opp := range kept {
		if *remaining <= 0 {
			j.log.Info().Int("max", r.MaxTradesPerRun).Msg("Trade cap reached, stopping buy pass")
			break
		}
		analysis := fresh[opp.Symbol]

		sector := analysis.Sector
		if _, ok := sectorValue[sector]; !ok {
			sectorValue[sector] = state.SectorValue(sector, prices)
		}

		_, owned := state.Positions[opp.Symbol]
		view := decision.PortfolioView{
			Cash:          cash,
			TotalValue:    totalValue,
			PositionCount: positionCount,
			AlreadyOwned:  owned,
			SectorValue:   sectorValue[sector],
		}

		dec := decision.EvaluateBuy(analysis, r, adj, view)
		result := j.execService.ExecuteBuy(opp, analysis, dec)
		if result.Status != "success" {
			continue
		}
		bought++
		*remaining--

		// Sector totals here are a sequencing heuristic between candidates
		// in this batch; the portfolio store is the source of truth.
		cash -= dec.TotalCost
		positionCount++
		sectorValue[sector] += dec.TotalCost
	}
	return bought, nil
}

// recordEquity samples today's portfolio value for the performance curve.
// Positions without a fresh quote are valued at cost basis.
func (j *DailyExecutionJob) recordEquity(ctx context.Context) {
	state, err := j.portfolio.Snapshot()
	if err != nil {
		j.log.Warn().Err(err).Msg("Equity sample skipped")
		return
	}

	prices := make(map[string]float64, len(state.Positions))
	for sym := range state.Positions {
		if analysis, err := j.analysis.Analyze(ctx, sym); err == nil && analysis.CurrentPrice > 0 {
			prices[sym] = analysis.CurrentPrice
		}
	}

	if err := j.equity.Record(j.now(), state.TotalValue(prices)); err != nil {
		j.log.Warn().Err(err).Msg("Failed to record equity point")
	}
}

func (j *DailyExecutionJob) currentRegime(ctx context.Context) domain.Regime {
	regime, err := j.regime.CurrentRegime(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("Regime fetch failed, using neutral adjustment")
		return domain.Regime{Trend: domain.TrendSideways, Volatility: domain.VolatilityNormal}
	}
	return regime
}
