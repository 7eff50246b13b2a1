package scheduler

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofolio/autofolio/internal/database"
	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/monitor"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/providers"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/rules"
	"github.com/autofolio/autofolio/internal/services"
	"github.com/autofolio/autofolio/internal/signals"
	"github.com/autofolio/autofolio/internal/trading"
)

type jobFixture struct {
	job       *DailyExecutionJob
	provider  *providers.Static
	portfolio *portfolio.Store
	queue     *queue.BuyQueue
	execLog   *ExecutionLog
	equity    *portfolio.EquityCurve
	watcher   *rules.ConfigWatcher
	tradeRepo *trading.TradeRepository
	rulesPath string
}

// tradingTuesday is a fixed regular trading day (Tue Aug 25 2026, 16:00 UTC).
var tradingTuesday = time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()
	lockTimeout := 2 * time.Second

	signalStore := signals.NewStore(
		filepath.Join(dir, "signals.json"), filepath.Join(dir, "signals.lock"), lockTimeout, log)
	buyQueue := queue.New(
		filepath.Join(dir, "queue.json"), filepath.Join(dir, "queue.lock"), lockTimeout, log)
	portfolioStore := portfolio.New(
		filepath.Join(dir, "portfolio.json"), filepath.Join(dir, "portfolio.lock"), lockTimeout, 10000, log)
	watchlist := monitor.NewWatchlist(filepath.Join(dir, "watchlist.json"), log)
	provider := providers.NewStatic()
	eventManager := events.NewManager(log)

	mon := monitor.New(monitor.Config{
		PositionInterval:  30 * time.Minute,
		WatchlistInterval: 2 * time.Hour,
		PriceMovePct:      5,
		ScanHour:          7,
		WatchlistScore:    70,
	}, provider, provider, signalStore, buyQueue, portfolioStore, watchlist, eventManager, log)

	db, err := database.New(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	tradeRepo := trading.NewTradeRepository(db.Conn(), log)
	execService := services.NewTradeExecutionService(portfolioStore, tradeRepo, signalStore, eventManager, log)
	execLog := NewExecutionLog(filepath.Join(dir, "execlog.json"), log)
	rulesPath := filepath.Join(dir, "rules.json")
	watcher := rules.NewConfigWatcher(rulesPath, log)
	equity := portfolio.NewEquityCurve(filepath.Join(dir, "equity.json"), log)

	job := NewDailyExecutionJob(
		NewTradingCalendar(log), watcher, mon, signalStore, buyQueue, portfolioStore,
		equity, provider, provider, execService, execLog, eventManager, time.Minute, log)
	job.now = func() time.Time { return tradingTuesday }
	job.sleep = func(time.Duration) {}

	return &jobFixture{
		job:       job,
		provider:  provider,
		portfolio: portfolioStore,
		queue:     buyQueue,
		execLog:   execLog,
		equity:    equity,
		watcher:   watcher,
		tradeRepo: tradeRepo,
		rulesPath: rulesPath,
	}
}

func TestDailyExecutionJob_SkipsNonTradingDay(t *testing.T) {
	f := newJobFixture(t)
	saturday := time.Date(2026, 8, 29, 16, 0, 0, 0, time.UTC)
	f.job.now = func() time.Time { return saturday }

	require.NoError(t, f.job.Run())

	last, err := f.execLog.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, RunSkipped, last.Status)
	assert.Zero(t, f.provider.Calls(), "no provider calls on a skipped day")
}

func TestDailyExecutionJob_SellsThenBuys(t *testing.T) {
	f := newJobFixture(t)

	// Held position down 20%: stop-loss must fire.
	require.NoError(t, f.portfolio.Buy("LOSER", 10, 100, "Tech"))
	f.provider.Set(domain.Analysis{
		Symbol: "LOSER", Score: 50, Recommendation: domain.SignalHold,
		Confidence: domain.ConfidenceMedium, CurrentPrice: 80, Sector: "Tech",
	})

	// Queued opportunity that survives re-validation.
	_, err := f.queue.Enqueue(queue.Opportunity{
		Symbol: "NEWCO", QueuedAt: time.Now(), Signal: domain.SignalStrongBuy,
		Score: 85, Reason: "upgrade",
	})
	require.NoError(t, err)
	f.provider.Set(domain.Analysis{
		Symbol: "NEWCO", Score: 85, Recommendation: domain.SignalStrongBuy,
		Confidence: domain.ConfidenceHigh, CurrentPrice: 50, Sector: "Health",
	})

	require.NoError(t, f.job.Run())

	positions, err := f.portfolio.Positions()
	require.NoError(t, err)
	assert.NotContains(t, positions, "LOSER", "stop-loss position must be sold")
	require.Contains(t, positions, "NEWCO")
	// Score 85 sizes to 853.55, scaled by the 0.9 sideways regime
	// multiplier to 768.20, floored to 15 shares at 50.
	assert.Equal(t, float64(15), positions["NEWCO"].Shares)

	// 10000 - 1000 (seed buy) + 800 (sell) - 750 (15 shares @ 50)
	cash, err := f.portfolio.Cash()
	require.NoError(t, err)
	assert.InDelta(t, 9050, cash, 0.01)

	trades, err := f.tradeRepo.Recent(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	last, err := f.execLog.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, RunSuccess, last.Status)
	assert.Contains(t, last.Summary, "sells=1")
	assert.Contains(t, last.Summary, "buys=1")

	// Queue is drained either way.
	remaining, err := f.queue.Peek()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// 9050 cash + 15 NEWCO shares at the quoted 50.
	values := f.equity.Values()
	require.Len(t, values, 1)
	assert.InDelta(t, 9800, values[0], 0.01)
}

func TestDailyExecutionJob_TradeCapSpentOnSellsFirst(t *testing.T) {
	f := newJobFixture(t)

	r := rules.Defaults()
	r.MaxTradesPerRun = 1
	require.NoError(t, f.watcher.Save(r))

	require.NoError(t, f.portfolio.Buy("LOSER", 10, 100, "Tech"))
	f.provider.Set(domain.Analysis{
		Symbol: "LOSER", Score: 50, Recommendation: domain.SignalHold,
		Confidence: domain.ConfidenceMedium, CurrentPrice: 80, Sector: "Tech",
	})
	_, err := f.queue.Enqueue(queue.Opportunity{
		Symbol: "NEWCO", QueuedAt: time.Now(), Signal: domain.SignalStrongBuy,
		Score: 85, Reason: "upgrade",
	})
	require.NoError(t, err)
	f.provider.Set(domain.Analysis{
		Symbol: "NEWCO", Score: 85, Recommendation: domain.SignalStrongBuy,
		Confidence: domain.ConfidenceHigh, CurrentPrice: 50, Sector: "Health",
	})

	require.NoError(t, f.job.Run())

	positions, err := f.portfolio.Positions()
	require.NoError(t, err)
	assert.NotContains(t, positions, "LOSER")
	assert.NotContains(t, positions, "NEWCO", "cap of one trade goes to the sell")

	last, err := f.execLog.Last()
	require.NoError(t, err)
	assert.Contains(t, last.Summary, "sells=1")
	assert.Contains(t, last.Summary, "buys=0")
}

func TestDailyExecutionJob_AutomationInactiveMonitorsOnly(t *testing.T) {
	f := newJobFixture(t)

	r := rules.Defaults()
	r.AutomationActive = false
	require.NoError(t, f.watcher.Save(r))

	require.NoError(t, f.portfolio.Buy("LOSER", 10, 100, "Tech"))
	f.provider.Set(domain.Analysis{
		Symbol: "LOSER", Score: 50, Recommendation: domain.SignalHold,
		Confidence: domain.ConfidenceMedium, CurrentPrice: 80, Sector: "Tech",
	})

	require.NoError(t, f.job.Run())

	positions, err := f.portfolio.Positions()
	require.NoError(t, err)
	assert.Contains(t, positions, "LOSER", "no trades while automation is off")

	last, err := f.execLog.Last()
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, last.Status)
	assert.Contains(t, last.Summary, "sells=0")
}

func TestDailyExecutionJob_RetriesOnceThenGivesUp(t *testing.T) {
	f := newJobFixture(t)

	// A corrupt rules file makes the reload step fail on both attempts.
	require.NoError(t, os.WriteFile(f.rulesPath, []byte("{not json"), 0644))

	var eventLog bytes.Buffer
	f.job.eventManager = events.NewManager(zerolog.New(&eventLog))

	slept := 0
	f.job.sleep = func(time.Duration) { slept++ }

	err := f.job.Run()
	require.Error(t, err)
	assert.Equal(t, 1, slept, "exactly one retry delay")

	entries, err := f.execLog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RunFailure, entries[0].Status)
	assert.Equal(t, RunFailureRetry, entries[1].Status)
	assert.NotEmpty(t, entries[1].Error)

	// Both failed attempts surface as error events.
	assert.Equal(t, 2, strings.Count(eventLog.String(), string(events.ErrorOccurred)))
}

func TestDailyExecutionJob_RetrySucceeds(t *testing.T) {
	f := newJobFixture(t)

	require.NoError(t, os.WriteFile(f.rulesPath, []byte("{not json"), 0644))

	// Repair the config during the retry delay.
	f.job.sleep = func(time.Duration) {
		require.NoError(t, os.Remove(f.rulesPath))
	}

	require.NoError(t, f.job.Run())

	entries, err := f.execLog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RunFailure, entries[0].Status)
	assert.Equal(t, RunSuccessRetry, entries[1].Status)
}
