package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofolio/autofolio/internal/database"
	"github.com/autofolio/autofolio/internal/decision"
	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/signals"
	"github.com/autofolio/autofolio/internal/trading"
)

func newService(t *testing.T, initialCash float64) (*TradeExecutionService, *portfolio.Store, *trading.TradeRepository, *signals.Store) {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()
	lockTimeout := 2 * time.Second

	portfolioStore := portfolio.New(
		filepath.Join(dir, "portfolio.json"), filepath.Join(dir, "portfolio.lock"), lockTimeout, initialCash, log)
	signalStore := signals.NewStore(
		filepath.Join(dir, "signals.json"), filepath.Join(dir, "signals.lock"), lockTimeout, log)

	db, err := database.New(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	tradeRepo := trading.NewTradeRepository(db.Conn(), log)

	svc := NewTradeExecutionService(portfolioStore, tradeRepo, signalStore, events.NewManager(log), log)
	return svc, portfolioStore, tradeRepo, signalStore
}

func TestExecuteSell_RecordsLedgerAndFreesCash(t *testing.T) {
	svc, portfolioStore, tradeRepo, _ := newService(t, 10000)
	require.NoError(t, portfolioStore.Buy("AAPL", 10, 100, "Tech"))

	pos, err := portfolioStore.Positions()
	require.NoError(t, err)

	result := svc.ExecuteSell(pos["AAPL"], decision.SellDecision{
		ShouldSell: true,
		Trigger:    decision.TriggerStopLoss,
		Urgency:    decision.SellCritical,
		Reason:     "stop-loss breached",
	}, 85)

	assert.Equal(t, "success", result.Status)

	cash, err := portfolioStore.Cash()
	require.NoError(t, err)
	assert.InDelta(t, 9850, cash, 0.01)

	trades, err := tradeRepo.Recent(5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, trading.TradeSideSell, trades[0].Side)
	assert.Equal(t, "stop_loss", trades[0].TriggerType)
}

func TestExecuteSell_NoPriceBlocked(t *testing.T) {
	svc, portfolioStore, tradeRepo, _ := newService(t, 10000)
	require.NoError(t, portfolioStore.Buy("AAPL", 10, 100, "Tech"))

	pos, err := portfolioStore.Positions()
	require.NoError(t, err)

	result := svc.ExecuteSell(pos["AAPL"], decision.SellDecision{ShouldSell: true}, 0)
	assert.Equal(t, "blocked", result.Status)

	trades, err := tradeRepo.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, trades, "blocked trades never reach the ledger")
}

func TestExecuteBuy_InsufficientFundsAtExecutionTime(t *testing.T) {
	svc, portfolioStore, tradeRepo, _ := newService(t, 100)

	// The decision was made against a stale cash figure.
	result := svc.ExecuteBuy(
		queue.Opportunity{Symbol: "NVDA", Score: 90},
		domain.Analysis{Symbol: "NVDA", Score: 90, CurrentPrice: 50, Sector: "Tech"},
		decision.BuyDecision{Accept: true, Shares: 10, TotalCost: 500},
	)

	assert.Equal(t, "blocked", result.Status)

	cash, err := portfolioStore.Cash()
	require.NoError(t, err)
	assert.Equal(t, 100.0, cash, "cash untouched")

	trades, err := tradeRepo.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestExecuteBuy_RejectedDecisionBlocked(t *testing.T) {
	svc, _, _, _ := newService(t, 10000)

	result := svc.ExecuteBuy(
		queue.Opportunity{Symbol: "NVDA"},
		domain.Analysis{Symbol: "NVDA", CurrentPrice: 50},
		decision.BuyDecision{Accept: false, Reason: "already owned"},
	)

	assert.Equal(t, "blocked", result.Status)
	assert.Equal(t, "already owned", result.Reason)
}

func TestMarkChangeConsumed(t *testing.T) {
	svc, _, _, signalStore := newService(t, 10000)

	event, err := signalStore.UpdateSignal("AAPL", domain.SignalSell, 30, domain.ConfidenceHigh, nil)
	require.NoError(t, err)
	require.NotNil(t, event)

	svc.MarkChangeConsumed(*event, domain.ActionSell)

	changes, err := signalStore.ChangesSince(event.Timestamp.Add(-time.Minute), "AAPL")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].ActionTaken)
	assert.Equal(t, domain.ActionSell, *changes[0].ActionTaken)
}
