package trading

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofolio/autofolio/internal/database"
)

func newTestRepo(t *testing.T) *TradeRepository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewTradeRepository(db.Conn(), zerolog.Nop())
}

func TestCreateAndQueryTrades(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, repo.Create(Trade{
		Symbol: "aapl", Side: TradeSideBuy, Shares: 10, Price: 150, Total: 1500,
		TriggerType: "buy_queue", Reason: "queued upgrade", ExecutedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, repo.Create(Trade{
		Symbol: "AAPL", Side: TradeSideSell, Shares: 10, Price: 160, Total: 1600,
		TriggerType: "take_profit", ExecutedAt: now,
	}))

	recent, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, TradeSideSell, recent[0].Side)

	bySymbol, err := repo.BySymbol("AAPL")
	require.NoError(t, err)
	require.Len(t, bySymbol, 2)
	assert.Equal(t, TradeSideBuy, bySymbol[0].Side)
	assert.Equal(t, "AAPL", bySymbol[0].Symbol, "symbol normalized on insert")

	count, err := repo.CountSince(now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRejectsInvalidTrade(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Create(Trade{Symbol: "", Side: TradeSideBuy, Shares: 1, Price: 1})
	require.Error(t, err)

	err = repo.Create(Trade{Symbol: "AAPL", Side: "SHORT", Shares: 1, Price: 1})
	require.Error(t, err)

	err = repo.Create(Trade{Symbol: "AAPL", Side: TradeSideBuy, Shares: 0, Price: 1})
	require.Error(t, err)
}

func TestTradeSideFromString(t *testing.T) {
	side, err := TradeSideFromString(" buy ")
	require.NoError(t, err)
	assert.Equal(t, TradeSideBuy, side)

	_, err = TradeSideFromString("hold")
	require.Error(t, err)
}
