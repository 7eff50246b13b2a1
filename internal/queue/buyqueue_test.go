package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofolio/autofolio/internal/domain"
)

func newTestQueue(t *testing.T) *BuyQueue {
	t.Helper()
	dir := t.TempDir()
	return New(
		filepath.Join(dir, "buy_queue.json"),
		filepath.Join(dir, "buy_queue.lock"),
		5*time.Second,
		zerolog.Nop(),
	)
}

func TestEnqueue_RejectsDuplicateSymbol(t *testing.T) {
	q := newTestQueue(t)

	added, err := q.Enqueue(Opportunity{Symbol: "AAPL", Score: 85, Signal: domain.SignalStrongBuy})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Enqueue(Opportunity{Symbol: "AAPL", Score: 90, Signal: domain.SignalStrongBuy})
	require.NoError(t, err)
	assert.False(t, added)

	entries, err := q.Peek()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 85.0, entries[0].Score)
}

func TestDequeueAll_IsAtomic(t *testing.T) {
	q := newTestQueue(t)

	for _, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		_, err := q.Enqueue(Opportunity{Symbol: sym, Score: 80, Signal: domain.SignalBuy})
		require.NoError(t, err)
	}

	drained, err := q.DequeueAll()
	require.NoError(t, err)
	assert.Len(t, drained, 3)

	// Immediately after a non-empty drain, the queue is empty.
	entries, err := q.Peek()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A symbol may be re-queued after the drain.
	added, err := q.Enqueue(Opportunity{Symbol: "AAPL", Score: 82, Signal: domain.SignalBuy})
	require.NoError(t, err)
	assert.True(t, added)
}

func TestStaleEntriesEvictedLazily(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(Opportunity{
		Symbol:   "OLD",
		Score:    75,
		Signal:   domain.SignalBuy,
		QueuedAt: time.Now().Add(-25 * time.Hour),
	})
	require.NoError(t, err)
	_, err = q.Enqueue(Opportunity{Symbol: "FRESH", Score: 80, Signal: domain.SignalBuy})
	require.NoError(t, err)

	entries, err := q.Peek()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "FRESH", entries[0].Symbol)

	// Eviction frees the symbol for a new enqueue.
	added, err := q.Enqueue(Opportunity{Symbol: "OLD", Score: 78, Signal: domain.SignalBuy})
	require.NoError(t, err)
	assert.True(t, added)
}

func TestValidateAndFilter(t *testing.T) {
	q := newTestQueue(t)
	queuedAt := time.Now()

	opps := []Opportunity{
		{Symbol: "KEEP", Score: 80, Signal: domain.SignalBuy, QueuedAt: queuedAt},
		{Symbol: "NODATA", Score: 80, Signal: domain.SignalBuy, QueuedAt: queuedAt},
		{Symbol: "DROPPED", Score: 85, Signal: domain.SignalStrongBuy, QueuedAt: queuedAt},
		{Symbol: "DOWNGRADED", Score: 80, Signal: domain.SignalBuy, QueuedAt: queuedAt},
	}
	fresh := map[string]domain.Analysis{
		"KEEP":       {Score: 78, Recommendation: domain.SignalBuy},
		"DROPPED":    {Score: 70, Recommendation: domain.SignalStrongBuy},
		"DOWNGRADED": {Score: 79, Recommendation: domain.SignalHold},
	}

	kept, rejected := q.ValidateAndFilter(opps, fresh)

	require.Len(t, kept, 1)
	assert.Equal(t, "KEEP", kept[0].Symbol)

	reasons := map[string]string{}
	for _, r := range rejected {
		reasons[r.Symbol] = r.RejectReason
	}
	assert.Contains(t, reasons["NODATA"], "no fresh analysis")
	assert.Contains(t, reasons["DROPPED"], "score dropped")
	assert.Contains(t, reasons["DOWNGRADED"], "downgraded")
}

func TestValidateAndFilter_DowngradeScenario(t *testing.T) {
	// Queued STRONG_BUY at 85, fresh analysis says HOLD at 70: nothing survives.
	q := newTestQueue(t)

	added, err := q.Enqueue(Opportunity{Symbol: "AAPL", Score: 85, Signal: domain.SignalStrongBuy})
	require.NoError(t, err)
	require.True(t, added)

	drained, err := q.DequeueAll()
	require.NoError(t, err)
	require.Len(t, drained, 1)

	kept, rejected := q.ValidateAndFilter(drained, map[string]domain.Analysis{
		"AAPL": {Score: 70, Recommendation: domain.SignalHold},
	})
	assert.Empty(t, kept)
	require.Len(t, rejected, 1)
}

func TestMalformedFileReinitializes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buy_queue.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	q := New(path, filepath.Join(dir, "buy_queue.lock"), 5*time.Second, zerolog.Nop())

	entries, err := q.Peek()
	require.NoError(t, err)
	assert.Empty(t, entries)

	added, err := q.Enqueue(Opportunity{Symbol: "AAPL", Score: 85, Signal: domain.SignalStrongBuy})
	require.NoError(t, err)
	assert.True(t, added)
}
