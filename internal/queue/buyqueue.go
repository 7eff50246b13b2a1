// Package queue implements the durable buy queue: a process-safe set of buy
// candidates, deduplicated by symbol, that accumulates between monitor runs
// and is drained at the daily execution cutoff.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/lockfile"
	"github.com/autofolio/autofolio/internal/storage"
)

// MaxAge is the eviction window: entries older than this are discarded
// lazily on the next read instead of being executed.
const MaxAge = 24 * time.Hour

// scoreDropLimit is the maximum tolerated drop between the queued score and
// the fresh score at re-validation time.
const scoreDropLimit = 10.0

// Opportunity is one queued buy candidate. At most one entry per symbol
// exists in the queue at any time.
type Opportunity struct {
	Symbol   string        `json:"symbol"`
	QueuedAt time.Time     `json:"queued_at"`
	Signal   domain.Signal `json:"signal"`
	Score    float64       `json:"score"`
	Price    float64       `json:"price,omitempty"`
	Reason   string        `json:"reason"`
}

// queueFile is the on-disk layout of the buy queue
type queueFile struct {
	QueuedOpportunities []Opportunity     `json:"queued_opportunities"`
	Metadata            map[string]string `json:"metadata"`
}

// BuyQueue is a durable set keyed by symbol with its own lock file,
// independent of the portfolio lock.
type BuyQueue struct {
	path        string
	lock        *lockfile.FileLock
	lockTimeout time.Duration
	log         zerolog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates a buy queue backed by the given file paths.
func New(path, lockPath string, lockTimeout time.Duration, log zerolog.Logger) *BuyQueue {
	return &BuyQueue{
		path:        path,
		lock:        lockfile.New(lockPath, log),
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "buy_queue").Logger(),
		now:         time.Now,
	}
}

// Enqueue adds an opportunity unless its symbol is already queued. Stale
// entries are evicted first. Returns false when the symbol was a duplicate.
func (q *BuyQueue) Enqueue(opp Opportunity) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if opp.QueuedAt.IsZero() {
		opp.QueuedAt = q.now()
	}

	added := false
	err := q.lock.WithLock("enqueue", q.lockTimeout, func() error {
		qf := q.load()
		entries := q.evictStale(qf.QueuedOpportunities)

		for _, existing := range entries {
			if existing.Symbol == opp.Symbol {
				qf.QueuedOpportunities = entries
				return storage.WriteJSON(q.path, qf)
			}
		}

		added = true
		qf.QueuedOpportunities = append(entries, opp)
		qf.Metadata["last_enqueue"] = q.now().Format(time.RFC3339)
		return storage.WriteJSON(q.path, qf)
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s: %w", opp.Symbol, err)
	}

	if added {
		q.log.Info().
			Str("symbol", opp.Symbol).
			Float64("score", opp.Score).
			Str("signal", string(opp.Signal)).
			Msg("Opportunity queued")
	} else {
		q.log.Debug().Str("symbol", opp.Symbol).Msg("Duplicate enqueue rejected")
	}

	return added, nil
}

// DequeueAll atomically returns all live entries and clears the queue. The
// read and the clear are one critical section so no opportunity is lost or
// delivered twice.
func (q *BuyQueue) DequeueAll() ([]Opportunity, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Opportunity
	err := q.lock.WithLock("dequeue_all", q.lockTimeout, func() error {
		qf := q.load()
		out = q.evictStale(qf.QueuedOpportunities)

		qf.QueuedOpportunities = []Opportunity{}
		qf.Metadata["last_drain"] = q.now().Format(time.RFC3339)
		return storage.WriteJSON(q.path, qf)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain buy queue: %w", err)
	}

	q.log.Info().Int("count", len(out)).Msg("Buy queue drained")
	return out, nil
}

// Peek returns all live entries without clearing the queue.
func (q *BuyQueue) Peek() ([]Opportunity, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Opportunity
	err := q.lock.WithLock("peek", q.lockTimeout, func() error {
		qf := q.load()
		live := q.evictStale(qf.QueuedOpportunities)
		out = live

		// Persist the eviction so later readers see the smaller queue.
		if len(live) != len(qf.QueuedOpportunities) {
			qf.QueuedOpportunities = live
			return storage.WriteJSON(q.path, qf)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to peek buy queue: %w", err)
	}
	return out, nil
}

// RejectedOpportunity records why a queued entry failed re-validation.
type RejectedOpportunity struct {
	Opportunity
	RejectReason string `json:"reject_reason"`
}

// ValidateAndFilter re-validates drained opportunities against fresh
// analysis, keeping only entries that still justify a buy. Rejections:
// no fresh data, score dropped more than scoreDropLimit, or recommendation
// degraded below BUY.
func (q *BuyQueue) ValidateAndFilter(opps []Opportunity, fresh map[string]domain.Analysis) ([]Opportunity, []RejectedOpportunity) {
	var kept []Opportunity
	var rejected []RejectedOpportunity

	for _, opp := range opps {
		analysis, ok := fresh[opp.Symbol]
		switch {
		case !ok:
			rejected = append(rejected, RejectedOpportunity{opp, "no fresh analysis"})
		case opp.Score-analysis.Score > scoreDropLimit:
			rejected = append(rejected, RejectedOpportunity{opp, fmt.Sprintf(
				"score dropped %.1f -> %.1f", opp.Score, analysis.Score)})
		case analysis.Recommendation != domain.SignalStrongBuy && analysis.Recommendation != domain.SignalBuy:
			rejected = append(rejected, RejectedOpportunity{opp, fmt.Sprintf(
				"recommendation downgraded to %s", analysis.Recommendation)})
		default:
			kept = append(kept, opp)
		}
	}

	for _, r := range rejected {
		q.log.Info().
			Str("symbol", r.Symbol).
			Str("reason", r.RejectReason).
			Msg("Queued opportunity rejected at re-validation")
	}

	return kept, rejected
}

// evictStale drops entries older than MaxAge.
func (q *BuyQueue) evictStale(entries []Opportunity) []Opportunity {
	cutoff := q.now().Add(-MaxAge)
	live := make([]Opportunity, 0, len(entries))
	for _, e := range entries {
		if e.QueuedAt.Before(cutoff) {
			q.log.Info().
				Str("symbol", e.Symbol).
				Time("queued_at", e.QueuedAt).
				Msg("Stale opportunity evicted")
			continue
		}
		live = append(live, e)
	}
	return live
}

// load reads the queue file, silently reinitializing to empty on a missing
// or malformed file.
func (q *BuyQueue) load() *queueFile {
	qf := &queueFile{QueuedOpportunities: []Opportunity{}, Metadata: map[string]string{}}
	if err := storage.ReadJSON(q.path, qf); err != nil {
		return &queueFile{QueuedOpportunities: []Opportunity{}, Metadata: map[string]string{}}
	}
	if qf.Metadata == nil {
		qf.Metadata = map[string]string{}
	}
	return qf
}
