// Package signals implements the durable signal history store: the current
// per-symbol signal state plus an append-only change log, persisted as one
// JSON file shared between the monitoring and execution processes.
package signals

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/lockfile"
	"github.com/autofolio/autofolio/internal/storage"
)

// Store persists signal state and classified changes. All mutations run
// under the store's own file lock; an in-process mutex additionally
// serializes callers within one process.
type Store struct {
	path        string
	lock        *lockfile.FileLock
	lockTimeout time.Duration
	log         zerolog.Logger

	mu sync.Mutex
}

// NewStore creates a signal history store backed by the given file paths.
func NewStore(path, lockPath string, lockTimeout time.Duration, log zerolog.Logger) *Store {
	return &Store{
		path:        path,
		lock:        lockfile.New(lockPath, log),
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "signal_store").Logger(),
	}
}

// UpdateSignal records a fresh observation for a symbol. The current-state
// record is always overwritten; a ChangeEvent is appended and returned only
// when the movement classified as an actual change.
func (s *Store) UpdateSignal(symbol string, signal domain.Signal, score float64, confidence domain.Confidence, agentScores map[string]float64) (*ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var event *ChangeEvent
	err := s.lock.WithLock("update_signal", s.lockTimeout, func() error {
		hist := s.load()

		var prev *Record
		if rec, ok := hist.CurrentSignals[symbol]; ok {
			prev = &rec
		}

		event = Classify(prev, symbol, signal, score)
		if event != nil {
			event.Timestamp = time.Now()
			hist.SignalChanges = append(hist.SignalChanges, *event)
		}

		hist.CurrentSignals[symbol] = Record{
			Symbol:      symbol,
			Signal:      signal,
			Score:       score,
			Confidence:  confidence,
			LastUpdated: time.Now(),
			AgentScores: agentScores,
		}

		return storage.WriteJSON(s.path, hist)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update signal for %s: %w", symbol, err)
	}

	if event != nil {
		s.log.Info().
			Str("symbol", symbol).
			Str("change_type", string(event.ChangeType)).
			Str("urgency", string(event.Urgency)).
			Str("reason", event.Reason).
			Msg("Signal change classified")
	}

	return event, nil
}

// Current returns the current record for a symbol, or nil when untracked.
func (s *Store) Current(symbol string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *Record
	err := s.lock.WithLock("read_signal", s.lockTimeout, func() error {
		hist := s.load()
		if r, ok := hist.CurrentSignals[symbol]; ok {
			rec = &r
		}
		return nil
	})
	return rec, err
}

// CurrentAll returns a copy of every tracked record.
func (s *Store) CurrentAll() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record)
	err := s.lock.WithLock("read_signals", s.lockTimeout, func() error {
		for sym, rec := range s.load().CurrentSignals {
			out[sym] = rec
		}
		return nil
	})
	return out, err
}

// ChangesSince returns change events at or after the given time, newest
// last. Symbol filters to one symbol when non-empty.
func (s *Store) ChangesSince(since time.Time, symbol string) ([]ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ChangeEvent
	err := s.lock.WithLock("read_changes", s.lockTimeout, func() error {
		for _, ev := range s.load().SignalChanges {
			if ev.Timestamp.Before(since) {
				continue
			}
			if symbol != "" && ev.Symbol != symbol {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// MarkActionTaken patches ActionTaken on the change event matching symbol
// and timestamp. A change event consumes an action at most once; a second
// mark is rejected.
func (s *Store) MarkActionTaken(symbol string, timestamp time.Time, action domain.TradeAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lock.WithLock("mark_action", s.lockTimeout, func() error {
		hist := s.load()
		for i := range hist.SignalChanges {
			ev := &hist.SignalChanges[i]
			if ev.Symbol != symbol || !ev.Timestamp.Equal(timestamp) {
				continue
			}
			if ev.ActionTaken != nil {
				return fmt.Errorf("change event for %s at %s already consumed by %s",
					symbol, timestamp.Format(time.RFC3339), *ev.ActionTaken)
			}
			ev.ActionTaken = &action
			return storage.WriteJSON(s.path, hist)
		}
		return fmt.Errorf("no change event for %s at %s", symbol, timestamp.Format(time.RFC3339))
	})
}

// LastCheck returns when the named check (a tier, or a tier+symbol key)
// last ran.
func (s *Store) LastCheck(key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		t  time.Time
		ok bool
	)
	err := s.lock.WithLock("read_last_check", s.lockTimeout, func() error {
		t, ok = s.load().LastChecks[key]
		return nil
	})
	return t, ok, err
}

// SetLastCheck records that the named check ran at t.
func (s *Store) SetLastCheck(key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lock.WithLock("set_last_check", s.lockTimeout, func() error {
		hist := s.load()
		hist.LastChecks[key] = t
		return storage.WriteJSON(s.path, hist)
	})
}

// load reads the history file, reinitializing to empty on any read failure
// so a missing or corrupt file degrades to a fresh store instead of an error.
func (s *Store) load() *historyFile {
	hist := newHistoryFile()
	if err := storage.ReadJSON(s.path, hist); err != nil {
		return newHistoryFile()
	}
	if hist.CurrentSignals == nil {
		hist.CurrentSignals = make(map[string]Record)
	}
	if hist.LastChecks == nil {
		hist.LastChecks = make(map[string]time.Time)
	}
	return hist
}
