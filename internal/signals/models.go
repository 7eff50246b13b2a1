package signals

import (
	"time"

	"github.com/autofolio/autofolio/internal/domain"
)

// Record is the current signal state for one symbol. Exactly one record
// exists per tracked symbol; it is overwritten in place on each check.
type Record struct {
	Symbol      string             `json:"symbol"`
	Signal      domain.Signal      `json:"signal"`
	Score       float64            `json:"score"`
	Confidence  domain.Confidence  `json:"confidence"`
	LastUpdated time.Time          `json:"last_updated"`
	AgentScores map[string]float64 `json:"agent_scores,omitempty"`
}

// ChangeEvent is one append-only entry in the signal change log. Immutable
// once written, except ActionTaken which may be patched once when an
// execution consumes the event.
type ChangeEvent struct {
	Symbol         string              `json:"symbol"`
	Timestamp      time.Time           `json:"timestamp"`
	PreviousSignal domain.Signal       `json:"previous_signal,omitempty"`
	NewSignal      domain.Signal       `json:"new_signal"`
	PreviousScore  float64             `json:"previous_score"`
	NewScore       float64             `json:"new_score"`
	ChangeType     domain.ChangeType   `json:"change_type"`
	Urgency        domain.Urgency      `json:"urgency"`
	ActionTaken    *domain.TradeAction `json:"action_taken,omitempty"`
	Reason         string              `json:"reason"`
}

// historyFile is the on-disk layout of the signal history store
type historyFile struct {
	CurrentSignals map[string]Record    `json:"current_signals"`
	SignalChanges  []ChangeEvent        `json:"signal_changes"`
	LastChecks     map[string]time.Time `json:"last_checks"`
}

func newHistoryFile() *historyFile {
	return &historyFile{
		CurrentSignals: make(map[string]Record),
		SignalChanges:  []ChangeEvent{},
		LastChecks:     make(map[string]time.Time),
	}
}
