package signals

import (
	"fmt"

	"github.com/autofolio/autofolio/internal/domain"
)

// scoreChangeThreshold is the minimum absolute score delta that counts as a
// SCORE_CHANGE when the signal level itself did not move.
const scoreChangeThreshold = 3.0

// upgradeHotScore is the score at or above which an upgrade is considered
// actionable (urgency MEDIUM instead of LOW).
const upgradeHotScore = 75.0

// Classify compares a prior record against a new observation and returns the
// change event to append, or nil when the movement is noise. This is the
// single place that separates noise from actionable change; nothing in the
// system trades off a raw score, only off a classified event.
func Classify(prev *Record, symbol string, newSignal domain.Signal, newScore float64) *ChangeEvent {
	if prev == nil {
		return &ChangeEvent{
			Symbol:     symbol,
			NewSignal:  newSignal,
			NewScore:   newScore,
			ChangeType: domain.ChangeNew,
			Urgency:    domain.UrgencyLow,
			Reason:     fmt.Sprintf("first observation: %s (%.1f)", newSignal, newScore),
		}
	}

	ev := &ChangeEvent{
		Symbol:         symbol,
		PreviousSignal: prev.Signal,
		NewSignal:      newSignal,
		PreviousScore:  prev.Score,
		NewScore:       newScore,
	}

	prevRank := prev.Signal.Rank()
	newRank := newSignal.Rank()
	rankDelta := newRank - prevRank

	// Same signal, or a lateral move between equally-ranked signals
	// (STRONG_SELL vs SELL): only the score matters.
	if rankDelta == 0 {
		delta := newScore - prev.Score
		if delta < scoreChangeThreshold && delta > -scoreChangeThreshold {
			return nil
		}
		ev.ChangeType = domain.ChangeScoreChange
		ev.Urgency = domain.UrgencyLow
		ev.Reason = fmt.Sprintf("score moved %.1f -> %.1f within %s", prev.Score, newScore, newSignal)
		return ev
	}

	switch {
	case rankDelta <= -3 && prevRank >= 4 && newRank <= 1:
		ev.ChangeType = domain.ChangeCriticalDowngrade
		ev.Urgency = domain.UrgencyCritical
		ev.Reason = fmt.Sprintf("critical downgrade %s -> %s", prev.Signal, newSignal)
	case rankDelta <= -2:
		ev.ChangeType = domain.ChangeMajorDowngrade
		ev.Urgency = domain.UrgencyHigh
		ev.Reason = fmt.Sprintf("major downgrade %s -> %s", prev.Signal, newSignal)
	case rankDelta < 0:
		ev.ChangeType = domain.ChangeDowngrade
		ev.Urgency = domain.UrgencyMedium
		ev.Reason = fmt.Sprintf("downgrade %s -> %s", prev.Signal, newSignal)
	case rankDelta >= 3:
		ev.ChangeType = domain.ChangeMajorUpgrade
		ev.Urgency = upgradeUrgency(newScore)
		ev.Reason = fmt.Sprintf("major upgrade %s -> %s (%.1f)", prev.Signal, newSignal, newScore)
	default:
		ev.ChangeType = domain.ChangeUpgrade
		ev.Urgency = upgradeUrgency(newScore)
		ev.Reason = fmt.Sprintf("upgrade %s -> %s (%.1f)", prev.Signal, newSignal, newScore)
	}

	return ev
}

// upgradeUrgency: upgrades only matter when the new score clears the buy bar
func upgradeUrgency(newScore float64) domain.Urgency {
	if newScore >= upgradeHotScore {
		return domain.UrgencyMedium
	}
	return domain.UrgencyLow
}
