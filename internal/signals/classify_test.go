package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofolio/autofolio/internal/domain"
)

func prior(signal domain.Signal, score float64) *Record {
	return &Record{Symbol: "AAPL", Signal: signal, Score: score}
}

func TestClassify_FirstObservationIsNew(t *testing.T) {
	ev := Classify(nil, "AAPL", domain.SignalBuy, 80)
	require.NotNil(t, ev)
	assert.Equal(t, domain.ChangeNew, ev.ChangeType)
	assert.Equal(t, domain.UrgencyLow, ev.Urgency)
}

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name        string
		prev        *Record
		newSignal   domain.Signal
		newScore    float64
		wantType    domain.ChangeType
		wantUrgency domain.Urgency
		wantNil     bool
	}{
		{
			name:      "small score wiggle is noise",
			prev:      prior(domain.SignalHold, 50),
			newSignal: domain.SignalHold,
			newScore:  52.5,
			wantNil:   true,
		},
		{
			name:        "same signal large score move",
			prev:        prior(domain.SignalHold, 50),
			newSignal:   domain.SignalHold,
			newScore:    55,
			wantType:    domain.ChangeScoreChange,
			wantUrgency: domain.UrgencyLow,
		},
		{
			name:      "lateral move between equally ranked sells is noise",
			prev:      prior(domain.SignalStrongSell, 10),
			newSignal: domain.SignalSell,
			newScore:  11,
			wantNil:   true,
		},
		{
			name:        "single step downgrade",
			prev:        prior(domain.SignalBuy, 72),
			newSignal:   domain.SignalWeakBuy,
			newScore:    68,
			wantType:    domain.ChangeDowngrade,
			wantUrgency: domain.UrgencyMedium,
		},
		{
			name:        "two step drop is major downgrade",
			prev:        prior(domain.SignalBuy, 75),
			newSignal:   domain.SignalHold,
			newScore:    55,
			wantType:    domain.ChangeMajorDowngrade,
			wantUrgency: domain.UrgencyHigh,
		},
		{
			name:        "bullish to bearish cross is critical",
			prev:        prior(domain.SignalStrongBuy, 90),
			newSignal:   domain.SignalSell,
			newScore:    20,
			wantType:    domain.ChangeCriticalDowngrade,
			wantUrgency: domain.UrgencyCritical,
		},
		{
			name:        "buy to weak sell is also critical",
			prev:        prior(domain.SignalBuy, 78),
			newSignal:   domain.SignalWeakSell,
			newScore:    30,
			wantType:    domain.ChangeCriticalDowngrade,
			wantUrgency: domain.UrgencyCritical,
		},
		{
			name:        "three step drop without bearish landing is major",
			prev:        prior(domain.SignalStrongBuy, 88),
			newSignal:   domain.SignalHold,
			newScore:    50,
			wantType:    domain.ChangeMajorDowngrade,
			wantUrgency: domain.UrgencyHigh,
		},
		{
			name:        "single step upgrade with hot score",
			prev:        prior(domain.SignalWeakBuy, 70),
			newSignal:   domain.SignalBuy,
			newScore:    80,
			wantType:    domain.ChangeUpgrade,
			wantUrgency: domain.UrgencyMedium,
		},
		{
			name:        "single step upgrade with cool score",
			prev:        prior(domain.SignalHold, 55),
			newSignal:   domain.SignalWeakBuy,
			newScore:    62,
			wantType:    domain.ChangeUpgrade,
			wantUrgency: domain.UrgencyLow,
		},
		{
			name:        "three step jump is major upgrade",
			prev:        prior(domain.SignalHold, 50),
			newSignal:   domain.SignalStrongBuy,
			newScore:    85,
			wantType:    domain.ChangeMajorUpgrade,
			wantUrgency: domain.UrgencyMedium,
		},
		{
			name:        "major upgrade below hot score stays low urgency",
			prev:        prior(domain.SignalWeakSell, 30),
			newSignal:   domain.SignalBuy,
			newScore:    72,
			wantType:    domain.ChangeMajorUpgrade,
			wantUrgency: domain.UrgencyLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(tt.prev, "AAPL", tt.newSignal, tt.newScore)
			if tt.wantNil {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantType, ev.ChangeType)
			assert.Equal(t, tt.wantUrgency, ev.Urgency)
			assert.Equal(t, tt.prev.Signal, ev.PreviousSignal)
			assert.Equal(t, tt.newSignal, ev.NewSignal)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	prev := prior(domain.SignalBuy, 75)
	a := Classify(prev, "AAPL", domain.SignalSell, 20)
	b := Classify(prev, "AAPL", domain.SignalSell, 20)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ChangeType, b.ChangeType)
	assert.Equal(t, a.Urgency, b.Urgency)
}
