package domain

import (
	"fmt"
	"strings"
)

// Signal represents a trading recommendation level
type Signal string

const (
	SignalStrongBuy  Signal = "STRONG_BUY"
	SignalBuy        Signal = "BUY"
	SignalWeakBuy    Signal = "WEAK_BUY"
	SignalHold       Signal = "HOLD"
	SignalWeakSell   Signal = "WEAK_SELL"
	SignalSell       Signal = "SELL"
	SignalStrongSell Signal = "STRONG_SELL"
)

// signalRanks orders signals from most bearish to most bullish. The
// change-classification rules compare these ranks.
var signalRanks = map[Signal]int{
	SignalStrongSell: 0,
	SignalSell:       0,
	SignalWeakSell:   1,
	SignalHold:       2,
	SignalWeakBuy:    3,
	SignalBuy:        4,
	SignalStrongBuy:  5,
}

// Rank returns the bullishness rank of the signal (SELL=0 .. STRONG_BUY=5).
// Unknown signals rank as HOLD.
func (s Signal) Rank() int {
	if r, ok := signalRanks[s]; ok {
		return r
	}
	return signalRanks[SignalHold]
}

// IsValid checks if the signal is a known level
func (s Signal) IsValid() bool {
	_, ok := signalRanks[s]
	return ok
}

// SignalFromString creates a Signal from a string (case-insensitive)
func SignalFromString(value string) (Signal, error) {
	s := Signal(strings.ToUpper(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid signal: %q", value)
	}
	return s, nil
}

// Confidence represents how much weight the analysis carries
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Rank returns the ordering of confidence levels (LOW=0 .. HIGH=2)
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets or exceeds the minimum level
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Rank() >= min.Rank()
}

// Urgency classifies how quickly a signal change should be acted on
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// ChangeType classifies the kind of signal transition
type ChangeType string

const (
	ChangeNew               ChangeType = "NEW"
	ChangeScoreChange       ChangeType = "SCORE_CHANGE"
	ChangeUpgrade           ChangeType = "UPGRADE"
	ChangeMajorUpgrade      ChangeType = "MAJOR_UPGRADE"
	ChangeDowngrade         ChangeType = "DOWNGRADE"
	ChangeMajorDowngrade    ChangeType = "MAJOR_DOWNGRADE"
	ChangeCriticalDowngrade ChangeType = "CRITICAL_DOWNGRADE"
)

// TradeAction is the action recorded against a signal change
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// Trend labels the market direction component of a regime
type Trend string

const (
	TrendBull     Trend = "BULL"
	TrendBear     Trend = "BEAR"
	TrendSideways Trend = "SIDEWAYS"
)

// Volatility labels the volatility component of a regime
type Volatility string

const (
	VolatilityLow    Volatility = "LOW"
	VolatilityNormal Volatility = "NORMAL"
	VolatilityHigh   Volatility = "HIGH"
)

// Regime is a {trend x volatility} market classification used to adjust
// buy thresholds and position-size multipliers.
type Regime struct {
	Trend      Trend      `json:"trend"`
	Volatility Volatility `json:"volatility"`
}

// Analysis is the opaque result of the external scoring agents for one
// symbol: a score/recommendation/confidence tuple plus the quoted price.
type Analysis struct {
	Symbol         string             `json:"symbol"`
	Score          float64            `json:"score"` // 0-100
	Recommendation Signal             `json:"recommendation"`
	Confidence     Confidence         `json:"confidence"`
	CurrentPrice   float64            `json:"current_price"`
	Sector         string             `json:"sector,omitempty"`
	AgentScores    map[string]float64 `json:"agent_scores,omitempty"`
}
