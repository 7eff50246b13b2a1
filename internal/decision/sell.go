package decision

import (
	"fmt"
	"time"

	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/rules"
)

// SellTrigger names which rule fired.
type SellTrigger string

const (
	TriggerStopLoss   SellTrigger = "stop_loss"
	TriggerAISignal   SellTrigger = "ai_signal"
	TriggerTakeProfit SellTrigger = "take_profit"
	TriggerMaxAge     SellTrigger = "max_age"
)

// SellUrgency orders how quickly a sell should execute. IMMEDIATE exists
// only on this scale; signal-change urgency is a separate enum.
type SellUrgency string

const (
	SellImmediate SellUrgency = "IMMEDIATE"
	SellCritical  SellUrgency = "CRITICAL"
	SellHigh      SellUrgency = "HIGH"
	SellMedium    SellUrgency = "MEDIUM"
	SellLow       SellUrgency = "LOW"
)

// SellDecision is the sell engine's verdict for one position.
type SellDecision struct {
	ShouldSell bool        `json:"should_sell"`
	Trigger    SellTrigger `json:"trigger,omitempty"`
	Urgency    SellUrgency `json:"urgency,omitempty"`
	Deferred   bool        `json:"deferred,omitempty"` // take-profit held back to let a winner run
	Reason     string      `json:"reason"`
}

func hold(reason string) SellDecision {
	return SellDecision{ShouldSell: false, Reason: reason}
}

// EvaluateSell applies the sell rule hierarchy to one position. The order is
// a strict priority: the first matching rule wins and the rest are never
// evaluated. Stop-loss outranks everything including a bullish AI signal;
// an AI downgrade outranks take-profit; take-profit outranks age. Reordering
// these changes the system's risk posture. Do not reorder.
func EvaluateSell(pos portfolio.Position, analysis domain.Analysis, r *rules.Rules, now time.Time) SellDecision {
	if !r.AutomationActive || !r.Sell.Enabled {
		return hold("automation disabled")
	}

	plPct := pos.UnrealizedPLPct(analysis.CurrentPrice)

	// CRITICAL: stop-loss. Risk control overrides any AI opinion.
	if plPct <= r.Sell.StopLossPct {
		return SellDecision{
			ShouldSell: true,
			Trigger:    TriggerStopLoss,
			Urgency:    SellCritical,
			Reason:     fmt.Sprintf("P&L %.1f%% breached stop-loss %.1f%%", plPct, r.Sell.StopLossPct),
		}
	}

	// PRIMARY: AI downgrade.
	switch analysis.Recommendation {
	case domain.SignalSell, domain.SignalStrongSell:
		return SellDecision{
			ShouldSell: true,
			Trigger:    TriggerAISignal,
			Urgency:    SellImmediate,
			Reason:     fmt.Sprintf("recommendation %s", analysis.Recommendation),
		}
	case domain.SignalWeakSell:
		return SellDecision{
			ShouldSell: true,
			Trigger:    TriggerAISignal,
			Urgency:    SellHigh,
			Reason:     "recommendation WEAK_SELL",
		}
	}

	// SECONDARY: take-profit, deferrable while the AI stays bullish.
	if plPct >= r.Sell.TakeProfitPct {
		stillBullish := analysis.Recommendation == domain.SignalStrongBuy || analysis.Recommendation == domain.SignalBuy
		if r.Sell.DeferProfitTaking && stillBullish {
			return SellDecision{
				ShouldSell: false,
				Deferred:   true,
				Reason: fmt.Sprintf("take-profit at %.1f%% deferred, recommendation still %s",
					plPct, analysis.Recommendation),
			}
		}
		return SellDecision{
			ShouldSell: true,
			Trigger:    TriggerTakeProfit,
			Urgency:    SellMedium,
			Reason:     fmt.Sprintf("P&L %.1f%% above take-profit %.1f%%", plPct, r.Sell.TakeProfitPct),
		}
	}

	// TERTIARY: maximum holding age, portfolio hygiene.
	if r.Sell.MaxAgeDays > 0 && pos.AgeDays(now) >= r.Sell.MaxAgeDays {
		return SellDecision{
			ShouldSell: true,
			Trigger:    TriggerMaxAge,
			Urgency:    SellLow,
			Reason:     fmt.Sprintf("held %d days, max %d", pos.AgeDays(now), r.Sell.MaxAgeDays),
		}
	}

	return hold(fmt.Sprintf("no sell trigger (P&L %.1f%%, %s)", plPct, analysis.Recommendation))
}
