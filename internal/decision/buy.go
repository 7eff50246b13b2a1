// Package decision holds the pure buy/sell rule evaluators. Both engines
// are side-effect free: given a candidate or position plus the current rule
// snapshot, they return an accept/reject decision with a reason. Nothing in
// here touches storage or the network.
package decision

import (
	"fmt"
	"math"

	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/rules"
)

// scoreFloor and scoreCeil bound the normalization window for score-weighted
// position sizing.
const (
	scoreFloor = 70.0
	scoreCeil  = 100.0
)

// PortfolioView is the read-only portfolio context the buy engine evaluates
// against. It is a snapshot; the execution path re-checks cash atomically
// inside the portfolio lock.
type PortfolioView struct {
	Cash          float64
	TotalValue    float64
	PositionCount int
	AlreadyOwned  bool
	SectorValue   float64 // current market value held in the candidate's sector
}

// BuyDecision is the buy engine's verdict for one candidate.
type BuyDecision struct {
	Accept    bool    `json:"accept"`
	Shares    int     `json:"shares"`
	TotalCost float64 `json:"total_cost"`
	Reason    string  `json:"reason"`
}

func rejectBuy(reason string) BuyDecision {
	return BuyDecision{Accept: false, Reason: reason}
}

// EvaluateBuy applies the auto-buy rule chain to one candidate. Rejection
// checks run in a fixed order; the first failure wins.
func EvaluateBuy(candidate domain.Analysis, r *rules.Rules, adj RegimeAdjustment, port PortfolioView) BuyDecision {
	if !r.AutomationActive || !r.Buy.Enabled {
		return rejectBuy("automation disabled")
	}
	if port.AlreadyOwned {
		return rejectBuy("already owned")
	}
	if r.Buy.MaxPositions > 0 && port.PositionCount >= r.Buy.MaxPositions {
		return rejectBuy(fmt.Sprintf("at max position count (%d)", r.Buy.MaxPositions))
	}

	threshold := r.Buy.MinScore + adj.ThresholdDelta
	if candidate.Score < threshold {
		return rejectBuy(fmt.Sprintf("score %.1f below regime-adjusted threshold %.1f", candidate.Score, threshold))
	}
	if !r.Buy.BuyAllows(candidate.Recommendation) {
		return rejectBuy(fmt.Sprintf("recommendation %s not auto-buyable", candidate.Recommendation))
	}
	if !candidate.Confidence.AtLeast(r.Buy.MinConfidence) {
		return rejectBuy(fmt.Sprintf("confidence %s below minimum %s", candidate.Confidence, r.Buy.MinConfidence))
	}
	if r.Buy.MaxSectorPct > 0 && port.TotalValue > 0 && candidate.Sector != "" {
		sectorPct := port.SectorValue / port.TotalValue * 100
		if sectorPct >= r.Buy.MaxSectorPct {
			return rejectBuy(fmt.Sprintf("sector %s at %.1f%% exceeds cap %.1f%%", candidate.Sector, sectorPct, r.Buy.MaxSectorPct))
		}
	}

	if candidate.CurrentPrice <= 0 {
		return rejectBuy("no usable price")
	}

	dollars := Allocation(candidate.Score, &r.Buy, adj, port.TotalValue)
	shares := int(math.Floor(dollars / candidate.CurrentPrice))
	if shares < 1 {
		return rejectBuy(fmt.Sprintf("allocation %.2f buys zero shares at %.2f", dollars, candidate.CurrentPrice))
	}

	cost := float64(shares) * candidate.CurrentPrice
	if cost > port.Cash {
		return rejectBuy(fmt.Sprintf("cost %.2f exceeds available cash %.2f", cost, port.Cash))
	}

	return BuyDecision{
		Accept:    true,
		Shares:    shares,
		TotalCost: cost,
		Reason:    fmt.Sprintf("score %.1f %s, allocating %.2f", candidate.Score, candidate.Recommendation, cost),
	}
}

// Allocation computes the dollar amount to deploy for a candidate score.
// With score-weighted sizing the score is normalized from [70,100] to [0,1],
// raised to the configured exponent, mapped to a multiplier in [0.5,1.5]
// over the base allocation, clamped by the position and trade limits, and
// finally scaled by the regime multiplier. Otherwise a fixed fraction of
// portfolio value, capped by the max trade amount. Monotonic in score.
func Allocation(score float64, r *rules.AutoBuyRule, adj RegimeAdjustment, totalValue float64) float64 {
	var dollars float64
	if r.ScoreWeightedSizing {
		norm := (score - scoreFloor) / (scoreCeil - scoreFloor)
		norm = math.Max(0, math.Min(1, norm))

		exponent := r.SizingExponent
		if exponent <= 0 {
			exponent = 1.5
		}
		multiplier := 0.5 + math.Pow(norm, exponent)
		dollars = r.BaseAllocation * multiplier

		if r.MaxPositionPct > 0 && totalValue > 0 {
			dollars = math.Min(dollars, totalValue*r.MaxPositionPct/100)
		}
		if r.MaxTradeAmount > 0 {
			dollars = math.Min(dollars, r.MaxTradeAmount)
		}
		dollars *= adj.SizeMultiplier
	} else {
		dollars = totalValue * r.PositionSizePct / 100
		if r.MaxTradeAmount > 0 {
			dollars = math.Min(dollars, r.MaxTradeAmount)
		}
	}
	return dollars
}
