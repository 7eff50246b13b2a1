// Package rules holds the automation rule configuration. Rules are immutable
// snapshots loaded from a JSON file; the scheduler swaps in a fresh snapshot
// via the ConfigWatcher, never mutating one mid-cycle.
package rules

import "github.com/autofolio/autofolio/internal/domain"

// AutoBuyRule configures the buy decision engine
type AutoBuyRule struct {
	Enabled                bool              `json:"enabled"`
	MinScore               float64           `json:"min_score"`               // base threshold before regime adjustment
	AllowedRecommendations []domain.Signal   `json:"allowed_recommendations"` // signals eligible for auto-buy
	MinConfidence          domain.Confidence `json:"min_confidence"`
	MaxPositions           int               `json:"max_positions"`
	MaxSectorPct           float64           `json:"max_sector_pct"` // sector allocation cap, percent of portfolio value
	PositionSizePct        float64           `json:"position_size_pct"`
	MaxPositionPct         float64           `json:"max_position_pct"`
	MaxTradeAmount         float64           `json:"max_trade_amount"`
	ScoreWeightedSizing    bool              `json:"score_weighted_sizing"`
	SizingExponent         float64           `json:"sizing_exponent"`
	BaseAllocation         float64           `json:"base_allocation"`
}

// AutoSellRule configures the sell decision engine
type AutoSellRule struct {
	Enabled           bool    `json:"enabled"`
	StopLossPct       float64 `json:"stop_loss_pct"`   // negative, e.g. -15
	TakeProfitPct     float64 `json:"take_profit_pct"` // positive, e.g. 20
	DeferProfitTaking bool    `json:"defer_profit_taking"`
	MaxAgeDays        int     `json:"max_age_days"`
}

// Rules is one immutable snapshot of the automation configuration
type Rules struct {
	AutomationActive bool         `json:"automation_active"`
	MaxTradesPerRun  int          `json:"max_trades_per_run"`
	Buy              AutoBuyRule  `json:"auto_buy"`
	Sell             AutoSellRule `json:"auto_sell"`
}

// Defaults returns the built-in rule set used when no config file exists
func Defaults() *Rules {
	return &Rules{
		AutomationActive: true,
		MaxTradesPerRun:  5,
		Buy: AutoBuyRule{
			Enabled:                true,
			MinScore:               70,
			AllowedRecommendations: []domain.Signal{domain.SignalStrongBuy, domain.SignalBuy},
			MinConfidence:          domain.ConfidenceMedium,
			MaxPositions:           20,
			MaxSectorPct:           30,
			PositionSizePct:        5,
			MaxPositionPct:         10,
			MaxTradeAmount:         2000,
			ScoreWeightedSizing:    true,
			SizingExponent:         1.5,
			BaseAllocation:         1000,
		},
		Sell: AutoSellRule{
			Enabled:           true,
			StopLossPct:       -15,
			TakeProfitPct:     20,
			DeferProfitTaking: true,
			MaxAgeDays:        365,
		},
	}
}

// BuyAllows reports whether the recommendation is in the configured
// auto-buy set.
func (r *AutoBuyRule) BuyAllows(rec domain.Signal) bool {
	for _, allowed := range r.AllowedRecommendations {
		if rec == allowed {
			return true
		}
	}
	return false
}
