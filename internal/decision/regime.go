package decision

import "github.com/autofolio/autofolio/internal/domain"

// RegimeAdjustment tunes the buy engine for a market regime: the threshold
// delta raises or lowers the minimum acceptable score, the multiplier scales
// position size.
type RegimeAdjustment struct {
	ThresholdDelta float64 `json:"threshold_delta"`
	SizeMultiplier float64 `json:"size_multiplier"`
}

// regimeTable maps every {trend x volatility} combination to an adjustment.
// Bull+low volatility is the most permissive, bear+high volatility the
// strictest.
var regimeTable = map[domain.Trend]map[domain.Volatility]RegimeAdjustment{
	domain.TrendBull: {
		domain.VolatilityLow:    {ThresholdDelta: -5, SizeMultiplier: 1.2},
		domain.VolatilityNormal: {ThresholdDelta: -2, SizeMultiplier: 1.1},
		domain.VolatilityHigh:   {ThresholdDelta: 3, SizeMultiplier: 0.9},
	},
	domain.TrendSideways: {
		domain.VolatilityLow:    {ThresholdDelta: 0, SizeMultiplier: 1.0},
		domain.VolatilityNormal: {ThresholdDelta: 2, SizeMultiplier: 0.9},
		domain.VolatilityHigh:   {ThresholdDelta: 5, SizeMultiplier: 0.75},
	},
	domain.TrendBear: {
		domain.VolatilityLow:    {ThresholdDelta: 5, SizeMultiplier: 0.8},
		domain.VolatilityNormal: {ThresholdDelta: 8, SizeMultiplier: 0.7},
		domain.VolatilityHigh:   {ThresholdDelta: 10, SizeMultiplier: 0.5},
	},
}

// LookupRegime returns the adjustment for a regime, defaulting to the
// neutral sideways/normal cell for unknown labels.
func LookupRegime(r domain.Regime) RegimeAdjustment {
	if byVol, ok := regimeTable[r.Trend]; ok {
		if adj, ok := byVol[r.Volatility]; ok {
			return adj
		}
	}
	return regimeTable[domain.TrendSideways][domain.VolatilityNormal]
}
