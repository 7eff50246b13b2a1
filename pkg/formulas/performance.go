package formulas

import "math"

// Performance summarizes a daily portfolio equity series.
type Performance struct {
	TotalReturnPct   float64  `json:"total_return_pct"`
	MaxDrawdownPct   float64  `json:"max_drawdown_pct"`
	CurrentDrawdown  float64  `json:"current_drawdown_pct"`
	AnnualizedVolPct float64  `json:"annualized_volatility_pct"`
	SharpeRatio      *float64 `json:"sharpe_ratio,omitempty"`
	Days             int      `json:"days"`
}

// MaxDrawdown calculates the maximum peak-to-trough loss of a value series
// as a positive fraction (0.25 = 25% below the peak).
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}

// SharpeRatio calculates the annualized Sharpe ratio of daily returns.
// Returns nil when the series is too short or has zero variance.
func SharpeRatio(dailyReturns []float64, annualRiskFreeRate float64) *float64 {
	if len(dailyReturns) < 2 {
		return nil
	}

	stdDev := StdDev(dailyReturns)
	if stdDev == 0 {
		return nil
	}

	dailyRiskFree := annualRiskFreeRate / tradingDaysPerYear
	sharpe := (Mean(dailyReturns) - dailyRiskFree) / stdDev * math.Sqrt(tradingDaysPerYear)
	return &sharpe
}

// Summarize computes the performance summary of a daily equity series.
func Summarize(values []float64, annualRiskFreeRate float64) Performance {
	perf := Performance{Days: len(values)}
	if len(values) < 2 {
		return perf
	}

	if first := values[0]; first != 0 {
		perf.TotalReturnPct = (values[len(values)-1] - first) / first * 100
	}

	perf.MaxDrawdownPct = MaxDrawdown(values) * 100

	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak > 0 {
		perf.CurrentDrawdown = (peak - values[len(values)-1]) / peak * 100
	}

	returns := Returns(values)
	perf.AnnualizedVolPct = AnnualizedVolatility(returns) * 100
	perf.SharpeRatio = SharpeRatio(returns, annualRiskFreeRate)

	return perf
}
