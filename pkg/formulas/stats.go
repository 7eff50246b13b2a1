// Package formulas holds the statistical helpers behind the portfolio
// performance summary on the status surface.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is the annualization base for daily series.
const tradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Returns converts a value series to percentage returns.
// Returns[i] = (Value[i+1] - Value[i]) / Value[i]
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}
	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(tradingDaysPerYear)
}
