// Package providers defines the external collaborators the engine consumes:
// the analysis provider (score/recommendation/confidence per symbol) and the
// market-regime provider. Both are interfaces so the engine can be tested
// against stubs.
package providers

import (
	"context"

	"github.com/autofolio/autofolio/internal/domain"
)

// AnalysisProvider returns fresh analysis for one symbol. Implementations
// must tolerate being called dozens of times per monitor cycle.
type AnalysisProvider interface {
	Analyze(ctx context.Context, symbol string) (domain.Analysis, error)
}

// RegimeProvider classifies the current market regime.
type RegimeProvider interface {
	CurrentRegime(ctx context.Context) (domain.Regime, error)
}

// UniverseProvider lists the symbols eligible for the daily full scan.
type UniverseProvider interface {
	Universe(ctx context.Context) ([]string, error)
}
