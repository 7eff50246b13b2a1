package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/autofolio/autofolio/internal/domain"
)

// Static is an in-memory provider used by tests and by the dev-mode server.
// It serves canned analyses and a fixed regime, and counts calls.
type Static struct {
	mu       sync.Mutex
	analyses map[string]domain.Analysis
	regime   domain.Regime
	universe []string
	failures map[string]error
	calls    int
}

// NewStatic creates a Static provider with a neutral regime.
func NewStatic() *Static {
	return &Static{
		analyses: make(map[string]domain.Analysis),
		failures: make(map[string]error),
		regime:   domain.Regime{Trend: domain.TrendSideways, Volatility: domain.VolatilityNormal},
	}
}

// Set installs the canned analysis for a symbol.
func (s *Static) Set(a domain.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.Symbol] = a
	delete(s.failures, a.Symbol)
}

// Fail makes Analyze return err for the given symbol.
func (s *Static) Fail(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[symbol] = err
}

// SetRegime installs the canned regime.
func (s *Static) SetRegime(r domain.Regime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regime = r
}

// SetUniverse installs the canned scan universe.
func (s *Static) SetUniverse(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universe = symbols
}

// Calls reports how many Analyze calls were made.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Analyze implements AnalysisProvider.
func (s *Static) Analyze(_ context.Context, symbol string) (domain.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err, ok := s.failures[symbol]; ok {
		return domain.Analysis{}, err
	}
	a, ok := s.analyses[symbol]
	if !ok {
		return domain.Analysis{}, fmt.Errorf("no analysis for %s", symbol)
	}
	return a, nil
}

// CurrentRegime implements RegimeProvider.
func (s *Static) CurrentRegime(context.Context) (domain.Regime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regime, nil
}

// Universe implements UniverseProvider.
func (s *Static) Universe(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.universe...), nil
}
