// Package portfolio implements the paper-trading portfolio store: cash plus
// positions, persisted as JSON and guarded by the cross-process portfolio
// lock. All mutations are atomic check-and-apply critical sections, so
// concurrent buys can never overspend cash and no update is ever lost.
package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/lockfile"
	"github.com/autofolio/autofolio/internal/storage"
)

// ErrInsufficientFunds is returned when a buy costs more than available cash.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrPositionNotFound is returned when selling a symbol that is not held.
var ErrPositionNotFound = errors.New("position not found")

// ErrInsufficientShares is returned when selling more shares than held.
var ErrInsufficientShares = errors.New("insufficient shares")

// Position is one holding. Owned exclusively by this package; mutated only
// inside a locked critical section.
type Position struct {
	Symbol            string    `json:"symbol"`
	Shares            float64   `json:"shares"`
	CostBasis         float64   `json:"cost_basis"` // average cost per share
	Sector            string    `json:"sector,omitempty"`
	FirstPurchaseDate time.Time `json:"first_purchase_date"`
}

// UnrealizedPLPct returns the percent gain or loss against cost basis.
func (p Position) UnrealizedPLPct(currentPrice float64) float64 {
	if p.CostBasis <= 0 {
		return 0
	}
	return (currentPrice - p.CostBasis) / p.CostBasis * 100
}

// AgeDays returns how many whole days the position has been held.
func (p Position) AgeDays(now time.Time) int {
	if p.FirstPurchaseDate.IsZero() {
		return 0
	}
	return int(now.Sub(p.FirstPurchaseDate).Hours() / 24)
}

// State is a read-only snapshot of the portfolio.
type State struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
}

// TotalValue computes cash plus market value of all positions. Positions
// without a quoted price are valued at cost basis.
func (s State) TotalValue(prices map[string]float64) float64 {
	total := s.Cash
	for sym, pos := range s.Positions {
		price, ok := prices[sym]
		if !ok {
			price = pos.CostBasis
		}
		total += pos.Shares * price
	}
	return total
}

// SectorValue sums the market value held in one sector.
func (s State) SectorValue(sector string, prices map[string]float64) float64 {
	total := 0.0
	for sym, pos := range s.Positions {
		if pos.Sector != sector {
			continue
		}
		price, ok := prices[sym]
		if !ok {
			price = pos.CostBasis
		}
		total += pos.Shares * price
	}
	return total
}

// portfolioFile is the on-disk layout
type portfolioFile struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store persists the portfolio file under the portfolio lock.
type Store struct {
	path        string
	lock        *lockfile.FileLock
	lockTimeout time.Duration
	initialCash float64
	log         zerolog.Logger

	mu sync.Mutex
}

// New creates a portfolio store. initialCash seeds the portfolio the first
// time the file is created.
func New(path, lockPath string, lockTimeout time.Duration, initialCash float64, log zerolog.Logger) *Store {
	return &Store{
		path:        path,
		lock:        lockfile.New(lockPath, log),
		lockTimeout: lockTimeout,
		initialCash: initialCash,
		log:         log.With().Str("component", "portfolio").Logger(),
	}
}

// Buy debits cash and adds shares in one critical section. The cash check
// happens inside the lock, so a stale pre-check by the caller can reject
// late but can never overspend.
func (s *Store) Buy(symbol string, shares, price float64, sector string) error {
	if shares <= 0 || price <= 0 {
		return fmt.Errorf("invalid buy for %s: shares=%.2f price=%.2f", symbol, shares, price)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lock.WithLock("portfolio_buy", s.lockTimeout, func() error {
		pf := s.load()

		cost := shares * price
		if cost > pf.Cash {
			return fmt.Errorf("buy %s for %.2f with %.2f cash: %w", symbol, cost, pf.Cash, ErrInsufficientFunds)
		}

		pf.Cash -= cost
		pos, held := pf.Positions[symbol]
		if held {
			totalShares := pos.Shares + shares
			pos.CostBasis = (pos.CostBasis*pos.Shares + cost) / totalShares
			pos.Shares = totalShares
			if sector != "" {
				pos.Sector = sector
			}
		} else {
			pos = Position{
				Symbol:            symbol,
				Shares:            shares,
				CostBasis:         price,
				Sector:            sector,
				FirstPurchaseDate: time.Now(),
			}
		}
		pf.Positions[symbol] = pos
		pf.UpdatedAt = time.Now()

		if err := storage.WriteJSON(s.path, pf); err != nil {
			return err
		}

		s.log.Info().
			Str("symbol", symbol).
			Float64("shares", shares).
			Float64("price", price).
			Float64("cash_after", pf.Cash).
			Msg("Buy applied")
		return nil
	})
}

// Sell credits cash and removes shares in one critical section. Selling the
// full position deletes it.
func (s *Store) Sell(symbol string, shares, price float64) error {
	if shares <= 0 || price <= 0 {
		return fmt.Errorf("invalid sell for %s: shares=%.2f price=%.2f", symbol, shares, price)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lock.WithLock("portfolio_sell", s.lockTimeout, func() error {
		pf := s.load()

		pos, held := pf.Positions[symbol]
		if !held {
			return fmt.Errorf("sell %s: %w", symbol, ErrPositionNotFound)
		}
		if shares > pos.Shares {
			return fmt.Errorf("sell %.2f of %.2f %s shares: %w", shares, pos.Shares, symbol, ErrInsufficientShares)
		}

		pf.Cash += shares * price
		pos.Shares -= shares
		if pos.Shares <= 0 {
			delete(pf.Positions, symbol)
		} else {
			pf.Positions[symbol] = pos
		}
		pf.UpdatedAt = time.Now()

		if err := storage.WriteJSON(s.path, pf); err != nil {
			return err
		}

		s.log.Info().
			Str("symbol", symbol).
			Float64("shares", shares).
			Float64("price", price).
			Float64("cash_after", pf.Cash).
			Msg("Sell applied")
		return nil
	})
}

// Snapshot returns a read-only copy of the current portfolio state.
func (s *Store) Snapshot() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state State
	err := s.lock.WithLock("portfolio_read", s.lockTimeout, func() error {
		pf := s.load()
		state = State{Cash: pf.Cash, Positions: make(map[string]Position, len(pf.Positions))}
		for sym, pos := range pf.Positions {
			state.Positions[sym] = pos
		}
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to read portfolio: %w", err)
	}
	return state, nil
}

// Cash returns the current cash balance.
func (s *Store) Cash() (float64, error) {
	state, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	return state.Cash, nil
}

// Positions returns the current holdings.
func (s *Store) Positions() (map[string]Position, error) {
	state, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return state.Positions, nil
}

// IsLocked is a diagnostic check of the portfolio lock.
func (s *Store) IsLocked() bool {
	return s.lock.IsLocked()
}

// load reads the portfolio file, seeding a fresh portfolio with the
// configured initial cash when the file does not exist yet.
func (s *Store) load() *portfolioFile {
	pf := &portfolioFile{Positions: map[string]Position{}}
	if err := storage.ReadJSON(s.path, pf); err != nil {
		return &portfolioFile{Cash: s.initialCash, Positions: map[string]Position{}}
	}
	if pf.Positions == nil {
		pf.Positions = map[string]Position{}
	}
	return pf
}
