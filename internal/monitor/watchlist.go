package monitor

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/storage"
)

// Watchlist is the persisted set of Tier 2 symbols.
type Watchlist struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	symbols map[string]struct{}
}

type watchlistFile struct {
	Symbols []string `json:"symbols"`
}

// NewWatchlist loads the watchlist from disk, starting empty when the file
// is missing or unreadable.
func NewWatchlist(path string, log zerolog.Logger) *Watchlist {
	w := &Watchlist{
		path:    path,
		log:     log.With().Str("component", "watchlist").Logger(),
		symbols: make(map[string]struct{}),
	}

	var wf watchlistFile
	if err := storage.ReadJSON(path, &wf); err == nil {
		for _, sym := range wf.Symbols {
			w.symbols[normalizeSymbol(sym)] = struct{}{}
		}
	}
	return w
}

// Add inserts a symbol. Returns false when it was already present.
func (w *Watchlist) Add(symbol string) (bool, error) {
	symbol = normalizeSymbol(symbol)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.symbols[symbol]; ok {
		return false, nil
	}
	w.symbols[symbol] = struct{}{}
	if err := w.persist(); err != nil {
		delete(w.symbols, symbol)
		return false, err
	}

	w.log.Info().Str("symbol", symbol).Msg("Symbol added to watchlist")
	return true, nil
}

// Remove deletes a symbol. Returns false when it was not present.
func (w *Watchlist) Remove(symbol string) (bool, error) {
	symbol = normalizeSymbol(symbol)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.symbols[symbol]; !ok {
		return false, nil
	}
	delete(w.symbols, symbol)
	if err := w.persist(); err != nil {
		w.symbols[symbol] = struct{}{}
		return false, err
	}

	w.log.Info().Str("symbol", symbol).Msg("Symbol removed from watchlist")
	return true, nil
}

// List returns the symbols in sorted order.
func (w *Watchlist) List() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.symbols))
	for sym := range w.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Contains reports membership.
func (w *Watchlist) Contains(symbol string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.symbols[normalizeSymbol(symbol)]
	return ok
}

func (w *Watchlist) persist() error {
	out := make([]string, 0, len(w.symbols))
	for sym := range w.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return storage.WriteJSON(w.path, watchlistFile{Symbols: out})
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
