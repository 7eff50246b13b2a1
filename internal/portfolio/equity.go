package portfolio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/storage"
)

// EquityPoint is one end-of-day portfolio valuation.
type EquityPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// EquityCurve persists one total-value sample per calendar day. The daily
// execution job appends after each run; the status surface reads it for
// performance stats. At most one point per day, last write wins.
type EquityCurve struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
}

type equityFile struct {
	Points []EquityPoint `json:"points"`
}

// NewEquityCurve creates an equity curve backed by the given file.
func NewEquityCurve(path string, log zerolog.Logger) *EquityCurve {
	return &EquityCurve{
		path: path,
		log:  log.With().Str("component", "equity_curve").Logger(),
	}
}

// Record stores the portfolio value for the day containing t.
func (c *EquityCurve) Record(t time.Time, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	date := t.Format("2006-01-02")

	ef := c.load()
	if n := len(ef.Points); n > 0 && ef.Points[n-1].Date == date {
		ef.Points[n-1].Value = value
	} else {
		ef.Points = append(ef.Points, EquityPoint{Date: date, Value: value})
	}

	return storage.WriteJSON(c.path, ef)
}

// Values returns the daily value series, oldest first.
func (c *EquityCurve) Values() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ef := c.load()
	values := make([]float64, len(ef.Points))
	for i, p := range ef.Points {
		values[i] = p.Value
	}
	return values
}

func (c *EquityCurve) load() *equityFile {
	ef := &equityFile{}
	if err := storage.ReadJSON(c.path, ef); err != nil {
		return &equityFile{}
	}
	return ef
}
