// Package trading records every executed paper trade in the sqlite ledger.
// The ledger is the audit trail behind the capped execution log: the log
// keeps the last 100 run summaries, the ledger keeps every fill forever.
package trading

import (
	"fmt"
	"strings"
	"time"
)

// TradeSide represents the trade direction (BUY or SELL)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// IsValid checks if the trade side is valid
func (ts TradeSide) IsValid() bool {
	return ts == TradeSideBuy || ts == TradeSideSell
}

// TradeSideFromString creates TradeSide from string (case-insensitive)
func TradeSideFromString(value string) (TradeSide, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return TradeSideBuy, nil
	case "SELL":
		return TradeSideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", value)
	}
}

// Trade represents one executed paper trade
type Trade struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        TradeSide `json:"side"`
	Shares      float64   `json:"shares"`
	Price       float64   `json:"price"`
	Total       float64   `json:"total"`
	TriggerType string    `json:"trigger_type,omitempty"` // stop_loss, ai_signal, take_profit, max_age, buy_queue
	Reason      string    `json:"reason,omitempty"`
	ExecutedAt  time.Time `json:"executed_at"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Validate validates trade data and normalizes the symbol
func (t *Trade) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("invalid trade side: %q", t.Side)
	}
	if t.Shares <= 0 {
		return fmt.Errorf("shares must be positive")
	}
	if t.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}

	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	return nil
}
