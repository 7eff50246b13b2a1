package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TradeRepository handles trade ledger database operations
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Create inserts a new trade record
func (r *TradeRepository) Create(trade Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("invalid trade: %w", err)
	}

	query := `
		INSERT INTO trades
		(symbol, side, shares, price, total, trigger_type, reason, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		trade.Symbol,
		string(trade.Side),
		trade.Shares,
		trade.Price,
		trade.Total,
		trade.TriggerType,
		trade.Reason,
		trade.ExecutedAt.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Float64("shares", trade.Shares).
		Float64("price", trade.Price).
		Msg("Trade recorded")

	return nil
}

// Recent returns the most recent trades, newest first.
func (r *TradeRepository) Recent(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, side, shares, price, total, trigger_type, reason, executed_at, created_at
		FROM trades ORDER BY executed_at DESC, id DESC LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// BySymbol returns all trades for one symbol, oldest first.
func (r *TradeRepository) BySymbol(symbol string) ([]Trade, error) {
	query := `
		SELECT id, symbol, side, shares, price, total, trigger_type, reason, executed_at, created_at
		FROM trades WHERE symbol = ? ORDER BY executed_at ASC, id ASC
	`

	rows, err := r.db.Query(query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountSince counts trades executed at or after the given time.
func (r *TradeRepository) CountSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM trades WHERE executed_at >= ?",
		since.Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

func scanTrades(rows *sql.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		var (
			t          Trade
			side       string
			executedAt string
			createdAt  string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Shares, &t.Price, &t.Total,
			&t.TriggerType, &t.Reason, &executedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = TradeSide(side)
		if ts, err := time.Parse(time.RFC3339, executedAt); err == nil {
			t.ExecutedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			t.CreatedAt = ts
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}
