package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/decision"
	"github.com/autofolio/autofolio/internal/domain"
	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/portfolio"
	"github.com/autofolio/autofolio/internal/queue"
	"github.com/autofolio/autofolio/internal/signals"
	"github.com/autofolio/autofolio/internal/trading"
)

// TradeExecutionService applies buy/sell decisions to the paper portfolio
// and records every fill in the trade ledger. The portfolio store does its
// own locking; this service never touches the portfolio file directly.
type TradeExecutionService struct {
	portfolioStore *portfolio.Store
	tradeRepo      *trading.TradeRepository
	signalStore    *signals.Store
	eventManager   *events.Manager
	log            zerolog.Logger
}

// ExecuteResult represents the result of executing a trade
type ExecuteResult struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Status string  `json:"status"` // "success", "blocked", "error"
	Shares float64 `json:"shares,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// NewTradeExecutionService creates a new trade execution service
func NewTradeExecutionService(
	portfolioStore *portfolio.Store,
	tradeRepo *trading.TradeRepository,
	signalStore *signals.Store,
	eventManager *events.Manager,
	log zerolog.Logger,
) *TradeExecutionService {
	return &TradeExecutionService{
		portfolioStore: portfolioStore,
		tradeRepo:      tradeRepo,
		signalStore:    signalStore,
		eventManager:   eventManager,
		log:            log.With().Str("service", "trade_execution").Logger(),
	}
}

// ExecuteSell liquidates the full position at the quoted price.
func (s *TradeExecutionService) ExecuteSell(pos portfolio.Position, dec decision.SellDecision, price float64) ExecuteResult {
	s.log.Info().
		Str("symbol", pos.Symbol).
		Float64("shares", pos.Shares).
		Float64("price", price).
		Str("trigger", string(dec.Trigger)).
		Str("urgency", string(dec.Urgency)).
		Msg("Executing sell")

	if price <= 0 {
		return s.blocked(pos.Symbol, "SELL", "no current price")
	}

	if err := s.portfolioStore.Sell(pos.Symbol, pos.Shares, price); err != nil {
		if errors.Is(err, portfolio.ErrPositionNotFound) || errors.Is(err, portfolio.ErrInsufficientShares) {
			return s.blocked(pos.Symbol, "SELL", err.Error())
		}
		return s.failed(pos.Symbol, "SELL", err)
	}

	s.record(trading.Trade{
		Symbol:      pos.Symbol,
		Side:        trading.TradeSideSell,
		Shares:      pos.Shares,
		Price:       price,
		Total:       pos.Shares * price,
		TriggerType: string(dec.Trigger),
		Reason:      dec.Reason,
		ExecutedAt:  time.Now(),
	})

	s.eventManager.Emit(events.TradeExecuted, "execution", map[string]interface{}{
		"symbol":  pos.Symbol,
		"side":    "SELL",
		"shares":  pos.Shares,
		"price":   price,
		"trigger": string(dec.Trigger),
	})

	return ExecuteResult{
		Symbol: pos.Symbol,
		Side:   "SELL",
		Status: "success",
		Shares: pos.Shares,
		Price:  price,
		Reason: dec.Reason,
	}
}

// ExecuteBuy opens a position per the buy decision. Cash is re-checked
// atomically inside the portfolio lock, so a stale decision degrades to a
// blocked result rather than an overspend.
func (s *TradeExecutionService) ExecuteBuy(opp queue.Opportunity, analysis domain.Analysis, dec decision.BuyDecision) ExecuteResult {
	if !dec.Accept {
		s.eventManager.Emit(events.TradeBlocked, "execution", map[string]interface{}{
			"symbol": opp.Symbol,
			"side":   "BUY",
			"reason": dec.Reason,
		})
		return s.blocked(opp.Symbol, "BUY", dec.Reason)
	}

	shares := float64(dec.Shares)
	price := analysis.CurrentPrice

	s.log.Info().
		Str("symbol", opp.Symbol).
		Float64("shares", shares).
		Float64("price", price).
		Float64("total", dec.TotalCost).
		Msg("Executing buy")

	if err := s.portfolioStore.Buy(opp.Symbol, shares, price, analysis.Sector); err != nil {
		if errors.Is(err, portfolio.ErrInsufficientFunds) {
			return s.blocked(opp.Symbol, "BUY", "insufficient funds at execution time")
		}
		return s.failed(opp.Symbol, "BUY", err)
	}

	s.record(trading.Trade{
		Symbol:      opp.Symbol,
		Side:        trading.TradeSideBuy,
		Shares:      shares,
		Price:       price,
		Total:       shares * price,
		TriggerType: "buy_queue",
		Reason:      fmt.Sprintf("queued: %s; fresh score %.1f", opp.Reason, analysis.Score),
		ExecutedAt:  time.Now(),
	})

	s.eventManager.Emit(events.TradeExecuted, "execution", map[string]interface{}{
		"symbol": opp.Symbol,
		"side":   "BUY",
		"shares": shares,
		"price":  price,
	})

	return ExecuteResult{
		Symbol: opp.Symbol,
		Side:   "BUY",
		Status: "success",
		Shares: shares,
		Price:  price,
		Reason: dec.Reason,
	}
}

// MarkChangeConsumed patches the change event that drove a trade so the
// same event is never acted on twice.
func (s *TradeExecutionService) MarkChangeConsumed(event signals.ChangeEvent, action domain.TradeAction) {
	if err := s.signalStore.MarkActionTaken(event.Symbol, event.Timestamp, action); err != nil {
		s.log.Warn().
			Err(err).
			Str("symbol", event.Symbol).
			Msg("Failed to mark change event as consumed")
	}
}

func (s *TradeExecutionService) record(trade trading.Trade) {
	if err := s.tradeRepo.Create(trade); err != nil {
		// The position change already persisted. A ledger miss is an audit
		// gap, not a reason to unwind the trade.
		s.log.Error().
			Err(err).
			Str("symbol", trade.Symbol).
			Msg("Failed to record trade in ledger")
	}
}

func (s *TradeExecutionService) blocked(symbol, side, reason string) ExecuteResult {
	s.log.Warn().
		Str("symbol", symbol).
		Str("side", side).
		Str("reason", reason).
		Msg("Trade blocked")
	return ExecuteResult{Symbol: symbol, Side: side, Status: "blocked", Reason: reason}
}

func (s *TradeExecutionService) failed(symbol, side string, err error) ExecuteResult {
	s.log.Error().
		Err(err).
		Str("symbol", symbol).
		Str("side", side).
		Msg("Trade failed")
	errMsg := err.Error()
	return ExecuteResult{Symbol: symbol, Side: side, Status: "error", Error: &errMsg}
}
