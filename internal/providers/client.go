package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/autofolio/autofolio/internal/domain"
)

// Client talks to the analysis service over HTTP. Calls are rate limited so
// a full monitor cycle cannot hammer the service, and bounded by a per-call
// timeout so one slow symbol degrades to a skip instead of stalling the
// whole cycle.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates an analysis service client.
func NewClient(baseURL string, timeout time.Duration, rps float64, log zerolog.Logger) *Client {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.With().Str("client", "analysis").Logger(),
	}
}

// analysisResponse is the wire format of the analysis service
type analysisResponse struct {
	Symbol         string             `json:"symbol"`
	Score          float64            `json:"score"`
	Recommendation string             `json:"recommendation"`
	Confidence     string             `json:"confidence"`
	CurrentPrice   float64            `json:"current_price"`
	Sector         string             `json:"sector"`
	AgentScores    map[string]float64 `json:"agent_scores"`
}

// Analyze fetches fresh analysis for one symbol.
func (c *Client) Analyze(ctx context.Context, symbol string) (domain.Analysis, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Analysis{}, fmt.Errorf("rate limiter: %w", err)
	}

	var resp analysisResponse
	endpoint := fmt.Sprintf("%s/api/analysis/%s", c.baseURL, url.PathEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return domain.Analysis{}, fmt.Errorf("analysis call for %s failed: %w", symbol, err)
	}

	rec, err := domain.SignalFromString(resp.Recommendation)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("analysis for %s: %w", symbol, err)
	}

	return domain.Analysis{
		Symbol:         symbol,
		Score:          resp.Score,
		Recommendation: rec,
		Confidence:     domain.Confidence(resp.Confidence),
		CurrentPrice:   resp.CurrentPrice,
		Sector:         resp.Sector,
		AgentScores:    resp.AgentScores,
	}, nil
}

// regimeResponse is the wire format of the regime endpoint
type regimeResponse struct {
	Trend      string `json:"trend"`
	Volatility string `json:"volatility"`
}

// CurrentRegime fetches the current market regime classification.
func (c *Client) CurrentRegime(ctx context.Context) (domain.Regime, error) {
	var resp regimeResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/regime", &resp); err != nil {
		return domain.Regime{}, fmt.Errorf("regime call failed: %w", err)
	}
	return domain.Regime{
		Trend:      domain.Trend(resp.Trend),
		Volatility: domain.Volatility(resp.Volatility),
	}, nil
}

// Universe fetches the symbols eligible for the daily full scan.
func (c *Client) Universe(ctx context.Context) ([]string, error) {
	var resp struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/universe", &resp); err != nil {
		return nil, fmt.Errorf("universe call failed: %w", err)
	}
	return resp.Symbols, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
