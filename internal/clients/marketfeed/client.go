// Package marketfeed provides the HTTP client for the market-data provider.
// It implements both the series fetcher consumed by the refresh pipeline and
// a listings source for universe discovery. The provider bills a fixed
// number of rate-limit units per series call; the client reports that cost
// so the orchestrator's budgeting stays correct if the integration changes.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/domain"
)

// Config holds client configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	CostUnits int // rate-limit units one series call consumes
}

// Client is the market-feed API client.
type Client struct {
	baseURL    string
	apiKey     string
	costUnits  int
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a market-feed client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.CostUnits <= 0 {
		cfg.CostUnits = 5
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		costUnits: cfg.CostUnits,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "marketfeed").Logger(),
	}
}

// CostUnits reports how many rate-limit units one FetchSeries call consumes.
func (c *Client) CostUnits() int { return c.costUnits }

// Name returns the listings-source name.
func (c *Client) Name() string { return "marketfeed" }

// candleResponse is one bar on the wire.
type candleResponse struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type seriesResponse struct {
	Symbol  string           `json:"symbol"`
	Candles []candleResponse `json:"candles"`
	Error   string           `json:"error,omitempty"`
}

// FetchSeries returns the daily price history for a symbol, oldest bar
// first. Implements domain.SeriesFetcher.
func (c *Client) FetchSeries(ctx context.Context, symbol string) (domain.Series, error) {
	endpoint := fmt.Sprintf("%s/v1/daily?%s", c.baseURL, url.Values{
		"symbol": {symbol},
		"apikey": {c.apiKey},
	}.Encode())

	var resp seriesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("provider error for %s: %s", symbol, resp.Error)
	}
	if len(resp.Candles) == 0 {
		return nil, fmt.Errorf("empty series for %s", symbol)
	}

	series := make(domain.Series, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		date, err := time.Parse("2006-01-02", raw.Date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q for %s: %w", raw.Date, symbol, err)
		}
		if raw.Close <= 0 {
			// Bad bars happen on halts and data glitches; drop them rather
			// than poison downstream indicators.
			c.log.Debug().Str("symbol", symbol).Str("date", raw.Date).Msg("Dropping non-positive close")
			continue
		}
		series = append(series, domain.Candle{
			Date:   date,
			Open:   raw.Open,
			High:   raw.High,
			Low:    raw.Low,
			Close:  raw.Close,
			Volume: raw.Volume,
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no usable bars for %s", symbol)
	}

	return series, nil
}

type listingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// Listings returns the provider's active symbol directory. Implements
// universe.Source.
func (c *Client) Listings(ctx context.Context) ([]domain.Listing, error) {
	endpoint := fmt.Sprintf("%s/v1/listings?%s", c.baseURL, url.Values{
		"apikey": {c.apiKey},
	}.Encode())

	var resp listingsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Listings, nil
}

// getJSON performs a GET request and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
