// Package prices fetches current quotes per ticker from the Yahoo Finance
// v8 chart endpoint, with a persistent short-TTL cache in front of it.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
)

// Quote is a current price point for one ticker
type Quote struct {
	Ticker        string  `json:"ticker"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency"`
	AsOf          int64   `json:"as_of"`
}

// DayChangePercent returns the day-over-day percentage change, with ok=false
// when no previous close is available.
func (q *Quote) DayChangePercent() (float64, bool) {
	if q.PreviousClose <= 0 {
		return 0, false
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose * 100, true
}

// Client fetches quotes from Yahoo Finance.
// cacheRepo is optional - if nil, caching is disabled.
type Client struct {
	baseURL   string
	client    *http.Client
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewClient creates a new quote client
func NewClient(cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://query1.finance.yahoo.com/v8/finance/chart",
		client:    &http.Client{Timeout: 8 * time.Second},
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "prices").Logger(),
	}
}

// GetQuote returns the current quote for one ticker. A failure here is
// per-ticker: callers aggregating many tickers should log and continue.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("current_prices", ticker)
		if err == nil && data != nil {
			var cached Quote
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	quote, err := c.fetch(ctx, ticker)
	if err != nil {
		// Upstream failed: serve a stale quote if one exists
		if stale := c.getStaleFromCache(ticker); stale != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Quote fetch failed, using stale cached quote")
			return stale, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if data, err := json.Marshal(quote); err == nil {
			if err := c.cacheRepo.Store("current_prices", ticker, data, clientdata.TTLCurrentPrice); err != nil {
				c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache quote")
			}
		}
	}

	return quote, nil
}

func (c *Client) fetch(ctx context.Context, ticker string) (*Quote, error) {
	url := fmt.Sprintf("%s/%s?interval=1d&range=1d", c.baseURL, ticker)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "trackfolio/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					ChartPreviousClose float64 `json:"chartPreviousClose"`
					Currency           string  `json:"currency"`
					RegularMarketTime  int64   `json:"regularMarketTime"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	if len(raw.Chart.Result) == 0 || raw.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("no quote for %s", ticker)
	}

	meta := raw.Chart.Result[0].Meta
	return &Quote{
		Ticker:        ticker,
		Price:         meta.RegularMarketPrice,
		PreviousClose: meta.ChartPreviousClose,
		Currency:      strings.ToUpper(meta.Currency),
		AsOf:          meta.RegularMarketTime,
	}, nil
}

func (c *Client) getStaleFromCache(ticker string) *Quote {
	if c.cacheRepo == nil {
		return nil
	}
	data, err := c.cacheRepo.Get("current_prices", ticker)
	if err != nil || data == nil {
		return nil
	}
	var cached Quote
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}
