// Package exchangerate fetches live currency exchange rates from
// exchangerate-api.com with bounded timeouts and retries.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client for exchangerate-api.com
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewClient creates a new exchangerate-api.com client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL:    "https://api.exchangerate-api.com/v4/latest",
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		log:        log.With().Str("client", "exchangerate-api").Logger(),
	}
}

// GetRate fetches the rate such that amount_in_from * rate = amount_in_to.
// Retries transient failures with backoff; the retry count is bounded so a
// stalled upstream cannot stall the caller indefinitely.
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)

	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().
				Int("attempt", attempt).
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Msg("Retrying rate fetch")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			delay *= 2
		}

		rate, err := c.fetch(ctx, url, toCurrency)
		if err == nil {
			c.log.Debug().
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Float64("rate", rate).
				Msg("Fetched rate")
			return rate, nil
		}
		lastErr = err
	}

	return 0, fmt.Errorf("rate fetch for %s->%s failed after %d attempts: %w",
		fromCurrency, toCurrency, c.maxRetries+1, lastErr)
}

func (c *Client) fetch(ctx context.Context, url, toCurrency string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates[toCurrency]
	if !exists {
		return 0, fmt.Errorf("rate not found for %s", toCurrency)
	}

	return rate, nil
}
