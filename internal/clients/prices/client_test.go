package prices

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
)

const chartResponse = `{"chart":{"result":[{"meta":{"regularMarketPrice":180.5,"chartPreviousClose":178.0,"currency":"usd","regularMarketTime":1717200000}}]}}`

func setupQuoteCache(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE exchangerate (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE metrics (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE current_prices (ticker TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func quoteClient(baseURL string, cache *clientdata.Repository) *Client {
	c := NewClient(cache, zerolog.Nop())
	c.baseURL = baseURL
	return c
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AAPL", r.URL.Path)
		w.Write([]byte(chartResponse))
	}))
	defer server.Close()

	quote, err := quoteClient(server.URL, nil).GetQuote(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Ticker)
	assert.Equal(t, 180.5, quote.Price)
	assert.Equal(t, 178.0, quote.PreviousClose)
	assert.Equal(t, "USD", quote.Currency)

	pct, ok := quote.DayChangePercent()
	require.True(t, ok)
	assert.InDelta(t, 1.404, pct, 0.001)
}

func TestGetQuoteCacheFirst(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write([]byte(chartResponse))
	}))
	defer server.Close()

	client := quoteClient(server.URL, setupQuoteCache(t))

	_, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, fetches)
}

func TestGetQuoteStaleFallback(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chartResponse))
	}))
	defer server.Close()

	cache := setupQuoteCache(t)
	client := quoteClient(server.URL, cache)

	_, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	// Expire the cached quote, then take the upstream down
	_, err = cache.DeleteExpired("current_prices")
	require.NoError(t, err)
	require.NoError(t, cache.Store("current_prices", "AAPL", []byte(`{"ticker":"AAPL","price":179.0}`), -1))
	healthy = false

	quote, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 179.0, quote.Price)
}

func TestGetQuoteNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[]}}`))
	}))
	defer server.Close()

	_, err := quoteClient(server.URL, nil).GetQuote(context.Background(), "NOPE")
	require.Error(t, err)
}

func TestGetQuoteEmptyTicker(t *testing.T) {
	_, err := quoteClient("http://unused", nil).GetQuote(context.Background(), "  ")
	require.Error(t, err)
}

func TestDayChangePercentUnknownPreviousClose(t *testing.T) {
	q := &Quote{Ticker: "AAPL", Price: 180}
	_, ok := q.DayChangePercent()
	assert.False(t, ok)
}
