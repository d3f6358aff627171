package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketsheet/internal/config"
	"github.com/sawpanic/marketsheet/internal/market"
)

const marketsFixture = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"x","current_price":50000,"market_cap":1000000,"market_cap_rank":1,"total_volume":25000,"price_change_percentage_24h":2.5,"last_updated":"2024-01-01T00:00:00Z"},
  {"id":"ethereum","symbol":"eth","name":"Ether","current_price":3000,"market_cap":500000,"market_cap_rank":2,"total_volume":12000.75,"price_change_percentage_24h":-1.0},
  {"id":"newcoin","symbol":"new","name":"Newcoin","current_price":0.0001234,"market_cap":null,"total_volume":10,"price_change_percentage_24h":null}
]`

func testUpstream(baseURL string) config.UpstreamConfig {
	cfg := config.Default().Upstream
	cfg.BaseURL = baseURL
	cfg.RPS = 0
	cfg.TimeoutMS = 2000
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(testUpstream(server.URL + "/api/v3"))
	require.NoError(t, err)
	return client, server
}

func TestFetchSnapshot_Success(t *testing.T) {
	var gotQuery atomic.Value
	var gotPath atomic.Value

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsFixture))
	})

	snapshot, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/api/v3/coins/markets", gotPath.Load())
	query := gotQuery.Load().(url.Values)
	assert.Equal(t, "usd", query.Get("vs_currency"))
	assert.Equal(t, "market_cap_desc", query.Get("order"))
	assert.Equal(t, "50", query.Get("per_page"))
	assert.Equal(t, "1", query.Get("page"))
	assert.Equal(t, "false", query.Get("sparkline"))

	require.Equal(t, 3, snapshot.Len())
	assert.False(t, snapshot.FetchedAt.IsZero())

	btc := snapshot.Records[0]
	assert.Equal(t, "Bitcoin", btc.Name)
	assert.Equal(t, "btc", btc.Symbol)
	assert.True(t, btc.CurrentPrice.Valid)
	assert.Equal(t, "50000", btc.CurrentPrice.Decimal.String())
	assert.Equal(t, "2.5", btc.PriceChangePerc24h.Decimal.String())

	eth := snapshot.Records[1]
	assert.Equal(t, "12000.75", eth.TotalVolume.Decimal.String())
	assert.Equal(t, "-1", eth.PriceChangePerc24h.Decimal.String())

	newcoin := snapshot.Records[2]
	assert.Equal(t, "0.0001234", newcoin.CurrentPrice.Decimal.String())
	assert.False(t, newcoin.MarketCap.Valid, "null market cap is tolerated per record")
	assert.False(t, newcoin.PriceChangePerc24h.Valid, "null percentage is tolerated per record")

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.SuccessRequests)
	assert.False(t, client.LimiterStats().IsThrottled(), "limiting is disabled in tests")
}

func TestFetchSnapshot_LimiterStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(marketsFixture))
	}))
	defer server.Close()

	cfg := testUpstream(server.URL)
	cfg.RPS = 0.5
	cfg.Burst = 1
	client, err := NewClient(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, client.LimiterStats().Burst, "no bucket before the first request")

	_, err = client.FetchSnapshot(context.Background())
	require.NoError(t, err)

	stats := client.LimiterStats()
	assert.Equal(t, 0.5, stats.RPS)
	assert.Equal(t, 1, stats.Burst)
	assert.True(t, stats.IsThrottled(), "the only token was spent")
}

func TestFetchSnapshot_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.FetchSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrUpstream)

	var upstream *market.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Equal(t, "service unavailable", upstream.Body)
	assert.True(t, market.IsTransient(err))
}

func TestFetchSnapshot_ClientErrorIsNotTransient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, market.ErrUpstream)
	assert.False(t, market.IsTransient(err))
}

func TestFetchSnapshot_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, market.ErrUpstream)
	assert.True(t, market.IsTransient(err))
}

func TestFetchSnapshot_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client, err := NewClient(testUpstream(baseURL))
	require.NoError(t, err)

	_, err = client.FetchSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrTransport)
	assert.NotErrorIs(t, err, market.ErrUpstream)
	assert.True(t, market.IsTransient(err))
}

func TestFetchSnapshot_Timeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchSnapshot(ctx)
	assert.ErrorIs(t, err, market.ErrTransport)
}

func TestFetchSnapshot_SchemaError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"not a list"}`))
	})

	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, market.ErrSchema)
}

func TestNewClient_Endpoint(t *testing.T) {
	client, err := NewClient(testUpstream("https://api.coingecko.com/api/v3/"))
	require.NoError(t, err)

	endpoint, err := url.Parse(client.Endpoint())
	require.NoError(t, err)
	assert.Equal(t, "api.coingecko.com", endpoint.Host)
	assert.Equal(t, "/api/v3/coins/markets", endpoint.Path)
	assert.Equal(t, "usd", endpoint.Query().Get("vs_currency"))
}
