package coingecko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsheet/internal/config"
	"github.com/sawpanic/marketsheet/internal/infrastructure/httpclient"
	"github.com/sawpanic/marketsheet/internal/market"
	"github.com/sawpanic/marketsheet/internal/net/ratelimit"
)

const (
	marketsPath = "/coins/markets"

	// maxBodyBytes bounds how much of a response body is read
	maxBodyBytes = 8 << 20
	// maxErrorBody bounds the body excerpt kept on an UpstreamError
	maxErrorBody = 256
)

// Client fetches ranked market snapshots from the CoinGecko API.
type Client struct {
	endpoint string
	host     string
	client   *httpclient.ClientPool
	limiter  *ratelimit.Limiter
	now      func() time.Time
}

// NewClient builds a client for the upstream described by cfg.
func NewClient(cfg config.UpstreamConfig) (*Client, error) {
	endpoint, err := buildEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		endpoint: endpoint.String(),
		host:     endpoint.Host,
		client: httpclient.NewClientPool(httpclient.ClientConfig{
			MaxConcurrency: 1,
			RequestTimeout: cfg.GetRequestTimeout(),
			UserAgent:      cfg.UserAgent,
		}),
		limiter: ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		now:     time.Now,
	}, nil
}

func buildEndpoint(cfg config.UpstreamConfig) (*url.URL, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + marketsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	q := base.Query()
	q.Set("vs_currency", cfg.VsCurrency)
	q.Set("order", cfg.Order)
	q.Set("per_page", strconv.Itoa(cfg.PerPage))
	q.Set("page", strconv.Itoa(cfg.Page))
	q.Set("sparkline", strconv.FormatBool(cfg.Sparkline))
	base.RawQuery = q.Encode()

	return base, nil
}

// Endpoint returns the full request URL including the fixed query.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Stats returns request statistics of the underlying pool.
func (c *Client) Stats() httpclient.ClientStats {
	return c.client.GetStats()
}

// LimiterStats returns the token bucket state of the upstream host.
func (c *Client) LimiterStats() ratelimit.HostStats {
	return c.limiter.Stats()[c.host]
}

// FetchSnapshot issues one GET for the configured page and parses it.
// Failures match market.ErrTransport, market.ErrUpstream or market.ErrSchema.
func (c *Client) FetchSnapshot(ctx context.Context) (market.Snapshot, error) {
	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return market.Snapshot{}, fmt.Errorf("%w: rate limiter: %w", market.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("%w: build request: %w", market.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("url", c.endpoint).Msg("CoinGecko API request failed")
		return market.Snapshot{}, fmt.Errorf("%w: %w", market.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.handleRateLimit(resp)
		}
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return market.Snapshot{}, &market.UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("%w: read body: %w", market.ErrTransport, err)
	}

	records, err := ParseMarkets(body)
	if err != nil {
		return market.Snapshot{}, err
	}

	log.Debug().
		Int("markets_count", len(records)).
		Dur("duration", time.Since(startTime)).
		Msg("CoinGecko markets data retrieved")

	return market.Snapshot{Records: records, FetchedAt: c.now().UTC()}, nil
}

func (c *Client) handleRateLimit(resp *http.Response) {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter != "" {
		log.Warn().
			Str("retry_after", retryAfter).
			Msg("CoinGecko rate limit hit")
	}
}
