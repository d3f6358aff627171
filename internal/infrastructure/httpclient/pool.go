package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration // 0 means no client-side timeout
	UserAgent      string
	Transport      http.RoundTripper
}

// ClientPool bounds concurrent requests to one upstream and keeps request statistics.
// It never retries; callers decide what a failure means.
type ClientPool struct {
	config ClientConfig
	slots  chan struct{}
	client *http.Client

	mu    sync.Mutex
	stats ClientStats
}

// ClientStats counts requests that reached the transport. A request that got any HTTP
// response, whatever its status, is a success here.
type ClientStats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	LastLatency     time.Duration
	MaxLatency      time.Duration
	TotalLatency    time.Duration
}

// AvgLatency returns the mean latency over all requests
func (s ClientStats) AvgLatency() time.Duration {
	if s.TotalRequests == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.TotalRequests)
}

func NewClientPool(config ClientConfig) *ClientPool {
	config.MaxConcurrency = max(config.MaxConcurrency, 1)
	return &ClientPool{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrency),
		client: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: config.Transport,
		},
	}
}

// Do sends req with ctx attached. Any returned response must have its body closed.
func (cp *ClientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case cp.slots <- struct{}{}:
		defer func() { <-cp.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req = req.WithContext(ctx)
	if cp.config.UserAgent != "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	start := time.Now()
	resp, err := cp.client.Do(req)
	elapsed := time.Since(start)
	cp.observe(err == nil, elapsed)

	if err != nil {
		log.Debug().
			Err(err).
			Str("url", req.URL.Redacted()).
			Dur("elapsed", elapsed).
			Msg("HTTP request failed")
		return nil, err
	}

	log.Trace().
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("HTTP request done")
	return resp, nil
}

func (cp *ClientPool) GetStats() ClientStats {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.stats
}

func (cp *ClientPool) observe(ok bool, elapsed time.Duration) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.stats.TotalRequests++
	cp.stats.TotalLatency += elapsed
	cp.stats.LastLatency = elapsed
	cp.stats.MaxLatency = max(cp.stats.MaxLatency, elapsed)

	if ok {
		cp.stats.SuccessRequests++
	} else {
		cp.stats.FailedRequests++
	}
}
