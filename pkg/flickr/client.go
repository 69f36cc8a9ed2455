// Package flickr provides the Flickr photo search client with caching,
// quota tracking, retries and a circuit breaker.
package flickr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Sternrassler/flickr-search/pkg/cache"
	"github.com/Sternrassler/flickr-search/pkg/photo"
	"github.com/Sternrassler/flickr-search/pkg/ratelimit"
)

// DefaultEndpoint is the Flickr REST endpoint.
const DefaultEndpoint = "https://api.flickr.com/services/rest/"

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 10 * time.Second

// Prometheus metrics for Flickr client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flickr_requests_total",
		Help: "Total Flickr search requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flickr_request_duration_seconds",
		Help:    "Flickr search duration in seconds, including cache hits and retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flickr_errors_total",
		Help: "Total Flickr errors by class",
	}, []string{"class"})
)

// Client searches Flickr photos.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	cache      *cache.Manager
	quota      *ratelimit.Tracker
	breaker    *gobreaker.CircuitBreaker
	config     Config
	logger     zerolog.Logger

	// Fetch goroutines derive their context from baseCtx.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the REST endpoint. Defaults to DefaultEndpoint.
	Endpoint string

	// APIKey is the Flickr API key (REQUIRED)
	APIKey string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout bounds a single HTTP attempt. Defaults to DefaultTimeout.
	Timeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig

	// Cache is optional. A nil cache disables response caching.
	Cache *cache.Manager

	// Quota is optional. A nil tracker disables quota accounting.
	Quota *ratelimit.Tracker

	// HTTPClient overrides the default transport (for testing).
	HTTPClient *http.Client

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		APIKey:    apiKey,
		UserAgent: "flickr-search/1.0",
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
		Breaker:   DefaultBreakerConfig(),
	}
}

// New creates a new Flickr client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL (got %q)", cfg.Endpoint)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	def := DefaultRetryConfig()
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = def.InitialBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = def.MaxBackoff
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = def.BackoffMultiplier
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "flickr-client").Logger()
	} else {
		logger = log.With().Str("component", "flickr-client").Logger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		cache:      cfg.Cache,
		quota:      cfg.Quota,
		breaker:    newBreaker(cfg.Breaker, logger),
		config:     cfg,
		logger:     logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}, nil
}

// Search fetches one page of results for r.
//
// The pipeline is: validate, cache lookup, then circuit breaker around the
// retry loop. Each attempt is counted against the quota before it is sent.
// Successful bodies are written back to the cache.
func (c *Client) Search(ctx context.Context, r Request) (*photo.Page, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	u := buildURL(c.endpoint, c.config.APIKey, r)
	key := cache.KeyFromURL(u)
	logger := c.logger.With().Str("text", r.Text).Int("page", r.Page).Logger()

	// Step 1: Check Cache
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			page, decodeErr := decodeSearchResponse(entry.Data)
			if decodeErr == nil {
				requestsTotal.WithLabelValues("cached").Inc()
				logger.Debug().Msg("Serving search from cache")
				return page, nil
			}
			logger.Warn().Err(decodeErr).Msg("Dropping undecodable cache entry")
			_ = c.cache.Delete(ctx, key)
		case !errors.Is(err, cache.ErrCacheMiss):
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	// Step 2: Execute behind the breaker with retry logic
	var (
		page  *photo.Page
		entry *cache.Entry
	)
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, retryWithBackoff(ctx, c.config.Retry, logger, func() error {
			if err := c.acquireQuota(ctx, logger); err != nil {
				return err
			}
			p, e, err := c.doRequest(ctx, u)
			if err != nil {
				return err
			}
			page, entry = p, e
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues("circuit_open").Inc()
			logger.Warn().Msg("Request rejected by circuit breaker")
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	// Step 3: Update Cache on success
	if c.cache != nil && entry != nil {
		if err := c.cache.Set(ctx, key, entry); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
		}
	}

	return page, nil
}

// acquireQuota counts one API call. A broken quota store does not stop
// searches; an exhausted quota or a missed pacing slot does.
func (c *Client) acquireQuota(ctx context.Context, logger zerolog.Logger) error {
	if c.quota == nil {
		return nil
	}

	allowed, err := c.quota.Allow(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ratelimit.ErrPacing) {
			requestsTotal.WithLabelValues("paced").Inc()
			logger.Warn().Err(err).Msg("No pacing slot before deadline - refusing request")
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		logger.Warn().Err(err).Msg("Quota check failed - continuing without shared quota")
		return nil
	}
	if !allowed {
		requestsTotal.WithLabelValues("quota_exceeded").Inc()
		return ErrQuotaExceeded
	}
	return nil
}

// doRequest performs a single HTTP attempt and decodes its body.
func (c *Client) doRequest(ctx context.Context, u *url.URL) (*photo.Page, *cache.Entry, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create request: %v", ErrInvalidRequest, err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", SearchMethod).Msg("Executing Flickr request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		c.logger.Error().Err(err).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, nil, &APIError{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	if class := classifyStatus(resp.StatusCode); class != "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Flickr request error")

		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	var ttl time.Duration
	if c.cache != nil {
		ttl = c.cache.TTL()
	}
	entry, err := cache.ResponseToEntry(resp, ttl)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Err: err}
	}

	page, err := decodeSearchResponse(entry.Data)
	if err != nil {
		class := ClassOf(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().Err(err).Str("error_class", string(class)).Msg("Flickr search failed")
		return nil, nil, err
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return page, entry, nil
}

// Close cancels in-flight fetches, waits for their goroutines to exit and
// releases idle connections. Search remains usable after Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.baseCancel()
	c.inflight.Wait()
	c.httpClient.CloseIdleConnections()
	return nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}
