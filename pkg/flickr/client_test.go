package flickr

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/flickr-search/internal/testutil"
	"github.com/Sternrassler/flickr-search/pkg/cache"
	"github.com/Sternrassler/flickr-search/pkg/ratelimit"
)

// newTestClient creates a client against mock with fast retries.
func newTestClient(t *testing.T, mock *testutil.MockFlickr, modify func(*Config)) *Client {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultConfig("test-key")
	cfg.Endpoint = mock.URL()
	cfg.Logger = &logger
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	if modify != nil {
		modify(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newMock(t *testing.T) *testutil.MockFlickr {
	t.Helper()
	mock := testutil.NewMockFlickr()
	t.Cleanup(mock.Close)
	return mock
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("key"),
			expectError: false,
		},
		{
			name:        "zero values get defaults",
			config:      Config{APIKey: "key"},
			expectError: false,
		},
		{
			name:        "missing api key",
			config:      DefaultConfig(""),
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name: "relative endpoint",
			config: Config{
				APIKey:   "key",
				Endpoint: "/services/rest/",
			},
			expectError: true,
			errorMsg:    "endpoint must be an absolute http(s) URL",
		},
		{
			name: "negative timeout",
			config: Config{
				APIKey:  "key",
				Timeout: -time.Second,
			},
			expectError: true,
			errorMsg:    "timeout must be >= 0",
		},
		{
			name: "negative retries",
			config: Config{
				APIKey: "key",
				Retry:  RetryConfig{MaxRetries: -1},
			},
			expectError: true,
			errorMsg:    "max_retries must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, c.config.Timeout)
			_ = c.Close()
		})
	}
}

func TestSearch_Success(t *testing.T) {
	mock := newMock(t)
	c := newTestClient(t, mock, nil)

	page, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 25, page.Total)
	assert.True(t, page.HasMore())
	require.Len(t, page.Photos, 10)
	assert.Equal(t, "cats 1", page.Photos[0].Title)

	q := mock.LastQuery()
	assert.Equal(t, SearchMethod, q.Get("method"))
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "cats", q.Get("text"))
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "1", q.Get("nojsoncallback"))
	assert.Equal(t, "10", q.Get("per_page"))
	assert.Equal(t, "1", q.Get("page"))
}

func TestSearch_LastPage(t *testing.T) {
	mock := newMock(t)
	c := newTestClient(t, mock, nil)

	page, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 3})
	require.NoError(t, err)

	assert.False(t, page.HasMore())
	assert.Len(t, page.Photos, 5)
}

func TestSearch_InvalidRequest(t *testing.T) {
	mock := newMock(t)
	c := newTestClient(t, mock, nil)

	_, err := c.Search(context.Background(), Request{Text: "  ", PerPage: 10, Page: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestSearch_APIFailureNotRetried(t *testing.T) {
	mock := newMock(t)
	mock.Enqueue(testutil.NewFailResponse(100, "Invalid API Key"))
	c := newTestClient(t, mock, nil)

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorClassAPI, apiErr.Class)
	assert.Equal(t, 100, apiErr.Code)
	assert.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, "Flickr error: Invalid API Key", UserMessage(err))
}

func TestSearch_ServerErrorRetried(t *testing.T) {
	mock := newMock(t)
	mock.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())
	c := newTestClient(t, mock, nil)

	page, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.NoError(t, err)
	assert.Len(t, page.Photos, 10)
	assert.Equal(t, 3, mock.RequestCount())
}

func TestSearch_RetryExhausted(t *testing.T) {
	mock := newMock(t)
	for i := 0; i < 3; i++ {
		mock.Enqueue(testutil.NewServerErrorResponse())
	}
	c := newTestClient(t, mock, nil)

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, ErrorClassServer, ClassOf(err))
	assert.Equal(t, 3, mock.RequestCount())
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	mock := newMock(t)
	mock.Enqueue(testutil.MockResponse{StatusCode: http.StatusNotFound})
	c := newTestClient(t, mock, nil)

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.Error(t, err)
	assert.Equal(t, ErrorClassClient, ClassOf(err))
	assert.Equal(t, 1, mock.RequestCount())
}

func TestSearch_Malformed(t *testing.T) {
	tests := []struct {
		name string
		resp testutil.MockResponse
	}{
		{name: "not json", resp: testutil.NewMalformedResponse()},
		{name: "photo not an array", resp: testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"photos":{"page":1,"pages":1,"total":1,"photo":"x"},"stat":"ok"}`,
		}},
		{name: "missing photos", resp: testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"stat":"ok"}`,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.Enqueue(tt.resp)
			c := newTestClient(t, mock, nil)

			_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, 1, mock.RequestCount())
		})
	}
}

func TestSearch_Timeout(t *testing.T) {
	mock := newMock(t)
	mock.SetDelay(time.Second)
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.Retry.MaxRetries = 0
	})

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.Error(t, err)
	assert.Equal(t, ErrorClassNetwork, ClassOf(err))
}

func TestSearch_ContextCanceled(t *testing.T) {
	mock := newMock(t)
	mock.SetDelay(time.Second)
	c := newTestClient(t, mock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Search(ctx, Request{Text: "cats", PerPage: 10, Page: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSearch_CacheHit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	manager, err := cache.NewManager(rdb, cache.DefaultConfig())
	require.NoError(t, err)

	mock := newMock(t)
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Cache = manager })

	req := Request{Text: "cats", PerPage: 10, Page: 2}
	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.RequestCount())

	// Another client sharing Redis is served from the L2 layer.
	other, err := cache.NewManager(rdb, cache.DefaultConfig())
	require.NoError(t, err)
	c2 := newTestClient(t, mock, func(cfg *Config) { cfg.Cache = other })
	_, err = c2.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.RequestCount())

	// A different page is a different key.
	_, err = c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.RequestCount())
}

func TestSearch_FailuresNotCached(t *testing.T) {
	manager, err := cache.NewManager(nil, cache.DefaultConfig())
	require.NoError(t, err)

	mock := newMock(t)
	mock.Enqueue(testutil.NewFailResponse(105, "Service currently unavailable"))
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Cache = manager
		cfg.Retry.MaxRetries = 0
	})

	req := Request{Text: "cats", PerPage: 10, Page: 1}
	_, err = c.Search(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrorClassServer, ClassOf(err))
	assert.Equal(t, 0, manager.Len())

	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, manager.Len())
}

func TestSearch_QuotaExceeded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tracker := ratelimit.NewTracker(rdb, ratelimit.Config{HourlyQuota: 1}, zerolog.Nop())

	mock := newMock(t)
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Quota = tracker })

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.NoError(t, err)

	_, err = c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 2})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, "Search limit reached. Please try again later.", UserMessage(err))
}

func TestSearch_QuotaStoreDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	tracker := ratelimit.NewTracker(rdb, ratelimit.DefaultConfig(), zerolog.Nop())

	mock := newMock(t)
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Quota = tracker })

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.RequestCount())
}

func TestSearch_PacingRespectedUnderDeadline(t *testing.T) {
	tracker := ratelimit.NewTracker(nil, ratelimit.Config{RequestsPerSecond: 0.01, Burst: 1}, zerolog.Nop())

	mock := newMock(t)
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Quota = tracker })

	_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Search(ctx, Request{Text: "cats", PerPage: 10, Page: 2})

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.ErrorIs(t, err, ratelimit.ErrPacing)
	assert.Equal(t, 1, mock.RequestCount(), "paced request must not reach Flickr")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestSearch_CircuitBreakerOpens(t *testing.T) {
	mock := newMock(t)
	for i := 0; i < 10; i++ {
		mock.Enqueue(testutil.NewServerErrorResponse())
	}
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Retry.MaxRetries = 0
		cfg.Breaker = BreakerConfig{
			MinRequests:  2,
			FailureRatio: 0.5,
			Timeout:      time.Minute,
		}
	})

	req := Request{Text: "cats", PerPage: 10, Page: 1}
	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.Search(context.Background(), req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, mock.RequestCount())
}

func TestSearch_ClientErrorsDoNotTripBreaker(t *testing.T) {
	mock := newMock(t)
	for i := 0; i < 5; i++ {
		mock.Enqueue(testutil.NewFailResponse(100, "Invalid API Key"))
	}
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{MinRequests: 2, FailureRatio: 0.5}
	})

	for i := 0; i < 5; i++ {
		_, err := c.Search(context.Background(), Request{Text: "cats", PerPage: 10, Page: 1})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}
