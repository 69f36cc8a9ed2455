package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flickr_quota_remaining",
		Help: "Requests remaining in the current Flickr API key quota window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flickr_quota_blocks_total",
		Help: "Total number of requests refused because the quota was used up",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flickr_quota_throttles_total",
		Help: "Total number of requests slowed down because the quota is nearly used up",
	})
)

// ErrPacing is returned when no local pacing slot frees up before the
// caller's deadline.
var ErrPacing = errors.New("no pacing slot before deadline")

// Config holds tracker configuration.
type Config struct {
	// HourlyQuota is the number of requests allowed per hour and API key
	HourlyQuota int

	// RequestsPerSecond paces requests locally (<= 0 disables pacing)
	RequestsPerSecond float64

	// Burst is the local pacing burst size
	Burst int
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		HourlyQuota:       DefaultHourlyQuota,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// Tracker gates outgoing requests on local pacing and the shared hourly quota.
type Tracker struct {
	redis   *redis.Client
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTracker creates a quota tracker. redisClient may be nil, in which case
// only local pacing applies.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.HourlyQuota <= 0 {
		cfg.HourlyQuota = DefaultHourlyQuota
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Tracker{
		redis:   redisClient,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Tracker) windowKey(start time.Time) string {
	return fmt.Sprintf("%s:%d", RedisKeyQuotaPrefix, start.Unix())
}

// State returns the usage of the current window without counting a request.
func (t *Tracker) State(ctx context.Context) (*QuotaState, error) {
	start := windowStart(t.now())
	state := &QuotaState{
		Limit:   t.config.HourlyQuota,
		ResetAt: start.Add(QuotaWindow),
	}

	if t.redis == nil {
		return state, nil
	}

	used, err := t.redis.Get(ctx, t.windowKey(start)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get quota usage: %w", err)
	}
	state.Used = used

	return state, nil
}

// Allow waits for a local pacing slot, then counts the request against the
// shared quota. It returns false when the quota for this window is used up.
// A slot that cannot be had before ctx's deadline yields ErrPacing.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	if err := t.wait(ctx); err != nil {
		return false, err
	}

	if t.redis == nil {
		return true, nil
	}

	start := windowStart(t.now())
	key := t.windowKey(start)

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, start.Add(QuotaWindow+time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("count request in quota window: %w", err)
	}

	state := &QuotaState{
		Used:    int(incr.Val()),
		Limit:   t.config.HourlyQuota,
		ResetAt: start.Add(QuotaWindow),
	}
	quotaRemaining.Set(float64(state.Remaining()))

	if state.Used > state.Limit {
		t.logger.Error().
			Int("used", state.Used).
			Int("limit", state.Limit).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Flickr quota used up - blocking request")

		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Msg("Flickr quota nearly used up - throttling request")

		quotaThrottlesTotal.Inc()
		// A second token halves the effective rate.
		if err := t.wait(ctx); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (t *Tracker) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for pacing slot: %w", ctxErr)
		}
		// rate.Limiter refuses up front when the wait would pass the deadline.
		return fmt.Errorf("%w: %v", ErrPacing, err)
	}
	return nil
}
