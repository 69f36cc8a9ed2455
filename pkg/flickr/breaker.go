package flickr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var breakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "flickr_breaker_state",
	Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
})

// BreakerConfig controls when the client stops calling a failing API.
type BreakerConfig struct {
	// MinRequests is the number of calls in an interval before tripping is considered
	MinRequests uint32

	// FailureRatio trips the breaker when reached
	FailureRatio float64

	// Interval is the cyclic period after which closed-state counts reset
	Interval time.Duration

	// Timeout is how long the breaker stays open
	Timeout time.Duration

	// HalfOpenRequests is the number of trial calls allowed while half-open
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:      5,
		FailureRatio:     0.6,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

func newBreaker(cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "flickr",
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		// Only outages count against the API; a bad query or a cancelled
		// request says nothing about Flickr's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !shouldRetry(ClassOf(err))
		},
	})
}
