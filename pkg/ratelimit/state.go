// Package ratelimit keeps Flickr API usage inside the per-key quota.
// Requests are paced locally and, when Redis is available, counted in an
// hourly window shared by every process using the same key.
package ratelimit

import (
	"time"
)

// RedisKeyQuotaPrefix prefixes the hourly usage counters in Redis.
const RedisKeyQuotaPrefix = "flickr:quota"

// Quota defaults.
const (
	// DefaultHourlyQuota is Flickr's documented limit per API key.
	DefaultHourlyQuota = 3600

	// QuotaWindow is the length of one counting window.
	QuotaWindow = time.Hour

	// ThrottleFraction is the share of the quota left below which requests
	// are paced at half rate.
	ThrottleFraction = 0.1
)

// QuotaState is the usage of the current quota window.
type QuotaState struct {
	// Used is the number of requests counted in this window.
	Used int `json:"used"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests are left in the window.
func (s *QuotaState) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// NeedsCriticalBlock returns true when no request may be sent until the window resets.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Used >= s.Limit
}

// NeedsThrottling returns true when less than ThrottleFraction of the quota is left.
func (s *QuotaState) NeedsThrottling() bool {
	return !s.NeedsCriticalBlock() && float64(s.Remaining()) < float64(s.Limit)*ThrottleFraction
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// windowStart returns the start of the quota window containing t.
func windowStart(t time.Time) time.Time {
	return t.Truncate(QuotaWindow)
}
