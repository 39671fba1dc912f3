// Package server implements per-connection throttling with a token bucket
// that protects the coordinator from floods.
package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/orgchat/internal/config"
)

// newRateLimiter allows cfg.Burst frames per cfg.RefillInterval, refilled
// continuously, starting with a full bucket.
func newRateLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
