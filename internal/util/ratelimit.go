package util

import (
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter returns a limiter allowing perMinute operations per minute with
// a burst of one. A non-positive perMinute disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
