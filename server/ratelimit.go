package server

import "time"

// RateLimiter admits connections using a fixed one-second bucket. The bucket
// starts at the first arrival and restarts on the first arrival in a later
// wall-clock second; it is not a sliding window.
//
// RateLimiter is not safe for concurrent use.
type RateLimiter struct {
	max     int
	started bool
	last    int64
	count   int
}

// NewRateLimiter admits at most max connections per bucket
func NewRateLimiter(max int) *RateLimiter {
	return &RateLimiter{max: max}
}

// Admit records an arrival at now and reports whether it may be served
func (r *RateLimiter) Admit(now time.Time) bool {
	sec := now.Unix()
	switch {
	case !r.started:
		r.started = true
		r.last = sec
		r.count = 0
	case sec == r.last:
		r.count++
	default:
		r.count = 0
		r.last = sec
	}
	return r.count < r.max
}

// Count returns the number of arrivals after the first in the current bucket
func (r *RateLimiter) Count() int {
	return r.count
}

// Max returns the per-bucket limit
func (r *RateLimiter) Max() int {
	return r.max
}
