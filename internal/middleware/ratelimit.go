package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimit returns a token-bucket unit admitting at most rate requests
// per interval, with bursts up to the full bucket. State is per unit
// value, so each route group registering its own RateLimit gets its own
// bucket.
func RateLimit(rate int, interval time.Duration) Unit {
	b := &bucket{
		capacity: float64(rate),
		tokens:   float64(rate),
		refill:   float64(rate) / interval.Seconds(),
		last:     time.Now(),
	}

	return Named("ratelimit", func(req *Request, res *Response, next func() error) error {
		if !b.take() {
			res.Status = http.StatusTooManyRequests
			res.Writer.Header().Set("Retry-After", "1")
			res.Writer.WriteHeader(http.StatusTooManyRequests)
			return &HaltedError{Unit: "ratelimit", Status: http.StatusTooManyRequests, Reason: "rate exceeded"}
		}
		return next()
	})
}

type bucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	refill   float64 // tokens per second
	last     time.Time
}

func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
