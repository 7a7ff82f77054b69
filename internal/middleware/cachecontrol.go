package middleware

import (
	"fmt"
	"time"
)

// CacheControl returns a unit that marks responses publicly cacheable
// for maxAge.
func CacheControl(maxAge time.Duration) Unit {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return Named("cache_control", func(req *Request, res *Response, next func() error) error {
		res.Writer.Header().Set("Cache-Control", value)
		return next()
	})
}
