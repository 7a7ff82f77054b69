package middleware

// SecurityHeaders returns a unit that sets baseline hardening headers on
// every response.
func SecurityHeaders() Unit {
	return Named("security_headers", func(req *Request, res *Response, next func() error) error {
		h := res.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-XSS-Protection", "0")
		return next()
	})
}
