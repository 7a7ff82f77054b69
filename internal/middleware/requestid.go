package middleware

import "github.com/google/uuid"

// RequestIDKey is the Values key under which the request ID is stored.
const RequestIDKey = "request_id"

// RequestID returns a unit that assigns a UUID to each request and
// mirrors it on the X-Request-ID response header.
func RequestID() Unit {
	return Named("requestid", func(req *Request, res *Response, next func() error) error {
		id := uuid.NewString()
		req.Values[RequestIDKey] = id
		if res.Writer != nil {
			res.Writer.Header().Set("X-Request-ID", id)
		}
		return next()
	})
}

// GetRequestID returns the request ID assigned by RequestID, or "".
func GetRequestID(req *Request) string {
	if id, ok := req.Values[RequestIDKey].(string); ok {
		return id
	}
	return ""
}
