package middleware

import "net/http"

// CORS returns a unit enforcing an origin allow-list. Preflight OPTIONS
// requests are answered directly without advancing the chain; an empty
// allow-list permits any origin.
func CORS(allowed ...string) Unit {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowedSet[o] = struct{}{}
	}

	return Named("cors", func(req *Request, res *Response, next func() error) error {
		origin := req.HTTP.Header.Get("Origin")
		if origin == "" {
			return next()
		}

		if len(allowedSet) > 0 {
			if _, ok := allowedSet[origin]; !ok {
				res.Status = http.StatusForbidden
				res.Writer.WriteHeader(http.StatusForbidden)
				return &HaltedError{Unit: "cors", Status: http.StatusForbidden, Reason: "origin not allowed"}
			}
		}

		h := res.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")

		if req.HTTP.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			res.Status = http.StatusNoContent
			res.Writer.WriteHeader(http.StatusNoContent)
			return nil
		}

		return next()
	})
}
