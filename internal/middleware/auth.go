package middleware

import (
	"net/http"
	"strings"
)

// AuthBearer returns a unit that requires a bearer token accepted by
// verify. The check itself is deliberately thin; swap in a real
// verifier at registration time.
func AuthBearer(verify func(token string) bool) Unit {
	return Named("auth_bearer", func(req *Request, res *Response, next func() error) error {
		header := req.HTTP.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" || !verify(token) {
			res.Status = http.StatusUnauthorized
			res.Writer.Header().Set("WWW-Authenticate", "Bearer")
			res.Writer.WriteHeader(http.StatusUnauthorized)
			return &HaltedError{Unit: "auth_bearer", Status: http.StatusUnauthorized, Reason: "missing or invalid bearer token"}
		}
		req.Values["auth_token"] = token
		return next()
	})
}
