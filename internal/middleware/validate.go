package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// ValidateJSON returns a unit that rejects requests declaring a JSON
// content type whose body is not well-formed JSON. The body is restored
// for downstream readers.
func ValidateJSON() Unit {
	return Named("validate_json", func(req *Request, res *Response, next func() error) error {
		ct := req.HTTP.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "application/json") || req.HTTP.Body == nil {
			return next()
		}

		body, err := io.ReadAll(req.HTTP.Body)
		if err != nil {
			return err
		}
		req.HTTP.Body = io.NopCloser(bytes.NewReader(body))

		if len(body) > 0 && !json.Valid(body) {
			res.Status = http.StatusBadRequest
			res.Writer.WriteHeader(http.StatusBadRequest)
			return &HaltedError{Unit: "validate_json", Status: http.StatusBadRequest, Reason: "malformed JSON body"}
		}
		return next()
	})
}
