package middleware

import (
	"log/slog"
	"time"
)

// AccessLog returns a unit that logs request start and completion with
// method, path, status and duration. A nil logger falls back to
// slog.Default.
func AccessLog(logger *slog.Logger) Unit {
	if logger == nil {
		logger = slog.Default()
	}
	return Named("access_log", func(req *Request, res *Response, next func() error) error {
		start := time.Now()
		logger.Debug("request start",
			slog.String("method", req.HTTP.Method),
			slog.String("path", req.HTTP.URL.Path),
			slog.String("remote_addr", req.HTTP.RemoteAddr),
		)

		err := next()

		logger.Info("request complete",
			slog.String("method", req.HTTP.Method),
			slog.String("path", req.HTTP.URL.Path),
			slog.Int("status", res.Status),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	})
}
