package logging

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripper wraps an http.RoundTripper and logs every outbound request
// made to the backend: method, path, status code and duration. Used by
// internal/backend to instrument REST calls without the client code
// threading logging through every call site.
type RoundTripper struct {
	Next http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}

	logger := slog.With("component", "backend")
	start := time.Now()

	resp, err := next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		logger.Warn("request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"duration", duration,
			"error", err,
		)
		return resp, err
	}

	logger.Debug("request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", duration,
	)
	return resp, nil
}
