package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// RoundTripper wraps an http.RoundTripper and records per-request
// count and duration metrics for outbound calls to the Wire backend.
type RoundTripper struct {
	Next    http.RoundTripper
	Metrics *Metrics
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}

	start := time.Now()
	resp, err := next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	path := req.URL.Path
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	t.Metrics.BackendRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
	t.Metrics.BackendRequestDuration.WithLabelValues(req.Method, path).Observe(duration)

	return resp, err
}
