// Package backend is the REST + WebSocket client for the Wire
// backend (the only external collaborator named concretely in spec
// §6: everything else is behind an interface). It owns login/token
// refresh, retries with backoff on 5xx, and correlation-id /
// logging / metrics instrumentation of every outbound call.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/http2"

	"github.com/wireapp/wire-apps-go-sdk/internal/config"
	"github.com/wireapp/wire-apps-go-sdk/internal/corrid"
	"github.com/wireapp/wire-apps-go-sdk/internal/logging"
	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
)

// maxServerErrorRetries bounds exponential backoff retries on 5xx
// responses (spec §5: "max 10 retries").
const maxServerErrorRetries = 10

// Client is the Wire backend REST client.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	metrics    *metrics.Metrics

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	cookie      string
}

// New builds a Client over an HTTP/2 transport, with the logging and
// metrics RoundTrippers chained around the base transport — the
// client-side analogue of the teacher's server-side HTTP middleware
// stack.
func New(cfg *config.Config, m *metrics.Metrics) *Client {
	base := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	if err := http2.ConfigureTransport(base); err != nil {
		slog.Warn("backend: failed to configure http2 transport, falling back to http/1.1", "error", err)
	}

	var transport http.RoundTripper = base
	transport = &metrics.RoundTripper{Next: transport, Metrics: m}
	transport = &logging.RoundTripper{Next: transport}
	transport = &corrIDRoundTripper{Next: transport}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		metrics:    m,
	}
}

// corrIDRoundTripper stamps every outbound request with a fresh
// correlation id header, threaded through logs and retry traces.
type corrIDRoundTripper struct {
	Next http.RoundTripper
}

func (t *corrIDRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Correlation-Id", corrid.New())
	return t.Next.RoundTrip(req)
}

func (c *Client) baseURL() string {
	return strings.TrimSuffix(c.cfg.APIHost, "/") + "/" + c.cfg.APIVersion
}

// requestOpts customize a single call.
type requestOpts struct {
	contentType string
	noAuth      bool
	noRetry     bool
}

// do executes an HTTP request against the backend, attaching the
// bearer token, retrying on 5xx with exponential backoff, and mapping
// 4xx/5xx into *sdkerr.Error.
func (c *Client) do(ctx context.Context, method, path string, body []byte, opts requestOpts) (*http.Response, error) {
	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("backend: build request: %w", err))
		}
		if opts.contentType != "" {
			req.Header.Set("Content-Type", opts.contentType)
		} else if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		if !opts.noAuth {
			token, err := c.ensureToken(ctx)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport-level errors are treated as transient.
			return nil, err
		}

		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("backend: server error %d: %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, backoff.Permanent(&sdkerr.Error{
				Code:       sdkerr.ClientError,
				Msg:        fmt.Sprintf("%s %s: %d", method, path, resp.StatusCode),
				HTTPStatus: resp.StatusCode,
				StaleEpoch: isStaleEpochBody(respBody),
			})
		}

		return resp, nil
	}

	if opts.noRetry {
		resp, err := op()
		if err != nil {
			var perm *backoff.PermanentError
			if asPermanent(err, &perm) {
				return nil, perm.Err
			}
			return nil, sdkerr.Wrap(sdkerr.ServerError, fmt.Sprintf("%s %s failed", method, path), err)
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(maxServerErrorRetries+1),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if asPermanent(err, &perm) {
			return nil, perm.Err
		}
		return nil, sdkerr.Wrap(sdkerr.ServerError, fmt.Sprintf("%s %s failed after retries", method, path), err)
	}
	return resp, nil
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	pe, ok := err.(*backoff.PermanentError)
	if ok {
		*target = pe
	}
	return ok
}

// isStaleEpochBody inspects a backend error body for the MLS
// stale-message indicator.
func isStaleEpochBody(body []byte) bool {
	var parsed struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return parsed.Label == "mls-stale-message" || parsed.Label == "mls-client-mismatch"
}

func readJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
