package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/wire-apps-go-sdk/internal/metrics"
)

func getCounterValue(t *testing.T, m *metrics.Metrics, method, path, status string) float64 {
	t.Helper()
	c, err := m.BackendRequestsTotal.GetMetricWithLabelValues(method, path, status)
	if err != nil {
		return 0
	}
	out := &dto.Metric{}
	require.NoError(t, c.Write(out))
	return out.GetCounter().GetValue()
}

func getHistogramCount(t *testing.T, m *metrics.Metrics, method, path string) uint64 {
	t.Helper()
	h, err := m.BackendRequestDuration.GetMetricWithLabelValues(method, path)
	if err != nil {
		return 0
	}
	out := &dto.Metric{}
	require.NoError(t, h.Write(out))
	return out.GetHistogram().GetSampleCount()
}

func TestRoundTripper_RecordsRequestMetrics(t *testing.T) {
	m := metrics.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: &metrics.RoundTripper{Metrics: m},
	}

	before := getCounterValue(t, m, "GET", "/some/path", "200")
	beforeHist := getHistogramCount(t, m, "GET", "/some/path")

	resp, err := client.Get(server.URL + "/some/path")
	require.NoError(t, err)
	_ = resp.Body.Close()

	after := getCounterValue(t, m, "GET", "/some/path", "200")
	afterHist := getHistogramCount(t, m, "GET", "/some/path")

	assert.Equal(t, float64(1), after-before)
	assert.Equal(t, uint64(1), afterHist-beforeHist)
}

func TestRoundTripper_RecordsErrorStatus(t *testing.T) {
	m := metrics.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: &metrics.RoundTripper{Metrics: m},
	}

	before := getCounterValue(t, m, "GET", "/boom", "500")

	resp, err := client.Get(server.URL + "/boom")
	require.NoError(t, err)
	_ = resp.Body.Close()

	after := getCounterValue(t, m, "GET", "/boom", "500")
	assert.Equal(t, float64(1), after-before)
}

func TestRouterQueueDepthGauge(t *testing.T) {
	m := metrics.New()

	m.RouterQueueDepth.WithLabelValues("conv-1").Set(3)

	out := &dto.Metric{}
	g, err := m.RouterQueueDepth.GetMetricWithLabelValues("conv-1")
	require.NoError(t, err)
	require.NoError(t, g.Write(out))
	assert.Equal(t, float64(3), out.GetGauge().GetValue())
}

func TestMlsResyncTotalByOutcome(t *testing.T) {
	m := metrics.New()

	m.MlsResyncTotal.WithLabelValues("stale_epoch").Inc()
	m.MlsResyncTotal.WithLabelValues("stale_epoch").Inc()
	m.MlsResyncTotal.WithLabelValues("orphan").Inc()

	out := &dto.Metric{}
	c, err := m.MlsResyncTotal.GetMetricWithLabelValues("stale_epoch")
	require.NoError(t, err)
	require.NoError(t, c.Write(out))
	assert.Equal(t, float64(2), out.GetCounter().GetValue())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.NotificationsProcessedTotal.Inc()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
