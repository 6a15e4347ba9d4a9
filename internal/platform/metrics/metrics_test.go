package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAndScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.Observe(http.MethodPost, "/sessions", "201", 20*time.Millisecond)
	m.Observe(http.MethodPost, "/sessions", "201", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/sessions", "201")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kycgate_http_request_duration_seconds")
}

func TestNilIsNoop(t *testing.T) {
	var m *HTTP
	assert.NotPanics(t, func() { m.Observe("GET", "/", "200", time.Second) })
}
