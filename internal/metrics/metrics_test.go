package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(nil)
	m.ObserveAPI("GET", "/products", 200, 10*time.Millisecond)
	m.ObserveAPI("GET", "/products", 0, time.Millisecond)
	m.ObserveCache("categories", true)
	m.ObserveCache("categories", false)
	m.ObserveRender("home")
	m.SetSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/products", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/products", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("categories", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PageRenders.WithLabelValues("home")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, 0)
	m.ObserveCache("x", true)
	m.ObserveRender("x")
	m.SetSessions(1)
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.ObserveRender("cart")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `farmstand_page_renders_total{page="cart"} 1`)
}
