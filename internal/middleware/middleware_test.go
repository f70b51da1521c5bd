package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annel0/knapping/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, buf *bytes.Buffer) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(NewRequestLogger(logging.NewWriterLogger("http", buf, logging.DEBUG)).Handler())
	prom := NewPrometheusMiddleware("test", reg)
	r.Use(prom.Handler())
	prom.RegisterMetricsEndpoint(r)

	r.GET("/ok/:id", func(c *gin.Context) {
		traceID, _ := c.Get(TraceIDKey)
		c.String(http.StatusOK, "%v", traceID)
	})
	return r, reg
}

func serve(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newRouter(t, &buf)

	rec := serve(r, "/ok/1")
	require.Equal(t, http.StatusOK, rec.Code)
	traceID := rec.Header().Get("X-Trace-Id")
	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Body.String())
	assert.Contains(t, buf.String(), "GET /ok/:id 200")
}

func TestPrometheusMiddlewareCountsErrors(t *testing.T) {
	var buf bytes.Buffer
	r, reg := newRouter(t, &buf)

	serve(r, "/ok/1")
	serve(r, "/missing")

	families, err := reg.Gather()
	require.NoError(t, err)

	var errorsSeen float64
	paths := map[string]bool{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" {
					paths[lp.GetValue()] = true
				}
			}
			if mf.GetName() == "test_http_request_errors_total" {
				errorsSeen += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), errorsSeen)
	assert.True(t, paths["/ok/:id"])
	assert.True(t, paths["unmatched"])

	rec := serve(r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_inflight")
}
