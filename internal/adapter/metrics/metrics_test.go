package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	relay := NewRelayMetrics(reg)
	relay.BotOnline.Set(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "essence_relay_bot_online 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricSets_RegisterWithoutCollision(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewRelayMetrics(reg)
		NewWebSocketMetrics(reg)
		NewCacheMetrics(reg)
		NewRedisMetrics(reg)
		NewDBMetrics(reg)
	})
}

func TestHTTPMiddleware_RecordsRoute(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/stats", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/stats", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func TestHTTPMiddleware_SkipsProbesAndUpgrade(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	for _, path := range []string{"/health/live", "/metrics", "/ws"} {
		e.GET(path, func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	}

	for _, path := range []string{"/health/live", "/metrics", "/ws"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 0, testutil.CollectAndCount(m.RequestsTotal))
}
