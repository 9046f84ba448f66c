package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func limitedRequest(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stats", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(echo.New().NewContext(req, rec)))
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	handler := newRateLimiter(10, 3)(okHandler)

	for range 3 {
		assert.Equal(t, http.StatusOK, limitedRequest(t, handler, testRemoteAddr).Code)
	}
}

func TestRateLimiter_DeniesOverBurst(t *testing.T) {
	handler := newRateLimiter(0.01, 1)(okHandler)

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, testRemoteAddr).Code)

	rec := limitedRequest(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	handler := newRateLimiter(0.01, 1)(okHandler)

	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, limitedRequest(t, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(t, handler, testRemoteAddr).Code)
}
