package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nortesoft/gestor/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func newLimitedHandler(cfg httpx.RateLimitConfig) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httpx.RateLimitByIP(cfg)(inner)
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	t.Run("allows up to burst then rejects", func(t *testing.T) {
		h := newLimitedHandler(httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
		})

		for i := range 3 {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i)
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("distinct ips get distinct buckets", func(t *testing.T) {
		h := newLimitedHandler(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		})

		first := httptest.NewRecorder()
		reqA := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		reqA.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(first, reqA)
		require.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		reqB := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		reqB.RemoteAddr = "10.0.0.2:5000"
		h.ServeHTTP(second, reqB)
		require.Equal(t, http.StatusOK, second.Code)
	})

	t.Run("forwarded header wins over remote addr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		require.Equal(t, "203.0.113.9", httpx.ClientIP(req))
	})
}
