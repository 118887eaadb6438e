package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	// HSTS only applies to TLS connections.
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mw := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 60, BurstSize: 2})
	h := mw(okHandler())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestRateLimitIsPerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mw := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 60, BurstSize: 1})
	h := mw(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("203.0.113.7:51234"))
	require.Equal(t, http.StatusTooManyRequests, send("203.0.113.7:51235"))
	assert.Equal(t, http.StatusOK, send("198.51.100.9:40000"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trusted    []string
		want       string
	}{
		{
			name:       "direct peer",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored without trusted proxies",
			remoteAddr: "203.0.113.7:51234",
			xff:        "198.51.100.9",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored from untrusted peer",
			remoteAddr: "203.0.113.7:51234",
			xff:        "198.51.100.9",
			trusted:    []string{"10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header honored from trusted proxy",
			remoteAddr: "10.0.0.1:51234",
			xff:        "198.51.100.9, 10.0.0.1",
			trusted:    []string{"10.0.0.1"},
			want:       "198.51.100.9",
		},
		{
			name:       "real ip fallback from trusted proxy",
			remoteAddr: "10.0.0.1:51234",
			xri:        "198.51.100.9",
			trusted:    []string{"10.0.0.1"},
			want:       "198.51.100.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := RequestLogger(logger)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
