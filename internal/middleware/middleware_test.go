package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthMiddleware(config.AuthConfig{
		Enabled:   true,
		MasterKey: "s3cret",
		SkipPaths: []string{"/health"},
	}, zap.NewNop())
	h := auth.Handler(okHandler())

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "skipped path", target: "/health", want: http.StatusOK},
		{name: "missing key", target: "/reports/funnel", want: http.StatusUnauthorized},
		{name: "wrong key", target: "/reports/funnel", header: "nope", want: http.StatusUnauthorized},
		{name: "header key", target: "/reports/funnel", header: "s3cret", want: http.StatusOK},
		{name: "query key", target: "/reports/funnel?api_key=s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := NewAuthMiddleware(config.AuthConfig{}, zap.NewNop()).Handler(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/customers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewRecoveryMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/customers", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func newTestLimiter(cfg config.RateLimitConfig) (*RateLimitMiddleware, *metrics.Metrics) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	cfg.Enabled = true
	return NewRateLimitMiddleware(cfg, zap.NewNop(), m), m
}

func limitedRequest(h http.Handler, path, remote, xff string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, m := newTestLimiter(config.RateLimitConfig{RPS: 0.001, Burst: 1, IdleTTL: time.Minute})
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(h, "/reports/funnel", "198.51.100.1:4000", ""))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "/reports/funnel", "198.51.100.1:4001", ""))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "/reports/funnel", "198.51.100.2:4000", ""), "separate client")
	assert.Equal(t, http.StatusOK, limitedRequest(h, "/health", "198.51.100.1:4000", ""), "health is never limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("/reports/funnel")))
}

func TestRateLimitMiddleware_UntrustedForwardedForIgnored(t *testing.T) {
	rl, m := newTestLimiter(config.RateLimitConfig{RPS: 1, Burst: 1})
	h := rl.Handler(okHandler())

	allowed := 0
	for i := 0; i < 1000; i++ {
		xff := fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff)
		if limitedRequest(h, "/reports/funnel", "203.0.113.9:5000", xff) == http.StatusOK {
			allowed++
		}
	}

	assert.LessOrEqual(t, allowed, 2, "rotating X-Forwarded-For must not mint new limiters")
	assert.Equal(t, 1, rl.Clients())
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("/reports/funnel")), 998.0)
}

func TestRateLimitMiddleware_ClientIP(t *testing.T) {
	rl, _ := newTestLimiter(config.RateLimitConfig{
		RPS:            1,
		Burst:          1,
		TrustedProxies: []string{"10.0.0.0/8", "192.0.2.7", "not-an-ip"},
	})

	tests := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{name: "direct peer", remote: "203.0.113.5:1234", want: "203.0.113.5"},
		{name: "untrusted peer with header", remote: "203.0.113.5:1234", xff: "1.2.3.4", want: "203.0.113.5"},
		{name: "trusted proxy", remote: "10.1.2.3:80", xff: "198.51.100.20", want: "198.51.100.20"},
		{name: "spoofed prefix behind proxy", remote: "10.1.2.3:80", xff: "6.6.6.6, 198.51.100.20", want: "198.51.100.20"},
		{name: "proxy chain", remote: "192.0.2.7:80", xff: "198.51.100.20, 10.9.9.9", want: "198.51.100.20"},
		{name: "trusted proxy with real ip", remote: "10.1.2.3:80", realIP: "198.51.100.30", want: "198.51.100.30"},
		{name: "trusted proxy without headers", remote: "10.1.2.3:80", want: "10.1.2.3"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports/funnel", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}

func TestRateLimitMiddleware_CleanupIdleClients(t *testing.T) {
	rl, _ := newTestLimiter(config.RateLimitConfig{RPS: 0.001, Burst: 1, IdleTTL: time.Minute})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(h, "/reports/funnel", "198.51.100.1:1", ""))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "/reports/funnel", "198.51.100.2:1", ""))

	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "/reports/funnel", "198.51.100.2:1", ""))

	now = now.Add(45 * time.Second)
	rl.CleanupLimiters()
	assert.Equal(t, 1, rl.Clients(), "only the client idle past the TTL is dropped")

	now = now.Add(2 * time.Minute)
	rl.CleanupLimiters()
	assert.Equal(t, 0, rl.Clients())
	assert.Equal(t, http.StatusOK, limitedRequest(h, "/reports/funnel", "198.51.100.1:1", ""))
}

func TestRateLimitMiddleware_MaxClients(t *testing.T) {
	rl, _ := newTestLimiter(config.RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Hour, MaxClients: 2})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	for i := 1; i <= 5; i++ {
		now = now.Add(time.Second)
		limitedRequest(h, "/reports/funnel", fmt.Sprintf("198.51.100.%d:1", i), "")
	}
	assert.Equal(t, 2, rl.Clients())
}

func TestRateLimitMiddleware_RunStopsOnCancel(t *testing.T) {
	rl, _ := newTestLimiter(config.RateLimitConfig{RPS: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var seen string
	h := NewLoggingMiddleware(zap.New(core)).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/funnel?from=2024-06-01&page_url=%2Fshoe&api_key=s3cret", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("report served").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, seen, fields["request_id"])
	assert.Equal(t, "2024-06-01", fields["from"])
	assert.Equal(t, "/shoe", fields["page_url"])
	assert.NotContains(t, fields, "to")
	for _, v := range fields {
		assert.NotContains(t, fmt.Sprint(v), "s3cret", "the api key must not be logged")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, logs.FilterMessage("request served").Len())
}

func TestLoggingMiddleware_LogsPanicAsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), NewLoggingMiddleware(logger).Handler, NewRecoveryMiddleware(logger).Handler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/customers", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	panicked := logs.FilterMessage("report handler panicked").All()
	failed := logs.FilterMessage("report request failed").All()
	require.Len(t, panicked, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, failed[0].ContextMap()["request_id"], panicked[0].ContextMap()["request_id"])
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	assert.NoError(t, err)
	assert.NotNil(t, logger)
}
