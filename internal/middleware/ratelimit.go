package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles /reports/ requests per client.
type RateLimitMiddleware struct {
	cfg     config.RateLimitConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	trusted []netip.Prefix
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware. Forwarding
// headers are honoured only when the peer is one of cfg.TrustedProxies.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger, m *metrics.Metrics) *RateLimitMiddleware {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	return &RateLimitMiddleware{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		trusted: parseProxies(cfg.TrustedProxies, logger),
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler wraps an http.Handler with rate limiting. Health and metrics
// endpoints are never limited.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || !strings.HasPrefix(r.URL.Path, "/reports/") {
			next.ServeHTTP(w, r)
			return
		}

		client := rl.clientKey(r)
		if !rl.limiter(client).Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("client", client),
				zap.String("path", r.URL.Path),
			)
			rl.metrics.RecordRateLimitHit(r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= rl.cfg.MaxClients {
			rl.sweepLocked(now)
		}
		if len(rl.clients) >= rl.cfg.MaxClients {
			rl.evictOldestLocked()
		}
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.clients[client] = c
	}
	c.lastSeen = now
	return c.limiter
}

// clientKey identifies the caller by API key when authenticated, else by IP.
func (rl *RateLimitMiddleware) clientKey(r *http.Request) string {
	if key, ok := r.Context().Value(APIKeyContextKey).(string); ok && key != "" {
		return "key:" + key
	}
	return "ip:" + rl.clientIP(r)
}

// clientIP returns the peer address. Behind a trusted proxy it walks
// X-Forwarded-For from the right and returns the first untrusted hop.
func (rl *RateLimitMiddleware) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !rl.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (rl *RateLimitMiddleware) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func parseProxies(entries []string, logger *zap.Logger) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", zap.String("entry", e))
			continue
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes
}

// Clients returns the number of tracked client limiters.
func (rl *RateLimitMiddleware) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// CleanupLimiters drops limiters idle for longer than the configured TTL.
func (rl *RateLimitMiddleware) CleanupLimiters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if n := rl.sweepLocked(rl.now()); n > 0 {
		rl.logger.Debug("cleaned up client rate limiters", zap.Int("removed", n), zap.Int("remaining", len(rl.clients)))
	}
}

// Run calls CleanupLimiters every interval until ctx is done.
func (rl *RateLimitMiddleware) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.CleanupLimiters()
		}
	}
}

func (rl *RateLimitMiddleware) sweepLocked(now time.Time) int {
	removed := 0
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.cfg.IdleTTL {
			delete(rl.clients, k)
			removed++
		}
	}
	return removed
}

func (rl *RateLimitMiddleware) evictOldestLocked() {
	var oldest string
	var at time.Time
	for k, c := range rl.clients {
		if oldest == "" || c.lastSeen.Before(at) {
			oldest, at = k, c.lastSeen
		}
	}
	delete(rl.clients, oldest)
}
