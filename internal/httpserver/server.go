package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/radiusdt/shop-insights/internal/commerce"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/events"
	"github.com/radiusdt/shop-insights/internal/insights"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/middleware"
	"github.com/radiusdt/shop-insights/internal/models"
	"go.uber.org/zap"
)

// Reports is the report surface served over HTTP.
type Reports interface {
	Customers(ctx context.Context, w models.Window) (*insights.Report[*insights.CustomerReport], error)
	Products(ctx context.Context, w models.Window, order string) (*insights.Report[*insights.ProductView], error)
	Inventory(ctx context.Context) (*insights.Report[*insights.StockReport], error)
	Funnel(ctx context.Context, w models.Window) (*insights.Report[*insights.Funnel], error)
	Conversion(ctx context.Context, w models.Window) (*insights.Report[[]insights.ConversionRow], error)
	Snapshot(ctx context.Context, w models.Window) (*insights.Report[*insights.Dashboard], error)
}

// HealthChecker is a dependency reported by /health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Reports  Reports
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Checks are run by /health, keyed by name.
	Checks map[string]HealthChecker
	// RateLimiter is built from Config when nil. Callers that set it own its
	// cleanup loop.
	RateLimiter *middleware.RateLimitMiddleware
}

// Server serves read-only analytics reports.
type Server struct {
	reports Reports
	checks  map[string]HealthChecker
	logger  *zap.Logger
	config  *config.Config
}

// NewServer constructs a new http.Handler with all routes registered and
// the middleware chain applied.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		reports: deps.Reports,
		checks:  deps.Checks,
		logger:  deps.Logger,
		config:  deps.Config,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		if deps.Gatherer != nil {
			mux.Handle(deps.Config.Metrics.Path, metrics.HandlerFor(deps.Gatherer))
		} else {
			mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
		}
	}

	// Reports
	mux.HandleFunc("/reports/customers", s.handleCustomers)
	mux.HandleFunc("/reports/products", s.handleProducts)
	mux.HandleFunc("/reports/inventory", s.handleInventory)
	mux.HandleFunc("/reports/funnel", s.handleFunnel)
	mux.HandleFunc("/reports/conversion", s.handleConversion)
	mux.HandleFunc("/reports/snapshot", s.handleSnapshot)

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger, deps.Metrics)
	}

	return middleware.Chain(mux,
		middleware.NewLoggingMiddleware(deps.Logger).Handler,
		middleware.NewRecoveryMiddleware(deps.Logger).Handler,
		middleware.NewAuthMiddleware(deps.Config.Auth, deps.Logger).Handler,
		limiter.Handler,
	)
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, c := range s.checks {
		if err := c.Health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			status[name] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	s.jsonStatus(w, code, status)
}

// ---- Reports ----

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.Customers(r.Context(), win)
	s.respond(w, r, rep, err)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	sort := r.URL.Query().Get("sort")
	switch sort {
	case "", insights.SortRevenue, insights.SortQuantity:
	default:
		s.errorResponse(w, fmt.Sprintf("unknown sort %q", sort), http.StatusBadRequest)
		return
	}
	rep, err := s.reports.Products(r.Context(), win, sort)
	s.respond(w, r, rep, err)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	rep, err := s.reports.Inventory(r.Context())
	s.respond(w, r, rep, err)
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.Funnel(r.Context(), win)
	s.respond(w, r, rep, err)
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.Conversion(r.Context(), win)
	s.respond(w, r, rep, err)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.Snapshot(r.Context(), win)
	s.respond(w, r, rep, err)
}

// ---- Helpers ----

func (s *Server) allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// window parses from, to and page_url. Bounds are RFC 3339 timestamps or
// dates; a date-only "to" covers the whole day.
func (s *Server) window(w http.ResponseWriter, r *http.Request) (models.Window, bool) {
	if !s.allowGet(w, r) {
		return models.Window{}, false
	}

	q := r.URL.Query()
	var win models.Window
	var err error
	if win.From, err = parseBound(q.Get("from"), false); err != nil {
		s.errorResponse(w, "invalid from: "+err.Error(), http.StatusBadRequest)
		return win, false
	}
	if win.To, err = parseBound(q.Get("to"), true); err != nil {
		s.errorResponse(w, "invalid to: "+err.Error(), http.StatusBadRequest)
		return win, false
	}
	win.PageURL = q.Get("page_url")

	if err := win.Validate(); err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return win, false
	}
	return win, true
}

func parseBound(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// respond writes rep or maps err to a status. Upstream failures are 502 and
// never come with partial data.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, rep any, err error) {
	if err == nil {
		s.jsonResponse(w, rep)
		return
	}

	var ferr *commerce.FetchError
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		return
	case errors.Is(err, insights.ErrNoProductCounter):
		s.errorResponse(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, "report timed out", http.StatusGatewayTimeout)
	case errors.As(err, &ferr):
		s.errorResponse(w, "commerce backend: "+err.Error(), http.StatusBadGateway)
	case errors.Is(err, events.ErrUnavailable), errors.Is(err, events.ErrMalformed):
		s.errorResponse(w, "event source: "+err.Error(), http.StatusBadGateway)
	default:
		s.logger.Error("report error", zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	s.jsonStatus(w, http.StatusOK, data)
}

func (s *Server) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.jsonStatus(w, code, map[string]string{"error": message})
}
