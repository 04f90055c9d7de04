package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"go.uber.org/zap"
)

const maxResponseSize = 4 * 1024 * 1024

// HTTPSource reads flat count objects from the event-analytics HTTP
// collaborator. It serves both stage and product counts.
type HTTPSource struct {
	baseURL    string
	token      string
	provenance models.Provenance
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewHTTPSource creates an HTTP collaborator client.
func NewHTTPSource(cfg config.AnalyticsConfig, logger *zap.Logger, m *metrics.Metrics) (*HTTPSource, error) {
	p, err := models.ParseProvenance(cfg.Provenance)
	if err != nil {
		return nil, err
	}
	if p == models.ProvenanceCommerceBackend {
		return nil, fmt.Errorf("analytics collaborator cannot report as %s", p)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		provenance: p,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}, nil
}

func (s *HTTPSource) Provenance() models.Provenance {
	return s.provenance
}

// StageCounts calls GET /funnel.
func (s *HTTPSource) StageCounts(ctx context.Context, w models.Window) ([]models.FunnelStepSource, error) {
	counts, err := s.get(ctx, "/funnel", windowParams(w))
	s.metrics.RecordEventQuery(string(s.provenance), err)
	if err != nil {
		return nil, err
	}
	return steps(counts, s.provenance), nil
}

// ProductCounts calls GET /products/{kind}.
func (s *HTTPSource) ProductCounts(ctx context.Context, kind models.ProductCountKind, w models.Window) (map[string]int64, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown product count kind %q", kind)
	}
	counts, err := s.get(ctx, "/products/"+string(kind), windowParams(w))
	s.metrics.RecordEventQuery(string(s.provenance), err)
	return counts, err
}

func (s *HTTPSource) get(ctx context.Context, path string, params url.Values) (map[string]int64, error) {
	u := s.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrUnavailable, path, resp.StatusCode)
	}

	var counts map[string]int64
	if err := json.Unmarshal(body, &counts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	for key, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: %s: negative count for %q", ErrMalformed, path, key)
		}
	}
	if counts == nil {
		counts = map[string]int64{}
	}

	s.logger.Debug("fetched event counts",
		zap.String("path", path),
		zap.Int("keys", len(counts)),
	)
	return counts, nil
}

func windowParams(w models.Window) url.Values {
	v := url.Values{}
	if !w.From.IsZero() {
		v.Set("from", w.From.UTC().Format(time.RFC3339Nano))
	}
	if !w.To.IsZero() {
		v.Set("to", w.To.UTC().Format(time.RFC3339Nano))
	}
	if w.PageURL != "" {
		v.Set("page_url", w.PageURL)
	}
	return v
}
