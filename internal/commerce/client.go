package commerce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/radiusdt/shop-insights/internal/config"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum accepted page body (32MB).
const maxResponseSize = 32 * 1024 * 1024

// Client issues page requests against the commerce backend's admin API.
type Client struct {
	cfg        config.CommerceConfig
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a client. Per-request timeouts are applied through the
// request context so that retries each get a full budget.
func NewClient(cfg config.CommerceConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		metrics:    m,
	}
}

// GetPage fetches one page of collection and returns the raw body. Transport
// errors, 429 and 5xx responses are retried with exponential backoff up to
// MaxRetries times; everything else fails immediately.
func (c *Client) GetPage(ctx context.Context, collection string, q Query, offset, limit int) ([]byte, error) {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, collection, q.values(offset, limit).Encode())

	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&FetchError{Collection: collection, Offset: offset, Err: err})
		}
		b, ferr := c.do(ctx, collection, offset, u)
		if ferr != nil {
			if ferr.retryable() && ctx.Err() == nil {
				return ferr
			}
			return backoff.Permanent(ferr)
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying page request",
			zap.String("collection", collection),
			zap.Int("offset", offset),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		c.metrics.RecordRetry(collection)
	}

	if err := backoff.RetryNotify(op, c.retryPolicy(ctx), notify); err != nil {
		var ferr *FetchError
		if errors.As(err, &ferr) {
			return nil, ferr
		}
		return nil, &FetchError{Collection: collection, Offset: offset, Err: err}
	}
	return body, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if c.cfg.RetryInitial > 0 {
		b.InitialInterval = c.cfg.RetryInitial
	}
	if c.cfg.RetryMax > 0 {
		b.MaxInterval = c.cfg.RetryMax
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, collection string, offset int, u string) ([]byte, *FetchError) {
	reqCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Collection: collection, Offset: offset, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(collection, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{Collection: collection, Offset: offset, Err: ctxErr}
		}
		return nil, &FetchError{Collection: collection, Offset: offset, Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(collection, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &FetchError{Collection: collection, Offset: offset, Err: fmt.Errorf("%w: read body: %v", ErrUnreachable, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Collection: collection,
			Offset:     offset,
			StatusCode: resp.StatusCode,
			Err:        ErrBadStatus,
		}
	}

	return body, nil
}
