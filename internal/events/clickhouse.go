package events

import (
	"context"
	"fmt"
	"time"

	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"go.uber.org/zap"
)

// ClickHouseTracker reads on-site tracker events from a ClickHouse table with
// columns (event_name, product_id, page_url, timestamp).
type ClickHouseTracker struct {
	db      Queryer
	table   string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClickHouseTracker creates a tracker source over db.
func NewClickHouseTracker(db Queryer, table string, logger *zap.Logger, m *metrics.Metrics) (*ClickHouseTracker, error) {
	if table == "" {
		table = "events"
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid event table name %q", table)
	}
	return &ClickHouseTracker{db: db, table: table, logger: logger, metrics: m}, nil
}

func (t *ClickHouseTracker) Provenance() models.Provenance {
	return models.ProvenanceEventTracker
}

// StageCounts counts events per event name.
func (t *ClickHouseTracker) StageCounts(ctx context.Context, w models.Window) ([]models.FunnelStepSource, error) {
	f := t.windowFilter(w)
	query := "SELECT event_name, toInt64(count()) AS n FROM " + t.table + f.where() + " GROUP BY event_name"

	counts, err := t.query(ctx, query, f.args)
	if err != nil {
		return nil, err
	}
	return steps(counts, models.ProvenanceEventTracker), nil
}

// ProductCounts counts events of kind per product id.
func (t *ClickHouseTracker) ProductCounts(ctx context.Context, kind models.ProductCountKind, w models.Window) (map[string]int64, error) {
	names := productEventNames[kind]
	if len(names) == 0 {
		return nil, fmt.Errorf("unknown product count kind %q", kind)
	}

	f := t.windowFilter(w)
	f.in("event_name", names)
	f.raw("product_id != ''")
	query := "SELECT product_id, toInt64(count()) AS n FROM " + t.table + f.where() + " GROUP BY product_id"

	return t.query(ctx, query, f.args)
}

func (t *ClickHouseTracker) windowFilter(w models.Window) *filter {
	f := &filter{}
	if !w.From.IsZero() {
		f.add("timestamp >= %s", w.From.UTC())
	}
	if !w.To.IsZero() {
		f.add("timestamp <= %s", w.To.UTC())
	}
	if w.PageURL != "" {
		f.add("page_url = %s", w.PageURL)
	}
	return f
}

func (t *ClickHouseTracker) query(ctx context.Context, query string, args []any) (map[string]int64, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("%w: clickhouse: %v", ErrUnavailable, err)
		t.metrics.RecordEventQuery(string(models.ProvenanceEventTracker), err)
		return nil, err
	}

	counts, err := scanCounts(rows)
	t.metrics.RecordEventQuery(string(models.ProvenanceEventTracker), err)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("tracker query",
		zap.Int("keys", len(counts)),
		zap.Duration("took", time.Since(start)),
	)
	return counts, nil
}
