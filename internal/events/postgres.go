package events

import (
	"context"
	"fmt"

	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"go.uber.org/zap"
)

// SessionWarehouse reads daily per-stage visitor counts exported by the
// session-analytics platform into session_stage_counts(day, stage, page_url,
// visitors).
type SessionWarehouse struct {
	db      Queryer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSessionWarehouse creates a session-analytics source over db.
func NewSessionWarehouse(db Queryer, logger *zap.Logger, m *metrics.Metrics) *SessionWarehouse {
	return &SessionWarehouse{db: db, logger: logger, metrics: m}
}

func (s *SessionWarehouse) Provenance() models.Provenance {
	return models.ProvenanceSessionAnalytics
}

// StageCounts sums visitors per stage over the days covered by w.
func (s *SessionWarehouse) StageCounts(ctx context.Context, w models.Window) ([]models.FunnelStepSource, error) {
	f := &filter{numbered: true}
	if !w.From.IsZero() {
		f.add("day >= %s::date", w.From.UTC())
	}
	if !w.To.IsZero() {
		f.add("day <= %s::date", w.To.UTC())
	}
	if w.PageURL != "" {
		f.add("page_url = %s", w.PageURL)
	}
	query := "SELECT stage, SUM(visitors)::bigint FROM session_stage_counts" + f.where() + " GROUP BY stage"

	rows, err := s.db.QueryContext(ctx, query, f.args...)
	if err != nil {
		err = fmt.Errorf("%w: postgres: %v", ErrUnavailable, err)
		s.metrics.RecordEventQuery(string(models.ProvenanceSessionAnalytics), err)
		return nil, err
	}

	counts, err := scanCounts(rows)
	s.metrics.RecordEventQuery(string(models.ProvenanceSessionAnalytics), err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("session stage counts", zap.Int("stages", len(counts)))
	return steps(counts, models.ProvenanceSessionAnalytics), nil
}
