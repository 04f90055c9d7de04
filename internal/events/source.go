// Package events reads pre-aggregated event counts from the analytics
// collaborators: funnel stage counts and per-product interaction counts.
package events

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/radiusdt/shop-insights/internal/models"
)

var (
	// ErrUnavailable indicates the collaborator could not be queried.
	ErrUnavailable = errors.New("events: source unavailable")
	// ErrMalformed indicates a response or row that does not match the schema.
	ErrMalformed = errors.New("events: malformed response")
)

// StageSource reports funnel stage counts in its own stage vocabulary.
type StageSource interface {
	Provenance() models.Provenance
	StageCounts(ctx context.Context, w models.Window) ([]models.FunnelStepSource, error)
}

// ProductCounter reports per-product interaction counts keyed by the
// collaborator's own product ids.
type ProductCounter interface {
	ProductCounts(ctx context.Context, kind models.ProductCountKind, w models.Window) (map[string]int64, error)
}

// productEventNames lists the tracker event names counted for each kind.
var productEventNames = map[models.ProductCountKind][]string{
	models.ProductViews:    {"product_viewed", "product_view", "view_item"},
	models.ProductClicks:   {"product_clicked", "product_click", "select_item"},
	models.ProductCartAdds: {"product_added_to_cart", "add_to_cart"},
}


// steps converts a stage→count map into tagged step sources ordered by stage.
func steps(counts map[string]int64, p models.Provenance) []models.FunnelStepSource {
	out := make([]models.FunnelStepSource, 0, len(counts))
	for stage, n := range counts {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			continue
		}
		out = append(out, models.FunnelStepSource{Stage: stage, Count: n, Source: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
