package insights

import (
	"sort"
	"strings"

	"github.com/radiusdt/shop-insights/internal/models"
)

// Stage is a canonical funnel stage.
type Stage string

const (
	StageProductView       Stage = "product_view"
	StageAddToCart         Stage = "add_to_cart"
	StageCartCreated       Stage = "cart_created"
	StageCheckoutStarted   Stage = "checkout_started"
	StageOrderPlaced       Stage = "order_placed"
	StagePaymentCaptured   Stage = "payment_captured"
	StageShipmentCreated   Stage = "shipment_created"
	StageDeliveryConfirmed Stage = "delivery_confirmed"
)

// CanonicalStages is the fixed funnel order.
var CanonicalStages = []Stage{
	StageProductView,
	StageAddToCart,
	StageCartCreated,
	StageCheckoutStarted,
	StageOrderPlaced,
	StagePaymentCaptured,
	StageShipmentCreated,
	StageDeliveryConfirmed,
}

// stageAliases maps source vocabularies onto canonical stages.
var stageAliases = map[string]Stage{
	"product_view":          StageProductView,
	"product_viewed":        StageProductView,
	"view_item":             StageProductView,
	"view":                  StageProductView,
	"page_view":             StageProductView,
	"pageview":              StageProductView,
	"add_to_cart":           StageAddToCart,
	"added_to_cart":         StageAddToCart,
	"product_added_to_cart": StageAddToCart,
	"cart_add":              StageAddToCart,
	"cart_created":          StageCartCreated,
	"cart_create":           StageCartCreated,
	"checkout_started":      StageCheckoutStarted,
	"begin_checkout":        StageCheckoutStarted,
	"checkout_start":        StageCheckoutStarted,
	"order_placed":          StageOrderPlaced,
	"order_completed":       StageOrderPlaced,
	"purchase":              StageOrderPlaced,
	"payment_captured":      StagePaymentCaptured,
	"payment_capture":       StagePaymentCaptured,
	"shipment_created":      StageShipmentCreated,
	"order_shipped":         StageShipmentCreated,
	"delivery_confirmed":    StageDeliveryConfirmed,
	"order_delivered":       StageDeliveryConfirmed,
}

// authoritativeSource is the single source trusted for each stage.
var authoritativeSource = map[Stage]models.Provenance{
	StageProductView:       models.ProvenanceSessionAnalytics,
	StageAddToCart:         models.ProvenanceEventTracker,
	StageCartCreated:       models.ProvenanceCommerceBackend,
	StageCheckoutStarted:   models.ProvenanceEventTracker,
	StageOrderPlaced:       models.ProvenanceCommerceBackend,
	StagePaymentCaptured:   models.ProvenanceCommerceBackend,
	StageShipmentCreated:   models.ProvenanceCommerceBackend,
	StageDeliveryConfirmed: models.ProvenanceCommerceBackend,
}

// fallbackOrder is used when the authoritative source is silent.
var fallbackOrder = []models.Provenance{
	models.ProvenanceCommerceBackend,
	models.ProvenanceEventTracker,
	models.ProvenanceSessionAnalytics,
}

// CanonicalStage maps a source stage name to a canonical stage. Matching
// ignores case, surrounding space, and the choice of '-', ' ' or '_'.
func CanonicalStage(name string) (Stage, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	s, ok := stageAliases[key]
	return s, ok
}

// FunnelStep is one displayed stage.
type FunnelStep struct {
	Stage  Stage             `json:"stage"`
	Count  int64             `json:"count"`
	Source models.Provenance `json:"source,omitempty"`
	// PassRate and DropRate relate this step to the previous displayed step
	// and are nil on the first step.
	PassRate *Rate `json:"pass_rate,omitempty"`
	DropRate *Rate `json:"drop_rate,omitempty"`
	// Alternatives holds counts from sources that were not selected.
	Alternatives map[models.Provenance]int64 `json:"alternatives,omitempty"`
}

// Funnel is the composed cross-source funnel.
type Funnel struct {
	Steps             []FunnelStep `json:"steps"`
	OverallConversion Rate         `json:"overall_conversion"`
	// Unmapped lists "source:stage" names with no canonical stage.
	Unmapped []string `json:"unmapped,omitempty"`
}

// ComposeFunnel merges provenance-tagged stage counts into one funnel.
//
// Counts are never summed across sources. Each stage takes the count of its
// authoritative source, or of the first reporting source in fallbackOrder.
// Several aliases of one stage inside one source resolve to their maximum.
// Zero stages are hidden except the first; an all-zero funnel has no steps.
func ComposeFunnel(sources []models.FunnelStepSource) *Funnel {
	reported := make(map[Stage]map[models.Provenance]int64)
	unmapped := make(map[string]struct{})

	for _, src := range sources {
		stage, ok := CanonicalStage(src.Stage)
		if !ok {
			unmapped[string(src.Source)+":"+src.Stage] = struct{}{}
			continue
		}
		n := src.Count
		if n < 0 {
			n = 0
		}
		bySource, ok := reported[stage]
		if !ok {
			bySource = make(map[models.Provenance]int64)
			reported[stage] = bySource
		}
		if cur, seen := bySource[src.Source]; !seen || n > cur {
			bySource[src.Source] = n
		}
	}

	type candidate struct {
		step FunnelStep
		show bool
	}
	candidates := make([]candidate, len(CanonicalStages))
	anyNonZero := false
	for i, stage := range CanonicalStages {
		step := selectSource(stage, reported[stage])
		candidates[i] = candidate{step: step, show: i == 0 || step.Count > 0}
		if step.Count > 0 {
			anyNonZero = true
		}
	}

	f := &Funnel{Steps: []FunnelStep{}, OverallConversion: UndefinedRate()}
	if len(unmapped) > 0 {
		for k := range unmapped {
			f.Unmapped = append(f.Unmapped, k)
		}
		sort.Strings(f.Unmapped)
	}
	if !anyNonZero {
		return f
	}

	for _, c := range candidates {
		if !c.show {
			continue
		}
		step := c.step
		if n := len(f.Steps); n > 0 {
			prev := f.Steps[n-1].Count
			pass := Ratio(float64(step.Count), float64(prev))
			drop := pass.Complement()
			step.PassRate = &pass
			step.DropRate = &drop
		}
		f.Steps = append(f.Steps, step)
	}

	if len(f.Steps) >= 2 {
		first, last := f.Steps[0].Count, f.Steps[len(f.Steps)-1].Count
		f.OverallConversion = Ratio(float64(last), float64(first))
	}
	return f
}

func selectSource(stage Stage, bySource map[models.Provenance]int64) FunnelStep {
	step := FunnelStep{Stage: stage}
	if len(bySource) == 0 {
		return step
	}

	chosen, ok := authoritativeSource[stage], false
	if _, ok = bySource[chosen]; !ok {
		for _, p := range fallbackOrder {
			if _, ok = bySource[p]; ok {
				chosen = p
				break
			}
		}
	}
	if !ok {
		// Only unknown provenances reported; pick deterministically.
		keys := make([]string, 0, len(bySource))
		for p := range bySource {
			keys = append(keys, string(p))
		}
		sort.Strings(keys)
		chosen = models.Provenance(keys[0])
	}

	step.Source = chosen
	step.Count = bySource[chosen]
	for p, n := range bySource {
		if p == chosen {
			continue
		}
		if step.Alternatives == nil {
			step.Alternatives = make(map[models.Provenance]int64)
		}
		step.Alternatives[p] = n
	}
	return step
}

// CommerceStageCounts derives transactional stage counts from an order set
// and a cart count. A negative cart count means unknown and is omitted.
func CommerceStageCounts(orders []models.Order, carts int) []models.FunnelStepSource {
	var placed, captured, shipped, delivered int64
	for i := range orders {
		o := &orders[i]
		placed++
		if o.PaymentStatus == models.PaymentCaptured {
			captured++
		}
		switch o.FulfillmentStatus {
		case models.FulfillmentShipped:
			shipped++
		case models.FulfillmentDelivered:
			shipped++
			delivered++
		}
	}

	p := models.ProvenanceCommerceBackend
	out := []models.FunnelStepSource{
		{Stage: string(StageOrderPlaced), Count: placed, Source: p},
		{Stage: string(StagePaymentCaptured), Count: captured, Source: p},
		{Stage: string(StageShipmentCreated), Count: shipped, Source: p},
		{Stage: string(StageDeliveryConfirmed), Count: delivered, Source: p},
	}
	if carts >= 0 {
		out = append(out, models.FunnelStepSource{Stage: string(StageCartCreated), Count: int64(carts), Source: p})
	}
	return out
}
