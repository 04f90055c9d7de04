package insights

import (
	"testing"

	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func src(p models.Provenance, stage string, n int64) models.FunnelStepSource {
	return models.FunnelStepSource{Stage: stage, Count: n, Source: p}
}

const (
	session = models.ProvenanceSessionAnalytics
	tracker = models.ProvenanceEventTracker
	backend = models.ProvenanceCommerceBackend
)

func stages(f *Funnel) []Stage {
	out := make([]Stage, len(f.Steps))
	for i, s := range f.Steps {
		out[i] = s.Stage
	}
	return out
}

func TestComposeFunnel_OnlyAnchorShown(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "view", 1000),
		src(tracker, "add_to_cart", 0),
		src(backend, "order_placed", 0),
	})

	require.Len(t, f.Steps, 1)
	assert.Equal(t, StageProductView, f.Steps[0].Stage)
	assert.Equal(t, int64(1000), f.Steps[0].Count)
	assert.Nil(t, f.Steps[0].PassRate)
	assert.Nil(t, f.Steps[0].DropRate)
	assert.Equal(t, RateUndefined, f.OverallConversion.State())
}

func TestComposeFunnel_AllZeroRendersNothing(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "view", 0),
		src(backend, "order_placed", 0),
	})
	assert.Empty(t, f.Steps)
	assert.Equal(t, RateUndefined, f.OverallConversion.State())

	assert.Empty(t, ComposeFunnel(nil).Steps)
}

func TestComposeFunnel_Rates(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "page_view", 1000),
		src(tracker, "add_to_cart", 200),
		src(tracker, "checkout_started", 0),
		src(backend, "order_placed", 50),
	})

	assert.Equal(t, []Stage{StageProductView, StageAddToCart, StageOrderPlaced}, stages(f))

	cart := f.Steps[1]
	require.NotNil(t, cart.PassRate)
	assert.InDelta(t, 0.2, cart.PassRate.Value(), 1e-9)
	assert.InDelta(t, 0.8, cart.DropRate.Value(), 1e-9)

	placed := f.Steps[2]
	assert.InDelta(t, 0.25, placed.PassRate.Value(), 1e-9)
	assert.InDelta(t, 0.05, f.OverallConversion.Value(), 1e-9)
}

func TestComposeFunnel_ZeroAnchorMakesNextRateUndefined(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(tracker, "add_to_cart", 30),
		src(backend, "order_placed", 10),
	})

	require.Equal(t, []Stage{StageProductView, StageAddToCart, StageOrderPlaced}, stages(f))
	assert.Equal(t, int64(0), f.Steps[0].Count)

	pass := f.Steps[1].PassRate
	require.NotNil(t, pass)
	assert.Equal(t, RateUndefined, pass.State(), "not 0%")
	assert.Equal(t, RateUndefined, f.Steps[1].DropRate.State())
	assert.True(t, f.Steps[2].PassRate.IsDefined())
	assert.Equal(t, RateUndefined, f.OverallConversion.State())
}

func TestComposeFunnel_NeverSumsAcrossSources(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "product_viewed", 900),
		src(tracker, "product_viewed", 1200),
		src(tracker, "add_to_cart", 100),
		src(session, "add_to_cart", 140),
		src(tracker, "purchase", 30),
		src(backend, "order_placed", 25),
	})

	view := f.Steps[0]
	assert.Equal(t, int64(900), view.Count)
	assert.Equal(t, session, view.Source)
	assert.Equal(t, map[models.Provenance]int64{tracker: 1200}, view.Alternatives)

	cart := f.Steps[1]
	assert.Equal(t, int64(100), cart.Count)
	assert.Equal(t, tracker, cart.Source)

	placed := f.Steps[2]
	assert.Equal(t, StageOrderPlaced, placed.Stage)
	assert.Equal(t, int64(25), placed.Count)
	assert.Equal(t, backend, placed.Source)
}

func TestComposeFunnel_FallbackPrecedence(t *testing.T) {
	// product_view's authoritative source is session analytics; when it is
	// silent the commerce backend is preferred over the tracker.
	f := ComposeFunnel([]models.FunnelStepSource{
		src(tracker, "view", 500),
		src(backend, "view", 400),
		src(session, "checkout_started", 80),
	})

	require.Len(t, f.Steps, 2)
	assert.Equal(t, int64(400), f.Steps[0].Count)
	assert.Equal(t, backend, f.Steps[0].Source)
	// Single reporter: taken as-is.
	assert.Equal(t, StageCheckoutStarted, f.Steps[1].Stage)
	assert.Equal(t, session, f.Steps[1].Source)
	assert.Equal(t, int64(80), f.Steps[1].Count)
}

func TestComposeFunnel_AliasesWithinSourceTakeMax(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "view", 700),
		src(session, "Page View", 750),
		src(session, "product-viewed", 600),
	})

	require.Len(t, f.Steps, 1)
	assert.Equal(t, int64(750), f.Steps[0].Count)
}

func TestComposeFunnel_UnmappedStages(t *testing.T) {
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "view", 10),
		src(tracker, "wishlist_add", 4),
		src(tracker, "wishlist_add", 5),
	})
	assert.Equal(t, []string{"event_tracker:wishlist_add"}, f.Unmapped)
}

func TestComposeFunnel_PassRateAboveOne(t *testing.T) {
	// Different sources can disagree; the rate is reported honestly.
	f := ComposeFunnel([]models.FunnelStepSource{
		src(session, "view", 10),
		src(tracker, "add_to_cart", 15),
	})
	require.Len(t, f.Steps, 2)
	assert.InDelta(t, 1.5, f.Steps[1].PassRate.Value(), 1e-9)
	assert.InDelta(t, -0.5, f.Steps[1].DropRate.Value(), 1e-9)
}

func TestCanonicalStage(t *testing.T) {
	tests := map[string]Stage{
		"view":             StageProductView,
		" Product_Viewed ": StageProductView,
		"begin-checkout":   StageCheckoutStarted,
		"order shipped":    StageShipmentCreated,
		"order_delivered":  StageDeliveryConfirmed,
		"cart_created":     StageCartCreated,
	}
	for in, want := range tests {
		got, ok := CanonicalStage(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := CanonicalStage("refund_requested")
	assert.False(t, ok)
}

func TestCommerceStageCounts(t *testing.T) {
	mk := func(p models.PaymentStatus, f models.FulfillmentStatus) models.Order {
		o := order("o", "A", 1, daysAgo(1))
		o.PaymentStatus = p
		o.FulfillmentStatus = f
		return o
	}
	orders := []models.Order{
		mk(models.PaymentCaptured, models.FulfillmentDelivered),
		mk(models.PaymentCaptured, models.FulfillmentShipped),
		mk(models.PaymentAuthorized, models.FulfillmentNotFulfilled),
		mk(models.PaymentRefunded, models.FulfillmentCanceled),
		mk("partially_refunded", "returned"),
	}

	counts := map[string]int64{}
	for _, s := range CommerceStageCounts(orders, 9) {
		assert.Equal(t, backend, s.Source)
		counts[s.Stage] = s.Count
	}
	assert.Equal(t, map[string]int64{
		"order_placed":       5,
		"payment_captured":   2,
		"shipment_created":   2,
		"delivery_confirmed": 1,
		"cart_created":       9,
	}, counts)

	for _, s := range CommerceStageCounts(orders, -1) {
		assert.NotEqual(t, string(StageCartCreated), s.Stage)
	}
}
