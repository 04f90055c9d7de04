package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomer_DecodeGroup(t *testing.T) {
	tests := []struct {
		name     string
		customer Customer
		want     GroupRef
	}{
		{
			name:     "prefixed metadata is an id",
			customer: Customer{Metadata: map[string]any{"customer_group": "cusgroup_01H"}},
			want:     GroupID("cusgroup_01H"),
		},
		{
			name:     "other metadata is a name",
			customer: Customer{Metadata: map[string]any{"customer_group": " Wholesale "}},
			want:     GroupName("Wholesale"),
		},
		{
			name:     "embedded group wins",
			customer: Customer{Metadata: map[string]any{"customer_group": "cusgroup_x"}, Groups: []CustomerGroup{{ID: "g1", Name: "VIP"}}},
			want:     GroupName("VIP"),
		},
		{
			name:     "embedded group without name",
			customer: Customer{Groups: []CustomerGroup{{ID: "g1"}}},
			want:     GroupID("g1"),
		},
		{
			name:     "non-string metadata ignored",
			customer: Customer{Metadata: map[string]any{"customer_group": 42}},
		},
		{
			name:     "blank metadata",
			customer: Customer{Metadata: map[string]any{"customer_group": "  "}},
		},
		{name: "nothing at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.customer
			c.DecodeGroup("cusgroup_")
			assert.Equal(t, tt.want, c.Group)
		})
	}
}

func TestCustomer_NameAndDefaults(t *testing.T) {
	c := Customer{ID: "c1", FirstName: "Ada", LastName: ""}
	assert.Equal(t, "Ada", c.Name())

	c.Normalize()
	assert.NotNil(t, c.Metadata)
	assert.NoError(t, c.Validate())
	assert.Error(t, (&Customer{}).Validate())
}

func TestGroupRef_IsZero(t *testing.T) {
	assert.True(t, GroupRef{}.IsZero())
	assert.True(t, GroupID("").IsZero())
	assert.False(t, GroupName("Retail").IsZero())
}

func TestNewGroupLookup(t *testing.T) {
	lookup := NewGroupLookup([]CustomerGroup{
		{ID: "g1", Name: "VIP"},
		{ID: "g2"},
		{Name: "orphan"},
	})
	assert.Equal(t, GroupLookup{"g1": "VIP"}, lookup)
}

func TestOrder_DecodeNormalizeValidate(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "order_1",
		"customer_id": "",
		"total": "100.50",
		"created_at": "2024-06-01T10:00:00Z",
		"items": [{"product_id": "P1", "quantity": 2, "unit_price": null}]
	}`), &o))

	o.Normalize()
	require.NoError(t, o.Validate())
	assert.True(t, o.IsGuest())
	assert.Equal(t, "", o.Customer())
	assert.Equal(t, PaymentNotPaid, o.PaymentStatus)
	assert.Equal(t, FulfillmentNotFulfilled, o.FulfillmentStatus)
	assert.Equal(t, "100.5", o.Total.String())
	assert.False(t, o.Items[0].UnitPrice.Valid)
}

func TestOrder_Validate(t *testing.T) {
	valid := func() Order {
		return Order{
			ID:                "o",
			CreatedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			PaymentStatus:     PaymentCaptured,
			FulfillmentStatus: FulfillmentShipped,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Order)
	}{
		{name: "missing id", mutate: func(o *Order) { o.ID = "" }},
		{name: "missing created_at", mutate: func(o *Order) { o.CreatedAt = time.Time{} }},
		{name: "negative quantity", mutate: func(o *Order) { o.Items = []LineItem{{ProductID: "P", Quantity: -1}} }},
	}

	ok := valid()
	assert.NoError(t, ok.Validate())

	unknown := valid()
	unknown.PaymentStatus, unknown.FulfillmentStatus = "partially_paid", "returned"
	assert.NoError(t, unknown.Validate(), "unrecognized statuses are kept")
	assert.False(t, unknown.PaymentStatus.Valid())
	assert.False(t, unknown.FulfillmentStatus.Valid())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid()
			tt.mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
}

func TestProductVariant_Validate(t *testing.T) {
	assert.NoError(t, (&ProductVariant{ID: "v", ProductID: "p"}).Validate())
	assert.Error(t, (&ProductVariant{ID: "v"}).Validate())
	assert.Error(t, (&ProductVariant{ProductID: "p"}).Validate())
}

func TestWindow(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

	assert.True(t, Window{}.IsOpen())
	assert.True(t, Window{}.Contains(day(1)))

	w := Window{From: day(2), To: day(4)}
	assert.NoError(t, w.Validate())
	assert.False(t, w.Contains(day(1)))
	assert.True(t, w.Contains(day(2)), "bounds are inclusive")
	assert.True(t, w.Contains(day(4)))
	assert.False(t, w.Contains(day(5)))

	assert.Error(t, Window{From: day(4), To: day(2)}.Validate())
}

func TestProvenanceAndKinds(t *testing.T) {
	p, err := ParseProvenance("event_tracker")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceEventTracker, p)

	_, err = ParseProvenance("ga4")
	assert.Error(t, err)

	assert.True(t, ProductCartAdds.Valid())
	assert.False(t, ProductCountKind("purchases").Valid())
}
