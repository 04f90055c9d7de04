package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment state reported by the commerce backend.
type PaymentStatus string

const (
	PaymentNotPaid    PaymentStatus = "not_paid"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentCanceled   PaymentStatus = "canceled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentNotPaid, PaymentAuthorized, PaymentCaptured, PaymentCanceled, PaymentRefunded:
		return true
	}
	return false
}

// FulfillmentStatus is the shipping state reported by the commerce backend.
type FulfillmentStatus string

const (
	FulfillmentNotFulfilled FulfillmentStatus = "not_fulfilled"
	FulfillmentFulfilled    FulfillmentStatus = "fulfilled"
	FulfillmentShipped      FulfillmentStatus = "shipped"
	FulfillmentDelivered    FulfillmentStatus = "delivered"
	FulfillmentCanceled     FulfillmentStatus = "canceled"
)

// Valid reports whether s is a known fulfillment status.
func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentNotFulfilled, FulfillmentFulfilled, FulfillmentShipped, FulfillmentDelivered, FulfillmentCanceled:
		return true
	}
	return false
}

// ===========================================
// ORDER
// ===========================================

// Order is a single commerce transaction. The engine only ever reads orders.
type Order struct {
	ID                string            `json:"id"`
	CustomerID        *string           `json:"customer_id"`
	Total             decimal.Decimal   `json:"total"`
	CurrencyCode      string            `json:"currency_code"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []LineItem        `json:"items"`
}

// LineItem is one line of an order. UnitPrice and Total are the values
// recorded at the time of sale; either may be missing.
type LineItem struct {
	ID        string              `json:"id,omitempty"`
	ProductID string              `json:"product_id"`
	VariantID string              `json:"variant_id,omitempty"`
	Title     string              `json:"title,omitempty"`
	Quantity  int                 `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	Total     decimal.NullDecimal `json:"total"`
}

// IsGuest reports whether the order has no customer attached.
func (o *Order) IsGuest() bool {
	return o.CustomerID == nil || *o.CustomerID == ""
}

// Customer returns the customer id, or "" for guest orders.
func (o *Order) Customer() string {
	if o.IsGuest() {
		return ""
	}
	return *o.CustomerID
}

// Normalize fills defaults for optional fields that the upstream may omit.
func (o *Order) Normalize() {
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentNotPaid
	}
	if o.FulfillmentStatus == "" {
		o.FulfillmentStatus = FulfillmentNotFulfilled
	}
	if o.CustomerID != nil && *o.CustomerID == "" {
		o.CustomerID = nil
	}
}

// Validate checks the fields the aggregators depend on. Unrecognized
// statuses are not errors: such orders count toward revenue and customers
// but toward no status-based funnel stage.
func (o *Order) Validate() error {
	if o == nil {
		return errors.New("order is nil")
	}
	if o.ID == "" {
		return errors.New("order id is required")
	}
	if o.CreatedAt.IsZero() {
		return fmt.Errorf("order %s: created_at is required", o.ID)
	}
	for i, li := range o.Items {
		if li.Quantity < 0 {
			return fmt.Errorf("order %s: line %d has negative quantity", o.ID, i)
		}
	}
	return nil
}
