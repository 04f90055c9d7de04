package insights

import (
	"time"

	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func daysAgo(d int) time.Time {
	return testNow.Add(-time.Duration(d) * 24 * time.Hour)
}

func order(id, customer string, total int64, created time.Time, items ...models.LineItem) models.Order {
	o := models.Order{
		ID:                id,
		Total:             decimal.NewFromInt(total),
		CurrencyCode:      "usd",
		PaymentStatus:     models.PaymentCaptured,
		FulfillmentStatus: models.FulfillmentNotFulfilled,
		CreatedAt:         created,
		Items:             items,
	}
	if customer != "" {
		o.CustomerID = strPtr(customer)
	}
	return o
}

// line is an unpriced line item.
func line(product string, qty int) models.LineItem {
	return models.LineItem{ProductID: product, Quantity: qty}
}

func pricedLine(product string, qty int, unit string) models.LineItem {
	return models.LineItem{
		ProductID: product,
		Quantity:  qty,
		UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString(unit)),
	}
}

func totalLine(product string, qty int, total string) models.LineItem {
	return models.LineItem{
		ProductID: product,
		Quantity:  qty,
		Total:     decimal.NewNullDecimal(decimal.RequireFromString(total)),
	}
}

func customer(id string, ref models.GroupRef) models.Customer {
	return models.Customer{ID: id, FirstName: "C", LastName: id, Metadata: map[string]any{}, Group: ref}
}
