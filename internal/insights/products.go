package insights

import (
	"sort"

	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProductMetrics is the sales performance of one product.
type ProductMetrics struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title,omitempty"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	// OrderLines counts line items, not distinct orders.
	OrderLines          int     `json:"order_lines"`
	AvgUnitsPerPurchase float64 `json:"avg_units_per_purchase"`
}

// ProductReport is one fold of order lines. Sorted views and revenue shares
// are projections of it; the revenue total always matches the rows held.
type ProductReport struct {
	rows  []ProductMetrics
	index map[string]int
	total decimal.Decimal
	// SkippedLines counts lines without a product id.
	SkippedLines int
}

// NewProductReport builds a report over rows and computes its revenue total.
func NewProductReport(rows []ProductMetrics) *ProductReport {
	r := &ProductReport{
		rows:  make([]ProductMetrics, len(rows)),
		index: make(map[string]int, len(rows)),
		total: decimal.Zero,
	}
	copy(r.rows, rows)
	for i, row := range r.rows {
		r.index[row.ProductID] = i
		r.total = r.total.Add(row.Revenue)
	}
	return r
}

// AggregateProducts folds the line items of orders into per-product metrics.
//
// Line revenue is the recorded line total, else quantity times the recorded
// unit price. Lines with neither share the part of the order total not covered
// by priced lines, in proportion to their quantity.
func AggregateProducts(orders []models.Order) *ProductReport {
	folds := make(map[string]*ProductMetrics)
	var order []string
	skipped := 0

	for i := range orders {
		o := &orders[i]
		revenues := lineRevenues(o)
		for j, li := range o.Items {
			if li.ProductID == "" {
				skipped++
				continue
			}
			m, ok := folds[li.ProductID]
			if !ok {
				m = &ProductMetrics{ProductID: li.ProductID, Revenue: decimal.Zero}
				folds[li.ProductID] = m
				order = append(order, li.ProductID)
			}
			if m.Title == "" {
				m.Title = li.Title
			}
			m.Quantity += int64(li.Quantity)
			m.Revenue = m.Revenue.Add(revenues[j])
			m.OrderLines++
		}
	}

	rows := make([]ProductMetrics, 0, len(order))
	for _, id := range order {
		m := folds[id]
		if m.OrderLines > 0 {
			m.AvgUnitsPerPurchase = float64(m.Quantity) / float64(m.OrderLines)
		}
		rows = append(rows, *m)
	}

	r := NewProductReport(rows)
	r.SkippedLines = skipped
	return r
}

// lineRevenues returns the revenue attributed to each line of o.
func lineRevenues(o *models.Order) []decimal.Decimal {
	out := make([]decimal.Decimal, len(o.Items))
	priced := decimal.Zero
	var unpricedQty int64

	for i, li := range o.Items {
		switch {
		case li.Total.Valid:
			out[i] = li.Total.Decimal
		case li.UnitPrice.Valid:
			out[i] = li.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(li.Quantity)))
		default:
			out[i] = decimal.Zero
			unpricedQty += int64(li.Quantity)
			continue
		}
		priced = priced.Add(out[i])
	}

	if unpricedQty == 0 {
		return out
	}
	remainder := o.Total.Sub(priced)
	if !remainder.IsPositive() {
		return out
	}
	qty := decimal.NewFromInt(unpricedQty)
	for i, li := range o.Items {
		if li.Total.Valid || li.UnitPrice.Valid {
			continue
		}
		out[i] = remainder.Mul(decimal.NewFromInt(int64(li.Quantity))).Div(qty)
	}
	return out
}

// Rows returns the rows in fold order.
func (r *ProductReport) Rows() []ProductMetrics {
	return append([]ProductMetrics(nil), r.rows...)
}

// Len returns the number of products.
func (r *ProductReport) Len() int {
	return len(r.rows)
}

// Get returns the metrics of one product.
func (r *ProductReport) Get(productID string) (ProductMetrics, bool) {
	i, ok := r.index[productID]
	if !ok {
		return ProductMetrics{}, false
	}
	return r.rows[i], true
}

// TotalRevenue is the revenue sum over the rows of this report.
func (r *ProductReport) TotalRevenue() decimal.Decimal {
	return r.total
}

// ByRevenue returns rows sorted by revenue, highest first.
func (r *ProductReport) ByRevenue() []ProductMetrics {
	rows := r.Rows()
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Revenue.Cmp(rows[j].Revenue); c != 0 {
			return c > 0
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows
}

// ByQuantity returns rows sorted by units sold, highest first.
func (r *ProductReport) ByQuantity() []ProductMetrics {
	rows := r.Rows()
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Quantity != rows[j].Quantity {
			return rows[i].Quantity > rows[j].Quantity
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows
}

// Share returns the product's percentage of this report's revenue, 0 when the
// report has no revenue or does not hold the product.
func (r *ProductReport) Share(productID string) float64 {
	row, ok := r.Get(productID)
	if !ok || r.total.IsZero() {
		return 0
	}
	return row.Revenue.Div(r.total).Mul(hundred).InexactFloat64()
}

// Filter returns a new report holding the rows keep accepts. Shares of the
// new report are relative to its own total.
func (r *ProductReport) Filter(keep func(ProductMetrics) bool) *ProductReport {
	var rows []ProductMetrics
	for _, row := range r.rows {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	return NewProductReport(rows)
}
