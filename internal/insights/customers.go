package insights

import (
	"time"

	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/shopspring/decimal"
)

// ChurnBucket classifies a customer by days since their last order.
type ChurnBucket string

const (
	ChurnNoPurchases ChurnBucket = "no_purchases"
	ChurnActive      ChurnBucket = "active"
	ChurnWarning     ChurnBucket = "warning"
	ChurnAtRisk      ChurnBucket = "at_risk"
	ChurnCritical    ChurnBucket = "critical"
)

// ChurnBuckets lists every bucket in display order.
var ChurnBuckets = []ChurnBucket{ChurnNoPurchases, ChurnActive, ChurnWarning, ChurnAtRisk, ChurnCritical}

// atRiskDays is the top-line KPI threshold. It is separate from the bucket
// boundaries and the two must not be merged.
const atRiskDays = 60

// ClassifyChurn maps days since the last order to a bucket. A nil value means
// the customer never ordered.
func ClassifyChurn(days *int) ChurnBucket {
	switch {
	case days == nil:
		return ChurnNoPurchases
	case *days <= 30:
		return ChurnActive
	case *days <= 60:
		return ChurnWarning
	case *days <= 90:
		return ChurnAtRisk
	default:
		return ChurnCritical
	}
}

// ResolveGroup turns a group reference into a display name. Ids missing from
// the lookup keep their raw value and report resolved=false.
func ResolveGroup(ref models.GroupRef, lookup models.GroupLookup, defaultGroup string) (name string, resolved bool) {
	if ref.IsZero() {
		return defaultGroup, true
	}
	switch ref.Kind {
	case models.GroupRefID:
		if name, ok := lookup[ref.Value]; ok {
			return name, true
		}
		return ref.Value, false
	default:
		return ref.Value, true
	}
}

// CustomerMetrics is the lifecycle state of one customer.
type CustomerMetrics struct {
	CustomerID         string          `json:"customer_id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	Phone              string          `json:"phone,omitempty"`
	Group              string          `json:"group"`
	GroupResolved      bool            `json:"group_resolved"`
	OrderCount         int             `json:"order_count"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	AverageOrderValue  decimal.Decimal `json:"average_order_value"`
	LastOrderAt        *time.Time      `json:"last_order_at"`
	DaysSinceLastOrder *int            `json:"days_since_last_order"`
	Churn              ChurnBucket     `json:"churn"`
}

// CustomerSummary holds the top-line rollups.
type CustomerSummary struct {
	TotalCustomers       int                 `json:"total_customers"`
	CustomersWithOrders  int                 `json:"customers_with_orders"`
	RepeatCustomers      int                 `json:"repeat_customers"`
	AtRiskCustomers      int                 `json:"at_risk_customers"`
	AverageLifetimeValue decimal.Decimal     `json:"average_lifetime_value"`
	ChurnDistribution    map[ChurnBucket]int `json:"churn_distribution"`
	// OrphanOrders reference a customer id absent from the customer set.
	OrphanOrders int `json:"orphan_orders"`
	GuestOrders  int `json:"guest_orders"`
}

// CustomerReport is the output of AggregateCustomers.
type CustomerReport struct {
	Customers []CustomerMetrics `json:"customers"`
	Summary   CustomerSummary   `json:"summary"`
}

type customerFold struct {
	count int
	spent decimal.Decimal
	last  time.Time
}

// AggregateCustomers joins customers with their orders. Every input customer
// appears exactly once in the output, in input order, whether or not they
// ordered. Inputs are not modified.
func AggregateCustomers(customers []models.Customer, orders []models.Order, lookup models.GroupLookup, defaultGroup string, now time.Time) *CustomerReport {
	known := make(map[string]struct{}, len(customers))
	for i := range customers {
		known[customers[i].ID] = struct{}{}
	}

	summary := CustomerSummary{
		TotalCustomers:       len(customers),
		AverageLifetimeValue: decimal.Zero,
		ChurnDistribution:    make(map[ChurnBucket]int, len(ChurnBuckets)),
	}
	for _, b := range ChurnBuckets {
		summary.ChurnDistribution[b] = 0
	}

	folds := make(map[string]*customerFold)
	for i := range orders {
		o := &orders[i]
		if o.IsGuest() {
			summary.GuestOrders++
			continue
		}
		id := o.Customer()
		if _, ok := known[id]; !ok {
			summary.OrphanOrders++
			continue
		}
		f, ok := folds[id]
		if !ok {
			f = &customerFold{spent: decimal.Zero}
			folds[id] = f
		}
		f.count++
		f.spent = f.spent.Add(o.Total)
		if o.CreatedAt.After(f.last) {
			f.last = o.CreatedAt
		}
	}

	out := make([]CustomerMetrics, 0, len(customers))
	lifetimeTotal := decimal.Zero
	for i := range customers {
		c := &customers[i]
		group, resolved := ResolveGroup(c.Group, lookup, defaultGroup)

		m := CustomerMetrics{
			CustomerID:        c.ID,
			Name:              c.Name(),
			Email:             c.Email,
			Phone:             c.Phone,
			Group:             group,
			GroupResolved:     resolved,
			TotalSpent:        decimal.Zero,
			AverageOrderValue: decimal.Zero,
		}

		if f, ok := folds[c.ID]; ok {
			m.OrderCount = f.count
			m.TotalSpent = f.spent
			m.AverageOrderValue = f.spent.Div(decimal.NewFromInt(int64(f.count))).Round(2)

			last := f.last
			m.LastOrderAt = &last
			days := int(now.Sub(last) / (24 * time.Hour))
			if days < 0 {
				days = 0
			}
			m.DaysSinceLastOrder = &days
		}
		m.Churn = ClassifyChurn(m.DaysSinceLastOrder)

		summary.ChurnDistribution[m.Churn]++
		if m.OrderCount >= 1 {
			summary.CustomersWithOrders++
			lifetimeTotal = lifetimeTotal.Add(m.TotalSpent)
		}
		if m.OrderCount >= 2 {
			summary.RepeatCustomers++
		}
		if m.DaysSinceLastOrder != nil && *m.DaysSinceLastOrder > atRiskDays {
			summary.AtRiskCustomers++
		}

		out = append(out, m)
	}

	if summary.CustomersWithOrders > 0 {
		summary.AverageLifetimeValue = lifetimeTotal.Div(decimal.NewFromInt(int64(summary.CustomersWithOrders))).Round(2)
	}

	return &CustomerReport{Customers: out, Summary: summary}
}
