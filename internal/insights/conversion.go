package insights

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ConversionFlag is the qualitative label of a conversion row.
type ConversionFlag string

const (
	FlagNone          ConversionFlag = ""
	FlagOpportunity   ConversionFlag = "opportunity"
	FlagTopConverter  ConversionFlag = "top_converter"
	FlagLowConversion ConversionFlag = "low_conversion"
)

const (
	opportunityMinViews   = 10
	topConverterMinRate   = 0.05
	lowConversionMinViews = 20
	lowConversionMaxRate  = 0.01
)

// Interactions holds per-product tracker counts keyed by tracker product id.
type Interactions struct {
	Views    map[string]int64
	Clicks   map[string]int64
	CartAdds map[string]int64
}

// ConversionRow correlates visibility with sales for one commerce product.
type ConversionRow struct {
	ProductID      string          `json:"product_id"`
	Title          string          `json:"title,omitempty"`
	Views          int64           `json:"views"`
	Clicks         int64           `json:"clicks"`
	CartAdds       int64           `json:"cart_adds"`
	UnitsSold      int64           `json:"units_sold"`
	Revenue        decimal.Decimal `json:"revenue"`
	ConversionRate Rate            `json:"conversion_rate"`
	Flag           ConversionFlag  `json:"flag,omitempty"`
}

// ConversionRate returns sold/views. No views and no sales is 0; sales
// without any recorded view is unbounded.
func ConversionRate(views, sold int64) Rate {
	if views == 0 {
		if sold == 0 {
			return DefinedRate(0)
		}
		return UnboundedRate()
	}
	return DefinedRate(float64(sold) / float64(views))
}

// ClassifyConversion labels a product. The first matching rule wins.
func ClassifyConversion(views, sold int64, rate Rate) ConversionFlag {
	switch {
	case views > opportunityMinViews && sold == 0:
		return FlagOpportunity
	case rate.IsDefined() && rate.Value() > topConverterMinRate:
		return FlagTopConverter
	case views > lowConversionMinViews && rate.IsDefined() && rate.Value() < lowConversionMaxRate:
		return FlagLowConversion
	default:
		return FlagNone
	}
}

// CorrelateConversions joins tracker interaction counts with product sales.
// Tracker ids are translated through ids; counts of tracker ids mapping to
// the same product are added. Every product present on either side gets a
// row. Rows are ordered by views, highest first, then product id.
func CorrelateConversions(in Interactions, products *ProductReport, ids IdentityMapper) []ConversionRow {
	if ids == nil {
		ids = Identity
	}

	rows := make(map[string]*ConversionRow)
	row := func(id string) *ConversionRow {
		r, ok := rows[id]
		if !ok {
			r = &ConversionRow{ProductID: id, Revenue: decimal.Zero}
			rows[id] = r
		}
		return r
	}

	for trackerID, n := range in.Views {
		row(ids.CommerceID(trackerID)).Views += n
	}
	for trackerID, n := range in.Clicks {
		row(ids.CommerceID(trackerID)).Clicks += n
	}
	for trackerID, n := range in.CartAdds {
		row(ids.CommerceID(trackerID)).CartAdds += n
	}
	if products != nil {
		for _, p := range products.rows {
			r := row(p.ProductID)
			r.Title = p.Title
			r.UnitsSold = p.Quantity
			r.Revenue = p.Revenue
		}
	}

	out := make([]ConversionRow, 0, len(rows))
	for id, r := range rows {
		if id == "" {
			continue
		}
		r.ConversionRate = ConversionRate(r.Views, r.UnitsSold)
		r.Flag = ClassifyConversion(r.Views, r.UnitsSold, r.ConversionRate)
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
