package insights

import (
	"sort"

	"github.com/radiusdt/shop-insights/internal/models"
)

// ProductStock is the stock state of one product.
type ProductStock struct {
	ProductID          string `json:"product_id"`
	Variants           int    `json:"variants"`
	ManagedVariants    int    `json:"managed_variants"`
	OutOfStockVariants int    `json:"out_of_stock_variants"`
	// FullyOutOfStock needs at least one managed variant; a product without
	// any managed variant carries no stock signal.
	FullyOutOfStock bool `json:"fully_out_of_stock"`
}

// StockReport is the output of ClassifyStock.
type StockReport struct {
	Products                []ProductStock `json:"products"`
	TotalProducts           int            `json:"total_products"`
	ManagedVariants         int            `json:"managed_variants"`
	FullyOutOfStockProducts int            `json:"fully_out_of_stock_products"`
	AffectedVariants        int            `json:"affected_variants"`
	CatalogPercent          float64        `json:"catalog_percent"`
	ManagedVariantPercent   float64        `json:"managed_variant_percent"`
	OutOfStockProductIDs    []string       `json:"out_of_stock_product_ids"`
	OutOfStockVariantIDs    []string       `json:"out_of_stock_variant_ids"`
}

// VariantOutOfStock reports whether v is a managed variant with no stock.
// Quantities of unmanaged variants are ignored.
func VariantOutOfStock(v models.ProductVariant) bool {
	return v.ManageInventory && v.InventoryQuantity <= 0
}

// ClassifyStock folds variants into product-level exhaustion flags.
func ClassifyStock(variants []models.ProductVariant) *StockReport {
	byProduct := make(map[string]*ProductStock)
	report := &StockReport{
		Products:             []ProductStock{},
		OutOfStockProductIDs: []string{},
		OutOfStockVariantIDs: []string{},
	}

	for _, v := range variants {
		p, ok := byProduct[v.ProductID]
		if !ok {
			p = &ProductStock{ProductID: v.ProductID}
			byProduct[v.ProductID] = p
		}
		p.Variants++
		if !v.ManageInventory {
			continue
		}
		p.ManagedVariants++
		report.ManagedVariants++
		if VariantOutOfStock(v) {
			p.OutOfStockVariants++
			report.AffectedVariants++
			report.OutOfStockVariantIDs = append(report.OutOfStockVariantIDs, v.ID)
		}
	}

	for _, p := range byProduct {
		p.FullyOutOfStock = p.ManagedVariants > 0 && p.OutOfStockVariants == p.ManagedVariants
		if p.FullyOutOfStock {
			report.FullyOutOfStockProducts++
			report.OutOfStockProductIDs = append(report.OutOfStockProductIDs, p.ProductID)
		}
		report.Products = append(report.Products, *p)
	}

	sort.Slice(report.Products, func(i, j int) bool {
		return report.Products[i].ProductID < report.Products[j].ProductID
	})
	sort.Strings(report.OutOfStockProductIDs)
	sort.Strings(report.OutOfStockVariantIDs)

	report.TotalProducts = len(byProduct)
	report.CatalogPercent = percentOf(report.FullyOutOfStockProducts, report.TotalProducts)
	report.ManagedVariantPercent = percentOf(report.AffectedVariants, report.ManagedVariants)
	return report
}
