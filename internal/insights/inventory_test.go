package insights

import (
	"testing"

	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variant(id, product string, managed bool, qty int) models.ProductVariant {
	return models.ProductVariant{ID: id, ProductID: product, ManageInventory: managed, InventoryQuantity: qty}
}

func TestClassifyStock_Scenario(t *testing.T) {
	rep := ClassifyStock([]models.ProductVariant{
		variant("v1", "P2", true, 0),
		variant("v2", "P2", true, 0),
	})

	require.Len(t, rep.Products, 1)
	assert.True(t, rep.Products[0].FullyOutOfStock)
	assert.Equal(t, 1, rep.FullyOutOfStockProducts)
	assert.Equal(t, 2, rep.AffectedVariants)
	assert.Equal(t, []string{"P2"}, rep.OutOfStockProductIDs)
	assert.Equal(t, 100.0, rep.CatalogPercent)
	assert.Equal(t, 100.0, rep.ManagedVariantPercent)
}

func TestClassifyStock_Rules(t *testing.T) {
	rep := ClassifyStock([]models.ProductVariant{
		// No managed variants: never out of stock, whatever the quantity.
		variant("a1", "unmanaged", false, 0),
		variant("a2", "unmanaged", false, -4),
		// One managed variant at zero.
		variant("b1", "single", true, 0),
		// Mixed: one managed variant in stock keeps the product available.
		variant("c1", "mixed", true, 0),
		variant("c2", "mixed", true, 3),
		// Unmanaged sibling is ignored for the exhaustion decision.
		variant("d1", "oversold", true, -2),
		variant("d2", "oversold", false, 50),
	})

	byID := map[string]ProductStock{}
	for _, p := range rep.Products {
		byID[p.ProductID] = p
	}

	assert.False(t, byID["unmanaged"].FullyOutOfStock)
	assert.Equal(t, 0, byID["unmanaged"].ManagedVariants)
	assert.True(t, byID["single"].FullyOutOfStock)
	assert.False(t, byID["mixed"].FullyOutOfStock)
	assert.Equal(t, 1, byID["mixed"].OutOfStockVariants)
	assert.True(t, byID["oversold"].FullyOutOfStock)
	assert.Equal(t, 2, byID["oversold"].Variants)

	assert.Equal(t, 4, rep.TotalProducts)
	assert.Equal(t, 4, rep.ManagedVariants)
	assert.Equal(t, 2, rep.FullyOutOfStockProducts)
	assert.Equal(t, 3, rep.AffectedVariants)
	assert.Equal(t, []string{"b1", "c1", "d1"}, rep.OutOfStockVariantIDs)
	assert.Equal(t, 50.0, rep.CatalogPercent)
	assert.Equal(t, 75.0, rep.ManagedVariantPercent)
}

func TestClassifyStock_EmptyDenominators(t *testing.T) {
	empty := ClassifyStock(nil)
	assert.Equal(t, 0.0, empty.CatalogPercent)
	assert.Equal(t, 0.0, empty.ManagedVariantPercent)
	assert.NotNil(t, empty.Products)

	unmanaged := ClassifyStock([]models.ProductVariant{variant("v", "p", false, 0)})
	assert.Equal(t, 0.0, unmanaged.ManagedVariantPercent)
	assert.Equal(t, 0, unmanaged.FullyOutOfStockProducts)
}

func TestVariantOutOfStock(t *testing.T) {
	assert.True(t, VariantOutOfStock(variant("v", "p", true, 0)))
	assert.True(t, VariantOutOfStock(variant("v", "p", true, -1)))
	assert.False(t, VariantOutOfStock(variant("v", "p", true, 1)))
	assert.False(t, VariantOutOfStock(variant("v", "p", false, 0)))
}
