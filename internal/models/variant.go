package models

import (
	"errors"
	"fmt"
)

// ProductVariant is a sellable variant of a product. InventoryQuantity is
// only meaningful when ManageInventory is true.
type ProductVariant struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	Title             string `json:"title,omitempty"`
	SKU               string `json:"sku,omitempty"`
	ManageInventory   bool   `json:"manage_inventory"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Validate checks that the variant is linked to a product.
func (v *ProductVariant) Validate() error {
	if v == nil {
		return errors.New("variant is nil")
	}
	if v.ID == "" {
		return errors.New("variant id is required")
	}
	if v.ProductID == "" {
		return fmt.Errorf("variant %s: product_id is required", v.ID)
	}
	return nil
}
