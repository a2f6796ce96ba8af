// Package catalog defines the boundary contract consumed from the product
// catalog. The catalog itself (CRUD, categories, pricing) is an external
// collaborator; the engine only needs existence, activity, unit kind and
// the low-stock threshold.
package catalog

import (
	"context"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
)

// UnitKind determines quantity precision for a product.
type UnitKind string

const (
	// UnitPiece - whole quantities only
	UnitPiece UnitKind = "piece"
	// UnitWeight - 3-decimal quantities
	UnitWeight UnitKind = "weight"
)

// Product is the catalog view the engine depends on.
type Product struct {
	ID                id.ID          `db:"id" json:"id"`
	SKU               string         `db:"sku" json:"sku"`
	Name              string         `db:"name" json:"name"`
	CategoryID        *id.ID         `db:"category_id" json:"categoryId,omitempty"`
	Unit              UnitKind       `db:"unit" json:"unit"`
	Active            bool           `db:"active" json:"active"`
	LowStockThreshold types.Quantity `db:"low_stock_threshold" json:"lowStockThreshold"`
}

// Supplier is the supplier view needed for receipt header validation.
type Supplier struct {
	ID     id.ID  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// Gateway provides read access to the external catalog.
type Gateway interface {
	// GetProduct returns a product by id.
	// Returns apperror.CodeNotFound for unknown ids.
	GetProduct(ctx context.Context, productID id.ID) (Product, error)

	// GetProducts returns products for a set of ids (batch lookup for
	// multi-line postings).
	GetProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]Product, error)

	// GetSupplier returns a supplier by id.
	GetSupplier(ctx context.Context, supplierID id.ID) (Supplier, error)

	// ListActiveProducts pages through active products (snapshot and
	// alert scans).
	ListActiveProducts(ctx context.Context, limit, offset int) ([]Product, error)
}

// ValidatePostingQuantity checks a posting quantity against the product's
// unit precision. Piece units must post whole quantities.
func ValidatePostingQuantity(p Product, qty types.Quantity) bool {
	if p.Unit == UnitPiece {
		return qty.IsWhole()
	}
	return true
}
