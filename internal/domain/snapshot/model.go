// Package snapshot produces point-in-time valuation reports from the stock
// ledger: daily snapshots, stock level alerts and movement trends.
package snapshot

import (
	"context"
	"time"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/costing"
)

// Snapshot is one product's state as of a snapshot date. Snapshots are
// immutable: regenerating a date writes a new batch, it never updates
// rows in place.
type Snapshot struct {
	SnapshotDate time.Time        `db:"snapshot_date" json:"snapshotDate"`
	ProductID    id.ID            `db:"product_id" json:"productId"`
	QtyOnHand    types.Quantity   `db:"qty_on_hand" json:"qtyOnHand"`
	Value        types.MinorUnits `db:"value_cents" json:"value"`
	MethodUsed   costing.Method   `db:"method_used" json:"methodUsed"`

	// HasUnknownCost propagates from the last ledger entry at the cut:
	// the valuation includes estimated costs.
	HasUnknownCost bool `db:"has_unknown_cost" json:"hasUnknownCost"`

	// BatchID groups the rows written by one generation run. Readers take
	// the latest batch for a date; earlier batches are superseded.
	BatchID   id.ID     `db:"batch_id" json:"batchId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TrendPoint is one day's closing state in a product trend series.
type TrendPoint struct {
	Date       time.Time        `json:"date"`
	ClosingQty types.Quantity   `json:"closingQty"`
	Value      types.MinorUnits `json:"value"`
}

// Alert flags a product whose stock level matched an alert rule.
type Alert struct {
	ProductID id.ID            `json:"productId"`
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Rule      string           `json:"rule"`
	QtyOnHand types.Quantity   `json:"qtyOnHand"`
	Threshold types.Quantity   `json:"threshold"`
	Value     types.MinorUnits `json:"value"`
}

// Repository defines storage operations for snapshots.
type Repository interface {
	// InsertSnapshots writes one generation batch.
	InsertSnapshots(ctx context.Context, snapshots []Snapshot) error

	// GetSnapshots returns the latest batch for a date, optionally
	// filtered to one product.
	GetSnapshots(ctx context.Context, date time.Time, productID *id.ID) ([]Snapshot, error)
}
