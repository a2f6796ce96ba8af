package lots

import (
	"context"
	"time"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
)

// Repository defines storage operations for cost lots.
type Repository interface {
	// InsertLot creates a new open lot.
	InsertLot(ctx context.Context, lot Lot) error

	// SelectOpenForUpdate returns open lots (remaining_qty > 0) for a
	// product in the given order, locked FOR UPDATE. Must run inside the
	// posting transaction so a lot cannot be drawn down without its
	// ledger entry committing alongside.
	SelectOpenForUpdate(ctx context.Context, productID id.ID, order Order) ([]Lot, error)

	// ApplyConsumptions decrements remaining quantities. Implementations
	// must refuse to drive remaining_qty below zero.
	ApplyConsumptions(ctx context.Context, consumptions []Consumption) error

	// RecordEntryConsumptions persists the per-lot breakdown for an
	// outgoing ledger entry (audit trail for FIFO/LIFO costing).
	RecordEntryConsumptions(ctx context.Context, entryLineID id.ID, consumptions []Consumption) error

	// SumRemaining returns the summed remaining quantity for a product.
	SumRemaining(ctx context.Context, productID id.ID) (types.Quantity, error)

	// SumRemainingValue returns Σ remaining_qty × unit_cost for a product.
	SumRemainingValue(ctx context.Context, productID id.ID) (types.MinorUnits, error)

	// ListByProduct returns all lots for a product, open and consumed,
	// ordered by received_at then id.
	ListByProduct(ctx context.Context, productID id.ID) ([]Lot, error)

	// ListExpiring returns open lots expiring at or before the deadline.
	ListExpiring(ctx context.Context, deadline time.Time) ([]Lot, error)
}
