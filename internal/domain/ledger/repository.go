package ledger

import (
	"context"
	"time"

	"stockpile/internal/core/id"
)

// Repository defines storage operations for the ledger.
type Repository interface {
	// GetHeadForUpdate returns the product's head row locked FOR UPDATE,
	// creating a zero head if the product has no history. Must be called
	// inside a write transaction; the lock serializes concurrent writers
	// for the product until commit.
	GetHeadForUpdate(ctx context.Context, productID id.ID) (Head, error)

	// SaveHead persists the folded head after an append.
	SaveHead(ctx context.Context, head Head) error

	// InsertEntries appends entries. Entries are never updated or deleted.
	InsertEntries(ctx context.Context, entries []Entry) error

	// GetHead returns the head without locking (read paths).
	GetHead(ctx context.Context, productID id.ID) (Head, error)

	// ListHeads pages through heads with non-zero history.
	ListHeads(ctx context.Context, limit, offset int) ([]Head, error)

	// GetMovementHistory returns a product's entries ordered by seq.
	GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]Entry, error)

	// GetLastEntriesAt returns, per product, the latest entry created at
	// or before asOf. Snapshot generation reads point-in-time balances
	// from these.
	GetLastEntriesAt(ctx context.Context, asOf time.Time) ([]Entry, error)

	// ComputeHeadFromEntries folds the full entry sequence for a product.
	// Used to verify or rebuild the derived head projection.
	ComputeHeadFromEntries(ctx context.Context, productID id.ID) (Head, error)

	// GetDailyClosings returns the last entry of each day for a product
	// within [from, to] (trend series).
	GetDailyClosings(ctx context.Context, productID id.ID, from, to time.Time) ([]Entry, error)
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	Movement *MovementType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
