package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/snapshot"
)

const snapshotsTable = "stock_snapshots"

var snapshotColumns = []string{
	"snapshot_date", "product_id", "qty_on_hand", "value_cents",
	"method_used", "has_unknown_cost", "batch_id", "created_at",
}

// SnapshotRepo implements snapshot.Repository.
type SnapshotRepo struct {
	txManager *TxManager
}

// NewSnapshotRepo creates a new snapshot repository.
func NewSnapshotRepo(txManager *TxManager) *SnapshotRepo {
	return &SnapshotRepo{txManager: txManager}
}

// InsertSnapshots writes one generation batch via COPY. Requires the
// caller's transaction; readers take the batch with the latest created_at,
// so a batch must never become visible half-written.
func (r *SnapshotRepo) InsertSnapshots(ctx context.Context, snapshots []snapshot.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []any{
			s.SnapshotDate, s.ProductID, s.QtyOnHand, s.Value,
			s.MethodUsed, s.HasUnknownCost, s.BatchID, s.CreatedAt,
		})
	}

	inserter := NewBatchInserter(r.txManager)
	if _, err := inserter.CopyFromSlice(ctx, snapshotsTable, snapshotColumns, rows); err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}
	return nil
}

// GetSnapshots returns the latest batch for a date, optionally filtered to
// one product.
func (r *SnapshotRepo) GetSnapshots(ctx context.Context, date time.Time, productID *id.ID) ([]snapshot.Snapshot, error) {
	sql := `
		SELECT snapshot_date, product_id, qty_on_hand, value_cents,
		       method_used, has_unknown_cost, batch_id, created_at
		FROM stock_snapshots
		WHERE snapshot_date = $1
		  AND batch_id = (
			SELECT batch_id FROM stock_snapshots
			WHERE snapshot_date = $1
			ORDER BY created_at DESC
			LIMIT 1
		  )
	`
	args := []any{date}
	if productID != nil {
		sql += " AND product_id = $2"
		args = append(args, *productID)
	}
	sql += " ORDER BY product_id"

	var snapshots []snapshot.Snapshot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &snapshots, sql, args...); err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	return snapshots, nil
}

// Ensure interface compliance.
var _ snapshot.Repository = (*SnapshotRepo)(nil)
