package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/lots"
)

const (
	stockLotsTable    = "stock_lots"
	consumptionsTable = "ledger_consumptions"
)

var lotColumns = []string{
	"id", "product_id", "received_qty", "remaining_qty", "unit_cost",
	"received_at", "expiry_date", "source_type", "source_id", "created_at",
}

// LotRepo implements lots.Repository.
type LotRepo struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

// NewLotRepo creates a new lot repository.
func NewLotRepo(txManager *TxManager) *LotRepo {
	return &LotRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertLot creates a new open lot.
func (r *LotRepo) InsertLot(ctx context.Context, lot lots.Lot) error {
	q := r.builder.Insert(stockLotsTable).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.ProductID, lot.ReceivedQty, lot.RemainingQty, lot.UnitCost,
			lot.ReceivedAt, lot.ExpiryDate, lot.SourceType, lot.SourceID, lot.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// SelectOpenForUpdate returns open lots in consumption order, locked
// FOR UPDATE. Requires the posting transaction.
func (r *LotRepo) SelectOpenForUpdate(ctx context.Context, productID id.ID, order lots.Order) ([]lots.Lot, error) {
	if r.txManager.GetTx(ctx) == nil {
		return nil, fmt.Errorf("SelectOpenForUpdate requires transaction context")
	}

	direction := "ASC"
	if order == lots.OrderLIFO {
		direction = "DESC"
	}

	sql := fmt.Sprintf(`
		SELECT id, product_id, received_qty, remaining_qty, unit_cost,
		       received_at, expiry_date, source_type, source_id, created_at
		FROM stock_lots
		WHERE product_id = $1 AND remaining_qty > 0
		ORDER BY received_at %s, id %s
		FOR UPDATE
	`, direction, direction)

	var open []lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &open, sql, productID); err != nil {
		return nil, fmt.Errorf("select open lots: %w", err)
	}
	return open, nil
}

// ApplyConsumptions decrements remaining quantities. The WHERE guard plus
// the table CHECK constraint refuse to draw a lot below zero.
func (r *LotRepo) ApplyConsumptions(ctx context.Context, consumptions []lots.Consumption) error {
	if len(consumptions) == 0 {
		return nil
	}

	querier := r.txManager.GetQuerier(ctx)
	for _, c := range consumptions {
		res, err := querier.Exec(ctx, `
			UPDATE stock_lots
			SET remaining_qty = remaining_qty - $1
			WHERE id = $2 AND remaining_qty >= $1
		`, c.QtyTaken, c.LotID)
		if err != nil {
			return fmt.Errorf("apply consumption to lot %s: %w", c.LotID, err)
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("lot %s has less than %s remaining", c.LotID, c.QtyTaken)
		}
	}
	return nil
}

// RecordEntryConsumptions persists the per-lot breakdown for an entry.
func (r *LotRepo) RecordEntryConsumptions(ctx context.Context, entryLineID id.ID, consumptions []lots.Consumption) error {
	if len(consumptions) == 0 {
		return nil
	}

	q := r.builder.Insert(consumptionsTable).
		Columns("entry_line_id", "lot_id", "qty_taken", "unit_cost")
	for _, c := range consumptions {
		q = q.Values(entryLineID, c.LotID, c.QtyTaken, c.UnitCost)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert consumptions: %w", err)
	}
	return nil
}

// SumRemaining returns the summed remaining quantity for a product.
func (r *LotRepo) SumRemaining(ctx context.Context, productID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(remaining_qty), 0)
		FROM stock_lots
		WHERE product_id = $1
	`

	var scaled int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&scaled); err != nil {
		return 0, fmt.Errorf("sum remaining: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(scaled), nil
}

// SumRemainingValue returns Σ remaining_qty × unit_cost for a product.
// Quantities are stored 1000-scaled, so the product divides back down.
func (r *LotRepo) SumRemainingValue(ctx context.Context, productID id.ID) (types.MinorUnits, error) {
	sql := `
		SELECT COALESCE(SUM(ROUND((remaining_qty::numeric * unit_cost) / 1000)), 0)::bigint
		FROM stock_lots
		WHERE product_id = $1
	`

	var cents int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&cents); err != nil {
		return 0, fmt.Errorf("sum remaining value: %w", err)
	}
	return types.MinorUnits(cents), nil
}

// ListByProduct returns all lots for a product, open and consumed.
func (r *LotRepo) ListByProduct(ctx context.Context, productID id.ID) ([]lots.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(stockLotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("received_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	return result, nil
}

// ListExpiring returns open lots expiring at or before the deadline.
func (r *LotRepo) ListExpiring(ctx context.Context, deadline time.Time) ([]lots.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(stockLotsTable).
		Where(squirrel.Gt{"remaining_qty": 0}).
		Where(squirrel.NotEq{"expiry_date": nil}).
		Where(squirrel.LtOrEq{"expiry_date": deadline}).
		OrderBy("expiry_date", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []lots.Lot
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring lots: %w", err)
	}
	return result, nil
}

// Ensure interface compliance.
var _ lots.Repository = (*LotRepo)(nil)
