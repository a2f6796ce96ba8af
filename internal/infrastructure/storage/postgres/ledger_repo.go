package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/ledger"
)

const (
	ledgerEntriesTable = "stock_ledger_entries"
	ledgerHeadsTable   = "ledger_heads"
)

var ledgerEntryColumns = []string{
	"line_id", "product_id", "seq", "movement_type",
	"reference_type", "reference_id",
	"delta_qty", "unit_cost", "total_cost",
	"balance_qty", "balance_value",
	"method", "has_unknown_cost", "lot_id",
	"created_at", "created_by", "notes",
}

var ledgerHeadColumns = []string{
	"product_id", "last_seq", "balance_qty", "balance_value",
	"avg_unit_cost", "last_unit_cost", "updated_at",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetHeadForUpdate returns the product's head locked FOR UPDATE, creating
// a zero head first when the product has no history. Must run inside a
// write transaction; the row lock serializes writers for the product.
func (r *LedgerRepo) GetHeadForUpdate(ctx context.Context, productID id.ID) (ledger.Head, error) {
	querier := r.txManager.GetQuerier(ctx)
	if r.txManager.GetTx(ctx) == nil {
		return ledger.Head{}, fmt.Errorf("GetHeadForUpdate requires transaction context")
	}

	_, err := querier.Exec(ctx, `
		INSERT INTO ledger_heads (product_id, updated_at)
		VALUES ($1, now())
		ON CONFLICT (product_id) DO NOTHING
	`, productID)
	if err != nil {
		return ledger.Head{}, fmt.Errorf("ensure head row: %w", err)
	}

	var head ledger.Head
	sql := `
		SELECT product_id, last_seq, balance_qty, balance_value,
		       avg_unit_cost, last_unit_cost, updated_at
		FROM ledger_heads
		WHERE product_id = $1
		FOR UPDATE
	`
	if err := pgxscan.Get(ctx, querier, &head, sql, productID); err != nil {
		return ledger.Head{}, fmt.Errorf("lock head: %w", err)
	}
	return head, nil
}

// SaveHead persists the folded head after an append.
func (r *LedgerRepo) SaveHead(ctx context.Context, head ledger.Head) error {
	q := r.builder.Update(ledgerHeadsTable).
		Set("last_seq", head.LastSeq).
		Set("balance_qty", head.BalanceQty).
		Set("balance_value", head.BalanceValue).
		Set("avg_unit_cost", head.AvgUnitCost).
		Set("last_unit_cost", head.LastUnitCost).
		Set("updated_at", head.UpdatedAt).
		Where(squirrel.Eq{"product_id": head.ProductID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save head: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("save head: no row for product %s", head.ProductID)
	}
	return nil
}

// InsertEntries appends ledger rows. Multi-line documents post line by
// line under the same head lock, so a call carries one entry in practice;
// the multi-values insert covers rebuild tooling that batches.
func (r *LedgerRepo) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	q := r.builder.Insert(ledgerEntriesTable).Columns(ledgerEntryColumns...)
	for _, e := range entries {
		q = q.Values(entryValues(e)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}
	return nil
}

func entryValues(e ledger.Entry) []any {
	return []any{
		e.LineID, e.ProductID, e.Seq, e.Movement,
		e.ReferenceType, e.ReferenceID,
		e.DeltaQty, e.UnitCost, e.TotalCost,
		e.BalanceQty, e.BalanceValue,
		e.Method, e.HasUnknownCost, e.LotID,
		e.CreatedAt, e.CreatedBy, e.Notes,
	}
}

// GetHead returns the head without locking. Products with no history get
// a zero head rather than a not-found error.
func (r *LedgerRepo) GetHead(ctx context.Context, productID id.ID) (ledger.Head, error) {
	q := r.builder.Select(ledgerHeadColumns...).
		From(ledgerHeadsTable).
		Where(squirrel.Eq{"product_id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.Head{}, fmt.Errorf("build query: %w", err)
	}

	var head ledger.Head
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &head, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}, nil
		}
		return ledger.Head{}, fmt.Errorf("get head: %w", err)
	}
	return head, nil
}

// ListHeads pages through heads with ledger history.
func (r *LedgerRepo) ListHeads(ctx context.Context, limit, offset int) ([]ledger.Head, error) {
	q := r.builder.Select(ledgerHeadColumns...).
		From(ledgerHeadsTable).
		Where(squirrel.Gt{"last_seq": 0}).
		OrderBy("product_id")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var heads []ledger.Head
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &heads, sql, args...); err != nil {
		return nil, fmt.Errorf("select heads: %w", err)
	}
	return heads, nil
}

// GetMovementHistory returns a product's entries, newest first.
func (r *LedgerRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter ledger.MovementFilter) ([]ledger.Entry, error) {
	q := r.builder.Select(ledgerEntryColumns...).
		From(ledgerEntriesTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.Movement != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Movement})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("seq DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []ledger.Entry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return entries, nil
}

// GetLastEntriesAt returns, per product, the latest entry created at or
// before asOf.
func (r *LedgerRepo) GetLastEntriesAt(ctx context.Context, asOf time.Time) ([]ledger.Entry, error) {
	sql := `
		SELECT DISTINCT ON (product_id)
		       line_id, product_id, seq, movement_type,
		       reference_type, reference_id,
		       delta_qty, unit_cost, total_cost,
		       balance_qty, balance_value,
		       method, has_unknown_cost, lot_id,
		       created_at, created_by, notes
		FROM stock_ledger_entries
		WHERE created_at <= $1
		ORDER BY product_id, seq DESC
	`

	var entries []ledger.Entry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, asOf); err != nil {
		return nil, fmt.Errorf("select entries at: %w", err)
	}
	return entries, nil
}

// GetDailyClosings returns the last entry of each day for a product
// within [from, to].
func (r *LedgerRepo) GetDailyClosings(ctx context.Context, productID id.ID, from, to time.Time) ([]ledger.Entry, error) {
	sql := `
		SELECT DISTINCT ON (date_trunc('day', created_at))
		       line_id, product_id, seq, movement_type,
		       reference_type, reference_id,
		       delta_qty, unit_cost, total_cost,
		       balance_qty, balance_value,
		       method, has_unknown_cost, lot_id,
		       created_at, created_by, notes
		FROM stock_ledger_entries
		WHERE product_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY date_trunc('day', created_at), seq DESC
	`

	var entries []ledger.Entry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, productID, from, to); err != nil {
		return nil, fmt.Errorf("select daily closings: %w", err)
	}
	return entries, nil
}

// ComputeHeadFromEntries folds the full entry sequence for a product,
// bypassing the stored head. Used to verify or rebuild the projection.
func (r *LedgerRepo) ComputeHeadFromEntries(ctx context.Context, productID id.ID) (ledger.Head, error) {
	querier := r.txManager.GetQuerier(ctx)

	head := ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}
	foldSQL := `
		SELECT COALESCE(MAX(seq), 0),
		       COALESCE(SUM(delta_qty), 0),
		       COALESCE(SUM(total_cost), 0)
		FROM stock_ledger_entries
		WHERE product_id = $1
	`
	var qtyScaled, valueCents int64
	if err := querier.QueryRow(ctx, foldSQL, productID).Scan(&head.LastSeq, &qtyScaled, &valueCents); err != nil {
		return ledger.Head{}, fmt.Errorf("fold entries: %w", err)
	}
	head.BalanceQty = types.NewQuantityFromInt64Scaled(qtyScaled)
	head.BalanceValue = types.MinorUnits(valueCents)

	if head.BalanceQty.IsPositive() {
		head.AvgUnitCost = head.BalanceValue.Decimal().Div(head.BalanceQty.Decimal())
	}

	// Last known inflow cost, skipping estimated ones.
	lastCostSQL := `
		SELECT unit_cost
		FROM stock_ledger_entries
		WHERE product_id = $1 AND delta_qty > 0 AND NOT has_unknown_cost
		ORDER BY seq DESC
		LIMIT 1
	`
	var lastCost int64
	if err := querier.QueryRow(ctx, lastCostSQL, productID).Scan(&lastCost); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Head{}, fmt.Errorf("last inflow cost: %w", err)
	}
	head.LastUnitCost = types.MinorUnits(lastCost)
	head.UpdatedAt = time.Now().UTC()

	return head, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
