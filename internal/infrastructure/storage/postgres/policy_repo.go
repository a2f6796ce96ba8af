package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/costing"
)

const costPoliciesTable = "cost_policies"

// PolicyRepo implements costing.PolicyRepository.
type PolicyRepo struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

// NewPolicyRepo creates a new cost policy repository.
func NewPolicyRepo(txManager *TxManager) *PolicyRepo {
	return &PolicyRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetActive returns the policy with the latest effective_from at or before
// the given time, or nil when the product has none.
func (r *PolicyRepo) GetActive(ctx context.Context, productID id.ID, at time.Time) (*costing.Policy, error) {
	q := r.builder.Select("product_id", "method", "effective_from", "created_at").
		From(costPoliciesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.LtOrEq{"effective_from": at}).
		OrderBy("effective_from DESC", "created_at DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var policy costing.Policy
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &policy, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active policy: %w", err)
	}
	return &policy, nil
}

// Insert adds a policy row.
func (r *PolicyRepo) Insert(ctx context.Context, policy costing.Policy) error {
	q := r.builder.Insert(costPoliciesTable).
		Columns("id", "product_id", "method", "effective_from", "created_at").
		Values(id.New(), policy.ProductID, policy.Method, policy.EffectiveFrom, policy.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// ListHistory returns all policy rows for a product, newest first.
func (r *PolicyRepo) ListHistory(ctx context.Context, productID id.ID) ([]costing.Policy, error) {
	q := r.builder.Select("product_id", "method", "effective_from", "created_at").
		From(costPoliciesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("effective_from DESC", "created_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var history []costing.Policy
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &history, sql, args...); err != nil {
		return nil, fmt.Errorf("select policies: %w", err)
	}
	return history, nil
}

// Ensure interface compliance.
var _ costing.PolicyRepository = (*PolicyRepo)(nil)
