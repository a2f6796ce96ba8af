package costing

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/pkg/logger"
)

// Policy maps a product to a costing method from an effective date.
// Historical rows are retained for auditability; only the active row
// (latest effective_from at or before the posting time) governs postings.
type Policy struct {
	ProductID     id.ID     `db:"product_id" json:"productId"`
	Method        Method    `db:"method" json:"method"`
	EffectiveFrom time.Time `db:"effective_from" json:"effectiveFrom"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// PolicyRepository defines storage operations for cost policies.
type PolicyRepository interface {
	// GetActive returns the policy row with the latest effective_from at
	// or before the given time, or nil when the product has none.
	GetActive(ctx context.Context, productID id.ID, at time.Time) (*Policy, error)

	// Insert adds a policy row. Rows are never updated; a method change
	// is a new row with a later effective_from.
	Insert(ctx context.Context, policy Policy) error

	// ListHistory returns all policy rows for a product, newest first.
	ListHistory(ctx context.Context, productID id.ID) ([]Policy, error)
}

// Resolver performs the per-posting method lookup. Pure read; the resolved
// method is stamped on the resulting ledger entry by the caller.
type Resolver struct {
	repo PolicyRepository
}

// NewResolver creates a policy resolver.
func NewResolver(repo PolicyRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the active method for the product at the given time,
// defaulting to AVERAGE when no policy row exists.
func (r *Resolver) Resolve(ctx context.Context, productID id.ID, at time.Time) (Method, error) {
	policy, err := r.repo.GetActive(ctx, productID, at)
	if err != nil {
		return "", fmt.Errorf("get active policy: %w", err)
	}
	if policy == nil {
		return DefaultMethod, nil
	}
	return policy.Method, nil
}

// SetPolicy records a method change effective from the given time.
// Existing open lots are left as-is: the new method governs postings from
// effective_from onward and never rewrites history.
func (r *Resolver) SetPolicy(ctx context.Context, productID id.ID, method Method, effectiveFrom time.Time) (Policy, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return Policy{}, err
	}
	if effectiveFrom.IsZero() {
		return Policy{}, apperror.NewValidation("effective_from is required")
	}

	policy := Policy{
		ProductID:     productID,
		Method:        method,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.repo.Insert(ctx, policy); err != nil {
		return Policy{}, fmt.Errorf("insert policy: %w", err)
	}

	logger.Info(ctx, "cost policy set",
		"product_id", productID,
		"method", method,
		"effective_from", effectiveFrom,
	)
	return policy, nil
}

// History returns the full policy history for a product.
func (r *Resolver) History(ctx context.Context, productID id.ID) ([]Policy, error) {
	return r.repo.ListHistory(ctx, productID)
}
