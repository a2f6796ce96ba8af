package ledger

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/pkg/logger"
)

// Config holds deployment policy for the store.
type Config struct {
	// AllowNegativeStock permits outflows below zero balance. When false,
	// such appends fail with NEGATIVE_BALANCE_NOT_ALLOWED. Default: allow,
	// with the unknown-cost flag surfacing downstream.
	AllowNegativeStock bool
}

// DefaultConfig allows negative stock.
func DefaultConfig() Config {
	return Config{AllowNegativeStock: true}
}

// Service owns the append contract and the running-balance invariant.
// Appends must run inside the posting transaction: the head lock taken by
// the repository is what orders concurrent writers per product.
type Service struct {
	repo Repository
	cfg  Config
}

// NewService creates the ledger store service.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// HeadForUpdate loads and locks the product head for the calling posting.
func (s *Service) HeadForUpdate(ctx context.Context, productID id.ID) (Head, error) {
	return s.repo.GetHeadForUpdate(ctx, productID)
}

// Append folds the draft onto the locked head and persists exactly one row.
// The returned entry's balances are computed from the immediately preceding
// entry for the product; no other write can observe an intermediate state.
func (s *Service) Append(ctx context.Context, head *Head, draft Draft) (Entry, error) {
	if draft.DeltaQty.IsZero() {
		return Entry{}, apperror.NewValidation("delta quantity must be non-zero").
			WithDetail("product_id", draft.ProductID.String())
	}
	if !ValidMovementType(draft.Movement) {
		return Entry{}, apperror.NewValidation("unknown movement type").
			WithDetail("movement_type", string(draft.Movement))
	}
	if head.ProductID != draft.ProductID {
		return Entry{}, apperror.NewInternal(fmt.Errorf("head/draft product mismatch: %s vs %s", head.ProductID, draft.ProductID))
	}

	if !s.cfg.AllowNegativeStock && (head.BalanceQty+draft.DeltaQty).IsNegative() {
		return Entry{}, apperror.NewNegativeStock(
			draft.ProductID.String(),
			draft.DeltaQty.Abs().String(),
			head.BalanceQty.String(),
		)
	}

	entry := head.Apply(draft, time.Now().UTC())

	if err := s.repo.InsertEntries(ctx, []Entry{entry}); err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := s.repo.SaveHead(ctx, *head); err != nil {
		return Entry{}, fmt.Errorf("save head: %w", err)
	}

	logger.Debug(ctx, "ledger entry appended",
		"product_id", entry.ProductID,
		"seq", entry.Seq,
		"movement", entry.Movement,
		"delta_qty", entry.DeltaQty.String(),
	)

	return entry, nil
}

// History returns a product's movement history.
func (s *Service) History(ctx context.Context, productID id.ID, filter MovementFilter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.GetMovementHistory(ctx, productID, filter)
}

// Head returns the current head for a product (zero head if no history).
func (s *Service) Head(ctx context.Context, productID id.ID) (Head, error) {
	return s.repo.GetHead(ctx, productID)
}

// ListHeads pages through product heads for stock-on-hand queries.
func (s *Service) ListHeads(ctx context.Context, limit, offset int) ([]Head, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.repo.ListHeads(ctx, limit, offset)
}

// RebuildHead refolds the head projection from the entry sequence and
// saves it. The ledger is the source of truth; the head is disposable.
func (s *Service) RebuildHead(ctx context.Context, productID id.ID) (Head, error) {
	head, err := s.repo.ComputeHeadFromEntries(ctx, productID)
	if err != nil {
		return Head{}, fmt.Errorf("fold entries: %w", err)
	}
	if err := s.repo.SaveHead(ctx, head); err != nil {
		return Head{}, fmt.Errorf("save rebuilt head: %w", err)
	}
	logger.Info(ctx, "ledger head rebuilt", "product_id", productID, "last_seq", head.LastSeq)
	return head, nil
}
