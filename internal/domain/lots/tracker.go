package lots

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/pkg/logger"
)

// Tracker provides lot open/consume operations. Both must be called inside
// the posting transaction; the tracker never opens its own.
type Tracker struct {
	repo Repository
}

// NewTracker creates a lot tracker.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo}
}

// OpenParams describes a lot to open for received stock.
type OpenParams struct {
	ProductID  id.ID
	Qty        types.Quantity
	UnitCost   types.MinorUnits
	ReceivedAt time.Time
	Expiry     *time.Time
	SourceType string
	SourceID   id.ID
}

// Open creates an open lot for an inflow.
func (t *Tracker) Open(ctx context.Context, p OpenParams) (Lot, error) {
	if !p.Qty.IsPositive() {
		return Lot{}, apperror.NewValidation("lot quantity must be positive").
			WithDetail("product_id", p.ProductID.String())
	}
	if p.UnitCost.IsNegative() {
		return Lot{}, apperror.NewValidation("lot unit cost must be non-negative").
			WithDetail("product_id", p.ProductID.String())
	}

	lot := Lot{
		ID:           id.New(),
		ProductID:    p.ProductID,
		ReceivedQty:  p.Qty,
		RemainingQty: p.Qty,
		UnitCost:     p.UnitCost,
		ReceivedAt:   p.ReceivedAt,
		ExpiryDate:   p.Expiry,
		SourceType:   p.SourceType,
		SourceID:     p.SourceID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := t.repo.InsertLot(ctx, lot); err != nil {
		return Lot{}, fmt.Errorf("insert lot: %w", err)
	}

	return lot, nil
}

// Consume draws qty from the product's open lots in the given order and
// persists the decrements. When open lots fall short, the result carries
// the uncosted residual instead of failing; remaining_qty never goes
// negative.
func (t *Tracker) Consume(ctx context.Context, productID id.ID, qty types.Quantity, order Order) (ConsumeResult, error) {
	if !qty.IsPositive() {
		return ConsumeResult{}, apperror.NewValidation("consume quantity must be positive").
			WithDetail("product_id", productID.String())
	}

	open, err := t.repo.SelectOpenForUpdate(ctx, productID, order)
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("select open lots: %w", err)
	}

	result := ConsumeFromLots(open, qty)

	if len(result.Consumptions) > 0 {
		if err := t.repo.ApplyConsumptions(ctx, result.Consumptions); err != nil {
			return ConsumeResult{}, fmt.Errorf("apply consumptions: %w", err)
		}
	}

	if result.Residual.IsPositive() {
		logger.Warn(ctx, "lot consumption short of request",
			"product_id", productID,
			"requested", qty.String(),
			"residual", result.Residual.String(),
		)
	}

	return result, nil
}

// RecordForEntry persists the lot breakdown against a posted ledger entry.
func (t *Tracker) RecordForEntry(ctx context.Context, entryLineID id.ID, result ConsumeResult) error {
	if len(result.Consumptions) == 0 {
		return nil
	}
	return t.repo.RecordEntryConsumptions(ctx, entryLineID, result.Consumptions)
}

// Remaining returns the summed open quantity for a product.
func (t *Tracker) Remaining(ctx context.Context, productID id.ID) (types.Quantity, error) {
	return t.repo.SumRemaining(ctx, productID)
}

// RemainingValue returns the value of a product's open lots.
func (t *Tracker) RemainingValue(ctx context.Context, productID id.ID) (types.MinorUnits, error) {
	return t.repo.SumRemainingValue(ctx, productID)
}

// Lots returns all lots for a product, open and consumed.
func (t *Tracker) Lots(ctx context.Context, productID id.ID) ([]Lot, error) {
	return t.repo.ListByProduct(ctx, productID)
}

// Expiring returns open lots expiring at or before the deadline.
func (t *Tracker) Expiring(ctx context.Context, deadline time.Time) ([]Lot, error) {
	return t.repo.ListExpiring(ctx, deadline)
}

// ConsumeFromLots greedily satisfies qty from the given lots, in order.
// Pure; the selection order of the input slice determines FIFO/LIFO.
func ConsumeFromLots(open []Lot, qty types.Quantity) ConsumeResult {
	var result ConsumeResult
	remaining := qty

	for _, lot := range open {
		if !remaining.IsPositive() {
			break
		}
		if !lot.RemainingQty.IsPositive() {
			continue
		}

		take := lot.RemainingQty
		if remaining < take {
			take = remaining
		}

		result.Consumptions = append(result.Consumptions, Consumption{
			LotID:    lot.ID,
			QtyTaken: take,
			UnitCost: lot.UnitCost,
		})
		remaining -= take
	}

	result.Residual = remaining
	return result
}
