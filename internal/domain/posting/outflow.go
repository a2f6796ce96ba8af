package posting

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/pkg/logger"
)

// OutflowRequest is a single outgoing movement from an external caller
// (sale, transfer out). The caller decides whether the sale is allowed;
// the engine decides what it costs and what the balance becomes.
type OutflowRequest struct {
	ProductID     id.ID               `json:"productId"`
	Qty           types.Quantity      `json:"qty"` // positive; the engine signs it
	Movement      ledger.MovementType `json:"movement"`
	ReferenceType string              `json:"referenceType"`
	ReferenceID   id.ID               `json:"referenceId"`
	At            time.Time           `json:"at,omitempty"`
	CreatedBy     string              `json:"createdBy"`
	Notes         string              `json:"notes,omitempty"`
}

// ReturnRequest is an incoming movement restoring sold stock. When
// UnitCost is nil the product's last known cost applies.
type ReturnRequest struct {
	ProductID     id.ID             `json:"productId"`
	Qty           types.Quantity    `json:"qty"`
	UnitCost      *types.MinorUnits `json:"unitCost,omitempty"`
	ReferenceType string            `json:"referenceType"`
	ReferenceID   id.ID             `json:"referenceId"`
	At            time.Time         `json:"at,omitempty"`
	CreatedBy     string            `json:"createdBy"`
	Notes         string            `json:"notes,omitempty"`
}

// AdjustmentRequest is a signed manual correction. Positive deltas need a
// unit cost (or fall back to the last known cost); negative deltas are
// costed like outflows under the product's method.
type AdjustmentRequest struct {
	ProductID     id.ID             `json:"productId"`
	DeltaQty      types.Quantity    `json:"deltaQty"`
	UnitCost      *types.MinorUnits `json:"unitCost,omitempty"`
	ReferenceType string            `json:"referenceType"`
	ReferenceID   id.ID             `json:"referenceId"`
	At            time.Time         `json:"at,omitempty"`
	CreatedBy     string            `json:"createdBy"`
	Notes         string            `json:"notes,omitempty"`
}

// CostResult is the outcome of a single-movement posting.
type CostResult struct {
	Entry          ledger.Entry     `json:"entry"`
	UnitCost       types.MinorUnits `json:"unitCost"`
	TotalCost      types.MinorUnits `json:"totalCost"`
	HasUnknownCost bool             `json:"hasUnknownCost"`
}

// PostOutflow posts a stock-decreasing movement, costing it under the
// product's active policy.
func (e *Engine) PostOutflow(ctx context.Context, req OutflowRequest) (*CostResult, error) {
	if req.Movement != ledger.MovementSale && req.Movement != ledger.MovementTransfer {
		return nil, apperror.NewValidation("outflow movement must be SALE or TRANSFER").
			WithDetail("movement_type", string(req.Movement))
	}
	product, err := e.validateSingle(ctx, req.ProductID, req.Qty)
	if err != nil {
		return nil, err
	}
	at := orNow(req.At)

	var result *CostResult
	err = e.runSerialized(ctx, func(ctx context.Context) error {
		result, err = e.postOutflowTx(ctx, product, req.Qty, req.Movement, req.ReferenceType, req.ReferenceID, at, req.CreatedBy, req.Notes)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.HasUnknownCost {
		logger.Warn(ctx, "outflow posted with unknown cost",
			"product_id", req.ProductID,
			"qty", req.Qty.String(),
			"balance_qty", result.Entry.BalanceQty.String(),
		)
	}
	return result, nil
}

// postOutflowTx is the transactional unit shared by sales, transfers and
// negative adjustments.
func (e *Engine) postOutflowTx(
	ctx context.Context,
	product catalog.Product,
	qty types.Quantity,
	movement ledger.MovementType,
	refType string,
	refID id.ID,
	at time.Time,
	createdBy, notes string,
) (*CostResult, error) {
	head, err := e.ledger.HeadForUpdate(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("lock head: %w", err)
	}

	method, err := e.resolver.Resolve(ctx, product.ID, at)
	if err != nil {
		return nil, err
	}

	outflow, err := e.valuer.CostOutflow(ctx, product.ID, costing.HeadState{
		BalanceQty:   head.BalanceQty,
		AvgUnitCost:  head.AvgUnitCost,
		LastUnitCost: head.LastUnitCost,
	}, qty, method)
	if err != nil {
		return nil, err
	}

	entry, err := e.ledger.Append(ctx, &head, ledger.Draft{
		ProductID:      product.ID,
		Movement:       movement,
		ReferenceType:  refType,
		ReferenceID:    refID,
		DeltaQty:       qty.Neg(),
		UnitCost:       outflow.UnitCost,
		TotalCost:      outflow.TotalCost.Neg(),
		Method:         method,
		HasUnknownCost: outflow.HasUnknownCost,
		AvgUnitCost:    head.AvgUnitCost, // outflows never move the average
		CreatedBy:      createdBy,
		Notes:          notes,
	})
	if err != nil {
		return nil, err
	}

	if err := e.lots.RecordForEntry(ctx, entry.LineID, lots.ConsumeResult{Consumptions: outflow.Consumptions}); err != nil {
		return nil, fmt.Errorf("record consumptions: %w", err)
	}

	return &CostResult{
		Entry:          entry,
		UnitCost:       outflow.UnitCost,
		TotalCost:      outflow.TotalCost,
		HasUnknownCost: outflow.HasUnknownCost,
	}, nil
}

// PostReturn posts a customer return back into stock. The returned goods
// open a fresh lot at the return cost so FIFO/LIFO keep reconciling.
func (e *Engine) PostReturn(ctx context.Context, req ReturnRequest) (*CostResult, error) {
	product, err := e.validateSingle(ctx, req.ProductID, req.Qty)
	if err != nil {
		return nil, err
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost must be non-negative")
	}
	at := orNow(req.At)

	var result *CostResult
	err = e.runSerialized(ctx, func(ctx context.Context) error {
		result, err = e.postInflowTx(ctx, product, inflowParams{
			qty:       req.Qty,
			unitCost:  req.UnitCost,
			movement:  ledger.MovementReturn,
			refType:   req.ReferenceType,
			refID:     req.ReferenceID,
			at:        at,
			createdBy: req.CreatedBy,
			notes:     req.Notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PostAdjustment posts a signed manual correction. Corrections never
// rewrite history: an erroneous entry is offset by a new adjustment.
func (e *Engine) PostAdjustment(ctx context.Context, req AdjustmentRequest) (*CostResult, error) {
	if req.DeltaQty.IsZero() {
		return nil, apperror.NewValidation("delta quantity must be non-zero")
	}
	product, err := e.validateSingle(ctx, req.ProductID, req.DeltaQty.Abs())
	if err != nil {
		return nil, err
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost must be non-negative")
	}
	at := orNow(req.At)

	var result *CostResult
	err = e.runSerialized(ctx, func(ctx context.Context) error {
		if req.DeltaQty.IsPositive() {
			result, err = e.postInflowTx(ctx, product, inflowParams{
				qty:       req.DeltaQty,
				unitCost:  req.UnitCost,
				movement:  ledger.MovementAdjustment,
				refType:   req.ReferenceType,
				refID:     req.ReferenceID,
				at:        at,
				createdBy: req.CreatedBy,
				notes:     req.Notes,
			})
		} else {
			result, err = e.postOutflowTx(ctx, product, req.DeltaQty.Abs(), ledger.MovementAdjustment, req.ReferenceType, req.ReferenceID, at, req.CreatedBy, req.Notes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type inflowParams struct {
	qty       types.Quantity
	unitCost  *types.MinorUnits
	movement  ledger.MovementType
	refType   string
	refID     id.ID
	at        time.Time
	createdBy string
	notes     string
}

// postInflowTx is the transactional unit for returns and positive
// adjustments: record cost, open a lot, append.
func (e *Engine) postInflowTx(ctx context.Context, product catalog.Product, p inflowParams) (*CostResult, error) {
	head, err := e.ledger.HeadForUpdate(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("lock head: %w", err)
	}

	method, err := e.resolver.Resolve(ctx, product.ID, p.at)
	if err != nil {
		return nil, err
	}

	unitCost := head.LastUnitCost
	unknown := p.unitCost == nil && unitCost.IsZero()
	if p.unitCost != nil {
		unitCost = *p.unitCost
	}

	inflow := e.valuer.CostInflow(costing.HeadState{
		BalanceQty:   head.BalanceQty,
		AvgUnitCost:  head.AvgUnitCost,
		LastUnitCost: head.LastUnitCost,
	}, p.qty, unitCost)

	lot, err := e.lots.Open(ctx, lots.OpenParams{
		ProductID:  product.ID,
		Qty:        p.qty,
		UnitCost:   unitCost,
		ReceivedAt: p.at,
		SourceType: p.refType,
		SourceID:   p.refID,
	})
	if err != nil {
		return nil, err
	}

	lotID := lot.ID
	entry, err := e.ledger.Append(ctx, &head, ledger.Draft{
		ProductID:      product.ID,
		Movement:       p.movement,
		ReferenceType:  p.refType,
		ReferenceID:    p.refID,
		DeltaQty:       p.qty,
		UnitCost:       inflow.UnitCost,
		TotalCost:      inflow.TotalCost,
		Method:         method,
		HasUnknownCost: unknown,
		LotID:          &lotID,
		AvgUnitCost:    inflow.NewAvg,
		CreatedBy:      p.createdBy,
		Notes:          p.notes,
	})
	if err != nil {
		return nil, err
	}

	return &CostResult{
		Entry:          entry,
		UnitCost:       inflow.UnitCost,
		TotalCost:      inflow.TotalCost,
		HasUnknownCost: unknown,
	}, nil
}

// validateSingle runs the pre-transaction checks shared by single-movement
// postings.
func (e *Engine) validateSingle(ctx context.Context, productID id.ID, qty types.Quantity) (catalog.Product, error) {
	if !qty.IsPositive() {
		return catalog.Product{}, apperror.NewValidation("quantity must be positive").
			WithDetail("product_id", productID.String())
	}
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return catalog.Product{}, err
	}
	if !product.Active {
		return catalog.Product{}, apperror.NewProductInactive(productID.String())
	}
	if !catalog.ValidatePostingQuantity(product, qty) {
		return catalog.Product{}, apperror.NewValidation("piece-unit products require whole quantities").
			WithDetail("product_id", productID.String()).
			WithDetail("qty", qty.String())
	}
	return product, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
