package costing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/lots"
)

// HeadState is the valuation view of a product's ledger head: the inputs
// the engine needs to cost a movement. Kept as a plain value so the engine
// stays pure over it.
type HeadState struct {
	BalanceQty   types.Quantity
	AvgUnitCost  decimal.Decimal
	LastUnitCost types.MinorUnits
}

// InflowResult carries the cost of an incoming movement and the post-entry
// running average.
type InflowResult struct {
	UnitCost  types.MinorUnits
	TotalCost types.MinorUnits
	NewAvg    decimal.Decimal
}

// OutflowResult carries the cost of an outgoing movement.
type OutflowResult struct {
	// UnitCost is the weighted per-unit cost, rounded half-to-even.
	UnitCost types.MinorUnits
	// TotalCost is the positive magnitude; the ledger signs it.
	TotalCost types.MinorUnits
	// HasUnknownCost is set when any part of the quantity could not be
	// costed from known lot or average data.
	HasUnknownCost bool
	// Consumptions is the per-lot breakdown (FIFO/LIFO only).
	Consumptions []lots.Consumption
	// Residual is the quantity costed at the fallback cost.
	Residual types.Quantity
}

// Engine computes movement costs under the resolved method. FIFO and LIFO
// delegate lot selection to the tracker; AVERAGE maintains the running
// weighted average carried on the ledger head.
type Engine struct {
	lots *lots.Tracker
}

// NewEngine creates a valuation engine.
func NewEngine(tracker *lots.Tracker) *Engine {
	return &Engine{lots: tracker}
}

// CostInflow prices an incoming movement and recomputes the running
// average: new_avg = (old_qty*old_avg + in_qty*in_cost) / (old_qty+in_qty),
// performed in full decimal precision to avoid truncation bias. A non-
// positive prior balance restarts the average at the inflow cost (the old
// basis is gone or already fallback-costed).
func (e *Engine) CostInflow(head HeadState, qty types.Quantity, unitCost types.MinorUnits) InflowResult {
	total := types.CostOf(qty, unitCost)

	var newAvg decimal.Decimal
	if !head.BalanceQty.IsPositive() {
		newAvg = unitCost.Decimal()
	} else {
		oldQty := head.BalanceQty.Decimal()
		inQty := qty.Decimal()
		oldValue := oldQty.Mul(head.AvgUnitCost)
		inValue := inQty.Mul(unitCost.Decimal())
		newAvg = oldValue.Add(inValue).Div(oldQty.Add(inQty))
	}

	return InflowResult{
		UnitCost:  unitCost,
		TotalCost: total,
		NewAvg:    newAvg,
	}
}

// CostOutflow prices an outgoing movement of qty units under the method.
// Must run inside the posting transaction for FIFO/LIFO (lot locks).
func (e *Engine) CostOutflow(ctx context.Context, productID id.ID, head HeadState, qty types.Quantity, method Method) (OutflowResult, error) {
	switch method {
	case MethodAverage:
		return e.costOutflowAverage(head, qty), nil
	case MethodFIFO:
		return e.costOutflowLots(ctx, productID, head, qty, lots.OrderFIFO)
	case MethodLIFO:
		return e.costOutflowLots(ctx, productID, head, qty, lots.OrderLIFO)
	}
	return OutflowResult{}, fmt.Errorf("unknown costing method %q", method)
}

// costOutflowAverage costs at the current running average. Outflows never
// change the average. A non-positive prior balance means there is no cost
// basis: fall back to the last known unit cost (or zero) and flag the
// entry. A partial stockout (0 < balance < qty) still costs everything at
// the average but is flagged, since the portion beyond the balance has no
// recorded basis.
func (e *Engine) costOutflowAverage(head HeadState, qty types.Quantity) OutflowResult {
	if !head.BalanceQty.IsPositive() {
		unit := head.LastUnitCost
		return OutflowResult{
			UnitCost:       unit,
			TotalCost:      types.CostOf(qty, unit),
			HasUnknownCost: true,
			Residual:       qty,
		}
	}

	total := types.MinorUnitsFromDecimal(qty.Decimal().Mul(head.AvgUnitCost))
	return OutflowResult{
		UnitCost:       types.MinorUnitsFromDecimal(head.AvgUnitCost),
		TotalCost:      total,
		HasUnknownCost: head.BalanceQty < qty,
	}
}

// costOutflowLots consumes open lots greedily in the given order. A
// residual beyond tracked lots is costed at the last known unit cost
// (or zero) and flags the entry.
func (e *Engine) costOutflowLots(ctx context.Context, productID id.ID, head HeadState, qty types.Quantity, order lots.Order) (OutflowResult, error) {
	consumed, err := e.lots.Consume(ctx, productID, qty, order)
	if err != nil {
		return OutflowResult{}, fmt.Errorf("consume lots: %w", err)
	}

	total := consumed.TotalCost()
	result := OutflowResult{
		Consumptions: consumed.Consumptions,
		Residual:     consumed.Residual,
	}

	if consumed.Residual.IsPositive() {
		result.HasUnknownCost = true
		total += types.CostOf(consumed.Residual, head.LastUnitCost)
	}

	result.TotalCost = total
	result.UnitCost = weightedUnitCost(total, qty)
	return result, nil
}

// CurrentValue returns the monetary value of on-hand stock for a product
// under the given method.
func (e *Engine) CurrentValue(ctx context.Context, productID id.ID, head HeadState, method Method) (types.MinorUnits, error) {
	if method.UsesLots() {
		return e.lots.RemainingValue(ctx, productID)
	}
	return types.MinorUnitsFromDecimal(head.BalanceQty.Decimal().Mul(head.AvgUnitCost)), nil
}

// weightedUnitCost divides total by qty in decimal, rounding half-to-even.
func weightedUnitCost(total types.MinorUnits, qty types.Quantity) types.MinorUnits {
	if qty.IsZero() {
		return 0
	}
	return types.MinorUnitsFromDecimal(total.Decimal().Div(qty.Decimal()))
}
