package dto

import (
	"time"

	"stockpile/internal/core/types"
	"stockpile/internal/domain/costing"
)

// StockRow is a per-product stock-on-hand row.
type StockRow struct {
	ProductID    string           `json:"productId"`
	SKU          string           `json:"sku,omitempty"`
	Name         string           `json:"name,omitempty"`
	BalanceQty   types.Quantity   `json:"balanceQty"`
	BalanceValue types.MinorUnits `json:"balanceValue"`
	LastSeq      int64            `json:"lastSeq"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ValueResponse is the current valuation of a product's stock.
type ValueResponse struct {
	ProductID  string           `json:"productId"`
	Method     costing.Method   `json:"method"`
	BalanceQty types.Quantity   `json:"balanceQty"`
	Value      types.MinorUnits `json:"value"`
}

// ValuationSummaryRow aggregates stock value across all products posted
// under one costing method.
type ValuationSummaryRow struct {
	Method     costing.Method   `json:"method"`
	Products   int              `json:"products"`
	TotalValue types.MinorUnits `json:"totalValue"`
}

// ValuationSummaryResponse is the whole-inventory valuation breakdown.
type ValuationSummaryResponse struct {
	AsOf       time.Time             `json:"asOf"`
	TotalValue types.MinorUnits      `json:"totalValue"`
	ByMethod   []ValuationSummaryRow `json:"byMethod"`
}

// PolicyRequest sets a product's costing method.
type PolicyRequest struct {
	Method        string     `json:"method" binding:"required"`
	EffectiveFrom *time.Time `json:"effectiveFrom,omitempty"`
}

// SnapshotRequest triggers snapshot generation for a date.
type SnapshotRequest struct {
	Date time.Time `json:"date" binding:"required"`
}
