// Package ledger provides the append-only stock ledger: one immutable entry
// per movement, with per-product running balances folded inside the writing
// transaction.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/costing"
)

// MovementType classifies a stock-affecting event.
type MovementType string

const (
	MovementReceipt    MovementType = "RECEIPT"
	MovementSale       MovementType = "SALE"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementTransfer   MovementType = "TRANSFER"
)

// ValidMovementType reports whether t is a known movement type.
func ValidMovementType(t MovementType) bool {
	switch t {
	case MovementReceipt, MovementSale, MovementReturn, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// Entry is one row of the stock ledger. Entries are immutable once written:
// corrections are new offsetting ADJUSTMENT entries, never updates.
type Entry struct {
	// LineID is the globally unique row id (UUIDv7).
	LineID id.ID `db:"line_id" json:"lineId"`

	// ProductID + Seq identify the entry; Seq is the per-product
	// monotonic sequence from which running balances are derived.
	ProductID id.ID `db:"product_id" json:"productId"`
	Seq       int64 `db:"seq" json:"seq"`

	Movement MovementType `db:"movement_type" json:"movementType"`

	// Reference points at the originating document.
	ReferenceType string `db:"reference_type" json:"referenceType"`
	ReferenceID   id.ID  `db:"reference_id" json:"referenceId"`

	// DeltaQty is signed; TotalCost carries the same sign.
	DeltaQty  types.Quantity   `db:"delta_qty" json:"deltaQty"`
	UnitCost  types.MinorUnits `db:"unit_cost" json:"unitCost"`
	TotalCost types.MinorUnits `db:"total_cost" json:"totalCost"`

	// Post-entry running totals for the product.
	BalanceQty   types.Quantity   `db:"balance_qty" json:"balanceQty"`
	BalanceValue types.MinorUnits `db:"balance_value" json:"balanceValue"`

	// Method is the costing method resolved for this posting,
	// denormalized for reproducible reads.
	Method costing.Method `db:"method" json:"method"`

	// HasUnknownCost marks outflows that could not be fully costed from
	// known lot or average data.
	HasUnknownCost bool `db:"has_unknown_cost" json:"hasUnknownCost"`

	// LotID references the lot created by an inflow, when any.
	LotID *id.ID `db:"lot_id" json:"lotId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
}

// Draft is the appendable form of an entry. Seq and the running balances
// are assigned by the store inside the write transaction.
type Draft struct {
	ProductID     id.ID
	Movement      MovementType
	ReferenceType string
	ReferenceID   id.ID

	DeltaQty  types.Quantity
	UnitCost  types.MinorUnits
	TotalCost types.MinorUnits

	Method         costing.Method
	HasUnknownCost bool
	LotID          *id.ID

	// AvgUnitCost is the post-entry running average for the product,
	// computed by the valuation engine and persisted on the head.
	AvgUnitCost decimal.Decimal

	CreatedBy string
	Notes     string
}

// Head is the per-product projection of the ledger tail: last sequence,
// running balances and valuation state. It is derived and rebuildable from
// the entries; the row doubles as the per-product write serialization point
// (locked FOR UPDATE for the duration of a posting).
type Head struct {
	ProductID    id.ID            `db:"product_id" json:"productId"`
	LastSeq      int64            `db:"last_seq" json:"lastSeq"`
	BalanceQty   types.Quantity   `db:"balance_qty" json:"balanceQty"`
	BalanceValue types.MinorUnits `db:"balance_value" json:"balanceValue"`

	// AvgUnitCost is the running weighted average in minor units, kept at
	// full precision between postings.
	AvgUnitCost decimal.Decimal `db:"avg_unit_cost" json:"avgUnitCost"`

	// LastUnitCost is the most recent known inflow cost, the fallback for
	// outflows that cannot be costed from lots or the average.
	LastUnitCost types.MinorUnits `db:"last_unit_cost" json:"lastUnitCost"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Apply folds a draft into the head, returning the fully sequenced entry.
func (h *Head) Apply(d Draft, now time.Time) Entry {
	h.LastSeq++
	h.BalanceQty += d.DeltaQty
	h.BalanceValue += d.TotalCost
	h.AvgUnitCost = d.AvgUnitCost
	if d.DeltaQty.IsPositive() && !d.HasUnknownCost {
		h.LastUnitCost = d.UnitCost
	}
	h.UpdatedAt = now

	return Entry{
		LineID:         id.New(),
		ProductID:      d.ProductID,
		Seq:            h.LastSeq,
		Movement:       d.Movement,
		ReferenceType:  d.ReferenceType,
		ReferenceID:    d.ReferenceID,
		DeltaQty:       d.DeltaQty,
		UnitCost:       d.UnitCost,
		TotalCost:      d.TotalCost,
		BalanceQty:     h.BalanceQty,
		BalanceValue:   h.BalanceValue,
		Method:         d.Method,
		HasUnknownCost: d.HasUnknownCost,
		LotID:          d.LotID,
		CreatedAt:      now,
		CreatedBy:      d.CreatedBy,
		Notes:          d.Notes,
	}
}
