// Package lots maintains open cost lots per product for FIFO/LIFO
// consumption. Lots are created when stock is received and drawn down when
// outgoing entries consume them; fully consumed lots are kept for audit and
// expiry reporting, never deleted.
package lots

import (
	"time"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
)

// Lot is a batch of received stock carrying its own unit cost.
// Invariant: 0 <= RemainingQty <= ReceivedQty.
type Lot struct {
	ID        id.ID `db:"id" json:"id"`
	ProductID id.ID `db:"product_id" json:"productId"`

	ReceivedQty  types.Quantity   `db:"received_qty" json:"receivedQty"`
	RemainingQty types.Quantity   `db:"remaining_qty" json:"remainingQty"`
	UnitCost     types.MinorUnits `db:"unit_cost" json:"unitCost"`

	ReceivedAt time.Time  `db:"received_at" json:"receivedAt"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	// Source document reference.
	SourceType string `db:"source_type" json:"sourceType"`
	SourceID   id.ID  `db:"source_id" json:"sourceId"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Order is the lot selection order for consumption.
type Order string

const (
	// OrderFIFO - received_at ascending, id ascending tie-break
	OrderFIFO Order = "fifo"
	// OrderLIFO - received_at descending, id descending tie-break
	OrderLIFO Order = "lifo"
)

// Consumption is one lot's contribution to an outgoing movement.
type Consumption struct {
	LotID    id.ID            `db:"lot_id" json:"lotId"`
	QtyTaken types.Quantity   `db:"qty_taken" json:"qtyTaken"`
	UnitCost types.MinorUnits `db:"unit_cost" json:"unitCost"`
}

// ConsumeResult is the outcome of a consumption request. When open lots
// cannot satisfy the full quantity, Residual carries the uncosted remainder
// (the caller applies a fallback cost and flags the entry unknown-cost).
type ConsumeResult struct {
	Consumptions []Consumption
	Residual     types.Quantity
}

// Consumed returns the total quantity taken from lots.
func (r ConsumeResult) Consumed() types.Quantity {
	var total types.Quantity
	for _, c := range r.Consumptions {
		total += c.QtyTaken
	}
	return total
}

// TotalCost returns the summed cost of all lot consumptions.
func (r ConsumeResult) TotalCost() types.MinorUnits {
	var total types.MinorUnits
	for _, c := range r.Consumptions {
		total += types.CostOf(c.QtyTaken, c.UnitCost)
	}
	return total
}
