package posting

import (
	"context"
	"fmt"
	"sort"
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

// ReferenceTypeReceipt tags ledger entries and lots created by a goods
// receipt posting.
const ReferenceTypeReceipt = "GoodsReceipt"

// ReceiptHeader describes a goods-received document.
type ReceiptHeader struct {
	SupplierID id.ID     `json:"supplierId"`
	Date       time.Time `json:"date"`

	// Supplier's own document reference, carried for audit.
	SupplierDocNumber string `json:"supplierDocNumber,omitempty"`

	// Optional landed costs, informational on the archived document.
	FreightCost types.MinorUnits `json:"freightCost,omitempty"`
	DutyCost    types.MinorUnits `json:"dutyCost,omitempty"`
	MiscCost    types.MinorUnits `json:"miscCost,omitempty"`

	CreatedBy string `json:"createdBy"`
}

// ReceiptLine is one received product.
type ReceiptLine struct {
	ProductID id.ID            `json:"productId"`
	Qty       types.Quantity   `json:"qty"`
	UnitCost  types.MinorUnits `json:"unitCost"`
	BatchRef  string           `json:"batchRef,omitempty"`
	Expiry    *time.Time       `json:"expiry,omitempty"`
}

// Receipt is the full posting request.
type Receipt struct {
	Header ReceiptHeader `json:"header"`
	Lines  []ReceiptLine `json:"lines"`
}

// PostedReceipt is the posting result, also the idempotency replay payload.
type PostedReceipt struct {
	ReceiptID  id.ID            `json:"receiptId"`
	Number     string           `json:"number"`
	Entries    []ledger.Entry   `json:"entries"`
	TotalQty   types.Quantity   `json:"totalQty"`
	TotalValue types.MinorUnits `json:"totalValue"`
	PostedAt   time.Time        `json:"postedAt"`

	// Replayed is set when the result was served from the idempotency
	// store instead of a fresh posting.
	Replayed bool `json:"-"`
}

// PostReceipt posts a goods-received document: all lines or none.
// An idempotencyKey, when supplied, makes client retries safe.
func (e *Engine) PostReceipt(ctx context.Context, receipt Receipt, idempotencyKey string) (*PostedReceipt, error) {
	if err := e.validateReceipt(ctx, receipt); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		hash, err := requestHash(receipt)
		if err != nil {
			return nil, err
		}
		cached, err := e.idem.Acquire(ctx, idempotencyKey, hash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			prior, err := replay[PostedReceipt](cached)
			if err != nil {
				return nil, err
			}
			prior.Replayed = true
			logger.Info(ctx, "receipt replayed from idempotency store",
				"idempotency_key", idempotencyKey,
				"receipt_id", prior.ReceiptID,
			)
			return prior, nil
		}
	}

	acquired := idempotencyKey != ""

	result := &PostedReceipt{
		ReceiptID: id.New(),
	}

	err := e.runSerialized(ctx, func(ctx context.Context) error {
		// Reset accumulation: the whole batch re-runs on retry.
		result.Entries = result.Entries[:0]
		result.TotalQty = 0
		result.TotalValue = 0

		for _, line := range sortedByProduct(receipt.Lines) {
			entry, err := e.postReceiptLine(ctx, result.ReceiptID, receipt.Header, line)
			if err != nil {
				return err
			}
			result.Entries = append(result.Entries, entry)
			result.TotalQty += line.Qty
			result.TotalValue += entry.TotalCost
		}
		result.PostedAt = time.Now().UTC()

		number, err := e.numbers.Next(ctx, "GR", receipt.Header.Date)
		if err != nil {
			return fmt.Errorf("allocate document number: %w", err)
		}
		result.Number = number

		if err := e.journal.Archive(ctx, ReferenceTypeReceipt, result.ReceiptID, receipt); err != nil {
			return fmt.Errorf("archive receipt: %w", err)
		}

		if idempotencyKey != "" {
			if err := e.idem.Complete(ctx, idempotencyKey, result); err != nil {
				return fmt.Errorf("complete idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// The pending claim no longer guards anything; drop it so the
		// caller's retry is not locked out for the stale window.
		if acquired {
			if relErr := e.idem.Release(ctx, idempotencyKey); relErr != nil {
				logger.Warn(ctx, "release idempotency key failed",
					"idempotency_key", idempotencyKey,
					"error", relErr,
				)
			}
		}
		return nil, err
	}

	logger.Info(ctx, "receipt posted",
		"receipt_id", result.ReceiptID,
		"number", result.Number,
		"lines", len(result.Entries),
		"total_qty", result.TotalQty.String(),
		"total_value", int64(result.TotalValue),
		"supplier_id", receipt.Header.SupplierID,
	)
	return result, nil
}

// postReceiptLine runs one line inside the batch transaction: resolve the
// cost policy, record the inflow cost, open the lot, append the entry.
func (e *Engine) postReceiptLine(ctx context.Context, receiptID id.ID, header ReceiptHeader, line ReceiptLine) (ledger.Entry, error) {
	head, err := e.ledger.HeadForUpdate(ctx, line.ProductID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("lock head: %w", err)
	}

	method, err := e.resolver.Resolve(ctx, line.ProductID, header.Date)
	if err != nil {
		return ledger.Entry{}, err
	}

	inflow := e.valuer.CostInflow(costing.HeadState{
		BalanceQty:   head.BalanceQty,
		AvgUnitCost:  head.AvgUnitCost,
		LastUnitCost: head.LastUnitCost,
	}, line.Qty, line.UnitCost)

	lot, err := e.lots.Open(ctx, lots.OpenParams{
		ProductID:  line.ProductID,
		Qty:        line.Qty,
		UnitCost:   line.UnitCost,
		ReceivedAt: header.Date,
		Expiry:     line.Expiry,
		SourceType: ReferenceTypeReceipt,
		SourceID:   receiptID,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	lotID := lot.ID
	entry, err := e.ledger.Append(ctx, &head, ledger.Draft{
		ProductID:     line.ProductID,
		Movement:      ledger.MovementReceipt,
		ReferenceType: ReferenceTypeReceipt,
		ReferenceID:   receiptID,
		DeltaQty:      line.Qty,
		UnitCost:      inflow.UnitCost,
		TotalCost:     inflow.TotalCost,
		Method:        method,
		LotID:         &lotID,
		AvgUnitCost:   inflow.NewAvg,
		CreatedBy:     header.CreatedBy,
		Notes:         line.BatchRef,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	return entry, nil
}

// validateReceipt rejects the whole batch on any header or line failure,
// before any transaction is opened.
func (e *Engine) validateReceipt(ctx context.Context, receipt Receipt) error {
	header := receipt.Header
	if id.IsNil(header.SupplierID) {
		return apperror.NewValidation("supplier is required")
	}
	if header.Date.IsZero() {
		return apperror.NewValidation("receipt date is required")
	}
	if len(receipt.Lines) == 0 {
		return apperror.NewValidation("at least one line is required")
	}

	supplier, err := e.catalog.GetSupplier(ctx, header.SupplierID)
	if err != nil {
		return err
	}
	if !supplier.Active {
		return apperror.NewValidation("supplier is inactive").
			WithDetail("supplier_id", header.SupplierID.String())
	}

	productIDs := make([]id.ID, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := e.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return err
	}

	for i, line := range receipt.Lines {
		lineNo := i + 1
		product, ok := products[line.ProductID]
		if !ok {
			return apperror.NewNotFound("product", line.ProductID.String()).
				WithDetail("line_no", lineNo)
		}
		if !product.Active {
			return apperror.NewProductInactive(line.ProductID.String()).
				WithDetail("line_no", lineNo)
		}
		if !line.Qty.IsPositive() {
			return apperror.NewValidation("quantity received must be positive").
				WithDetail("line_no", lineNo)
		}
		if !catalog.ValidatePostingQuantity(product, line.Qty) {
			return apperror.NewValidation("piece-unit products require whole quantities").
				WithDetail("line_no", lineNo).
				WithDetail("qty", line.Qty.String())
		}
		if line.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must be non-negative").
				WithDetail("line_no", lineNo)
		}
	}

	return nil
}

// sortedByProduct orders lines by product id so concurrent multi-line
// documents lock heads in a consistent order.
func sortedByProduct(lines []ReceiptLine) []ReceiptLine {
	out := make([]ReceiptLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}
