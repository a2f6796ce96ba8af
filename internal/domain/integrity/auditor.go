// Package integrity reconciles the derived stock projections against the
// ledger. Drift never blocks reads or postings; it is reported so the
// ledger, which is the source of truth, can be used to rebuild.
package integrity

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/pkg/logger"
)

// CheckKind names a reconciliation that can drift.
type CheckKind string

const (
	// CheckHeadFold compares the stored head against a full re-fold of
	// the product's entries.
	CheckHeadFold CheckKind = "HEAD_FOLD"

	// CheckLotQty compares the head balance against the sum of remaining
	// lot quantities. Runs only for lot-costed products; AVERAGE outflows
	// leave lots untouched, so their remainders lag the balance by
	// design of the method, not by drift. Skipped while the balance is
	// negative, since lots cannot go below zero.
	CheckLotQty CheckKind = "LOT_QTY"

	// CheckLotValue compares the ledger value against the sum of
	// remaining lot values, for lot-costed products.
	CheckLotValue CheckKind = "LOT_VALUE"
)

// Warning is one detected divergence between the ledger and a projection.
type Warning struct {
	ProductID id.ID     `json:"productId"`
	Check     CheckKind `json:"check"`
	Expected  string    `json:"expected"`
	Actual    string    `json:"actual"`
	Detail    string    `json:"detail,omitempty"`
}

// Report is the outcome of one audit run.
type Report struct {
	ProductsChecked int       `json:"productsChecked"`
	Warnings        []Warning `json:"warnings"`
}

// Clean reports whether the run found no drift.
func (r Report) Clean() bool { return len(r.Warnings) == 0 }

// MethodResolver reports the costing method in effect for a product.
// Satisfied by *costing.Resolver.
type MethodResolver interface {
	Resolve(ctx context.Context, productID id.ID, at time.Time) (costing.Method, error)
}

// Auditor runs reconciliation checks over ledger heads and lots.
type Auditor struct {
	ledger  ledger.Repository
	lots    *lots.Tracker
	methods MethodResolver
}

func NewAuditor(ledgerRepo ledger.Repository, tracker *lots.Tracker, methods MethodResolver) *Auditor {
	return &Auditor{ledger: ledgerRepo, lots: tracker, methods: methods}
}

// AuditProduct reconciles one product.
func (a *Auditor) AuditProduct(ctx context.Context, productID id.ID) ([]Warning, error) {
	head, err := a.ledger.GetHead(ctx, productID)
	if err != nil {
		return nil, err
	}
	return a.auditHead(ctx, head)
}

// AuditAll reconciles every product with ledger history.
func (a *Auditor) AuditAll(ctx context.Context) (Report, error) {
	var report Report
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		heads, err := a.ledger.ListHeads(ctx, pageSize, offset)
		if err != nil {
			return Report{}, fmt.Errorf("list heads: %w", err)
		}
		if len(heads) == 0 {
			break
		}
		for _, head := range heads {
			warnings, err := a.auditHead(ctx, head)
			if err != nil {
				return Report{}, err
			}
			report.ProductsChecked++
			report.Warnings = append(report.Warnings, warnings...)
		}
		if len(heads) < pageSize {
			break
		}
	}

	if !report.Clean() {
		logger.Warn(ctx, "integrity audit found drift",
			"products_checked", report.ProductsChecked,
			"warnings", len(report.Warnings),
		)
	}
	return report, nil
}

func (a *Auditor) auditHead(ctx context.Context, head ledger.Head) ([]Warning, error) {
	var warnings []Warning

	folded, err := a.ledger.ComputeHeadFromEntries(ctx, head.ProductID)
	if err != nil {
		return nil, fmt.Errorf("fold entries for %s: %w", head.ProductID, err)
	}
	if folded.BalanceQty != head.BalanceQty || folded.BalanceValue != head.BalanceValue || folded.LastSeq != head.LastSeq {
		warnings = append(warnings, Warning{
			ProductID: head.ProductID,
			Check:     CheckHeadFold,
			Expected:  foldSummary(folded),
			Actual:    foldSummary(head),
			Detail:    "stored head diverges from entry fold; rebuild the head from the ledger",
		})
	}

	// Lot checks reconcile against the fold, not the stored head, so one
	// stale head does not fail every check.
	if folded.BalanceQty.IsNegative() {
		return warnings, nil
	}

	method, err := a.methods.Resolve(ctx, head.ProductID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve method for %s: %w", head.ProductID, err)
	}
	if !method.UsesLots() {
		// AVERAGE carries its cost basis on the head; open lots are not
		// consumed on outflow and cannot be reconciled to the balance.
		return warnings, nil
	}

	lotQty, err := a.lots.Remaining(ctx, head.ProductID)
	if err != nil {
		return nil, fmt.Errorf("sum lot quantities for %s: %w", head.ProductID, err)
	}
	if lotQty != folded.BalanceQty {
		warnings = append(warnings, Warning{
			ProductID: head.ProductID,
			Check:     CheckLotQty,
			Expected:  folded.BalanceQty.String(),
			Actual:    lotQty.String(),
			Detail:    "remaining lot quantities diverge from the ledger balance",
		})
	}

	lotValue, err := a.lots.RemainingValue(ctx, head.ProductID)
	if err != nil {
		return nil, fmt.Errorf("sum lot values for %s: %w", head.ProductID, err)
	}
	if lotValue != folded.BalanceValue {
		warnings = append(warnings, Warning{
			ProductID: head.ProductID,
			Check:     CheckLotValue,
			Expected:  folded.BalanceValue.String(),
			Actual:    lotValue.String(),
			Detail:    "remaining lot values diverge from the ledger value",
		})
	}

	return warnings, nil
}

func foldSummary(h ledger.Head) string {
	return fmt.Sprintf("seq=%d qty=%s value=%s", h.LastSeq, h.BalanceQty.String(), h.BalanceValue.String())
}
