package snapshot

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/tx"
	"stockpile/internal/domain/ledger"
	"stockpile/pkg/logger"
)

// Generator builds snapshot batches and trend series from the ledger.
type Generator struct {
	txm    tx.Manager
	ledger ledger.Repository
	repo   Repository
}

func NewGenerator(txm tx.Manager, ledgerRepo ledger.Repository, repo Repository) *Generator {
	return &Generator{txm: txm, ledger: ledgerRepo, repo: repo}
}

// Generate writes a snapshot batch for every product with history, valued
// as of the end of the snapshot date. Regenerating the same date over an
// unchanged ledger produces identical quantities and values under a new
// batch id. The read and the insert share one transaction so readers,
// who take the batch with the latest created_at, never see a torn batch.
func (g *Generator) Generate(ctx context.Context, date time.Time) ([]Snapshot, error) {
	batchID := id.New()

	var snapshots []Snapshot
	err := g.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		cut := endOfDay(date)
		entries, err := g.ledger.GetLastEntriesAt(ctx, cut)
		if err != nil {
			return fmt.Errorf("read ledger at %s: %w", cut.Format(time.RFC3339), err)
		}

		now := time.Now().UTC()
		snapshots = make([]Snapshot, 0, len(entries))
		for _, e := range entries {
			snapshots = append(snapshots, Snapshot{
				SnapshotDate:   dayOf(date),
				ProductID:      e.ProductID,
				QtyOnHand:      e.BalanceQty,
				Value:          e.BalanceValue,
				MethodUsed:     e.Method,
				HasUnknownCost: e.HasUnknownCost,
				BatchID:        batchID,
				CreatedAt:      now,
			})
		}

		if len(snapshots) == 0 {
			return nil
		}
		if err := g.repo.InsertSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("insert snapshot batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "snapshot batch generated",
		"snapshot_date", dayOf(date).Format("2006-01-02"),
		"batch_id", batchID,
		"products", len(snapshots),
	)
	return snapshots, nil
}

// Snapshots returns the latest batch for a date.
func (g *Generator) Snapshots(ctx context.Context, date time.Time, productID *id.ID) ([]Snapshot, error) {
	return g.repo.GetSnapshots(ctx, dayOf(date), productID)
}

// Trend returns a product's daily closing series over [from, to].
func (g *Generator) Trend(ctx context.Context, productID id.ID, from, to time.Time) ([]TrendPoint, error) {
	if to.Before(from) {
		return nil, apperror.NewValidation("trend range end precedes start")
	}
	closings, err := g.ledger.GetDailyClosings(ctx, productID, dayOf(from), endOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("read daily closings: %w", err)
	}

	points := make([]TrendPoint, 0, len(closings))
	for _, e := range closings {
		points = append(points, TrendPoint{
			Date:       dayOf(e.CreatedAt),
			ClosingQty: e.BalanceQty,
			Value:      e.BalanceValue,
		})
	}
	return points, nil
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return dayOf(t).Add(24*time.Hour - time.Nanosecond)
}
