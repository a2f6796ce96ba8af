package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
)

// fakeLedgerRepo serves snapshot and alert tests from a fixed entry list.
type fakeLedgerRepo struct {
	entries []ledger.Entry
	heads   []ledger.Head
}

func (f *fakeLedgerRepo) GetHeadForUpdate(_ context.Context, productID id.ID) (ledger.Head, error) {
	return ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}, nil
}

func (f *fakeLedgerRepo) SaveHead(_ context.Context, _ ledger.Head) error { return nil }

func (f *fakeLedgerRepo) InsertEntries(_ context.Context, entries []ledger.Entry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeLedgerRepo) GetHead(_ context.Context, productID id.ID) (ledger.Head, error) {
	for _, h := range f.heads {
		if h.ProductID == productID {
			return h, nil
		}
	}
	return ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}, nil
}

func (f *fakeLedgerRepo) ListHeads(_ context.Context, limit, offset int) ([]ledger.Head, error) {
	if offset >= len(f.heads) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.heads) {
		end = len(f.heads)
	}
	return f.heads[offset:end], nil
}

func (f *fakeLedgerRepo) GetMovementHistory(_ context.Context, _ id.ID, _ ledger.MovementFilter) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) GetLastEntriesAt(_ context.Context, asOf time.Time) ([]ledger.Entry, error) {
	latest := make(map[id.ID]ledger.Entry)
	for _, e := range f.entries {
		if e.CreatedAt.After(asOf) {
			continue
		}
		if prev, ok := latest[e.ProductID]; !ok || e.Seq > prev.Seq {
			latest[e.ProductID] = e
		}
	}
	var out []ledger.Entry
	for _, e := range latest {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedgerRepo) ComputeHeadFromEntries(_ context.Context, productID id.ID) (ledger.Head, error) {
	return ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}, nil
}

func (f *fakeLedgerRepo) GetDailyClosings(_ context.Context, productID id.ID, from, to time.Time) ([]ledger.Entry, error) {
	byDay := make(map[time.Time]ledger.Entry)
	for _, e := range f.entries {
		if e.ProductID != productID || e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		day := e.CreatedAt.Truncate(24 * time.Hour)
		if prev, ok := byDay[day]; !ok || e.Seq > prev.Seq {
			byDay[day] = e
		}
	}
	var out []ledger.Entry
	for _, e := range byDay {
		out = append(out, e)
	}
	return out, nil
}

// passthroughTxManager runs the unit directly, without a database.
type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeSnapshotRepo struct {
	inserted [][]Snapshot
}

func (f *fakeSnapshotRepo) InsertSnapshots(_ context.Context, snapshots []Snapshot) error {
	f.inserted = append(f.inserted, snapshots)
	return nil
}

func (f *fakeSnapshotRepo) GetSnapshots(_ context.Context, date time.Time, productID *id.ID) ([]Snapshot, error) {
	if len(f.inserted) == 0 {
		return nil, nil
	}
	var out []Snapshot
	for _, s := range f.inserted[len(f.inserted)-1] {
		if !s.SnapshotDate.Equal(date) {
			continue
		}
		if productID != nil && s.ProductID != *productID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func entryAt(productID id.ID, seq int64, at time.Time, qty, value int64) ledger.Entry {
	return ledger.Entry{
		LineID:       id.New(),
		ProductID:    productID,
		Seq:          seq,
		BalanceQty:   types.NewQuantityFromInt(qty),
		BalanceValue: types.MinorUnits(value),
		Method:       costing.MethodAverage,
		CreatedAt:    at,
	}
}

func TestGenerate_SnapshotsLastEntryOfDay(t *testing.T) {
	productID := id.New()
	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	ledgerRepo := &fakeLedgerRepo{entries: []ledger.Entry{
		entryAt(productID, 1, day.Add(9*time.Hour), 100, 100_000),
		entryAt(productID, 2, day.Add(17*time.Hour), 70, 70_000),
		// Next day's movement must not leak into the snapshot.
		entryAt(productID, 3, day.Add(30*time.Hour), 10, 10_000),
	}}
	repo := &fakeSnapshotRepo{}
	gen := NewGenerator(passthroughTxManager{}, ledgerRepo, repo)

	snapshots, err := gen.Generate(context.Background(), day)
	require.NoError(t, err)

	require.Len(t, snapshots, 1)
	s := snapshots[0]
	assert.Equal(t, types.NewQuantityFromInt(70), s.QtyOnHand)
	assert.Equal(t, types.MinorUnits(70_000), s.Value)
	assert.Equal(t, day, s.SnapshotDate)
	assert.False(t, id.IsNil(s.BatchID))
}

func TestGenerate_RegenerationIsIdempotent(t *testing.T) {
	productID := id.New()
	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	ledgerRepo := &fakeLedgerRepo{entries: []ledger.Entry{
		entryAt(productID, 1, day.Add(12*time.Hour), 40, 44_000),
	}}
	repo := &fakeSnapshotRepo{}
	gen := NewGenerator(passthroughTxManager{}, ledgerRepo, repo)
	ctx := context.Background()

	first, err := gen.Generate(ctx, day)
	require.NoError(t, err)
	second, err := gen.Generate(ctx, day)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].QtyOnHand, second[0].QtyOnHand)
	assert.Equal(t, first[0].Value, second[0].Value)
	assert.NotEqual(t, first[0].BatchID, second[0].BatchID, "each run gets its own batch")

	// Readers see the latest batch only.
	read, err := gen.Snapshots(ctx, day, nil)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, second[0].BatchID, read[0].BatchID)
}

func TestGenerate_EmptyLedgerWritesNothing(t *testing.T) {
	repo := &fakeSnapshotRepo{}
	gen := NewGenerator(passthroughTxManager{}, &fakeLedgerRepo{}, repo)

	snapshots, err := gen.Generate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, snapshots)
	assert.Empty(t, repo.inserted)
}

// trackingTxManager counts open transactions so repos can observe whether
// they were called inside one.
type trackingTxManager struct {
	depth int
}

func (m *trackingTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.depth++
	defer func() { m.depth-- }()
	return fn(ctx)
}

type txAwareSnapshotRepo struct {
	fakeSnapshotRepo
	txm      *trackingTxManager
	insideTx bool
}

func (r *txAwareSnapshotRepo) InsertSnapshots(ctx context.Context, snapshots []Snapshot) error {
	r.insideTx = r.txm.depth > 0
	return r.fakeSnapshotRepo.InsertSnapshots(ctx, snapshots)
}

func TestGenerate_WritesBatchInOneTransaction(t *testing.T) {
	productID := id.New()
	day := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	ledgerRepo := &fakeLedgerRepo{entries: []ledger.Entry{
		entryAt(productID, 1, day.Add(12*time.Hour), 40, 44_000),
	}}
	txm := &trackingTxManager{}
	repo := &txAwareSnapshotRepo{txm: txm}
	gen := NewGenerator(txm, ledgerRepo, repo)

	_, err := gen.Generate(context.Background(), day)
	require.NoError(t, err)
	assert.True(t, repo.insideTx, "batch insert must run inside the generation transaction")
	assert.Zero(t, txm.depth)
}

func TestTrend_RangeValidation(t *testing.T) {
	gen := NewGenerator(passthroughTxManager{}, &fakeLedgerRepo{}, &fakeSnapshotRepo{})

	from := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	_, err := gen.Trend(context.Background(), id.New(), from, from.AddDate(0, 0, -1))
	require.Error(t, err)
}

func TestTrend_DailyClosings(t *testing.T) {
	productID := id.New()
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	ledgerRepo := &fakeLedgerRepo{entries: []ledger.Entry{
		entryAt(productID, 1, day.Add(10*time.Hour), 100, 100_000),
		entryAt(productID, 2, day.Add(15*time.Hour), 80, 80_000),
		entryAt(productID, 3, day.AddDate(0, 0, 1).Add(11*time.Hour), 60, 60_000),
	}}
	gen := NewGenerator(passthroughTxManager{}, ledgerRepo, &fakeSnapshotRepo{})

	points, err := gen.Trend(context.Background(), productID, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)

	require.Len(t, points, 2)
	byDate := make(map[time.Time]TrendPoint)
	for _, p := range points {
		byDate[p.Date] = p
	}
	assert.Equal(t, types.NewQuantityFromInt(80), byDate[day].ClosingQty, "closing is the day's last entry")
	assert.Equal(t, types.NewQuantityFromInt(60), byDate[day.AddDate(0, 0, 1)].ClosingQty)
}
