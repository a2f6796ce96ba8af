package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
)

// --- fakes ---

var errLockTimeout = errors.New("lock timeout")

// fakeTxManager runs the unit directly. failBeforeFn simulates lock
// acquisition failing at transaction start for the first N calls.
type fakeTxManager struct {
	calls        int
	failBeforeFn int
}

func (f *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeTxManager) RunSerialized(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.calls <= f.failBeforeFn {
		return errLockTimeout
	}
	return fn(ctx)
}

func (f *fakeTxManager) IsRetryable(err error) bool {
	return errors.Is(err, errLockTimeout)
}

type fakeCatalog struct {
	products  map[id.ID]catalog.Product
	suppliers map[id.ID]catalog.Supplier
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:  make(map[id.ID]catalog.Product),
		suppliers: make(map[id.ID]catalog.Supplier),
	}
}

func (f *fakeCatalog) GetProduct(_ context.Context, productID id.ID) (catalog.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return catalog.Product{}, apperror.NewNotFound("product", productID.String())
	}
	return p, nil
}

func (f *fakeCatalog) GetProducts(_ context.Context, ids []id.ID) (map[id.ID]catalog.Product, error) {
	out := make(map[id.ID]catalog.Product)
	for _, pid := range ids {
		if p, ok := f.products[pid]; ok {
			out[pid] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetSupplier(_ context.Context, supplierID id.ID) (catalog.Supplier, error) {
	s, ok := f.suppliers[supplierID]
	if !ok {
		return catalog.Supplier{}, apperror.NewNotFound("supplier", supplierID.String())
	}
	return s, nil
}

func (f *fakeCatalog) ListActiveProducts(_ context.Context, _, _ int) ([]catalog.Product, error) {
	return nil, nil
}

type idemRecord struct {
	hash     string
	response []byte
	done     bool
}

type fakeIdemStore struct {
	records map[string]*idemRecord
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{records: make(map[string]*idemRecord)}
}

func (f *fakeIdemStore) Acquire(_ context.Context, key, requestHash string) ([]byte, error) {
	if rec, ok := f.records[key]; ok {
		if rec.hash != requestHash {
			return nil, apperror.NewIdempotencyMismatch(key)
		}
		if rec.done {
			return rec.response, nil
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}
	f.records[key] = &idemRecord{hash: requestHash}
	return nil, nil
}

func (f *fakeIdemStore) Complete(_ context.Context, key string, result any) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	rec := f.records[key]
	rec.response = b
	rec.done = true
	return nil
}

func (f *fakeIdemStore) Release(_ context.Context, key string) error {
	if rec, ok := f.records[key]; ok && !rec.done {
		delete(f.records, key)
	}
	return nil
}

type fakeJournal struct {
	archived int
}

func (f *fakeJournal) Archive(_ context.Context, _ string, _ id.ID, _ any) error {
	f.archived++
	return nil
}

type fakeDocNumbers struct {
	next int
}

func (f *fakeDocNumbers) Next(_ context.Context, prefix string, period time.Time) (string, error) {
	f.next++
	return fmt.Sprintf("%s-%d-%05d", prefix, period.Year(), f.next), nil
}

// fakeLedgerRepo folds in memory, like the real repo does in SQL.
type fakeLedgerRepo struct {
	entries []ledger.Entry
	heads   map[id.ID]ledger.Head
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{heads: make(map[id.ID]ledger.Head)}
}

func (f *fakeLedgerRepo) GetHeadForUpdate(_ context.Context, productID id.ID) (ledger.Head, error) {
	if h, ok := f.heads[productID]; ok {
		return h, nil
	}
	return ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}, nil
}

func (f *fakeLedgerRepo) SaveHead(_ context.Context, head ledger.Head) error {
	f.heads[head.ProductID] = head
	return nil
}

func (f *fakeLedgerRepo) InsertEntries(_ context.Context, entries []ledger.Entry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeLedgerRepo) GetHead(_ context.Context, productID id.ID) (ledger.Head, error) {
	return f.GetHeadForUpdate(context.Background(), productID)
}

func (f *fakeLedgerRepo) ListHeads(_ context.Context, _, _ int) ([]ledger.Head, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) GetMovementHistory(_ context.Context, productID id.ID, _ ledger.MovementFilter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) GetLastEntriesAt(_ context.Context, _ time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) ComputeHeadFromEntries(_ context.Context, productID id.ID) (ledger.Head, error) {
	head := ledger.Head{ProductID: productID, AvgUnitCost: decimal.Zero}
	for _, e := range f.entries {
		if e.ProductID != productID {
			continue
		}
		if e.Seq > head.LastSeq {
			head.LastSeq = e.Seq
		}
		head.BalanceQty += e.DeltaQty
		head.BalanceValue += e.TotalCost
	}
	return head, nil
}

func (f *fakeLedgerRepo) GetDailyClosings(_ context.Context, _ id.ID, _, _ time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

type fakeLotRepo struct {
	lots []lots.Lot
}

func (f *fakeLotRepo) InsertLot(_ context.Context, l lots.Lot) error {
	f.lots = append(f.lots, l)
	return nil
}

func (f *fakeLotRepo) SelectOpenForUpdate(_ context.Context, productID id.ID, order lots.Order) ([]lots.Lot, error) {
	var out []lots.Lot
	for _, l := range f.lots {
		if l.ProductID == productID && l.RemainingQty.IsPositive() {
			out = append(out, l)
		}
	}
	if order == lots.OrderLIFO {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (f *fakeLotRepo) ApplyConsumptions(_ context.Context, consumptions []lots.Consumption) error {
	for _, c := range consumptions {
		for i := range f.lots {
			if f.lots[i].ID == c.LotID {
				f.lots[i].RemainingQty -= c.QtyTaken
			}
		}
	}
	return nil
}

func (f *fakeLotRepo) RecordEntryConsumptions(_ context.Context, _ id.ID, _ []lots.Consumption) error {
	return nil
}

func (f *fakeLotRepo) SumRemaining(_ context.Context, productID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, l := range f.lots {
		if l.ProductID == productID {
			total += l.RemainingQty
		}
	}
	return total, nil
}

func (f *fakeLotRepo) SumRemainingValue(_ context.Context, productID id.ID) (types.MinorUnits, error) {
	var total types.MinorUnits
	for _, l := range f.lots {
		if l.ProductID == productID {
			total += types.CostOf(l.RemainingQty, l.UnitCost)
		}
	}
	return total, nil
}

func (f *fakeLotRepo) ListByProduct(_ context.Context, productID id.ID) ([]lots.Lot, error) {
	var out []lots.Lot
	for _, l := range f.lots {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLotRepo) ListExpiring(_ context.Context, _ time.Time) ([]lots.Lot, error) {
	return nil, nil
}

type fakePolicyRepo struct {
	methods map[id.ID]costing.Method
}

func (f *fakePolicyRepo) GetActive(_ context.Context, productID id.ID, _ time.Time) (*costing.Policy, error) {
	if m, ok := f.methods[productID]; ok {
		return &costing.Policy{ProductID: productID, Method: m}, nil
	}
	return nil, nil
}

func (f *fakePolicyRepo) Insert(_ context.Context, policy costing.Policy) error {
	f.methods[policy.ProductID] = policy.Method
	return nil
}

func (f *fakePolicyRepo) ListHistory(_ context.Context, _ id.ID) ([]costing.Policy, error) {
	return nil, nil
}

// --- fixture ---

type fixture struct {
	engine     *Engine
	txm        *fakeTxManager
	catalog    *fakeCatalog
	ledgerRepo *fakeLedgerRepo
	lotRepo    *fakeLotRepo
	policies   *fakePolicyRepo
	journal    *fakeJournal
	idem       *fakeIdemStore
	numbers    *fakeDocNumbers
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		txm:        &fakeTxManager{},
		catalog:    newFakeCatalog(),
		ledgerRepo: newFakeLedgerRepo(),
		lotRepo:    &fakeLotRepo{},
		policies:   &fakePolicyRepo{methods: make(map[id.ID]costing.Method)},
		journal:    &fakeJournal{},
		idem:       newFakeIdemStore(),
		numbers:    &fakeDocNumbers{},
	}
	tracker := lots.NewTracker(f.lotRepo)
	f.engine = NewEngine(
		f.txm,
		ledger.NewService(f.ledgerRepo, ledger.DefaultConfig()),
		tracker,
		costing.NewEngine(tracker),
		costing.NewResolver(f.policies),
		f.catalog,
		f.idem,
		f.journal,
		f.numbers,
		cfg,
	)
	return f
}

func fastRetryConfig() Config {
	return Config{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func (f *fixture) addProduct(unit catalog.UnitKind) id.ID {
	productID := id.New()
	f.catalog.products[productID] = catalog.Product{
		ID: productID, SKU: "SKU-1", Name: "Widget", Unit: unit, Active: true,
	}
	return productID
}

func (f *fixture) addSupplier() id.ID {
	supplierID := id.New()
	f.catalog.suppliers[supplierID] = catalog.Supplier{ID: supplierID, Name: "Acme", Active: true}
	return supplierID
}

func receiptFor(supplierID, productID id.ID, qty, unitCost int64) Receipt {
	return Receipt{
		Header: ReceiptHeader{
			SupplierID: supplierID,
			Date:       time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			CreatedBy:  "tester",
		},
		Lines: []ReceiptLine{{
			ProductID: productID,
			Qty:       types.NewQuantityFromInt(qty),
			UnitCost:  types.MinorUnits(unitCost),
		}},
	}
}

// --- tests ---

func TestPostReceipt_SingleLine(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)

	result, err := f.engine.PostReceipt(context.Background(), receiptFor(supplierID, productID, 100, 1000), "")
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	assert.Equal(t, int64(1), entry.Seq)
	assert.Equal(t, ledger.MovementReceipt, entry.Movement)
	assert.Equal(t, types.NewQuantityFromInt(100), entry.BalanceQty)
	assert.Equal(t, types.MinorUnits(100_000), entry.BalanceValue)
	assert.Equal(t, costing.MethodAverage, entry.Method, "no policy row defaults to AVERAGE")
	require.NotNil(t, entry.LotID, "every receipt line opens a lot")
	assert.Equal(t, "GR-2026-00001", result.Number)

	require.Len(t, f.lotRepo.lots, 1)
	assert.Equal(t, types.NewQuantityFromInt(100), f.lotRepo.lots[0].RemainingQty)
	assert.Equal(t, 1, f.journal.archived, "source document must be archived")
}

func TestPostReceipt_MultiLineAllOrNothing(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	good := f.addProduct(catalog.UnitPiece)

	inactive := id.New()
	f.catalog.products[inactive] = catalog.Product{ID: inactive, Unit: catalog.UnitPiece, Active: false}

	receipt := receiptFor(supplierID, good, 10, 500)
	receipt.Lines = append(receipt.Lines, ReceiptLine{
		ProductID: inactive,
		Qty:       types.NewQuantityFromInt(5),
		UnitCost:  600,
	})

	_, err := f.engine.PostReceipt(context.Background(), receipt, "")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeProductInactive))

	assert.Empty(t, f.ledgerRepo.entries, "a failed batch must write nothing")
	assert.Empty(t, f.lotRepo.lots)
	assert.Zero(t, f.journal.archived)
}

func TestPostReceipt_ValidationRejections(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	piece := f.addProduct(catalog.UnitPiece)

	tests := []struct {
		name   string
		mutate func(r *Receipt)
	}{
		{"missing supplier", func(r *Receipt) { r.Header.SupplierID = id.Nil() }},
		{"zero date", func(r *Receipt) { r.Header.Date = time.Time{} }},
		{"no lines", func(r *Receipt) { r.Lines = nil }},
		{"zero qty", func(r *Receipt) { r.Lines[0].Qty = 0 }},
		{"negative cost", func(r *Receipt) { r.Lines[0].UnitCost = -1 }},
		{"fractional piece qty", func(r *Receipt) { r.Lines[0].Qty = types.Quantity(1_500) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt := receiptFor(supplierID, piece, 10, 500)
			tt.mutate(&receipt)
			_, err := f.engine.PostReceipt(context.Background(), receipt, "")
			require.Error(t, err)
		})
	}

	assert.Empty(t, f.ledgerRepo.entries)
}

func TestPostReceipt_IdempotentReplay(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	receipt := receiptFor(supplierID, productID, 100, 1000)
	ctx := context.Background()

	first, err := f.engine.PostReceipt(ctx, receipt, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.engine.PostReceipt(ctx, receipt, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ReceiptID, second.ReceiptID)

	assert.Len(t, f.ledgerRepo.entries, 1, "replay must not double-post")
	assert.Len(t, f.lotRepo.lots, 1)
}

func TestPostReceipt_IdempotencyKeyReusedForDifferentBody(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 100, 1000), "key-1")
	require.NoError(t, err)

	_, err = f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 50, 1000), "key-1")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
}

func TestPostReceipt_RetriesContentionThenSucceeds(t *testing.T) {
	f := newFixture(fastRetryConfig())
	f.txm.failBeforeFn = 2
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)

	result, err := f.engine.PostReceipt(context.Background(), receiptFor(supplierID, productID, 10, 500), "")
	require.NoError(t, err)

	assert.Equal(t, 3, f.txm.calls, "two contended attempts plus one success")
	assert.Len(t, f.ledgerRepo.entries, 1)
	assert.Equal(t, types.NewQuantityFromInt(10), result.TotalQty)
}

func TestPostReceipt_ContentionExhaustsRetries(t *testing.T) {
	f := newFixture(fastRetryConfig())
	f.txm.failBeforeFn = 100
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)

	_, err := f.engine.PostReceipt(context.Background(), receiptFor(supplierID, productID, 10, 500), "")
	require.Error(t, err)
	assert.True(t, apperror.IsContention(err))
	assert.Equal(t, 3, f.txm.calls)
	assert.Empty(t, f.ledgerRepo.entries)
}

func TestPostReceipt_FailedPostingFreesIdempotencyKey(t *testing.T) {
	f := newFixture(fastRetryConfig())
	f.txm.failBeforeFn = 100
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	receipt := receiptFor(supplierID, productID, 10, 500)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receipt, "key-1")
	require.Error(t, err)
	assert.True(t, apperror.IsContention(err))
	assert.NotContains(t, f.idem.records, "key-1", "pending claim must not outlive the failed posting")

	// An immediate retry with the same key posts fresh instead of
	// being rejected as in-flight.
	f.txm.failBeforeFn = 0
	result, err := f.engine.PostReceipt(ctx, receipt, "key-1")
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Len(t, f.ledgerRepo.entries, 1)
}

func TestPostReceipt_InFlightKeyConflicts(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	receipt := receiptFor(supplierID, productID, 10, 500)
	ctx := context.Background()

	hash, err := requestHash(receipt)
	require.NoError(t, err)
	f.idem.records["key-1"] = &idemRecord{hash: hash}

	_, err = f.engine.PostReceipt(ctx, receipt, "key-1")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
	assert.Empty(t, f.ledgerRepo.entries)
}

func TestPostOutflow_AverageSale(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 100, 1000), "")
	require.NoError(t, err)

	result, err := f.engine.PostOutflow(ctx, OutflowRequest{
		ProductID:     productID,
		Qty:           types.NewQuantityFromInt(30),
		Movement:      ledger.MovementSale,
		ReferenceType: "Sale",
		ReferenceID:   id.New(),
		CreatedBy:     "pos",
	})
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantityFromInt(70), result.Entry.BalanceQty)
	assert.Equal(t, types.MinorUnits(70_000), result.Entry.BalanceValue)
	assert.Equal(t, types.MinorUnits(30_000), result.TotalCost)
	assert.False(t, result.HasUnknownCost)
	assert.True(t, result.Entry.DeltaQty.IsNegative(), "outflow deltas are negative in the ledger")
}

func TestPostOutflow_RejectsInvalidMovement(t *testing.T) {
	f := newFixture(DefaultConfig())
	productID := f.addProduct(catalog.UnitPiece)

	_, err := f.engine.PostOutflow(context.Background(), OutflowRequest{
		ProductID: productID,
		Qty:       types.NewQuantityFromInt(1),
		Movement:  ledger.MovementReceipt,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestPostOutflow_OversellFlagsUnknownCost(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	f.policies.methods[productID] = costing.MethodFIFO
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 50, 800), "")
	require.NoError(t, err)

	result, err := f.engine.PostOutflow(ctx, OutflowRequest{
		ProductID:     productID,
		Qty:           types.NewQuantityFromInt(200),
		Movement:      ledger.MovementSale,
		ReferenceType: "Sale",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err, "overselling posts successfully, flagged")

	assert.True(t, result.HasUnknownCost)
	assert.Equal(t, types.NewQuantityFromInt(-150), result.Entry.BalanceQty)
	// 50@800 from the lot, 150@800 fallback at last known cost
	assert.Equal(t, types.MinorUnits(160_000), result.TotalCost)

	remaining, err := lots.NewTracker(f.lotRepo).Remaining(ctx, productID)
	require.NoError(t, err)
	assert.True(t, remaining.IsZero(), "lots drain to zero, never negative")
}

func TestPostReturn_OpensLotAtReturnCost(t *testing.T) {
	f := newFixture(DefaultConfig())
	productID := f.addProduct(catalog.UnitPiece)
	ctx := context.Background()

	cost := types.MinorUnits(950)
	result, err := f.engine.PostReturn(ctx, ReturnRequest{
		ProductID:     productID,
		Qty:           types.NewQuantityFromInt(2),
		UnitCost:      &cost,
		ReferenceType: "SaleReturn",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.MovementReturn, result.Entry.Movement)
	assert.False(t, result.HasUnknownCost)
	require.Len(t, f.lotRepo.lots, 1)
	assert.Equal(t, types.MinorUnits(950), f.lotRepo.lots[0].UnitCost)
}

func TestPostReturn_NoCostFallsBackToLastKnown(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 10, 700), "")
	require.NoError(t, err)

	result, err := f.engine.PostReturn(ctx, ReturnRequest{
		ProductID:     productID,
		Qty:           types.NewQuantityFromInt(1),
		ReferenceType: "SaleReturn",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, types.MinorUnits(700), result.UnitCost)
	assert.False(t, result.HasUnknownCost)
}

func TestPostReturn_NoCostNoHistoryIsUnknown(t *testing.T) {
	f := newFixture(DefaultConfig())
	productID := f.addProduct(catalog.UnitPiece)

	result, err := f.engine.PostReturn(context.Background(), ReturnRequest{
		ProductID:     productID,
		Qty:           types.NewQuantityFromInt(1),
		ReferenceType: "SaleReturn",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)
	assert.True(t, result.HasUnknownCost)
}

func TestPostAdjustment(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitPiece)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, receiptFor(supplierID, productID, 10, 1000), "")
	require.NoError(t, err)

	// Zero delta rejected
	_, err = f.engine.PostAdjustment(ctx, AdjustmentRequest{ProductID: productID})
	require.Error(t, err)

	// Negative adjustment behaves like an outflow
	down, err := f.engine.PostAdjustment(ctx, AdjustmentRequest{
		ProductID:     productID,
		DeltaQty:      types.NewQuantityFromInt(-3),
		ReferenceType: "StockCount",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.MovementAdjustment, down.Entry.Movement)
	assert.Equal(t, types.NewQuantityFromInt(7), down.Entry.BalanceQty)

	// Positive adjustment opens a lot
	cost := types.MinorUnits(1100)
	up, err := f.engine.PostAdjustment(ctx, AdjustmentRequest{
		ProductID:     productID,
		DeltaQty:      types.NewQuantityFromInt(5),
		UnitCost:      &cost,
		ReferenceType: "StockCount",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(12), up.Entry.BalanceQty)
	require.NotNil(t, up.Entry.LotID)
}

func TestPostOutflow_WeightProductFractionalQty(t *testing.T) {
	f := newFixture(DefaultConfig())
	supplierID := f.addSupplier()
	productID := f.addProduct(catalog.UnitWeight)
	ctx := context.Background()

	receipt := receiptFor(supplierID, productID, 10, 1000)
	_, err := f.engine.PostReceipt(ctx, receipt, "")
	require.NoError(t, err)

	result, err := f.engine.PostOutflow(ctx, OutflowRequest{
		ProductID:     productID,
		Qty:           types.Quantity(2_500), // 2.5 kg
		Movement:      ledger.MovementSale,
		ReferenceType: "Sale",
		ReferenceID:   id.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(7_500), result.Entry.BalanceQty)
	assert.Equal(t, types.MinorUnits(2_500), result.TotalCost)
}
