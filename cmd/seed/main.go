// Package main seeds a development database with demo catalog data and a
// few posted receipts so the API has something to serve out of the box.
// Not for production use.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/squirrel"

	"stockpile/internal/core/id"
	"stockpile/internal/core/types"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/internal/domain/posting"
	"stockpile/internal/infrastructure/storage/postgres"
	"stockpile/pkg/numerator"
)

type seedProduct struct {
	sku       string
	name      string
	unit      catalog.UnitKind
	threshold int64 // low stock threshold, whole units
	method    costing.Method
	qty       int64 // initial receipt quantity, whole units
	unitCost  int64 // cents
}

var seedProducts = []seedProduct{
	{"ESP-BEANS-1KG", "Espresso beans 1kg", catalog.UnitPiece, 10, costing.MethodFIFO, 40, 1_450},
	{"MILK-WHOLE-1L", "Whole milk 1L", catalog.UnitPiece, 24, costing.MethodFIFO, 120, 89},
	{"CUP-12OZ", "Paper cup 12oz", catalog.UnitPiece, 500, costing.MethodAverage, 2_000, 6},
	{"SYRUP-VANILLA", "Vanilla syrup 750ml", catalog.UnitPiece, 6, costing.MethodAverage, 18, 620},
	{"DELI-HAM", "Smoked ham, per kg", catalog.UnitWeight, 5, costing.MethodAverage, 12, 1_120},
}

func main() {
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		fail("connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		fail("ensure schema: %v", err)
	}

	txManager := postgres.NewTxManager(pool)
	supplierID, productIDs, err := seedCatalog(ctx, txManager)
	if err != nil {
		fail("seed catalog: %v", err)
	}

	resolver := costing.NewResolver(postgres.NewPolicyRepo(txManager))
	engine, err := buildEngine(txManager, resolver)
	if err != nil {
		fail("wire posting engine: %v", err)
	}

	effectiveFrom := time.Now().UTC().AddDate(0, 0, -30)
	for i, p := range seedProducts {
		if p.method != costing.MethodAverage {
			if _, err := resolver.SetPolicy(ctx, productIDs[i], p.method, effectiveFrom); err != nil {
				fail("set policy for %s: %v", p.sku, err)
			}
		}
	}

	receipt := posting.Receipt{
		Header: posting.ReceiptHeader{
			SupplierID:        supplierID,
			Date:              time.Now().UTC().AddDate(0, 0, -7),
			SupplierDocNumber: "SEED-0001",
			CreatedBy:         "seed",
		},
	}
	for i, p := range seedProducts {
		receipt.Lines = append(receipt.Lines, posting.ReceiptLine{
			ProductID: productIDs[i],
			Qty:       types.NewQuantityFromInt(p.qty),
			UnitCost:  types.MinorUnits(p.unitCost),
		})
	}

	posted, err := engine.PostReceipt(ctx, receipt, "seed-initial-receipt")
	if err != nil {
		fail("post receipt: %v", err)
	}

	fmt.Printf("Seeded %d products, supplier %s\n", len(seedProducts), supplierID)
	fmt.Printf("Posted receipt %s (%s): %d lines, total value %s\n",
		posted.Number, posted.ReceiptID, len(posted.Entries), posted.TotalValue.String())
}

// seedCatalog upserts the demo supplier and products, keyed by SKU so the
// seeder can be re-run against the same database.
func seedCatalog(ctx context.Context, txManager *postgres.TxManager) (id.ID, []id.ID, error) {
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	querier := txManager.GetQuerier(ctx)

	supplierID := id.New()
	sql, args, err := builder.Insert("suppliers").
		Columns("id", "name", "active").
		Values(supplierID, "Acme Wholesale", true).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return id.Nil(), nil, err
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return id.Nil(), nil, fmt.Errorf("insert supplier: %w", err)
	}

	productIDs := make([]id.ID, len(seedProducts))
	for i, p := range seedProducts {
		productIDs[i] = id.New()
		sql, args, err := builder.Insert("products").
			Columns("id", "sku", "name", "unit", "active", "low_stock_threshold").
			Values(productIDs[i], p.sku, p.name, string(p.unit), true, types.NewQuantityFromInt(p.threshold)).
			Suffix("ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name RETURNING id").
			ToSql()
		if err != nil {
			return id.Nil(), nil, err
		}
		if err := querier.QueryRow(ctx, sql, args...).Scan(&productIDs[i]); err != nil {
			return id.Nil(), nil, fmt.Errorf("upsert product %s: %w", p.sku, err)
		}
	}

	return supplierID, productIDs, nil
}

func buildEngine(txManager *postgres.TxManager, resolver *costing.Resolver) (*posting.Engine, error) {
	journal, err := postgres.NewJournalStore(txManager)
	if err != nil {
		return nil, err
	}

	ledgerRepo := postgres.NewLedgerRepo(txManager)
	tracker := lots.NewTracker(postgres.NewLotRepo(txManager))

	return posting.NewEngine(
		txManager,
		ledger.NewService(ledgerRepo, ledger.DefaultConfig()),
		tracker,
		costing.NewEngine(tracker),
		resolver,
		postgres.NewCatalogRepo(txManager),
		postgres.NewIdempotencyStore(txManager, 24*time.Hour),
		journal,
		numerator.New(postgres.NewSequenceQuerier(txManager)),
		posting.DefaultConfig(),
	), nil
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func fail(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
