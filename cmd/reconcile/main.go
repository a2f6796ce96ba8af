// Package main provides CLI for ledger reconciliation.
// Usage: reconcile audit [product-id]
//        reconcile rebuild <product-id>
//        reconcile cleanup
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/integrity"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/internal/infrastructure/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "audit":
		runAudit(ctx)
	case "rebuild":
		runRebuild(ctx)
	case "cleanup":
		runCleanup(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Stockpile Reconciliation CLI

Usage:
  reconcile <command> [options]

Commands:
  audit     Check ledger heads and lots against the entry fold
  rebuild   Recompute one product's head from its entries
  cleanup   Purge expired idempotency keys
  help      Show this help

Environment:
  DATABASE_URL   PostgreSQL connection string (required)`)
}

func connect(ctx context.Context) *postgres.Pool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("DATABASE_URL not set")
		os.Exit(1)
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		fmt.Printf("failed to connect: %v\n", err)
		os.Exit(1)
	}
	return pool
}

func runAudit(ctx context.Context) {
	pool := connect(ctx)
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	ledgerRepo := postgres.NewLedgerRepo(txManager)
	tracker := lots.NewTracker(postgres.NewLotRepo(txManager))
	auditor := integrity.NewAuditor(ledgerRepo, tracker,
		costing.NewResolver(postgres.NewPolicyRepo(txManager)))

	if len(os.Args) > 2 {
		productID, err := id.Parse(os.Args[2])
		if err != nil {
			fmt.Printf("invalid product id: %v\n", err)
			os.Exit(1)
		}
		warnings, err := auditor.AuditProduct(ctx, productID)
		if err != nil {
			fmt.Printf("audit failed: %v\n", err)
			os.Exit(1)
		}
		printWarnings(warnings)
		if len(warnings) > 0 {
			os.Exit(2)
		}
		fmt.Println("OK: product is consistent")
		return
	}

	report, err := auditor.AuditAll(ctx)
	if err != nil {
		fmt.Printf("audit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Checked %d products\n", report.ProductsChecked)
	printWarnings(report.Warnings)
	if !report.Clean() {
		os.Exit(2)
	}
	fmt.Println("OK: ledger is consistent")
}

func printWarnings(warnings []integrity.Warning) {
	for _, w := range warnings {
		fmt.Printf("WARN %-10s product=%s expected=%s actual=%s %s\n",
			w.Check, w.ProductID, w.Expected, w.Actual, w.Detail)
	}
}

func runRebuild(ctx context.Context) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: reconcile rebuild <product-id>")
		os.Exit(1)
	}
	productID, err := id.Parse(os.Args[2])
	if err != nil {
		fmt.Printf("invalid product id: %v\n", err)
		os.Exit(1)
	}

	pool := connect(ctx)
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	svc := ledger.NewService(postgres.NewLedgerRepo(txManager), ledger.DefaultConfig())

	head, err := svc.RebuildHead(ctx, productID)
	if err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt head: seq=%d qty=%s value=%s\n",
		head.LastSeq, head.BalanceQty, head.BalanceValue)
}

func runCleanup(ctx context.Context) {
	pool := connect(ctx)
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	store := postgres.NewIdempotencyStore(txManager, 24*time.Hour)

	removed, err := store.CleanupExpired(ctx)
	if err != nil {
		fmt.Printf("cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d expired idempotency keys\n", removed)
}
