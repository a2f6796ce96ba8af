// Package main is the entry point for the stockpile background worker.
// It runs the periodic jobs that should not live on the request path:
// daily stock snapshots, idempotency key cleanup, and integrity audits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/integrity"
	"stockpile/internal/domain/lots"
	"stockpile/internal/domain/snapshot"
	"stockpile/internal/infrastructure/storage/postgres"
	"stockpile/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockpile worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	worker := NewWorker(pool, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the scheduled maintenance jobs against one database.
type Worker struct {
	generator *snapshot.Generator
	auditor   *integrity.Auditor
	idem      *postgres.IdempotencyStore
	log       *logger.Logger

	auditInterval   time.Duration
	cleanupInterval time.Duration
}

func NewWorker(pool *postgres.Pool, log *logger.Logger) *Worker {
	txManager := postgres.NewTxManager(pool)
	ledgerRepo := postgres.NewLedgerRepo(txManager)
	tracker := lots.NewTracker(postgres.NewLotRepo(txManager))
	resolver := costing.NewResolver(postgres.NewPolicyRepo(txManager))

	return &Worker{
		generator:       snapshot.NewGenerator(txManager, ledgerRepo, postgres.NewSnapshotRepo(txManager)),
		auditor:         integrity.NewAuditor(ledgerRepo, tracker, resolver),
		idem:            postgres.NewIdempotencyStore(txManager, getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)),
		log:             log.WithComponent("worker"),
		auditInterval:   getEnvDuration("AUDIT_INTERVAL", 6*time.Hour),
		cleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour),
	}
}

// Run blocks until the context is cancelled. The snapshot job fires once
// per calendar day shortly after midnight UTC and covers the day that just
// ended; cleanup and audit run on their own intervals.
func (w *Worker) Run(ctx context.Context) {
	dayTicker := time.NewTicker(1 * time.Minute)
	defer dayTicker.Stop()

	cleanupTicker := time.NewTicker(w.cleanupInterval)
	defer cleanupTicker.Stop()

	auditTicker := time.NewTicker(w.auditInterval)
	defer auditTicker.Stop()

	lastSnapshotDay := time.Now().UTC().Truncate(24 * time.Hour)

	for {
		select {
		case <-ctx.Done():
			return

		case <-dayTicker.C:
			today := time.Now().UTC().Truncate(24 * time.Hour)
			if today.After(lastSnapshotDay) {
				w.snapshotDay(ctx, lastSnapshotDay)
				lastSnapshotDay = today
			}

		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)

		case <-auditTicker.C:
			w.runAudit(ctx)
		}
	}
}

func (w *Worker) snapshotDay(ctx context.Context, day time.Time) {
	snapshots, err := w.generator.Generate(ctx, day)
	if err != nil {
		w.log.Errorw("daily snapshot failed", "date", day.Format("2006-01-02"), "error", err)
		return
	}
	w.log.Infow("daily snapshot generated",
		"date", day.Format("2006-01-02"),
		"products", len(snapshots),
	)
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	removed, err := w.idem.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		w.log.Infow("cleaned up expired idempotency keys", "count", removed)
	}
}

func (w *Worker) runAudit(ctx context.Context) {
	report, err := w.auditor.AuditAll(ctx)
	if err != nil {
		w.log.Errorw("integrity audit failed", "error", err)
		return
	}
	if report.Clean() {
		w.log.Infow("integrity audit clean", "products", report.ProductsChecked)
		return
	}
	for _, warning := range report.Warnings {
		w.log.Warnw("integrity drift detected",
			"check", warning.Check,
			"product_id", warning.ProductID,
			"detail", warning.Detail,
		)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
