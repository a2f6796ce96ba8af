// Package v1 provides HTTP API version 1.
package v1

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/integrity"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/internal/domain/posting"
	"stockpile/internal/domain/snapshot"
	"stockpile/internal/infrastructure/http/v1/handlers"
	"stockpile/internal/infrastructure/http/v1/middleware"
	"stockpile/internal/infrastructure/storage/postgres"
	"stockpile/pkg/logger"
	"stockpile/pkg/numerator"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool.
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// Version reported by the info endpoint.
	Version string

	// LedgerConfig carries the negative stock policy.
	LedgerConfig ledger.Config

	// PostingConfig carries the contention retry policy.
	PostingConfig posting.Config

	// IdempotencyTTL bounds how long posting results replay.
	IdempotencyTTL time.Duration

	// AlertRules overrides the default stock alert expressions.
	AlertRules map[string]string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Shared infrastructure
	txManager := postgres.NewTxManager(cfg.Pool)
	ledgerRepo := postgres.NewLedgerRepo(txManager)
	lotRepo := postgres.NewLotRepo(txManager)
	policyRepo := postgres.NewPolicyRepo(txManager)
	snapshotRepo := postgres.NewSnapshotRepo(txManager)
	catalogRepo := postgres.NewCatalogRepo(txManager)

	idemTTL := cfg.IdempotencyTTL
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	idemStore := postgres.NewIdempotencyStore(txManager, idemTTL)

	journal, err := postgres.NewJournalStore(txManager)
	if err != nil {
		return nil, fmt.Errorf("create journal store: %w", err)
	}

	// Domain services
	ledgerSvc := ledger.NewService(ledgerRepo, cfg.LedgerConfig)
	tracker := lots.NewTracker(lotRepo)
	valuer := costing.NewEngine(tracker)
	resolver := costing.NewResolver(policyRepo)
	numbers := numerator.New(postgres.NewSequenceQuerier(txManager))
	engine := posting.NewEngine(txManager, ledgerSvc, tracker, valuer, resolver, catalogRepo, idemStore, journal, numbers, cfg.PostingConfig)
	generator := snapshot.NewGenerator(txManager, ledgerRepo, snapshotRepo)
	auditor := integrity.NewAuditor(ledgerRepo, tracker, resolver)

	alertEngine, err := snapshot.NewAlertEngine(ledgerRepo, catalogRepo, cfg.AlertRules)
	if err != nil {
		return nil, fmt.Errorf("create alert engine: %w", err)
	}

	// Handlers
	base := handlers.NewBaseHandler()
	healthHandler := handlers.NewHealthHandler(cfg.Pool.Pool, cfg.Version)
	postingHandler := handlers.NewPostingHandler(base, engine)
	stockHandler := handlers.NewStockHandler(base, ledgerSvc, tracker, valuer, resolver, catalogRepo)
	reportsHandler := handlers.NewReportsHandler(base, generator, alertEngine)
	policyHandler := handlers.NewPolicyHandler(base, resolver)
	integrityHandler := handlers.NewIntegrityHandler(base, auditor, ledgerSvc)
	documentsHandler := handlers.NewDocumentsHandler(base, journal)

	// Health endpoints
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	api := router.Group("/api/v1")
	{
		// Posting write paths
		api.POST("/receipts", postingHandler.PostReceipt)
		api.POST("/outflows", postingHandler.PostOutflow)
		api.POST("/returns", postingHandler.PostReturn)
		api.POST("/adjustments", postingHandler.PostAdjustment)

		// Stock reads
		stock := api.Group("/stock")
		{
			stock.GET("", stockHandler.ListStock)
			stock.GET("/expiring", stockHandler.GetExpiring)
			stock.GET("/:productId", stockHandler.GetStock)
			stock.GET("/:productId/movements", stockHandler.GetMovements)
			stock.GET("/:productId/value", stockHandler.GetValue)
			stock.GET("/:productId/lots", stockHandler.GetLots)
			stock.GET("/:productId/trend", reportsHandler.GetTrend)
		}

		// Valuation summary
		api.GET("/valuation", stockHandler.GetValuationSummary)

		// Cost policy
		api.GET("/products/:productId/cost-policy", policyHandler.GetPolicy)
		api.PUT("/products/:productId/cost-policy", policyHandler.SetPolicy)

		// Archived source documents
		api.GET("/documents/:refType/:refId", documentsHandler.GetByReference)

		// Reports
		api.GET("/alerts", reportsHandler.GetAlerts)
		api.GET("/snapshots", reportsHandler.GetSnapshots)
		api.POST("/snapshots", reportsHandler.GenerateSnapshot)

		// Integrity
		api.GET("/integrity", integrityHandler.AuditAll)
		api.GET("/integrity/:productId", integrityHandler.AuditProduct)
		api.POST("/integrity/:productId/rebuild", integrityHandler.RebuildHead)
	}

	return router, nil
}
