// Package posting provides the transaction coordinator: the only write path
// by which external events (goods receipts, sales, returns, adjustments)
// become ledger entries and lots, atomically and idempotently.
package posting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand/v2"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/tx"
	"stockpile/internal/domain/catalog"
	"stockpile/internal/domain/costing"
	"stockpile/internal/domain/ledger"
	"stockpile/internal/domain/lots"
	"stockpile/pkg/logger"
)

// IdempotencyStore persists posting results under caller-supplied keys so a
// client retry after a network timeout replays the original result instead
// of double-posting.
type IdempotencyStore interface {
	// Acquire claims the key for this request. Returns the cached result
	// when a prior posting with the key completed, nil when the key is
	// fresh, and an error when the key is held by an in-flight request
	// or was reused with a different request hash.
	Acquire(ctx context.Context, key, requestHash string) ([]byte, error)

	// Complete stores the posting result under the key. Called inside
	// the posting transaction so the cached result and the ledger rows
	// commit atomically.
	Complete(ctx context.Context, key string, result any) error

	// Release drops a pending claim after the posting failed, so the
	// caller can retry the same key immediately. Completed keys are
	// left untouched.
	Release(ctx context.Context, key string) error
}

// Journal archives the source payload of posted documents for audit reads.
type Journal interface {
	Archive(ctx context.Context, refType string, refID id.ID, payload any) error
}

// DocNumbers allocates human-readable document numbers. Called inside the
// posting transaction so numbers commit with the entries they label.
type DocNumbers interface {
	Next(ctx context.Context, prefix string, period time.Time) (string, error)
}

// Config tunes the coordinator's contention retry.
type Config struct {
	// MaxAttempts bounds the whole-batch retry loop.
	MaxAttempts int
	// BackoffMin/BackoffMax bound the randomized sleep between attempts.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// DefaultConfig returns the fixed retry budget: 5 attempts, 10-50 ms jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BackoffMin:  10 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
	}
}

// Engine coordinates postings: validate up front, then run the whole batch
// in one serialized write transaction with bounded retry on contention.
type Engine struct {
	txm      tx.SerializedManager
	ledger   *ledger.Service
	lots     *lots.Tracker
	valuer   *costing.Engine
	resolver *costing.Resolver
	catalog  catalog.Gateway
	idem     IdempotencyStore
	journal  Journal
	numbers  DocNumbers
	cfg      Config
}

// NewEngine creates a posting engine.
func NewEngine(
	txm tx.SerializedManager,
	ledgerSvc *ledger.Service,
	tracker *lots.Tracker,
	valuer *costing.Engine,
	resolver *costing.Resolver,
	gateway catalog.Gateway,
	idem IdempotencyStore,
	journal Journal,
	numbers DocNumbers,
	cfg Config,
) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		txm:      txm,
		ledger:   ledgerSvc,
		lots:     tracker,
		valuer:   valuer,
		resolver: resolver,
		catalog:  gateway,
		idem:     idem,
		journal:  journal,
		numbers:  numbers,
		cfg:      cfg,
	}
}

// runSerialized wraps exactly the transactional unit in the bounded retry
// loop: roll back and retry the entire batch on lock contention, with
// randomized backoff, then surface a fatal contention error.
func (e *Engine) runSerialized(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := e.txm.RunSerialized(ctx, fn)
		if err == nil {
			return nil
		}
		if !e.txm.IsRetryable(err) {
			return err
		}

		lastErr = err
		logger.Warn(ctx, "posting transaction contended, retrying",
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err,
		)

		if attempt < e.cfg.MaxAttempts {
			select {
			case <-time.After(e.backoff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return apperror.NewContention(e.cfg.MaxAttempts, lastErr)
}

func (e *Engine) backoff() time.Duration {
	spread := e.cfg.BackoffMax - e.cfg.BackoffMin
	if spread <= 0 {
		return e.cfg.BackoffMin
	}
	return e.cfg.BackoffMin + rand.N(spread)
}

// requestHash canonicalizes a request body for idempotency-key mismatch
// detection.
func requestHash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// replay decodes a cached posting result.
func replay[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return &out, nil
}
