package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stockpile/internal/core/apperror"
	"stockpile/internal/domain/posting"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
)

// Pending keys older than this are treated as abandoned by a crashed
// request and reclaimed.
const staleKeyAge = time.Minute

// IdempotencyRecord stores the result of an idempotent posting.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	RequestHash string            `db:"request_hash"`
	Status      IdempotencyStatus `db:"status"`
	Response    []byte            `db:"response"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyStore manages idempotency keys for posting operations.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// Acquire attempts to claim an idempotency key for the given request.
// Returns:
//   - (nil, nil) if the key was acquired and the posting should run
//   - (cachedResult, nil) if the same request already completed
//   - (nil, error) if the key is held by an in-flight request or was
//     reused for a different request body
func (s *IdempotencyStore) Acquire(ctx context.Context, key, requestHash string) ([]byte, error) {
	now := time.Now().UTC()

	// The claim either inserts a fresh pending row or reclaims an
	// abandoned one. ON CONFLICT DO UPDATE locks the existing row before
	// evaluating its WHERE clause, so when several requests race on the
	// same key exactly one statement returns a row. The reclaim condition
	// re-reads the committed row after the winner's transaction, so a
	// second reclaimer sees the refreshed updated_at and loses.
	var claimed string
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, request_hash, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			status     = EXCLUDED.status,
			response   = NULL,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
		WHERE sys_idempotency.status = $3
		  AND sys_idempotency.request_hash = EXCLUDED.request_hash
		  AND sys_idempotency.updated_at < $6
		RETURNING idempotency_key
	`, key, requestHash, IdempotencyStatusPending, now, now.Add(s.ttl), now.Add(-staleKeyAge)).Scan(&claimed)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	// Claim lost: the key exists and is either held or completed.
	var record IdempotencyRecord
	err = s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT request_hash, status, response
		FROM sys_idempotency
		WHERE idempotency_key = $1
	`, key).Scan(&record.RequestHash, &record.Status, &record.Response)
	if errors.Is(err, pgx.ErrNoRows) {
		// The holder released the key between the claim and this read.
		// Treat as in-flight; the caller's retry will claim it.
		return nil, apperror.NewIdempotencyConflict(key)
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}

	// Protect against reuse for a different request.
	if record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_request_hash", record.RequestHash).
			WithDetail("request_request_hash", requestHash)
	}

	if record.Status == IdempotencyStatusSuccess {
		return record.Response, nil
	}
	return nil, apperror.NewIdempotencyConflict(key)
}

// Release drops a pending claim after the posting failed, so a retry with
// the same key does not have to wait out the stale window. Completed keys
// are never touched.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency
		WHERE idempotency_key = $1 AND status = $2
	`, key, IdempotencyStatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Complete marks the key done and caches the result. Called inside the
// posting transaction so the cached result commits atomically with the
// ledger rows it describes.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result any) error {
	var resultBytes []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultBytes = b
	}

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    updated_at = $3
		WHERE idempotency_key = $4
	`, IdempotencyStatusSuccess, resultBytes, time.Now().UTC(), key)

	return err
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())

	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Ensure interface compliance.
var _ posting.IdempotencyStore = (*IdempotencyStore)(nil)
