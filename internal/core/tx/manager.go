// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces, not on the postgres
// implementation in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SerializedManager extends Manager with the posting write path: an
// exclusive per-call transaction with a short lock timeout so that two
// writers contending for the same product surface a retryable error
// instead of queueing indefinitely.
type SerializedManager interface {
	Manager

	// RunSerialized executes fn in a write transaction configured for
	// posting (lock_timeout set, retryable contention errors).
	RunSerialized(ctx context.Context, fn func(ctx context.Context) error) error

	// IsRetryable reports whether err is a transient contention failure
	// (lock timeout, deadlock, serialization failure) worth retrying.
	IsRetryable(err error) bool
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Queries read the latest committed state and must not block writers.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
