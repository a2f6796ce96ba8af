package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"stockpile/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the embedded schema. All statements are idempotent
// (IF NOT EXISTS), so repeated startups are safe.
func EnsureSchema(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema ensured")
	return nil
}
