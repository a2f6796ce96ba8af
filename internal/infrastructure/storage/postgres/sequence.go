package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"stockpile/pkg/numerator"
)

// SequenceQuerier routes numerator queries through the ambient transaction,
// so document numbers allocated during a posting commit or roll back with it.
type SequenceQuerier struct {
	txManager *TxManager
}

func NewSequenceQuerier(txManager *TxManager) *SequenceQuerier {
	return &SequenceQuerier{txManager: txManager}
}

func (s *SequenceQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...)
}

var _ numerator.Querier = (*SequenceQuerier)(nil)
