// Package postgres provides a document store for the golem ODM on PostgreSQL.
// This file defines the postgresTransaction type, which adapts pgx.Tx to
// the core.Transaction interface.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/leandroluk/golem/core"
)

// postgresTransaction adapts pgx.Tx to core.Transaction.
type postgresTransaction struct {
	transaction pgx.Tx
}

// Commit reports core.ErrTransactionDone when the transaction was already
// settled.
func (transaction *postgresTransaction) Commit(ctx context.Context) error {
	err := transaction.transaction.Commit(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return core.ErrTransactionDone
	}
	return err
}

// Rollback is a no-op on a settled transaction.
func (transaction *postgresTransaction) Rollback(ctx context.Context) error {
	err := transaction.transaction.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
