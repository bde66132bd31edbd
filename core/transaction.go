// Package core provides the fundamental building blocks of the golem ODM.
// This file carries transactions on the context and runs callbacks inside
// them.
package core

import (
	"context"
	"errors"
	"fmt"
)

type transactionKey struct{}

// WithTransaction returns a context carrying tx. Drivers look it up with
// TransactionFrom and run their statements inside it.
//
// Example:
//
//	tx, _ := driver.Transaction(ctx)
//	txCtx := core.WithTransaction(ctx, tx)
//	err := doc.Save(txCtx)
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom returns the transaction carried by ctx, or nil.
func TransactionFrom(ctx context.Context) Transaction {
	if tx, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return tx
	}
	return nil
}

// TransactionFunc is the callback run by RunTransaction.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction runs fn inside a transaction of driver. The transaction is
// committed when fn returns nil and rolled back when it returns an error or
// panics.
//
// When ctx already carries a transaction, fn joins it: nothing is begun and
// settling is left to the outer call.
//
// Documents saved inside fn commit their in-memory snapshots as soon as each
// write succeeds; a rollback does not restore them.
//
// Example:
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//	    if err := order.Save(txCtx); err != nil {
//	        return err
//	    }
//	    return stock.Save(txCtx)
//	})
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) (err error) {
	if TransactionFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := driver.Transaction(ctx)
	if err != nil {
		return fmt.Errorf("golem: begin transaction: %w", err)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			_ = tx.Rollback(ctx)
			panic(recovered)
		}
	}()

	if err := fn(WithTransaction(ctx, tx)); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("golem: rollback: %w", rollbackErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("golem: commit: %w", err)
	}
	return nil
}
