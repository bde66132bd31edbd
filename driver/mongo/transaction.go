// Package driver provides the MongoDB store for the golem ODM.
// This file defines mongoTransaction, which adapts a MongoDB session to
// the core.Transaction interface.
package driver

import (
	"context"
	"sync"

	"github.com/leandroluk/golem/core"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoTransaction is a session with an open transaction. The session ends
// once the transaction is settled; settling twice is reported with
// core.ErrTransactionDone on Commit and ignored on Rollback.
type mongoTransaction struct {
	mutex   sync.Mutex
	session mongo.Session
	settled bool
}

func (transaction *mongoTransaction) Commit(ctx context.Context) error {
	transaction.mutex.Lock()
	defer transaction.mutex.Unlock()
	if transaction.settled {
		return core.ErrTransactionDone
	}
	transaction.settled = true
	defer transaction.session.EndSession(ctx)
	return transaction.session.CommitTransaction(ctx)
}

func (transaction *mongoTransaction) Rollback(ctx context.Context) error {
	transaction.mutex.Lock()
	defer transaction.mutex.Unlock()
	if transaction.settled {
		return nil
	}
	transaction.settled = true
	defer transaction.session.EndSession(ctx)
	return transaction.session.AbortTransaction(ctx)
}
