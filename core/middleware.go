// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the middleware system, which allows cross-cutting concerns
// (logging, metrics, auditing, etc.) to be applied to store operations.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Operation represents the kind of store operation being executed.
//
// It is used within middlewares to distinguish between inserts, updates,
// deletes, and queries, and by WriteError to name the failed write.
type Operation string

const (
	// OperationInsert corresponds to an insert of a new document.
	OperationInsert Operation = "insert"
	// OperationUpdate corresponds to a partial update with an operator payload.
	OperationUpdate Operation = "update"
	// OperationReplace corresponds to a full replace of a stored document.
	OperationReplace Operation = "replace"
	// OperationDelete corresponds to a delete operation.
	OperationDelete Operation = "delete"
	// OperationFind corresponds to a query (find) operation.
	OperationFind Operation = "find"
	// OperationCount corresponds to a count operation.
	OperationCount Operation = "count"
)

// OperationPayload describes the operation passed through the middleware chain.
// Only the fields relevant to the operation are set.
type OperationPayload struct {
	Schema   *SchemaCore
	ID       any
	Update   Update
	Document map[string]any
	Where    *Where
}

// Handler is the function signature executed by the operation pipeline.
//
// It receives a context, the operation type, and its payload.
// Handlers are composed by middlewares to add cross-cutting logic.
type Handler func(ctx context.Context, op Operation, payload *OperationPayload) error

// Middleware is a function that wraps a Handler with additional logic.
//
// Middlewares are chained globally and executed for every operation.
// They follow the decorator pattern.
type Middleware func(next Handler) Handler

var (
	globalMiddlewareMutex sync.RWMutex
	globalMiddlewareList  []Middleware
)

// Use registers a new global middleware, applied to all operations.
//
// Middlewares run in registration order: the first registered middleware
// is the outermost and sees the operation first.
func Use(mw Middleware) {
	globalMiddlewareMutex.Lock()
	defer globalMiddlewareMutex.Unlock()
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// resetMiddlewares drops every registered middleware.
func resetMiddlewares() {
	globalMiddlewareMutex.Lock()
	defer globalMiddlewareMutex.Unlock()
	globalMiddlewareList = nil
}

// runMiddlewares applies the chain of middlewares to the final handler.
func runMiddlewares(final Handler) Handler {
	globalMiddlewareMutex.RLock()
	defer globalMiddlewareMutex.RUnlock()
	h := final
	for i := len(globalMiddlewareList) - 1; i >= 0; i-- {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware chain.
//
// The exec function contains the core logic of the operation and is wrapped
// by the registered middlewares.
func dispatchOperation(ctx context.Context, op Operation, payload *OperationPayload, exec func(ctx context.Context) error) error {
	handler := runMiddlewares(func(ctx context.Context, op Operation, payload *OperationPayload) error {
		return exec(ctx)
	})
	return handler(ctx, op, payload)
}

// DebugMiddleware logs every operation with its duration at debug level.
//
// Example:
//
//	core.Use(core.DebugMiddleware(logger))
func DebugMiddleware(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload *OperationPayload) error {
			start := time.Now()
			fieldList := []zap.Field{zap.String("op", string(op))}
			if payload != nil && payload.Schema != nil {
				fieldList = append(fieldList, zap.String("collection", payload.Schema.Collection))
			}
			if payload != nil && payload.ID != nil {
				fieldList = append(fieldList, zap.Any("id", payload.ID))
			}
			if payload != nil && payload.Update != nil {
				fieldList = append(fieldList, zap.Strings("fields", payload.Update.Fields()))
			}
			err := next(ctx, op, payload)
			fieldList = append(fieldList, zap.Duration("took", time.Since(start)))
			if err != nil {
				logger.Debug("operation failed", append(fieldList, zap.Error(err))...)
			} else {
				logger.Debug("operation succeeded", fieldList...)
			}
			return err
		}
	}
}

// MetricsMiddleware counts operations by collection, kind and outcome and
// observes their latency. The collectors are registered on registerer.
func MetricsMiddleware(registerer prometheus.Registerer) (Middleware, error) {
	operationCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "golem",
		Name:      "operations_total",
		Help:      "Store operations executed, by collection, operation and outcome.",
	}, []string{"collection", "operation", "outcome"})
	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "golem",
		Name:      "operation_duration_seconds",
		Help:      "Store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection", "operation"})

	if err := registerer.Register(operationCounter); err != nil {
		return nil, err
	}
	if err := registerer.Register(operationDuration); err != nil {
		return nil, err
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload *OperationPayload) error {
			collection := ""
			if payload != nil && payload.Schema != nil {
				collection = payload.Schema.Collection
			}
			start := time.Now()
			err := next(ctx, op, payload)
			operationDuration.WithLabelValues(collection, string(op)).Observe(time.Since(start).Seconds())
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			operationCounter.WithLabelValues(collection, string(op), outcome).Inc()
			return err
		}
	}, nil
}
