package core

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareOrder(t *testing.T) {
	t.Cleanup(resetMiddlewares)
	var order []string
	trace := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, op Operation, payload *OperationPayload) error {
				order = append(order, name+":"+string(op))
				return next(ctx, op, payload)
			}
		}
	}
	Use(trace("first"))
	Use(trace("second"))

	err := dispatchOperation(context.Background(), OperationFind, &OperationPayload{}, func(ctx context.Context) error {
		order = append(order, "exec")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:find", "second:find", "exec"}, order)
}

func TestMiddlewareSeesDocumentWrites(t *testing.T) {
	t.Cleanup(resetMiddlewares)
	var payloads []*OperationPayload
	var ops []Operation
	Use(func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload *OperationPayload) error {
			ops = append(ops, op)
			payloads = append(payloads, payload)
			return next(ctx, op, payload)
		}
	})

	ctx := context.Background()
	users := newTestCollection(newRecordingDriver())
	doc := users.CreateDocument(map[string]any{"name": "Ada"})
	require.NoError(t, doc.Save(ctx))
	require.NoError(t, doc.Set("name", "Grace"))
	require.NoError(t, doc.Save(ctx))
	require.NoError(t, doc.Delete(ctx))

	assert.Equal(t, []Operation{OperationInsert, OperationUpdate, OperationDelete}, ops)
	assert.Equal(t, "Ada", payloads[0].Document["name"])
	assert.Equal(t, Update{UpdateSet: {"name": "Grace"}}, payloads[1].Update)
	assert.Equal(t, doc.ID(), payloads[2].ID)
	assert.Equal(t, "users", payloads[2].Schema.Collection)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	t.Cleanup(resetMiddlewares)
	blocked := errors.New("read only")
	Use(func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload *OperationPayload) error {
			if op != OperationFind {
				return blocked
			}
			return next(ctx, op, payload)
		}
	})

	driver := newRecordingDriver()
	doc := newTestCollection(driver).CreateDocument(map[string]any{"name": "Ada"})
	err := doc.Save(context.Background())
	assert.ErrorIs(t, err, blocked)
	assert.Zero(t, driver.count("insert"))
}

func TestDebugMiddleware(t *testing.T) {
	t.Cleanup(resetMiddlewares)
	observed, logs := observer.New(zapcore.DebugLevel)
	Use(DebugMiddleware(zap.New(observed)))

	users := newTestCollection(newRecordingDriver(map[string]any{"_id": "u1"}))
	_, err := users.GetDocument(context.Background(), "u1")
	require.NoError(t, err)

	entries := logs.FilterMessage("operation succeeded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "find", fields["op"])
	assert.Equal(t, "users", fields["collection"])
	assert.Equal(t, "u1", fields["id"])

	_, err = users.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMetricsMiddleware(t *testing.T) {
	t.Cleanup(resetMiddlewares)
	registry := prometheus.NewRegistry()
	mw, err := MetricsMiddleware(registry)
	require.NoError(t, err)
	Use(mw)

	driver := newRecordingDriver()
	driver.failWith = errors.New("down")
	doc := newTestCollection(driver).CreateDocument(map[string]any{"name": "Ada"})
	assert.Error(t, doc.Save(context.Background()))

	familyList, err := registry.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range familyList {
		if family.GetName() != "golem_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			counts[labels["operation"]+"/"+labels["outcome"]] += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"insert/error": 1}, counts)

	_, err = MetricsMiddleware(registry)
	assert.Error(t, err)
}
