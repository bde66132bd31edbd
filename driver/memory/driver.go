// Package memory provides an in-process document store for the golem ODM.
//
// It evaluates filters and update operators with the same semantics as the
// MongoDB server for the subset golem emits, which makes it suitable for
// tests and for local tooling.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leandroluk/golem/core"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrDuplicateKey is returned when an insert reuses an existing _id.
var ErrDuplicateKey = errors.New("memory driver: duplicate _id")

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("memory driver: closed")

//region MemoryDriver

// MemoryDriver implements core.Driver on process memory.
//
// Documents are kept per database and collection in insertion order. All
// methods are safe for concurrent use.
type MemoryDriver struct {
	mutex           sync.RWMutex
	collections     map[string][]map[string]any
	defaultDatabase string
	closed          bool
}

var _ core.Driver = (*MemoryDriver)(nil)

// NewMemoryDriver creates an empty store. defaultDB names the database of
// schemas that do not name one.
func NewMemoryDriver(defaultDB string) *MemoryDriver {
	return &MemoryDriver{collections: map[string][]map[string]any{}, defaultDatabase: defaultDB}
}

func (driver *MemoryDriver) key(schema *core.SchemaCore) string {
	database := driver.defaultDatabase
	if schema.Database != "" {
		database = schema.Database
	}
	return database + "." + schema.Collection
}

// Connect implements core.Driver.
func (driver *MemoryDriver) Connect(ctx context.Context) error {
	return driver.Ping(ctx)
}

// Ping implements core.Driver.
func (driver *MemoryDriver) Ping(ctx context.Context) error {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if driver.closed {
		return ErrClosed
	}
	return nil
}

// Close drops every document; later calls return ErrClosed.
func (driver *MemoryDriver) Close(ctx context.Context) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	driver.closed = true
	driver.collections = map[string][]map[string]any{}
	return nil
}

// Transaction snapshots the store. Rollback restores the snapshot; Commit
// keeps the writes made since.
func (driver *MemoryDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if driver.closed {
		return nil, ErrClosed
	}
	return &memoryTransaction{driver: driver, snapshot: driver.copyCollections()}, nil
}

func (driver *MemoryDriver) copyCollections() map[string][]map[string]any {
	snapshot := make(map[string][]map[string]any, len(driver.collections))
	for key, documentList := range driver.collections {
		copied := make([]map[string]any, len(documentList))
		for i, document := range documentList {
			copied[i] = copyDocument(document)
		}
		snapshot[key] = copied
	}
	return snapshot
}

// Insert stores document and returns its _id, generating an ObjectID when
// the document has none.
func (driver *MemoryDriver) Insert(ctx context.Context, schema *core.SchemaCore, document map[string]any) (any, error) {
	idList, err := driver.InsertMany(ctx, schema, []map[string]any{document})
	if err != nil {
		return nil, err
	}
	return idList[0], nil
}

// InsertMany stores documents atomically: on a duplicate _id nothing is stored.
func (driver *MemoryDriver) InsertMany(ctx context.Context, schema *core.SchemaCore, documents []map[string]any) ([]any, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return nil, ErrClosed
	}

	key := driver.key(schema)
	existing := driver.collections[key]
	prepared := make([]map[string]any, 0, len(documents))
	idList := make([]any, 0, len(documents))
	for _, document := range documents {
		stored := copyDocument(document)
		id, ok := stored[core.IDField]
		if !ok || id == nil {
			id = primitive.NewObjectID()
			stored[core.IDField] = id
		}
		if indexOf(existing, id) >= 0 || indexOf(prepared, id) >= 0 {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateKey, id)
		}
		prepared = append(prepared, stored)
		idList = append(idList, id)
	}
	driver.collections[key] = append(existing, prepared...)
	return idList, nil
}

// UpdatePartial applies update to the document with id. The document is
// left untouched when the update cannot be applied.
func (driver *MemoryDriver) UpdatePartial(ctx context.Context, schema *core.SchemaCore, id any, update core.Update) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return ErrClosed
	}

	documentList := driver.collections[driver.key(schema)]
	index := indexOf(documentList, id)
	if index < 0 {
		return core.ErrNoDocumentMatched
	}
	updated := copyDocument(documentList[index])
	if err := core.ApplyUpdate(updated, update); err != nil {
		return err
	}
	updated[core.IDField] = documentList[index][core.IDField]
	documentList[index] = updated
	return nil
}

// UpdateFull replaces the document with id, keeping its _id.
func (driver *MemoryDriver) UpdateFull(ctx context.Context, schema *core.SchemaCore, id any, document map[string]any) error {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return ErrClosed
	}

	documentList := driver.collections[driver.key(schema)]
	index := indexOf(documentList, id)
	if index < 0 {
		return core.ErrNoDocumentMatched
	}
	replacement := copyDocument(document)
	replacement[core.IDField] = documentList[index][core.IDField]
	documentList[index] = replacement
	return nil
}

func (driver *MemoryDriver) find(schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	driver.mutex.RLock()
	defer driver.mutex.RUnlock()
	if driver.closed {
		return nil, ErrClosed
	}
	if query == nil {
		query = &core.Where{}
	}

	filter := query.Condition.ToMap()
	var matched []map[string]any
	for _, document := range driver.collections[driver.key(schema)] {
		if core.MatchFilter(document, filter) {
			matched = append(matched, document)
		}
	}
	if len(query.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], query.Sort)
		})
	}
	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[query.Offset:]
		}
	}
	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}

	resultList := make([]map[string]any, len(matched))
	for i, document := range matched {
		resultList[i] = copyDocument(document)
	}
	return resultList, nil
}

// FindOne returns the first document matching query, or nil.
func (driver *MemoryDriver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (map[string]any, error) {
	single := core.Where{}
	if query != nil {
		single = *query
	}
	single.Limit = 1
	resultList, err := driver.find(schema, &single)
	if err != nil || len(resultList) == 0 {
		return nil, err
	}
	return resultList[0], nil
}

// FindMany returns every document matching query.
func (driver *MemoryDriver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	return driver.find(schema, query)
}

// Delete removes the documents matching condition.
func (driver *MemoryDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.closed {
		return 0, ErrClosed
	}

	key := driver.key(schema)
	filter := condition.ToMap()
	kept := driver.collections[key][:0:0]
	var removed int64
	for _, document := range driver.collections[key] {
		if core.MatchFilter(document, filter) {
			removed++
			continue
		}
		kept = append(kept, document)
	}
	driver.collections[key] = kept
	return removed, nil
}

// Count counts the documents matching condition.
func (driver *MemoryDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	resultList, err := driver.find(schema, &core.Where{Condition: condition})
	return int64(len(resultList)), err
}

//endregion

//region memoryTransaction

type memoryTransaction struct {
	driver   *MemoryDriver
	snapshot map[string][]map[string]any
	done     bool
}

func (transaction *memoryTransaction) Commit(ctx context.Context) error {
	if transaction.done {
		return core.ErrTransactionDone
	}
	transaction.done = true
	return nil
}

func (transaction *memoryTransaction) Rollback(ctx context.Context) error {
	if transaction.done {
		return nil
	}
	transaction.done = true
	transaction.driver.mutex.Lock()
	defer transaction.driver.mutex.Unlock()
	transaction.driver.collections = transaction.snapshot
	return nil
}

//endregion

//region Helpers

func copyDocument(document map[string]any) map[string]any {
	if document == nil {
		return map[string]any{}
	}
	return core.Normalize(document).(map[string]any)
}

func indexOf(documentList []map[string]any, id any) int {
	for i, document := range documentList {
		if core.ValuesEquivalent(document[core.IDField], id) {
			return i
		}
	}
	return -1
}

// less orders documents by the sort rules. Missing values sort first.
func less(a map[string]any, b map[string]any, sortList []core.Sort) bool {
	for _, sortItem := range sortList {
		av, aok := core.LookupPath(a, sortItem.FieldName)
		bv, bok := core.LookupPath(b, sortItem.FieldName)
		var cmp int
		switch {
		case !aok && !bok:
			cmp = 0
		case !aok:
			cmp = -1
		case !bok:
			cmp = 1
		default:
			cmp, _ = core.CompareValues(av, bv)
		}
		if cmp == 0 {
			continue
		}
		if sortItem.Order < 0 {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

//endregion
