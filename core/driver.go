// Package core provides the fundamental building blocks of the golem ODM.
// It defines abstractions for documents, collections, queries and drivers.
package core

import "context"

// IDField is the name of the field holding a document's identifier.
const IDField = "_id"

// Sort represents an ordering rule used in queries.
//
// FieldName specifies which field path to sort by.
// Order determines the direction: 1 for ascending (ASC), -1 for descending (DESC).
type Sort struct {
	FieldName string
	Order     int // 1 = ASC, -1 = DESC
}

// Where encapsulates filtering and pagination options for queries.
//
// It contains:
//   - Condition: the root filter condition (composed of one or more *Condition).
//   - Limit: maximum number of results to return.
//   - Offset: number of documents to skip.
//   - Sort: list of Sort rules to apply.
type Where struct {
	Condition *Condition
	Limit     int
	Offset    int
	Sort      []Sort
}

// Transaction defines the contract for database transaction management.
//
// Implementations must provide atomic commit and rollback semantics.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Driver defines the contract for document stores supported by the ODM.
//
// Documents cross this boundary as plain mappings. Each driver (MongoDB,
// Postgres JSONB, in-memory) implements this interface; the wire format
// behind it is the driver's business.
type Driver interface {
	// Connect establishes a new connection or validates connectivity.
	Connect(ctx context.Context) error
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the connection and releases resources.
	Close(ctx context.Context) error

	// Transaction starts a new database transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert persists a document and returns its id. When the document has
	// no _id the driver assigns one.
	Insert(ctx context.Context, schema *SchemaCore, document map[string]any) (any, error)
	// InsertMany persists several documents and returns their ids in order.
	InsertMany(ctx context.Context, schema *SchemaCore, documents []map[string]any) ([]any, error)
	// UpdatePartial applies an operator payload to the document with the given id.
	// It returns ErrNoDocumentMatched when no document has that id.
	UpdatePartial(ctx context.Context, schema *SchemaCore, id any, update Update) error
	// UpdateFull replaces the document with the given id.
	// It returns ErrNoDocumentMatched when no document has that id.
	UpdateFull(ctx context.Context, schema *SchemaCore, id any, document map[string]any) error
	// FindOne retrieves the first document matching the options, or nil.
	FindOne(ctx context.Context, schema *SchemaCore, options *Where) (map[string]any, error)
	// FindMany retrieves every document matching the options.
	FindMany(ctx context.Context, schema *SchemaCore, options *Where) ([]map[string]any, error)
	// Delete removes documents matching the condition and returns how many were removed.
	Delete(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
	// Count returns the number of documents matching the condition.
	Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
}
