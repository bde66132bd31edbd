// Package postgres provides a document store for the golem ODM on
// PostgreSQL. Each collection is a table holding one JSONB document per
// row, keyed by the text form of its _id.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leandroluk/golem/core"
	"go.uber.org/zap"
)

//region PostgresDriver

// PostgresDriver implements core.Driver on a PostgreSQL database.
//
// Conditions are evaluated on the JSONB documents. Arrays are compared as
// whole values, not element by element.
type PostgresDriver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ core.Driver = (*PostgresDriver)(nil)

// Option configures a PostgresDriver.
type Option func(*PostgresDriver)

// WithLogger sets the logger used for statement diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(driver *PostgresDriver) {
		if logger != nil {
			driver.logger = logger
		}
	}
}

// NewPostgresDriver opens a connection pool on connString.
func NewPostgresDriver(ctx context.Context, connString string, opts ...Option) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	driver := &PostgresDriver{pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(driver)
	}
	return driver, nil
}

func (driver *PostgresDriver) formatTable(schema *core.SchemaCore) string {
	if schema.Database != "" {
		return fmt.Sprintf("%q.%q", schema.Database, schema.Collection)
	}
	return fmt.Sprintf("%q", schema.Collection)
}

// EnsureCollection creates the table backing schema when it does not exist.
func (driver *PostgresDriver) EnsureCollection(ctx context.Context, schema *core.SchemaCore) error {
	sqlQuery := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, document jsonb NOT NULL)", driver.formatTable(schema))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

// --- statement helpers, with or without a transaction ---

func (driver *PostgresDriver) exec(ctx context.Context, sqlQuery string, args ...any) (pgconn.CommandTag, error) {
	driver.logger.Debug("postgres exec", zap.String("sql", sqlQuery))
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.transaction.Exec(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.Exec(ctx, sqlQuery, args...)
}

func (driver *PostgresDriver) query(ctx context.Context, sqlQuery string, args ...any) (pgx.Rows, error) {
	driver.logger.Debug("postgres query", zap.String("sql", sqlQuery))
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.transaction.Query(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.Query(ctx, sqlQuery, args...)
}

func (driver *PostgresDriver) queryRow(ctx context.Context, sqlQuery string, args ...any) pgx.Row {
	driver.logger.Debug("postgres query", zap.String("sql", sqlQuery))
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.transaction.QueryRow(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.QueryRow(ctx, sqlQuery, args...)
}

// inTransaction runs fn in the transaction carried by ctx, or in a new one
// committed when fn succeeds.
func (driver *PostgresDriver) inTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return fn(pgTx.transaction)
		}
	}
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) // rollback on error
		return err
	}
	return tx.Commit(ctx)
}

func (driver *PostgresDriver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	if query == nil {
		query = &core.Where{}
	}
	argList := []any{}
	whereClause := buildCondition(query.Condition, &argList)

	sqlQuery := fmt.Sprintf("SELECT document FROM %s WHERE %s", driver.formatTable(schema), whereClause)
	if orderClause := buildOrder(query.Sort, &argList); orderClause != "" {
		sqlQuery += " ORDER BY " + orderClause
	}
	if single {
		sqlQuery += " LIMIT 1"
	} else if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rowList, err := driver.query(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	defer rowList.Close()

	var resultList []map[string]any
	for rowList.Next() {
		var raw []byte
		if err := rowList.Scan(&raw); err != nil {
			return nil, err
		}
		document, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		resultList = append(resultList, document)
		if single {
			break
		}
	}
	return resultList, rowList.Err()
}

// Connect checks the pool can reach the database.
func (driver *PostgresDriver) Connect(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

// Ping checks the database is reachable.
func (driver *PostgresDriver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

// Close closes the pool.
func (driver *PostgresDriver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

// Transaction begins a transaction.
func (driver *PostgresDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTransaction{transaction: tx}, nil
}

// Insert stores document and returns its _id. Documents without one get a
// random UUID.
func (driver *PostgresDriver) Insert(ctx context.Context, schema *core.SchemaCore, document map[string]any) (any, error) {
	id, raw, err := prepareDocument(document)
	if err != nil {
		return nil, err
	}
	sqlQuery := fmt.Sprintf("INSERT INTO %s (id, document) VALUES ($1, $2)", driver.formatTable(schema))
	if _, err := driver.exec(ctx, sqlQuery, id, raw); err != nil {
		return nil, err
	}
	return id, nil
}

// InsertMany stores documents in one transaction.
func (driver *PostgresDriver) InsertMany(ctx context.Context, schema *core.SchemaCore, documents []map[string]any) ([]any, error) {
	idList := make([]any, 0, len(documents))
	sqlQuery := fmt.Sprintf("INSERT INTO %s (id, document) VALUES ($1, $2)", driver.formatTable(schema))
	err := driver.inTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, document := range documents {
			id, raw, err := prepareDocument(document)
			if err != nil {
				return err
			}
			batch.Queue(sqlQuery, id, raw)
			idList = append(idList, id)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, err
	}
	return idList, nil
}

// UpdatePartial applies update to the document with id under a row lock.
func (driver *PostgresDriver) UpdatePartial(ctx context.Context, schema *core.SchemaCore, id any, update core.Update) error {
	table := driver.formatTable(schema)
	key := idText(id)
	return driver.inTransaction(ctx, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, fmt.Sprintf("SELECT document FROM %s WHERE id = $1 FOR UPDATE", table), key).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrNoDocumentMatched
		}
		if err != nil {
			return err
		}
		document, err := decodeDocument(raw)
		if err != nil {
			return err
		}
		if err := core.ApplyUpdate(document, update); err != nil {
			return err
		}
		encoded, err := json.Marshal(document)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET document = $2 WHERE id = $1", table), key, encoded)
		return err
	})
}

// UpdateFull replaces the document with id.
func (driver *PostgresDriver) UpdateFull(ctx context.Context, schema *core.SchemaCore, id any, document map[string]any) error {
	replacement := make(map[string]any, len(document)+1)
	for key, value := range document {
		replacement[key] = value
	}
	replacement[core.IDField] = idText(id)
	raw, err := json.Marshal(replacement)
	if err != nil {
		return err
	}
	sqlQuery := fmt.Sprintf("UPDATE %s SET document = $2 WHERE id = $1", driver.formatTable(schema))
	tag, err := driver.exec(ctx, sqlQuery, idText(id), raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNoDocumentMatched
	}
	return nil
}

// FindOne returns the first document matching query, or nil.
func (driver *PostgresDriver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (map[string]any, error) {
	rowList, err := driver.find(ctx, schema, query, true)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

// FindMany returns every document matching query.
func (driver *PostgresDriver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	return driver.find(ctx, schema, query, false)
}

// Delete removes the documents matching condition.
func (driver *PostgresDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause := buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", driver.formatTable(schema), whereClause)
	tag, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count counts the documents matching condition.
func (driver *PostgresDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause := buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", driver.formatTable(schema), whereClause)

	var count int64
	if err := driver.queryRow(ctx, sqlQuery, argList...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

//endregion

// prepareDocument assigns an id when missing and encodes the document.
func prepareDocument(document map[string]any) (string, []byte, error) {
	stored := make(map[string]any, len(document)+1)
	for key, value := range document {
		stored[key] = value
	}
	id := uuid.NewString()
	if value, ok := stored[core.IDField]; ok && value != nil {
		id = idText(value)
	}
	stored[core.IDField] = id
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", nil, err
	}
	return id, raw, nil
}

// idText is the primary key form of a document id. ObjectIDs use their
// hex form.
func idText(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case interface{ Hex() string }:
		return v.Hex()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(id)
}
