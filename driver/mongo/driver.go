// Package driver provides the MongoDB store for the golem ODM.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/leandroluk/golem/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

//region MongoDriver

// MongoDriver implements core.Driver on a MongoDB deployment.
type MongoDriver struct {
	client          *mongo.Client
	defaultDatabase string
	logger          *zap.Logger
}

var _ core.Driver = (*MongoDriver)(nil)

// Option configures a MongoDriver.
type Option func(*MongoDriver)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(driver *MongoDriver) {
		if logger != nil {
			driver.logger = logger
		}
	}
}

// NewMongoDriver connects to uri and checks the deployment is reachable.
// defaultDB is used for schemas that do not name a database.
//
// Example:
//
//	drv, err := driver.NewMongoDriver(ctx, "mongodb://localhost:27017", "app")
func NewMongoDriver(ctx context.Context, uri string, defaultDB string, opts ...Option) (*MongoDriver, error) {
	clientOpts := mopt.Client().ApplyURI(uri)
	clientOpts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	driver := &MongoDriver{client: client, defaultDatabase: defaultDB, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(driver)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	driver.logger.Debug("mongo connected", zap.String("database", defaultDB))
	return driver, nil
}

func (driver *MongoDriver) dbFor(schema *core.SchemaCore) (*mongo.Database, error) {
	dbName := driver.defaultDatabase
	if schema.Database != "" {
		dbName = schema.Database
	}
	if dbName == "" {
		return nil, errors.New("mongo driver: database name is empty (set it on the collection or on NewMongoDriver)")
	}
	return driver.client.Database(dbName), nil
}

func (driver *MongoDriver) coll(schema *core.SchemaCore) (*mongo.Collection, error) {
	if schema.Collection == "" {
		return nil, errors.New("mongo driver: collection name is empty")
	}
	db, err := driver.dbFor(schema)
	if err != nil {
		return nil, err
	}
	return db.Collection(schema.Collection), nil
}

// withSession binds the transaction carried by ctx, if any, to the call.
func (driver *MongoDriver) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mt, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mt.session)
		}
	}
	return ctx
}

// Connect checks the connection established by NewMongoDriver.
func (driver *MongoDriver) Connect(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

// Ping checks the deployment is reachable.
func (driver *MongoDriver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (driver *MongoDriver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

// Transaction starts a session with an open transaction.
func (driver *MongoDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

// Insert inserts document and returns its _id, generated client side when
// the document has none.
func (driver *MongoDriver) Insert(ctx context.Context, schema *core.SchemaCore, document map[string]any) (any, error) {
	coll, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	result, err := coll.InsertOne(driver.withSession(ctx), toBsonDocument(document))
	if err != nil {
		return nil, err
	}
	return result.InsertedID, nil
}

// InsertMany inserts documents in one ordered batch.
func (driver *MongoDriver) InsertMany(ctx context.Context, schema *core.SchemaCore, documents []map[string]any) ([]any, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	coll, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	documentList := make([]any, 0, len(documents))
	for _, document := range documents {
		documentList = append(documentList, toBsonDocument(document))
	}
	result, err := coll.InsertMany(driver.withSession(ctx), documentList)
	if err != nil {
		return nil, err
	}
	return result.InsertedIDs, nil
}

// UpdatePartial sends update to the document with id.
func (driver *MongoDriver) UpdatePartial(ctx context.Context, schema *core.SchemaCore, id any, update core.Update) error {
	coll, err := driver.coll(schema)
	if err != nil {
		return err
	}
	result, err := coll.UpdateOne(driver.withSession(ctx), bson.M{core.IDField: id}, toBsonUpdate(update))
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return core.ErrNoDocumentMatched
	}
	return nil
}

// UpdateFull replaces the document with id.
func (driver *MongoDriver) UpdateFull(ctx context.Context, schema *core.SchemaCore, id any, document map[string]any) error {
	coll, err := driver.coll(schema)
	if err != nil {
		return err
	}
	replacement := toBsonDocument(document)
	delete(replacement, core.IDField)
	result, err := coll.ReplaceOne(driver.withSession(ctx), bson.M{core.IDField: id}, replacement)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return core.ErrNoDocumentMatched
	}
	return nil
}

func (driver *MongoDriver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	coll, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	ctx = driver.withSession(ctx)
	findOpts := mopt.Find()

	if sortDoc := sortDocument(query); len(sortDoc) > 0 {
		findOpts.SetSort(sortDoc)
	}

	if single {
		findOpts.SetLimit(1)
	} else if query != nil {
		if query.Limit > 0 {
			findOpts.SetLimit(int64(query.Limit))
		}
		if query.Offset > 0 {
			findOpts.SetSkip(int64(query.Offset))
		}
	}
	if single && query != nil && query.Offset > 0 {
		findOpts.SetSkip(int64(query.Offset))
	}

	cursor, err := coll.Find(ctx, filterFor(safeCondition(query)), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resultList []map[string]any
	for cursor.Next(ctx) {
		var row bson.M
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		resultList = append(resultList, core.Normalize(row).(map[string]any))
		if single {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return resultList, nil
}

// FindOne returns the first document matching query, or nil.
func (driver *MongoDriver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (map[string]any, error) {
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
func (driver *MongoDriver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	return driver.find(ctx, schema, query, false)
}

// Delete removes the documents matching condition.
func (driver *MongoDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	coll, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	result, err := coll.DeleteMany(driver.withSession(ctx), filterFor(condition))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Count counts the documents matching condition.
func (driver *MongoDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	coll, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(driver.withSession(ctx), filterFor(condition))
}

//endregion
