// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Collection, the entry point for working with the
// documents of one store collection. A Collection creates and loads
// documents, keeps their identity map and runs their hooks.
package core

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Collection binds a store collection to a Driver.
//
// Documents loaded through a collection are kept in its document pool, so
// that one id is represented by one *Document within the collection's
// scope. The pool can be disabled, in which case every read goes to the
// store.
//
// Example:
//
//	users := core.NewCollection(mongoDriver, "users",
//		core.WithDatabase("app"),
//		core.WithRequired("email"),
//		core.WithBehavior("timestamps", &core.Timestamps{}),
//	)
//	doc, err := users.GetDocument(ctx, id)
type Collection struct {
	driver Driver
	schema *SchemaCore
	logger *zap.Logger
	events *EventDispatcher

	hooks        HookSet
	validators   []Validator
	behaviorList []namedBehavior

	pool *documentPool
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithDatabase sets the database the collection lives in.
func WithDatabase(database string) CollectionOption {
	return func(c *Collection) { c.schema.Database = database }
}

// WithLogger sets the logger used for write diagnostics.
func WithLogger(logger *zap.Logger) CollectionOption {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventDispatcher routes the collection's events to dispatcher instead
// of the global one.
func WithEventDispatcher(dispatcher *EventDispatcher) CollectionOption {
	return func(c *Collection) {
		if dispatcher != nil {
			c.events = dispatcher
		}
	}
}

// WithDocumentPool enables or disables the document pool. It is enabled
// by default.
func WithDocumentPool(enabled bool) CollectionOption {
	return func(c *Collection) { c.pool.enabled = enabled }
}

// WithField declares a field of the collection.
//
// Example:
//
//	core.WithField("status", core.Default("draft"), core.Required())
func WithField(path string, opts ...FieldOption) CollectionOption {
	return func(c *Collection) {
		f := c.schema.field(path)
		for _, opt := range opts {
			opt(f)
		}
	}
}

// WithRequired declares fields that must be present for a document to be valid.
func WithRequired(fieldList ...string) CollectionOption {
	return func(c *Collection) {
		for _, path := range fieldList {
			c.schema.field(path).IsRequired = true
		}
	}
}

// WithValidator adds a validator run by Save.
func WithValidator(validator Validator) CollectionOption {
	return func(c *Collection) { c.validators = append(c.validators, validator) }
}

// WithHook registers fn for hook.
func WithHook(hook Hook, fn HookFunc) CollectionOption {
	return func(c *Collection) { c.hooks.On(hook, fn) }
}

// WithBehavior attaches a behavior under name. See AttachBehavior.
func WithBehavior(name string, behavior any) CollectionOption {
	return func(c *Collection) { c.AttachBehavior(name, behavior) }
}

// NewCollection creates a collection named name on driver.
func NewCollection(driver Driver, name string, opts ...CollectionOption) *Collection {
	c := &Collection{
		driver: driver,
		schema: &SchemaCore{Collection: name},
		logger: zap.NewNop(),
		events: globalDispatcher,
		hooks:  HookSet{},
		pool:   newDocumentPool(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.schema.Collection
}

// Schema returns the collection schema.
func (c *Collection) Schema() *SchemaCore {
	return c.schema
}

// Driver returns the driver the collection writes through.
func (c *Collection) Driver() Driver {
	return c.driver
}

// On registers fn for hook after construction.
func (c *Collection) On(hook Hook, fn HookFunc) {
	c.hooks.On(hook, fn)
}

// runHooks runs the hooks of attached behaviors, in registration order,
// then the collection's own hooks.
func (c *Collection) runHooks(ctx context.Context, hook Hook, doc *Document) error {
	for _, entry := range c.behaviorList {
		provider, ok := entry.behavior.(HookProvider)
		if !ok {
			continue
		}
		if err := provider.Hooks().run(ctx, hook, doc); err != nil {
			return err
		}
	}
	return c.hooks.run(ctx, hook, doc)
}

// validatorList returns the validators run by Save: required fields first,
// then behaviors implementing Validator, then explicit validators.
func (c *Collection) validatorList() []Validator {
	var list []Validator
	var requiredList []string
	for _, f := range c.schema.Fields {
		if f.IsRequired {
			requiredList = append(requiredList, f.Path)
		}
	}
	if len(requiredList) > 0 {
		list = append(list, RequiredFields(requiredList...))
	}
	for _, entry := range c.behaviorList {
		if validator, ok := entry.behavior.(Validator); ok {
			list = append(list, validator)
		}
	}
	return append(list, c.validators...)
}

// CreateDocument creates a new, unsaved document holding data.
// Declared field defaults fill the fields data leaves absent.
func (c *Collection) CreateDocument(data map[string]any) *Document {
	doc := newDocument(c, data, false)
	for _, f := range c.schema.Fields {
		if f.DefaultValue != nil && !doc.Has(f.Path) {
			_ = doc.Structure.Set(f.Path, cloneValue(Normalize(f.DefaultValue)))
		}
	}
	c.construct(doc)
	return doc
}

// hydrate creates a stored document from data read from the store.
func (c *Collection) hydrate(data map[string]any) *Document {
	doc := newDocument(c, data, true)
	c.construct(doc)
	return doc
}

func (c *Collection) construct(doc *Document) {
	if err := c.runHooks(context.Background(), HookConstruct, doc); err != nil {
		c.logger.Warn("construct hook failed", zap.String("collection", c.schema.Collection), zap.Error(err))
	}
}

// fetch reads the raw document with the given id, or nil when it is absent.
func (c *Collection) fetch(ctx context.Context, id any) (map[string]any, error) {
	where := &Where{Condition: ID(id), Limit: 1}
	var data map[string]any
	err := dispatchOperation(ctx, OperationFind, &OperationPayload{Schema: c.schema, ID: id, Where: where}, func(ctx context.Context) error {
		var err error
		data, err = c.driver.FindOne(ctx, c.schema, where)
		return err
	})
	return data, err
}

// GetDocument returns the document with the given id.
//
// With the pool enabled, a pooled instance is returned as is, without
// reading the store. Otherwise the document is read, pooled and returned.
// Concurrent first reads of one id share a single store read and a single
// instance. ErrDocumentNotFound is returned when no document has the id.
func (c *Collection) GetDocument(ctx context.Context, id any) (*Document, error) {
	if !c.IsDocumentPoolEnabled() {
		return c.load(ctx, id)
	}
	if doc, ok := c.pool.get(idKey(id)); ok {
		return doc, nil
	}
	value, err, _ := c.pool.group.Do(idKey(id), func() (any, error) {
		if doc, ok := c.pool.get(idKey(id)); ok {
			return doc, nil
		}
		doc, err := c.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return c.AddDocumentToDocumentPool(doc), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Document), nil
}

func (c *Collection) load(ctx context.Context, id any) (*Document, error) {
	data, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrDocumentNotFound
	}
	return c.hydrate(data), nil
}

// FindOne returns the first document matching query, or nil.
func (c *Collection) FindOne(ctx context.Context, query *Query) (*Document, error) {
	where := query.build()
	where.Limit = 1
	var data map[string]any
	err := dispatchOperation(ctx, OperationFind, &OperationPayload{Schema: c.schema, Where: where}, func(ctx context.Context) error {
		var err error
		data, err = c.driver.FindOne(ctx, c.schema, where)
		return err
	})
	if err != nil || data == nil {
		return nil, err
	}
	c.events.Emit(EventFind, FindPayload{Schema: c.schema, Where: where, Count: 1})
	return c.admit(c.hydrate(data)), nil
}

// Find returns every document matching query. Documents already pooled are
// returned as the pooled instance with the fresh values merged in.
func (c *Collection) Find(ctx context.Context, query *Query) ([]*Document, error) {
	where := query.build()
	var rowList []map[string]any
	err := dispatchOperation(ctx, OperationFind, &OperationPayload{Schema: c.schema, Where: where}, func(ctx context.Context) error {
		var err error
		rowList, err = c.driver.FindMany(ctx, c.schema, where)
		return err
	})
	if err != nil {
		return nil, err
	}
	docList := make([]*Document, 0, len(rowList))
	for _, row := range rowList {
		docList = append(docList, c.admit(c.hydrate(row)))
	}
	c.events.Emit(EventFind, FindPayload{Schema: c.schema, Where: where, Count: len(docList)})
	return docList, nil
}

// Count returns the number of documents matching query.
func (c *Collection) Count(ctx context.Context, query *Query) (int64, error) {
	where := query.build()
	var count int64
	err := dispatchOperation(ctx, OperationCount, &OperationPayload{Schema: c.schema, Where: where}, func(ctx context.Context) error {
		var err error
		count, err = c.driver.Count(ctx, c.schema, where.Condition)
		return err
	})
	return count, err
}

// InsertMany inserts new documents in one store call, skipping documents
// that are already stored. Validation and insert hooks run per document;
// the first failure aborts the batch before anything is written.
func (c *Collection) InsertMany(ctx context.Context, docList ...*Document) error {
	var pending []*Document
	for _, doc := range docList {
		if doc.IsStored() {
			continue
		}
		if err := doc.Validate(ctx); err != nil {
			return err
		}
		if err := c.runHooks(ctx, HookBeforeSave, doc); err != nil {
			return err
		}
		if err := c.runHooks(ctx, HookBeforeInsert, doc); err != nil {
			return err
		}
		pending = append(pending, doc)
	}
	if len(pending) == 0 {
		return nil
	}

	documentList := make([]map[string]any, len(pending))
	for i, doc := range pending {
		documentList[i] = doc.ToMap()
	}
	var idList []any
	err := dispatchOperation(ctx, OperationInsert, &OperationPayload{Schema: c.schema}, func(ctx context.Context) error {
		var err error
		idList, err = c.driver.InsertMany(ctx, c.schema, documentList)
		return err
	})
	if err != nil {
		c.logger.Warn("batch insert failed", zap.String("collection", c.schema.Collection), zap.Int("count", len(pending)), zap.Error(err))
		return &WriteError{Op: OperationInsert, Collection: c.schema.Collection, Err: err}
	}

	for i, doc := range pending {
		if i < len(idList) && idList[i] != nil {
			doc.DefineID(idList[i])
		}
		if err := c.runHooks(ctx, HookAfterInsert, doc); err != nil {
			return err
		}
		if err := c.runHooks(ctx, HookAfterSave, doc); err != nil {
			return err
		}
		doc.Structure.commit()
		if c.IsDocumentPoolEnabled() {
			c.AddDocumentToDocumentPool(doc)
		}
		c.events.Emit(EventInsert, InsertPayload{Schema: c.schema, ID: doc.ID(), Document: doc.ToMap()})
	}
	c.logger.Debug("documents inserted", zap.String("collection", c.schema.Collection), zap.Int("count", len(pending)))
	return nil
}

// admit returns the pooled instance for doc when the pool is enabled.
func (c *Collection) admit(doc *Document) *Document {
	if !c.IsDocumentPoolEnabled() {
		return doc
	}
	return c.AddDocumentToDocumentPool(doc)
}

//region document pool

// documentPool is the identity map of a collection: stringified id to the
// single live instance for that id.
type documentPool struct {
	mutex     sync.Mutex
	enabled   bool
	documents map[string]*Document
	group     singleflight.Group
}

func newDocumentPool() *documentPool {
	return &documentPool{enabled: true, documents: map[string]*Document{}}
}

func (p *documentPool) get(key string) (*Document, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	doc, ok := p.documents[key]
	return doc, ok
}

// AddDocumentToDocumentPool pools doc and returns the instance that now
// represents its id.
//
// When another instance is already pooled for the id, the values of doc
// are merged into it unmodified, so its uncommitted local edits survive,
// and the pooled instance is returned. Callers must continue with the
// returned instance. Documents without an id are returned unpooled.
func (c *Collection) AddDocumentToDocumentPool(doc *Document) *Document {
	id := doc.ID()
	if id == nil {
		return doc
	}
	key := idKey(id)

	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	existing, ok := c.pool.documents[key]
	if !ok {
		c.pool.documents[key] = doc
		return doc
	}
	if existing != doc {
		existing.Structure.MergeUnmodified(doc.ToMap())
	}
	return existing
}

// RemoveDocumentFromDocumentPool evicts the id of doc from the pool.
func (c *Collection) RemoveDocumentFromDocumentPool(doc *Document) {
	id := doc.ID()
	if id == nil {
		return
	}
	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	delete(c.pool.documents, idKey(id))
}

// IsDocumentInDocumentPool reports whether a document with id is pooled.
func (c *Collection) IsDocumentInDocumentPool(id any) bool {
	_, ok := c.pool.get(idKey(id))
	return ok
}

// ClearDocumentPool evicts every pooled document.
func (c *Collection) ClearDocumentPool() {
	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	c.pool.documents = map[string]*Document{}
}

// EnableDocumentPool turns the document pool on.
func (c *Collection) EnableDocumentPool() {
	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	c.pool.enabled = true
}

// DisableDocumentPool turns the document pool off and empties it. Reads go
// straight to the store until it is enabled again.
func (c *Collection) DisableDocumentPool() {
	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	c.pool.enabled = false
	c.pool.documents = map[string]*Document{}
}

// IsDocumentPoolEnabled reports whether the document pool is on.
func (c *Collection) IsDocumentPoolEnabled() bool {
	c.pool.mutex.Lock()
	defer c.pool.mutex.Unlock()
	return c.pool.enabled
}

//endregion
