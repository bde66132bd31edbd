// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Document, a Structure bound to a collection that turns
// its local diff into inserts, partial updates or full replaces.
package core

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Document is a Structure with an identity and a persistence state.
//
// A document is NEW until an insert assigns its id, and STORED afterwards.
// Mutations of a stored document are mirrored into its Operator so that
// Save sends a partial update instead of the whole document.
//
// Example:
//
//	doc := users.CreateDocument(map[string]any{"name": "Ada"})
//	_ = doc.Save(ctx)            // insert, doc is now stored
//	_ = doc.Set("name", "Grace")
//	_ = doc.Increment("logins", 1)
//	_ = doc.Save(ctx)            // {"$set": {"name": "Grace"}, "$inc": {"logins": 1}}
type Document struct {
	*Structure

	operator   *Operator
	collection *Collection

	mutex   sync.Mutex
	deleted bool
}

// newDocument creates a document of collection. Stored data is merged
// unmodified, new data is merged as modifications.
func newDocument(collection *Collection, data map[string]any, stored bool) *Document {
	doc := &Document{
		Structure:  NewStructure(nil),
		operator:   NewOperator(),
		collection: collection,
	}
	if stored {
		doc.Structure.MergeUnmodified(data)
	} else {
		doc.Structure.Merge(data)
	}
	return doc
}

// Collection returns the collection the document belongs to.
func (d *Document) Collection() *Collection {
	return d.collection
}

// Operator returns the pending update operators of the document.
func (d *Document) Operator() *Operator {
	return d.operator
}

// ID returns the document id, or nil for a document that has none yet.
func (d *Document) ID() any {
	return d.Get(IDField)
}

// SetID assigns id as a tracked modification. The document is NEW until
// it is saved again.
func (d *Document) SetID(id any) error {
	return d.Structure.Set(IDField, id)
}

// DefineID assigns id without recording a modification. Used with ids
// that already exist in the store.
func (d *Document) DefineID(id any) {
	d.Structure.define(IDField, id)
}

// IsStored reports whether the document has an id that is not itself a
// pending modification.
func (d *Document) IsStored() bool {
	id, ok := d.Lookup(IDField)
	return ok && id != nil && !d.Structure.IsFieldModified(IDField)
}

// IsDeleted reports whether Delete succeeded on this instance.
func (d *Document) IsDeleted() bool {
	return d.deleted
}

// IsSaveRequired reports whether Save would write anything.
func (d *Document) IsSaveRequired() bool {
	return !d.IsStored() || d.Structure.IsModified() || d.operator.IsDefined()
}

// Set writes value at path and, on a stored document, queues a $set.
func (d *Document) Set(path string, value any) error {
	if current, ok := d.Lookup(path); ok && valuesEqual(current, Normalize(value)) {
		return nil
	}
	if err := d.Structure.Set(path, value); err != nil {
		return err
	}
	if d.IsStored() {
		d.queue(path, func() { d.operator.Set(path, value) })
	}
	return nil
}

// queue records the operator written by write for path on a stored
// document. When a pending operator overlaps path, on an ancestor or a
// descendant, the outermost overlapping path is $set to its local value
// instead, and write is not called.
func (d *Document) queue(path string, write func()) {
	root, ok := d.operator.ConflictRoot(path)
	if !ok {
		write()
		return
	}
	if value, present := d.Lookup(root); present {
		d.operator.Set(root, value)
	} else {
		d.operator.UnsetField(root)
	}
}

// Reset discards local modifications and pending operators, restoring
// the last persisted state.
func (d *Document) Reset() {
	d.Structure.Reset()
	d.operator.Reset()
}

// Replace takes data as the new persisted state, discarding local
// modifications and pending operators.
func (d *Document) Replace(data map[string]any) {
	d.Structure.Replace(data)
	d.operator.Reset()
}

// UnsetField removes the value at path and, on a stored document, queues
// an $unset.
func (d *Document) UnsetField(path string) error {
	if !d.Has(path) {
		return nil
	}
	if err := d.Structure.UnsetField(path); err != nil {
		return err
	}
	if d.IsStored() {
		d.queue(path, func() { d.operator.UnsetField(path) })
	}
	return nil
}

// Append adds value to the sequence at path and, on a stored document,
// queues a $set of the whole resulting value.
func (d *Document) Append(path string, value any) error {
	if err := d.Structure.Append(path, value); err != nil {
		return err
	}
	if d.IsStored() {
		d.queue(path, func() { d.operator.Set(path, d.Get(path)) })
	}
	return nil
}

// Merge deep-merges data as modifications and, on a stored document,
// queues a $set for every leaf written.
func (d *Document) Merge(data map[string]any) {
	d.Structure.Merge(data)
	if !d.IsStored() {
		return
	}
	collectLeafPaths(normalizeMap(data), "", func(path string) {
		if path == "" {
			return
		}
		d.queue(path, func() { d.operator.Set(path, d.Get(path)) })
	})
}

// Push appends value to the array at field.
//
// A missing field becomes a one-element array and queues a $push. A
// scalar is promoted to an array and queues a $set of the whole array,
// because the type change cannot be expressed as a push. An existing
// array queues a $push, unless another operator is already pending for
// the field, in which case the whole array is $set.
func (d *Document) Push(field string, value any) error {
	return d.pushValues(field, []any{Normalize(value)}, false)
}

// PushEach appends several values to the array at field, with the same
// promotion rules as Push.
func (d *Document) PushEach(field string, values []any) error {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = Normalize(value)
	}
	return d.pushValues(field, normalized, true)
}

func (d *Document) pushValues(field string, values []any, each bool) error {
	current, _ := d.Lookup(field)
	var (
		local   []any
		promote bool
	)
	switch list := current.(type) {
	case nil:
		local = append([]any{}, values...)
	case []any:
		local = append(append(make([]any, 0, len(list)+len(values)), list...), values...)
		promote = d.hasPendingOther(field, UpdatePush)
	default:
		local = append([]any{list}, values...)
		promote = true
	}

	stored := d.IsStored()
	if err := d.Structure.Set(field, local); err != nil {
		return err
	}
	if !stored {
		return nil
	}
	d.queue(field, func() {
		switch {
		case promote:
			d.operator.Set(field, local)
		case each:
			d.operator.PushEach(field, values)
		default:
			d.operator.Push(field, values[0])
		}
	})
	return nil
}

// hasPendingOther reports whether an operator other than except is
// pending for field.
func (d *Document) hasPendingOther(field string, except string) bool {
	for _, name := range []string{UpdateSet, UpdateUnset, UpdateInc, UpdatePush, UpdatePull} {
		if name == except {
			continue
		}
		if _, ok := d.operator.Pending(name, field); ok {
			return true
		}
	}
	return false
}

// Pull removes the elements of the array at field matching expression.
//
// expression is either a literal or a condition. The local array is
// filtered with the same matcher the stores use; a stored document
// queues a $pull, or a $set of the filtered array when another operator
// is already pending for the field.
func (d *Document) Pull(field string, expression any) error {
	expression = Normalize(expression)
	list, ok := d.Get(field).([]any)
	if !ok {
		return nil
	}
	filtered := PullMatching(list, expression)
	if len(filtered) == len(list) {
		return nil
	}
	stored := d.IsStored()
	if err := d.Structure.Set(field, filtered); err != nil {
		return err
	}
	if !stored {
		return nil
	}
	d.queue(field, func() {
		if d.hasPendingOther(field, UpdatePull) {
			d.operator.Set(field, filtered)
			return
		}
		d.operator.Pull(field, expression)
	})
	return nil
}

// Increment adds value to the integer at field. A missing field counts as
// zero. On a stored document an $inc is queued and the saved value is
// reloaded from the store.
func (d *Document) Increment(field string, value int64) error {
	current, err := toInteger(d.Get(field))
	if err != nil {
		return err
	}
	stored := d.IsStored()
	if err := d.Structure.Set(field, current+value); err != nil {
		return err
	}
	if stored {
		d.queue(field, func() { d.operator.Increment(field, value) })
	}
	return nil
}

// Decrement subtracts value from the integer at field.
func (d *Document) Decrement(field string, value int64) error {
	return d.Increment(field, -value)
}

// Validate runs the validate hooks and the collection validators.
// It returns a *ValidationError when any validator reports a failure.
func (d *Document) Validate(ctx context.Context) error {
	c := d.collection
	if err := c.runHooks(ctx, HookBeforeValidate, d); err != nil {
		return err
	}
	errorMap := map[string][]string{}
	for _, validator := range c.validatorList() {
		for field, messageList := range validator.Validate(ctx, d) {
			errorMap[field] = append(errorMap[field], messageList...)
		}
	}
	if len(errorMap) > 0 {
		return &ValidationError{Document: d.ToMap(), Errors: errorMap}
	}
	return c.runHooks(ctx, HookAfterValidate, d)
}

// Save validates the document and writes it when IsSaveRequired.
//
// A new document is inserted and receives the id assigned by the store. A
// stored document sends its pending operators as a partial update, or
// its whole state as a replace when no operator is pending. After a
// partial update containing $inc or $pull the document is re-read and the
// server values merged in.
//
// The document is clean once the write succeeds. Edits made by the
// after-insert, after-update and after-save hooks are left pending for
// the next Save.
func (d *Document) Save(ctx context.Context) error {
	return d.save(ctx, true)
}

// SaveWithoutValidation is Save without validators and validate hooks.
func (d *Document) SaveWithoutValidation(ctx context.Context) error {
	return d.save(ctx, false)
}

func (d *Document) save(ctx context.Context, validate bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.deleted {
		return ErrDocumentDeleted
	}
	if !d.IsSaveRequired() {
		return nil
	}
	if validate {
		if err := d.Validate(ctx); err != nil {
			return err
		}
	}

	c := d.collection
	if err := c.runHooks(ctx, HookBeforeSave, d); err != nil {
		return err
	}

	if d.IsStored() {
		if err := d.update(ctx); err != nil {
			return err
		}
	} else {
		if err := d.insert(ctx); err != nil {
			return err
		}
	}

	return c.runHooks(ctx, HookAfterSave, d)
}

func (d *Document) insert(ctx context.Context) error {
	c := d.collection
	if err := c.runHooks(ctx, HookBeforeInsert, d); err != nil {
		return err
	}

	document := d.ToMap()
	payload := &OperationPayload{Schema: c.schema, Document: document}
	var id any
	err := dispatchOperation(ctx, OperationInsert, payload, func(ctx context.Context) error {
		var err error
		id, err = c.driver.Insert(ctx, c.schema, document)
		return err
	})
	if err != nil {
		c.logger.Warn("insert failed", zap.String("collection", c.schema.Collection), zap.Error(err))
		return &WriteError{Op: OperationInsert, Collection: c.schema.Collection, Err: err}
	}
	if id == nil {
		id = d.ID()
	}
	d.DefineID(id)
	d.Structure.commit()
	document = d.ToMap()
	c.logger.Debug("document inserted", zap.String("collection", c.schema.Collection), zap.Any("id", id))

	if err := c.runHooks(ctx, HookAfterInsert, d); err != nil {
		return err
	}
	if c.IsDocumentPoolEnabled() {
		c.AddDocumentToDocumentPool(d)
	}
	c.events.Emit(EventInsert, InsertPayload{Schema: c.schema, ID: id, Document: document})
	return nil
}

func (d *Document) update(ctx context.Context) error {
	c := d.collection
	// Decided before the hooks run: fields set by a before-update hook
	// join whichever write was already due.
	partial := d.operator.IsDefined()

	if err := c.runHooks(ctx, HookBeforeUpdate, d); err != nil {
		return err
	}

	id := d.ID()
	var update Update
	if partial {
		update = d.operator.GetAll()
		payload := &OperationPayload{Schema: c.schema, ID: id, Update: update}
		err := dispatchOperation(ctx, OperationUpdate, payload, func(ctx context.Context) error {
			return c.driver.UpdatePartial(ctx, c.schema, id, update)
		})
		if err != nil {
			c.logger.Warn("update failed", zap.String("collection", c.schema.Collection), zap.Any("id", id), zap.Error(err))
			return &WriteError{Op: OperationUpdate, Collection: c.schema.Collection, Err: err}
		}
		if d.operator.IsReloadRequired() {
			if err := d.reload(ctx); err != nil {
				return &WriteError{Op: OperationUpdate, Collection: c.schema.Collection, Err: err}
			}
		}
		d.operator.Reset()
	} else {
		document := d.ToMap()
		payload := &OperationPayload{Schema: c.schema, ID: id, Document: document}
		err := dispatchOperation(ctx, OperationReplace, payload, func(ctx context.Context) error {
			return c.driver.UpdateFull(ctx, c.schema, id, document)
		})
		if err != nil {
			c.logger.Warn("replace failed", zap.String("collection", c.schema.Collection), zap.Any("id", id), zap.Error(err))
			return &WriteError{Op: OperationReplace, Collection: c.schema.Collection, Err: err}
		}
		// The store now holds the whole local state; pending operators
		// queued by hooks are already part of it.
		d.operator.Reset()
	}
	d.Structure.commit()
	written := d.ToMap()
	c.logger.Debug("document updated", zap.String("collection", c.schema.Collection), zap.Any("id", id), zap.Bool("partial", partial))

	if err := c.runHooks(ctx, HookAfterUpdate, d); err != nil {
		return err
	}
	c.events.Emit(EventUpdate, UpdatePayload{Schema: c.schema, ID: id, Update: update, Document: written})
	return nil
}

// reload re-reads the document after a partial update whose result is
// computed by the store, replacing the local values it touched.
func (d *Document) reload(ctx context.Context) error {
	c := d.collection
	fresh, err := c.fetch(ctx, d.ID())
	if err != nil {
		return err
	}
	if fresh == nil {
		return ErrDocumentNotFound
	}
	d.Structure.Replace(fresh)
	return nil
}

// Delete removes the document from the store and from the document pool.
// The instance cannot be saved or deleted again afterwards.
func (d *Document) Delete(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.deleted {
		return ErrDocumentDeleted
	}
	if !d.IsStored() {
		return ErrDocumentNotStored
	}
	c := d.collection
	if err := c.runHooks(ctx, HookBeforeDelete, d); err != nil {
		return err
	}

	id := d.ID()
	payload := &OperationPayload{Schema: c.schema, ID: id}
	var removed int64
	err := dispatchOperation(ctx, OperationDelete, payload, func(ctx context.Context) error {
		var err error
		removed, err = c.driver.Delete(ctx, c.schema, ID(id))
		return err
	})
	if err != nil {
		c.logger.Warn("delete failed", zap.String("collection", c.schema.Collection), zap.Any("id", id), zap.Error(err))
		return &WriteError{Op: OperationDelete, Collection: c.schema.Collection, Err: err}
	}
	c.logger.Debug("document deleted", zap.String("collection", c.schema.Collection), zap.Any("id", id), zap.Int64("removed", removed))

	c.RemoveDocumentFromDocumentPool(d)
	d.deleted = true

	if err := c.runHooks(ctx, HookAfterDelete, d); err != nil {
		return err
	}
	c.events.Emit(EventDelete, DeletePayload{Schema: c.schema, ID: id})
	return nil
}

// Refresh discards local changes and pending operators and reloads the
// document from the store.
func (d *Document) Refresh(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.IsStored() {
		return ErrDocumentNotStored
	}
	fresh, err := d.collection.fetch(ctx, d.ID())
	if err != nil {
		return err
	}
	if fresh == nil {
		return ErrDocumentNotFound
	}
	d.Structure.Replace(fresh)
	d.operator.Reset()
	return nil
}

// Decode hydrates out, a pointer to a struct or map, from the current
// state using bson field names.
//
// Example:
//
//	var user struct {
//	    ID   primitive.ObjectID `bson:"_id"`
//	    Name string             `bson:"name"`
//	}
//	err := doc.Decode(&user)
func (d *Document) Decode(out any) error {
	if out == nil {
		return errors.New("golem: Decode requires a non-nil pointer")
	}
	raw, err := bson.Marshal(d.ToMap())
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
