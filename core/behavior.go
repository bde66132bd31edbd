// Package core provides the fundamental building blocks of the golem ODM.
// This file defines behaviors: named capabilities attached to a collection
// that contribute hooks and validators to its documents.
package core

import (
	"context"
	"time"
)

// HookProvider is implemented by behaviors that take part in the document
// lifecycle. Hooks is called on every lifecycle stage, so implementations
// should return a prebuilt set.
type HookProvider interface {
	Hooks() HookSet
}

type namedBehavior struct {
	name     string
	behavior any
}

// AttachBehavior attaches behavior under name. A behavior may implement
// HookProvider, Validator, both or neither; attaching under an existing
// name replaces the previous behavior in place.
func (c *Collection) AttachBehavior(name string, behavior any) {
	for i, entry := range c.behaviorList {
		if entry.name == name {
			c.behaviorList[i].behavior = behavior
			return
		}
	}
	c.behaviorList = append(c.behaviorList, namedBehavior{name: name, behavior: behavior})
}

// Behavior returns the behavior attached under name.
func (c *Collection) Behavior(name string) (any, bool) {
	for _, entry := range c.behaviorList {
		if entry.name == name {
			return entry.behavior, true
		}
	}
	return nil, false
}

// BehaviorAs returns the first behavior of doc's collection, in attachment
// order, that is a T.
//
// Example:
//
//	if ts, ok := core.BehaviorAs[*core.Timestamps](doc); ok {
//	    fmt.Println(ts.UpdatedAt(doc))
//	}
func BehaviorAs[T any](doc *Document) (T, bool) {
	var zero T
	if doc == nil || doc.collection == nil {
		return zero, false
	}
	for _, entry := range doc.collection.behaviorList {
		if value, ok := entry.behavior.(T); ok {
			return value, true
		}
	}
	return zero, false
}

// Timestamps stamps documents with their creation and last update time.
//
// The fields default to the collection fields declared with CreatedAt()
// and UpdatedAt(), then to "createdAt" and "updatedAt".
type Timestamps struct {
	CreatedField string
	UpdatedField string
	// Now returns the current time; time.Now when nil.
	Now func() time.Time

	hooks HookSet
}

var _ HookProvider = (*Timestamps)(nil)

// Hooks implements HookProvider.
func (t *Timestamps) Hooks() HookSet {
	if t.hooks != nil {
		return t.hooks
	}
	t.hooks = HookSet{}
	t.hooks.On(HookBeforeInsert, func(ctx context.Context, doc *Document) error {
		now := t.now()
		if created := t.createdField(doc); !doc.Has(created) {
			if err := doc.Set(created, now); err != nil {
				return err
			}
		}
		return doc.Set(t.updatedField(doc), now)
	})
	t.hooks.On(HookBeforeUpdate, func(ctx context.Context, doc *Document) error {
		return doc.Set(t.updatedField(doc), t.now())
	})
	return t.hooks
}

// CreatedAt returns the creation time of doc, if stamped.
func (t *Timestamps) CreatedAt(doc *Document) (time.Time, bool) {
	return asTime(doc.Get(t.createdField(doc)))
}

// UpdatedAt returns the last update time of doc, if stamped.
func (t *Timestamps) UpdatedAt(doc *Document) (time.Time, bool) {
	return asTime(doc.Get(t.updatedField(doc)))
}

func (t *Timestamps) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func (t *Timestamps) createdField(doc *Document) string {
	if t.CreatedField != "" {
		return t.CreatedField
	}
	if f := doc.collection.schema.fieldWhere(func(f *FieldSpec) bool { return f.IsCreatedAt }); f != nil {
		return f.Path
	}
	return "createdAt"
}

func (t *Timestamps) updatedField(doc *Document) string {
	if t.UpdatedField != "" {
		return t.UpdatedField
	}
	if f := doc.collection.schema.fieldWhere(func(f *FieldSpec) bool { return f.IsUpdatedAt }); f != nil {
		return f.Path
	}
	return "updatedAt"
}
