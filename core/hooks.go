// Package core provides the fundamental building blocks of the golem ODM.
// This file defines lifecycle hooks that allow custom logic to be executed
// around construction, validation and persistence of documents.
package core

import "context"

// Hook identifies a stage of the document lifecycle.
//
// The set is closed: hooks run as direct sequential calls in registration
// order, not through a named-event bus.
type Hook string

const (
	// HookConstruct runs when a collection creates or loads a document instance.
	HookConstruct Hook = "construct"
	// HookBeforeValidate runs before validators; an error aborts the save.
	HookBeforeValidate Hook = "before:validate"
	// HookAfterValidate runs after validators succeeded.
	HookAfterValidate Hook = "after:validate"
	// HookBeforeSave runs before any write of Save; an error cancels the save.
	HookBeforeSave Hook = "before:save"
	// HookAfterSave runs after a successful insert or update.
	HookAfterSave Hook = "after:save"
	// HookBeforeInsert runs before a new document is inserted; an error cancels the insert.
	HookBeforeInsert Hook = "before:insert"
	// HookAfterInsert runs after a new document is inserted and its id assigned.
	HookAfterInsert Hook = "after:insert"
	// HookBeforeUpdate runs before a stored document is updated; an error cancels the update.
	HookBeforeUpdate Hook = "before:update"
	// HookAfterUpdate runs after a stored document is updated.
	HookAfterUpdate Hook = "after:update"
	// HookBeforeDelete runs before a document is deleted; an error cancels the delete.
	HookBeforeDelete Hook = "before:delete"
	// HookAfterDelete runs after a document is deleted.
	HookAfterDelete Hook = "after:delete"
)

// HookFunc is a lifecycle callback.
//
// Returning an error from a before-hook cancels the operation and the error
// is returned to the caller; ErrCancelled is the conventional value. Errors
// from after-hooks are returned too, but the write has already happened.
type HookFunc func(ctx context.Context, doc *Document) error

// HookSet maps lifecycle stages to their callbacks.
type HookSet map[Hook][]HookFunc

// On appends fn to the callbacks of hook.
func (h HookSet) On(hook Hook, fn HookFunc) {
	h[hook] = append(h[hook], fn)
}

// run invokes the callbacks of hook in order, stopping at the first error.
func (h HookSet) run(ctx context.Context, hook Hook, doc *Document) error {
	for _, fn := range h[hook] {
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}
