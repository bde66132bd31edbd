// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the asynchronous event bus notified after writes.
package core

import "sync"

// Event represents a notification emitted by a collection after a write
// or a read has completed.
//
// Unlike hooks, event handlers cannot influence the operation: they run
// asynchronously and receive immutable snapshots.
type Event string

const (
	// EventInsert is emitted after a document is inserted.
	EventInsert Event = "insert"
	// EventUpdate is emitted after a document is updated or replaced.
	EventUpdate Event = "update"
	// EventDelete is emitted after a document is deleted.
	EventDelete Event = "delete"
	// EventFind is emitted after documents are retrieved.
	EventFind Event = "find"
)

// EventHandler defines the callback signature for event listeners.
// The payload argument varies depending on the event type (InsertPayload,
// UpdatePayload, DeletePayload, FindPayload).
type EventHandler func(payload any)

// EventDispatcher manages a list of event handlers and dispatches them
// when the corresponding events are emitted.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlerList: make(map[Event][]EventHandler)}
}

// globalDispatcher is the shared event dispatcher used by collections that
// were not given their own.
var globalDispatcher = NewEventDispatcher()

// On registers an EventHandler for a specific Event.
func (d *EventDispatcher) On(event Event, handler EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handlerList[event] = append(d.handlerList[event], handler)
}

// Emit triggers all registered handlers for the given Event.
//
// Handlers are executed asynchronously in separate goroutines.
func (d *EventDispatcher) Emit(event Event, payload any) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	for _, h := range d.handlerList[event] {
		go h(payload)
	}
}

// On registers an EventHandler on the global dispatcher.
//
// Example:
//
//	core.On(core.EventInsert, func(payload any) {
//	    if p, ok := payload.(core.InsertPayload); ok {
//	        log.Printf("inserted %v into %s", p.ID, p.Schema.Collection)
//	    }
//	})
func On(event Event, handler EventHandler) {
	globalDispatcher.On(event, handler)
}

// Emit triggers the handlers registered on the global dispatcher.
func Emit(event Event, payload any) {
	globalDispatcher.Emit(event, payload)
}

// InsertPayload is passed to EventInsert handlers.
type InsertPayload struct {
	Schema   *SchemaCore
	ID       any
	Document map[string]any
}

// UpdatePayload is passed to EventUpdate handlers. Update holds the operator
// payload for partial updates and is nil for full replaces.
type UpdatePayload struct {
	Schema   *SchemaCore
	ID       any
	Update   Update
	Document map[string]any
}

// DeletePayload is passed to EventDelete handlers.
type DeletePayload struct {
	Schema *SchemaCore
	ID     any
}

// FindPayload is passed to EventFind handlers.
type FindPayload struct {
	Schema *SchemaCore
	Where  *Where
	Count  int
}
