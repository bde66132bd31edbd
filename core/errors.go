// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the error taxonomy surfaced by documents, operators,
// structures and collections.
package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCancelled is the conventional value returned by a before-hook to
	// cancel the operation it guards.
	ErrCancelled = errors.New("golem: operation cancelled by hook")
	// ErrDocumentDeleted is returned when a deleted document is saved or deleted again.
	ErrDocumentDeleted = errors.New("golem: document has been deleted")
	// ErrDocumentNotStored is returned when a new document is deleted or
	// refreshed before it was ever saved.
	ErrDocumentNotStored = errors.New("golem: document is not stored")
	// ErrDocumentNotFound is returned when a document lookup by id finds nothing.
	ErrDocumentNotFound = errors.New("golem: document not found")
	// ErrNoDocumentMatched is returned by drivers when an update or replace
	// filtered by id matched no stored document.
	ErrNoDocumentMatched = errors.New("golem: no document matched the id filter")
	// ErrTransactionDone is returned when a settled transaction is committed again.
	ErrTransactionDone = errors.New("golem: transaction already committed or rolled back")
)

// ValidationError is returned by Save when validation was requested and failed.
// Nothing has been written when it is returned.
type ValidationError struct {
	// Document is a snapshot of the document state that failed validation.
	Document map[string]any
	// Errors maps field paths to their failure messages.
	Errors map[string][]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	fieldList := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fieldList = append(fieldList, field)
	}
	sort.Strings(fieldList)

	partList := make([]string, 0, len(fieldList))
	for _, field := range fieldList {
		partList = append(partList, fmt.Sprintf("%s: %s", field, strings.Join(e.Errors[field], ", ")))
	}
	return "golem: document invalid: " + strings.Join(partList, "; ")
}

// WriteError is returned when the store rejects an insert, update or delete.
//
// The in-memory document is left as it was when the write was attempted; it
// must not be assumed to reflect server state afterwards.
type WriteError struct {
	Op         Operation
	Collection string
	Err        error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("golem: %s on %q failed: %v", e.Op, e.Collection, e.Err)
}

// Unwrap exposes the store error to errors.Is / errors.As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// ModifierMisuseError is returned by Operator when a $push modifier is
// requested without a preceding $each, or with an invalid argument.
type ModifierMisuseError struct {
	Field    string
	Modifier string
	Reason   string
}

// Error implements the error interface.
func (e *ModifierMisuseError) Error() string {
	return fmt.Sprintf("golem: %s on field %q: %s", e.Modifier, e.Field, e.Reason)
}

// StructureShapeError is returned when a nested path would descend through
// an existing non-mapping value.
type StructureShapeError struct {
	Path    string
	Segment string
}

// Error implements the error interface.
func (e *StructureShapeError) Error() string {
	return fmt.Sprintf("golem: cannot descend into scalar at %q while addressing %q", e.Segment, e.Path)
}

// InvalidPathError is returned for empty selectors or selectors with empty segments.
type InvalidPathError struct {
	Path string
}

// Error implements the error interface.
func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("golem: invalid field path %q", e.Path)
}
