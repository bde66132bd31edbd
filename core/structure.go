// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Structure, a nested key-value document that tracks
// which paths were modified since it was last known to match the store.
package core

import "sort"

// Structure is a mutable nested document with per-path modification
// tracking.
//
// data holds the current state and originalData the state last known to be
// persisted. Paths written through Set, UnsetField, Append or Merge are
// recorded as modified; MergeUnmodified and Replace update both states and
// record nothing, which is how data loaded from the store is told apart from
// local edits.
//
// A Structure is not safe for concurrent use.
type Structure struct {
	data           map[string]any
	originalData   map[string]any
	modifiedFields map[string]struct{}
}

// NewStructure creates a Structure holding data as unmodified state.
func NewStructure(data map[string]any) *Structure {
	s := &Structure{
		data:           map[string]any{},
		originalData:   map[string]any{},
		modifiedFields: map[string]struct{}{},
	}
	if data != nil {
		s.MergeUnmodified(data)
	}
	return s
}

// Get returns the value at path, or nil when any segment is missing.
func (s *Structure) Get(path string) any {
	value, _ := s.Lookup(path)
	return value
}

// Has reports whether a value is present at path.
func (s *Structure) Has(path string) bool {
	_, ok := s.Lookup(path)
	return ok
}

// Lookup returns the value at path and whether it was present.
//
// The returned mappings and sequences are the live values; callers must not
// mutate them.
func (s *Structure) Lookup(path string) (any, bool) {
	if isSimpleSelector(path) {
		value, ok := s.data[path]
		return value, ok
	}
	fieldPath, err := ParseFieldPath(path)
	if err != nil {
		return nil, false
	}
	var current any = s.data
	for _, segment := range fieldPath {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = section[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes value at path and records path as modified.
//
// The value is normalized first. Writing a value equal to the current one is
// a no-op. Intermediate mappings are created as needed; descending through
// an existing non-mapping value returns a *StructureShapeError.
//
// Example:
//
//	s := core.NewStructure(nil)
//	_ = s.Set("profile.name", "Ada")
//	// s.Get("profile") == map[string]any{"name": "Ada"}
func (s *Structure) Set(path string, value any) error {
	value = Normalize(value)

	if isSimpleSelector(path) {
		if current, ok := s.data[path]; ok && valuesEqual(current, value) {
			return nil
		}
		s.data[path] = value
		s.modifiedFields[path] = struct{}{}
		return nil
	}

	section, leaf, err := s.descend(path, true)
	if err != nil {
		return err
	}
	if current, ok := section[leaf]; ok && valuesEqual(current, value) {
		return nil
	}
	section[leaf] = value
	s.modifiedFields[path] = struct{}{}
	return nil
}

// UnsetField removes the value at path and records path as modified.
// It is a no-op when nothing is stored there.
func (s *Structure) UnsetField(path string) error {
	if isSimpleSelector(path) {
		if _, ok := s.data[path]; !ok {
			return nil
		}
		delete(s.data, path)
		s.modifiedFields[path] = struct{}{}
		return nil
	}

	section, leaf, err := s.descend(path, false)
	if err != nil {
		return err
	}
	if section == nil {
		return nil
	}
	if _, ok := section[leaf]; !ok {
		return nil
	}
	delete(section, leaf)
	s.modifiedFields[path] = struct{}{}
	return nil
}

// Append adds value to the sequence at path.
//
// A missing or empty value becomes value itself, a scalar is promoted to a
// two-element sequence and a sequence is extended. The write goes through
// Set, so it is tracked.
func (s *Structure) Append(path string, value any) error {
	return s.Set(path, appendedValue(s.Get(path), Normalize(value)))
}

// appendedValue computes the result of appending value to current.
func appendedValue(current any, value any) any {
	if isEmptyValue(current) {
		return value
	}
	if list, ok := current.([]any); ok {
		out := make([]any, 0, len(list)+1)
		out = append(out, list...)
		return append(out, value)
	}
	return []any{current, value}
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case string:
		return v == ""
	}
	return false
}

// Merge deep-merges data into the current state and records every leaf
// path written as modified.
func (s *Structure) Merge(data map[string]any) {
	mergeInto(s.data, normalizeMap(data), "", func(path string) {
		s.modifiedFields[path] = struct{}{}
	}, nil)
}

// MergeUnmodified deep-merges data into both the current and the original
// state without recording modifications.
//
// Paths with pending local modifications keep their current value; only
// the original state learns the incoming value for them. This is what lets
// a fresh read refresh a document without discarding uncommitted edits.
func (s *Structure) MergeUnmodified(data map[string]any) {
	normalized := normalizeMap(data)
	mergeInto(s.data, normalized, "", nil, s.IsFieldModified)
	mergeInto(s.originalData, normalized, "", nil, nil)
}

// define writes value at a top-level field in both states and clears any
// pending modification of it.
func (s *Structure) define(field string, value any) {
	value = Normalize(value)
	s.data[field] = cloneValue(value)
	s.originalData[field] = cloneValue(value)
	delete(s.modifiedFields, field)
}

// Replace discards all state and pending modifications and takes data as
// the new unmodified state.
func (s *Structure) Replace(data map[string]any) {
	normalized := normalizeMap(data)
	s.data = cloneMap(normalized)
	s.originalData = cloneMap(normalized)
	s.modifiedFields = map[string]struct{}{}
}

// Reset discards pending modifications and restores the original state.
func (s *Structure) Reset() {
	s.data = cloneMap(s.originalData)
	s.modifiedFields = map[string]struct{}{}
}

// IsModified reports whether any path was modified.
func (s *Structure) IsModified() bool {
	return len(s.modifiedFields) > 0
}

// IsFieldModified reports whether path, one of its descendants or one of its
// ancestors was modified. Matching respects segment boundaries: a change to
// "ab" does not mark "a" as modified.
func (s *Structure) IsFieldModified(path string) bool {
	if len(s.modifiedFields) == 0 {
		return false
	}
	if _, ok := s.modifiedFields[path]; ok {
		return true
	}
	for modified := range s.modifiedFields {
		if isPathPrefix(path, modified) || isPathPrefix(modified, path) {
			return true
		}
	}
	return false
}

// isPathPrefix reports whether path lies strictly below prefix.
func isPathPrefix(prefix string, path string) bool {
	return len(path) > len(prefix) && path[len(prefix)] == '.' && path[:len(prefix)] == prefix
}

// ModifiedFields returns the modified paths in lexical order.
func (s *Structure) ModifiedFields() []string {
	fieldList := make([]string, 0, len(s.modifiedFields))
	for field := range s.modifiedFields {
		fieldList = append(fieldList, field)
	}
	sort.Strings(fieldList)
	return fieldList
}

// OriginalData returns a deep copy of the last unmodified state.
func (s *Structure) OriginalData() map[string]any {
	return cloneMap(s.originalData)
}

// ToMap returns a deep copy of the current state.
func (s *Structure) ToMap() map[string]any {
	return cloneMap(s.data)
}

// commit marks the current state as persisted.
func (s *Structure) commit() {
	s.originalData = cloneMap(s.data)
	s.modifiedFields = map[string]struct{}{}
}

// descend walks to the mapping holding the leaf of path. With create set,
// missing intermediate mappings are created; otherwise a nil section is
// returned when one is missing.
func (s *Structure) descend(path string, create bool) (map[string]any, string, error) {
	fieldPath, err := ParseFieldPath(path)
	if err != nil {
		return nil, "", err
	}
	section := s.data
	for i, segment := range fieldPath.Parent() {
		next, ok := section[segment]
		if !ok || next == nil {
			if !create {
				return nil, "", nil
			}
			child := map[string]any{}
			section[segment] = child
			section = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, "", &StructureShapeError{Path: path, Segment: fieldPath[:i+1].String()}
		}
		section = child
	}
	return section, fieldPath.Leaf(), nil
}
