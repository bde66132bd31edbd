// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the collection schema: where documents live and which
// fields carry special meaning.
package core

// FieldSpec describes a document field the collection knows about.
type FieldSpec struct {
	// Path is the dot path of the field inside the document.
	Path         string
	IsRequired   bool
	DefaultValue any

	IsCreatedAt bool
	IsUpdatedAt bool
}

// FieldOption configures a FieldSpec.
type FieldOption func(*FieldSpec)

// Required marks the field as mandatory for validation.
func Required() FieldOption {
	return func(f *FieldSpec) { f.IsRequired = true }
}

// Default sets the value a new document gets when the field is absent.
func Default(value any) FieldOption {
	return func(f *FieldSpec) { f.DefaultValue = value }
}

// CreatedAt marks the field written by the Timestamps behavior on insert.
func CreatedAt() FieldOption {
	return func(f *FieldSpec) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field written by the Timestamps behavior on every save.
func UpdatedAt() FieldOption {
	return func(f *FieldSpec) { f.IsUpdatedAt = true }
}

// SchemaCore locates a collection and lists its declared fields.
// Drivers only read Database and Collection.
type SchemaCore struct {
	Database   string
	Collection string
	Fields     []*FieldSpec
}

// field returns the declared field at path, creating it when missing.
func (s *SchemaCore) field(path string) *FieldSpec {
	for _, f := range s.Fields {
		if f.Path == path {
			return f
		}
	}
	f := &FieldSpec{Path: path}
	s.Fields = append(s.Fields, f)
	return f
}

// fieldWhere returns the first declared field satisfying predicate.
func (s *SchemaCore) fieldWhere(predicate func(*FieldSpec) bool) *FieldSpec {
	for _, f := range s.Fields {
		if predicate(f) {
			return f
		}
	}
	return nil
}
