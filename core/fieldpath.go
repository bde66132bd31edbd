// Package core provides the fundamental building blocks of the golem ODM.
// This file defines FieldPath, the dot-delimited address of a value inside
// a nested document.
package core

import "strings"

// FieldPath is an ordered list of segments addressing a value inside a
// nested document, e.g. "profile.address.city".
type FieldPath []string

// ParseFieldPath splits a dot-delimited selector into its segments.
//
// An empty selector, or a selector with an empty segment ("a..b", ".a",
// "a."), is rejected with an *InvalidPathError.
//
// Example:
//
//	path, _ := core.ParseFieldPath("profile.address.city")
//	// path == FieldPath{"profile", "address", "city"}
func ParseFieldPath(selector string) (FieldPath, error) {
	if selector == "" {
		return nil, &InvalidPathError{Path: selector}
	}
	segmentList := strings.Split(selector, ".")
	for _, segment := range segmentList {
		if segment == "" {
			return nil, &InvalidPathError{Path: selector}
		}
	}
	return FieldPath(segmentList), nil
}

// String joins the segments back into a dot-delimited selector.
func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// Leaf returns the last segment.
func (p FieldPath) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path without its last segment.
func (p FieldPath) Parent() FieldPath {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// isSimpleSelector reports whether selector addresses a top-level field.
// Callers use it to skip building a FieldPath in the common case.
func isSimpleSelector(selector string) bool {
	return selector != "" && strings.IndexByte(selector, '.') < 0
}

// joinPath appends a child key to a dot-delimited prefix.
func joinPath(prefix string, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
