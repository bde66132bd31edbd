// Package core provides the fundamental building blocks of the golem ODM.
// This file defines document validators run by Save.
package core

import "context"

// Validator checks a document before it is written and returns the
// failure messages per field path. An empty result means valid.
type Validator interface {
	Validate(ctx context.Context, doc *Document) map[string][]string
}

// ValidatorFunc adapts a function to Validator.
//
// Example:
//
//	core.WithValidator(core.ValidatorFunc(func(ctx context.Context, doc *core.Document) map[string][]string {
//	    if age, ok := doc.Get("age").(int64); ok && age < 0 {
//	        return map[string][]string{"age": {"must not be negative"}}
//	    }
//	    return nil
//	}))
type ValidatorFunc func(ctx context.Context, doc *Document) map[string][]string

// Validate implements Validator.
func (f ValidatorFunc) Validate(ctx context.Context, doc *Document) map[string][]string {
	return f(ctx, doc)
}

// RequiredFields reports every listed path that is missing, nil or an
// empty string.
func RequiredFields(fieldList ...string) Validator {
	return ValidatorFunc(func(ctx context.Context, doc *Document) map[string][]string {
		var errorMap map[string][]string
		for _, path := range fieldList {
			value, ok := doc.Lookup(path)
			if ok && value != nil && value != "" {
				continue
			}
			if errorMap == nil {
				errorMap = map[string][]string{}
			}
			errorMap[path] = append(errorMap[path], "is required")
		}
		return errorMap
	})
}
