// Package core provides the fundamental building blocks of the golem ODM.
// This file defines query conditions and their MongoDB filter form.
package core

import (
	"fmt"
	"regexp"
	"strings"
)

// ConditionOperator represents a comparison or logical operator used in a query condition.
//
// Operators can be logical (AND, OR, NOT) or value-based (EQ, GT, IN, etc.).
type ConditionOperator string

const (
	// Logical operators
	opAnd ConditionOperator = "AND"
	opOr  ConditionOperator = "OR"
	opNot ConditionOperator = "NOT"

	// Value-based operators
	opNil  ConditionOperator = "NIL"  // field is null or missing
	opEq   ConditionOperator = "EQ"   // field = value
	opGt   ConditionOperator = "GT"   // field > value
	opGte  ConditionOperator = "GTE"  // field >= value
	opLt   ConditionOperator = "LT"   // field < value
	opLte  ConditionOperator = "LTE"  // field <= value
	opLike ConditionOperator = "LIKE" // SQL-style pattern, rendered as a case-insensitive regex
	opIn   ConditionOperator = "IN"   // field in value list
)

// Public operator aliases, used when constructing conditions by hand.
//
// Example:
//
//	cond := &core.Condition{FieldName: "age", Operator: &core.OpGt, Value: 18}
var (
	OpAnd  = opAnd
	OpOr   = opOr
	OpNot  = opNot
	OpNil  = opNil
	OpEq   = opEq
	OpGt   = opGt
	OpGte  = opGte
	OpLt   = opLt
	OpLte  = opLte
	OpLike = opLike
	OpIn   = opIn
)

// Expression is implemented by values that flatten to a MongoDB filter
// document. Operator.Pull and Normalize accept them in place of a mapping.
type Expression interface {
	ToMap() map[string]any
}

// Condition represents a single clause in a query filter.
//
// A condition targets a field path (FieldName) with an operator and a
// comparison value. Conditions nest through Children to build AND, OR and
// NOT expressions.
//
// Example:
//
//	cond := (&Condition{FieldName: "age"}).Gt(18).
//		And((&Condition{FieldName: "status"}).Eq("active"))
type Condition struct {
	FieldName string             // dot path of the field this condition applies to
	Operator  *ConditionOperator // comparison or logical operator
	Value     any                // comparison value
	Children  []*Condition       // nested conditions (AND, OR, NOT)
}

var _ Expression = (*Condition)(nil)

// Field starts a condition on the given field path.
func Field(path string) *Condition {
	return &Condition{FieldName: path}
}

// ID is shorthand for a condition matching the document id.
func ID(id any) *Condition {
	return Field(IDField).Eq(id)
}

// And combines this condition with additional conditions using the logical AND operator.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpAnd,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Or combines this condition with additional conditions using the logical OR operator.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpOr,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Not negates this condition using the logical NOT operator.
func (c *Condition) Not() *Condition {
	return &Condition{
		Operator: &OpNot,
		Children: []*Condition{c},
	}
}

// Nil sets this condition to match null or missing values.
func (c *Condition) Nil() *Condition {
	c.Operator = &OpNil
	c.Value = nil
	return c
}

// Eq sets this condition to check for equality.
func (c *Condition) Eq(v any) *Condition {
	c.Operator = &OpEq
	c.Value = v
	return c
}

// Gt sets this condition to check for "greater than".
func (c *Condition) Gt(v any) *Condition {
	c.Operator = &OpGt
	c.Value = v
	return c
}

// Gte sets this condition to check for "greater than or equal".
func (c *Condition) Gte(v any) *Condition {
	c.Operator = &OpGte
	c.Value = v
	return c
}

// Lt sets this condition to check for "less than".
func (c *Condition) Lt(v any) *Condition {
	c.Operator = &OpLt
	c.Value = v
	return c
}

// Lte sets this condition to check for "less than or equal".
func (c *Condition) Lte(v any) *Condition {
	c.Operator = &OpLte
	c.Value = v
	return c
}

// Like sets this condition to perform a pattern match (% and _ wildcards).
func (c *Condition) Like(v any) *Condition {
	c.Operator = &OpLike
	c.Value = v
	return c
}

// In sets this condition to check whether the field value is contained in the provided list.
func (c *Condition) In(values ...any) *Condition {
	c.Operator = &OpIn
	c.Value = values
	return c
}

// ToMap renders the condition as a MongoDB filter document.
// A nil condition renders as an empty filter that matches everything.
func (c *Condition) ToMap() map[string]any {
	if c == nil || c.Operator == nil {
		return map[string]any{}
	}
	if len(c.Children) > 0 {
		childFilterList := make([]any, 0, len(c.Children))
		for _, child := range c.Children {
			childFilterList = append(childFilterList, child.ToMap())
		}
		switch *c.Operator {
		case OpAnd:
			return map[string]any{"$and": childFilterList}
		case OpOr:
			return map[string]any{"$or": childFilterList}
		case OpNot:
			return map[string]any{"$nor": childFilterList}
		default:
			return map[string]any{}
		}
	}

	fieldName := c.FieldName
	switch *c.Operator {
	case OpNil:
		return map[string]any{fieldName: map[string]any{"$eq": nil}}
	case OpEq:
		return map[string]any{fieldName: Normalize(c.Value)}
	case OpGt:
		return map[string]any{fieldName: map[string]any{"$gt": Normalize(c.Value)}}
	case OpGte:
		return map[string]any{fieldName: map[string]any{"$gte": Normalize(c.Value)}}
	case OpLt:
		return map[string]any{fieldName: map[string]any{"$lt": Normalize(c.Value)}}
	case OpLte:
		return map[string]any{fieldName: map[string]any{"$lte": Normalize(c.Value)}}
	case OpLike:
		pattern := LikePattern(fmt.Sprintf("%v", c.Value))
		return map[string]any{fieldName: map[string]any{"$regex": pattern, "$options": "i"}}
	case OpIn:
		var array []any
		switch v := c.Value.(type) {
		case []any:
			array = v
		default:
			array = []any{c.Value}
		}
		return map[string]any{fieldName: map[string]any{"$in": Normalize(array)}}
	default:
		return map[string]any{}
	}
}

// Match reports whether doc satisfies the condition.
func (c *Condition) Match(doc map[string]any) bool {
	return MatchFilter(doc, c.ToMap())
}

// LikePattern converts a SQL-like pattern into an anchored regular expression.
//
// % becomes .* and _ becomes a single-character wildcard; everything else
// is matched literally.
//
// Example:
//
//	core.LikePattern("%admin_") // "^.*admin.$"
func LikePattern(input string) string {
	const percent = "\x00"
	const underscore = "\x01"
	safe := strings.ReplaceAll(input, "%", percent)
	safe = strings.ReplaceAll(safe, "_", underscore)
	safe = regexp.QuoteMeta(safe)
	safe = strings.ReplaceAll(safe, percent, ".*")
	safe = strings.ReplaceAll(safe, underscore, ".")
	return "^" + safe + "$"
}
