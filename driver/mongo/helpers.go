// Package driver provides the MongoDB store for the golem ODM.
// This file contains helper functions used by the MongoDB driver to
// translate core values into bson.
package driver

import (
	"github.com/leandroluk/golem/core"
	"go.mongodb.org/mongo-driver/bson"
)

// filterFor renders condition as a filter document. A nil condition
// matches every document.
//
// Example:
//
//	filterFor(core.Field("age").Gt(18))
//	// bson.M{"age": bson.M{"$gt": 18}}
func filterFor(condition *core.Condition) bson.M {
	return toBsonDocument(condition.ToMap())
}

// safeCondition ensures that a Where clause always has a valid root condition.
//
// If the query or its Condition is nil, it returns an empty AND condition.
// This prevents drivers from having to handle nil pointers explicitly.
func safeCondition(query *core.Where) *core.Condition {
	if query == nil || query.Condition == nil {
		return &core.Condition{Operator: &core.OpAnd, Children: []*core.Condition{}}
	}
	return query.Condition
}

// sortDocument renders the sort rules of query in order.
func sortDocument(query *core.Where) bson.D {
	if query == nil {
		return nil
	}
	sortDoc := bson.D{}
	for _, sortItem := range query.Sort {
		direction := 1
		if sortItem.Order < 0 {
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: sortItem.FieldName, Value: direction})
	}
	return sortDoc
}

// toBsonDocument converts a plain mapping, recursively, into bson.M.
func toBsonDocument(document map[string]any) bson.M {
	out := make(bson.M, len(document))
	for key, value := range document {
		out[key] = toBsonValue(value)
	}
	return out
}

func toBsonValue(value any) any {
	switch v := value.(type) {
	case core.SortSpec:
		out := make(bson.D, len(v))
		for i, rule := range v {
			out[i] = bson.E{Key: rule.FieldName, Value: rule.Order}
		}
		return out
	case map[string]any:
		return toBsonDocument(v)
	case []any:
		out := make(bson.A, len(v))
		for i, item := range v {
			out[i] = toBsonValue(item)
		}
		return out
	}
	return value
}

// toBsonUpdate renders an operator payload as an update document.
//
// Example:
//
//	toBsonUpdate(core.Update{"$inc": {"n": int64(3)}})
//	// bson.M{"$inc": bson.M{"n": int64(3)}}
func toBsonUpdate(update core.Update) bson.M {
	out := make(bson.M, len(update))
	for name, bucket := range update {
		out[name] = toBsonDocument(bucket)
	}
	return out
}
