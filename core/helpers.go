// Package core provides the fundamental building blocks of the golem ODM.
// This file contains helpers for value normalization, deep copies, numeric
// arithmetic on document values and condition folding.
package core

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts a value into the plain shape stored by a Structure.
//
// Mappings become map[string]any and sequences become []any, recursively.
// Driver-native scalars (ObjectID, DateTime, Decimal128, time.Time, ...) pass
// through unchanged. Any other struct is converted to a plain mapping by a
// bson round trip, so its bson tags decide the field names.
func Normalize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case bson.M:
		return Normalize(map[string]any(v))
	case bson.D:
		out := make(map[string]any, len(v))
		for _, element := range v {
			out[element.Key] = Normalize(element.Value)
		}
		return out
	case bson.A:
		return Normalize([]any(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	case []byte:
		return v
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case time.Time, primitive.ObjectID, primitive.DateTime, primitive.Decimal128,
		primitive.Regex, primitive.Binary, primitive.Timestamp, primitive.Null:
		return v
	case Expression:
		return Normalize(v.ToMap())
	case SortSpec:
		return v
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		raw, err := bson.Marshal(value)
		if err != nil {
			return value
		}
		var doc bson.M
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return value
		}
		return Normalize(doc)
	}
	return value
}

// normalizeMap normalizes every value of a mapping. A nil input yields an empty mapping.
func normalizeMap(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return Normalize(data).(map[string]any)
}

// cloneValue deep-copies the container shapes produced by Normalize.
// Scalars are immutable values and are returned as-is.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case SortSpec:
		return append(SortSpec(nil), v...)
	default:
		return value
	}
}

func cloneMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = cloneValue(value)
	}
	return out
}

// valuesEqual is the strict equality used to make Set idempotent.
func valuesEqual(a any, b any) bool {
	return reflect.DeepEqual(a, b)
}

// mergeInto deep-merges src into dst. Mappings are merged key by key;
// sequences and scalars replace the previous value. track, when not nil,
// receives every leaf path written. skip, when not nil, keeps dst untouched
// at the paths it selects.
func mergeInto(dst map[string]any, src map[string]any, prefix string, track func(path string), skip func(path string) bool) {
	for key, value := range src {
		path := joinPath(prefix, key)
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap && len(srcMap) > 0 {
			mergeInto(dstMap, srcMap, path, track, skip)
			continue
		}
		if skip != nil && skip(path) {
			continue
		}
		dst[key] = cloneValue(value)
		if track != nil {
			collectLeafPaths(value, path, track)
		}
	}
}

// collectLeafPaths reports path for scalars and empty mappings, and the
// leaves below path for non-empty mappings.
func collectLeafPaths(value any, path string, track func(path string)) {
	valueMap, ok := value.(map[string]any)
	if !ok || len(valueMap) == 0 {
		track(path)
		return
	}
	for key, item := range valueMap {
		collectLeafPaths(item, joinPath(path, key), track)
	}
}

// asInt64 converts integer kinds to int64. Floats are not accepted.
func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	if i, ok := asInt64(value); ok {
		return float64(i), true
	}
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// toInteger converts a stored value to an int64 for local increments.
// Missing values count as zero; floats are truncated and numeric strings parsed.
func toInteger(value any) (int64, error) {
	if value == nil {
		return 0, nil
	}
	if i, ok := asInt64(value); ok {
		return i, nil
	}
	if f, ok := asFloat64(value); ok {
		return int64(f), nil
	}
	if s, ok := value.(string); ok {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("golem: value %v (%T) is not numeric", value, value)
}

// addNumbers adds delta to current keeping integer arithmetic when both
// sides are integers.
func addNumbers(current any, delta any) (any, error) {
	if current == nil {
		return delta, nil
	}
	ci, currentIsInt := asInt64(current)
	di, deltaIsInt := asInt64(delta)
	if currentIsInt && deltaIsInt {
		return ci + di, nil
	}
	cf, ok := asFloat64(current)
	if !ok {
		return nil, fmt.Errorf("golem: cannot increment non-numeric value %v (%T)", current, current)
	}
	df, ok := asFloat64(delta)
	if !ok {
		return nil, fmt.Errorf("golem: increment by non-numeric value %v (%T)", delta, delta)
	}
	return cf + df, nil
}

// idKey turns a document id into the string key used by the document pool.
func idKey(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(id)
}

// foldConditionsAnd combines multiple conditions into a single condition
// using logical AND. If zero conditions are provided, it returns nil.
// If one condition is provided, it returns that condition.
func foldConditionsAnd(conds ...*Condition) *Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		acc := conds[0]
		for i := 1; i < len(conds); i++ {
			acc = acc.And(conds[i])
		}
		return acc
	}
}
