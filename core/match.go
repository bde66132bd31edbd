// Package core provides the fundamental building blocks of the golem ODM.
// This file evaluates MongoDB-style filter documents against plain
// documents, for stores that do not evaluate filters themselves.
package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchFilter reports whether doc satisfies a MongoDB filter document.
//
// Supported: implicit equality, $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin,
// $exists, $regex (with $options), and the logical $and, $or, $nor. An
// array field matches when any of its elements does, as on the server.
func MatchFilter(doc map[string]any, filter map[string]any) bool {
	for key, condition := range filter {
		switch key {
		case "$and":
			for _, sub := range asFilterList(condition) {
				if !MatchFilter(doc, sub) {
					return false
				}
			}
		case "$or":
			matched := false
			for _, sub := range asFilterList(condition) {
				if MatchFilter(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$nor":
			for _, sub := range asFilterList(condition) {
				if MatchFilter(doc, sub) {
					return false
				}
			}
		default:
			value, found := LookupPath(doc, key)
			if !matchValue(value, found, condition) {
				return false
			}
		}
	}
	return true
}

func asFilterList(value any) []map[string]any {
	var filterList []map[string]any
	list, ok := Normalize(value).([]any)
	if !ok {
		return nil
	}
	for _, item := range list {
		if filter, ok := item.(map[string]any); ok {
			filterList = append(filterList, filter)
		}
	}
	return filterList
}

// LookupPath resolves a dot path inside a plain document. Numeric segments
// index into sequences.
func LookupPath(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// isOperatorDocument reports whether every key of value starts with "$".
func isOperatorDocument(value any) (map[string]any, bool) {
	doc, ok := value.(map[string]any)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for key := range doc {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return doc, true
}

func matchValue(value any, found bool, condition any) bool {
	condition = Normalize(condition)
	operatorDoc, ok := isOperatorDocument(condition)
	if !ok {
		return matchEquals(value, found, condition)
	}
	for op, argument := range operatorDoc {
		switch op {
		case "$eq":
			if !matchEquals(value, found, argument) {
				return false
			}
		case "$ne":
			if matchEquals(value, found, argument) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !found || !matchAny(value, func(item any) bool { return compareWith(op, item, argument) }) {
				return false
			}
		case "$in":
			if !matchIn(value, found, argument) {
				return false
			}
		case "$nin":
			if matchIn(value, found, argument) {
				return false
			}
		case "$exists":
			want, _ := argument.(bool)
			if want != found {
				return false
			}
		case "$regex":
			options, _ := operatorDoc["$options"].(string)
			if !found || !matchAny(value, func(item any) bool { return matchRegex(item, argument, options) }) {
				return false
			}
		case "$options":
		default:
			return false
		}
	}
	return true
}

// matchAny applies predicate to value, or to each element when value is a sequence.
func matchAny(value any, predicate func(item any) bool) bool {
	if list, ok := value.([]any); ok {
		for _, item := range list {
			if predicate(item) {
				return true
			}
		}
		return false
	}
	return predicate(value)
}

func matchEquals(value any, found bool, expected any) bool {
	if expected == nil {
		return !found || value == nil
	}
	if !found {
		return false
	}
	if ValuesEquivalent(value, expected) {
		return true
	}
	if list, ok := value.([]any); ok {
		for _, item := range list {
			if ValuesEquivalent(item, expected) {
				return true
			}
		}
	}
	return false
}

func matchIn(value any, found bool, argument any) bool {
	list, ok := argument.([]any)
	if !ok {
		return false
	}
	for _, candidate := range list {
		if matchEquals(value, found, candidate) {
			return true
		}
	}
	return false
}

func matchRegex(value any, pattern any, options string) bool {
	text, ok := value.(string)
	if !ok {
		return false
	}
	source, ok := pattern.(string)
	if !ok {
		if regex, isRegex := pattern.(primitive.Regex); isRegex {
			source, options = regex.Pattern, regex.Options
		} else {
			return false
		}
	}
	if strings.Contains(options, "i") {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func compareWith(op string, value any, argument any) bool {
	result, ok := CompareValues(value, argument)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return result > 0
	case "$gte":
		return result >= 0
	case "$lt":
		return result < 0
	default:
		return result <= 0
	}
}

// ValuesEquivalent compares two document values. Numbers compare by value
// regardless of their Go type; everything else compares strictly.
func ValuesEquivalent(a any, b any) bool {
	af, aIsNumber := asFloat64(a)
	bf, bIsNumber := asFloat64(b)
	if aIsNumber && bIsNumber {
		return af == bf
	}
	return valuesEqual(Normalize(a), Normalize(b))
}

// CompareValues orders two values of the same family (numbers, strings,
// times, ObjectIDs). ok is false when they cannot be ordered.
func CompareValues(a any, b any) (int, bool) {
	if af, ok := asFloat64(a); ok {
		bf, ok := asFloat64(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case primitive.DateTime:
		bv, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return av.Time().Compare(bv), true
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Hex(), bv.Hex()), true
	}
	return 0, false
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case primitive.DateTime:
		return v.Time(), true
	}
	return time.Time{}, false
}
