// Package core provides the fundamental building blocks of the golem ODM.
// This file applies an update operator payload to a plain document, for
// stores that keep documents as opaque blobs.
package core

import (
	"fmt"
	"sort"
	"strings"
)

// ApplyUpdate applies update to doc in place, the way MongoDB would.
//
// Operators run in a fixed order: $set, $unset, $inc, $push, $pull. Fields
// are addressed by dot paths and intermediate mappings are created on write.
// The $push argument is a bare value or an {$each, $position, $sort, $slice}
// bundle; $pull removes elements equal to a literal or matching a condition.
//
// Example:
//
//	doc := map[string]any{"n": 1}
//	_ = core.ApplyUpdate(doc, core.Update{"$inc": {"n": int64(2)}})
//	// doc["n"] == int64(3)
func ApplyUpdate(doc map[string]any, update Update) error {
	for name := range update {
		switch name {
		case UpdateSet, UpdateUnset, UpdateInc, UpdatePush, UpdatePull:
		default:
			return fmt.Errorf("golem: unsupported update operator %q", name)
		}
	}
	for _, name := range []string{UpdateSet, UpdateUnset, UpdateInc, UpdatePush, UpdatePull} {
		bucket := update[name]
		for _, field := range sortedKeys(bucket) {
			if err := applyOperator(doc, name, field, bucket[field]); err != nil {
				return fmt.Errorf("%s %s: %w", name, field, err)
			}
		}
	}
	return nil
}

func sortedKeys(bucket map[string]any) []string {
	keyList := make([]string, 0, len(bucket))
	for key := range bucket {
		keyList = append(keyList, key)
	}
	sort.Strings(keyList)
	return keyList
}

func applyOperator(doc map[string]any, name string, field string, argument any) error {
	argument = Normalize(argument)
	switch name {
	case UpdateSet:
		return setPath(doc, field, cloneValue(argument))
	case UpdateUnset:
		return unsetPath(doc, field)
	case UpdateInc:
		current, _ := LookupPath(doc, field)
		sum, err := addNumbers(current, argument)
		if err != nil {
			return err
		}
		return setPath(doc, field, sum)
	case UpdatePush:
		current, found := LookupPath(doc, field)
		list, ok := current.([]any)
		if found && current != nil && !ok {
			return fmt.Errorf("golem: cannot push to non-array value %v", current)
		}
		pushed, err := applyPush(list, argument)
		if err != nil {
			return err
		}
		return setPath(doc, field, pushed)
	case UpdatePull:
		current, found := LookupPath(doc, field)
		if !found || current == nil {
			return nil
		}
		list, ok := current.([]any)
		if !ok {
			return fmt.Errorf("golem: cannot pull from non-array value %v", current)
		}
		return setPath(doc, field, PullMatching(list, argument))
	}
	return nil
}

func applyPush(list []any, argument any) ([]any, error) {
	out := make([]any, 0, len(list)+1)
	out = append(out, list...)

	bundle, isBundle := argument.(map[string]any)
	if !isBundle {
		return append(out, cloneValue(argument)), nil
	}
	eachValue, hasEach := bundle["$each"]
	if !hasEach {
		return append(out, cloneValue(argument)), nil
	}
	each, ok := eachValue.([]any)
	if !ok {
		return nil, fmt.Errorf("golem: $each requires an array")
	}
	each = cloneValue(each).([]any)

	position := len(out)
	if raw, ok := bundle["$position"]; ok {
		p, ok := asInt64(raw)
		if !ok {
			return nil, fmt.Errorf("golem: $position must be an integer")
		}
		position = clampIndex(int(p), len(out))
	}
	out = append(out[:position], append(each, out[position:]...)...)

	if spec, ok := bundle["$sort"]; ok {
		if err := sortValues(out, spec); err != nil {
			return nil, err
		}
	}
	if raw, ok := bundle["$slice"]; ok {
		n, ok := asInt64(raw)
		if !ok {
			return nil, fmt.Errorf("golem: $slice must be an integer")
		}
		out = sliceValues(out, int(n))
	}
	return out, nil
}

func clampIndex(index int, length int) int {
	if index < 0 {
		index += length
		if index < 0 {
			return 0
		}
	}
	if index > length {
		return length
	}
	return index
}

func sliceValues(list []any, n int) []any {
	switch {
	case n == 0:
		return []any{}
	case n > 0 && n < len(list):
		return list[:n]
	case n < 0 && -n < len(list):
		return list[len(list)+n:]
	}
	return list
}

func sortValues(list []any, spec any) error {
	if direction, ok := asInt64(spec); ok {
		sort.SliceStable(list, func(i, j int) bool {
			result, _ := CompareValues(list[i], list[j])
			return result*int(direction) < 0
		})
		return nil
	}
	var rules SortSpec
	switch v := spec.(type) {
	case SortSpec:
		rules = v
	case map[string]any:
		// unordered input: fields are compared in lexical order
		for _, key := range sortedKeys(v) {
			direction, _ := asInt64(v[key])
			rules = append(rules, Sort{FieldName: key, Order: int(direction)})
		}
	default:
		return fmt.Errorf("golem: invalid $sort specification %v", spec)
	}
	sort.SliceStable(list, func(i, j int) bool {
		left, _ := list[i].(map[string]any)
		right, _ := list[j].(map[string]any)
		for _, rule := range rules {
			a, _ := LookupPath(left, rule.FieldName)
			b, _ := LookupPath(right, rule.FieldName)
			result, _ := CompareValues(a, b)
			if result != 0 {
				return result*rule.Order < 0
			}
		}
		return false
	})
	return nil
}

// PullMatching returns list without the elements matched by expression.
//
// A literal expression removes equal elements. An operator document
// ({"$gte": 6}) is evaluated against each element, and a field document
// ({"status": "done"}) against each sub-document element.
func PullMatching(list []any, expression any) []any {
	expression = Normalize(expression)
	out := make([]any, 0, len(list))
	for _, item := range list {
		if !pullMatches(item, expression) {
			out = append(out, item)
		}
	}
	return out
}

func pullMatches(item any, expression any) bool {
	if _, ok := isOperatorDocument(expression); ok {
		return matchValue(item, true, expression)
	}
	if filter, ok := expression.(map[string]any); ok {
		if sub, isDoc := item.(map[string]any); isDoc {
			return MatchFilter(sub, filter)
		}
		return false
	}
	return ValuesEquivalent(item, expression)
}

// setPath writes value at a dot path, creating intermediate mappings.
func setPath(doc map[string]any, path string, value any) error {
	segmentList := strings.Split(path, ".")
	section := doc
	for i, segment := range segmentList[:len(segmentList)-1] {
		next, ok := section[segment]
		if !ok || next == nil {
			child := map[string]any{}
			section[segment] = child
			section = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return &StructureShapeError{Path: path, Segment: strings.Join(segmentList[:i+1], ".")}
		}
		section = child
	}
	section[segmentList[len(segmentList)-1]] = value
	return nil
}

func unsetPath(doc map[string]any, path string) error {
	segmentList := strings.Split(path, ".")
	section := doc
	for _, segment := range segmentList[:len(segmentList)-1] {
		child, ok := section[segment].(map[string]any)
		if !ok {
			return nil
		}
		section = child
	}
	delete(section, segmentList[len(segmentList)-1])
	return nil
}
