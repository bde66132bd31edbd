// Package core provides the fundamental building blocks of the golem ODM.
// This file defines Operator, the accumulator of pending MongoDB update
// operators for one document.
package core

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// Update operator names, as understood by MongoDB.
const (
	UpdateSet   = "$set"
	UpdateUnset = "$unset"
	UpdateInc   = "$inc"
	UpdatePush  = "$push"
	UpdatePull  = "$pull"
)

// Update is an operator payload: operator name → field path → argument.
//
// It is ready to be marshalled as a MongoDB update document.
//
// Example:
//
//	core.Update{"$set": {"name": "Ada"}, "$inc": {"visits": int64(1)}}
type Update map[string]map[string]any

// Fields returns the field paths targeted by the payload, sorted and
// without duplicates.
func (u Update) Fields() []string {
	seen := map[string]struct{}{}
	for _, bucket := range u {
		for field := range bucket {
			seen[field] = struct{}{}
		}
	}
	fieldList := make([]string, 0, len(seen))
	for field := range seen {
		fieldList = append(fieldList, field)
	}
	sort.Strings(fieldList)
	return fieldList
}

// SortSpec orders array elements by several sub-document fields in turn,
// for the $sort modifier of a $push. Rule order is kept on the wire.
type SortSpec []Sort

// pushEach is a $push argument using the $each modifier.
type pushEach struct {
	each     []any
	slice    *int
	sort     any
	position *int
}

func (p *pushEach) toMap() map[string]any {
	out := map[string]any{"$each": cloneValue(p.each)}
	if p.position != nil {
		out["$position"] = *p.position
	}
	if p.sort != nil {
		out["$sort"] = cloneValue(p.sort)
	}
	if p.slice != nil {
		out["$slice"] = *p.slice
	}
	return out
}

// Operator accumulates update operators while a stored document is edited,
// so that saving sends a partial update instead of the whole document.
//
// An Operator is not safe for concurrent use.
type Operator struct {
	operators map[string]map[string]any
}

// NewOperator creates an empty Operator.
func NewOperator() *Operator {
	return &Operator{operators: map[string]map[string]any{}}
}

func (o *Operator) bucket(name string) map[string]any {
	bucket, ok := o.operators[name]
	if !ok {
		bucket = map[string]any{}
		o.operators[name] = bucket
	}
	return bucket
}

// drop removes field from the named buckets, deleting buckets left empty.
func (o *Operator) drop(field string, nameList ...string) {
	for _, name := range nameList {
		bucket, ok := o.operators[name]
		if !ok {
			continue
		}
		delete(bucket, field)
		if len(bucket) == 0 {
			delete(o.operators, name)
		}
	}
}

// dropBelow removes every pending operator on a descendant of field.
func (o *Operator) dropBelow(field string) {
	for name, bucket := range o.operators {
		for pending := range bucket {
			if isPathPrefix(field, pending) {
				delete(bucket, pending)
			}
		}
		if len(bucket) == 0 {
			delete(o.operators, name)
		}
	}
}

// pendingSetAbove returns the pending $set on an ancestor of field, the
// mapping inside its value that holds field's leaf, and the leaf. ok is
// false when no ancestor $set is pending or its value cannot hold field.
// With create set, missing intermediate mappings are added to the value.
func (o *Operator) pendingSetAbove(field string, create bool) (section map[string]any, leaf string, ok bool) {
	for ancestor, value := range o.operators[UpdateSet] {
		if !isPathPrefix(ancestor, field) {
			continue
		}
		current, isMap := value.(map[string]any)
		if !isMap {
			return nil, "", false
		}
		rest, err := ParseFieldPath(field[len(ancestor)+1:])
		if err != nil {
			return nil, "", false
		}
		for _, segment := range rest.Parent() {
			next, found := current[segment]
			if !found || next == nil {
				if !create {
					return nil, "", false
				}
				child := map[string]any{}
				current[segment] = child
				current = child
				continue
			}
			child, isMap := next.(map[string]any)
			if !isMap {
				return nil, "", false
			}
			current = child
		}
		return current, rest.Leaf(), true
	}
	return nil, "", false
}

// ConflictRoot returns the path an operator on field must be folded into
// so that no two pending paths overlap: the outermost pending ancestor of
// field, or field itself when only descendants are pending. ok is false
// when nothing pending overlaps field.
func (o *Operator) ConflictRoot(field string) (root string, ok bool) {
	for _, bucket := range o.operators {
		for pending := range bucket {
			switch {
			case isPathPrefix(pending, field):
				if !ok || root == field || len(pending) < len(root) {
					root = pending
				}
				ok = true
			case isPathPrefix(field, pending) && !ok:
				root, ok = field, true
			}
		}
	}
	return root, ok
}

// Set queues a $set. The last value set for a field wins, and any pending
// $unset, $inc, $push or $pull on the same field or below it is
// discarded. A $set pending on an ancestor absorbs the write into its value.
func (o *Operator) Set(field string, value any) {
	value = Normalize(value)
	if section, leaf, ok := o.pendingSetAbove(field, true); ok {
		section[leaf] = value
		return
	}
	o.drop(field, UpdateUnset, UpdateInc, UpdatePush, UpdatePull)
	o.dropBelow(field)
	o.bucket(UpdateSet)[field] = value
}

// Pending returns the value queued for field under the named operator.
func (o *Operator) Pending(name string, field string) (any, bool) {
	bucket, ok := o.operators[name]
	if !ok {
		return nil, false
	}
	value, ok := bucket[field]
	if each, isEach := value.(*pushEach); isEach {
		return each.toMap(), ok
	}
	return value, ok
}

// Increment queues an $inc. Repeated increments of a field accumulate into
// one amount. When a numeric $set is already pending for the field the
// increment is folded into it.
//
// Example:
//
//	op := core.NewOperator()
//	op.Increment("visits", 5)
//	op.Increment("visits", -2)
//	// op.GetAll()["$inc"]["visits"] == int64(3)
func (o *Operator) Increment(field string, value int64) {
	if section, leaf, ok := o.pendingSetAbove(field, true); ok {
		if sum, err := addNumbers(section[leaf], value); err == nil {
			section[leaf] = sum
			return
		}
	}
	if pending, ok := o.Pending(UpdateSet, field); ok {
		if sum, err := addNumbers(pending, value); err == nil {
			o.operators[UpdateSet][field] = sum
			return
		}
	}
	bucket := o.bucket(UpdateInc)
	prior, _ := asInt64(bucket[field])
	bucket[field] = prior + value
}

// Push queues a $push of a single value.
//
// The first push stores the bare value. A second push promotes it to
// {$each: [first, second]}; later pushes append to that $each list.
func (o *Operator) Push(field string, value any) {
	o.pushValues(field, []any{Normalize(value)}, false)
}

// PushEach queues a $push of several values using $each.
func (o *Operator) PushEach(field string, values []any) {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = Normalize(value)
	}
	o.pushValues(field, normalized, true)
}

func (o *Operator) pushValues(field string, values []any, forceEach bool) {
	bucket := o.bucket(UpdatePush)
	prior, ok := bucket[field]
	switch {
	case !ok && !forceEach && len(values) == 1:
		bucket[field] = values[0]
	case !ok:
		bucket[field] = &pushEach{each: values}
	default:
		if each, isEach := prior.(*pushEach); isEach {
			each.each = append(each.each, values...)
			return
		}
		bucket[field] = &pushEach{each: append([]any{prior}, values...)}
	}
}

func (o *Operator) eachFor(field string, modifier string) (*pushEach, error) {
	bucket, ok := o.operators[UpdatePush]
	if ok {
		if each, isEach := bucket[field].(*pushEach); isEach {
			return each, nil
		}
	}
	return nil, &ModifierMisuseError{Field: field, Modifier: modifier, Reason: "no $each push pending for field"}
}

// PushEachSlice limits the array to slice elements after the pending $each push.
func (o *Operator) PushEachSlice(field string, slice int) error {
	each, err := o.eachFor(field, "$slice")
	if err != nil {
		return err
	}
	if slice <= 0 {
		return &ModifierMisuseError{Field: field, Modifier: "$slice", Reason: "slice must be positive"}
	}
	each.slice = &slice
	return nil
}

// PushEachSort sorts the array after the pending $each push.
//
// sort is 1 or -1 for scalar elements. Sub-document elements are sorted
// by a SortSpec, a []Sort or a bson.D of field to 1 or -1, applied in
// order. A map is accepted only with a single field, since it carries no
// order.
//
// Example:
//
//	op.PushEach("scores", entries)
//	_ = op.PushEachSort("scores", bson.D{{Key: "score", Value: -1}, {Key: "name", Value: 1}})
func (o *Operator) PushEachSort(field string, sort any) error {
	each, err := o.eachFor(field, "$sort")
	if err != nil {
		return err
	}
	spec, ok := sortSpecFrom(sort)
	if !ok {
		return &ModifierMisuseError{Field: field, Modifier: "$sort", Reason: "sort must be 1, -1 or an ordered list of fields to 1 or -1"}
	}
	each.sort = spec
	return nil
}

// sortSpecFrom validates a $sort argument, returning a scalar direction
// or a SortSpec.
func sortSpecFrom(spec any) (any, bool) {
	switch v := spec.(type) {
	case SortSpec:
		return validSortRules(v)
	case []Sort:
		return validSortRules(SortSpec(v))
	case bson.D:
		rules := make(SortSpec, 0, len(v))
		for _, element := range v {
			direction, ok := asInt64(element.Value)
			if !ok {
				return nil, false
			}
			rules = append(rules, Sort{FieldName: element.Key, Order: int(direction)})
		}
		return validSortRules(rules)
	}
	if direction, ok := asInt64(spec); ok {
		return Normalize(spec), direction == 1 || direction == -1
	}
	fields, ok := Normalize(spec).(map[string]any)
	if !ok || len(fields) != 1 {
		return nil, false
	}
	for key, value := range fields {
		direction, ok := asInt64(value)
		if !ok {
			return nil, false
		}
		return validSortRules(SortSpec{{FieldName: key, Order: int(direction)}})
	}
	return nil, false
}

func validSortRules(rules SortSpec) (any, bool) {
	if len(rules) == 0 {
		return nil, false
	}
	for _, rule := range rules {
		if rule.FieldName == "" || (rule.Order != 1 && rule.Order != -1) {
			return nil, false
		}
	}
	return append(SortSpec(nil), rules...), true
}

// PushEachPosition inserts the pending $each values at position.
func (o *Operator) PushEachPosition(field string, position int) error {
	each, err := o.eachFor(field, "$position")
	if err != nil {
		return err
	}
	if position <= 0 {
		return &ModifierMisuseError{Field: field, Modifier: "$position", Reason: "position must be positive"}
	}
	each.position = &position
	return nil
}

// Pull queues a $pull. expression is either a literal to remove or a
// condition; an Expression such as *Condition is flattened to its mapping form.
func (o *Operator) Pull(field string, expression any) {
	o.bucket(UpdatePull)[field] = Normalize(expression)
}

// UnsetField queues an $unset and discards any pending operator on the
// field or below it. A $set pending on an ancestor drops the field from
// its value instead.
func (o *Operator) UnsetField(field string) {
	if _, isBelowSet := o.pendingSetAncestor(field); isBelowSet {
		if section, leaf, ok := o.pendingSetAbove(field, false); ok {
			delete(section, leaf)
		}
		return
	}
	o.drop(field, UpdateSet, UpdateInc, UpdatePush, UpdatePull)
	o.dropBelow(field)
	o.bucket(UpdateUnset)[field] = ""
}

func (o *Operator) pendingSetAncestor(field string) (string, bool) {
	for ancestor := range o.operators[UpdateSet] {
		if isPathPrefix(ancestor, field) {
			return ancestor, true
		}
	}
	return "", false
}

// IsDefined reports whether any operator is pending.
func (o *Operator) IsDefined() bool {
	return len(o.operators) > 0
}

// IsReloadRequired reports whether the pending operators produce values
// that only the server can compute ($inc and $pull).
func (o *Operator) IsReloadRequired() bool {
	return len(o.operators[UpdateInc]) > 0 || len(o.operators[UpdatePull]) > 0
}

// Reset discards every pending operator.
func (o *Operator) Reset() {
	o.operators = map[string]map[string]any{}
}

// GetAll returns a copy of the pending operators in their wire form.
func (o *Operator) GetAll() Update {
	out := make(Update, len(o.operators))
	for name, bucket := range o.operators {
		copied := make(map[string]any, len(bucket))
		for field, value := range bucket {
			if each, ok := value.(*pushEach); ok {
				copied[field] = each.toMap()
				continue
			}
			copied[field] = cloneValue(value)
		}
		out[name] = copied
	}
	return out
}
