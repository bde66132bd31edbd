// Package postgres provides a document store for the golem ODM on PostgreSQL.
// This file contains helpers translating conditions and sort rules into SQL
// over the JSONB document column, and decoding stored documents.
package postgres

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/leandroluk/golem/core"
)

// jsonPath splits a dot path into the text[] argument of the #> operator.
func jsonPath(field string) []string {
	return strings.Split(field, ".")
}

func appendArg(argList *[]any, value any) string {
	*argList = append(*argList, value)
	return fmt.Sprintf("$%d", len(*argList))
}

// jsonArg appends value encoded as JSON and returns its jsonb placeholder.
func jsonArg(argList *[]any, value any) string {
	raw, err := json.Marshal(core.Normalize(value))
	if err != nil {
		raw = []byte("null")
	}
	return appendArg(argList, string(raw)) + "::jsonb"
}

// buildCondition renders condition as a WHERE clause, appending its
// arguments to argList. Conditions on _id use the primary key column.
//
// Example:
//
//	argList := []any{}
//	buildCondition(core.Field("profile.age").Gt(18), &argList)
//	// "document #> $1::text[] > $2::jsonb", argList == [["profile" "age"] "18"]
func buildCondition(condition *core.Condition, argList *[]any) string {
	if condition == nil || condition.Operator == nil {
		return "TRUE"
	}
	switch *condition.Operator {
	case core.OpAnd, core.OpOr, core.OpNot:
		if len(condition.Children) == 0 {
			return "TRUE"
		}
		partList := []string{}
		for _, child := range condition.Children {
			partList = append(partList, buildCondition(child, argList))
		}
		switch *condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")"
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")"
		default:
			return "NOT (" + strings.Join(partList, " AND ") + ")"
		}
	}

	if condition.FieldName == core.IDField {
		return buildIDCondition(condition, argList)
	}

	path := appendArg(argList, jsonPath(condition.FieldName)) + "::text[]"
	column := "document #> " + path
	switch *condition.Operator {
	case core.OpNil:
		return fmt.Sprintf("(%s IS NULL OR %s = 'null'::jsonb)", column, column)
	case core.OpEq:
		return fmt.Sprintf("%s = %s", column, jsonArg(argList, condition.Value))
	case core.OpGt:
		return fmt.Sprintf("%s > %s", column, jsonArg(argList, condition.Value))
	case core.OpGte:
		return fmt.Sprintf("%s >= %s", column, jsonArg(argList, condition.Value))
	case core.OpLt:
		return fmt.Sprintf("%s < %s", column, jsonArg(argList, condition.Value))
	case core.OpLte:
		return fmt.Sprintf("%s <= %s", column, jsonArg(argList, condition.Value))
	case core.OpLike:
		return fmt.Sprintf("document #>> %s ILIKE %s", path, appendArg(argList, fmt.Sprint(condition.Value)))
	case core.OpIn:
		valueList := inValues(condition.Value)
		if len(valueList) == 0 {
			return "FALSE"
		}
		placeholderList := make([]string, 0, len(valueList))
		for _, value := range valueList {
			placeholderList = append(placeholderList, jsonArg(argList, value))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", "))
	}
	return "TRUE"
}

// buildIDCondition renders a condition on _id against the id column.
func buildIDCondition(condition *core.Condition, argList *[]any) string {
	switch *condition.Operator {
	case core.OpNil:
		return "FALSE"
	case core.OpEq:
		return "id = " + appendArg(argList, idText(condition.Value))
	case core.OpGt:
		return "id > " + appendArg(argList, idText(condition.Value))
	case core.OpGte:
		return "id >= " + appendArg(argList, idText(condition.Value))
	case core.OpLt:
		return "id < " + appendArg(argList, idText(condition.Value))
	case core.OpLte:
		return "id <= " + appendArg(argList, idText(condition.Value))
	case core.OpLike:
		return "id ILIKE " + appendArg(argList, fmt.Sprint(condition.Value))
	case core.OpIn:
		valueList := inValues(condition.Value)
		if len(valueList) == 0 {
			return "FALSE"
		}
		idList := make([]string, len(valueList))
		for i, value := range valueList {
			idList[i] = idText(value)
		}
		return "id = ANY(" + appendArg(argList, idList) + "::text[])"
	}
	return "TRUE"
}

func inValues(value any) []any {
	if list, ok := core.Normalize(value).([]any); ok {
		return list
	}
	return []any{value}
}

// buildOrder renders sort rules as an ORDER BY list.
func buildOrder(sortList []core.Sort, argList *[]any) string {
	partList := make([]string, 0, len(sortList))
	for _, sortItem := range sortList {
		direction := "ASC"
		if sortItem.Order < 0 {
			direction = "DESC"
		}
		if sortItem.FieldName == core.IDField {
			partList = append(partList, "id "+direction)
			continue
		}
		path := appendArg(argList, jsonPath(sortItem.FieldName))
		partList = append(partList, fmt.Sprintf("document #> %s::text[] %s", path, direction))
	}
	return strings.Join(partList, ", ")
}

// decodeDocument decodes a stored JSONB document. Integral numbers become
// int64 and the others float64.
func decodeDocument(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var document map[string]any
	if err := decoder.Decode(&document); err != nil {
		return nil, err
	}
	if document == nil {
		return map[string]any{}, nil
	}
	return convertNumbers(document).(map[string]any), nil
}

func convertNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = convertNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = convertNumbers(item)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	}
	return value
}
