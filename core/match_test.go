package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMatchFilter(t *testing.T) {
	id := primitive.NewObjectID()
	doc := map[string]any{
		"_id":     id,
		"name":    "Ada Lovelace",
		"age":     int64(36),
		"tags":    []any{"math", "poetry"},
		"profile": map[string]any{"city": "London"},
		"deleted": nil,
	}
	tests := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{name: "empty", filter: map[string]any{}, want: true},
		{name: "id", filter: map[string]any{"_id": id}, want: true},
		{name: "other id", filter: map[string]any{"_id": primitive.NewObjectID()}, want: false},
		{name: "nested equality", filter: map[string]any{"profile.city": "London"}, want: true},
		{name: "numbers across types", filter: map[string]any{"age": 36}, want: true},
		{name: "array contains", filter: map[string]any{"tags": "math"}, want: true},
		{name: "array index", filter: map[string]any{"tags.1": "poetry"}, want: true},
		{name: "gt", filter: map[string]any{"age": map[string]any{"$gt": 30}}, want: true},
		{name: "lt", filter: map[string]any{"age": map[string]any{"$lt": 30}}, want: false},
		{name: "range", filter: map[string]any{"age": map[string]any{"$gte": 36, "$lte": 36}}, want: true},
		{name: "ne", filter: map[string]any{"name": map[string]any{"$ne": "Grace"}}, want: true},
		{name: "in", filter: map[string]any{"tags": map[string]any{"$in": []any{"art", "poetry"}}}, want: true},
		{name: "nin", filter: map[string]any{"age": map[string]any{"$nin": []any{36}}}, want: false},
		{name: "exists", filter: map[string]any{"missing": map[string]any{"$exists": false}}, want: true},
		{name: "null matches missing", filter: map[string]any{"missing": nil}, want: true},
		{name: "null matches null", filter: map[string]any{"deleted": nil}, want: true},
		{name: "regex", filter: map[string]any{"name": map[string]any{"$regex": "^ada", "$options": "i"}}, want: true},
		{name: "and", filter: map[string]any{"$and": []any{map[string]any{"age": 36}, map[string]any{"name": "x"}}}, want: false},
		{name: "or", filter: map[string]any{"$or": []any{map[string]any{"age": 1}, map[string]any{"tags": "math"}}}, want: true},
		{name: "nor", filter: map[string]any{"$nor": []any{map[string]any{"age": 36}}}, want: false},
		{name: "unknown operator", filter: map[string]any{"age": map[string]any{"$mod": []any{2, 0}}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchFilter(doc, tt.filter))
		})
	}
}

func TestConditionToMapAndMatch(t *testing.T) {
	cond := Field("age").Gt(18).And(Field("status").In("active", "pending"))
	assert.Equal(t, map[string]any{"$and": []any{
		map[string]any{"age": map[string]any{"$gt": 18}},
		map[string]any{"status": map[string]any{"$in": []any{"active", "pending"}}},
	}}, cond.ToMap())

	assert.True(t, cond.Match(map[string]any{"age": 20, "status": "active"}))
	assert.False(t, cond.Match(map[string]any{"age": 20, "status": "closed"}))
	assert.True(t, Field("email").Like("%@gmail.com").Match(map[string]any{"email": "Ada@GMAIL.com"}))
	assert.True(t, Field("age").Lt(18).Not().Match(map[string]any{"age": 20}))
	assert.True(t, Field("a").Eq(1).Or(Field("b").Eq(2)).Match(map[string]any{"b": 2}))
	assert.True(t, Field("gone").Nil().Match(map[string]any{}))

	var empty *Condition
	assert.Equal(t, map[string]any{}, empty.ToMap())
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "^.*admin.$", LikePattern("%admin_"))
	assert.Equal(t, `^a\.b$`, LikePattern("a.b"))
}

func TestCompareValues(t *testing.T) {
	result, ok := CompareValues(int32(1), 2.5)
	assert.True(t, ok)
	assert.Equal(t, -1, result)

	result, ok = CompareValues("b", "a")
	assert.True(t, ok)
	assert.Equal(t, 1, result)

	now := time.Now()
	result, ok = CompareValues(primitive.NewDateTimeFromTime(now.Add(-time.Hour)), now)
	assert.True(t, ok)
	assert.Equal(t, -1, result)

	_, ok = CompareValues("a", 1)
	assert.False(t, ok)
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}}
	value, ok := LookupPath(doc, "a.b.0.c")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = LookupPath(doc, "a.b.1")
	assert.False(t, ok)
	_, ok = LookupPath(doc, "a.x")
	assert.False(t, ok)
}
