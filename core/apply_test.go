package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdate(t *testing.T) {
	tests := []struct {
		name   string
		doc    map[string]any
		update Update
		want   map[string]any
	}{
		{
			name:   "set creates intermediate mappings",
			doc:    map[string]any{},
			update: Update{UpdateSet: {"a.b": 1}},
			want:   map[string]any{"a": map[string]any{"b": 1}},
		},
		{
			name:   "unset",
			doc:    map[string]any{"a": map[string]any{"b": 1, "c": 2}},
			update: Update{UpdateUnset: {"a.b": ""}},
			want:   map[string]any{"a": map[string]any{"c": 2}},
		},
		{
			name:   "inc missing field",
			doc:    map[string]any{},
			update: Update{UpdateInc: {"n": int64(2)}},
			want:   map[string]any{"n": int64(2)},
		},
		{
			name:   "inc float",
			doc:    map[string]any{"n": 1.5},
			update: Update{UpdateInc: {"n": int64(1)}},
			want:   map[string]any{"n": 2.5},
		},
		{
			name:   "push bare value",
			doc:    map[string]any{"tags": []any{"a"}},
			update: Update{UpdatePush: {"tags": "b"}},
			want:   map[string]any{"tags": []any{"a", "b"}},
		},
		{
			name:   "push to missing field",
			doc:    map[string]any{},
			update: Update{UpdatePush: {"tags": "a"}},
			want:   map[string]any{"tags": []any{"a"}},
		},
		{
			name: "push each with position sort and slice",
			doc:  map[string]any{"scores": []any{5, 1}},
			update: Update{UpdatePush: {"scores": map[string]any{
				"$each": []any{9, 3}, "$position": 1, "$sort": -1, "$slice": 3,
			}}},
			want: map[string]any{"scores": []any{9, 5, 3}},
		},
		{
			name: "push each sorted by fields in rule order",
			doc: map[string]any{"board": []any{
				map[string]any{"name": "a", "score": 1},
				map[string]any{"name": "b", "score": 2},
			}},
			update: Update{UpdatePush: {"board": map[string]any{
				"$each": []any{map[string]any{"name": "c", "score": 2}},
				"$sort": SortSpec{{FieldName: "score", Order: -1}, {FieldName: "name", Order: 1}},
			}}},
			want: map[string]any{"board": []any{
				map[string]any{"name": "b", "score": 2},
				map[string]any{"name": "c", "score": 2},
				map[string]any{"name": "a", "score": 1},
			}},
		},
		{
			name:   "push each at position",
			doc:    map[string]any{"list": []any{"a", "d"}},
			update: Update{UpdatePush: {"list": map[string]any{"$each": []any{"b", "c"}, "$position": 1}}},
			want:   map[string]any{"list": []any{"a", "b", "c", "d"}},
		},
		{
			name:   "pull literal",
			doc:    map[string]any{"tags": []any{"a", "b", "a"}},
			update: Update{UpdatePull: {"tags": "a"}},
			want:   map[string]any{"tags": []any{"b"}},
		},
		{
			name:   "pull condition",
			doc:    map[string]any{"scores": []any{1, 6, 8, 3}},
			update: Update{UpdatePull: {"scores": map[string]any{"$gte": 6}}},
			want:   map[string]any{"scores": []any{1, 3}},
		},
		{
			name: "pull sub-documents",
			doc: map[string]any{"items": []any{
				map[string]any{"id": 1, "status": "done"},
				map[string]any{"id": 2, "status": "open"},
			}},
			update: Update{UpdatePull: {"items": map[string]any{"status": "done"}}},
			want:   map[string]any{"items": []any{map[string]any{"id": 2, "status": "open"}}},
		},
		{
			name:   "operators run in order",
			doc:    map[string]any{"n": 1},
			update: Update{UpdateInc: {"n": int64(1)}, UpdateSet: {"n": 10}},
			want:   map[string]any{"n": int64(11)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ApplyUpdate(tt.doc, tt.update))
			assert.Equal(t, tt.want, tt.doc)
		})
	}
}

func TestApplyUpdateErrors(t *testing.T) {
	assert.Error(t, ApplyUpdate(map[string]any{}, Update{"$rename": {"a": "b"}}))
	assert.Error(t, ApplyUpdate(map[string]any{"n": "x"}, Update{UpdateInc: {"n": int64(1)}}))
	assert.Error(t, ApplyUpdate(map[string]any{"tags": "a"}, Update{UpdatePush: {"tags": "b"}}))
	assert.Error(t, ApplyUpdate(map[string]any{"a": 1}, Update{UpdateSet: {"a.b": 1}}))
}

func TestPullMatching(t *testing.T) {
	list := []any{int64(1), 2.0, "2", int32(3)}
	assert.Equal(t, []any{int64(1), "2", int32(3)}, PullMatching(list, 2))
	assert.Equal(t, []any{int64(1), 2.0, "2"}, PullMatching(list, map[string]any{"$gt": 2}))
	assert.Equal(t, list, PullMatching(list, "missing"))
}
