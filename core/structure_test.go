package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructureSetIsIdempotent(t *testing.T) {
	s := NewStructure(map[string]any{"name": "Ada", "profile": map[string]any{"city": "London"}})

	require.NoError(t, s.Set("name", "Ada"))
	assert.False(t, s.IsFieldModified("name"))

	require.NoError(t, s.Set("profile.city", "Paris"))
	before := s.IsFieldModified("profile.city")
	require.NoError(t, s.Set("profile.city", "Paris"))
	assert.Equal(t, before, s.IsFieldModified("profile.city"))
	assert.Equal(t, "Paris", s.Get("profile.city"))
}

func TestStructureNestedPathRoundTrip(t *testing.T) {
	s := NewStructure(nil)
	require.NoError(t, s.Set("a.b.c", "x"))

	assert.Equal(t, "x", s.Get("a.b.c"))
	assert.Equal(t, map[string]any{"c": "x"}, s.Get("a.b"))
	assert.Equal(t, map[string]any{"b": map[string]any{"c": "x"}}, s.Get("a"))
	assert.True(t, s.Has("a.b"))
	assert.False(t, s.Has("a.x"))
	assert.Nil(t, s.Get("a.b.c.d"))
}

func TestStructureSetThroughScalar(t *testing.T) {
	s := NewStructure(map[string]any{"a": "scalar"})
	err := s.Set("a.b", 1)
	var shapeErr *StructureShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "a", shapeErr.Segment)
	assert.Equal(t, "scalar", s.Get("a"))

	assert.Error(t, s.Set("a..b", 1))
}

func TestStructureResetRestoresOriginal(t *testing.T) {
	original := map[string]any{
		"name":    "Ada",
		"profile": map[string]any{"city": "London", "zip": "N1"},
		"tags":    []any{"a"},
	}
	s := NewStructure(original)

	require.NoError(t, s.Set("name", "Grace"))
	require.NoError(t, s.Set("profile.city", "Paris"))
	require.NoError(t, s.UnsetField("profile.zip"))
	require.NoError(t, s.Append("tags", "b"))
	require.NoError(t, s.Set("extra.deep", true))
	require.True(t, s.IsModified())

	s.Reset()
	assert.Equal(t, original, s.ToMap())
	assert.False(t, s.IsModified())
}

func TestStructureUnsetField(t *testing.T) {
	s := NewStructure(map[string]any{"a": map[string]any{"b": 1, "c": 2}})

	require.NoError(t, s.UnsetField("a.b"))
	assert.Equal(t, map[string]any{"c": 2}, s.Get("a"))
	assert.True(t, s.IsFieldModified("a.b"))

	require.NoError(t, s.UnsetField("missing.path"))
	require.NoError(t, s.UnsetField("nothing"))
	assert.Equal(t, []string{"a.b"}, s.ModifiedFields())
}

func TestStructureAppend(t *testing.T) {
	s := NewStructure(map[string]any{"scalar": "a", "list": []any{"a"}, "empty": ""})

	require.NoError(t, s.Append("missing", "x"))
	require.NoError(t, s.Append("empty", "x"))
	require.NoError(t, s.Append("scalar", "b"))
	require.NoError(t, s.Append("list", "b"))

	assert.Equal(t, "x", s.Get("missing"))
	assert.Equal(t, "x", s.Get("empty"))
	assert.Equal(t, []any{"a", "b"}, s.Get("scalar"))
	assert.Equal(t, []any{"a", "b"}, s.Get("list"))
}

func TestStructureMergeTracksLeaves(t *testing.T) {
	s := NewStructure(map[string]any{"profile": map[string]any{"city": "London", "zip": "N1"}})

	s.Merge(map[string]any{"profile": map[string]any{"city": "Paris"}, "age": 36})

	assert.Equal(t, map[string]any{"city": "Paris", "zip": "N1"}, s.Get("profile"))
	assert.Equal(t, []string{"age", "profile.city"}, s.ModifiedFields())
	assert.False(t, s.IsFieldModified("profile.zip"))
}

func TestStructureMergeUnmodifiedKeepsLocalEdits(t *testing.T) {
	s := NewStructure(map[string]any{"f": "stored", "g": "old"})
	require.NoError(t, s.Set("f", "local"))

	s.MergeUnmodified(map[string]any{"f": "stored", "g": "new", "h": 1})

	assert.Equal(t, "local", s.Get("f"))
	assert.Equal(t, "new", s.Get("g"))
	assert.Equal(t, 1, s.Get("h"))
	assert.Equal(t, []string{"f"}, s.ModifiedFields())
	assert.Equal(t, map[string]any{"f": "stored", "g": "new", "h": 1}, s.OriginalData())
}

func TestStructureReplace(t *testing.T) {
	s := NewStructure(map[string]any{"a": 1})
	require.NoError(t, s.Set("b", 2))

	s.Replace(map[string]any{"c": 3})
	assert.Equal(t, map[string]any{"c": 3}, s.ToMap())
	assert.Equal(t, map[string]any{"c": 3}, s.OriginalData())
	assert.False(t, s.IsModified())
}

func TestStructureIsFieldModifiedRespectsSegments(t *testing.T) {
	s := NewStructure(nil)
	require.NoError(t, s.Set("ab", 1))
	require.NoError(t, s.Set("x.y.z", 1))

	assert.True(t, s.IsFieldModified("ab"))
	assert.False(t, s.IsFieldModified("a"))
	assert.True(t, s.IsFieldModified("x"))
	assert.True(t, s.IsFieldModified("x.y"))
	assert.True(t, s.IsFieldModified("x.y.z.w"))
	assert.False(t, s.IsFieldModified("x.yz"))
}

func TestStructureToMapIsDeepCopy(t *testing.T) {
	s := NewStructure(map[string]any{"a": map[string]any{"b": []any{1}}})

	copied := s.ToMap()
	copied["a"].(map[string]any)["b"].([]any)[0] = 99

	assert.Equal(t, []any{1}, s.Get("a.b"))
}

func TestStructureNormalizesValues(t *testing.T) {
	type address struct {
		City string `bson:"city"`
	}
	s := NewStructure(nil)
	require.NoError(t, s.Set("address", address{City: "London"}))
	require.NoError(t, s.Set("tags", []string{"a", "b"}))

	assert.Equal(t, "London", s.Get("address.city"))
	assert.Equal(t, []any{"a", "b"}, s.Get("tags"))
}
