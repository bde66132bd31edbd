package postgres

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/leandroluk/golem/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBuildCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition *core.Condition
		wantSQL   string
		wantArgs  []any
	}{
		{
			name:      "nil",
			condition: nil,
			wantSQL:   "TRUE",
		},
		{
			name:      "nested gt",
			condition: core.Field("profile.age").Gt(18),
			wantSQL:   "document #> $1::text[] > $2::jsonb",
			wantArgs:  []any{[]string{"profile", "age"}, "18"},
		},
		{
			name:      "eq string",
			condition: core.Field("name").Eq("Ada"),
			wantSQL:   "document #> $1::text[] = $2::jsonb",
			wantArgs:  []any{[]string{"name"}, `"Ada"`},
		},
		{
			name:      "nil value",
			condition: core.Field("deletedAt").Nil(),
			wantSQL:   "(document #> $1::text[] IS NULL OR document #> $1::text[] = 'null'::jsonb)",
			wantArgs:  []any{[]string{"deletedAt"}},
		},
		{
			name:      "like",
			condition: core.Field("email").Like("%@gmail.com"),
			wantSQL:   "document #>> $1::text[] ILIKE $2",
			wantArgs:  []any{[]string{"email"}, "%@gmail.com"},
		},
		{
			name:      "in",
			condition: core.Field("status").In("a", "b"),
			wantSQL:   "document #> $1::text[] IN ($2::jsonb, $3::jsonb)",
			wantArgs:  []any{[]string{"status"}, `"a"`, `"b"`},
		},
		{
			name:      "empty in",
			condition: core.Field("status").In(),
			wantSQL:   "FALSE",
			wantArgs:  []any{[]string{"status"}},
		},
		{
			name:      "id equality",
			condition: core.ID("u1"),
			wantSQL:   "id = $1",
			wantArgs:  []any{"u1"},
		},
		{
			name:      "id in",
			condition: core.Field("_id").In("u1", "u2"),
			wantSQL:   "id = ANY($1::text[])",
			wantArgs:  []any{[]string{"u1", "u2"}},
		},
		{
			name:      "logical",
			condition: core.Field("a").Eq(1).Or(core.Field("b").Lte(2)).Not(),
			wantSQL:   "NOT ((document #> $1::text[] = $2::jsonb OR document #> $3::text[] <= $4::jsonb))",
			wantArgs:  []any{[]string{"a"}, "1", []string{"b"}, "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var argList []any
			assert.Equal(t, tt.wantSQL, buildCondition(tt.condition, &argList))
			assert.Equal(t, tt.wantArgs, argList)
		})
	}
}

func TestBuildOrder(t *testing.T) {
	var argList []any
	order := buildOrder([]core.Sort{
		{FieldName: "_id", Order: 1},
		{FieldName: "profile.age", Order: -1},
	}, &argList)
	assert.Equal(t, "id ASC, document #> $1::text[] DESC", order)
	assert.Equal(t, []any{[]string{"profile", "age"}}, argList)

	assert.Empty(t, buildOrder(nil, &argList))
}

func TestDecodeDocument(t *testing.T) {
	document, err := decodeDocument([]byte(`{"_id":"u1","n":3,"ratio":0.5,"tags":[1,"a"],"profile":{"age":36}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"_id":     "u1",
		"n":       int64(3),
		"ratio":   0.5,
		"tags":    []any{int64(1), "a"},
		"profile": map[string]any{"age": int64(36)},
	}, document)

	document, err = decodeDocument([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, document)

	_, err = decodeDocument([]byte(`{`))
	assert.Error(t, err)
}

func TestPrepareDocument(t *testing.T) {
	objectID := primitive.NewObjectID()
	id, raw, err := prepareDocument(map[string]any{"_id": objectID, "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, objectID.Hex(), id)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, map[string]any{"_id": objectID.Hex(), "name": "Ada"}, stored)

	document := map[string]any{"name": "Grace"}
	id, _, err = prepareDocument(document)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotContains(t, document, "_id")
}

func TestIDText(t *testing.T) {
	objectID := primitive.NewObjectID()
	assert.Equal(t, objectID.Hex(), idText(objectID))
	assert.Equal(t, "u1", idText("u1"))
	assert.Equal(t, "42", idText(42))
	parsed := uuid.New()
	assert.Equal(t, parsed.String(), idText(parsed))
}
