package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock returns a Now func that advances one minute per call.
func tickingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func TestTimestampsBehavior(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stamps := &Timestamps{Now: tickingClock(start)}
	driver := newRecordingDriver()
	users := newTestCollection(driver, WithBehavior("timestamps", stamps))

	doc := users.CreateDocument(map[string]any{"name": "Ada"})
	require.NoError(t, doc.Save(ctx))

	created, ok := stamps.CreatedAt(doc)
	require.True(t, ok)
	updated, ok := stamps.UpdatedAt(doc)
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), created)
	assert.Equal(t, start.Add(time.Minute), updated)
	assert.NotNil(t, driver.row(doc.ID())["createdAt"])

	require.NoError(t, doc.Set("name", "Grace"))
	require.NoError(t, doc.Save(ctx))

	require.Len(t, driver.updates, 1)
	assert.Equal(t, []string{"name", "updatedAt"}, driver.updates[0].Fields())
	updated, _ = stamps.UpdatedAt(doc)
	assert.Equal(t, start.Add(2*time.Minute), updated)
	created, _ = stamps.CreatedAt(doc)
	assert.Equal(t, start.Add(time.Minute), created)
}

func TestTimestampsKeepsExplicitCreatedAt(t *testing.T) {
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stamps := &Timestamps{Now: tickingClock(created.AddDate(1, 0, 0))}
	users := newTestCollection(newRecordingDriver(), WithBehavior("timestamps", stamps))

	doc := users.CreateDocument(map[string]any{"createdAt": created})
	require.NoError(t, doc.Save(context.Background()))

	got, ok := stamps.CreatedAt(doc)
	require.True(t, ok)
	assert.Equal(t, created, got)
}

func TestTimestampsUsesDeclaredFields(t *testing.T) {
	stamps := &Timestamps{Now: tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	users := newTestCollection(newRecordingDriver(),
		WithField("meta.created", CreatedAt()),
		WithField("meta.modified", UpdatedAt()),
		WithBehavior("timestamps", stamps),
	)

	doc := users.CreateDocument(nil)
	require.NoError(t, doc.Save(context.Background()))
	assert.True(t, doc.Has("meta.created"))
	assert.True(t, doc.Has("meta.modified"))
	assert.False(t, doc.Has("createdAt"))

	custom := &Timestamps{CreatedField: "born", UpdatedField: "touched"}
	other := newTestCollection(newRecordingDriver(), WithBehavior("timestamps", custom))
	doc = other.CreateDocument(nil)
	require.NoError(t, doc.Save(context.Background()))
	assert.True(t, doc.Has("born"))
	assert.True(t, doc.Has("touched"))
}

type softLimit struct {
	field string
	max   int
}

func (s softLimit) Validate(ctx context.Context, doc *Document) map[string][]string {
	if n, ok := doc.Get(s.field).(int); ok && n > s.max {
		return map[string][]string{s.field: {"too large"}}
	}
	return nil
}

func TestAttachBehavior(t *testing.T) {
	users := newTestCollection(newRecordingDriver())
	users.AttachBehavior("limit", softLimit{field: "n", max: 10})
	users.AttachBehavior("stamps", &Timestamps{})

	doc := users.CreateDocument(map[string]any{"n": 11})
	var validationErr *ValidationError
	require.ErrorAs(t, doc.Save(context.Background()), &validationErr)
	assert.Equal(t, []string{"too large"}, validationErr.Errors["n"])

	users.AttachBehavior("limit", softLimit{field: "n", max: 20})
	require.NoError(t, doc.Save(context.Background()))

	behavior, ok := users.Behavior("limit")
	require.True(t, ok)
	assert.Equal(t, 20, behavior.(softLimit).max)
	_, ok = users.Behavior("missing")
	assert.False(t, ok)

	stamps, ok := BehaviorAs[*Timestamps](doc)
	require.True(t, ok)
	_, ok = stamps.UpdatedAt(doc)
	assert.True(t, ok)

	_, ok = BehaviorAs[HookProvider](newTestCollection(newRecordingDriver()).CreateDocument(nil))
	assert.False(t, ok)
}

func TestBehaviorHooksRunBeforeCollectionHooks(t *testing.T) {
	var order []string
	hooks := HookSet{}
	hooks.On(HookBeforeSave, func(ctx context.Context, doc *Document) error {
		order = append(order, "behavior")
		return nil
	})
	users := newTestCollection(newRecordingDriver(),
		WithHook(HookBeforeSave, func(ctx context.Context, doc *Document) error {
			order = append(order, "collection")
			return nil
		}),
		WithBehavior("audit", hookBehavior{hooks: hooks}),
	)

	require.NoError(t, users.CreateDocument(nil).Save(context.Background()))
	assert.Equal(t, []string{"behavior", "collection"}, order)
}

type hookBehavior struct{ hooks HookSet }

func (h hookBehavior) Hooks() HookSet { return h.hooks }
