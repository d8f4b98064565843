package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
)

var testNow = time.Date(2024, 6, 12, 10, 30, 0, 0, time.UTC)

func eventEntity(t *testing.T) *schema.Entity {
	t.Helper()
	e, ok := schema.MustDefault().Entity(schema.EntityEvent)
	require.True(t, ok)
	return e
}

func normalize(t *testing.T, filters map[string]any) (Tree, error) {
	t.Helper()
	return NewNormalizer(func() time.Time { return testNow }).Normalize(eventEntity(t), filters)
}

func TestNormalize_CanonicalFormIsIdempotent(t *testing.T) {
	n := NewNormalizer(func() time.Time { return testNow })
	entity := eventEntity(t)

	inputs := []map[string]any{
		{"category": "work", "interaction_mode": "VIRTUAL_VIDEO"},
		{"date_range": "last_week", "tags": []any{"Gym", "gym", " morning "}},
		{"meal.calories": map[string]any{"gte": 300, "lt": 900.5}, "home_cooked": true},
		{"start_time": map[string]any{"and": []any{map[string]any{"gte": "2024-06-01"}, map[string]any{"gte": "2024-06-03T00:00:00Z"}}}},
		{"intensity": []any{3, 1, 3}, "location.city": map[string]any{"prefix": "Ber"}},
		{"end_time": nil, "participant.name": map[string]any{"contains": "al"}},
	}
	for _, in := range inputs {
		first, err := n.Normalize(entity, in)
		require.NoError(t, err)
		second, err := n.Canonicalize(entity, first)
		require.NoError(t, err)
		assert.Equal(t, first, second, "input %v", in)
	}
}

func TestNormalize_EquivalentInputsShareTree(t *testing.T) {
	a, err := normalize(t, map[string]any{"tags": []any{"morning", "gym"}, "category": "work"})
	require.NoError(t, err)
	b, err := normalize(t, map[string]any{"event.category": map[string]any{"eq": "work"}, "tags": []any{"GYM", "morning", "gym"}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize_GroupsAndPredicatesAreOrdered(t *testing.T) {
	tree, err := normalize(t, map[string]any{
		"workout.intensity": map[string]any{"gte": 5},
		"category":          "work",
		"participant.name":  "Alice",
		"title":             map[string]any{"contains": "sync"},
	})
	require.NoError(t, err)

	var paths []string
	for _, g := range tree.Groups {
		paths = append(paths, g.Path)
	}
	assert.Equal(t, []string{"event", "participant", "workout"}, paths)

	root, ok := tree.Group("event")
	require.True(t, ok)
	require.Len(t, root.Predicates, 2)
	assert.Equal(t, "category", root.Predicates[0].Field)
	assert.Equal(t, "title", root.Predicates[1].Field)

	w, _ := tree.Group("workout")
	assert.Equal(t, []Predicate{{Field: "intensity", Op: OpGte, Value: int64(5)}}, w.Predicates)
}

func TestNormalize_DateRange(t *testing.T) {
	tree, err := normalize(t, map[string]any{"date_range": "this_week"})
	require.NoError(t, err)
	root, _ := tree.Group("event")
	assert.Equal(t, []Predicate{
		{Field: "start_time", Op: OpGte, Value: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)},
		{Field: "start_time", Op: OpLt, Value: time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)},
	}, root.Predicates)

	tree, err = normalize(t, map[string]any{"date_range": map[string]any{"start": "2024-05-01", "end": "2024-05-31"}})
	require.NoError(t, err)
	root, _ = tree.Group("event")
	assert.Equal(t, []Predicate{
		{Field: "start_time", Op: OpGte, Value: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Field: "start_time", Op: OpLt, Value: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}, root.Predicates)

	// A day on an ordinary time operator widens to the whole day.
	tree, err = normalize(t, map[string]any{"start_time": map[string]any{"lte": "yesterday"}})
	require.NoError(t, err)
	root, _ = tree.Group("event")
	assert.Equal(t, []Predicate{
		{Field: "start_time", Op: OpLt, Value: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)},
	}, root.Predicates)

	// A single day on both bounds covers that day.
	tree, err = normalize(t, map[string]any{"date_range": map[string]any{"start": "2024-06-03", "end": "2024-06-03"}})
	require.NoError(t, err)
	root, _ = tree.Group("event")
	assert.Equal(t, []Predicate{
		{Field: "start_time", Op: OpGte, Value: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)},
		{Field: "start_time", Op: OpLt, Value: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)},
	}, root.Predicates)

	// An empty range object places no constraint.
	tree, err = normalize(t, map[string]any{"date_range": map[string]any{}})
	require.NoError(t, err)
	assert.True(t, tree.Empty())
}

func TestNormalize_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		filters map[string]any
		field   string
		message string
	}{
		{"unknown path", map[string]any{"foo.bar": 1}, "foo.bar", "unknown entity path"},
		{"unknown field", map[string]any{"workout.pace": 1}, "workout.pace", "has no field"},
		{"ambiguous", map[string]any{"name": "x"}, "name", "location.name, participant.name"},
		{"bad enum", map[string]any{"interaction_mode": "carrier_pigeon"}, "interaction_mode", "expected one of"},
		{"bad op for kind", map[string]any{"intensity": map[string]any{"contains": "3"}}, "intensity", "not supported"},
		{"unknown op", map[string]any{"title": map[string]any{"like": "x"}}, "title", "not supported"},
		{"bad int", map[string]any{"intensity": 2.5}, "intensity", "integer"},
		{"bad shorthand", map[string]any{"date_range": "last_n_days:x"}, "date_range", ""},
		{"reversed range object", map[string]any{"date_range": map[string]any{"start": "2024-06-10", "end": "2024-06-01"}}, "date_range", "start must be before end"},
		{"empty range object", map[string]any{"date_range": map[string]any{"start": "2024-06-10T12:00:00Z", "end": "2024-06-10T12:00:00Z"}}, "date_range", "start must be before end"},
		{"range object bound type", map[string]any{"date_range": map[string]any{"start": 5}}, "date_range.start", "date string"},
		{"instant as range", map[string]any{"date_range": "2024-06-01T10:00:00Z"}, "date_range", "single instant"},
		{"ne on a day", map[string]any{"start_time": map[string]any{"ne": "today"}}, "start_time", "not supported"},
		{"tags eq object", map[string]any{"tags": map[string]any{"gt": "a"}}, "tags", "not supported"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalize(t, tc.filters)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.True(t, strings.Contains(ve.Message, tc.message), "message %q", ve.Message)
		})
	}
}

func TestNormalize_UnqualifiedResolution(t *testing.T) {
	tree, err := normalize(t, map[string]any{"mood": "GOOD", "transport_mode": "bike"})
	require.NoError(t, err)
	r, ok := tree.Group("reflection")
	require.True(t, ok)
	assert.Equal(t, "good", r.Predicates[0].Value)
	_, ok = tree.Group("commute")
	assert.True(t, ok)
}
