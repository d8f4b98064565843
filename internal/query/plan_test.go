package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lifelog/internal/store"
)

func compileRows(t *testing.T, d store.Dialect, filters map[string]any, spec RowSpec) *Plan {
	t.Helper()
	tree, err := normalize(t, filters)
	require.NoError(t, err)
	if spec.Limit == 0 {
		spec.Limit = DefaultLimit
	}
	plan, err := NewCompiler(d).CompileRows(eventEntity(t), tree, spec)
	require.NoError(t, err)
	return plan
}

func TestCompileRows_NoFiltersNoJoins(t *testing.T) {
	plan := compileRows(t, store.SQLite{}, nil, RowSpec{})
	assert.Empty(t, plan.Joins)
	assert.Empty(t, plan.SemiJoins)
	assert.Equal(t, "events", plan.Base)
	assert.Contains(t, plan.SQL, "WHERE NOT e.is_deleted")
	assert.Contains(t, plan.SQL, "ORDER BY e.start_time DESC, e.id ASC LIMIT ?")
	assert.Equal(t, []any{DefaultLimit}, plan.Args)
}

func TestCompileRows_JoinsOnlyReferencedPaths(t *testing.T) {
	plan := compileRows(t, store.SQLite{}, map[string]any{
		"location.city": "Berlin",
		"category":      "work",
	}, RowSpec{})

	require.Len(t, plan.Joins, 1)
	j := plan.Joins[0]
	assert.Equal(t, "location", j.Path)
	assert.Equal(t, InnerJoin, j.Type)
	assert.Equal(t, "l.id = e.location_id AND NOT l.is_deleted", j.On)
	assert.Empty(t, plan.SemiJoins)
	assert.NotContains(t, plan.SQL, "workouts")
	assert.NotContains(t, plan.SQL, "event_participants")
}

func TestCompileRows_ToManyFiltersUseSemiJoins(t *testing.T) {
	plan := compileRows(t, store.SQLite{}, map[string]any{
		"interaction_mode": "virtual_video",
		"participant.name": "Alice",
	}, RowSpec{})

	assert.Empty(t, plan.Joins)
	assert.Equal(t, []string{"participant"}, plan.SemiJoins)
	// Both predicates share one EXISTS so they bind to the same participant.
	assert.Equal(t, 1, strings.Count(plan.SQL, "EXISTS ("))
	assert.Contains(t, plan.SQL, "EXISTS (SELECT 1 FROM event_participants ep JOIN persons p ON p.id = ep.person_id AND NOT p.is_deleted WHERE ep.event_id = e.id AND NOT ep.is_deleted")
}

func TestCompileRows_OrderJoinIsLeft(t *testing.T) {
	entity := eventEntity(t)
	order, err := ParseOrder(entity, []string{"-workout.intensity"})
	require.NoError(t, err)

	plan := compileRows(t, store.SQLite{}, nil, RowSpec{OrderBy: order})
	require.Len(t, plan.Joins, 1)
	assert.Equal(t, LeftJoin, plan.Joins[0].Type)
	assert.Contains(t, plan.SQL, "ORDER BY w.intensity DESC, e.id ASC")

	// A filter on the same path upgrades it to an inner join.
	plan = compileRows(t, store.SQLite{}, map[string]any{"workout.intensity": map[string]any{"gte": 5}}, RowSpec{OrderBy: order})
	require.Len(t, plan.Joins, 1)
	assert.Equal(t, InnerJoin, plan.Joins[0].Type)
}

func TestCompileRows_IncludeDeletedDropsGuards(t *testing.T) {
	plan := compileRows(t, store.SQLite{}, map[string]any{
		"location.city":    "Berlin",
		"participant.name": "Alice",
	}, RowSpec{IncludeDeleted: true})
	assert.NotContains(t, plan.SQL, "is_deleted")
}

func TestCompileRows_PostgresPlaceholders(t *testing.T) {
	plan := compileRows(t, store.Postgres{}, map[string]any{
		"category":   []any{"work", "personal"},
		"date_range": "today",
	}, RowSpec{Offset: 10})

	for i := 1; i <= len(plan.Args); i++ {
		assert.Contains(t, plan.SQL, "$"+string(rune('0'+i)))
	}
	assert.Len(t, plan.Args, 6)
	assert.True(t, strings.HasSuffix(plan.SQL, "LIMIT $5 OFFSET $6"), plan.SQL)
}

func TestCompileRows_ValueEscaping(t *testing.T) {
	plan := compileRows(t, store.SQLite{}, map[string]any{"title": map[string]any{"contains": "100%_Done"}}, RowSpec{})
	assert.Contains(t, plan.SQL, `LOWER(e.title) LIKE ? ESCAPE '\'`)
	assert.Equal(t, `%100\%\_done%`, plan.Args[0])
	assert.NotContains(t, plan.SQL, "Done")
}

func TestCompileAggregate_GroupAndMetricJoins(t *testing.T) {
	entity := eventEntity(t)
	tree, err := normalize(t, map[string]any{"date_range": "this_month"})
	require.NoError(t, err)
	groups, err := ParseGroupBy(entity, []string{"location.city", "start_time:week"})
	require.NoError(t, err)
	metrics, err := ParseMetrics(entity, []string{"count", "avg:workout.intensity"})
	require.NoError(t, err)

	plan, err := NewCompiler(store.SQLite{}).CompileAggregate(entity, tree, AggregateSpec{GroupBy: groups, Metrics: metrics})
	require.NoError(t, err)

	require.Len(t, plan.Joins, 2)
	for _, j := range plan.Joins {
		assert.Equal(t, LeftJoin, j.Type, j.Path)
	}
	assert.Contains(t, plan.SQL, "date(e.start_time, 'weekday 0', '-6 days') AS g1")
	assert.Contains(t, plan.SQL, "AVG(w.intensity) AS m1")
	assert.Contains(t, plan.SQL, "GROUP BY g0, g1 ORDER BY g0 ASC, g1 ASC")
}
