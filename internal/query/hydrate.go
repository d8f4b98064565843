package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
	"github.com/starford/lifelog/internal/store"
)

// lookupChunk bounds the number of keys bound into one IN (...) lookup.
const lookupChunk = 500

// scanRows executes a row plan and builds typed views in plan order.
func scanRows(ctx context.Context, q querier, plan *Plan) ([]Row, error) {
	rows, err := q.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, apperr.Execution("query", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(plan.Columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Execution("query scan", err)
		}
		rec := make(record, len(vals))
		for i, f := range plan.Columns {
			v, err := convertColumn(f, vals[i])
			if err != nil {
				return nil, apperr.Execution("query scan", err)
			}
			rec[f.Name] = v
		}
		out = append(out, rec.view(plan.Entity.Name))
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Execution("query", err)
	}
	return out, nil
}

// record is one converted root row keyed by field name.
type record map[string]any

func (r record) str(k string) string {
	s, _ := r[k].(string)
	return s
}

func (r record) time(k string) time.Time {
	t, _ := r[k].(time.Time)
	return t
}

func (r record) float(k string) *float64 {
	if f, ok := r[k].(float64); ok {
		return &f
	}
	return nil
}

func (r record) view(entity string) Row {
	switch entity {
	case schema.EntityPerson:
		return &Person{
			ID: r.str("id"), Name: r.str("name"),
			KinshipToOwner: r.str("kinship_to_owner"), Relationship: r.str("relationship"),
			CreatedAt: r.time("created_at"), UpdatedAt: r.time("updated_at"),
		}
	case schema.EntityLocation:
		return &Location{
			ID: r.str("id"), Name: r.str("name"), PlaceType: r.str("place_type"),
			City: r.str("city"), Country: r.str("country"),
			Latitude: r.float("latitude"), Longitude: r.float("longitude"),
			CreatedAt: r.time("created_at"), UpdatedAt: r.time("updated_at"),
		}
	}
	ev := &EventView{
		Event: Event{
			ID: r.str("id"), Title: r.str("title"), StartTime: r.time("start_time"),
			Category: r.str("category"), EventType: r.str("event_type"), Notes: r.str("notes"),
			LocationID: r.str("location_id"),
			CreatedAt:  r.time("created_at"), UpdatedAt: r.time("updated_at"),
		},
		Hydrated: map[string]bool{},
	}
	if t, ok := r["end_time"].(time.Time); ok {
		ev.EndTime = &t
	}
	return ev
}

// hydrator resolves relationships with batched follow-up lookups keyed by
// the distinct foreign keys of the first pass.
type hydrator struct {
	dialect        store.Dialect
	includeDeleted bool
}

// hydrateEvents attaches rels onto events. When parallel > 1 each
// relationship kind runs on its own pooled connection; results are merged
// after all lookups succeed so row order is never affected.
func (h *hydrator) hydrateEvents(ctx context.Context, q querier, events []*EventView, rels []string, parallel int) error {
	if len(events) == 0 || len(rels) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
		for _, r := range rels {
			ev.Hydrated[r] = true
		}
	}

	var (
		tags     map[string][]string
		parts    map[string][]Participant
		locs     map[string]*Location
		specs    map[string]Specialization
		specKind []string
	)
	tasks := make([]func(context.Context) error, 0, len(rels))
	for _, rel := range rels {
		switch rel {
		case schema.RelTags:
			tasks = append(tasks, func(ctx context.Context) (err error) {
				tags, err = h.loadTags(ctx, q, ids)
				return err
			})
		case schema.RelParticipants:
			tasks = append(tasks, func(ctx context.Context) (err error) {
				parts, err = h.loadParticipants(ctx, q, ids)
				return err
			})
		case schema.RelLocation:
			locIDs := distinct(events, func(ev *EventView) string { return ev.LocationID })
			tasks = append(tasks, func(ctx context.Context) (err error) {
				locs, err = h.loadLocations(ctx, q, locIDs)
				return err
			})
		default:
			specKind = append(specKind, rel)
		}
	}
	if len(specKind) > 0 {
		kinds := expandSpecializations(specKind)
		tasks = append(tasks, func(ctx context.Context) (err error) {
			specs, err = h.loadSpecializations(ctx, q, ids, kinds)
			return err
		})
	}

	if err := runTasks(ctx, tasks, parallel); err != nil {
		return err
	}

	for _, ev := range events {
		if tags != nil {
			ev.Tags = tags[ev.ID]
		}
		if parts != nil {
			ev.Participants = parts[ev.ID]
			if ev.Participants == nil {
				ev.Participants = []Participant{}
			}
		}
		if locs != nil && ev.LocationID != "" {
			ev.Location = locs[ev.LocationID]
		}
		if specs != nil {
			ev.Specialization = specs[ev.ID]
		}
	}
	return nil
}

func runTasks(ctx context.Context, tasks []func(context.Context) error, parallel int) error {
	if parallel <= 1 || len(tasks) == 1 {
		for _, t := range tasks {
			if err := t(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, t := range tasks {
		g.Go(func() error { return t(gCtx) })
	}
	return g.Wait()
}

func expandSpecializations(rels []string) []string {
	want := make(map[string]bool)
	for _, r := range rels {
		if r == schema.RelSpecialization {
			for _, k := range schema.Specializations {
				want[k] = true
			}
			continue
		}
		want[r] = true
	}
	var out []string
	for _, k := range schema.Specializations {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

func distinct(events []*EventView, key func(*EventView) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		k := key(ev)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (h *hydrator) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = h.dialect.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

func (h *hydrator) guard(alias string) string {
	if h.includeDeleted {
		return ""
	}
	return " AND NOT " + alias + ".is_deleted"
}

// lookup runs build(placeholders) once per chunk of keys and hands every
// row to scan.
func (h *hydrator) lookup(ctx context.Context, q querier, op string, keys []string, build func(ph string) string, scan func(*sql.Rows) error) error {
	for start := 0; start < len(keys); start += lookupChunk {
		end := min(start+lookupChunk, len(keys))
		chunk := keys[start:end]
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		rows, err := q.QueryContext(ctx, build(h.placeholders(len(chunk))), args...)
		if err != nil {
			return apperr.Execution(op, err)
		}
		for rows.Next() {
			if err := scan(rows); err != nil {
				rows.Close()
				return apperr.Execution(op, err)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return apperr.Execution(op, err)
		}
	}
	return nil
}

func (h *hydrator) loadTags(ctx context.Context, q querier, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	err := h.lookup(ctx, q, "hydrate tags", ids,
		func(ph string) string {
			return "SELECT et.event_id, et.tag FROM event_tags et WHERE et.event_id IN (" + ph + ") ORDER BY et.event_id, et.tag"
		},
		func(rows *sql.Rows) error {
			var id, tag string
			if err := rows.Scan(&id, &tag); err != nil {
				return err
			}
			out[id] = append(out[id], tag)
			return nil
		})
	return out, err
}

func (h *hydrator) loadParticipants(ctx context.Context, q querier, ids []string) (map[string][]Participant, error) {
	out := make(map[string][]Participant)
	personGuard := ""
	if !h.includeDeleted {
		personGuard = " AND (p.id IS NULL OR NOT p.is_deleted)"
	}
	err := h.lookup(ctx, q, "hydrate participants", ids,
		func(ph string) string {
			return "SELECT ep.event_id, ep.person_id, ep.interaction_mode, ep.role, p.id, p.name, p.kinship_to_owner, p.relationship" +
				" FROM event_participants ep LEFT JOIN persons p ON p.id = ep.person_id" +
				" WHERE ep.event_id IN (" + ph + ")" + h.guard("ep") + personGuard +
				" ORDER BY ep.event_id, p.name, ep.person_id"
		},
		func(rows *sql.Rows) error {
			var (
				eventID, personID, mode           string
				role, pid, name, kinship, relType sql.NullString
			)
			if err := rows.Scan(&eventID, &personID, &mode, &role, &pid, &name, &kinship, &relType); err != nil {
				return err
			}
			p := Participant{PersonID: personID, InteractionMode: mode, Role: role.String}
			if pid.Valid {
				p.Person = &Person{ID: pid.String, Name: name.String, KinshipToOwner: kinship.String, Relationship: relType.String}
			}
			out[eventID] = append(out[eventID], p)
			return nil
		})
	return out, err
}

func (h *hydrator) loadLocations(ctx context.Context, q querier, ids []string) (map[string]*Location, error) {
	out := make(map[string]*Location, len(ids))
	err := h.lookup(ctx, q, "hydrate locations", ids,
		func(ph string) string {
			return "SELECT l.id, l.name, l.place_type, l.city, l.country, l.latitude, l.longitude FROM locations l" +
				" WHERE l.id IN (" + ph + ")" + h.guard("l")
		},
		func(rows *sql.Rows) error {
			var (
				l                        Location
				placeType, city, country sql.NullString
				lat, lon                 sql.NullFloat64
			)
			if err := rows.Scan(&l.ID, &l.Name, &placeType, &city, &country, &lat, &lon); err != nil {
				return err
			}
			l.PlaceType, l.City, l.Country = placeType.String, city.String, country.String
			l.Latitude, l.Longitude = floatPtr(lat), floatPtr(lon)
			out[l.ID] = &l
			return nil
		})
	return out, err
}

// specLoader describes one specialization table lookup.
type specLoader struct {
	table   string
	columns string
	scan    func(*sql.Rows) (string, Specialization, error)
}

var specLoaders = map[string]specLoader{
	schema.PathWorkout: {
		table:   "workouts",
		columns: "event_id, workout_category, workout_name, intensity, duration_minutes, calories_burned, distance_km",
		scan: func(rows *sql.Rows) (string, Specialization, error) {
			var (
				id            string
				cat, name     sql.NullString
				intensity     sql.NullInt64
				dur, cal, dst sql.NullFloat64
			)
			if err := rows.Scan(&id, &cat, &name, &intensity, &dur, &cal, &dst); err != nil {
				return "", nil, err
			}
			return id, &Workout{
				Category: cat.String, Name: name.String, Intensity: intPtr(intensity),
				DurationMinutes: floatPtr(dur), CaloriesBurned: floatPtr(cal), DistanceKm: floatPtr(dst),
			}, nil
		},
	},
	schema.PathMeal: {
		table:   "meals",
		columns: "event_id, meal_type, calories, protein_g, carbs_g, fat_g, home_cooked",
		scan: func(rows *sql.Rows) (string, Specialization, error) {
			var (
				id                  string
				mealType            sql.NullString
				cal, pro, carb, fat sql.NullFloat64
				home                sql.NullBool
			)
			if err := rows.Scan(&id, &mealType, &cal, &pro, &carb, &fat, &home); err != nil {
				return "", nil, err
			}
			m := &Meal{MealType: mealType.String, Calories: floatPtr(cal), ProteinG: floatPtr(pro), CarbsG: floatPtr(carb), FatG: floatPtr(fat)}
			if home.Valid {
				m.HomeCooked = &home.Bool
			}
			return id, m, nil
		},
	},
	schema.PathCommute: {
		table:   "commutes",
		columns: "event_id, transport_mode, from_location_id, to_location_id, distance_km, duration_minutes",
		scan: func(rows *sql.Rows) (string, Specialization, error) {
			var (
				id             string
				mode, from, to sql.NullString
				dst, dur       sql.NullFloat64
			)
			if err := rows.Scan(&id, &mode, &from, &to, &dst, &dur); err != nil {
				return "", nil, err
			}
			return id, &Commute{
				TransportMode: mode.String, FromLocationID: from.String, ToLocationID: to.String,
				DistanceKm: floatPtr(dst), DurationMinutes: floatPtr(dur),
			}, nil
		},
	},
	schema.PathSleep: {
		table:   "sleeps",
		columns: "event_id, quality, duration_hours, interruptions",
		scan: func(rows *sql.Rows) (string, Specialization, error) {
			var (
				id                   string
				quality, interrupted sql.NullInt64
				hours                sql.NullFloat64
			)
			if err := rows.Scan(&id, &quality, &hours, &interrupted); err != nil {
				return "", nil, err
			}
			return id, &Sleep{Quality: intPtr(quality), DurationHours: floatPtr(hours), Interruptions: intPtr(interrupted)}, nil
		},
	},
	schema.PathReflection: {
		table:   "reflections",
		columns: "event_id, mood, mood_score, energy_level",
		scan: func(rows *sql.Rows) (string, Specialization, error) {
			var (
				id            string
				mood          sql.NullString
				score, energy sql.NullInt64
			)
			if err := rows.Scan(&id, &mood, &score, &energy); err != nil {
				return "", nil, err
			}
			return id, &Reflection{Mood: mood.String, MoodScore: intPtr(score), EnergyLevel: intPtr(energy)}, nil
		},
	},
}

// loadSpecializations looks up each requested kind once. The variant of an
// event is whichever table matched; kinds are tried in schema order, so a
// malformed event with two records keeps the first.
func (h *hydrator) loadSpecializations(ctx context.Context, q querier, ids, kinds []string) (map[string]Specialization, error) {
	out := make(map[string]Specialization)
	for _, kind := range kinds {
		loader, ok := specLoaders[kind]
		if !ok {
			return nil, fmt.Errorf("query: no loader for specialization %q", kind)
		}
		err := h.lookup(ctx, q, "hydrate "+kind, ids,
			func(ph string) string {
				return "SELECT " + loader.columns + " FROM " + loader.table + " x WHERE x.event_id IN (" + ph + ")" + h.guard("x")
			},
			func(rows *sql.Rows) error {
				id, spec, err := loader.scan(rows)
				if err != nil {
					return err
				}
				if _, taken := out[id]; !taken {
					out[id] = spec
				}
				return nil
			})
		if err != nil {
			return nil, err
		}
	}

	// Commute endpoints resolve with one location lookup for all commutes.
	var locIDs []string
	seen := make(map[string]bool)
	for _, s := range out {
		c, ok := s.(*Commute)
		if !ok {
			continue
		}
		for _, id := range []string{c.FromLocationID, c.ToLocationID} {
			if id != "" && !seen[id] {
				seen[id] = true
				locIDs = append(locIDs, id)
			}
		}
	}
	if len(locIDs) == 0 {
		return out, nil
	}
	sort.Strings(locIDs)
	locs, err := h.loadLocations(ctx, q, locIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range out {
		if c, ok := s.(*Commute); ok {
			c.From = locs[c.FromLocationID]
			c.To = locs[c.ToLocationID]
		}
	}
	return out, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
