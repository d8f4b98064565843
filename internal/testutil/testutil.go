// Package testutil provides shared test helpers for setting up databases and
// life-event fixtures.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/starford/lifelog/internal/store"
)

// TestDB creates a temporary SQLite database with the schema applied. It is
// automatically cleaned up.
func TestDB(t testing.TB) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lifelog-test-*.db")
	require.NoError(t, err)
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: dbFile.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// Fixtures writes rows straight into the store. Every writer returns the new
// row's id and fails the test on error.
type Fixtures struct {
	t  testing.TB
	db *store.DB
	// Now stamps created_at/updated_at.
	Now time.Time
}

// NewFixtures returns a writer over db.
func NewFixtures(t testing.TB, db *store.DB) *Fixtures {
	return &Fixtures{t: t, db: db, Now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Exec runs a statement written with "?" placeholders.
func (f *Fixtures) Exec(query string, args ...any) {
	f.t.Helper()
	d := f.db.Dialect()
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = d.TimeArg(t)
		}
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(d.Placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	_, err := f.db.SQL().ExecContext(context.Background(), sb.String(), args...)
	require.NoError(f.t, err)
}

// Event describes an event fixture. Zero-valued optional fields are stored
// as NULL.
type Event struct {
	Title      string
	Start      time.Time
	End        time.Time
	Category   string
	EventType  string
	Notes      string
	LocationID string
}

// Event inserts an event.
func (f *Fixtures) Event(e Event) string {
	f.t.Helper()
	id := uuid.NewString()
	if e.EventType == "" {
		e.EventType = "generic"
	}
	if e.Title == "" {
		e.Title = "event " + id[:8]
	}
	f.Exec(`INSERT INTO events (id, title, start_time, end_time, category, event_type, notes, location_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Title, e.Start.UTC(), nullTime(f.db.Dialect(), e.End), null(e.Category), e.EventType, null(e.Notes), null(e.LocationID), f.Now, f.Now)
	return id
}

// Person inserts a person.
func (f *Fixtures) Person(name, kinship, relationship string) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO persons (id, name, kinship_to_owner, relationship, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, null(kinship), null(relationship), f.Now, f.Now)
	return id
}

// Location inserts a location.
func (f *Fixtures) Location(name, placeType, city string) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO locations (id, name, place_type, city, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, null(placeType), null(city), f.Now, f.Now)
	return id
}

// Participant links a person to an event.
func (f *Fixtures) Participant(eventID, personID, mode string) {
	f.t.Helper()
	f.Exec(`INSERT INTO event_participants (event_id, person_id, interaction_mode) VALUES (?, ?, ?)`, eventID, personID, mode)
}

// Tag attaches tags to an event.
func (f *Fixtures) Tag(eventID string, tags ...string) {
	f.t.Helper()
	for _, tag := range tags {
		f.Exec(`INSERT INTO event_tags (event_id, tag) VALUES (?, ?)`, eventID, tag)
	}
}

// Workout attaches a workout specialization.
func (f *Fixtures) Workout(eventID, category string, intensity int, calories float64) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO workouts (id, event_id, workout_category, intensity, calories_burned) VALUES (?, ?, ?, ?, ?)`,
		id, eventID, category, intensity, calories)
	return id
}

// Meal attaches a meal specialization.
func (f *Fixtures) Meal(eventID, mealType string, calories float64) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO meals (id, event_id, meal_type, calories) VALUES (?, ?, ?, ?)`, id, eventID, mealType, calories)
	return id
}

// Commute attaches a commute specialization.
func (f *Fixtures) Commute(eventID, mode, fromID, toID string) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO commutes (id, event_id, transport_mode, from_location_id, to_location_id) VALUES (?, ?, ?, ?, ?)`,
		id, eventID, mode, null(fromID), null(toID))
	return id
}

// Sleep attaches a sleep specialization.
func (f *Fixtures) Sleep(eventID string, quality int, hours float64) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO sleeps (id, event_id, quality, duration_hours) VALUES (?, ?, ?, ?)`, id, eventID, quality, hours)
	return id
}

// Reflection attaches a reflection specialization.
func (f *Fixtures) Reflection(eventID, mood string, score int) string {
	f.t.Helper()
	id := uuid.NewString()
	f.Exec(`INSERT INTO reflections (id, event_id, mood, mood_score) VALUES (?, ?, ?, ?)`, id, eventID, mood, score)
	return id
}

// SoftDelete marks the row with the given id in table as deleted.
func (f *Fixtures) SoftDelete(table, id string) {
	f.t.Helper()
	f.Exec(`UPDATE `+table+` SET is_deleted = `+trueLiteral(f.db.Dialect())+` WHERE id = ?`, id)
}

// SoftDeleteParticipant marks one participation link as deleted.
func (f *Fixtures) SoftDeleteParticipant(eventID, personID string) {
	f.t.Helper()
	f.Exec(`UPDATE event_participants SET is_deleted = `+trueLiteral(f.db.Dialect())+` WHERE event_id = ? AND person_id = ?`, eventID, personID)
}

func trueLiteral(d store.Dialect) string {
	if d.Name() == store.DriverPostgres {
		return "TRUE"
	}
	return "1"
}

func null(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(d store.Dialect, t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return d.TimeArg(t.UTC())
}
