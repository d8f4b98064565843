package query

import (
	"encoding/json"
	"time"

	"github.com/starford/lifelog/internal/schema"
)

// Row is one typed entity view in a query result.
type Row interface {
	Entity() string
	Key() string
	// Fields renders the row as a plain field-to-value mapping for transports.
	Fields() map[string]any
}

// Location is a place referenced by events and commutes.
type Location struct {
	ID        string
	Name      string
	PlaceType string
	City      string
	Country   string
	Latitude  *float64
	Longitude *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l *Location) Entity() string { return schema.EntityLocation }
func (l *Location) Key() string    { return l.ID }

// Fields returns the row keyed by field name.
func (l *Location) Fields() map[string]any {
	m := map[string]any{
		"id":         l.ID,
		"name":       l.Name,
		"place_type": nullString(l.PlaceType),
		"city":       nullString(l.City),
		"country":    nullString(l.Country),
		"latitude":   nullFloat(l.Latitude),
		"longitude":  nullFloat(l.Longitude),
	}
	if !l.CreatedAt.IsZero() {
		m["created_at"] = l.CreatedAt
		m["updated_at"] = l.UpdatedAt
	}
	return m
}

// MarshalJSON encodes the row as its Fields map.
func (l *Location) MarshalJSON() ([]byte, error) { return json.Marshal(l.Fields()) }

// Person is someone who takes part in events.
type Person struct {
	ID             string
	Name           string
	KinshipToOwner string
	Relationship   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *Person) Entity() string { return schema.EntityPerson }
func (p *Person) Key() string    { return p.ID }

// Fields returns the row keyed by field name.
func (p *Person) Fields() map[string]any {
	m := map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"kinship_to_owner": nullString(p.KinshipToOwner),
		"relationship":     nullString(p.Relationship),
	}
	if !p.CreatedAt.IsZero() {
		m["created_at"] = p.CreatedAt
		m["updated_at"] = p.UpdatedAt
	}
	return m
}

// MarshalJSON encodes the row as its Fields map.
func (p *Person) MarshalJSON() ([]byte, error) { return json.Marshal(p.Fields()) }

// Participant links an event to a person. Person is nil when the link
// points at a person that no longer exists.
type Participant struct {
	PersonID        string
	InteractionMode string
	Role            string
	Person          *Person
}

// Fields returns the link with the person embedded.
func (p Participant) Fields() map[string]any {
	m := map[string]any{
		"person_id":        p.PersonID,
		"interaction_mode": p.InteractionMode,
		"role":             nullString(p.Role),
		"person":           nil,
	}
	if p.Person != nil {
		m["person"] = p.Person.Fields()
	}
	return m
}

// Specialization is the discriminated one-to-one extension of an event.
// Exactly one of *Workout, *Meal, *Commute, *Sleep or *Reflection.
type Specialization interface {
	Kind() string
	Fields() map[string]any
	isSpecialization()
}

// Workout is the exercise specialization of an event.
type Workout struct {
	Category        string
	Name            string
	Intensity       *int64
	DurationMinutes *float64
	CaloriesBurned  *float64
	DistanceKm      *float64
}

// Kind returns the hydration name of the specialization.
func (*Workout) Kind() string { return schema.PathWorkout }

func (*Workout) isSpecialization() {}

// Fields returns the specialization columns keyed by field name.
func (w *Workout) Fields() map[string]any {
	return map[string]any{
		"workout_category": nullString(w.Category),
		"workout_name":     nullString(w.Name),
		"intensity":        nullInt(w.Intensity),
		"duration_minutes": nullFloat(w.DurationMinutes),
		"calories_burned":  nullFloat(w.CaloriesBurned),
		"distance_km":      nullFloat(w.DistanceKm),
	}
}

// Meal is the food specialization of an event.
type Meal struct {
	MealType   string
	Calories   *float64
	ProteinG   *float64
	CarbsG     *float64
	FatG       *float64
	HomeCooked *bool
}

// Kind returns the hydration name of the specialization.
func (*Meal) Kind() string { return schema.PathMeal }

func (*Meal) isSpecialization() {}

// Fields returns the specialization columns keyed by field name.
func (m *Meal) Fields() map[string]any {
	out := map[string]any{
		"meal_type":   nullString(m.MealType),
		"calories":    nullFloat(m.Calories),
		"protein_g":   nullFloat(m.ProteinG),
		"carbs_g":     nullFloat(m.CarbsG),
		"fat_g":       nullFloat(m.FatG),
		"home_cooked": nil,
	}
	if m.HomeCooked != nil {
		out["home_cooked"] = *m.HomeCooked
	}
	return out
}

// Commute carries resolved From/To locations; either is nil when the
// reference is empty, dangling or soft-deleted.
type Commute struct {
	TransportMode   string
	FromLocationID  string
	ToLocationID    string
	DistanceKm      *float64
	DurationMinutes *float64
	From            *Location
	To              *Location
}

// Kind returns the hydration name of the specialization.
func (*Commute) Kind() string { return schema.PathCommute }

func (*Commute) isSpecialization() {}

// Fields returns the specialization columns keyed by field name.
func (c *Commute) Fields() map[string]any {
	m := map[string]any{
		"transport_mode":   nullString(c.TransportMode),
		"from_location_id": nullString(c.FromLocationID),
		"to_location_id":   nullString(c.ToLocationID),
		"distance_km":      nullFloat(c.DistanceKm),
		"duration_minutes": nullFloat(c.DurationMinutes),
		"from_location":    nil,
		"to_location":      nil,
	}
	if c.From != nil {
		m["from_location"] = c.From.Fields()
	}
	if c.To != nil {
		m["to_location"] = c.To.Fields()
	}
	return m
}

// Sleep is the rest specialization of an event.
type Sleep struct {
	Quality       *int64
	DurationHours *float64
	Interruptions *int64
}

// Kind returns the hydration name of the specialization.
func (*Sleep) Kind() string { return schema.PathSleep }

func (*Sleep) isSpecialization() {}

// Fields returns the specialization columns keyed by field name.
func (s *Sleep) Fields() map[string]any {
	return map[string]any{
		"quality":        nullInt(s.Quality),
		"duration_hours": nullFloat(s.DurationHours),
		"interruptions":  nullInt(s.Interruptions),
	}
}

// Reflection is the journaling specialization of an event.
type Reflection struct {
	Mood        string
	MoodScore   *int64
	EnergyLevel *int64
}

// Kind returns the hydration name of the specialization.
func (*Reflection) Kind() string { return schema.PathReflection }

func (*Reflection) isSpecialization() {}

// Fields returns the specialization columns keyed by field name.
func (r *Reflection) Fields() map[string]any {
	return map[string]any{
		"mood":         nullString(r.Mood),
		"mood_score":   nullInt(r.MoodScore),
		"energy_level": nullInt(r.EnergyLevel),
	}
}

// Event is the aggregate root row.
type Event struct {
	ID         string
	Title      string
	StartTime  time.Time
	EndTime    *time.Time
	Category   string
	EventType  string
	Notes      string
	LocationID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventView is an event plus whichever relationships were hydrated. The
// relationship fields are only meaningful when named in Hydrated.
type EventView struct {
	Event
	Tags           []string
	Location       *Location
	Participants   []Participant
	Specialization Specialization

	Hydrated map[string]bool
}

func (v *EventView) Entity() string { return schema.EntityEvent }
func (v *EventView) Key() string    { return v.ID }

// Fields returns the row keyed by field name.
func (v *EventView) Fields() map[string]any {
	m := map[string]any{
		"id":          v.ID,
		"title":       v.Title,
		"start_time":  v.StartTime,
		"end_time":    nil,
		"category":    nullString(v.Category),
		"event_type":  v.EventType,
		"notes":       nullString(v.Notes),
		"location_id": nullString(v.LocationID),
		"created_at":  v.CreatedAt,
		"updated_at":  v.UpdatedAt,
	}
	if v.EndTime != nil {
		m["end_time"] = *v.EndTime
	}
	if v.Hydrated[schema.RelTags] {
		tags := v.Tags
		if tags == nil {
			tags = []string{}
		}
		m["tags"] = tags
	}
	if v.Hydrated[schema.RelLocation] {
		m["location"] = nil
		if v.Location != nil {
			m["location"] = v.Location.Fields()
		}
	}
	if v.Hydrated[schema.RelParticipants] {
		ps := make([]map[string]any, len(v.Participants))
		for i, p := range v.Participants {
			ps[i] = p.Fields()
		}
		m["participants"] = ps
	}
	if v.hydratedSpecialization() {
		m["specialization"] = nil
		if v.Specialization != nil {
			s := v.Specialization.Fields()
			s["kind"] = v.Specialization.Kind()
			m["specialization"] = s
		}
	}
	return m
}

// MarshalJSON encodes the row as its Fields map.
func (v *EventView) MarshalJSON() ([]byte, error) { return json.Marshal(v.Fields()) }

func (v *EventView) hydratedSpecialization() bool {
	if v.Hydrated[schema.RelSpecialization] {
		return true
	}
	for _, k := range schema.Specializations {
		if v.Hydrated[k] {
			return true
		}
	}
	return false
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
