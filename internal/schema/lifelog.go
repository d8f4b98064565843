package schema

// Entity, path and relation names used across the engine.
const (
	EntityEvent    = "event"
	EntityPerson   = "person"
	EntityLocation = "location"

	PathWorkout     = "workout"
	PathMeal        = "meal"
	PathCommute     = "commute"
	PathSleep       = "sleep"
	PathReflection  = "reflection"
	PathLocation    = "location"
	PathParticipant = "participant"

	RelParticipants   = "participants"
	RelLocation       = "location"
	RelTags           = "tags"
	RelSpecialization = "specialization"
)

// Specializations lists the one-to-one extension kinds of an event in a
// stable order.
var Specializations = []string{PathWorkout, PathMeal, PathCommute, PathSleep, PathReflection}

// Enumerated value sets.
var (
	EventTypes       = []string{"generic", "workout", "meal", "commute", "sleep", "reflection"}
	WorkoutTypes     = []string{"strength", "cardio", "flexibility", "sports", "mixed", "other"}
	MealTypes        = []string{"breakfast", "lunch", "dinner", "snack"}
	TransportModes   = []string{"walk", "bike", "car", "bus", "train", "subway", "flight", "rideshare", "other"}
	Moods            = []string{"great", "good", "neutral", "low", "bad"}
	InteractionModes = []string{"in_person", "virtual_video", "virtual_audio", "text", "other"}
)

func timestamps(alias string) []*Field {
	return []*Field{
		{Name: "created_at", Alias: alias, Column: "created_at", Kind: KindTime},
		{Name: "updated_at", Alias: alias, Column: "updated_at", Kind: KindTime},
	}
}

func specJoin(table, alias string) []Join {
	return []Join{{Table: table, Alias: alias, On: alias + ".event_id = e.id", SoftDelete: true}}
}

func personFields(alias string) []*Field {
	return []*Field{
		{Name: "name", Alias: alias, Column: "name", Kind: KindString},
		{Name: "kinship_to_owner", Alias: alias, Column: "kinship_to_owner", Kind: KindString},
		{Name: "relationship", Alias: alias, Column: "relationship", Kind: KindString},
	}
}

func locationFields(alias string) []*Field {
	return []*Field{
		{Name: "name", Alias: alias, Column: "name", Kind: KindString},
		{Name: "place_type", Alias: alias, Column: "place_type", Kind: KindString},
		{Name: "city", Alias: alias, Column: "city", Kind: KindString},
		{Name: "country", Alias: alias, Column: "country", Kind: KindString},
		{Name: "latitude", Alias: alias, Column: "latitude", Kind: KindFloat},
		{Name: "longitude", Alias: alias, Column: "longitude", Kind: KindFloat},
	}
}

// Default returns the life-event model.
func Default() (*Model, error) {
	b := NewBuilder()

	ev := b.Entity(&Entity{
		Name: EntityEvent, Table: "events", Alias: "e", Key: "id", SoftDelete: true,
		DefaultOrder: "start_time", DefaultDesc: true,
	})
	b.Path(ev, &Path{
		Name:        EntityEvent,
		Cardinality: Root,
		Fields: append([]*Field{
			{Name: "id", Alias: "e", Column: "id", Kind: KindString},
			{Name: "title", Alias: "e", Column: "title", Kind: KindString},
			{Name: "start_time", Alias: "e", Column: "start_time", Kind: KindTime},
			{Name: "end_time", Alias: "e", Column: "end_time", Kind: KindTime},
			{Name: "category", Alias: "e", Column: "category", Kind: KindString},
			{Name: "event_type", Alias: "e", Column: "event_type", Kind: KindEnum, Values: EventTypes},
			{Name: "notes", Alias: "e", Column: "notes", Kind: KindString},
			{Name: "location_id", Alias: "e", Column: "location_id", Kind: KindString},
			{Name: "tags", Kind: KindTags, Set: &SetSource{
				Table: "event_tags", Alias: "et", KeyColumn: "event_id", ValueColumn: "tag",
			}},
		}, timestamps("e")...),
	})
	b.Path(ev, &Path{
		Name: PathWorkout, Cardinality: ToOne, Joins: specJoin("workouts", "w"),
		Fields: []*Field{
			{Name: "workout_category", Alias: "w", Column: "workout_category", Kind: KindEnum, Values: WorkoutTypes},
			{Name: "workout_name", Alias: "w", Column: "workout_name", Kind: KindString},
			{Name: "intensity", Alias: "w", Column: "intensity", Kind: KindInt},
			{Name: "duration_minutes", Alias: "w", Column: "duration_minutes", Kind: KindFloat},
			{Name: "calories_burned", Alias: "w", Column: "calories_burned", Kind: KindFloat},
			{Name: "distance_km", Alias: "w", Column: "distance_km", Kind: KindFloat},
		},
	})
	b.Path(ev, &Path{
		Name: PathMeal, Cardinality: ToOne, Joins: specJoin("meals", "m"),
		Fields: []*Field{
			{Name: "meal_type", Alias: "m", Column: "meal_type", Kind: KindEnum, Values: MealTypes},
			{Name: "calories", Alias: "m", Column: "calories", Kind: KindFloat},
			{Name: "protein_g", Alias: "m", Column: "protein_g", Kind: KindFloat},
			{Name: "carbs_g", Alias: "m", Column: "carbs_g", Kind: KindFloat},
			{Name: "fat_g", Alias: "m", Column: "fat_g", Kind: KindFloat},
			{Name: "home_cooked", Alias: "m", Column: "home_cooked", Kind: KindBool},
		},
	})
	b.Path(ev, &Path{
		Name: PathCommute, Cardinality: ToOne, Joins: specJoin("commutes", "c"),
		Fields: []*Field{
			{Name: "transport_mode", Alias: "c", Column: "transport_mode", Kind: KindEnum, Values: TransportModes},
			{Name: "from_location_id", Alias: "c", Column: "from_location_id", Kind: KindString},
			{Name: "to_location_id", Alias: "c", Column: "to_location_id", Kind: KindString},
			{Name: "distance_km", Alias: "c", Column: "distance_km", Kind: KindFloat},
			{Name: "duration_minutes", Alias: "c", Column: "duration_minutes", Kind: KindFloat},
		},
	})
	b.Path(ev, &Path{
		Name: PathSleep, Cardinality: ToOne, Joins: specJoin("sleeps", "s"),
		Fields: []*Field{
			{Name: "quality", Alias: "s", Column: "quality", Kind: KindInt},
			{Name: "duration_hours", Alias: "s", Column: "duration_hours", Kind: KindFloat},
			{Name: "interruptions", Alias: "s", Column: "interruptions", Kind: KindInt},
		},
	})
	b.Path(ev, &Path{
		Name: PathReflection, Cardinality: ToOne, Joins: specJoin("reflections", "r"),
		Fields: []*Field{
			{Name: "mood", Alias: "r", Column: "mood", Kind: KindEnum, Values: Moods},
			{Name: "mood_score", Alias: "r", Column: "mood_score", Kind: KindInt},
			{Name: "energy_level", Alias: "r", Column: "energy_level", Kind: KindInt},
		},
	})
	b.Path(ev, &Path{
		Name: PathLocation, Cardinality: ToOne,
		Joins:  []Join{{Table: "locations", Alias: "l", On: "l.id = e.location_id", SoftDelete: true}},
		Fields: locationFields("l"),
	})
	b.Path(ev, &Path{
		Name: PathParticipant, Cardinality: ToMany,
		Joins: []Join{
			{Table: "event_participants", Alias: "ep", On: "ep.event_id = e.id", SoftDelete: true},
			{Table: "persons", Alias: "p", On: "p.id = ep.person_id", SoftDelete: true},
		},
		Fields: append([]*Field{
			{Name: "person_id", Alias: "ep", Column: "person_id", Kind: KindString},
			{Name: "interaction_mode", Alias: "ep", Column: "interaction_mode", Kind: KindEnum, Values: InteractionModes},
			{Name: "role", Alias: "ep", Column: "role", Kind: KindString},
		}, personFields("p")...),
	})
	b.Relation(ev, Relation{Name: RelParticipants, Description: "people linked to the event with their interaction mode"})
	b.Relation(ev, Relation{Name: RelLocation, Description: "the event's location"})
	b.Relation(ev, Relation{Name: RelTags, Description: "the event's tag set"})
	b.Relation(ev, Relation{Name: RelSpecialization, Description: "the event's specialization record, whichever kind it is"})
	for _, k := range Specializations {
		b.Relation(ev, Relation{Name: k, Description: "the event's " + k + " specialization only"})
	}

	person := b.Entity(&Entity{
		Name: EntityPerson, Table: "persons", Alias: "p", Key: "id", SoftDelete: true,
		DefaultOrder: "name",
	})
	b.Path(person, &Path{
		Name: EntityPerson, Cardinality: Root,
		Fields: append(append([]*Field{
			{Name: "id", Alias: "p", Column: "id", Kind: KindString},
		}, personFields("p")...), timestamps("p")...),
	})

	loc := b.Entity(&Entity{
		Name: EntityLocation, Table: "locations", Alias: "l", Key: "id", SoftDelete: true,
		DefaultOrder: "name",
	})
	b.Path(loc, &Path{
		Name: EntityLocation, Cardinality: Root,
		Fields: append(append([]*Field{
			{Name: "id", Alias: "l", Column: "id", Kind: KindString},
		}, locationFields("l")...), timestamps("l")...),
	})

	return b.Build()
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Model {
	m, err := Default()
	if err != nil {
		panic(err)
	}
	return m
}
