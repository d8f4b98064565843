package store

// Timestamps are TEXT in fixed-width RFC3339 UTC (see FormatTime) so that
// lexical and chronological order agree.
const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	place_type TEXT,
	city       TEXT,
	country    TEXT,
	latitude   REAL,
	longitude  REAL,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS persons (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	kinship_to_owner TEXT,
	relationship     TEXT,
	is_deleted       INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	start_time  TEXT NOT NULL,
	end_time    TEXT,
	category    TEXT,
	event_type  TEXT NOT NULL DEFAULT 'generic',
	notes       TEXT,
	location_id TEXT REFERENCES locations(id),
	is_deleted  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_tags (
	event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	tag      TEXT NOT NULL,
	UNIQUE(event_id, tag)
);

CREATE TABLE IF NOT EXISTS event_participants (
	event_id         TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	person_id        TEXT NOT NULL REFERENCES persons(id),
	interaction_mode TEXT NOT NULL DEFAULT 'in_person',
	role             TEXT,
	is_deleted       INTEGER NOT NULL DEFAULT 0,
	UNIQUE(event_id, person_id)
);

CREATE TABLE IF NOT EXISTS workouts (
	id               TEXT PRIMARY KEY,
	event_id         TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	workout_category TEXT,
	workout_name     TEXT,
	intensity        INTEGER,
	duration_minutes REAL,
	calories_burned  REAL,
	distance_km      REAL,
	is_deleted       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meals (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	meal_type   TEXT,
	calories    REAL,
	protein_g   REAL,
	carbs_g     REAL,
	fat_g       REAL,
	home_cooked INTEGER,
	is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS commutes (
	id               TEXT PRIMARY KEY,
	event_id         TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	transport_mode   TEXT,
	from_location_id TEXT REFERENCES locations(id),
	to_location_id   TEXT REFERENCES locations(id),
	distance_km      REAL,
	duration_minutes REAL,
	is_deleted       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sleeps (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	quality        INTEGER,
	duration_hours REAL,
	interruptions  INTEGER,
	is_deleted     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reflections (
	id           TEXT PRIMARY KEY,
	event_id     TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	mood         TEXT,
	mood_score   INTEGER,
	energy_level INTEGER,
	is_deleted   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);
CREATE INDEX IF NOT EXISTS idx_event_participants_person ON event_participants(person_id);
`

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	place_type TEXT,
	city       TEXT,
	country    TEXT,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS persons (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	kinship_to_owner TEXT,
	relationship     TEXT,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ,
	category    TEXT,
	event_type  TEXT NOT NULL DEFAULT 'generic',
	notes       TEXT,
	location_id TEXT REFERENCES locations(id),
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_tags (
	event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	tag      TEXT NOT NULL,
	UNIQUE(event_id, tag)
);

CREATE TABLE IF NOT EXISTS event_participants (
	event_id         TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	person_id        TEXT NOT NULL REFERENCES persons(id),
	interaction_mode TEXT NOT NULL DEFAULT 'in_person',
	role             TEXT,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE(event_id, person_id)
);

CREATE TABLE IF NOT EXISTS workouts (
	id               TEXT PRIMARY KEY,
	event_id         TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	workout_category TEXT,
	workout_name     TEXT,
	intensity        INTEGER,
	duration_minutes DOUBLE PRECISION,
	calories_burned  DOUBLE PRECISION,
	distance_km      DOUBLE PRECISION,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS meals (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	meal_type   TEXT,
	calories    DOUBLE PRECISION,
	protein_g   DOUBLE PRECISION,
	carbs_g     DOUBLE PRECISION,
	fat_g       DOUBLE PRECISION,
	home_cooked BOOLEAN,
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS commutes (
	id               TEXT PRIMARY KEY,
	event_id         TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	transport_mode   TEXT,
	from_location_id TEXT REFERENCES locations(id),
	to_location_id   TEXT REFERENCES locations(id),
	distance_km      DOUBLE PRECISION,
	duration_minutes DOUBLE PRECISION,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS sleeps (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	quality        INTEGER,
	duration_hours DOUBLE PRECISION,
	interruptions  INTEGER,
	is_deleted     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS reflections (
	id           TEXT PRIMARY KEY,
	event_id     TEXT NOT NULL UNIQUE REFERENCES events(id) ON DELETE CASCADE,
	mood         TEXT,
	mood_score   INTEGER,
	energy_level INTEGER,
	is_deleted   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);
CREATE INDEX IF NOT EXISTS idx_event_participants_person ON event_participants(person_id);
`
