package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bucket units for date grouping.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
	BucketYear  = "year"
)

// BucketUnits lists the supported date bucket units.
var BucketUnits = []string{BucketDay, BucketWeek, BucketMonth, BucketYear}

// timeLayout is fixed width so that text timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Dialect isolates the SQL differences between supported drivers.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// TimeArg converts t into the driver's bind representation.
	TimeArg(t time.Time) any
	// Bucket returns an expression truncating a time column to unit, rendered
	// as sortable text.
	Bucket(column, unit string) (string, error)
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite{}, nil
	case DriverPostgres:
		return Postgres{}, nil
	}
	return nil, fmt.Errorf("store: unsupported driver %q", driver)
}

// SQLite stores timestamps as fixed-width RFC3339 UTC text.
type SQLite struct{}

func (SQLite) Name() string { return DriverSQLite }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) TimeArg(t time.Time) any { return FormatTime(t) }

func (SQLite) Bucket(column, unit string) (string, error) {
	var format string
	switch unit {
	case BucketDay:
		format = "%Y-%m-%d"
	case BucketWeek:
		// Monday of the week, matching to_char(date_trunc('week', ...)).
		return fmt.Sprintf("date(%s, 'weekday 0', '-6 days')", column), nil
	case BucketMonth:
		format = "%Y-%m"
	case BucketYear:
		format = "%Y"
	default:
		return "", fmt.Errorf("store: unknown bucket unit %q", unit)
	}
	return fmt.Sprintf("strftime('%s', %s)", format, column), nil
}

// Postgres uses TIMESTAMPTZ columns and numbered placeholders.
type Postgres struct{}

func (Postgres) Name() string { return DriverPostgres }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) TimeArg(t time.Time) any { return t.UTC() }

func (Postgres) Bucket(column, unit string) (string, error) {
	var format string
	switch unit {
	case BucketDay:
		format = "YYYY-MM-DD"
	case BucketWeek:
		return fmt.Sprintf("to_char(date_trunc('week', %s AT TIME ZONE 'UTC'), 'YYYY-MM-DD')", column), nil
	case BucketMonth:
		format = "YYYY-MM"
	case BucketYear:
		format = "YYYY"
	default:
		return "", fmt.Errorf("store: unknown bucket unit %q", unit)
	}
	return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', '%s')", column, format), nil
}

// FormatTime renders t in the text layout used by the sqlite schema.
func FormatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ParseTime converts a scanned column value into a UTC time. A nil value
// yields the zero time and ok=false.
func ParseTime(v any) (t time.Time, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x.UTC(), true, nil
	case []byte:
		return parseTimeText(string(x))
	case string:
		return parseTimeText(x)
	}
	return time.Time{}, false, fmt.Errorf("store: cannot read %T as time", v)
}

func parseTimeText(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("store: unparseable timestamp %q", s)
}
