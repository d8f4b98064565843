package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxRelativeDays bounds last_n_days:N.
const maxRelativeDays = 3660

// TimeRange is a half-open [Start, End) interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ShorthandTokens lists the accepted date shorthand forms.
var ShorthandTokens = []string{
	"today", "yesterday", "tomorrow",
	"this_week", "last_week",
	"this_month", "last_month",
	"this_year", "last_year",
	"last_n_days:N",
}

// ResolveShorthand expands a date shorthand token against now. Day, week,
// month and year boundaries are taken in now's location; weeks start on
// Monday. ok is false when token is not shorthand at all; err is set when it
// looks like shorthand but is malformed.
func ResolveShorthand(token string, now time.Time) (r TimeRange, ok bool, err error) {
	token = strings.ToLower(strings.TrimSpace(token))
	day := startOfDay(now)

	switch token {
	case "today":
		return TimeRange{day, day.AddDate(0, 0, 1)}, true, nil
	case "yesterday":
		return TimeRange{day.AddDate(0, 0, -1), day}, true, nil
	case "tomorrow":
		return TimeRange{day.AddDate(0, 0, 1), day.AddDate(0, 0, 2)}, true, nil
	case "this_week":
		w := startOfWeek(now)
		return TimeRange{w, w.AddDate(0, 0, 7)}, true, nil
	case "last_week":
		w := startOfWeek(now)
		return TimeRange{w.AddDate(0, 0, -7), w}, true, nil
	case "this_month":
		m := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return TimeRange{m, m.AddDate(0, 1, 0)}, true, nil
	case "last_month":
		m := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return TimeRange{m.AddDate(0, -1, 0), m}, true, nil
	case "this_year":
		y := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return TimeRange{y, y.AddDate(1, 0, 0)}, true, nil
	case "last_year":
		y := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return TimeRange{y.AddDate(-1, 0, 0), y}, true, nil
	}

	if rest, found := strings.CutPrefix(token, "last_n_days:"); found {
		n, convErr := strconv.Atoi(rest)
		if convErr != nil || n <= 0 || n > maxRelativeDays {
			return TimeRange{}, true, fmt.Errorf("last_n_days expects an integer between 1 and %d, got %q", maxRelativeDays, rest)
		}
		return TimeRange{now.AddDate(0, 0, -n), now}, true, nil
	}
	if strings.HasPrefix(token, "last_n_days") {
		return TimeRange{}, true, fmt.Errorf("malformed shorthand %q, expected last_n_days:N", token)
	}
	return TimeRange{}, false, nil
}

// parseTimeValue interprets s as a date range or an instant. Accepted forms:
// shorthand tokens, "start/end" intervals, ISO dates (one whole day) and
// RFC3339 timestamps (an instant, returned with isRange=false).
func parseTimeValue(s string, now time.Time) (r TimeRange, isRange bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeRange{}, false, fmt.Errorf("empty date value")
	}

	if rng, ok, err := ResolveShorthand(s, now); ok {
		if err != nil {
			return TimeRange{}, false, err
		}
		return rng, true, nil
	}

	if start, end, found := strings.Cut(s, "/"); found {
		a, err := parseBound(start, now, false)
		if err != nil {
			return TimeRange{}, false, err
		}
		b, err := parseBound(end, now, true)
		if err != nil {
			return TimeRange{}, false, err
		}
		if !a.Before(b) {
			return TimeRange{}, false, fmt.Errorf("interval start must be before end")
		}
		return TimeRange{a, b}, true, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return TimeRange{Start: t}, false, nil
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return TimeRange{d, d.AddDate(0, 0, 1)}, true, nil
	}
	return TimeRange{}, false, fmt.Errorf("unrecognized date value %q", s)
}

// parseBound reads one side of an interval. A bare date used as the upper
// bound is inclusive of that whole day.
func parseBound(s string, now time.Time, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		if upper {
			return d.AddDate(0, 0, 1), nil
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized interval bound %q", s)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}
