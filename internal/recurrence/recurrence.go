package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidPattern reports a cron expression that cannot be parsed.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")
	// ErrNotRepresentable reports a parseable expression with no future
	// occurrence inside the bounded search window.
	ErrNotRepresentable = errors.New("recurrence has no representable occurrence")
)

// searchHorizon bounds the forward scan in Next. Patterns like day-of-month 31
// in February parse fine but never fire; four years covers every leap-year
// combination.
const searchHorizon = 4 * 366 * 24 * time.Hour

type termKind int

const (
	termAny termKind = iota
	termValue
	termRange
	termStep
)

// term is one comma-separated element of a cron field.
type term struct {
	kind     termKind
	value    int
	lo, hi   int
	interval int
}

func (t term) matches(v int) bool {
	switch t.kind {
	case termAny:
		return true
	case termValue:
		return v == t.value
	case termRange:
		return v >= t.lo && v <= t.hi
	case termStep:
		return v >= t.lo && v <= t.hi && (v-t.lo)%t.interval == 0
	}
	return false
}

// field is the full variant set for one cron position; a list expression
// becomes multiple terms.
type field struct {
	terms      []term
	restricted bool
}

func (f field) matches(v int) bool {
	for _, t := range f.terms {
		if t.matches(v) {
			return true
		}
	}
	return false
}

// Schedule is a parsed five-field cron expression
// (minute, hour, day-of-month, month, day-of-week).
type Schedule struct {
	minute field
	hour   field
	dom    field
	month  field
	dow    field

	pattern string
}

// Parse validates and compiles a cron-style expression. Supported per-field
// syntax: "*", "n", "a-b", "*/n", "a-b/n", and comma lists of those.
func Parse(pattern string) (*Schedule, error) {
	fields := strings.Fields(strings.TrimSpace(pattern))
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidPattern, len(fields))
	}

	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("%w: minute: %v", ErrInvalidPattern, err)
	}
	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("%w: hour: %v", ErrInvalidPattern, err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-month: %v", ErrInvalidPattern, err)
	}
	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("%w: month: %v", ErrInvalidPattern, err)
	}
	dow, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("%w: day-of-week: %v", ErrInvalidPattern, err)
	}
	normalizeWeekday(&dow)

	return &Schedule{
		minute:  minute,
		hour:    hour,
		dom:     dom,
		month:   month,
		dow:     dow,
		pattern: pattern,
	}, nil
}

// Pattern returns the original expression the schedule was parsed from.
func (s *Schedule) Pattern() string {
	return s.pattern
}

// Next returns the earliest instant strictly after the reference that satisfies
// the schedule, at minute granularity in UTC. It returns ErrNotRepresentable
// when no occurrence exists within the search horizon.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	t := after.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := after.UTC().Add(searchHorizon)

	for t.Before(limit) {
		if !s.month.matches(int(t.Month())) {
			t = firstOfNextMonth(t)
			continue
		}
		if !s.dayMatches(t) {
			t = nextDay(t)
			continue
		}
		if !s.hour.matches(t.Hour()) {
			t = nextHour(t)
			continue
		}
		if !s.minute.matches(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, ErrNotRepresentable
}

// Matches reports whether the instant satisfies the schedule at minute
// granularity.
func (s *Schedule) Matches(t time.Time) bool {
	t = t.UTC()
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.month.matches(int(t.Month())) &&
		s.dayMatches(t)
}

// dayMatches applies the vixie-cron rule: when both day-of-month and
// day-of-week are restricted, a day satisfying either one matches.
func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom.matches(t.Day())
	dowOK := s.dow.matches(int(t.Weekday()))
	switch {
	case s.dom.restricted && s.dow.restricted:
		return domOK || dowOK
	case s.dom.restricted:
		return domOK
	case s.dow.restricted:
		return dowOK
	}
	return true
}

func parseField(spec string, lo, hi int) (field, error) {
	if spec == "" {
		return field{}, fmt.Errorf("empty field")
	}

	var f field
	for _, raw := range strings.Split(spec, ",") {
		t, err := parseTerm(raw, lo, hi)
		if err != nil {
			return field{}, err
		}
		if t.kind != termAny {
			f.restricted = true
		}
		f.terms = append(f.terms, t)
	}
	// A list containing "*" matches everything; restriction is moot then.
	for _, t := range f.terms {
		if t.kind == termAny {
			f.restricted = false
			break
		}
	}
	return f, nil
}

func parseTerm(raw string, lo, hi int) (term, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return term{}, fmt.Errorf("empty term")
	}

	base := raw
	interval := 0
	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		base = raw[:idx]
		parsed, err := strconv.Atoi(raw[idx+1:])
		if err != nil || parsed <= 0 {
			return term{}, fmt.Errorf("invalid step %q", raw)
		}
		interval = parsed
	}

	switch {
	case base == "*":
		if interval > 0 {
			return term{kind: termStep, lo: lo, hi: hi, interval: interval}, nil
		}
		return term{kind: termAny}, nil

	case strings.Contains(base, "-"):
		parts := strings.SplitN(base, "-", 2)
		from, err := parseBound(parts[0], lo, hi)
		if err != nil {
			return term{}, err
		}
		to, err := parseBound(parts[1], lo, hi)
		if err != nil {
			return term{}, err
		}
		if from > to {
			return term{}, fmt.Errorf("descending range %q", base)
		}
		if interval > 0 {
			return term{kind: termStep, lo: from, hi: to, interval: interval}, nil
		}
		return term{kind: termRange, lo: from, hi: to}, nil

	default:
		value, err := parseBound(base, lo, hi)
		if err != nil {
			return term{}, err
		}
		if interval > 0 {
			// "n/i" means the range n..hi stepped by i.
			return term{kind: termStep, lo: value, hi: hi, interval: interval}, nil
		}
		return term{kind: termValue, value: value}, nil
	}
}

func parseBound(raw string, lo, hi int) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	if value < lo || value > hi {
		return 0, fmt.Errorf("value %d out of range %d-%d", value, lo, hi)
	}
	return value, nil
}

// normalizeWeekday folds 7 (non-standard Sunday) onto 0 so weekday terms line
// up with time.Weekday.
func normalizeWeekday(f *field) {
	for i, t := range f.terms {
		switch t.kind {
		case termValue:
			if t.value == 7 {
				f.terms[i].value = 0
			}
		case termRange:
			if t.hi == 7 {
				// A range reaching 7 includes Sunday; add it explicitly.
				f.terms[i].hi = 6
				f.terms = append(f.terms, term{kind: termValue, value: 0})
			}
		case termStep:
			if t.hi == 7 {
				f.terms[i].hi = 6
				if (7-t.lo)%t.interval == 0 {
					f.terms = append(f.terms, term{kind: termValue, value: 0})
				}
			}
		}
	}
}

func firstOfNextMonth(t time.Time) time.Time {
	year, month := t.Year(), t.Month()
	if month == time.December {
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}

func nextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func nextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
