// Package timezone centralises the civil-date and wall-clock conversions used
// by slot generation. All offset arithmetic goes through the IANA database
// embedded via time/tzdata so results do not depend on the host zoneinfo.
package timezone

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

const (
	// MinutesPerDay is the exclusive upper bound of a wall-clock minute.
	MinutesPerDay = 24 * 60

	dateLayout = "2006-01-02"
)

var (
	// ErrUnknownZone is returned when a timezone name is not present in the IANA database.
	ErrUnknownZone = errors.New("timezone: unknown zone")
	// ErrEmptyZone is returned when a timezone name is blank.
	ErrEmptyZone = errors.New("timezone: zone name is empty")
	// ErrInvalidDate is returned when a civil date cannot be parsed.
	ErrInvalidDate = errors.New("timezone: invalid date")
)

// Date is a civil calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns a normalised civil date. Out of range days roll over the
// same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the civil date of the instant in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// AddDays returns the date n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	return d.midnightUTC().Before(other.midnightUTC())
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.midnightUTC().After(other.midnightUTC())
}

// DaysUntil returns the number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.midnightUTC().Sub(d.midnightUTC()) / (24 * time.Hour))
}

// Weekday returns 0 for Sunday through 6 for Saturday.
func (d Date) Weekday() int {
	return int(d.midnightUTC().Weekday())
}

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD value.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// LocalDateToUTC converts a wall-clock minute of a civil date in loc to a UTC
// instant. Minute 1440 resolves to the following local midnight. Wall-clock
// times skipped by a daylight saving transition resolve to the instant
// time.Date picks for them.
func LocalDateToUTC(d Date, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, minute, 0, 0, loc).UTC()
}

// UTCToLocalMinutes returns the civil date and minute-of-day of t in loc.
func UTCToLocalMinutes(t time.Time, loc *time.Location) (Date, int) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return DateOf(local, loc), local.Hour()*60 + local.Minute()
}

// WeekdayOf returns the weekday index of the civil date, 0=Sunday..6=Saturday.
func WeekdayOf(d Date) int {
	return d.Weekday()
}

var locations = newLocationCache()

// Load resolves an IANA zone name, caching successful lookups.
func Load(name string) (*time.Location, error) {
	return locations.load(name)
}

// Valid reports whether name resolves to a known zone.
func Valid(name string) bool {
	_, err := Load(name)
	return err == nil
}

type locationCache struct {
	mu      sync.RWMutex
	entries map[string]*time.Location
}

func newLocationCache() *locationCache {
	return &locationCache{entries: make(map[string]*time.Location)}
}

func (c *locationCache) load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyZone
	}

	c.mu.RLock()
	loc, ok := c.entries[name]
	c.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}

	c.mu.Lock()
	c.entries[name] = loc
	c.mu.Unlock()
	return loc, nil
}
