// Package availability turns a meeting type's rule set into bookable slots.
//
// Generation is a pure data pipeline: for each civil date the weekly
// availability windows are converted to absolute intervals in the effective
// timezone, blocked spans (weekly blackouts, one-off blackouts and other
// bookings, widened by the configured buffers) are subtracted, and candidate
// slots are kept only when they fit entirely inside what remains.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/lesson-scheduler/internal/timezone"
)

// MaxRangeDays bounds a single generation request.
const MaxRangeDays = 400

var (
	// ErrInvalidDuration is returned when the slot duration is not positive.
	ErrInvalidDuration = errors.New("availability: duration must be positive")
	// ErrInvalidRules is returned for negative buffers or notice.
	ErrInvalidRules = errors.New("availability: buffers and notice must not be negative")
	// ErrInvalidRange is returned when the requested date range is malformed.
	ErrInvalidRange = errors.New("availability: invalid date range")
	// ErrInvalidWindow is returned when a weekly window or blackout has malformed bounds.
	ErrInvalidWindow = errors.New("availability: invalid window bounds")
	// ErrInvalidZone is returned when a configured or requested timezone is unknown.
	ErrInvalidZone = errors.New("availability: invalid timezone")
)

// Rules carries the meeting type fields that shape slot generation.
type Rules struct {
	MeetingTypeID       string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	MinNoticeMinutes    int
	// MaxHorizonDays counts days after today; zero offers today only.
	MaxHorizonDays   int
	DefaultTimezone  string
	NoOvernightSlots bool
}

// Window is a recurring weekly [StartMinute, EndMinute) interval.
type Window struct {
	DayOfWeek   int
	StartMinute int
	EndMinute   int
}

// Blackout is a one-off exclusion. All-day blackouts are date based: the UTC
// calendar dates spanned by Start and End are blocked as whole local days in
// whichever zone is effective for them.
type Blackout struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Booking is a non-cancelled booking occupying [Start, End).
type Booking struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Settings mirrors the owning admin's schedule settings.
type Settings struct {
	PrimaryTimezone   string
	TravelModeEnabled bool
	TravelTimezone    string
	TravelStart       timezone.Date
	TravelEnd         timezone.Date
	GlobalUnavailable bool
}

// Request is the complete input of a generation run.
type Request struct {
	Rules           Rules
	Availability    []Window
	WeeklyBlackouts []Window
	Blackouts       []Blackout
	Bookings        []Booking
	// Settings may be nil when the admin has never saved any.
	Settings  *Settings
	StartDate timezone.Date
	Days      int
	// DisplayTimezone localises labels; the effective zone is used when empty.
	DisplayTimezone  string
	ExcludeBookingID string
	Now              time.Time
}

// Slot is a bookable [Start, End) interval in UTC.
type Slot struct {
	Start time.Time
	End   time.Time
	// Local is Start expressed in the display timezone.
	Local time.Time
	Label string
	// Current marks a booking's existing slot in reschedule listings.
	Current bool
}

// Day groups the slots of one civil date.
type Day struct {
	Date     timezone.Date
	Timezone string
	Slots    []Slot
}

// EffectiveZone resolves the operating timezone for a civil date: the travel
// zone inside an enabled travel window, then the primary zone, then fallback.
func EffectiveZone(settings *Settings, fallback string, date timezone.Date) string {
	if settings == nil {
		return fallback
	}
	if settings.TravelModeEnabled && settings.TravelTimezone != "" &&
		!settings.TravelStart.IsZero() && !settings.TravelEnd.IsZero() &&
		!date.Before(settings.TravelStart) && !date.After(settings.TravelEnd) {
		return settings.TravelTimezone
	}
	if settings.PrimaryTimezone != "" {
		return settings.PrimaryTimezone
	}
	return fallback
}

// Generate produces the raw slot list for every date in the request range.
// An empty list for a date is a valid result; errors are only returned for
// malformed input.
func Generate(req Request) ([]Day, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var display *time.Location
	if req.DisplayTimezone != "" {
		loc, err := timezone.Load(req.DisplayTimezone)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidZone, req.DisplayTimezone)
		}
		display = loc
	}

	days := make([]Day, 0, req.Days)
	for i := 0; i < req.Days; i++ {
		day, err := req.generateDay(req.StartDate.AddDays(i), display)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func (r Request) generateDay(date timezone.Date, display *time.Location) (Day, error) {
	zone := EffectiveZone(r.Settings, r.Rules.DefaultTimezone, date)
	day := Day{Date: date, Timezone: zone}
	if r.Settings != nil && r.Settings.GlobalUnavailable {
		return day, nil
	}

	loc, err := timezone.Load(zone)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %s", ErrInvalidZone, zone)
	}
	if display == nil {
		display = loc
	}
	if date.After(timezone.DateOf(r.Now, loc).AddDays(r.Rules.MaxHorizonDays)) {
		return day, nil
	}

	weekday := timezone.WeekdayOf(date)
	duration := minutes(r.Rules.DurationMinutes)
	earliest := r.Now.Add(minutes(r.Rules.MinNoticeMinutes))
	blocked := r.blockedIntervals(date, loc)

	seen := make(map[int64]struct{})
	for _, w := range r.Availability {
		if w.DayOfWeek != weekday {
			continue
		}
		window := Interval{
			Start: timezone.LocalDateToUTC(date, w.StartMinute, loc),
			End:   timezone.LocalDateToUTC(date, w.EndMinute, loc),
		}
		free := Subtract([]Interval{window}, blocked)

		for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(duration) {
			candidate := Interval{Start: start, End: start.Add(duration)}
			if !CoveredBy(free, candidate) {
				continue
			}
			if start.Before(earliest) {
				continue
			}
			if r.Rules.NoOvernightSlots && timezone.DateOf(candidate.End, loc) != date {
				continue
			}
			if _, dup := seen[start.Unix()]; dup {
				continue
			}
			seen[start.Unix()] = struct{}{}
			day.Slots = append(day.Slots, newSlot(candidate, display))
		}
	}

	sort.Slice(day.Slots, func(i, j int) bool {
		return day.Slots[i].Start.Before(day.Slots[j].Start)
	})
	return day, nil
}

// blockedIntervals returns every span a slot on date may not touch. Each span
// is pre-widened so that a plain overlap test against the slot is equivalent
// to testing the slot's buffered busy interval against the original span.
func (r Request) blockedIntervals(date timezone.Date, loc *time.Location) []Interval {
	before := minutes(r.Rules.BufferBeforeMinutes)
	after := minutes(r.Rules.BufferAfterMinutes)

	blocked := make([]Interval, 0, len(r.WeeklyBlackouts)+len(r.Blackouts)+len(r.Bookings))

	// Buffers can reach into the neighbouring days.
	for offset := -1; offset <= 1; offset++ {
		d := date.AddDays(offset)
		weekday := timezone.WeekdayOf(d)
		for _, wb := range r.WeeklyBlackouts {
			if wb.DayOfWeek != weekday {
				continue
			}
			iv := Interval{
				Start: timezone.LocalDateToUTC(d, wb.StartMinute, loc),
				End:   timezone.LocalDateToUTC(d, wb.EndMinute, loc),
			}
			blocked = append(blocked, iv.Expand(after, before))
		}
	}

	for _, b := range r.Blackouts {
		iv := Interval{Start: b.Start, End: b.End}
		if b.AllDay {
			first := timezone.DateOf(b.Start, time.UTC)
			last := timezone.DateOf(b.End.Add(-time.Nanosecond), time.UTC)
			iv = Interval{
				Start: timezone.LocalDateToUTC(first, 0, loc),
				End:   timezone.LocalDateToUTC(last.AddDays(1), 0, loc),
			}
		}
		blocked = append(blocked, iv.Expand(after, before))
	}

	for _, b := range r.Bookings {
		if r.ExcludeBookingID != "" && b.ID == r.ExcludeBookingID {
			continue
		}
		iv := Interval{Start: b.Start, End: b.End}
		blocked = append(blocked, iv.Expand(before+after, before+after))
	}

	return blocked
}

func (r Request) validate() error {
	if r.Rules.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if r.Rules.BufferBeforeMinutes < 0 || r.Rules.BufferAfterMinutes < 0 || r.Rules.MinNoticeMinutes < 0 || r.Rules.MaxHorizonDays < 0 {
		return ErrInvalidRules
	}
	if r.StartDate.IsZero() || r.Days <= 0 || r.Days > MaxRangeDays {
		return fmt.Errorf("%w: start=%s days=%d", ErrInvalidRange, r.StartDate, r.Days)
	}
	if _, err := timezone.Load(r.Rules.DefaultTimezone); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidZone, r.Rules.DefaultTimezone)
	}
	for _, set := range [][]Window{r.Availability, r.WeeklyBlackouts} {
		for _, w := range set {
			if err := w.validate(); err != nil {
				return err
			}
		}
	}
	for _, b := range r.Blackouts {
		if !b.Start.Before(b.End) {
			return fmt.Errorf("%w: blackout ends before it starts", ErrInvalidWindow)
		}
	}
	return nil
}

func (w Window) validate() error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("%w: day of week %d", ErrInvalidWindow, w.DayOfWeek)
	}
	if w.StartMinute < 0 || w.EndMinute > timezone.MinutesPerDay || w.EndMinute <= w.StartMinute {
		return fmt.Errorf("%w: %d-%d", ErrInvalidWindow, w.StartMinute, w.EndMinute)
	}
	return nil
}

func newSlot(iv Interval, display *time.Location) Slot {
	local := iv.Start.In(display)
	return Slot{
		Start: iv.Start,
		End:   iv.End,
		Local: local,
		Label: local.Format("15:04") + "-" + iv.End.In(display).Format("15:04"),
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// Find returns the slot starting at start, if any day contains one.
func Find(days []Day, start time.Time) (Slot, bool) {
	for _, day := range days {
		for _, slot := range day.Slots {
			if slot.Start.Equal(start) {
				return slot, true
			}
		}
	}
	return Slot{}, false
}

// Count returns the total number of slots across days.
func Count(days []Day) int {
	total := 0
	for _, day := range days {
		total += len(day.Slots)
	}
	return total
}
