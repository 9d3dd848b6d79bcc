package timezone

import (
	"errors"
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := Load(name)
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	return loc
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	got, err := ParseDate("2024-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != NewDate(2024, time.March, 10) {
		t.Fatalf("unexpected date %v", got)
	}
	if got.String() != "2024-03-10" {
		t.Fatalf("unexpected string %q", got.String())
	}

	if _, err := ParseDate("2024-02-30"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	start := NewDate(2024, time.February, 28)
	if got := start.AddDays(2); got != NewDate(2024, time.March, 1) {
		t.Fatalf("expected leap-year rollover, got %v", got)
	}
	if got := start.DaysUntil(NewDate(2024, time.March, 5)); got != 6 {
		t.Fatalf("expected 6 days, got %d", got)
	}
	if !start.Before(start.AddDays(1)) || !start.AddDays(1).After(start) {
		t.Fatalf("ordering helpers disagree")
	}
	if got := WeekdayOf(NewDate(2024, time.June, 3)); got != 1 {
		t.Fatalf("expected Monday (1), got %d", got)
	}
	if got := WeekdayOf(NewDate(2024, time.June, 2)); got != 0 {
		t.Fatalf("expected Sunday (0), got %d", got)
	}
}

func TestLocalDateToUTC(t *testing.T) {
	t.Parallel()

	tokyo := mustLoad(t, "Asia/Tokyo")
	got := LocalDateToUTC(NewDate(2024, time.June, 3), 9*60, tokyo)
	want := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	midnight := LocalDateToUTC(NewDate(2024, time.June, 3), MinutesPerDay, tokyo)
	if want := time.Date(2024, time.June, 3, 15, 0, 0, 0, time.UTC); !midnight.Equal(want) {
		t.Fatalf("expected minute 1440 to be next local midnight %v, got %v", want, midnight)
	}
}

func TestLocalDateToUTCAcrossDaylightSaving(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	before := LocalDateToUTC(NewDate(2024, time.March, 9), 9*60, ny)
	after := LocalDateToUTC(NewDate(2024, time.March, 10), 9*60, ny)

	if before.Hour() != 14 {
		t.Fatalf("expected 09:00 EST to be 14:00 UTC, got %v", before)
	}
	if after.Hour() != 13 {
		t.Fatalf("expected 09:00 EDT to be 13:00 UTC, got %v", after)
	}
	if got := after.Sub(before); got != 23*time.Hour {
		t.Fatalf("expected 23h between local 09:00s across spring forward, got %v", got)
	}
}

func TestUTCToLocalMinutes(t *testing.T) {
	t.Parallel()

	la := mustLoad(t, "America/Los_Angeles")
	date, minute := UTCToLocalMinutes(time.Date(2024, time.June, 4, 2, 30, 0, 0, time.UTC), la)
	if date != NewDate(2024, time.June, 3) {
		t.Fatalf("expected previous local date, got %v", date)
	}
	if minute != 19*60+30 {
		t.Fatalf("expected 19:30 local, got minute %d", minute)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	if _, err := Load(""); !errors.Is(err, ErrEmptyZone) {
		t.Fatalf("expected ErrEmptyZone, got %v", err)
	}
	if _, err := Load("Mars/Olympus_Mons"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("expected ErrUnknownZone, got %v", err)
	}
	first := mustLoad(t, "Europe/Berlin")
	second := mustLoad(t, "Europe/Berlin")
	if first != second {
		t.Fatalf("expected cached location to be reused")
	}
	if !Valid("UTC") {
		t.Fatalf("expected UTC to be valid")
	}
}

func TestDateTextRoundTrip(t *testing.T) {
	t.Parallel()

	var d Date
	if err := d.UnmarshalText([]byte("2025-01-31")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, _ := d.MarshalText()
	if string(text) != "2025-01-31" {
		t.Fatalf("unexpected text %q", text)
	}
}
