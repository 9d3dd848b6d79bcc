package presentation

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/timezone"
)

var monday = timezone.NewDate(2024, time.June, 3)

// scenarioDays returns the fifteen raw Monday slots of a 09:00-17:00 window
// with an existing 10:00 booking.
func scenarioDays(t *testing.T) []availability.Day {
	t.Helper()
	days, err := availability.Generate(availability.Request{
		Rules: availability.Rules{
			MeetingTypeID:   "mt-1",
			DurationMinutes: 30,
			MaxHorizonDays:  60,
			DefaultTimezone: "UTC",
		},
		Availability: []availability.Window{{DayOfWeek: 1, StartMinute: 9 * 60, EndMinute: 17 * 60}},
		Bookings: []availability.Booking{{
			ID:    "b-1",
			Start: time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.June, 3, 10, 30, 0, 0, time.UTC),
		}},
		StartDate: monday,
		Days:      1,
		Now:       time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := availability.Count(days); got != 15 {
		t.Fatalf("expected 15 raw slots, got %d", got)
	}
	return days
}

func labels(days []availability.Day) []string {
	out := make([]string, 0)
	for _, day := range days {
		for _, slot := range day.Slots {
			out = append(out, slot.Start.UTC().Format("15:04"))
		}
	}
	return out
}

func TestApplyAllPassesThrough(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	got := Apply(Policy{Mode: ModeAll}, raw)
	if availability.Count(got) != 15 {
		t.Fatalf("expected all slots, got %d", availability.Count(got))
	}
}

func TestApplyDailyLimitKeepsEarliest(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	got := labels(Apply(Policy{Mode: ModeDailyLimit, DailyLimit: 4}, raw))
	want := []string{"09:00", "09:30", "10:30", "11:00"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if availability.Count(raw) != 15 {
		t.Fatalf("Apply must not modify the raw list")
	}
}

func TestApplyDailyLimitZeroShowsNothing(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	got := Apply(Policy{Mode: ModeDailyLimit, DailyLimit: 0}, raw)
	if len(got) != 1 {
		t.Fatalf("expected the day to stay listed, got %d days", len(got))
	}
	if n := availability.Count(got); n != 0 {
		t.Fatalf("expected a zero limit to show no slots, got %d", n)
	}
	if availability.Count(raw) != 15 {
		t.Fatalf("Apply must not modify the raw list")
	}
}

func TestApplyBusyIsDeterministic(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	policy := Policy{MeetingTypeID: "mt-1", Mode: ModeBusy, BusyBufferPercent: 60, BusyPatternVersion: 1}

	first := labels(Apply(policy, raw))
	if len(first) != 6 {
		t.Fatalf("expected exactly 6 of 15 slots visible, got %d: %v", len(first), first)
	}
	for i := 0; i < 5; i++ {
		if again := labels(Apply(policy, raw)); fmt.Sprint(again) != fmt.Sprint(first) {
			t.Fatalf("busy selection changed between calls: %v vs %v", first, again)
		}
	}

	changed := false
	for version := int64(2); version <= 6; version++ {
		bumped := policy
		bumped.BusyPatternVersion = version
		got := labels(Apply(bumped, raw))
		if len(got) != 6 {
			t.Fatalf("version %d: expected 6 visible slots, got %d", version, len(got))
		}
		if fmt.Sprint(got) != fmt.Sprint(first) {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("bumping the pattern version never reshuffled the hidden set")
	}
}

func TestApplyBusyNeverHidesEverything(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	got := Apply(Policy{MeetingTypeID: "mt-1", Mode: ModeBusy, BusyBufferPercent: 100, BusyPatternVersion: 1}, raw)
	if availability.Count(got) != 1 {
		t.Fatalf("expected one slot to remain at 100%%, got %d", availability.Count(got))
	}

	single := []availability.Day{{Date: monday, Slots: raw[0].Slots[:1]}}
	if got := Apply(Policy{Mode: ModeBusy, BusyBufferPercent: 99}, single); availability.Count(got) != 1 {
		t.Fatalf("expected a lone slot to stay visible")
	}
}

func TestHiddenCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw, percent, want int
	}{
		{raw: 0, percent: 50, want: 0},
		{raw: 1, percent: 100, want: 0},
		{raw: 15, percent: 60, want: 9},
		{raw: 10, percent: 33, want: 3},
		{raw: 4, percent: 100, want: 3},
		{raw: 8, percent: 0, want: 0},
	}
	for _, tc := range cases {
		if got := HiddenCount(tc.raw, tc.percent); got != tc.want {
			t.Fatalf("HiddenCount(%d, %d) = %d, want %d", tc.raw, tc.percent, got, tc.want)
		}
	}
}

func TestEnsureRestoresCurrentSlot(t *testing.T) {
	t.Parallel()

	raw := scenarioDays(t)
	policy := Policy{MeetingTypeID: "mt-1", Mode: ModeDailyLimit, DailyLimit: 2}
	filtered := Apply(policy, raw)

	current := raw[0].Slots[10]
	got := Ensure(filtered, monday, current)
	if availability.Count(got) != 3 {
		t.Fatalf("expected current slot to be added, got %d slots", availability.Count(got))
	}
	last := got[0].Slots[2]
	if !last.Start.Equal(current.Start) || !last.Current {
		t.Fatalf("expected flagged current slot at the end, got %+v", last)
	}

	again := Ensure(got, monday, current)
	if availability.Count(again) != 3 {
		t.Fatalf("expected Ensure to be idempotent")
	}

	other := Ensure(filtered, monday.AddDays(1), current)
	if availability.Count(other) != 2 {
		t.Fatalf("expected no change for a different date")
	}
}
