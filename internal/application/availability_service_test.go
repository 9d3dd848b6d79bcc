package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/lesson-scheduler/internal/presentation"
	"github.com/example/lesson-scheduler/internal/testfixtures"
)

func TestAvailabilityService_ListSlotsMondayScenario(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	mt := env.seed(t)
	testfixtures.SeedBooking(t, env.store, testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute))

	listing, err := svc.ListSlots(context.Background(), SlotQuery{
		MeetingTypeRef: mt.Slug,
		StartDate:      "2024-06-03",
		Days:           1,
	})
	if err != nil {
		t.Fatalf("ListSlots() error = %v", err)
	}
	if listing.MeetingType.ID != mt.ID {
		t.Fatalf("expected slug to resolve to %s, got %s", mt.ID, listing.MeetingType.ID)
	}
	if len(listing.Days) != 1 {
		t.Fatalf("expected one day, got %d", len(listing.Days))
	}
	slots := listing.Days[0].Slots
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	for _, slot := range slots {
		if slot.Start.Equal(monday(10, 0)) {
			t.Fatalf("10:00 is booked and must not be listed")
		}
	}
	if slots[0].Label != "09:00-09:30" {
		t.Fatalf("unexpected first label %q", slots[0].Label)
	}
}

func TestAvailabilityService_ListSlotsDefaultsAndDisplayZone(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	mt := env.seed(t)

	listing, err := svc.ListSlots(context.Background(), SlotQuery{
		MeetingTypeRef:  mt.ID,
		StartDate:       "2024-06-03",
		DisplayTimezone: "Asia/Tokyo",
	})
	if err != nil {
		t.Fatalf("ListSlots() error = %v", err)
	}
	if len(listing.Days) != DefaultSlotDays {
		t.Fatalf("expected %d days by default, got %d", DefaultSlotDays, len(listing.Days))
	}
	// 09:00 UTC is 18:00 in Tokyo.
	if got := listing.Days[0].Slots[0].Label; got != "18:00-18:30" {
		t.Fatalf("expected label in display timezone, got %q", got)
	}
	// Saturday and Sunday have no availability.
	if n := len(listing.Days[5].Slots) + len(listing.Days[6].Slots); n != 0 {
		t.Fatalf("expected empty weekend, got %d slots", n)
	}
}

func TestAvailabilityService_PresentationModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		option  testfixtures.MeetingTypeOption
		visible int
	}{
		{name: "all", option: testfixtures.WithHorizon(60), visible: 16},
		{name: "daily limit", option: testfixtures.WithDailyLimit(4), visible: 4},
		{name: "busy", option: testfixtures.WithBusyMode(60), visible: 16 - presentation.HiddenCount(16, 60)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			svc := NewAvailabilityService(env.deps)
			mt := env.seed(t, tc.option)

			query := SlotQuery{MeetingTypeRef: mt.ID, StartDate: "2024-06-03", Days: 1}
			listing, err := svc.ListSlots(context.Background(), query)
			if err != nil {
				t.Fatalf("ListSlots() error = %v", err)
			}
			if got := len(listing.Days[0].Slots); got != tc.visible {
				t.Fatalf("expected %d visible slots, got %d", tc.visible, got)
			}

			again, err := svc.ListSlots(context.Background(), query)
			if err != nil {
				t.Fatalf("second ListSlots() error = %v", err)
			}
			for i := range again.Days[0].Slots {
				if !again.Days[0].Slots[i].Start.Equal(listing.Days[0].Slots[i].Start) {
					t.Fatalf("listing must be stable between reads")
				}
			}
		})
	}
}

func TestAvailabilityService_ListSlotsErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	mt := env.seed(t)
	ctx := context.Background()

	if _, err := svc.ListSlots(ctx, SlotQuery{MeetingTypeRef: "unknown", StartDate: "2024-06-03"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err := svc.ListSlots(ctx, SlotQuery{MeetingTypeRef: mt.ID, StartDate: "06/03/2024"})
	requireFieldError(t, err, "start_date")

	_, err = svc.ListSlots(ctx, SlotQuery{MeetingTypeRef: mt.ID, StartDate: "2024-06-03", Days: 401})
	requireFieldError(t, err, "days")

	_, err = svc.ListSlots(ctx, SlotQuery{MeetingTypeRef: mt.ID, StartDate: "2024-06-03", DisplayTimezone: "Nowhere/City"})
	requireFieldError(t, err, "timezone")
}

func TestAvailabilityService_ListRescheduleSlotsKeepsCurrentSlot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	mt := env.seed(t, testfixtures.WithDailyLimit(2), testfixtures.WithPublicReschedule())
	booking := testfixtures.NewBooking(mt.ID, monday(15, 0), 30*time.Minute, testfixtures.WithBookingToken("tok-reschedule"))
	testfixtures.SeedBooking(t, env.store, booking)
	ctx := context.Background()

	listing, err := svc.ListRescheduleSlotsByToken(ctx, "tok-reschedule", "2024-06-03", "")
	if err != nil {
		t.Fatalf("ListRescheduleSlotsByToken() error = %v", err)
	}
	slots := listing.Days[0].Slots
	if len(slots) != 3 {
		t.Fatalf("expected the daily limit plus the current slot, got %d", len(slots))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(booking.Start) || !last.Current {
		t.Fatalf("expected current slot at the end, got %+v", last)
	}

	admin, err := svc.ListRescheduleSlots(ctx, testfixtures.DefaultAdmin, booking.ID, "2024-06-04", "")
	if err != nil {
		t.Fatalf("ListRescheduleSlots() error = %v", err)
	}
	for _, slot := range admin.Days[0].Slots {
		if slot.Current {
			t.Fatalf("current slot must only appear on its own date")
		}
	}

	if _, err := svc.ListRescheduleSlots(ctx, "intruder", booking.ID, "2024-06-03", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = svc.ListRescheduleSlots(ctx, testfixtures.DefaultAdmin, booking.ID, "tomorrow", "")
	requireFieldError(t, err, "date")
}

func TestAvailabilityService_ListRescheduleSlotsRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	ctx := context.Background()

	private := env.seed(t)
	testfixtures.SeedBooking(t, env.store, testfixtures.NewBooking(private.ID, monday(9, 0), 30*time.Minute, testfixtures.WithBookingToken("tok-private")))
	if _, err := svc.ListRescheduleSlotsByToken(ctx, "tok-private", "2024-06-03", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without public reschedule, got %v", err)
	}

	public := env.seed(t, testfixtures.WithPublicReschedule())
	testfixtures.SeedBooking(t, env.store, testfixtures.NewBooking(public.ID, monday(9, 0), 30*time.Minute,
		testfixtures.WithBookingToken("tok-cancelled"), testfixtures.Cancelled()))
	if _, err := svc.ListRescheduleSlotsByToken(ctx, "tok-cancelled", "2024-06-03", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for cancelled booking, got %v", err)
	}

	if _, err := svc.ListRescheduleSlotsByToken(ctx, "tok-missing", "2024-06-03", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailabilityService_Diagnostics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := NewAvailabilityService(env.deps)
	mt := env.seed(t, testfixtures.WithBusyMode(50))
	inside := testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute)
	outside := testfixtures.NewBooking(mt.ID, monday(18, 0), 30*time.Minute)
	testfixtures.SeedBooking(t, env.store, inside)
	testfixtures.SeedBooking(t, env.store, outside)

	diag, err := svc.Diagnostics(context.Background(), testfixtures.DefaultAdmin, mt.ID, "2024-06-03", 1)
	if err != nil {
		t.Fatalf("Diagnostics() error = %v", err)
	}
	if len(diag.Days) != 1 {
		t.Fatalf("expected one day, got %d", len(diag.Days))
	}
	day := diag.Days[0]
	if day.RawCount != 15 {
		t.Fatalf("expected 15 raw slots, got %d", day.RawCount)
	}
	hidden := presentation.HiddenCount(15, 50)
	if day.VisibleCount != 15-hidden || len(day.HiddenStarts) != hidden {
		t.Fatalf("expected %d hidden slots, got visible=%d hidden=%d", hidden, day.VisibleCount, len(day.HiddenStarts))
	}
	if len(diag.OutOfAvailability) != 1 || diag.OutOfAvailability[0].ID != outside.ID {
		t.Fatalf("expected only the 18:00 booking to be reported, got %+v", diag.OutOfAvailability)
	}

	if _, err := svc.Diagnostics(context.Background(), "intruder", mt.ID, "2024-06-03", 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
