package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/testfixtures"
)

func TestBookingCoordinator_CreateBooking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)
	ctx := context.Background()

	input := CreateBookingInput{
		MeetingTypeRef: mt.Slug,
		Start:          monday(10, 0),
		Visitor:        VisitorInput{Name: " Hanako Yamada ", Email: "hanako@example.com", Note: "first lesson"},
	}
	booking, err := coordinator.CreateBooking(ctx, input)
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if !booking.End.Equal(monday(10, 30)) || booking.Status != BookingStatusBooked {
		t.Fatalf("unexpected booking %+v", booking)
	}
	if booking.Visitor.Name != "Hanako Yamada" || booking.Timezone != "UTC" {
		t.Fatalf("expected trimmed name and default timezone, got %+v", booking)
	}
	if booking.PublicToken != "token-1" {
		t.Fatalf("expected generated token, got %q", booking.PublicToken)
	}

	stored, err := env.store.GetBookingByToken(ctx, booking.PublicToken)
	if err != nil || stored.ID != booking.ID {
		t.Fatalf("expected booking to be persisted, got %+v, %v", stored, err)
	}

	events := env.notifier.recorded()
	if len(events) != 1 || events[0].Type != BookingCreated || events[0].BookingID != booking.ID {
		t.Fatalf("expected one created event, got %+v", events)
	}
	if events[0].AdminIdentity != testfixtures.DefaultAdmin || events[0].VisitorEmail != "hanako@example.com" {
		t.Fatalf("unexpected event payload %+v", events[0])
	}

	if _, err := coordinator.CreateBooking(ctx, input); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected second booking of the same slot to conflict, got %v", err)
	}
}

func TestBookingCoordinator_CreateBookingRejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t, testfixtures.WithMinNotice(60*24*3))
	ctx := context.Background()

	tests := []struct {
		name  string
		start time.Time
	}{
		{name: "before opening", start: monday(8, 30)},
		{name: "misaligned start", start: monday(9, 15)},
		{name: "weekend", start: time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)},
		{name: "inside minimum notice", start: monday(10, 0)},
		{name: "in the past", start: time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coordinator.CreateBooking(ctx, CreateBookingInput{
				MeetingTypeRef: mt.ID,
				Start:          tc.start,
				Visitor:        visitor(),
			})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}

	_, err := coordinator.CreateBooking(ctx, CreateBookingInput{Visitor: VisitorInput{Name: "x", Email: "not-an-email"}})
	for _, field := range []string{"meeting_type_ref", "start", "visitor.email"} {
		requireFieldError(t, err, field)
	}

	if _, err := coordinator.CreateBooking(ctx, CreateBookingInput{
		MeetingTypeRef: "missing", Start: monday(10, 0), Visitor: visitor(),
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if n := len(env.notifier.recorded()); n != 0 {
		t.Fatalf("rejected bookings must not emit events, got %d", n)
	}
}

func TestBookingCoordinator_CreateBookingIgnoresPresentation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t, testfixtures.WithDailyLimit(1))

	// Only 09:00 is listed publicly, but 16:30 is a real slot.
	booking, err := coordinator.CreateBooking(context.Background(), CreateBookingInput{
		MeetingTypeRef: mt.ID,
		Start:          monday(16, 30),
		Timezone:       "Asia/Tokyo",
		Visitor:        visitor(),
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if booking.Timezone != "Asia/Tokyo" {
		t.Fatalf("expected visitor timezone to be kept, got %q", booking.Timezone)
	}
}

func TestBookingCoordinator_ConcurrentCreateAllowsOneWinner(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.CreateBooking(context.Background(), CreateBookingInput{
				MeetingTypeRef: mt.ID,
				Start:          monday(11, 0),
				Visitor:        visitor(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) != 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", attempts-1, succeeded, conflicts)
	}
	count, err := env.store.CountFutureBookings(context.Background(), mt.ID, testfixtures.ReferenceTime())
	if err != nil || count != 1 {
		t.Fatalf("expected exactly one stored booking, got %d, %v", count, err)
	}
	if n := len(env.notifier.recorded()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}

func TestBookingCoordinator_NotifierFailureDoesNotUndoBooking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.notifier.err = errors.New("broker unavailable")
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)

	booking, err := coordinator.CreateBooking(context.Background(), CreateBookingInput{
		MeetingTypeRef: mt.ID, Start: monday(12, 0), Visitor: visitor(),
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if _, err := env.store.GetBooking(context.Background(), booking.ID); err != nil {
		t.Fatalf("expected booking to persist, got %v", err)
	}
}

func TestBookingCoordinator_RescheduleBooking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)
	ctx := context.Background()

	booking := testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute)
	blocker := testfixtures.NewBooking(mt.ID, monday(14, 0), 30*time.Minute)
	testfixtures.SeedBooking(t, env.store, booking)
	testfixtures.SeedBooking(t, env.store, blocker)

	// 11:00 UTC is 20:00 on the same date in Tokyo.
	moved, err := coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "Asia/Tokyo", Start: monday(11, 0),
	})
	if err != nil {
		t.Fatalf("RescheduleBooking() error = %v", err)
	}
	if !moved.Start.Equal(monday(11, 0)) || !moved.End.Equal(monday(11, 30)) || moved.Timezone != "Asia/Tokyo" {
		t.Fatalf("unexpected rescheduled booking %+v", moved)
	}

	events := env.notifier.recorded()
	if len(events) != 1 || events[0].Type != BookingRescheduled {
		t.Fatalf("expected one rescheduled event, got %+v", events)
	}
	if events[0].PreviousStart == nil || !events[0].PreviousStart.Equal(monday(10, 0)) {
		t.Fatalf("expected previous start in event, got %v", events[0].PreviousStart)
	}

	// The old slot is free again.
	if _, err := coordinator.CreateBooking(ctx, CreateBookingInput{
		MeetingTypeRef: mt.ID, Start: monday(10, 0), Visitor: visitor(),
	}); err != nil {
		t.Fatalf("expected vacated slot to be bookable, got %v", err)
	}

	if _, err := coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "UTC", Start: monday(14, 0),
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict with another booking, got %v", err)
	}

	_, err = coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-04", Timezone: "UTC", Start: monday(15, 0),
	})
	requireFieldError(t, err, "start")

	if _, err := coordinator.RescheduleBooking(ctx, "intruder", booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "UTC", Start: monday(15, 0),
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBookingCoordinator_RescheduleToSameSlot(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)
	booking := testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute)
	testfixtures.SeedBooking(t, env.store, booking)
	ctx := context.Background()

	same, err := coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "UTC", Start: monday(10, 0),
	})
	if err != nil || !same.Start.Equal(booking.Start) {
		t.Fatalf("RescheduleBooking(same) = %+v, %v", same, err)
	}

	// 10:00 UTC is 06:00 on the same date in New York.
	retimed, err := coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "America/New_York", Start: monday(10, 0),
	})
	if err != nil {
		t.Fatalf("RescheduleBooking(timezone only) error = %v", err)
	}
	if retimed.Timezone != "America/New_York" {
		t.Fatalf("expected timezone update, got %q", retimed.Timezone)
	}
	stored, err := env.store.GetBooking(ctx, booking.ID)
	if err != nil || stored.BookingTimezone != "America/New_York" || !stored.Start.Equal(booking.Start) {
		t.Fatalf("unexpected stored booking %+v, %v", stored, err)
	}
	if n := len(env.notifier.recorded()); n != 0 {
		t.Fatalf("same-slot reschedules must not emit events, got %d", n)
	}
}

func TestBookingCoordinator_RescheduleByToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	ctx := context.Background()

	private := env.seed(t)
	testfixtures.SeedBooking(t, env.store, testfixtures.NewBooking(private.ID, monday(10, 0), 30*time.Minute,
		testfixtures.WithBookingToken("tok-private")))
	if _, err := coordinator.RescheduleByToken(ctx, "tok-private", RescheduleInput{
		Date: "2024-06-03", Timezone: "UTC", Start: monday(11, 0),
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	public := env.seed(t, testfixtures.WithPublicReschedule())
	testfixtures.SeedBooking(t, env.store, testfixtures.NewBooking(public.ID, monday(10, 0), 30*time.Minute,
		testfixtures.WithBookingToken("tok-public")))
	moved, err := coordinator.RescheduleByToken(ctx, "tok-public", RescheduleInput{
		Date: "2024-06-04", Timezone: "UTC", Start: time.Date(2024, 6, 4, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RescheduleByToken() error = %v", err)
	}
	if moved.Start.Day() != 4 {
		t.Fatalf("expected booking on Tuesday, got %v", moved.Start)
	}
}

func TestBookingCoordinator_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)
	booking := testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute, testfixtures.WithBookingToken("tok-cancel"))
	testfixtures.SeedBooking(t, env.store, booking)
	ctx := context.Background()

	first, err := coordinator.CancelByToken(ctx, "tok-cancel")
	if err != nil {
		t.Fatalf("CancelByToken() error = %v", err)
	}
	if first.Status != BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", first.Status)
	}

	second, err := coordinator.CancelBooking(ctx, testfixtures.DefaultAdmin, booking.ID)
	if err != nil {
		t.Fatalf("CancelBooking() error = %v", err)
	}
	if second.Status != BookingStatusCancelled {
		t.Fatalf("expected cancelled status on repeat, got %q", second.Status)
	}

	events := env.notifier.recorded()
	if len(events) != 1 || events[0].Type != BookingCancelled {
		t.Fatalf("expected exactly one cancelled event, got %+v", events)
	}

	if _, err := coordinator.RescheduleBooking(ctx, testfixtures.DefaultAdmin, booking.ID, RescheduleInput{
		Date: "2024-06-03", Timezone: "UTC", Start: monday(11, 0),
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected cancelled booking to refuse reschedule, got %v", err)
	}

	// The cancelled slot can be booked again.
	if _, err := coordinator.CreateBooking(ctx, CreateBookingInput{
		MeetingTypeRef: mt.ID, Start: monday(10, 0), Visitor: visitor(),
	}); err != nil {
		t.Fatalf("expected cancelled slot to be bookable, got %v", err)
	}

	if _, err := coordinator.CancelBooking(ctx, "intruder", booking.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := coordinator.CancelByToken(ctx, "tok-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingCoordinator_GetBooking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	coordinator := NewBookingCoordinator(env.deps)
	mt := env.seed(t)
	booking := testfixtures.NewBooking(mt.ID, monday(10, 0), 30*time.Minute, testfixtures.WithBookingToken("tok-get"))
	testfixtures.SeedBooking(t, env.store, booking)
	ctx := context.Background()

	got, err := coordinator.GetBookingByToken(ctx, " tok-get ")
	if err != nil || got.ID != booking.ID {
		t.Fatalf("GetBookingByToken() = %+v, %v", got, err)
	}
	if _, err := coordinator.GetBooking(ctx, testfixtures.DefaultAdmin, booking.ID); err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if _, err := coordinator.GetBooking(ctx, "intruder", booking.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := coordinator.GetBooking(ctx, testfixtures.DefaultAdmin, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

var _ BookingNotifier = (*recordingNotifier)(nil)
var _ Repositories = persistence.Store(nil)
