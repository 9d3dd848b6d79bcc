package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/presentation"
	"github.com/example/lesson-scheduler/internal/timezone"
)

// DefaultSlotDays is used when a slot query does not specify a day count.
const DefaultSlotDays = 7

// AvailabilityService serves slot listings. Public listings are filtered by
// the presentation policy; booking validation never is.
type AvailabilityService struct {
	engine *slotEngine
	store  Repositories
	now    func() time.Time
	logger *slog.Logger
}

// NewAvailabilityService constructs the read path.
func NewAvailabilityService(deps Dependencies) *AvailabilityService {
	deps = deps.withDefaults()
	return &AvailabilityService{
		engine: &slotEngine{store: deps.Store, now: deps.Now},
		store:  deps.Store,
		now:    deps.Now,
		logger: deps.Logger,
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// ListSlots returns the filtered slots for a meeting type id or slug.
func (s *AvailabilityService) ListSlots(ctx context.Context, query SlotQuery) (SlotListing, error) {
	if vErr := validateStruct(query); vErr.HasErrors() {
		return SlotListing{}, vErr
	}
	start, _ := timezone.ParseDate(query.StartDate)
	days := query.Days
	if days == 0 {
		days = DefaultSlotDays
	}

	mt, err := s.engine.resolveMeetingType(ctx, query.MeetingTypeRef)
	if err != nil {
		return SlotListing{}, err
	}
	rs, err := s.engine.load(ctx, mt, start, start.AddDays(days-1))
	if err != nil {
		s.loggerWith(ctx, "ListSlots", "meeting_type_id", mt.ID).
			ErrorContext(ctx, "failed to load rules", "error", err, "error_kind", ErrorKind(err))
		return SlotListing{}, err
	}
	raw, err := s.engine.generate(ctx, rs, generateOptions{
		start:           start,
		days:            days,
		displayTimezone: query.DisplayTimezone,
	})
	if err != nil {
		return SlotListing{}, err
	}

	return SlotListing{
		MeetingType: toMeetingType(mt),
		Days:        presentation.Apply(policyOf(mt), raw),
	}, nil
}

// ListRescheduleSlotsByToken lists one date of slots for the booking behind
// a public token. The meeting type must allow public rescheduling.
func (s *AvailabilityService) ListRescheduleSlotsByToken(ctx context.Context, token, date, displayTimezone string) (SlotListing, error) {
	booking, err := s.store.GetBookingByToken(ctx, token)
	if err != nil {
		return SlotListing{}, mapRepoError("load booking", err)
	}
	mt, err := s.store.GetMeetingType(ctx, booking.MeetingTypeID)
	if err != nil {
		return SlotListing{}, mapRepoError("load meeting type", err)
	}
	if !mt.AllowPublicReschedule {
		return SlotListing{}, ErrUnauthorized
	}
	return s.rescheduleSlots(ctx, mt, booking, date, displayTimezone)
}

// ListRescheduleSlots lists one date of slots for an admin moving a booking.
func (s *AvailabilityService) ListRescheduleSlots(ctx context.Context, admin, bookingID, date, displayTimezone string) (SlotListing, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return SlotListing{}, mapRepoError("load booking", err)
	}
	mt, err := requireOwner(ctx, s.store, admin, booking.MeetingTypeID)
	if err != nil {
		return SlotListing{}, err
	}
	return s.rescheduleSlots(ctx, mt, booking, date, displayTimezone)
}

// rescheduleSlots excludes the booking from its own conflicts and keeps its
// current slot visible even when the presentation filter would hide it.
func (s *AvailabilityService) rescheduleSlots(ctx context.Context, mt persistence.MeetingType, booking persistence.Booking, date, displayTimezone string) (SlotListing, error) {
	if booking.Status != persistence.BookingStatusBooked {
		return SlotListing{}, &ConflictError{Message: "cancelled bookings cannot be rescheduled"}
	}
	vErr := &ValidationError{}
	day, err := timezone.ParseDate(date)
	if err != nil {
		vErr.add("date", "must be a date in YYYY-MM-DD format")
	}
	if displayTimezone != "" && !timezone.Valid(displayTimezone) {
		vErr.add("timezone", "must be a valid IANA timezone")
	}
	if vErr.HasErrors() {
		return SlotListing{}, vErr
	}

	rs, err := s.engine.load(ctx, mt, day, day)
	if err != nil {
		return SlotListing{}, err
	}
	raw, err := s.engine.generate(ctx, rs, generateOptions{
		start:            day,
		days:             1,
		displayTimezone:  displayTimezone,
		excludeBookingID: booking.ID,
	})
	if err != nil {
		return SlotListing{}, err
	}
	visible := presentation.Apply(policyOf(mt), raw)

	if len(raw) == 1 {
		loc, err := timezone.Load(raw[0].Timezone)
		if err == nil && timezone.DateOf(booking.Start, loc) == day {
			display := loc
			if displayTimezone != "" {
				display, _ = timezone.Load(displayTimezone)
			}
			visible = presentation.Ensure(visible, day, slotOf(booking, display))
		}
	}

	return SlotListing{MeetingType: toMeetingType(mt), Days: visible}, nil
}

// Diagnostics compares raw and visible availability per day and reports
// upcoming bookings that the current rules would no longer offer.
func (s *AvailabilityService) Diagnostics(ctx context.Context, admin, meetingTypeID, startDate string, days int) (Diagnostics, error) {
	mt, err := requireOwner(ctx, s.store, admin, meetingTypeID)
	if err != nil {
		return Diagnostics{}, err
	}
	start, err := timezone.ParseDate(startDate)
	if err != nil {
		return Diagnostics{}, fieldError("start_date", "must be a date in YYYY-MM-DD format")
	}
	if days == 0 {
		days = DefaultSlotDays
	}
	if days < 0 || days > availability.MaxRangeDays {
		return Diagnostics{}, fieldError("days", "is invalid")
	}

	rs, err := s.engine.load(ctx, mt, start, start.AddDays(days-1))
	if err != nil {
		return Diagnostics{}, err
	}
	raw, err := s.engine.generate(ctx, rs, generateOptions{start: start, days: days})
	if err != nil {
		return Diagnostics{}, err
	}

	policy := policyOf(mt)
	visible := presentation.Apply(policy, raw)
	out := Diagnostics{MeetingType: toMeetingType(mt), Days: make([]DiagnosticDay, 0, len(raw))}
	for i, day := range raw {
		diag := DiagnosticDay{
			Date:         day.Date,
			Timezone:     day.Timezone,
			RawCount:     len(day.Slots),
			VisibleCount: len(visible[i].Slots),
		}
		hidden := presentation.HiddenStarts(policy, day)
		for _, slot := range day.Slots {
			if _, ok := hidden[slot.Start.Unix()]; ok {
				diag.HiddenStarts = append(diag.HiddenStarts, slot.Start)
			}
		}
		out.Days = append(out.Days, diag)
	}

	now := s.now().UTC()
	earliest := now.Add(time.Duration(mt.MinNoticeMinutes) * time.Minute)
	for _, booking := range rs.bookings {
		if booking.Start.Before(earliest) || !bookingInRange(booking, raw) {
			continue
		}
		around, err := s.engine.generateAround(ctx, rs, booking.Start, booking.ID)
		if err != nil {
			return Diagnostics{}, err
		}
		if _, ok := availability.Find(around, booking.Start); !ok {
			out.OutOfAvailability = append(out.OutOfAvailability, toBooking(booking))
		}
	}
	return out, nil
}

// bookingInRange reports whether the booking starts on one of the listed
// dates in that date's effective timezone.
func bookingInRange(booking persistence.Booking, days []availability.Day) bool {
	for _, day := range days {
		loc, err := timezone.Load(day.Timezone)
		if err != nil {
			continue
		}
		if timezone.DateOf(booking.Start, loc) == day.Date {
			return true
		}
	}
	return false
}

func slotOf(booking persistence.Booking, display *time.Location) availability.Slot {
	local := booking.Start.In(display)
	return availability.Slot{
		Start:   booking.Start,
		End:     booking.End,
		Local:   local,
		Label:   local.Format("15:04") + "-" + booking.End.In(display).Format("15:04"),
		Current: true,
	}
}
