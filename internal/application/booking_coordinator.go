package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/timezone"
)

var errSlotTaken = &ConflictError{Message: "the selected time is no longer available"}

// BookingCoordinator owns every booking write. Each write re-runs the slot
// generator against the raw, unfiltered slots and relies on the store's
// unique constraint to settle concurrent requests for the same start.
type BookingCoordinator struct {
	engine         *slotEngine
	store          Repositories
	notifier       BookingNotifier
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewBookingCoordinator constructs the write path for bookings.
func NewBookingCoordinator(deps Dependencies) *BookingCoordinator {
	deps = deps.withDefaults()
	return &BookingCoordinator{
		engine:         &slotEngine{store: deps.Store, now: deps.Now},
		store:          deps.Store,
		notifier:       deps.Notifier,
		idGenerator:    deps.IDGenerator,
		tokenGenerator: deps.TokenGenerator,
		now:            deps.Now,
		logger:         deps.Logger,
	}
}

func (c *BookingCoordinator) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "BookingCoordinator", operation, attrs...)
}

// CreateBooking books the slot starting at input.Start.
func (c *BookingCoordinator) CreateBooking(ctx context.Context, input CreateBookingInput) (booking Booking, err error) {
	if c == nil || c.store == nil {
		return Booking{}, fmt.Errorf("BookingCoordinator is not configured")
	}
	ctx, span := tracer.Start(ctx, "BookingCoordinator.CreateBooking", trace.WithAttributes(
		attribute.String("meeting_type.ref", input.MeetingTypeRef),
	))
	defer span.End()

	logger := c.loggerWith(ctx, "CreateBooking", "meeting_type", input.MeetingTypeRef, "start", input.Start)
	defer func() {
		if err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "booking rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	input.Visitor.Name = strings.TrimSpace(input.Visitor.Name)
	input.Visitor.Email = strings.TrimSpace(input.Visitor.Email)
	if vErr := validateStruct(input); vErr.HasErrors() {
		return Booking{}, vErr
	}

	mt, err := c.engine.resolveMeetingType(ctx, input.MeetingTypeRef)
	if err != nil {
		return Booking{}, err
	}
	start := input.Start.UTC()
	slot, err := c.availableSlot(ctx, mt, start, "")
	if err != nil {
		return Booking{}, err
	}

	bookingTimezone := input.Timezone
	if bookingTimezone == "" {
		bookingTimezone = mt.TimezoneDefault
	}
	now := c.now().UTC()
	record := persistence.Booking{
		ID:              c.idGenerator(),
		MeetingTypeID:   mt.ID,
		Start:           slot.Start.UTC(),
		End:             slot.End.UTC(),
		VisitorName:     input.Visitor.Name,
		VisitorEmail:    input.Visitor.Email,
		VisitorNote:     input.Visitor.Note,
		Status:          persistence.BookingStatusBooked,
		PublicToken:     c.tokenGenerator(),
		BookingTimezone: bookingTimezone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.CreateBooking(ctx, record); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return Booking{}, errSlotTaken
		}
		return Booking{}, mapRepoError("create booking", err)
	}

	c.notify(ctx, c.eventOf(BookingCreated, mt, record, nil))
	return toBooking(record), nil
}

// GetBookingByToken returns the booking behind a public token.
func (c *BookingCoordinator) GetBookingByToken(ctx context.Context, token string) (Booking, error) {
	booking, err := c.store.GetBookingByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	return toBooking(booking), nil
}

// GetBooking returns a booking to the admin owning its meeting type.
func (c *BookingCoordinator) GetBooking(ctx context.Context, admin, bookingID string) (Booking, error) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	if _, err := requireOwner(ctx, c.store, admin, booking.MeetingTypeID); err != nil {
		return Booking{}, err
	}
	return toBooking(booking), nil
}

// RescheduleByToken moves a booking on behalf of the visitor holding its
// public token. The meeting type must allow public rescheduling.
func (c *BookingCoordinator) RescheduleByToken(ctx context.Context, token string, input RescheduleInput) (Booking, error) {
	booking, err := c.store.GetBookingByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	mt, err := c.store.GetMeetingType(ctx, booking.MeetingTypeID)
	if err != nil {
		return Booking{}, mapRepoError("load meeting type", err)
	}
	if !mt.AllowPublicReschedule {
		return Booking{}, ErrUnauthorized
	}
	return c.reschedule(ctx, mt, booking, input, "visitor")
}

// RescheduleBooking moves a booking on behalf of the owning admin.
func (c *BookingCoordinator) RescheduleBooking(ctx context.Context, admin, bookingID string, input RescheduleInput) (Booking, error) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	mt, err := requireOwner(ctx, c.store, admin, booking.MeetingTypeID)
	if err != nil {
		return Booking{}, err
	}
	return c.reschedule(ctx, mt, booking, input, "admin")
}

func (c *BookingCoordinator) reschedule(ctx context.Context, mt persistence.MeetingType, current persistence.Booking, input RescheduleInput, actor string) (booking Booking, err error) {
	ctx, span := tracer.Start(ctx, "BookingCoordinator.Reschedule", trace.WithAttributes(
		attribute.String("booking.id", current.ID),
		attribute.String("actor", actor),
	))
	defer span.End()

	logger := c.loggerWith(ctx, "Reschedule", "booking_id", current.ID, "actor", actor, "start", input.Start)
	defer func() {
		if err != nil {
			span.RecordError(err)
			logger.WarnContext(ctx, "reschedule rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking rescheduled")
	}()

	if current.Status != persistence.BookingStatusBooked {
		return Booking{}, &ConflictError{Message: "cancelled bookings cannot be rescheduled"}
	}
	if vErr := validateStruct(input); vErr.HasErrors() {
		return Booking{}, vErr
	}
	loc, err := timezone.Load(input.Timezone)
	if err != nil {
		return Booking{}, fieldError("timezone", "must be a valid IANA timezone")
	}
	date, _ := timezone.ParseDate(input.Date)
	start := input.Start.UTC()
	if timezone.DateOf(start, loc) != date {
		return Booking{}, fieldError("start", "must fall on date in timezone")
	}

	now := c.now().UTC()
	if start.Equal(current.Start) {
		if input.Timezone == current.BookingTimezone {
			return toBooking(current), nil
		}
		if err := c.store.RescheduleBooking(ctx, current.ID, current.Start, current.End, input.Timezone, now); err != nil {
			return Booking{}, c.rescheduleWriteError(err)
		}
		current.BookingTimezone = input.Timezone
		current.UpdatedAt = now
		return toBooking(current), nil
	}

	slot, err := c.availableSlot(ctx, mt, start, current.ID)
	if err != nil {
		return Booking{}, err
	}
	previous := current.Start
	if err := c.store.RescheduleBooking(ctx, current.ID, slot.Start.UTC(), slot.End.UTC(), input.Timezone, now); err != nil {
		return Booking{}, c.rescheduleWriteError(err)
	}
	current.Start = slot.Start.UTC()
	current.End = slot.End.UTC()
	current.BookingTimezone = input.Timezone
	current.UpdatedAt = now

	c.notify(ctx, c.eventOf(BookingRescheduled, mt, current, &previous))
	return toBooking(current), nil
}

// A duplicate means another booking took the slot first; not found means the
// booking was cancelled concurrently.
func (c *BookingCoordinator) rescheduleWriteError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrDuplicate):
		return errSlotTaken
	case errors.Is(err, persistence.ErrNotFound):
		return &ConflictError{Message: "cancelled bookings cannot be rescheduled"}
	}
	return mapRepoError("reschedule booking", err)
}

// CancelByToken cancels the booking behind a public token.
func (c *BookingCoordinator) CancelByToken(ctx context.Context, token string) (Booking, error) {
	booking, err := c.store.GetBookingByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	mt, err := c.store.GetMeetingType(ctx, booking.MeetingTypeID)
	if err != nil {
		return Booking{}, mapRepoError("load meeting type", err)
	}
	return c.cancel(ctx, mt, booking, "visitor")
}

// CancelBooking cancels a booking on behalf of the owning admin.
func (c *BookingCoordinator) CancelBooking(ctx context.Context, admin, bookingID string) (Booking, error) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	mt, err := requireOwner(ctx, c.store, admin, booking.MeetingTypeID)
	if err != nil {
		return Booking{}, err
	}
	return c.cancel(ctx, mt, booking, "admin")
}

// cancel is idempotent. Only the call that performs the transition emits an
// event.
func (c *BookingCoordinator) cancel(ctx context.Context, mt persistence.MeetingType, booking persistence.Booking, actor string) (Booking, error) {
	logger := c.loggerWith(ctx, "Cancel", "booking_id", booking.ID, "actor", actor)

	changed, err := c.store.CancelBooking(ctx, booking.ID, c.now().UTC())
	if err != nil {
		err = mapRepoError("cancel booking", err)
		logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
		return Booking{}, err
	}
	updated, err := c.store.GetBooking(ctx, booking.ID)
	if err != nil {
		return Booking{}, mapRepoError("load booking", err)
	}
	if !changed {
		logger.DebugContext(ctx, "booking already cancelled")
		return toBooking(updated), nil
	}

	logger.InfoContext(ctx, "booking cancelled")
	c.notify(ctx, c.eventOf(BookingCancelled, mt, updated, nil))
	return toBooking(updated), nil
}

// availableSlot returns the raw slot starting at start, ignoring excludeID's
// own booking. Presentation filtering is never applied here.
func (c *BookingCoordinator) availableSlot(ctx context.Context, mt persistence.MeetingType, start time.Time, excludeID string) (availability.Slot, error) {
	center := timezone.DateOf(start, time.UTC)
	rs, err := c.engine.load(ctx, mt, center.AddDays(-1), center.AddDays(1))
	if err != nil {
		return availability.Slot{}, err
	}
	days, err := c.engine.generateAround(ctx, rs, start, excludeID)
	if err != nil {
		return availability.Slot{}, err
	}
	slot, ok := availability.Find(days, start)
	if !ok {
		return availability.Slot{}, errSlotTaken
	}
	return slot, nil
}

func (c *BookingCoordinator) eventOf(kind BookingEventType, mt persistence.MeetingType, b persistence.Booking, previous *time.Time) BookingEvent {
	return BookingEvent{
		ID:            c.idGenerator(),
		Type:          kind,
		BookingID:     b.ID,
		MeetingTypeID: mt.ID,
		AdminIdentity: mt.AdminIdentity,
		Start:         b.Start,
		End:           b.End,
		PreviousStart: previous,
		Timezone:      b.BookingTimezone,
		VisitorName:   b.VisitorName,
		VisitorEmail:  b.VisitorEmail,
		OccurredAt:    c.now().UTC(),
	}
}

// notify delivers an event after commit. Failures are logged and never undo
// the booking change.
func (c *BookingCoordinator) notify(ctx context.Context, event BookingEvent) {
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.loggerWith(ctx, "Notify", "booking_id", event.BookingID, "event_type", string(event.Type)).
			WarnContext(ctx, "failed to deliver booking event", "error", err)
	}
}
