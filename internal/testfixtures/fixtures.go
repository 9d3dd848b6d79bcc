package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

var (
	meetingTypeCounter uint64
	ruleCounter        uint64
	bookingCounter     uint64
	blackoutCounter    uint64
)

var referenceTime = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It is the Saturday before Monday 2024-06-03, the sample week used across
// availability tests.
func ReferenceTime() time.Time {
	return referenceTime
}

// DefaultAdmin is the admin identity owning fixture meeting types.
const DefaultAdmin = "admin-001"

// ------------------------- Meeting type fixtures -------------------------

// MeetingTypeOption configures the generated meeting type.
type MeetingTypeOption func(*persistence.MeetingType)

// NewMeetingType returns a 30 minute UTC meeting type with no buffers,
// 60 day horizon and the "all" presentation mode.
func NewMeetingType(opts ...MeetingTypeOption) persistence.MeetingType {
	idx := atomic.AddUint64(&meetingTypeCounter, 1)
	mt := persistence.MeetingType{
		ID:                 fmt.Sprintf("mt-%03d", idx),
		Slug:               fmt.Sprintf("lesson-%03d", idx),
		Name:               fmt.Sprintf("Lesson %03d", idx),
		DurationMinutes:    30,
		MaxHorizonDays:     60,
		TimezoneDefault:    "UTC",
		AvailabilityMode:   "all",
		BusyPatternVersion: 1,
		AdminIdentity:      DefaultAdmin,
		CreatedAt:          referenceTime,
		UpdatedAt:          referenceTime,
	}
	for _, opt := range opts {
		opt(&mt)
	}
	return mt
}

// WithMeetingTypeID overrides the generated identifier.
func WithMeetingTypeID(id string) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.ID = id }
}

// WithSlug overrides the generated slug.
func WithSlug(slug string) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.Slug = slug }
}

// WithDuration sets the slot length in minutes.
func WithDuration(minutes int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.DurationMinutes = minutes }
}

// WithBuffers sets the before and after buffers in minutes.
func WithBuffers(before, after int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) {
		mt.BufferBeforeMinutes = before
		mt.BufferAfterMinutes = after
	}
}

// WithMinNotice sets the minimum notice in minutes.
func WithMinNotice(minutes int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.MinNoticeMinutes = minutes }
}

// WithHorizon sets the booking horizon in days.
func WithHorizon(days int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.MaxHorizonDays = days }
}

// WithTimezone sets the meeting type default timezone.
func WithTimezone(name string) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.TimezoneDefault = name }
}

// WithBusyMode switches presentation to busy with the given percentage.
func WithBusyMode(percent int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) {
		mt.AvailabilityMode = "busy"
		mt.BusyBufferPercent = percent
	}
}

// WithDailyLimit switches presentation to daily_limit.
func WithDailyLimit(limit int) MeetingTypeOption {
	return func(mt *persistence.MeetingType) {
		mt.AvailabilityMode = "daily_limit"
		mt.DailyLimit = limit
	}
}

// WithPublicReschedule allows visitors to reschedule through their token.
func WithPublicReschedule() MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.AllowPublicReschedule = true }
}

// WithAdmin overrides the owning admin identity.
func WithAdmin(identity string) MeetingTypeOption {
	return func(mt *persistence.MeetingType) { mt.AdminIdentity = identity }
}

// WeeklyRule returns a weekly rule for the meeting type.
func WeeklyRule(meetingTypeID string, dayOfWeek, startMinute, endMinute int) persistence.WeeklyRule {
	idx := atomic.AddUint64(&ruleCounter, 1)
	return persistence.WeeklyRule{
		ID:            fmt.Sprintf("rule-%03d", idx),
		MeetingTypeID: meetingTypeID,
		DayOfWeek:     dayOfWeek,
		StartMinute:   startMinute,
		EndMinute:     endMinute,
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
}

// Weekdays returns 09:00-17:00 availability for Monday through Friday.
func Weekdays(meetingTypeID string) []persistence.WeeklyRule {
	rules := make([]persistence.WeeklyRule, 0, 5)
	for day := 1; day <= 5; day++ {
		rules = append(rules, WeeklyRule(meetingTypeID, day, 9*60, 17*60))
	}
	return rules
}

// ---------------------------- Booking fixtures ----------------------------

// BookingOption configures the generated booking.
type BookingOption func(*persistence.Booking)

// NewBooking returns an active booking for the meeting type at start.
func NewBooking(meetingTypeID string, start time.Time, duration time.Duration, opts ...BookingOption) persistence.Booking {
	idx := atomic.AddUint64(&bookingCounter, 1)
	b := persistence.Booking{
		ID:              fmt.Sprintf("booking-%03d", idx),
		MeetingTypeID:   meetingTypeID,
		Start:           start.UTC(),
		End:             start.Add(duration).UTC(),
		VisitorName:     fmt.Sprintf("Visitor %03d", idx),
		VisitorEmail:    fmt.Sprintf("visitor-%03d@example.com", idx),
		Status:          persistence.BookingStatusBooked,
		PublicToken:     fmt.Sprintf("token-%03d", idx),
		BookingTimezone: "UTC",
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithBookingToken overrides the public token.
func WithBookingToken(token string) BookingOption {
	return func(b *persistence.Booking) { b.PublicToken = token }
}

// Cancelled marks the booking as cancelled.
func Cancelled() BookingOption {
	return func(b *persistence.Booking) { b.Status = persistence.BookingStatusCancelled }
}

// NewBlackout returns a timed blackout over [start, end).
func NewBlackout(meetingTypeID string, start, end time.Time, allDay bool) persistence.Blackout {
	idx := atomic.AddUint64(&blackoutCounter, 1)
	return persistence.Blackout{
		ID:            fmt.Sprintf("blackout-%03d", idx),
		MeetingTypeID: meetingTypeID,
		Start:         start.UTC(),
		End:           end.UTC(),
		AllDay:        allDay,
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
}

// ------------------------------ Seeding ------------------------------

// Seed writes a meeting type and its weekly availability to the store.
func Seed(tb testing.TB, store persistence.Store, mt persistence.MeetingType, availability []persistence.WeeklyRule) {
	tb.Helper()
	ctx := context.Background()
	if err := store.CreateMeetingType(ctx, mt); err != nil {
		tb.Fatalf("failed to create meeting type: %v", err)
	}
	if len(availability) == 0 {
		return
	}
	if err := store.SaveConfiguration(ctx, persistence.ConfigurationBundle{
		MeetingType:  mt,
		Availability: availability,
	}); err != nil {
		tb.Fatalf("failed to save availability: %v", err)
	}
}

// SeedBooking writes a booking to the store.
func SeedBooking(tb testing.TB, store persistence.Store, booking persistence.Booking) {
	tb.Helper()
	if err := store.CreateBooking(context.Background(), booking); err != nil {
		tb.Fatalf("failed to create booking: %v", err)
	}
}
