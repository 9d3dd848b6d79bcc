package persistence

import (
	"context"
	"time"
)

// MeetingTypeRepository stores meeting types and their weekly rules.
type MeetingTypeRepository interface {
	CreateMeetingType(ctx context.Context, meetingType MeetingType) error
	GetMeetingType(ctx context.Context, id string) (MeetingType, error)
	GetMeetingTypeBySlug(ctx context.Context, slug string) (MeetingType, error)
	ListMeetingTypes(ctx context.Context, adminIdentity string) ([]MeetingType, error)
	// DeleteMeetingType removes the meeting type; rules, blackouts and
	// bookings cascade.
	DeleteMeetingType(ctx context.Context, id string) error
	// SaveConfiguration updates the meeting type, replaces both weekly rule
	// sets and upserts settings in one transaction.
	SaveConfiguration(ctx context.Context, bundle ConfigurationBundle) error
	BumpBusyPatternVersion(ctx context.Context, id string, updatedAt time.Time) (int64, error)
	ListWeeklyAvailability(ctx context.Context, meetingTypeID string) ([]WeeklyRule, error)
	ListWeeklyBlackouts(ctx context.Context, meetingTypeID string) ([]WeeklyRule, error)
}

// BlackoutRepository stores one-off blackouts.
type BlackoutRepository interface {
	CreateBlackouts(ctx context.Context, blackouts []Blackout) error
	DeleteBlackout(ctx context.Context, meetingTypeID, id string) error
	// ListBlackouts returns blackouts overlapping [from, to).
	ListBlackouts(ctx context.Context, meetingTypeID string, from, to time.Time) ([]Blackout, error)
}

// ScheduleSettingsRepository stores one settings row per admin identity.
type ScheduleSettingsRepository interface {
	GetScheduleSettings(ctx context.Context, adminIdentity string) (ScheduleSettings, error)
	UpsertScheduleSettings(ctx context.Context, settings ScheduleSettings) error
}

// BookingRepository stores bookings. At most one booked row may exist per
// (meeting type, start); a second insert or reschedule onto the same start
// returns ErrDuplicate.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	GetBookingByToken(ctx context.Context, token string) (Booking, error)
	// RescheduleBooking moves a booked row in place. Cancelled rows are
	// reported as ErrNotFound.
	RescheduleBooking(ctx context.Context, id string, start, end time.Time, bookingTimezone string, updatedAt time.Time) error
	// CancelBooking reports whether the row transitioned; cancelling an
	// already cancelled booking returns false and no error.
	CancelBooking(ctx context.Context, id string, updatedAt time.Time) (bool, error)
	// ListActiveBookings returns booked rows overlapping [from, to).
	ListActiveBookings(ctx context.Context, meetingTypeID string, from, to time.Time) ([]Booking, error)
	CountFutureBookings(ctx context.Context, meetingTypeID string, after time.Time) (int, error)
}

// Store is the full storage surface implemented by each backend.
type Store interface {
	MeetingTypeRepository
	BlackoutRepository
	ScheduleSettingsRepository
	BookingRepository
	Ping(ctx context.Context) error
	Close() error
}
