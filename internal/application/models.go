package application

import (
	"context"
	"time"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/timezone"
)

// Availability modes accepted on a meeting type.
const (
	ModeAll        = "all"
	ModeBusy       = "busy"
	ModeDailyLimit = "daily_limit"
)

// MeetingType is a bookable lesson format owned by one admin identity.
type MeetingType struct {
	ID                    string
	Slug                  string
	Name                  string
	DurationMinutes       int
	BufferBeforeMinutes   int
	BufferAfterMinutes    int
	MinNoticeMinutes      int
	MaxHorizonDays        int
	Timezone              string
	AvailabilityMode      string
	BusyBufferPercent     int
	BusyPatternVersion    int64
	DailyLimit            int
	NoOvernightSlots      bool
	AllowPublicReschedule bool
	AdminIdentity         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// WeeklyWindow is a recurring weekday interval in minutes from local midnight.
type WeeklyWindow struct {
	DayOfWeek   int `json:"day_of_week" validate:"gte=0,lte=6"`
	StartMinute int `json:"start_minute" validate:"gte=0,lte=1440"`
	EndMinute   int `json:"end_minute" validate:"lte=1440,gtfield=StartMinute"`
}

// ScheduleSettings holds an admin's operating timezone switches. Travel dates
// are civil dates and zero when unset.
type ScheduleSettings struct {
	AdminIdentity     string
	PrimaryTimezone   string
	TravelModeEnabled bool
	TravelTimezone    string
	TravelStartDate   timezone.Date
	TravelEndDate     timezone.Date
	GlobalUnavailable bool
	UpdatedAt         time.Time
}

// Configuration is a meeting type together with its full rule set.
type Configuration struct {
	MeetingType     MeetingType
	Availability    []WeeklyWindow
	WeeklyBlackouts []WeeklyWindow
	Settings        ScheduleSettings
}

// Blackout is a one-off exclusion over [Start, End) in UTC.
type Blackout struct {
	ID            string
	MeetingTypeID string
	Start         time.Time
	End           time.Time
	AllDay        bool
	Note          string
	CreatedAt     time.Time
}

// Visitor identifies the person who made a booking.
type Visitor struct {
	Name  string
	Email string
	Note  string
}

// Booking statuses.
const (
	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
)

// Booking is a visitor reservation.
type Booking struct {
	ID            string
	MeetingTypeID string
	Start         time.Time
	End           time.Time
	Visitor       Visitor
	Status        string
	PublicToken   string
	Timezone      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotListing is the response of a slot read.
type SlotListing struct {
	MeetingType MeetingType
	Days        []availability.Day
}

// DiagnosticDay compares raw and visible availability for one date.
type DiagnosticDay struct {
	Date         timezone.Date
	Timezone     string
	RawCount     int
	VisibleCount int
	HiddenStarts []time.Time
}

// Diagnostics is the admin view of what the presentation filter hides and
// which bookings no longer match the current rules.
type Diagnostics struct {
	MeetingType       MeetingType
	Days              []DiagnosticDay
	OutOfAvailability []Booking
}

// ------------------------------ Inputs ------------------------------

// MeetingTypeInput captures caller provided meeting type fields.
type MeetingTypeInput struct {
	Slug                  string `json:"slug" validate:"required,max=64,slug"`
	Name                  string `json:"name" validate:"required,max=200"`
	DurationMinutes       int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
	BufferBeforeMinutes   int    `json:"buffer_before_minutes" validate:"gte=0,lte=1440"`
	BufferAfterMinutes    int    `json:"buffer_after_minutes" validate:"gte=0,lte=1440"`
	MinNoticeMinutes      int    `json:"min_notice_minutes" validate:"gte=0"`
	MaxHorizonDays        int    `json:"max_horizon_days" validate:"gte=1,lte=400"`
	Timezone              string `json:"timezone" validate:"required,timezone"`
	AvailabilityMode      string `json:"availability_mode" validate:"omitempty,oneof=all busy daily_limit"`
	BusyBufferPercent     int    `json:"busy_buffer_percent" validate:"gte=0,lte=100"`
	DailyLimit            int    `json:"daily_limit" validate:"gte=0"`
	NoOvernightSlots      bool   `json:"no_overnight_slots"`
	AllowPublicReschedule bool   `json:"allow_public_reschedule"`
}

// ScheduleSettingsInput captures caller provided schedule settings.
type ScheduleSettingsInput struct {
	PrimaryTimezone   string `json:"primary_timezone" validate:"omitempty,timezone"`
	TravelModeEnabled bool   `json:"travel_mode_enabled"`
	TravelTimezone    string `json:"travel_timezone" validate:"omitempty,timezone"`
	TravelStartDate   string `json:"travel_start_date" validate:"omitempty,datetime=2006-01-02"`
	TravelEndDate     string `json:"travel_end_date" validate:"omitempty,datetime=2006-01-02"`
	GlobalUnavailable bool   `json:"global_unavailable"`
}

// ConfigurationInput is the combined save payload. Settings is optional; when
// nil the admin's settings are left untouched.
type ConfigurationInput struct {
	MeetingType     MeetingTypeInput       `json:"meeting_type"`
	Availability    []WeeklyWindow         `json:"availability" validate:"dive"`
	WeeklyBlackouts []WeeklyWindow         `json:"weekly_blackouts" validate:"dive"`
	Settings        *ScheduleSettingsInput `json:"settings"`
}

// BlackoutInput adds one-off blackouts on a selection of civil dates.
// Minutes are ignored for all-day blackouts.
type BlackoutInput struct {
	Dates       []string `json:"dates" validate:"required,min=1,max=366,dive,datetime=2006-01-02"`
	AllDay      bool     `json:"all_day"`
	StartMinute int      `json:"start_minute" validate:"gte=0,lte=1440"`
	EndMinute   int      `json:"end_minute" validate:"gte=0,lte=1440"`
	Note        string   `json:"note" validate:"max=500"`
}

// VisitorInput captures the visitor fields of a booking request.
type VisitorInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
	Note  string `json:"note" validate:"max=2000"`
}

// CreateBookingInput requests the slot starting at Start.
type CreateBookingInput struct {
	MeetingTypeRef string       `json:"-" validate:"required"`
	Start          time.Time    `json:"start" validate:"required"`
	Timezone       string       `json:"timezone" validate:"omitempty,timezone"`
	Visitor        VisitorInput `json:"visitor"`
}

// RescheduleInput moves a booking to the slot starting at Start. Date is the
// local date of Start in Timezone.
type RescheduleInput struct {
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	Timezone string    `json:"timezone" validate:"required,timezone"`
	Start    time.Time `json:"start" validate:"required"`
}

// SlotQuery selects a range of dates to list.
type SlotQuery struct {
	MeetingTypeRef  string `validate:"required"`
	StartDate       string `json:"start_date" validate:"required,datetime=2006-01-02"`
	Days            int    `json:"days" validate:"gte=0,lte=400"`
	DisplayTimezone string `json:"timezone" validate:"omitempty,timezone"`
}

// ------------------------------ Events ------------------------------

// BookingEventType names a booking lifecycle change.
type BookingEventType string

const (
	BookingCreated     BookingEventType = "booking.created"
	BookingRescheduled BookingEventType = "booking.rescheduled"
	BookingCancelled   BookingEventType = "booking.cancelled"
)

// BookingEvent is emitted after a booking change has been committed.
type BookingEvent struct {
	ID            string           `json:"id"`
	Type          BookingEventType `json:"type"`
	BookingID     string           `json:"booking_id"`
	MeetingTypeID string           `json:"meeting_type_id"`
	AdminIdentity string           `json:"admin_identity"`
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	PreviousStart *time.Time       `json:"previous_start,omitempty"`
	Timezone      string           `json:"timezone"`
	VisitorName   string           `json:"visitor_name"`
	VisitorEmail  string           `json:"visitor_email"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// BookingNotifier hands committed booking events to a delivery channel.
type BookingNotifier interface {
	Notify(ctx context.Context, event BookingEvent) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, BookingEvent) error { return nil }
