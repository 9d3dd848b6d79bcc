package persistence

import "time"

// Booking statuses.
const (
	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
)

// MeetingType is a bookable lesson format owned by a single admin identity.
type MeetingType struct {
	ID                    string
	Slug                  string
	Name                  string
	DurationMinutes       int
	BufferBeforeMinutes   int
	BufferAfterMinutes    int
	MinNoticeMinutes      int
	MaxHorizonDays        int
	TimezoneDefault       string
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

// WeeklyRule is a recurring per-weekday interval. It backs both weekly
// availability windows and weekly blackouts.
type WeeklyRule struct {
	ID            string
	MeetingTypeID string
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Blackout is a one-off exclusion over absolute UTC time.
type Blackout struct {
	ID            string
	MeetingTypeID string
	Start         time.Time
	End           time.Time
	AllDay        bool
	Note          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Booking is a visitor reservation. Cancelled rows are retained.
type Booking struct {
	ID              string
	MeetingTypeID   string
	Start           time.Time
	End             time.Time
	VisitorName     string
	VisitorEmail    string
	VisitorNote     string
	Status          string
	PublicToken     string
	BookingTimezone string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleSettings holds per-admin timezone and availability switches.
// Travel dates are civil YYYY-MM-DD strings, empty when unset.
type ScheduleSettings struct {
	AdminIdentity     string
	PrimaryTimezone   string
	TravelModeEnabled bool
	TravelTimezone    string
	TravelStartDate   string
	TravelEndDate     string
	GlobalUnavailable bool
	UpdatedAt         time.Time
}

// ConfigurationBundle is written atomically by SaveConfiguration. Settings is
// optional; when nil the admin's settings row is left untouched.
type ConfigurationBundle struct {
	MeetingType     MeetingType
	Availability    []WeeklyRule
	WeeklyBlackouts []WeeklyRule
	Settings        *ScheduleSettings
}
