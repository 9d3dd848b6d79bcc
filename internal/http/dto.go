package http

import (
	"time"

	"github.com/example/lesson-scheduler/internal/application"
	"github.com/example/lesson-scheduler/internal/availability"
)

type meetingTypeDTO struct {
	ID                    string    `json:"id"`
	Slug                  string    `json:"slug"`
	Name                  string    `json:"name"`
	DurationMinutes       int       `json:"duration_minutes"`
	BufferBeforeMinutes   int       `json:"buffer_before_minutes"`
	BufferAfterMinutes    int       `json:"buffer_after_minutes"`
	MinNoticeMinutes      int       `json:"min_notice_minutes"`
	MaxHorizonDays        int       `json:"max_horizon_days"`
	Timezone              string    `json:"timezone"`
	AvailabilityMode      string    `json:"availability_mode"`
	BusyBufferPercent     int       `json:"busy_buffer_percent"`
	BusyPatternVersion    int64     `json:"busy_pattern_version"`
	DailyLimit            int       `json:"daily_limit"`
	NoOvernightSlots      bool      `json:"no_overnight_slots"`
	AllowPublicReschedule bool      `json:"allow_public_reschedule"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// publicMeetingTypeDTO omits presentation internals from visitor responses.
type publicMeetingTypeDTO struct {
	ID                    string `json:"id"`
	Slug                  string `json:"slug"`
	Name                  string `json:"name"`
	DurationMinutes       int    `json:"duration_minutes"`
	Timezone              string `json:"timezone"`
	AllowPublicReschedule bool   `json:"allow_public_reschedule"`
}

type slotDTO struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	LocalStart string    `json:"local_start"`
	Label      string    `json:"label"`
	Current    bool      `json:"current,omitempty"`
}

type dayDTO struct {
	Date     string    `json:"date"`
	Timezone string    `json:"timezone"`
	Slots    []slotDTO `json:"slots"`
}

type slotListingResponse struct {
	MeetingType publicMeetingTypeDTO `json:"meeting_type"`
	Days        []dayDTO             `json:"days"`
}

type visitorDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Note  string `json:"note,omitempty"`
}

type bookingDTO struct {
	ID            string     `json:"id"`
	MeetingTypeID string     `json:"meeting_type_id"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Timezone      string     `json:"timezone"`
	Status        string     `json:"status"`
	Visitor       visitorDTO `json:"visitor"`
	PublicToken   string     `json:"public_token,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type weeklyWindowDTO struct {
	DayOfWeek   int `json:"day_of_week"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type settingsDTO struct {
	PrimaryTimezone   string `json:"primary_timezone"`
	TravelModeEnabled bool   `json:"travel_mode_enabled"`
	TravelTimezone    string `json:"travel_timezone"`
	TravelStartDate   string `json:"travel_start_date"`
	TravelEndDate     string `json:"travel_end_date"`
	GlobalUnavailable bool   `json:"global_unavailable"`
}

type configurationResponse struct {
	MeetingType     meetingTypeDTO    `json:"meeting_type"`
	Availability    []weeklyWindowDTO `json:"availability"`
	WeeklyBlackouts []weeklyWindowDTO `json:"weekly_blackouts"`
	Settings        settingsDTO       `json:"settings"`
}

type blackoutDTO struct {
	ID     string    `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Note   string    `json:"note,omitempty"`
}

type diagnosticDayDTO struct {
	Date         string      `json:"date"`
	Timezone     string      `json:"timezone"`
	RawCount     int         `json:"raw_count"`
	VisibleCount int         `json:"visible_count"`
	HiddenStarts []time.Time `json:"hidden_starts"`
}

type diagnosticsResponse struct {
	MeetingType       meetingTypeDTO     `json:"meeting_type"`
	Days              []diagnosticDayDTO `json:"days"`
	OutOfAvailability []bookingDTO       `json:"out_of_availability"`
}

type createBookingRequest struct {
	Start    time.Time               `json:"start"`
	Timezone string                  `json:"timezone"`
	Visitor  application.VisitorInput `json:"visitor"`
}

func toMeetingTypeDTO(mt application.MeetingType) meetingTypeDTO {
	return meetingTypeDTO{
		ID:                    mt.ID,
		Slug:                  mt.Slug,
		Name:                  mt.Name,
		DurationMinutes:       mt.DurationMinutes,
		BufferBeforeMinutes:   mt.BufferBeforeMinutes,
		BufferAfterMinutes:    mt.BufferAfterMinutes,
		MinNoticeMinutes:      mt.MinNoticeMinutes,
		MaxHorizonDays:        mt.MaxHorizonDays,
		Timezone:              mt.Timezone,
		AvailabilityMode:      mt.AvailabilityMode,
		BusyBufferPercent:     mt.BusyBufferPercent,
		BusyPatternVersion:    mt.BusyPatternVersion,
		DailyLimit:            mt.DailyLimit,
		NoOvernightSlots:      mt.NoOvernightSlots,
		AllowPublicReschedule: mt.AllowPublicReschedule,
		CreatedAt:             mt.CreatedAt,
		UpdatedAt:             mt.UpdatedAt,
	}
}

func toMeetingTypeDTOs(items []application.MeetingType) []meetingTypeDTO {
	out := make([]meetingTypeDTO, 0, len(items))
	for _, mt := range items {
		out = append(out, toMeetingTypeDTO(mt))
	}
	return out
}

func toSlotListingResponse(listing application.SlotListing) slotListingResponse {
	mt := listing.MeetingType
	return slotListingResponse{
		MeetingType: publicMeetingTypeDTO{
			ID:                    mt.ID,
			Slug:                  mt.Slug,
			Name:                  mt.Name,
			DurationMinutes:       mt.DurationMinutes,
			Timezone:              mt.Timezone,
			AllowPublicReschedule: mt.AllowPublicReschedule,
		},
		Days: toDayDTOs(listing.Days),
	}
}

func toDayDTOs(days []availability.Day) []dayDTO {
	out := make([]dayDTO, 0, len(days))
	for _, day := range days {
		slots := make([]slotDTO, 0, len(day.Slots))
		for _, s := range day.Slots {
			slots = append(slots, slotDTO{
				Start:      s.Start.UTC(),
				End:        s.End.UTC(),
				LocalStart: s.Local.Format(time.RFC3339),
				Label:      s.Label,
				Current:    s.Current,
			})
		}
		out = append(out, dayDTO{Date: day.Date.String(), Timezone: day.Timezone, Slots: slots})
	}
	return out
}

// toBookingDTO includes the public token only when withToken is set; it is
// returned once to the visitor who created the booking.
func toBookingDTO(b application.Booking, withToken bool) bookingDTO {
	dto := bookingDTO{
		ID:            b.ID,
		MeetingTypeID: b.MeetingTypeID,
		Start:         b.Start.UTC(),
		End:           b.End.UTC(),
		Timezone:      b.Timezone,
		Status:        b.Status,
		Visitor:       visitorDTO{Name: b.Visitor.Name, Email: b.Visitor.Email, Note: b.Visitor.Note},
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if withToken {
		dto.PublicToken = b.PublicToken
	}
	return dto
}

func toWeeklyWindowDTOs(windows []application.WeeklyWindow) []weeklyWindowDTO {
	out := make([]weeklyWindowDTO, 0, len(windows))
	for _, w := range windows {
		out = append(out, weeklyWindowDTO{DayOfWeek: w.DayOfWeek, StartMinute: w.StartMinute, EndMinute: w.EndMinute})
	}
	return out
}

func toSettingsDTO(s application.ScheduleSettings) settingsDTO {
	dto := settingsDTO{
		PrimaryTimezone:   s.PrimaryTimezone,
		TravelModeEnabled: s.TravelModeEnabled,
		TravelTimezone:    s.TravelTimezone,
		GlobalUnavailable: s.GlobalUnavailable,
	}
	if !s.TravelStartDate.IsZero() {
		dto.TravelStartDate = s.TravelStartDate.String()
	}
	if !s.TravelEndDate.IsZero() {
		dto.TravelEndDate = s.TravelEndDate.String()
	}
	return dto
}

func toConfigurationResponse(cfg application.Configuration) configurationResponse {
	return configurationResponse{
		MeetingType:     toMeetingTypeDTO(cfg.MeetingType),
		Availability:    toWeeklyWindowDTOs(cfg.Availability),
		WeeklyBlackouts: toWeeklyWindowDTOs(cfg.WeeklyBlackouts),
		Settings:        toSettingsDTO(cfg.Settings),
	}
}

func toBlackoutDTOs(items []application.Blackout) []blackoutDTO {
	out := make([]blackoutDTO, 0, len(items))
	for _, b := range items {
		out = append(out, blackoutDTO{ID: b.ID, Start: b.Start.UTC(), End: b.End.UTC(), AllDay: b.AllDay, Note: b.Note})
	}
	return out
}

func toDiagnosticsResponse(d application.Diagnostics) diagnosticsResponse {
	resp := diagnosticsResponse{
		MeetingType:       toMeetingTypeDTO(d.MeetingType),
		Days:              make([]diagnosticDayDTO, 0, len(d.Days)),
		OutOfAvailability: make([]bookingDTO, 0, len(d.OutOfAvailability)),
	}
	for _, day := range d.Days {
		hidden := day.HiddenStarts
		if hidden == nil {
			hidden = []time.Time{}
		}
		resp.Days = append(resp.Days, diagnosticDayDTO{
			Date:         day.Date.String(),
			Timezone:     day.Timezone,
			RawCount:     day.RawCount,
			VisibleCount: day.VisibleCount,
			HiddenStarts: hidden,
		})
	}
	for _, b := range d.OutOfAvailability {
		resp.OutOfAvailability = append(resp.OutOfAvailability, toBookingDTO(b, false))
	}
	return resp
}
