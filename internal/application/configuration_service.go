package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/timezone"
)

// ConfigurationService manages meeting types, their weekly rules, one-off
// blackouts and the owning admin's schedule settings.
type ConfigurationService struct {
	store       Repositories
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewConfigurationService constructs a configuration service.
func NewConfigurationService(deps Dependencies) *ConfigurationService {
	deps = deps.withDefaults()
	return &ConfigurationService{
		store:       deps.Store,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      deps.Logger,
	}
}

func (s *ConfigurationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConfigurationService", operation, attrs...)
}

// CreateMeetingType validates input and persists a meeting type with no rules.
func (s *ConfigurationService) CreateMeetingType(ctx context.Context, admin string, input MeetingTypeInput) (mt MeetingType, err error) {
	if s == nil || s.store == nil {
		return MeetingType{}, fmt.Errorf("ConfigurationService is not configured")
	}
	logger := s.loggerWith(ctx, "CreateMeetingType", "admin", admin, "slug", input.Slug)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting type", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_type_id", mt.ID).InfoContext(ctx, "meeting type created")
	}()

	if strings.TrimSpace(admin) == "" {
		return MeetingType{}, ErrUnauthenticated
	}
	input = normalizeMeetingTypeInput(input)
	vErr := validateStruct(input)
	validateDailyLimit("", input, vErr)
	if vErr.HasErrors() {
		return MeetingType{}, vErr
	}

	now := s.now().UTC()
	record := persistence.MeetingType{
		ID:                 s.idGenerator(),
		AdminIdentity:      admin,
		BusyPatternVersion: 1,
		CreatedAt:          now,
	}
	applyMeetingTypeInput(&record, input, now)

	if err := s.store.CreateMeetingType(ctx, record); err != nil {
		return MeetingType{}, mapMeetingTypeWriteError("slug", err)
	}
	return toMeetingType(record), nil
}

// GetConfiguration returns the meeting type with its rules and settings.
func (s *ConfigurationService) GetConfiguration(ctx context.Context, admin, meetingTypeID string) (Configuration, error) {
	mt, err := requireOwner(ctx, s.store, admin, meetingTypeID)
	if err != nil {
		return Configuration{}, err
	}
	return s.configurationOf(ctx, mt)
}

// ListMeetingTypes returns the admin's meeting types ordered by name.
func (s *ConfigurationService) ListMeetingTypes(ctx context.Context, admin string) ([]MeetingType, error) {
	if strings.TrimSpace(admin) == "" {
		return nil, ErrUnauthenticated
	}
	records, err := s.store.ListMeetingTypes(ctx, admin)
	if err != nil {
		return nil, mapRepoError("list meeting types", err)
	}
	out := make([]MeetingType, 0, len(records))
	for _, r := range records {
		out = append(out, toMeetingType(r))
	}
	return out, nil
}

// DeleteMeetingType removes a meeting type and its rules. Deletion is refused
// while upcoming booked bookings exist; past and cancelled bookings cascade.
func (s *ConfigurationService) DeleteMeetingType(ctx context.Context, admin, meetingTypeID string) (err error) {
	logger := s.loggerWith(ctx, "DeleteMeetingType", "admin", admin, "meeting_type_id", meetingTypeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meeting type", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting type deleted")
	}()

	if _, err := requireOwner(ctx, s.store, admin, meetingTypeID); err != nil {
		return err
	}
	upcoming, err := s.store.CountFutureBookings(ctx, meetingTypeID, s.now().UTC())
	if err != nil {
		return mapRepoError("count future bookings", err)
	}
	if upcoming > 0 {
		return &ConflictError{Message: fmt.Sprintf("meeting type has %d upcoming bookings", upcoming)}
	}
	return mapRepoError("delete meeting type", s.store.DeleteMeetingType(ctx, meetingTypeID))
}

// SaveConfiguration replaces the meeting type fields, both weekly rule sets
// and optionally the admin's settings in one transaction. In busy mode a
// change to the weekly rules bumps the busy pattern version.
func (s *ConfigurationService) SaveConfiguration(ctx context.Context, admin, meetingTypeID string, input ConfigurationInput) (cfg Configuration, err error) {
	logger := s.loggerWith(ctx, "SaveConfiguration", "admin", admin, "meeting_type_id", meetingTypeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to save configuration", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "configuration saved",
			"availability_windows", len(cfg.Availability),
			"weekly_blackouts", len(cfg.WeeklyBlackouts),
			"busy_pattern_version", cfg.MeetingType.BusyPatternVersion,
		)
	}()

	existing, err := requireOwner(ctx, s.store, admin, meetingTypeID)
	if err != nil {
		return Configuration{}, err
	}

	input.MeetingType = normalizeMeetingTypeInput(input.MeetingType)
	vErr := validateStruct(input)
	validateWindowOverlap("availability", input.Availability, vErr)
	validateDailyLimit("meeting_type.", input.MeetingType, vErr)
	if input.Settings != nil {
		validateSettings("settings.", *input.Settings, vErr)
	}
	if vErr.HasErrors() {
		return Configuration{}, vErr
	}

	currentAvailability, err := s.store.ListWeeklyAvailability(ctx, meetingTypeID)
	if err != nil {
		return Configuration{}, mapRepoError("load weekly availability", err)
	}
	currentBlackouts, err := s.store.ListWeeklyBlackouts(ctx, meetingTypeID)
	if err != nil {
		return Configuration{}, mapRepoError("load weekly blackouts", err)
	}

	now := s.now().UTC()
	updated := existing
	applyMeetingTypeInput(&updated, input.MeetingType, now)
	rulesChanged := !sameWindows(toWeeklyWindows(currentAvailability), input.Availability) ||
		!sameWindows(toWeeklyWindows(currentBlackouts), input.WeeklyBlackouts)
	if updated.AvailabilityMode == ModeBusy && rulesChanged {
		updated.BusyPatternVersion++
	}

	bundle := persistence.ConfigurationBundle{
		MeetingType:     updated,
		Availability:    s.weeklyRules(meetingTypeID, input.Availability, now),
		WeeklyBlackouts: s.weeklyRules(meetingTypeID, input.WeeklyBlackouts, now),
	}
	if input.Settings != nil {
		settings := settingsRecord(admin, *input.Settings, now)
		bundle.Settings = &settings
	}

	if err := s.store.SaveConfiguration(ctx, bundle); err != nil {
		return Configuration{}, mapMeetingTypeWriteError("meeting_type.slug", err)
	}
	return s.configurationOf(ctx, updated)
}

// RegenerateBusyPattern bumps the busy pattern version so a new set of slots
// is hidden.
func (s *ConfigurationService) RegenerateBusyPattern(ctx context.Context, admin, meetingTypeID string) (MeetingType, error) {
	mt, err := requireOwner(ctx, s.store, admin, meetingTypeID)
	if err != nil {
		return MeetingType{}, err
	}
	now := s.now().UTC()
	version, err := s.store.BumpBusyPatternVersion(ctx, meetingTypeID, now)
	if err != nil {
		return MeetingType{}, mapRepoError("bump busy pattern version", err)
	}
	mt.BusyPatternVersion = version
	mt.UpdatedAt = now
	s.loggerWith(ctx, "RegenerateBusyPattern", "meeting_type_id", meetingTypeID).
		InfoContext(ctx, "busy pattern regenerated", "busy_pattern_version", version)
	return toMeetingType(mt), nil
}

// AddBlackouts creates one-off blackouts for the selected dates. Contiguous
// all-day dates collapse into one record; timed blackouts produce one record
// per date, interpreted in the effective timezone of that date.
func (s *ConfigurationService) AddBlackouts(ctx context.Context, admin, meetingTypeID string, input BlackoutInput) (created []Blackout, err error) {
	logger := s.loggerWith(ctx, "AddBlackouts", "admin", admin, "meeting_type_id", meetingTypeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add blackouts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "blackouts added", "count", len(created))
	}()

	mt, err := requireOwner(ctx, s.store, admin, meetingTypeID)
	if err != nil {
		return nil, err
	}

	vErr := validateStruct(input)
	if !input.AllDay && input.EndMinute <= input.StartMinute {
		vErr.add("end_minute", "must be after start_minute")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	dates, err := parseDates(input.Dates)
	if err != nil {
		return nil, fieldError("dates", "must be dates in YYYY-MM-DD format")
	}

	var settings *persistence.ScheduleSettings
	if !input.AllDay {
		found, err := s.store.GetScheduleSettings(ctx, admin)
		switch {
		case err == nil:
			settings = &found
		case !errors.Is(err, persistence.ErrNotFound):
			return nil, mapRepoError("load schedule settings", err)
		}
	}

	now := s.now().UTC()
	var records []persistence.Blackout
	newRecord := func(start, end time.Time) persistence.Blackout {
		return persistence.Blackout{
			ID:            s.idGenerator(),
			MeetingTypeID: meetingTypeID,
			Start:         start,
			End:           end,
			AllDay:        input.AllDay,
			Note:          strings.TrimSpace(input.Note),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if input.AllDay {
		for _, run := range contiguousRuns(dates) {
			records = append(records, newRecord(
				timezone.LocalDateToUTC(run[0], 0, time.UTC),
				timezone.LocalDateToUTC(run[len(run)-1].AddDays(1), 0, time.UTC),
			))
		}
	} else {
		for _, d := range dates {
			zone := effectiveZoneOf(settings, mt.TimezoneDefault, d)
			loc, err := timezone.Load(zone)
			if err != nil {
				return nil, fieldError("timezone", "must be a valid IANA timezone")
			}
			records = append(records, newRecord(
				timezone.LocalDateToUTC(d, input.StartMinute, loc),
				timezone.LocalDateToUTC(d, input.EndMinute, loc),
			))
		}
	}

	if err := s.store.CreateBlackouts(ctx, records); err != nil {
		return nil, mapRepoError("create blackouts", err)
	}
	created = make([]Blackout, 0, len(records))
	for _, r := range records {
		created = append(created, toBlackout(r))
	}
	return created, nil
}

// DeleteBlackout removes a one-off blackout.
func (s *ConfigurationService) DeleteBlackout(ctx context.Context, admin, meetingTypeID, blackoutID string) error {
	if _, err := requireOwner(ctx, s.store, admin, meetingTypeID); err != nil {
		return err
	}
	if err := s.store.DeleteBlackout(ctx, meetingTypeID, blackoutID); err != nil {
		return mapRepoError("delete blackout", err)
	}
	s.loggerWith(ctx, "DeleteBlackout", "meeting_type_id", meetingTypeID, "blackout_id", blackoutID).
		InfoContext(ctx, "blackout deleted")
	return nil
}

// ListBlackouts returns blackouts overlapping the UTC dates [from, to].
func (s *ConfigurationService) ListBlackouts(ctx context.Context, admin, meetingTypeID, from, to string) ([]Blackout, error) {
	if _, err := requireOwner(ctx, s.store, admin, meetingTypeID); err != nil {
		return nil, err
	}
	fromDate, errFrom := timezone.ParseDate(from)
	toDate, errTo := timezone.ParseDate(to)
	vErr := &ValidationError{}
	if errFrom != nil {
		vErr.add("from", "must be a date in YYYY-MM-DD format")
	}
	if errTo != nil {
		vErr.add("to", "must be a date in YYYY-MM-DD format")
	}
	if !vErr.HasErrors() && toDate.Before(fromDate) {
		vErr.add("to", "must not be before from")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	records, err := s.store.ListBlackouts(ctx, meetingTypeID,
		timezone.LocalDateToUTC(fromDate, 0, time.UTC),
		timezone.LocalDateToUTC(toDate.AddDays(1), 0, time.UTC))
	if err != nil {
		return nil, mapRepoError("list blackouts", err)
	}
	out := make([]Blackout, 0, len(records))
	for _, r := range records {
		out = append(out, toBlackout(r))
	}
	return out, nil
}

// GetScheduleSettings returns the admin's settings, or empty defaults when
// none have been saved.
func (s *ConfigurationService) GetScheduleSettings(ctx context.Context, admin string) (ScheduleSettings, error) {
	if strings.TrimSpace(admin) == "" {
		return ScheduleSettings{}, ErrUnauthenticated
	}
	settings, err := s.store.GetScheduleSettings(ctx, admin)
	if errors.Is(err, persistence.ErrNotFound) {
		return ScheduleSettings{AdminIdentity: admin}, nil
	}
	if err != nil {
		return ScheduleSettings{}, mapRepoError("load schedule settings", err)
	}
	return toScheduleSettings(settings), nil
}

// SaveScheduleSettings upserts the admin's settings on their own.
func (s *ConfigurationService) SaveScheduleSettings(ctx context.Context, admin string, input ScheduleSettingsInput) (ScheduleSettings, error) {
	if strings.TrimSpace(admin) == "" {
		return ScheduleSettings{}, ErrUnauthenticated
	}
	vErr := validateStruct(input)
	validateSettings("", input, vErr)
	if vErr.HasErrors() {
		return ScheduleSettings{}, vErr
	}
	record := settingsRecord(admin, input, s.now().UTC())
	if err := s.store.UpsertScheduleSettings(ctx, record); err != nil {
		return ScheduleSettings{}, mapRepoError("save schedule settings", err)
	}
	s.loggerWith(ctx, "SaveScheduleSettings", "admin", admin).InfoContext(ctx, "schedule settings saved",
		"travel_mode_enabled", record.TravelModeEnabled,
		"global_unavailable", record.GlobalUnavailable,
	)
	return toScheduleSettings(record), nil
}

func (s *ConfigurationService) configurationOf(ctx context.Context, mt persistence.MeetingType) (Configuration, error) {
	windows, err := s.store.ListWeeklyAvailability(ctx, mt.ID)
	if err != nil {
		return Configuration{}, mapRepoError("load weekly availability", err)
	}
	blackouts, err := s.store.ListWeeklyBlackouts(ctx, mt.ID)
	if err != nil {
		return Configuration{}, mapRepoError("load weekly blackouts", err)
	}
	settings, err := s.GetScheduleSettings(ctx, mt.AdminIdentity)
	if err != nil {
		return Configuration{}, err
	}
	return Configuration{
		MeetingType:     toMeetingType(mt),
		Availability:    toWeeklyWindows(windows),
		WeeklyBlackouts: toWeeklyWindows(blackouts),
		Settings:        settings,
	}, nil
}

func (s *ConfigurationService) weeklyRules(meetingTypeID string, windows []WeeklyWindow, now time.Time) []persistence.WeeklyRule {
	out := make([]persistence.WeeklyRule, 0, len(windows))
	for _, w := range windows {
		out = append(out, persistence.WeeklyRule{
			ID:            s.idGenerator(),
			MeetingTypeID: meetingTypeID,
			DayOfWeek:     w.DayOfWeek,
			StartMinute:   w.StartMinute,
			EndMinute:     w.EndMinute,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}

func normalizeMeetingTypeInput(input MeetingTypeInput) MeetingTypeInput {
	input.Slug = strings.ToLower(strings.TrimSpace(input.Slug))
	input.Name = strings.TrimSpace(input.Name)
	input.Timezone = strings.TrimSpace(input.Timezone)
	if input.AvailabilityMode == "" {
		input.AvailabilityMode = ModeAll
	}
	return input
}

func applyMeetingTypeInput(mt *persistence.MeetingType, input MeetingTypeInput, now time.Time) {
	mt.Slug = input.Slug
	mt.Name = input.Name
	mt.DurationMinutes = input.DurationMinutes
	mt.BufferBeforeMinutes = input.BufferBeforeMinutes
	mt.BufferAfterMinutes = input.BufferAfterMinutes
	mt.MinNoticeMinutes = input.MinNoticeMinutes
	mt.MaxHorizonDays = input.MaxHorizonDays
	mt.TimezoneDefault = input.Timezone
	mt.AvailabilityMode = input.AvailabilityMode
	mt.BusyBufferPercent = input.BusyBufferPercent
	mt.DailyLimit = input.DailyLimit
	mt.NoOvernightSlots = input.NoOvernightSlots
	mt.AllowPublicReschedule = input.AllowPublicReschedule
	mt.UpdatedAt = now
}

func settingsRecord(admin string, input ScheduleSettingsInput, now time.Time) persistence.ScheduleSettings {
	return persistence.ScheduleSettings{
		AdminIdentity:     admin,
		PrimaryTimezone:   strings.TrimSpace(input.PrimaryTimezone),
		TravelModeEnabled: input.TravelModeEnabled,
		TravelTimezone:    strings.TrimSpace(input.TravelTimezone),
		TravelStartDate:   input.TravelStartDate,
		TravelEndDate:     input.TravelEndDate,
		GlobalUnavailable: input.GlobalUnavailable,
		UpdatedAt:         now,
	}
}

func mapMeetingTypeWriteError(slugField string, err error) error {
	if errors.Is(err, persistence.ErrDuplicate) {
		return fieldError(slugField, "is already taken")
	}
	return mapRepoError("save meeting type", err)
}

// sameWindows compares two rule sets ignoring order.
func sameWindows(a, b []WeeklyWindow) bool {
	if len(a) != len(b) {
		return false
	}
	less := func(x, y WeeklyWindow) int {
		if x.DayOfWeek != y.DayOfWeek {
			return x.DayOfWeek - y.DayOfWeek
		}
		if x.StartMinute != y.StartMinute {
			return x.StartMinute - y.StartMinute
		}
		return x.EndMinute - y.EndMinute
	}
	left := slices.Clone(a)
	right := slices.Clone(b)
	slices.SortFunc(left, less)
	slices.SortFunc(right, less)
	return slices.Equal(left, right)
}

// parseDates parses, sorts and deduplicates civil dates.
func parseDates(values []string) ([]timezone.Date, error) {
	dates := make([]timezone.Date, 0, len(values))
	for _, v := range values {
		d, err := timezone.ParseDate(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b timezone.Date) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		}
		return 0
	})
	return slices.Compact(dates), nil
}

// contiguousRuns splits sorted unique dates into runs of consecutive days.
func contiguousRuns(dates []timezone.Date) [][]timezone.Date {
	var runs [][]timezone.Date
	for _, d := range dates {
		if n := len(runs); n > 0 && runs[n-1][len(runs[n-1])-1].AddDays(1) == d {
			runs[n-1] = append(runs[n-1], d)
			continue
		}
		runs = append(runs, []timezone.Date{d})
	}
	return runs
}

func effectiveZoneOf(settings *persistence.ScheduleSettings, fallback string, date timezone.Date) string {
	return availability.EffectiveZone(settingsOf(settings), fallback, date)
}
