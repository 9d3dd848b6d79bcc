package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/example/lesson-scheduler/internal/availability"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/presentation"
	"github.com/example/lesson-scheduler/internal/timezone"
)

var tracer = otel.Tracer("github.com/example/lesson-scheduler/internal/application")

// Repositories is the storage surface the services need.
type Repositories interface {
	persistence.MeetingTypeRepository
	persistence.BlackoutRepository
	persistence.ScheduleSettingsRepository
	persistence.BookingRepository
}

// Dependencies bundles the collaborators shared by every service.
type Dependencies struct {
	Store    Repositories
	Notifier BookingNotifier
	// IDGenerator defaults to random UUIDs.
	IDGenerator func() string
	// TokenGenerator defaults to 32 random bytes in hex.
	TokenGenerator func() string
	Now            func() time.Time
	Logger         *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.IDGenerator == nil {
		d.IDGenerator = uuid.NewString
	}
	if d.TokenGenerator == nil {
		d.TokenGenerator = randomToken
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = defaultLogger(d.Logger)
	return d
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// loadMargin widens every bulk read so that neighbouring-day rules and
// buffered bookings are visible to the generator in any timezone.
const loadMargin = 3

// ruleSet is one bulk read of everything the generator needs for a meeting type.
type ruleSet struct {
	meetingType     persistence.MeetingType
	availability    []persistence.WeeklyRule
	weeklyBlackouts []persistence.WeeklyRule
	blackouts       []persistence.Blackout
	bookings        []persistence.Booking
	settings        *persistence.ScheduleSettings
}

// slotEngine loads rule sets and runs the generator. It is shared by the read
// path and the booking coordinator so both apply identical rules.
type slotEngine struct {
	store Repositories
	now   func() time.Time
}

// resolveMeetingType accepts either an id or a slug.
func (e *slotEngine) resolveMeetingType(ctx context.Context, ref string) (persistence.MeetingType, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return persistence.MeetingType{}, fieldError("meeting_type", "is required")
	}
	mt, err := e.store.GetMeetingType(ctx, ref)
	if errors.Is(err, persistence.ErrNotFound) {
		mt, err = e.store.GetMeetingTypeBySlug(ctx, ref)
	}
	if err != nil {
		return persistence.MeetingType{}, mapRepoError("load meeting type", err)
	}
	return mt, nil
}

// load reads the rule set for dates [from, to] concurrently.
func (e *slotEngine) load(ctx context.Context, mt persistence.MeetingType, from, to timezone.Date) (ruleSet, error) {
	ctx, span := tracer.Start(ctx, "slotEngine.load", trace.WithAttributes(
		attribute.String("meeting_type.id", mt.ID),
		attribute.String("range.from", from.String()),
		attribute.String("range.to", to.String()),
	))
	defer span.End()

	windowStart := timezone.LocalDateToUTC(from.AddDays(-loadMargin), 0, time.UTC)
	windowEnd := timezone.LocalDateToUTC(to.AddDays(loadMargin), 0, time.UTC)

	rs := ruleSet{meetingType: mt}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rules, err := e.store.ListWeeklyAvailability(gctx, mt.ID)
		rs.availability = rules
		return wrapLoad("weekly availability", err)
	})
	g.Go(func() error {
		rules, err := e.store.ListWeeklyBlackouts(gctx, mt.ID)
		rs.weeklyBlackouts = rules
		return wrapLoad("weekly blackouts", err)
	})
	g.Go(func() error {
		blackouts, err := e.store.ListBlackouts(gctx, mt.ID, windowStart, windowEnd)
		rs.blackouts = blackouts
		return wrapLoad("blackouts", err)
	})
	g.Go(func() error {
		bookings, err := e.store.ListActiveBookings(gctx, mt.ID, windowStart, windowEnd)
		rs.bookings = bookings
		return wrapLoad("bookings", err)
	})
	g.Go(func() error {
		settings, err := e.store.GetScheduleSettings(gctx, mt.AdminIdentity)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		if err != nil {
			return wrapLoad("schedule settings", err)
		}
		rs.settings = &settings
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return ruleSet{}, err
	}
	return rs, nil
}

func wrapLoad(what string, err error) error {
	if err == nil {
		return nil
	}
	return &InternalError{Op: "load " + what, Err: err}
}

// generateOptions narrows one generator run over a loaded rule set.
type generateOptions struct {
	start            timezone.Date
	days             int
	displayTimezone  string
	excludeBookingID string
}

func (e *slotEngine) generate(ctx context.Context, rs ruleSet, opts generateOptions) ([]availability.Day, error) {
	_, span := tracer.Start(ctx, "slotEngine.generate", trace.WithAttributes(
		attribute.String("meeting_type.id", rs.meetingType.ID),
		attribute.String("range.start", opts.start.String()),
		attribute.Int("range.days", opts.days),
	))
	defer span.End()

	req := availability.Request{
		Rules:            rulesOf(rs.meetingType),
		Availability:     windowsOf(rs.availability),
		WeeklyBlackouts:  windowsOf(rs.weeklyBlackouts),
		Blackouts:        make([]availability.Blackout, 0, len(rs.blackouts)),
		Bookings:         make([]availability.Booking, 0, len(rs.bookings)),
		Settings:         settingsOf(rs.settings),
		StartDate:        opts.start,
		Days:             opts.days,
		DisplayTimezone:  opts.displayTimezone,
		ExcludeBookingID: opts.excludeBookingID,
		Now:              e.now().UTC(),
	}
	for _, b := range rs.blackouts {
		req.Blackouts = append(req.Blackouts, availability.Blackout{Start: b.Start, End: b.End, AllDay: b.AllDay})
	}
	for _, b := range rs.bookings {
		req.Bookings = append(req.Bookings, availability.Booking{ID: b.ID, Start: b.Start, End: b.End})
	}

	days, err := availability.Generate(req)
	if err != nil {
		span.RecordError(err)
		return nil, generatorError(err)
	}
	span.SetAttributes(attribute.Int("slots.raw", availability.Count(days)))
	return days, nil
}

// generateAround returns raw slots for the UTC dates surrounding instant,
// which covers the local date of instant in every effective zone.
func (e *slotEngine) generateAround(ctx context.Context, rs ruleSet, instant time.Time, excludeBookingID string) ([]availability.Day, error) {
	center := timezone.DateOf(instant, time.UTC)
	return e.generate(ctx, rs, generateOptions{
		start:            center.AddDays(-1),
		days:             3,
		excludeBookingID: excludeBookingID,
	})
}

func generatorError(err error) error {
	switch {
	case errors.Is(err, availability.ErrInvalidRange):
		return fieldError("range", "is invalid")
	case errors.Is(err, availability.ErrInvalidZone):
		return fieldError("timezone", "must be a valid IANA timezone")
	case errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidRules),
		errors.Is(err, availability.ErrInvalidWindow):
		return fieldError("meeting_type", err.Error())
	}
	return &InternalError{Op: "generate slots", Err: err}
}

func rulesOf(mt persistence.MeetingType) availability.Rules {
	return availability.Rules{
		MeetingTypeID:       mt.ID,
		DurationMinutes:     mt.DurationMinutes,
		BufferBeforeMinutes: mt.BufferBeforeMinutes,
		BufferAfterMinutes:  mt.BufferAfterMinutes,
		MinNoticeMinutes:    mt.MinNoticeMinutes,
		MaxHorizonDays:      mt.MaxHorizonDays,
		DefaultTimezone:     mt.TimezoneDefault,
		NoOvernightSlots:    mt.NoOvernightSlots,
	}
}

func policyOf(mt persistence.MeetingType) presentation.Policy {
	return presentation.Policy{
		MeetingTypeID:      mt.ID,
		Mode:               presentation.Mode(mt.AvailabilityMode),
		BusyBufferPercent:  mt.BusyBufferPercent,
		BusyPatternVersion: mt.BusyPatternVersion,
		DailyLimit:         mt.DailyLimit,
	}
}

func windowsOf(rules []persistence.WeeklyRule) []availability.Window {
	out := make([]availability.Window, 0, len(rules))
	for _, r := range rules {
		out = append(out, availability.Window{DayOfWeek: r.DayOfWeek, StartMinute: r.StartMinute, EndMinute: r.EndMinute})
	}
	return out
}

func settingsOf(s *persistence.ScheduleSettings) *availability.Settings {
	if s == nil {
		return nil
	}
	start, _ := timezone.ParseDate(s.TravelStartDate)
	end, _ := timezone.ParseDate(s.TravelEndDate)
	return &availability.Settings{
		PrimaryTimezone:   s.PrimaryTimezone,
		TravelModeEnabled: s.TravelModeEnabled,
		TravelTimezone:    s.TravelTimezone,
		TravelStart:       start,
		TravelEnd:         end,
		GlobalUnavailable: s.GlobalUnavailable,
	}
}

// ------------------------------ Conversions ------------------------------

func toMeetingType(mt persistence.MeetingType) MeetingType {
	return MeetingType{
		ID:                    mt.ID,
		Slug:                  mt.Slug,
		Name:                  mt.Name,
		DurationMinutes:       mt.DurationMinutes,
		BufferBeforeMinutes:   mt.BufferBeforeMinutes,
		BufferAfterMinutes:    mt.BufferAfterMinutes,
		MinNoticeMinutes:      mt.MinNoticeMinutes,
		MaxHorizonDays:        mt.MaxHorizonDays,
		Timezone:              mt.TimezoneDefault,
		AvailabilityMode:      mt.AvailabilityMode,
		BusyBufferPercent:     mt.BusyBufferPercent,
		BusyPatternVersion:    mt.BusyPatternVersion,
		DailyLimit:            mt.DailyLimit,
		NoOvernightSlots:      mt.NoOvernightSlots,
		AllowPublicReschedule: mt.AllowPublicReschedule,
		AdminIdentity:         mt.AdminIdentity,
		CreatedAt:             mt.CreatedAt,
		UpdatedAt:             mt.UpdatedAt,
	}
}

func toWeeklyWindows(rules []persistence.WeeklyRule) []WeeklyWindow {
	out := make([]WeeklyWindow, 0, len(rules))
	for _, r := range rules {
		out = append(out, WeeklyWindow{DayOfWeek: r.DayOfWeek, StartMinute: r.StartMinute, EndMinute: r.EndMinute})
	}
	return out
}

func toScheduleSettings(s persistence.ScheduleSettings) ScheduleSettings {
	start, _ := timezone.ParseDate(s.TravelStartDate)
	end, _ := timezone.ParseDate(s.TravelEndDate)
	return ScheduleSettings{
		AdminIdentity:     s.AdminIdentity,
		PrimaryTimezone:   s.PrimaryTimezone,
		TravelModeEnabled: s.TravelModeEnabled,
		TravelTimezone:    s.TravelTimezone,
		TravelStartDate:   start,
		TravelEndDate:     end,
		GlobalUnavailable: s.GlobalUnavailable,
		UpdatedAt:         s.UpdatedAt,
	}
}

func toBlackout(b persistence.Blackout) Blackout {
	return Blackout{
		ID:            b.ID,
		MeetingTypeID: b.MeetingTypeID,
		Start:         b.Start,
		End:           b.End,
		AllDay:        b.AllDay,
		Note:          b.Note,
		CreatedAt:     b.CreatedAt,
	}
}

func toBooking(b persistence.Booking) Booking {
	return Booking{
		ID:            b.ID,
		MeetingTypeID: b.MeetingTypeID,
		Start:         b.Start,
		End:           b.End,
		Visitor: Visitor{
			Name:  b.VisitorName,
			Email: b.VisitorEmail,
			Note:  b.VisitorNote,
		},
		Status:      b.Status,
		PublicToken: b.PublicToken,
		Timezone:    b.BookingTimezone,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// requireOwner loads a meeting type and checks the admin owns it.
func requireOwner(ctx context.Context, store Repositories, admin, meetingTypeID string) (persistence.MeetingType, error) {
	if strings.TrimSpace(admin) == "" {
		return persistence.MeetingType{}, ErrUnauthenticated
	}
	mt, err := store.GetMeetingType(ctx, meetingTypeID)
	if err != nil {
		return persistence.MeetingType{}, mapRepoError("load meeting type", err)
	}
	if mt.AdminIdentity != admin {
		return persistence.MeetingType{}, ErrUnauthorized
	}
	return mt, nil
}
