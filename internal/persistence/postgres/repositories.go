package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/lesson-scheduler/internal/persistence"
)

const meetingTypeColumns = `id, slug, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
	min_notice_minutes, max_horizon_days, timezone_default, availability_mode, busy_buffer_percent,
	busy_pattern_version, daily_limit, no_overnight_slots, allow_public_reschedule, admin_identity,
	created_at, updated_at`

const bookingColumns = `id, meeting_type_id, start_utc, end_utc, visitor_name, visitor_email, visitor_note,
	status, public_token, booking_timezone, created_at, updated_at`

func (s *Store) CreateMeetingType(ctx context.Context, mt persistence.MeetingType) error {
	if mt.ID == "" || strings.TrimSpace(mt.Slug) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO meeting_types (`+meetingTypeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		mt.ID, mt.Slug, mt.Name, mt.DurationMinutes, mt.BufferBeforeMinutes, mt.BufferAfterMinutes,
		mt.MinNoticeMinutes, mt.MaxHorizonDays, mt.TimezoneDefault, mt.AvailabilityMode, mt.BusyBufferPercent,
		mt.BusyPatternVersion, mt.DailyLimit, mt.NoOvernightSlots, mt.AllowPublicReschedule, mt.AdminIdentity,
		mt.CreatedAt.UTC(), mt.UpdatedAt.UTC(),
	)
	return mapError(err)
}

func (s *Store) GetMeetingType(ctx context.Context, id string) (persistence.MeetingType, error) {
	return scanMeetingType(s.pool.QueryRow(ctx, `SELECT `+meetingTypeColumns+` FROM meeting_types WHERE id = $1`, id))
}

func (s *Store) GetMeetingTypeBySlug(ctx context.Context, slug string) (persistence.MeetingType, error) {
	return scanMeetingType(s.pool.QueryRow(ctx, `SELECT `+meetingTypeColumns+` FROM meeting_types WHERE slug = $1`, slug))
}

func (s *Store) ListMeetingTypes(ctx context.Context, adminIdentity string) ([]persistence.MeetingType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+meetingTypeColumns+` FROM meeting_types
		WHERE admin_identity = $1 ORDER BY name, id`, adminIdentity)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.MeetingType
	for rows.Next() {
		mt, err := scanMeetingType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, mapError(rows.Err())
}

func (s *Store) DeleteMeetingType(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meeting_types WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func (s *Store) BumpBusyPatternVersion(ctx context.Context, id string, updatedAt time.Time) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `UPDATE meeting_types
		SET busy_pattern_version = busy_pattern_version + 1, updated_at = $1
		WHERE id = $2 RETURNING busy_pattern_version`, updatedAt.UTC(), id).Scan(&version)
	if err != nil {
		return 0, mapError(err)
	}
	return version, nil
}

func (s *Store) SaveConfiguration(ctx context.Context, bundle persistence.ConfigurationBundle) error {
	mt := bundle.MeetingType
	if mt.ID == "" {
		return persistence.ErrConstraintViolation
	}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE meeting_types SET
				slug = $1, name = $2, duration_minutes = $3, buffer_before_minutes = $4, buffer_after_minutes = $5,
				min_notice_minutes = $6, max_horizon_days = $7, timezone_default = $8, availability_mode = $9,
				busy_buffer_percent = $10, busy_pattern_version = $11, daily_limit = $12, no_overnight_slots = $13,
				allow_public_reschedule = $14, updated_at = $15
			WHERE id = $16`,
			mt.Slug, mt.Name, mt.DurationMinutes, mt.BufferBeforeMinutes, mt.BufferAfterMinutes,
			mt.MinNoticeMinutes, mt.MaxHorizonDays, mt.TimezoneDefault, mt.AvailabilityMode,
			mt.BusyBufferPercent, mt.BusyPatternVersion, mt.DailyLimit, mt.NoOvernightSlots,
			mt.AllowPublicReschedule, mt.UpdatedAt.UTC(), mt.ID,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(tag); err != nil {
			return err
		}
		if err := replaceWeeklyRules(ctx, tx, "weekly_availability", mt.ID, bundle.Availability); err != nil {
			return err
		}
		if err := replaceWeeklyRules(ctx, tx, "weekly_blackouts", mt.ID, bundle.WeeklyBlackouts); err != nil {
			return err
		}
		if bundle.Settings != nil {
			return upsertSettings(ctx, tx, *bundle.Settings)
		}
		return nil
	})
	return mapError(err)
}

func replaceWeeklyRules(ctx context.Context, tx pgx.Tx, table, meetingTypeID string, rules []persistence.WeeklyRule) error {
	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE meeting_type_id = $1`, meetingTypeID); err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(`INSERT INTO `+table+`
			(id, meeting_type_id, day_of_week, start_minute, end_minute, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rule.ID, meetingTypeID, rule.DayOfWeek, rule.StartMinute, rule.EndMinute, rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Store) ListWeeklyAvailability(ctx context.Context, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	return s.listWeeklyRules(ctx, "weekly_availability", meetingTypeID)
}

func (s *Store) ListWeeklyBlackouts(ctx context.Context, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	return s.listWeeklyRules(ctx, "weekly_blackouts", meetingTypeID)
}

func (s *Store) listWeeklyRules(ctx context.Context, table, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, meeting_type_id, day_of_week, start_minute, end_minute, created_at, updated_at
		FROM `+table+` WHERE meeting_type_id = $1 ORDER BY day_of_week, start_minute, end_minute`, meetingTypeID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.WeeklyRule
	for rows.Next() {
		var rule persistence.WeeklyRule
		if err := rows.Scan(&rule.ID, &rule.MeetingTypeID, &rule.DayOfWeek, &rule.StartMinute, &rule.EndMinute,
			&rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, rule)
	}
	return out, mapError(rows.Err())
}

func (s *Store) CreateBlackouts(ctx context.Context, blackouts []persistence.Blackout) error {
	if len(blackouts) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range blackouts {
			if b.ID == "" || !b.Start.Before(b.End) {
				return persistence.ErrConstraintViolation
			}
			batch.Queue(`INSERT INTO blackouts (id, meeting_type_id, start_utc, end_utc, all_day, note, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				b.ID, b.MeetingTypeID, b.Start.UTC(), b.End.UTC(), b.AllDay, b.Note, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapError(err)
}

func (s *Store) DeleteBlackout(ctx context.Context, meetingTypeID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blackouts WHERE id = $1 AND meeting_type_id = $2`, id, meetingTypeID)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func (s *Store) ListBlackouts(ctx context.Context, meetingTypeID string, from, to time.Time) ([]persistence.Blackout, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, meeting_type_id, start_utc, end_utc, all_day, note, created_at, updated_at
		FROM blackouts WHERE meeting_type_id = $1 AND start_utc < $2 AND end_utc > $3
		ORDER BY start_utc, id`, meetingTypeID, to.UTC(), from.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.Blackout
	for rows.Next() {
		var b persistence.Blackout
		if err := rows.Scan(&b.ID, &b.MeetingTypeID, &b.Start, &b.End, &b.AllDay, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		b.Start, b.End = b.Start.UTC(), b.End.UTC()
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func (s *Store) GetScheduleSettings(ctx context.Context, adminIdentity string) (persistence.ScheduleSettings, error) {
	var st persistence.ScheduleSettings
	err := s.pool.QueryRow(ctx, `SELECT admin_identity, primary_timezone, travel_mode_enabled, travel_timezone,
			travel_start_date, travel_end_date, global_unavailable, updated_at
		FROM schedule_settings WHERE admin_identity = $1`, adminIdentity,
	).Scan(&st.AdminIdentity, &st.PrimaryTimezone, &st.TravelModeEnabled, &st.TravelTimezone,
		&st.TravelStartDate, &st.TravelEndDate, &st.GlobalUnavailable, &st.UpdatedAt)
	if err != nil {
		return persistence.ScheduleSettings{}, mapError(err)
	}
	return st, nil
}

func (s *Store) UpsertScheduleSettings(ctx context.Context, settings persistence.ScheduleSettings) error {
	return mapError(s.withTx(ctx, func(tx pgx.Tx) error {
		return upsertSettings(ctx, tx, settings)
	}))
}

func upsertSettings(ctx context.Context, tx pgx.Tx, st persistence.ScheduleSettings) error {
	if st.AdminIdentity == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := tx.Exec(ctx, `INSERT INTO schedule_settings (admin_identity, primary_timezone, travel_mode_enabled,
			travel_timezone, travel_start_date, travel_end_date, global_unavailable, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (admin_identity) DO UPDATE SET
			primary_timezone = EXCLUDED.primary_timezone,
			travel_mode_enabled = EXCLUDED.travel_mode_enabled,
			travel_timezone = EXCLUDED.travel_timezone,
			travel_start_date = EXCLUDED.travel_start_date,
			travel_end_date = EXCLUDED.travel_end_date,
			global_unavailable = EXCLUDED.global_unavailable,
			updated_at = EXCLUDED.updated_at`,
		st.AdminIdentity, st.PrimaryTimezone, st.TravelModeEnabled, st.TravelTimezone,
		st.TravelStartDate, st.TravelEndDate, st.GlobalUnavailable, st.UpdatedAt.UTC(),
	)
	return err
}

func (s *Store) CreateBooking(ctx context.Context, b persistence.Booking) error {
	if b.ID == "" || b.PublicToken == "" || !b.Start.Before(b.End) {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.MeetingTypeID, b.Start.UTC(), b.End.UTC(), b.VisitorName, b.VisitorEmail, b.VisitorNote,
		b.Status, b.PublicToken, b.BookingTimezone, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	return mapError(err)
}

func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (s *Store) GetBookingByToken(ctx context.Context, token string) (persistence.Booking, error) {
	return scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE public_token = $1`, token))
}

func (s *Store) RescheduleBooking(ctx context.Context, id string, start, end time.Time, bookingTimezone string, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bookings SET start_utc = $1, end_utc = $2, booking_timezone = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		start.UTC(), end.UTC(), bookingTimezone, updatedAt.UTC(), id, persistence.BookingStatusBooked)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func (s *Store) CancelBooking(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		persistence.BookingStatusCancelled, updatedAt.UTC(), id, persistence.BookingStatusBooked)
	if err != nil {
		return false, mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM bookings WHERE id = $1`, id).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return false, nil
}

func (s *Store) ListActiveBookings(ctx context.Context, meetingTypeID string, from, to time.Time) ([]persistence.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE meeting_type_id = $1 AND status = $2 AND start_utc < $3 AND end_utc > $4
		ORDER BY start_utc, id`, meetingTypeID, persistence.BookingStatusBooked, to.UTC(), from.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []persistence.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func (s *Store) CountFutureBookings(ctx context.Context, meetingTypeID string, after time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings
		WHERE meeting_type_id = $1 AND status = $2 AND start_utc >= $3`,
		meetingTypeID, persistence.BookingStatusBooked, after.UTC()).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func scanMeetingType(row pgx.Row) (persistence.MeetingType, error) {
	var mt persistence.MeetingType
	err := row.Scan(
		&mt.ID, &mt.Slug, &mt.Name, &mt.DurationMinutes, &mt.BufferBeforeMinutes, &mt.BufferAfterMinutes,
		&mt.MinNoticeMinutes, &mt.MaxHorizonDays, &mt.TimezoneDefault, &mt.AvailabilityMode, &mt.BusyBufferPercent,
		&mt.BusyPatternVersion, &mt.DailyLimit, &mt.NoOvernightSlots, &mt.AllowPublicReschedule, &mt.AdminIdentity,
		&mt.CreatedAt, &mt.UpdatedAt,
	)
	if err != nil {
		return persistence.MeetingType{}, mapError(err)
	}
	return mt, nil
}

func scanBooking(row pgx.Row) (persistence.Booking, error) {
	var b persistence.Booking
	err := row.Scan(&b.ID, &b.MeetingTypeID, &b.Start, &b.End, &b.VisitorName, &b.VisitorEmail, &b.VisitorNote,
		&b.Status, &b.PublicToken, &b.BookingTimezone, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return persistence.Booking{}, mapError(err)
	}
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	return b, nil
}
