package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

const meetingTypeColumns = `id, slug, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
	min_notice_minutes, max_horizon_days, timezone_default, availability_mode, busy_buffer_percent,
	busy_pattern_version, daily_limit, no_overnight_slots, allow_public_reschedule, admin_identity,
	created_at, updated_at`

// CreateMeetingType inserts a meeting type without any rules.
func (s *Store) CreateMeetingType(ctx context.Context, mt persistence.MeetingType) error {
	if mt.ID == "" || strings.TrimSpace(mt.Slug) == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO meeting_types (` + meetingTypeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.pool.DB().ExecContext(ctx, query,
		mt.ID, mt.Slug, mt.Name, mt.DurationMinutes, mt.BufferBeforeMinutes, mt.BufferAfterMinutes,
		mt.MinNoticeMinutes, mt.MaxHorizonDays, mt.TimezoneDefault, mt.AvailabilityMode, mt.BusyBufferPercent,
		mt.BusyPatternVersion, mt.DailyLimit, mt.NoOvernightSlots, mt.AllowPublicReschedule, mt.AdminIdentity,
		formatTime(mt.CreatedAt), formatTime(mt.UpdatedAt),
	)
	return s.mapper.MapError(err)
}

// GetMeetingType loads a meeting type by id.
func (s *Store) GetMeetingType(ctx context.Context, id string) (persistence.MeetingType, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+meetingTypeColumns+` FROM meeting_types WHERE id = ?`, id)
	return s.scanMeetingType(row)
}

// GetMeetingTypeBySlug loads a meeting type by its unique slug.
func (s *Store) GetMeetingTypeBySlug(ctx context.Context, slug string) (persistence.MeetingType, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+meetingTypeColumns+` FROM meeting_types WHERE slug = ?`, slug)
	return s.scanMeetingType(row)
}

// ListMeetingTypes returns the admin's meeting types ordered by name.
func (s *Store) ListMeetingTypes(ctx context.Context, adminIdentity string) ([]persistence.MeetingType, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT `+meetingTypeColumns+` FROM meeting_types WHERE admin_identity = ? ORDER BY name, id`, adminIdentity)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.MeetingType
	for rows.Next() {
		mt, err := s.scanMeetingType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, s.mapper.MapError(rows.Err())
}

// DeleteMeetingType removes the meeting type; dependent rows cascade.
func (s *Store) DeleteMeetingType(ctx context.Context, id string) error {
	result, err := s.pool.DB().ExecContext(ctx, `DELETE FROM meeting_types WHERE id = ?`, id)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return requireAffected(result)
}

// BumpBusyPatternVersion increments the busy pattern version and returns the new value.
func (s *Store) BumpBusyPatternVersion(ctx context.Context, id string, updatedAt time.Time) (int64, error) {
	var version int64
	err := s.pool.DB().QueryRowContext(ctx,
		`UPDATE meeting_types SET busy_pattern_version = busy_pattern_version + 1, updated_at = ?
		 WHERE id = ? RETURNING busy_pattern_version`,
		formatTime(updatedAt), id,
	).Scan(&version)
	if err != nil {
		return 0, s.mapper.MapError(err)
	}
	return version, nil
}

// SaveConfiguration writes the bundle in a single transaction so readers
// never observe a half-replaced rule set.
func (s *Store) SaveConfiguration(ctx context.Context, bundle persistence.ConfigurationBundle) error {
	mt := bundle.MeetingType
	if mt.ID == "" {
		return persistence.ErrConstraintViolation
	}

	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE meeting_types SET
				slug = ?, name = ?, duration_minutes = ?, buffer_before_minutes = ?, buffer_after_minutes = ?,
				min_notice_minutes = ?, max_horizon_days = ?, timezone_default = ?, availability_mode = ?,
				busy_buffer_percent = ?, busy_pattern_version = ?, daily_limit = ?, no_overnight_slots = ?,
				allow_public_reschedule = ?, updated_at = ?
			WHERE id = ?`,
			mt.Slug, mt.Name, mt.DurationMinutes, mt.BufferBeforeMinutes, mt.BufferAfterMinutes,
			mt.MinNoticeMinutes, mt.MaxHorizonDays, mt.TimezoneDefault, mt.AvailabilityMode,
			mt.BusyBufferPercent, mt.BusyPatternVersion, mt.DailyLimit, mt.NoOvernightSlots,
			mt.AllowPublicReschedule, formatTime(mt.UpdatedAt), mt.ID,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(result); err != nil {
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
	return s.mapper.MapError(err)
}

func replaceWeeklyRules(ctx context.Context, tx *sql.Tx, table, meetingTypeID string, rules []persistence.WeeklyRule) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE meeting_type_id = ?`, meetingTypeID); err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+`
		(id, meeting_type_id, day_of_week, start_minute, end_minute, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rule := range rules {
		if _, err := stmt.ExecContext(ctx, rule.ID, meetingTypeID, rule.DayOfWeek, rule.StartMinute, rule.EndMinute,
			formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt)); err != nil {
			return err
		}
	}
	return nil
}

// ListWeeklyAvailability returns the meeting type's availability windows.
func (s *Store) ListWeeklyAvailability(ctx context.Context, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	return s.listWeeklyRules(ctx, "weekly_availability", meetingTypeID)
}

// ListWeeklyBlackouts returns the meeting type's recurring exclusions.
func (s *Store) ListWeeklyBlackouts(ctx context.Context, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	return s.listWeeklyRules(ctx, "weekly_blackouts", meetingTypeID)
}

func (s *Store) listWeeklyRules(ctx context.Context, table, meetingTypeID string) ([]persistence.WeeklyRule, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT id, meeting_type_id, day_of_week, start_minute, end_minute, created_at, updated_at
		FROM `+table+` WHERE meeting_type_id = ? ORDER BY day_of_week, start_minute, end_minute`, meetingTypeID)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.WeeklyRule
	for rows.Next() {
		var rule persistence.WeeklyRule
		var created, updated string
		if err := rows.Scan(&rule.ID, &rule.MeetingTypeID, &rule.DayOfWeek, &rule.StartMinute, &rule.EndMinute, &created, &updated); err != nil {
			return nil, s.mapper.MapError(err)
		}
		if err := parseTimes(map[*time.Time]string{&rule.CreatedAt: created, &rule.UpdatedAt: updated}); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, s.mapper.MapError(rows.Err())
}

func (s *Store) scanMeetingType(row rowScanner) (persistence.MeetingType, error) {
	var mt persistence.MeetingType
	var created, updated string
	err := row.Scan(
		&mt.ID, &mt.Slug, &mt.Name, &mt.DurationMinutes, &mt.BufferBeforeMinutes, &mt.BufferAfterMinutes,
		&mt.MinNoticeMinutes, &mt.MaxHorizonDays, &mt.TimezoneDefault, &mt.AvailabilityMode, &mt.BusyBufferPercent,
		&mt.BusyPatternVersion, &mt.DailyLimit, &mt.NoOvernightSlots, &mt.AllowPublicReschedule, &mt.AdminIdentity,
		&created, &updated,
	)
	if err != nil {
		return persistence.MeetingType{}, s.mapper.MapError(err)
	}
	if err := parseTimes(map[*time.Time]string{&mt.CreatedAt: created, &mt.UpdatedAt: updated}); err != nil {
		return persistence.MeetingType{}, err
	}
	return mt, nil
}
