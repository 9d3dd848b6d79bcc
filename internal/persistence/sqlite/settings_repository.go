package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

// GetScheduleSettings loads the admin's settings row. Admins that never saved
// settings get ErrNotFound.
func (s *Store) GetScheduleSettings(ctx context.Context, adminIdentity string) (persistence.ScheduleSettings, error) {
	var st persistence.ScheduleSettings
	var updated string
	err := s.pool.DB().QueryRowContext(ctx, `
		SELECT admin_identity, primary_timezone, travel_mode_enabled, travel_timezone,
			travel_start_date, travel_end_date, global_unavailable, updated_at
		FROM schedule_settings WHERE admin_identity = ?`, adminIdentity,
	).Scan(&st.AdminIdentity, &st.PrimaryTimezone, &st.TravelModeEnabled, &st.TravelTimezone,
		&st.TravelStartDate, &st.TravelEndDate, &st.GlobalUnavailable, &updated)
	if err != nil {
		return persistence.ScheduleSettings{}, s.mapper.MapError(err)
	}
	if err := parseTimes(map[*time.Time]string{&st.UpdatedAt: updated}); err != nil {
		return persistence.ScheduleSettings{}, err
	}
	return st, nil
}

// UpsertScheduleSettings creates or replaces the admin's settings row.
func (s *Store) UpsertScheduleSettings(ctx context.Context, settings persistence.ScheduleSettings) error {
	return s.mapper.MapError(s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return upsertSettings(ctx, tx, settings)
	}))
}

func upsertSettings(ctx context.Context, tx *sql.Tx, st persistence.ScheduleSettings) error {
	if st.AdminIdentity == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_settings (admin_identity, primary_timezone, travel_mode_enabled,
			travel_timezone, travel_start_date, travel_end_date, global_unavailable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (admin_identity) DO UPDATE SET
			primary_timezone = excluded.primary_timezone,
			travel_mode_enabled = excluded.travel_mode_enabled,
			travel_timezone = excluded.travel_timezone,
			travel_start_date = excluded.travel_start_date,
			travel_end_date = excluded.travel_end_date,
			global_unavailable = excluded.global_unavailable,
			updated_at = excluded.updated_at`,
		st.AdminIdentity, st.PrimaryTimezone, st.TravelModeEnabled, st.TravelTimezone,
		st.TravelStartDate, st.TravelEndDate, st.GlobalUnavailable, formatTime(st.UpdatedAt),
	)
	return err
}
