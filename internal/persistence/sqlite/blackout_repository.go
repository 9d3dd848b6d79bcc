package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

// CreateBlackouts inserts every blackout or none of them.
func (s *Store) CreateBlackouts(ctx context.Context, blackouts []persistence.Blackout) error {
	if len(blackouts) == 0 {
		return nil
	}
	for _, b := range blackouts {
		if b.ID == "" || !b.Start.Before(b.End) {
			return persistence.ErrConstraintViolation
		}
	}

	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO blackouts
			(id, meeting_type_id, start_utc, end_utc, all_day, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range blackouts {
			if _, err := stmt.ExecContext(ctx, b.ID, b.MeetingTypeID, formatTime(b.Start), formatTime(b.End),
				b.AllDay, b.Note, formatTime(b.CreatedAt), formatTime(b.UpdatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	return s.mapper.MapError(err)
}

// DeleteBlackout removes one blackout of the meeting type.
func (s *Store) DeleteBlackout(ctx context.Context, meetingTypeID, id string) error {
	result, err := s.pool.DB().ExecContext(ctx,
		`DELETE FROM blackouts WHERE id = ? AND meeting_type_id = ?`, id, meetingTypeID)
	if err != nil {
		return s.mapper.MapError(err)
	}
	return requireAffected(result)
}

// ListBlackouts returns blackouts overlapping [from, to).
func (s *Store) ListBlackouts(ctx context.Context, meetingTypeID string, from, to time.Time) ([]persistence.Blackout, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT id, meeting_type_id, start_utc, end_utc, all_day, note, created_at, updated_at
		FROM blackouts WHERE meeting_type_id = ? AND start_utc < ? AND end_utc > ?
		ORDER BY start_utc, id`,
		meetingTypeID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Blackout
	for rows.Next() {
		var b persistence.Blackout
		var start, end, created, updated string
		if err := rows.Scan(&b.ID, &b.MeetingTypeID, &start, &end, &b.AllDay, &b.Note, &created, &updated); err != nil {
			return nil, s.mapper.MapError(err)
		}
		if err := parseTimes(map[*time.Time]string{&b.Start: start, &b.End: end, &b.CreatedAt: created, &b.UpdatedAt: updated}); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, s.mapper.MapError(rows.Err())
}
