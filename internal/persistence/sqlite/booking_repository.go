package sqlite

import (
	"context"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
)

const bookingColumns = `id, meeting_type_id, start_utc, end_utc, visitor_name, visitor_email, visitor_note,
	status, public_token, booking_timezone, created_at, updated_at`

// CreateBooking inserts a booking. A second booked row for the same meeting
// type and start is rejected by ux_bookings_active_slot.
func (s *Store) CreateBooking(ctx context.Context, b persistence.Booking) error {
	if b.ID == "" || b.PublicToken == "" || !b.Start.Before(b.End) {
		return persistence.ErrConstraintViolation
	}
	return s.retry.WithRetry(ctx, func() error {
		_, err := s.pool.DB().ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.MeetingTypeID, formatTime(b.Start), formatTime(b.End), b.VisitorName, b.VisitorEmail, b.VisitorNote,
			b.Status, b.PublicToken, b.BookingTimezone, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		)
		return err
	})
}

// GetBooking loads a booking by id regardless of status.
func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return s.scanBooking(row)
}

// GetBookingByToken loads a booking by its public management token.
func (s *Store) GetBookingByToken(ctx context.Context, token string) (persistence.Booking, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE public_token = ?`, token)
	return s.scanBooking(row)
}

// RescheduleBooking moves a booked row in place.
func (s *Store) RescheduleBooking(ctx context.Context, id string, start, end time.Time, bookingTimezone string, updatedAt time.Time) error {
	return s.retry.WithRetry(ctx, func() error {
		result, err := s.pool.DB().ExecContext(ctx, `
			UPDATE bookings SET start_utc = ?, end_utc = ?, booking_timezone = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			formatTime(start), formatTime(end), bookingTimezone, formatTime(updatedAt), id, persistence.BookingStatusBooked,
		)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// CancelBooking transitions a booked row to cancelled.
func (s *Store) CancelBooking(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	var changed bool
	err := s.retry.WithRetry(ctx, func() error {
		result, err := s.pool.DB().ExecContext(ctx, `
			UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			persistence.BookingStatusCancelled, formatTime(updatedAt), id, persistence.BookingStatusBooked,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		changed = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		return true, nil
	}

	var exists int
	if err := s.pool.DB().QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, s.mapper.MapError(err)
	}
	return false, nil
}

// ListActiveBookings returns booked rows overlapping [from, to).
func (s *Store) ListActiveBookings(ctx context.Context, meetingTypeID string, from, to time.Time) ([]persistence.Booking, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE meeting_type_id = ? AND status = ? AND start_utc < ? AND end_utc > ?
		ORDER BY start_utc, id`,
		meetingTypeID, persistence.BookingStatusBooked, formatTime(to), formatTime(from))
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	var out []persistence.Booking
	for rows.Next() {
		b, err := s.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, s.mapper.MapError(rows.Err())
}

// CountFutureBookings counts booked rows starting at or after the instant.
func (s *Store) CountFutureBookings(ctx context.Context, meetingTypeID string, after time.Time) (int, error) {
	var count int
	err := s.pool.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings WHERE meeting_type_id = ? AND status = ? AND start_utc >= ?`,
		meetingTypeID, persistence.BookingStatusBooked, formatTime(after),
	).Scan(&count)
	if err != nil {
		return 0, s.mapper.MapError(err)
	}
	return count, nil
}

func (s *Store) scanBooking(row rowScanner) (persistence.Booking, error) {
	var b persistence.Booking
	var start, end, created, updated string
	err := row.Scan(&b.ID, &b.MeetingTypeID, &start, &end, &b.VisitorName, &b.VisitorEmail, &b.VisitorNote,
		&b.Status, &b.PublicToken, &b.BookingTimezone, &created, &updated)
	if err != nil {
		return persistence.Booking{}, s.mapper.MapError(err)
	}
	if err := parseTimes(map[*time.Time]string{&b.Start: start, &b.End: end, &b.CreatedAt: created, &b.UpdatedAt: updated}); err != nil {
		return persistence.Booking{}, err
	}
	return b, nil
}
