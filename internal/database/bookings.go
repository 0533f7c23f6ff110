package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escaperoom/internal/models"
)

const bookingColumns = `id, room_id, user_id, date, start_time, number_of_players,
	status, payment_status, payment_amount, payment_method, created_at, updated_at, version`

func scanBooking(s interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	if err := s.Scan(
		&b.ID, &b.RoomID, &b.UserID, &b.Date, &b.StartTime, &b.NumberOfPlayers,
		&b.Status, &b.PaymentStatus, &b.PaymentAmount, &b.PaymentMethod,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// CreateActiveBooking inserts b as an active booking after checking, inside
// the same write transaction, that its slot is free. ErrSlotTaken is returned
// when another active booking holds the slot. On success b gets its ID,
// timestamps and version.
func (db *DB) CreateActiveBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE room_id = ? AND date = ? AND start_time = ? AND status = ?`,
		b.RoomID, b.Date, b.StartTime, models.BookingStatusActive,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if taken > 0 {
		return ErrSlotTaken
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (
			room_id, user_id, date, start_time, number_of_players,
			status, payment_status, payment_amount, payment_method,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.RoomID, b.UserID, b.Date, b.StartTime, b.NumberOfPlayers,
		models.BookingStatusActive, models.PaymentStatusPending, b.PaymentAmount, "",
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("commit: %w", err)
	}

	b.ID = id
	b.Status = models.BookingStatusActive
	b.PaymentStatus = models.PaymentStatusPending
	b.PaymentMethod = ""
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1

	db.logger.Debug().Int64("booking_id", id).Int64("room_id", b.RoomID).
		Str("date", b.Date).Str("time", b.StartTime).Msg("Booking inserted")
	return nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// ListActiveBookings returns every active booking, oldest slot first.
func (db *DB) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = ?
		ORDER BY date, start_time, id`,
		models.BookingStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	return bookings, nil
}

// ListActiveInRange returns active bookings of a room whose date lies in
// [from, to]; dates are YYYY-MM-DD so string comparison is chronological.
func (db *DB) ListActiveInRange(ctx context.Context, roomID int64, from, to string) ([]models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE room_id = ? AND status = ? AND date BETWEEN ? AND ?
		ORDER BY date, start_time`,
		roomID, models.BookingStatusActive, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list room %d bookings: %w", roomID, err)
	}
	return bookings, nil
}

// ListUserBookings returns a user's bookings with the given status. Active
// bookings come newest-created first; terminal ones by slot, latest first.
func (db *DB) ListUserBookings(ctx context.Context, userID int64, status models.BookingStatus) ([]models.Booking, error) {
	order := `created_at DESC, id DESC`
	if status.IsTerminal() {
		order = `date DESC, start_time DESC, id DESC`
	}

	bookings, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = ? AND status = ?
		ORDER BY `+order,
		userID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("list user %d bookings: %w", userID, err)
	}
	return bookings, nil
}

// ListBookings returns all bookings, newest-created first.
func (db *DB) ListBookings(ctx context.Context) ([]models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// BookingUpdate is the state written by UpdateBookingState.
type BookingUpdate struct {
	Status        models.BookingStatus
	PaymentStatus models.PaymentStatus
	PaymentAmount int64
	PaymentMethod string
}

// UpdateBookingState writes upd if the stored version still equals version
// and bumps the version. ErrConcurrentModification is returned when another
// writer got there first, ErrBookingNotFound when the row is gone.
func (db *DB) UpdateBookingState(ctx context.Context, id, version int64, upd BookingUpdate) error {
	result, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, payment_status = ?, payment_amount = ?, payment_method = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		upd.Status, upd.PaymentStatus, upd.PaymentAmount, upd.PaymentMethod,
		time.Now().UTC(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("check booking %d: %w", id, err)
		}
		return ErrConcurrentModification
	}

	return nil
}

// DeleteBooking removes a booking permanently.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}
