package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"escaperoom/internal/database"
	"escaperoom/internal/events"
	"escaperoom/internal/metrics"
	"escaperoom/internal/models"
)

// Attempts per booking when a concurrent writer keeps bumping its version.
const maxSweepAttempts = 3

// SweepFailure describes one booking the sweep could not close out.
type SweepFailure struct {
	BookingID int64  `json:"booking_id"`
	Error     string `json:"error"`
}

// SweepResult summarizes one expiration sweep.
type SweepResult struct {
	Checked   int            `json:"checked"`
	Completed int            `json:"completed"`
	Cancelled int            `json:"cancelled"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Failures  []SweepFailure `json:"failures,omitempty"`
}

// Transitioned is the number of bookings the sweep moved to a terminal state.
func (r SweepResult) Transitioned() int {
	return r.Completed + r.Cancelled
}

var errNoLongerActive = errors.New("booking is no longer active")

// SweepExpired closes out every active booking whose game ended at or before
// now: paid bookings complete, unpaid ones are cancelled along with their
// payment. Bookings are processed one by one and committed individually, so a
// failure never undoes other transitions; failures are reported in the result
// and as an error wrapping ErrPartialFailure. Running it twice with the same
// now changes nothing the second time.
func (s *BookingService) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	// A started sweep runs to completion.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(started)) }()

	var result SweepResult

	active, err := s.bookings.ListActiveBookings(ctx)
	if err != nil {
		return result, fmt.Errorf("load active bookings: %w", err)
	}

	loc := s.generator.Location()
	rooms := make(map[int64]*models.Room)
	var errs []error

	fail := func(id int64, err error) {
		result.Failed++
		result.Failures = append(result.Failures, SweepFailure{BookingID: id, Error: err.Error()})
		errs = append(errs, fmt.Errorf("booking %d: %w", id, err))
	}

	for i := range active {
		b := active[i]
		result.Checked++

		room, ok := rooms[b.RoomID]
		if !ok {
			room, err = s.rooms.GetRoom(ctx, b.RoomID)
			if err != nil {
				fail(b.ID, fmt.Errorf("load room %d: %w", b.RoomID, err))
				continue
			}
			rooms[b.RoomID] = room
		}

		end, err := b.EndsAt(loc, room.SlotDuration())
		if err != nil {
			fail(b.ID, err)
			continue
		}
		if end.After(now) {
			continue
		}

		status, err := s.expire(ctx, &b)
		switch {
		case errors.Is(err, errNoLongerActive):
			result.Skipped++
			continue
		case err != nil:
			fail(b.ID, err)
			continue
		}

		if status == models.BookingStatusCompleted {
			result.Completed++
		} else {
			result.Cancelled++
		}
		s.publish(events.BookingExpired, &b, room, 0)

		s.logger.Info().
			Int64("booking_id", b.ID).
			Int64("room_id", b.RoomID).
			Int64("user_id", b.UserID).
			Str("status", string(status)).
			Str("payment_status", string(b.PaymentStatus)).
			Msg("expired booking closed")
	}

	metrics.AddSweepTransitions("completed", result.Completed)
	metrics.AddSweepTransitions("cancelled", result.Cancelled)
	metrics.AddSweepTransitions("failed", result.Failed)

	s.logger.Info().
		Int("checked", result.Checked).
		Int("completed", result.Completed).
		Int("cancelled", result.Cancelled).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("expiration sweep finished")

	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %d of %d bookings failed: %w",
			ErrPartialFailure, result.Failed, result.Checked, errors.Join(errs...))
	}
	return result, nil
}

// expire moves b to its expiry outcome with a version check. When another
// writer changed the booking in between, it is re-read and re-evaluated.
func (s *BookingService) expire(ctx context.Context, b *models.Booking) (models.BookingStatus, error) {
	for attempt := 1; ; attempt++ {
		status, payment := b.ExpiryOutcome()
		upd := database.BookingUpdate{
			Status:        status,
			PaymentStatus: payment,
			PaymentAmount: b.PaymentAmount,
			PaymentMethod: b.PaymentMethod,
		}

		err := s.bookings.UpdateBookingState(ctx, b.ID, b.Version, upd)
		if err == nil {
			b.Status = status
			b.PaymentStatus = payment
			b.Version++
			return status, nil
		}
		if errors.Is(err, database.ErrBookingNotFound) {
			return "", errNoLongerActive
		}
		if !errors.Is(err, database.ErrConcurrentModification) {
			return "", err
		}
		if attempt == maxSweepAttempts {
			return "", fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		fresh, err := s.bookings.GetBooking(ctx, b.ID)
		if errors.Is(err, database.ErrBookingNotFound) {
			return "", errNoLongerActive
		}
		if err != nil {
			return "", err
		}
		if !fresh.IsActive() {
			return "", errNoLongerActive
		}
		*b = *fresh
	}
}
