package models

import (
	"fmt"
	"time"
)

// BookingStatus is the occupancy state of a booking.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus is the settlement state of a booking, independent of occupancy.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusActive: {BookingStatusCompleted, BookingStatusCancelled},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusCompleted, PaymentStatusCancelled},
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusActive, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further occupancy transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// CanTransitionTo checks the occupancy state machine.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further settlement transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

// CanTransitionTo checks the settlement state machine.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Booking represents a room reservation.
type Booking struct {
	ID              int64         `json:"id"`
	RoomID          int64         `json:"room_id"`
	UserID          int64         `json:"user_id"`
	Date            string        `json:"date"` // YYYY-MM-DD
	StartTime       string        `json:"time"` // HH:MM
	NumberOfPlayers int           `json:"number_of_players"`
	Status          BookingStatus `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentAmount   int64         `json:"payment_amount"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Version         int64         `json:"version"`
}

// IsActive reports whether the booking still occupies its slot.
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusActive
}

// IsOwnedBy reports whether userID made the booking.
func (b *Booking) IsOwnedBy(userID int64) bool {
	return b.UserID == userID
}

// SlotKey returns the lookup key of the slot the booking occupies.
func (b *Booking) SlotKey() SlotKey {
	return SlotKey{Date: b.Date, StartTime: b.StartTime}
}

// StartsAt returns the start instant of the booking in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := ParseDate(b.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return TimeOnDate(day, b.StartTime)
}

// EndsAt returns the instant the booked game finishes.
func (b *Booking) EndsAt(loc *time.Location, duration time.Duration) (time.Time, error) {
	start, err := b.StartsAt(loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	return start.Add(duration), nil
}

// ExpiryOutcome returns the statuses an elapsed active booking moves to:
// paid bookings complete, unpaid ones are cancelled together with the payment.
func (b *Booking) ExpiryOutcome() (BookingStatus, PaymentStatus) {
	if b.PaymentStatus == PaymentStatusCompleted {
		return BookingStatusCompleted, b.PaymentStatus
	}
	return BookingStatusCancelled, PaymentStatusCancelled
}
