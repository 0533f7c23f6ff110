package service

import (
	"context"

	"escaperoom/internal/database"
	"escaperoom/internal/models"
)

// RoomRepository is the read-only room catalog.
type RoomRepository interface {
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	ListRooms(ctx context.Context, activeOnly bool) ([]models.Room, error)
}

// BookingRepository persists bookings. CreateActiveBooking must be atomic
// with respect to other writers for the same slot.
type BookingRepository interface {
	CreateActiveBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	ListActiveInRange(ctx context.Context, roomID int64, from, to string) ([]models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64, status models.BookingStatus) ([]models.Booking, error)
	ListBookings(ctx context.Context) ([]models.Booking, error)
	UpdateBookingState(ctx context.Context, id, version int64, upd database.BookingUpdate) error
	DeleteBooking(ctx context.Context, id int64) error
}

// EventPublisher receives booking events after they are committed.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AvailabilityCache stores computed free slots. Lookup returns the key to
// Store under; the key changes whenever the room is invalidated, so a value
// computed before a write can never be served after it.
type AvailabilityCache interface {
	Lookup(ctx context.Context, roomID int64, from, to string) (key string, slots []models.Slot, ok bool)
	Store(ctx context.Context, key string, slots []models.Slot)
	Invalidate(ctx context.Context, roomID int64)
}
