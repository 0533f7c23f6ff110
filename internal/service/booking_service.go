// Package service implements the reservation engine: availability, the
// booking lifecycle and the expiration sweep.
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
	"escaperoom/internal/slots"

	"github.com/rs/zerolog"
)

const defaultMaxRangeDays = 90

type BookingService struct {
	rooms        RoomRepository
	bookings     BookingRepository
	generator    *slots.Generator
	cache        AvailabilityCache
	events       EventPublisher
	maxRangeDays int
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewBookingService(rooms RoomRepository, bookings BookingRepository, generator *slots.Generator, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking_service").Logger()
	return &BookingService{
		rooms:        rooms,
		bookings:     bookings,
		generator:    generator,
		maxRangeDays: defaultMaxRangeDays,
		now:          time.Now,
		logger:       &l,
	}
}

// UseCache enables the availability cache.
func (s *BookingService) UseCache(c AvailabilityCache) {
	s.cache = c
}

// UseEvents publishes booking events to p.
func (s *BookingService) UseEvents(p EventPublisher) {
	s.events = p
}

// SetMaxRangeDays limits the date span of availability queries.
func (s *BookingService) SetMaxRangeDays(days int) {
	if days > 0 {
		s.maxRangeDays = days
	}
}

// SetClock replaces the time source; used by tests.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

// ListRooms returns the rooms open for booking.
func (s *BookingService) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx, true)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

func (s *BookingService) activeRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, database.ErrRoomNotFound) {
		return nil, notFoundf("room %d", roomID)
	}
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, notFoundf("room %d is not open for booking", roomID)
	}
	return room, nil
}

// AvailableSlots returns the free slots of a room between startDate and
// endDate (inclusive, YYYY-MM-DD) in chronological order. The result is a
// snapshot; CreateBooking re-checks the slot.
func (s *BookingService) AvailableSlots(ctx context.Context, roomID int64, startDate, endDate string) ([]models.Slot, error) {
	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	loc := s.generator.Location()
	from, err := models.ParseDate(startDate, loc)
	if err != nil {
		return nil, invalidf("start_date: %v", err)
	}
	to, err := models.ParseDate(endDate, loc)
	if err != nil {
		return nil, invalidf("end_date: %v", err)
	}
	if to.Before(from) {
		return nil, invalidf("end_date %s is before start_date %s", endDate, startDate)
	}
	if to.AddDate(0, 0, -s.maxRangeDays+1).After(from) {
		return nil, invalidf("date range exceeds %d days", s.maxRangeDays)
	}

	now := s.now()
	fromKey := from.Format(models.DateLayout)
	toKey := to.Format(models.DateLayout)

	var cacheKey string
	if s.cache != nil {
		key, cached, ok := s.cache.Lookup(ctx, roomID, fromKey, toKey)
		metrics.IncCacheLookup(ok)
		if ok {
			return dropStarted(cached, now), nil
		}
		cacheKey = key
	}

	candidates := s.generator.Generate(room, from, to, now)
	booked, err := s.bookings.ListActiveInRange(ctx, roomID, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	taken := make(map[models.SlotKey]struct{}, len(booked))
	for i := range booked {
		taken[booked[i].SlotKey()] = struct{}{}
	}

	free := make([]models.Slot, 0, len(candidates))
	for _, slot := range candidates {
		if _, ok := taken[slot.Key()]; ok {
			continue
		}
		free = append(free, slot)
	}

	if s.cache != nil && cacheKey != "" {
		s.cache.Store(ctx, cacheKey, free)
	}

	return free, nil
}

// dropStarted removes slots that have begun since a cached result was built.
func dropStarted(list []models.Slot, now time.Time) []models.Slot {
	out := make([]models.Slot, 0, len(list))
	for _, slot := range list {
		if slot.StartsAt.After(now) {
			out = append(out, slot)
		}
	}
	return out
}

// CreateBooking reserves the slot (roomID, date, clock) for a group of players.
func (s *BookingService) CreateBooking(ctx context.Context, req Requester, roomID int64, players int, date, clock string) (*models.Booking, error) {
	if !req.Authenticated() {
		return nil, ErrUnauthenticated
	}

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !room.AcceptsPlayers(players) {
		metrics.IncBookingCreated("invalid")
		return nil, invalidf("number_of_players must be between %d and %d, got %d", room.PlayersMin, room.PlayersMax, players)
	}

	slot, err := s.generator.SlotAt(room, date, clock)
	if err != nil {
		metrics.IncBookingCreated("invalid")
		return nil, invalidf("%v", err)
	}
	if !slot.StartsAt.After(s.now()) {
		metrics.IncBookingCreated("invalid")
		return nil, invalidf("slot %s %s has already started", slot.Date, slot.StartTime)
	}

	booking := &models.Booking{
		RoomID:          room.ID,
		UserID:          req.UserID,
		Date:            slot.Date,
		StartTime:       slot.StartTime,
		NumberOfPlayers: players,
		PaymentAmount:   room.PriceFor(players),
	}

	if err := s.bookings.CreateActiveBooking(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncBookingCreated("conflict")
			return nil, conflictf("slot %s %s is no longer available", slot.Date, slot.StartTime)
		}
		metrics.IncBookingCreated("error")
		return nil, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingCreated("created")
	s.invalidate(ctx, room.ID)
	s.publish(events.BookingCreated, booking, room, req.UserID)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("room_id", room.ID).
		Int64("user_id", req.UserID).
		Str("date", booking.Date).
		Str("time", booking.StartTime).
		Int("players", players).
		Msg("booking created")

	return booking, nil
}

// GetBooking returns a booking visible to req.
func (s *BookingService) GetBooking(ctx context.Context, req Requester, id int64) (*models.Booking, error) {
	if !req.Authenticated() {
		return nil, ErrUnauthenticated
	}
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(req, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) loadBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if errors.Is(err, database.ErrBookingNotFound) {
		return nil, notFoundf("booking %d", id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBooking cancels a booking. Administrators remove the booking
// entirely; owners soft-cancel it, which frees the slot and keeps the record.
func (s *BookingService) CancelBooking(ctx context.Context, req Requester, id int64) error {
	if !req.Authenticated() {
		return ErrUnauthenticated
	}
	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(req, b); err != nil {
		return err
	}

	if req.IsAdmin {
		return s.deleteBooking(ctx, req, b)
	}

	if !b.IsActive() {
		return conflictf("booking %d is already %s", b.ID, b.Status)
	}

	upd := database.BookingUpdate{
		Status:        models.BookingStatusCancelled,
		PaymentStatus: b.PaymentStatus,
		PaymentAmount: b.PaymentAmount,
		PaymentMethod: b.PaymentMethod,
	}
	// A completed payment stays completed; refunds are handled outside the engine.
	if b.PaymentStatus.CanTransitionTo(models.PaymentStatusCancelled) {
		upd.PaymentStatus = models.PaymentStatusCancelled
	}

	if err := s.writeState(ctx, b, upd); err != nil {
		return err
	}

	metrics.IncBookingCancelled("soft")
	s.invalidate(ctx, b.RoomID)
	s.publish(events.BookingCancelled, b, nil, req.UserID)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("room_id", b.RoomID).
		Int64("user_id", req.UserID).
		Msg("booking cancelled")
	return nil
}

func (s *BookingService) deleteBooking(ctx context.Context, req Requester, b *models.Booking) error {
	if err := s.bookings.DeleteBooking(ctx, b.ID); err != nil {
		if errors.Is(err, database.ErrBookingNotFound) {
			return notFoundf("booking %d", b.ID)
		}
		return fmt.Errorf("delete booking: %w", err)
	}

	metrics.IncBookingCancelled("hard")
	s.invalidate(ctx, b.RoomID)
	s.publish(events.BookingDeleted, b, nil, req.UserID)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("room_id", b.RoomID).
		Int64("user_id", b.UserID).
		Int64("admin_id", req.UserID).
		Msg("booking deleted by admin")
	return nil
}

// SettlePayment records the payment outcome of a booking. The amount is
// always recomputed from the room price; occupancy status is not touched.
func (s *BookingService) SettlePayment(ctx context.Context, req Requester, id int64, status models.PaymentStatus, method string) (*models.Booking, error) {
	if !req.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusCancelled {
		return nil, invalidf("payment_status must be %q or %q, got %q",
			models.PaymentStatusCompleted, models.PaymentStatusCancelled, status)
	}
	if status == models.PaymentStatusCompleted && method == "" {
		return nil, invalidf("payment_method is required to complete a payment")
	}

	b, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(req, b); err != nil {
		return nil, err
	}
	if !b.PaymentStatus.CanTransitionTo(status) {
		return nil, conflictf("payment of booking %d is already %s", b.ID, b.PaymentStatus)
	}

	room, err := s.rooms.GetRoom(ctx, b.RoomID)
	if err != nil {
		return nil, fmt.Errorf("load room %d: %w", b.RoomID, err)
	}

	upd := database.BookingUpdate{
		Status:        b.Status,
		PaymentStatus: status,
		PaymentAmount: room.PriceFor(b.NumberOfPlayers),
		PaymentMethod: b.PaymentMethod,
	}
	if status == models.PaymentStatusCompleted {
		upd.PaymentMethod = method
	}

	if err := s.writeState(ctx, b, upd); err != nil {
		return nil, err
	}

	metrics.IncPaymentSettled(string(status))
	eventType := events.BookingPaid
	if status == models.PaymentStatusCancelled {
		eventType = events.BookingPaymentCancelled
	}
	s.publish(eventType, b, room, req.UserID)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("room_id", b.RoomID).
		Int64("user_id", req.UserID).
		Str("payment_status", string(status)).
		Int64("amount", b.PaymentAmount).
		Msg("payment settled")

	return b, nil
}

// writeState applies upd to b with the optimistic version check and, on
// success, mirrors it into b.
func (s *BookingService) writeState(ctx context.Context, b *models.Booking, upd database.BookingUpdate) error {
	err := s.bookings.UpdateBookingState(ctx, b.ID, b.Version, upd)
	switch {
	case errors.Is(err, database.ErrBookingNotFound):
		return notFoundf("booking %d", b.ID)
	case errors.Is(err, database.ErrConcurrentModification):
		return conflictf("booking %d was modified concurrently, reload and retry", b.ID)
	case err != nil:
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}

	b.Status = upd.Status
	b.PaymentStatus = upd.PaymentStatus
	b.PaymentAmount = upd.PaymentAmount
	b.PaymentMethod = upd.PaymentMethod
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// ListMyActiveBookings returns the requester's active bookings, newest first.
func (s *BookingService) ListMyActiveBookings(ctx context.Context, req Requester) ([]models.Booking, error) {
	return s.listOwn(ctx, req, models.BookingStatusActive)
}

// ListMyCompletedBookings returns the requester's completed bookings, latest slot first.
func (s *BookingService) ListMyCompletedBookings(ctx context.Context, req Requester) ([]models.Booking, error) {
	return s.listOwn(ctx, req, models.BookingStatusCompleted)
}

func (s *BookingService) listOwn(ctx context.Context, req Requester, status models.BookingStatus) ([]models.Booking, error) {
	if !req.Authenticated() {
		return nil, ErrUnauthenticated
	}
	list, err := s.bookings.ListUserBookings(ctx, req.UserID, status)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Booking{}
	}
	return list, nil
}

// ListAllBookings returns every booking; administrators only.
func (s *BookingService) ListAllBookings(ctx context.Context, req Requester) ([]models.Booking, error) {
	if !req.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !req.IsAdmin {
		return nil, ErrPermissionDenied
	}
	list, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Booking{}
	}
	return list, nil
}

func (s *BookingService) invalidate(ctx context.Context, roomID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, roomID)
	}
}

func (s *BookingService) publish(eventType string, b *models.Booking, room *models.Room, actorID int64) {
	if s.events == nil {
		return
	}
	payload := events.BookingPayload{Booking: *b, ActorID: actorID}
	if room != nil {
		payload.RoomTheme = room.Theme
		payload.RoomDuration = room.Duration
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Int64("booking_id", b.ID).Msg("failed to publish event")
	}
}
