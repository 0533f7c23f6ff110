package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escaperoom/internal/database"
	"escaperoom/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-memory RoomRepository and BookingRepository with the
// same sentinel errors as the SQLite store.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[int64]*models.Room
	bookings map[int64]*models.Booking
	nextID   int64
	clock    time.Time

	failUpdate   map[int64]error
	beforeUpdate func(id int64)
	updateCalls  int
}

func newFakeStore(rooms ...models.Room) *fakeStore {
	f := &fakeStore{
		rooms:      make(map[int64]*models.Room),
		bookings:   make(map[int64]*models.Booking),
		failUpdate: make(map[int64]error),
		clock:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := range rooms {
		r := rooms[i]
		f.rooms[r.ID] = &r
	}
	return f
}

func (f *fakeStore) GetRoom(_ context.Context, id int64) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, database.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListRooms(_ context.Context, activeOnly bool) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Room
	for _, r := range f.rooms {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateActiveBooking(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.bookings {
		if existing.IsActive() && existing.RoomID == b.RoomID && existing.SlotKey() == b.SlotKey() {
			return database.ErrSlotTaken
		}
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	b.ID = f.nextID
	b.Status = models.BookingStatusActive
	b.PaymentStatus = models.PaymentStatusPending
	b.CreatedAt = f.clock
	b.UpdatedAt = f.clock
	b.Version = 1
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

// put stores b as is, bypassing every check.
func (f *fakeStore) put(b models.Booking) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == 0 {
		f.nextID++
		b.ID = f.nextID
	} else if b.ID > f.nextID {
		f.nextID = b.ID
	}
	if b.Version == 0 {
		b.Version = 1
	}
	f.bookings[b.ID] = &b
	cp := b
	return &cp
}

func (f *fakeStore) get(id int64) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (f *fakeStore) snapshot() map[int64]models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]models.Booking, len(f.bookings))
	for id, b := range f.bookings {
		out[id] = *b
	}
	return out
}

func (f *fakeStore) GetBooking(_ context.Context, id int64) (*models.Booking, error) {
	if b := f.get(id); b != nil {
		return b, nil
	}
	return nil, database.ErrBookingNotFound
}

func (f *fakeStore) filter(keep func(*models.Booking) bool) []models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListActiveBookings(_ context.Context) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool { return b.IsActive() }), nil
}

func (f *fakeStore) ListActiveInRange(_ context.Context, roomID int64, from, to string) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool {
		return b.IsActive() && b.RoomID == roomID && b.Date >= from && b.Date <= to
	}), nil
}

func (f *fakeStore) ListUserBookings(_ context.Context, userID int64, status models.BookingStatus) ([]models.Booking, error) {
	return f.filter(func(b *models.Booking) bool { return b.UserID == userID && b.Status == status }), nil
}

func (f *fakeStore) ListBookings(_ context.Context) ([]models.Booking, error) {
	return f.filter(func(*models.Booking) bool { return true }), nil
}

func (f *fakeStore) UpdateBookingState(_ context.Context, id, version int64, upd database.BookingUpdate) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if err := f.failUpdate[id]; err != nil {
		return err
	}
	b, ok := f.bookings[id]
	if !ok {
		return database.ErrBookingNotFound
	}
	if b.Version != version {
		return database.ErrConcurrentModification
	}
	b.Status = upd.Status
	b.PaymentStatus = upd.PaymentStatus
	b.PaymentAmount = upd.PaymentAmount
	b.PaymentMethod = upd.PaymentMethod
	b.Version++
	return nil
}

func (f *fakeStore) DeleteBooking(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bookings[id]; !ok {
		return database.ErrBookingNotFound
	}
	delete(f.bookings, id)
	return nil
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

// memoryCache is an AvailabilityCache keyed by a per-room generation.
type memoryCache struct {
	mu          sync.Mutex
	generation  map[int64]int
	entries     map[string][]models.Slot
	stores      int
	invalidated []int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{generation: map[int64]int{}, entries: map[string][]models.Slot{}}
}

func (c *memoryCache) key(roomID int64, from, to string) string {
	return fmt.Sprintf("%d:%d:%s:%s", roomID, c.generation[roomID], from, to)
}

func (c *memoryCache) Lookup(_ context.Context, roomID int64, from, to string) (string, []models.Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(roomID, from, to)
	s, ok := c.entries[k]
	return k, s, ok
}

func (c *memoryCache) Store(_ context.Context, key string, slots []models.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	c.entries[key] = append([]models.Slot(nil), slots...)
}

func (c *memoryCache) Invalidate(_ context.Context, roomID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation[roomID]++
	c.invalidated = append(c.invalidated, roomID)
}
