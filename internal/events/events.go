package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"escaperoom/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Booking lifecycle event types.
const (
	BookingCreated          = "booking.created"
	BookingCancelled        = "booking.cancelled"
	BookingDeleted          = "booking.deleted"
	BookingPaid             = "booking.paid"
	BookingPaymentCancelled = "booking.payment_cancelled"
	BookingExpired          = "booking.expired"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged with logger.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "events").Logger()
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: &l}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it as eventType.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}

// BookingPayload is the body of every booking.* event.
type BookingPayload struct {
	Booking      models.Booking `json:"booking"`
	RoomTheme    string         `json:"room_theme"`
	RoomDuration int            `json:"room_duration,omitempty"`
	ActorID      int64          `json:"actor_id,omitempty"`
}
