// Package notify forwards booking events to administrators over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"escaperoom/internal/events"
	"escaperoom/internal/slots"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the part of the Telegram client the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Config struct {
	ChatIDs    []int64
	QueueSize  int
	Rate       rate.Limit
	Burst      int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig stays under the Telegram bot limit of ~30 messages per second.
func DefaultConfig(chatIDs []int64) Config {
	return Config{
		ChatIDs:    chatIDs,
		QueueSize:  256,
		Rate:       20,
		Burst:      5,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// AdminNotifier turns booking events into chat messages. Handle only
// enqueues; Run delivers, so a slow Telegram API never blocks a booking.
type AdminNotifier struct {
	sender  Sender
	cfg     Config
	limiter *rate.Limiter
	queue   chan tgbotapi.MessageConfig
	logger  *zerolog.Logger
}

func NewAdminNotifier(sender Sender, cfg Config, logger *zerolog.Logger) *AdminNotifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify").Logger()
	return &AdminNotifier{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
		queue:   make(chan tgbotapi.MessageConfig, cfg.QueueSize),
		logger:  &l,
	}
}

// Subscribe registers the notifier for every booking event.
func (n *AdminNotifier) Subscribe(bus *events.EventBus) {
	for _, et := range []string{
		events.BookingCreated,
		events.BookingCancelled,
		events.BookingDeleted,
		events.BookingPaid,
		events.BookingPaymentCancelled,
		events.BookingExpired,
	} {
		bus.Subscribe(et, n.Handle)
	}
}

// Handle formats ev and queues one message per admin chat.
func (n *AdminNotifier) Handle(ev events.Event) error {
	var p events.BookingPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	text := FormatMessage(ev.Type, p)
	if text == "" {
		return nil
	}

	for _, chatID := range n.cfg.ChatIDs {
		select {
		case n.queue <- tgbotapi.NewMessage(chatID, text):
		default:
			n.logger.Warn().Int64("chat_id", chatID).Str("type", ev.Type).Msg("notification queue full, dropping message")
		}
	}
	return nil
}

// Run delivers queued messages until ctx is done.
func (n *AdminNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.deliver(ctx, msg); err != nil && ctx.Err() == nil {
				n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("failed to notify admin")
			}
		}
	}
}

func (n *AdminNotifier) deliver(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := n.sender.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		wait := n.cfg.RetryDelay * time.Duration(attempt+1)
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch {
			case tgErr.Code == 429 && tgErr.RetryAfter > 0:
				wait = time.Duration(tgErr.RetryAfter) * time.Second
			case tgErr.Code == 400 || tgErr.Code == 403:
				// Bad chat id or the bot was removed; retrying will not help.
				return err
			}
		}
		if attempt == n.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// FormatMessage renders the admin message for a booking event. Unknown event
// types produce an empty string.
func FormatMessage(eventType string, p events.BookingPayload) string {
	var title string
	switch eventType {
	case events.BookingCreated:
		title = "New booking"
	case events.BookingCancelled:
		title = "Booking cancelled by the customer"
	case events.BookingDeleted:
		title = "Booking deleted by an administrator"
	case events.BookingPaid:
		title = "Booking paid"
	case events.BookingPaymentCancelled:
		title = "Payment cancelled"
	case events.BookingExpired:
		title = "Booking closed after the game: " + string(p.Booking.Status)
	default:
		return ""
	}

	b := p.Booking
	room := p.RoomTheme
	if room == "" {
		room = fmt.Sprintf("room %d", b.RoomID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s #%d\n", title, b.ID)
	fmt.Fprintf(&sb, "Room: %s\n", room)
	fmt.Fprintf(&sb, "When: %s %s", b.Date, b.StartTime)
	if p.RoomDuration > 0 {
		fmt.Fprintf(&sb, " (%s)", slots.FormatDuration(p.RoomDuration))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Players: %d\n", b.NumberOfPlayers)
	fmt.Fprintf(&sb, "Customer: %d\n", b.UserID)
	fmt.Fprintf(&sb, "Payment: %s", b.PaymentStatus)
	if b.PaymentMethod != "" {
		fmt.Fprintf(&sb, " (%s, %d)", b.PaymentMethod, b.PaymentAmount)
	}
	return sb.String()
}
