// Package slots builds the lattice of legal booking start times.
package slots

import (
	"fmt"
	"time"

	"escaperoom/internal/models"
)

// Window is the daily operating window shared by all rooms.
type Window struct {
	Open  string // "10:00"
	Close string // "22:00"
}

// DefaultWindow is used when the configuration does not set opening hours.
var DefaultWindow = Window{Open: "10:00", Close: "22:00"}

// Generator produces candidate slots. It holds no state besides the window,
// so a single instance is safe for concurrent use.
type Generator struct {
	window Window
	loc    *time.Location
}

// NewGenerator creates a generator for the window in loc.
func NewGenerator(window Window, loc *time.Location) (*Generator, error) {
	if loc == nil {
		loc = time.Local
	}
	if window.Open == "" {
		window.Open = DefaultWindow.Open
	}
	if window.Close == "" {
		window.Close = DefaultWindow.Close
	}

	open, err := models.NormalizeClock(window.Open)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	closing, err := models.NormalizeClock(window.Close)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}
	if open >= closing {
		return nil, fmt.Errorf("open time %s must be before close time %s", open, closing)
	}

	return &Generator{window: Window{Open: open, Close: closing}, loc: loc}, nil
}

// Location returns the timezone slots are generated in.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// Window returns the normalized operating window.
func (g *Generator) Window() Window {
	return g.window
}

// Generate returns every slot of room for the calendar days from..to
// (inclusive) whose start is strictly after now, in chronological order.
// A slot is emitted only if it finishes no later than the window close.
func (g *Generator) Generate(room *models.Room, from, to, now time.Time) []models.Slot {
	if room == nil || room.Duration <= 0 {
		return nil
	}

	first := g.day(from)
	last := g.day(to)
	var result []models.Slot

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, s := range g.daySlots(room, day) {
			if s.StartsAt.After(now) {
				result = append(result, s)
			}
		}
	}

	return result
}

// SlotAt validates that clock is a legal start for room on date and returns
// the slot. It does not look at now; callers check the start instant.
func (g *Generator) SlotAt(room *models.Room, date, clock string) (models.Slot, error) {
	day, err := models.ParseDate(date, g.loc)
	if err != nil {
		return models.Slot{}, err
	}
	normalized, err := models.NormalizeClock(clock)
	if err != nil {
		return models.Slot{}, err
	}

	for _, s := range g.daySlots(room, day) {
		if s.StartTime == normalized {
			return s, nil
		}
	}
	return models.Slot{}, fmt.Errorf("%s is not a slot start for room %d (every %d min from %s, closing %s)",
		normalized, room.ID, room.Duration, g.window.Open, g.window.Close)
}

func (g *Generator) daySlots(room *models.Room, day time.Time) []models.Slot {
	if room == nil || room.Duration <= 0 {
		return nil
	}

	// Window was validated in NewGenerator.
	openAt, _ := models.TimeOnDate(day, g.window.Open)
	closeAt, _ := models.TimeOnDate(day, g.window.Close)
	step := room.SlotDuration()
	date := day.Format(models.DateLayout)

	var slots []models.Slot
	for cursor := openAt; !cursor.Add(step).After(closeAt); cursor = cursor.Add(step) {
		slots = append(slots, models.Slot{
			RoomID:    room.ID,
			Date:      date,
			StartTime: cursor.Format(models.TimeLayout),
			StartsAt:  cursor,
			EndsAt:    cursor.Add(step),
		})
	}
	return slots
}

func (g *Generator) day(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}

// FormatDuration formats duration in minutes to a human-readable string.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
