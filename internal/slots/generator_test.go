package slots

import (
	"testing"
	"time"

	"escaperoom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(Window{Open: "10:00", Close: "22:00"}, time.UTC)
	require.NoError(t, err)
	return g
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerate(t *testing.T) {
	g := newTestGenerator(t)
	longAgo := day(2020, 1, 1)

	tests := []struct {
		name      string
		duration  int
		wantCount int
		wantFirst string
		wantLast  string
	}{
		{name: "60 minute room", duration: 60, wantCount: 12, wantFirst: "10:00", wantLast: "21:00"},
		{name: "90 minute room drops partial tail", duration: 90, wantCount: 8, wantFirst: "10:00", wantLast: "20:30"},
		{name: "45 minute room", duration: 45, wantCount: 16, wantFirst: "10:00", wantLast: "21:15"},
		{name: "whole window", duration: 720, wantCount: 1, wantFirst: "10:00", wantLast: "10:00"},
		{name: "longer than window", duration: 780, wantCount: 0},
		{name: "zero duration", duration: 0, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := &models.Room{ID: 1, Duration: tt.duration}
			slots := g.Generate(room, day(2025, 3, 1), day(2025, 3, 1), longAgo)

			require.Len(t, slots, tt.wantCount)
			if tt.wantCount == 0 {
				return
			}
			assert.Equal(t, tt.wantFirst, slots[0].StartTime)
			assert.Equal(t, tt.wantLast, slots[len(slots)-1].StartTime)
		})
	}
}

func TestGenerate_WithinWindow(t *testing.T) {
	g := newTestGenerator(t)

	for _, duration := range []int{25, 50, 60, 75, 90, 120, 150} {
		room := &models.Room{ID: 3, Duration: duration}
		for _, s := range g.Generate(room, day(2025, 3, 1), day(2025, 3, 3), day(2020, 1, 1)) {
			open := time.Date(s.StartsAt.Year(), s.StartsAt.Month(), s.StartsAt.Day(), 10, 0, 0, 0, time.UTC)
			closing := time.Date(s.StartsAt.Year(), s.StartsAt.Month(), s.StartsAt.Day(), 22, 0, 0, 0, time.UTC)

			assert.False(t, s.StartsAt.Before(open), "duration %d slot %s starts before open", duration, s.StartTime)
			assert.False(t, s.StartsAt.Add(time.Duration(duration)*time.Minute).After(closing),
				"duration %d slot %s ends after close", duration, s.StartTime)
			assert.Equal(t, s.StartsAt.Add(room.SlotDuration()), s.EndsAt)
		}
	}
}

func TestGenerate_ExcludesPastSlots(t *testing.T) {
	g := newTestGenerator(t)
	room := &models.Room{ID: 1, Duration: 60}
	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

	slots := g.Generate(room, day(2025, 3, 1), day(2025, 3, 1), now)

	require.Len(t, slots, 7) // 15:00 .. 21:00
	assert.Equal(t, "15:00", slots[0].StartTime)
	for _, s := range slots {
		assert.True(t, s.StartsAt.After(now), "slot %s is not in the future", s.StartTime)
	}

	// The whole range in the past yields nothing.
	assert.Empty(t, g.Generate(room, day(2025, 2, 1), day(2025, 2, 28), now))
}

func TestGenerate_DateRange(t *testing.T) {
	g := newTestGenerator(t)
	room := &models.Room{ID: 9, Duration: 120}

	slots := g.Generate(room, day(2025, 3, 1), day(2025, 3, 3), day(2020, 1, 1))

	require.Len(t, slots, 18)
	assert.Equal(t, "2025-03-01", slots[0].Date)
	assert.Equal(t, "2025-03-03", slots[len(slots)-1].Date)
	assert.Equal(t, "20:00", slots[len(slots)-1].StartTime)
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].StartsAt.After(slots[i-1].StartsAt), "slots must be chronological")
	}
	for _, s := range slots {
		assert.Equal(t, int64(9), s.RoomID)
	}

	// Reversed range is empty rather than an error.
	assert.Empty(t, g.Generate(room, day(2025, 3, 3), day(2025, 3, 1), day(2020, 1, 1)))
}

func TestGenerate_Deterministic(t *testing.T) {
	g := newTestGenerator(t)
	room := &models.Room{ID: 1, Duration: 90}
	now := day(2025, 1, 1)

	first := g.Generate(room, day(2025, 3, 1), day(2025, 3, 2), now)
	second := g.Generate(room, day(2025, 3, 1), day(2025, 3, 2), now)
	assert.Equal(t, first, second)
}

func TestSlotAt(t *testing.T) {
	g := newTestGenerator(t)
	room := &models.Room{ID: 5, Duration: 90}

	s, err := g.SlotAt(room, "2025-03-01", "11:30:00")
	require.NoError(t, err)
	assert.Equal(t, "11:30", s.StartTime)
	assert.Equal(t, time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC), s.EndsAt)

	_, err = g.SlotAt(room, "2025-03-01", "11:00")
	assert.Error(t, err, "off-lattice start")

	_, err = g.SlotAt(room, "2025-03-01", "21:00")
	assert.Error(t, err, "would end after close")

	_, err = g.SlotAt(room, "03/01/2025", "11:30")
	assert.Error(t, err, "malformed date")
}

func TestNewGenerator_Validation(t *testing.T) {
	_, err := NewGenerator(Window{Open: "22:00", Close: "10:00"}, time.UTC)
	assert.Error(t, err)

	_, err = NewGenerator(Window{Open: "ten", Close: "22:00"}, time.UTC)
	assert.Error(t, err)

	g, err := NewGenerator(Window{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, g.Window())
	assert.Equal(t, time.Local, g.Location())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes  int
		expected string
	}{
		{30, "30 min"},
		{60, "1 hour"},
		{90, "1 h 30 min"},
		{120, "2 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.minutes))
		})
	}
}
