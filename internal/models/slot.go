package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotKey identifies a slot within one room.
type SlotKey struct {
	Date      string
	StartTime string
}

// Slot is a candidate start for a booking. Slots are computed, never stored.
type Slot struct {
	RoomID    int64     `json:"room_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"time"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// Key returns the (date, start time) lookup key.
func (s Slot) Key() SlotKey {
	return SlotKey{Date: s.Date, StartTime: s.StartTime}
}

// Equal reports whether both slots denote the same room, date and start time.
func (s Slot) Equal(other Slot) bool {
	return s.RoomID == other.RoomID && s.Date == other.Date && s.StartTime == other.StartTime
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", value)
	}
	return d, nil
}

// NormalizeClock accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM".
// Seconds other than zero are rejected.
func NormalizeClock(value string) (string, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", fmt.Errorf("invalid time %q; expected HH:MM", value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", value)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return "", fmt.Errorf("invalid seconds in %q", value)
		}
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// TimeOnDate places an "HH:MM" clock value on the calendar day of date.
func TimeOnDate(date time.Time, clock string) (time.Time, error) {
	normalized, err := NormalizeClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	hour, _ := strconv.Atoi(normalized[:2])
	minute, _ := strconv.Atoi(normalized[3:])
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}
