package models

import "time"

// Room is a bookable escape room. Rooms are read-only for the booking engine.
type Room struct {
	ID          int64     `json:"id"`
	Theme       string    `json:"theme"`
	Genre       string    `json:"genre,omitempty"`
	Difficulty  int       `json:"difficulty,omitempty"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"` // minutes
	Price       int64     `json:"price"`    // per participant
	PlayersMin  int       `json:"players_min"`
	PlayersMax  int       `json:"players_max"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SlotDuration returns the length of one game in the room.
func (r *Room) SlotDuration() time.Duration {
	return time.Duration(r.Duration) * time.Minute
}

// AcceptsPlayers reports whether a group of n players fits the room bounds.
func (r *Room) AcceptsPlayers(n int) bool {
	return n >= r.PlayersMin && n <= r.PlayersMax
}

// PriceFor returns the full price for a group of n players.
func (r *Room) PriceFor(n int) int64 {
	return r.Price * int64(n)
}
