package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoomConfig represents a single bookable room.
type RoomConfig struct {
	ID          int64  `yaml:"id"`
	Theme       string `yaml:"theme"`
	Genre       string `yaml:"genre"`
	Difficulty  int    `yaml:"difficulty"`
	Description string `yaml:"description"`
	Duration    int    `yaml:"duration_minutes"`
	Price       int64  `yaml:"price"` // per player
	PlayersMin  int    `yaml:"players_min"`
	PlayersMax  int    `yaml:"players_max"`
	IsActive    *bool  `yaml:"is_active,omitempty"`
}

// Active reports whether the room is open for booking. Rooms are active
// unless the file says otherwise.
func (r RoomConfig) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// RoomsConfig is the root configuration for rooms.yaml.
type RoomsConfig struct {
	Rooms []RoomConfig `yaml:"rooms"`
}

// LoadRoomsConfig loads and validates rooms configuration from YAML file.
func LoadRoomsConfig(path string) (*RoomsConfig, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}

	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *RoomsConfig) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	ids := make(map[int64]bool)
	themes := make(map[string]bool)

	for i, r := range c.Rooms {
		if r.ID <= 0 {
			return fmt.Errorf("room[%d]: id must be positive, got %d", i, r.ID)
		}
		if ids[r.ID] {
			return fmt.Errorf("room[%d]: duplicate id %d", i, r.ID)
		}
		ids[r.ID] = true

		if r.Theme == "" {
			return fmt.Errorf("room[%d]: theme is required", i)
		}
		if themes[r.Theme] {
			return fmt.Errorf("room[%d]: duplicate theme '%s'", i, r.Theme)
		}
		themes[r.Theme] = true

		if r.Duration <= 0 {
			return fmt.Errorf("room[%d]: duration_minutes must be positive", i)
		}
		if r.Price < 0 {
			return fmt.Errorf("room[%d]: price cannot be negative", i)
		}
		if r.PlayersMin < 1 {
			return fmt.Errorf("room[%d]: players_min must be at least 1", i)
		}
		if r.PlayersMax < r.PlayersMin {
			return fmt.Errorf("room[%d]: players_max %d is below players_min %d", i, r.PlayersMax, r.PlayersMin)
		}
		if r.Difficulty < 0 || r.Difficulty > 5 {
			return fmt.Errorf("room[%d]: difficulty must be 0-5, got %d", i, r.Difficulty)
		}
	}

	return nil
}

// GetRoomByID returns room config by ID.
func (c *RoomsConfig) GetRoomByID(id int64) *RoomConfig {
	for i := range c.Rooms {
		if c.Rooms[i].ID == id {
			return &c.Rooms[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *RoomsConfig) String() string {
	active := 0
	for _, r := range c.Rooms {
		if r.Active() {
			active++
		}
	}
	return fmt.Sprintf("RoomsConfig: %d rooms (%d active)", len(c.Rooms), active)
}
