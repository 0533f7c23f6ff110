package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
auth:
  jwt_secret: ${TEST_JWT_SECRET}
database:
  path: `+filepath.Join(dir, "db", "app.db")+`
booking:
  timezone: UTC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "10:00", cfg.Booking.Open)
	assert.Equal(t, "22:00", cfg.Booking.Close)
	assert.Equal(t, 90, cfg.Booking.MaxRangeDays)
	assert.Equal(t, time.Hour, cfg.SweepInterval())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 30*time.Second, cfg.RoomsReloadInterval())
	assert.False(t, cfg.IsProduction())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_InvalidTimezone(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "app.db")+`
booking:
  timezone: Mars/Olympus
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

const roomsYAML = `
rooms:
  - id: 1
    theme: "Lost Temple"
    genre: adventure
    difficulty: 3
    duration_minutes: 60
    price: 25
    players_min: 2
    players_max: 6
  - id: 5
    theme: "Asylum"
    genre: horror
    difficulty: 5
    duration_minutes: 90
    price: 30
    players_min: 3
    players_max: 5
    is_active: false
`

func TestLoadRoomsConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rooms.yaml", roomsYAML)

	cfg, err := LoadRoomsConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rooms, 2)

	r := cfg.GetRoomByID(5)
	require.NotNil(t, r)
	assert.Equal(t, 90, r.Duration)
	assert.False(t, r.Active())
	assert.True(t, cfg.GetRoomByID(1).Active())
	assert.Nil(t, cfg.GetRoomByID(42))
	assert.Equal(t, "RoomsConfig: 2 rooms (1 active)", cfg.String())
}

func TestRoomsConfig_Validate(t *testing.T) {
	valid := RoomConfig{ID: 1, Theme: "A", Duration: 60, Price: 10, PlayersMin: 2, PlayersMax: 4}

	tests := []struct {
		name   string
		mutate func(*RoomsConfig)
	}{
		{"empty", func(c *RoomsConfig) { c.Rooms = nil }},
		{"zero id", func(c *RoomsConfig) { c.Rooms[0].ID = 0 }},
		{"duplicate id", func(c *RoomsConfig) { c.Rooms = append(c.Rooms, RoomConfig{ID: 1, Theme: "B", Duration: 60, PlayersMin: 1, PlayersMax: 2}) }},
		{"missing theme", func(c *RoomsConfig) { c.Rooms[0].Theme = "" }},
		{"zero duration", func(c *RoomsConfig) { c.Rooms[0].Duration = 0 }},
		{"negative price", func(c *RoomsConfig) { c.Rooms[0].Price = -1 }},
		{"min players zero", func(c *RoomsConfig) { c.Rooms[0].PlayersMin = 0 }},
		{"max below min", func(c *RoomsConfig) { c.Rooms[0].PlayersMax = 1 }},
		{"difficulty out of range", func(c *RoomsConfig) { c.Rooms[0].Difficulty = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &RoomsConfig{Rooms: []RoomConfig{valid}}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, (&RoomsConfig{Rooms: []RoomConfig{valid}}).Validate())
}

func TestWatchRooms_ReloadsOnChange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rooms.yaml", roomsYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *RoomsConfig, 4)
	err := WatchRooms(ctx, path, 10*time.Millisecond, nil, func(cfg *RoomsConfig) {
		updates <- cfg
	})
	require.NoError(t, err)

	initial := <-updates
	assert.Len(t, initial.Rooms, 2)

	require.NoError(t, os.WriteFile(path, []byte(`
rooms:
  - id: 7
    theme: "Submarine"
    duration_minutes: 45
    price: 20
    players_min: 2
    players_max: 4
`), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case cfg := <-updates:
		require.Len(t, cfg.Rooms, 1)
		assert.Equal(t, int64(7), cfg.Rooms[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("rooms config was not reloaded")
	}
}

func TestWatchRooms_InvalidInitialFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rooms.yaml", "rooms: []\n")

	err := WatchRooms(context.Background(), path, time.Second, nil, nil)
	assert.Error(t, err)
}
