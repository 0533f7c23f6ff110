package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchRooms reloads rooms.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop; an invalid file
// at that point is returned as an error, later invalid edits are logged and skipped.
func WatchRooms(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*RoomsConfig)) error {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg, err := LoadRoomsConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadRoomsConfig(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("rooms config reload skipped")
					continue
				}
				lastMod = info.ModTime()
				logger.Info().Str("summary", cfg.String()).Msg("rooms config reloaded")
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
