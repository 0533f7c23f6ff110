package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"escaperoom/internal/config"
	"escaperoom/internal/models"
)

// SyncRoomsFromConfig applies rooms.yaml to the database.
// It upserts rooms and marks rooms missing from the file inactive; rooms are
// never deleted because bookings reference them.
func (db *DB) SyncRoomsFromConfig(ctx context.Context, cfg *config.RoomsConfig) error {
	if cfg == nil {
		return fmt.Errorf("rooms config is nil")
	}

	now := time.Now().UTC()
	seen := make(map[int64]struct{})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range cfg.Rooms {
		// Preserve created_at if the room already exists.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, theme, genre, difficulty, description, duration, price,
				players_min, players_max, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				theme = excluded.theme,
				genre = excluded.genre,
				difficulty = excluded.difficulty,
				description = excluded.description,
				duration = excluded.duration,
				price = excluded.price,
				players_min = excluded.players_min,
				players_max = excluded.players_max,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			r.ID, r.Theme, r.Genre, r.Difficulty, r.Description, r.Duration, r.Price,
			r.PlayersMin, r.PlayersMax, r.Active(), now, now,
		)
		if err != nil {
			return fmt.Errorf("sync room %d: %w", r.ID, err)
		}
		seen[r.ID] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM rooms WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// Deactivate rooms that disappeared from config.
	for _, id := range missing {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate room %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Info().Int("rooms", len(cfg.Rooms)).Int("deactivated", len(missing)).Msg("Rooms synced from config")
	return nil
}

const roomColumns = `id, theme, genre, difficulty, description, duration, price,
	players_min, players_max, is_active, created_at, updated_at`

func scanRoom(s interface{ Scan(...any) error }) (*models.Room, error) {
	var r models.Room
	if err := s.Scan(
		&r.ID, &r.Theme, &r.Genre, &r.Difficulty, &r.Description, &r.Duration, &r.Price,
		&r.PlayersMin, &r.PlayersMax, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoom returns a room by id, active or not.
func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	r, err := scanRoom(db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", id, err)
	}
	return r, nil
}

// ListRooms returns rooms ordered by id.
func (db *DB) ListRooms(ctx context.Context, activeOnly bool) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}
