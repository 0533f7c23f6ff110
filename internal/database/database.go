package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB represents the database connection.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrSlotTaken              = errors.New("slot already booked")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NewDB opens the SQLite database at path and creates tables if they don't exist.
//
// Every transaction is started with BEGIN IMMEDIATE (_txlock=immediate), so a
// transaction holds the write lock from its first statement. This makes the
// read-then-insert in CreateActiveBooking atomic relative to other writers.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY,
			theme TEXT NOT NULL,
			genre TEXT NOT NULL DEFAULT '',
			difficulty INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			duration INTEGER NOT NULL,
			price INTEGER NOT NULL,
			players_min INTEGER NOT NULL,
			players_max INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// date and start_time are TEXT on purpose: DATE columns are
		// converted to time.Time by the driver on scan.
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			number_of_players INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_amount INTEGER NOT NULL DEFAULT 0,
			payment_method TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(room_id) REFERENCES rooms(id)
		)`,

		// At most one active booking per room slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_active_slot
			ON bookings(room_id, date, start_time) WHERE status = 'active'`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_date ON bookings(room_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_status ON bookings(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return db.ensureNewColumns()
}

// ensureNewColumns adds columns introduced after the first release.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE bookings ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
		`ALTER TABLE rooms ADD COLUMN genre TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("migration %q: %w", m, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
