package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salonbot/internal/model"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the appointment store backed by a single SQLite file.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database, creating the directory and schema when missing.
// Write transactions start with BEGIN IMMEDIATE so concurrent writers serialize
// on the database lock instead of failing at commit.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: sqlDB, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT,
			first_name TEXT NOT NULL,
			last_name TEXT,
			phone TEXT,
			notify_enabled BOOLEAN NOT NULL DEFAULT 1,
			pending_appointment_id INTEGER REFERENCES appointments(id) ON DELETE SET NULL,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			service TEXT NOT NULL,
			date_time TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			calendar_event_id TEXT,
			reminded BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_user_status ON appointments(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_reminder ON appointments(status, reminded)`,

		// Remote events whose local appointment was canceled but not yet removed remotely.
		`CREATE TABLE IF NOT EXISTS calendar_cleanups (
			event_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			appointment_id INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_cleanups_user ON calendar_cleanups(user_id, appointment_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	db.ensureNewColumns()
	return nil
}

// ensureNewColumns upgrades databases created before these columns existed.
func (db *DB) ensureNewColumns() {
	migrations := []string{
		`ALTER TABLE users ADD COLUMN username TEXT`,
		`ALTER TABLE users ADD COLUMN notify_enabled BOOLEAN NOT NULL DEFAULT 1`,
		`ALTER TABLE appointments ADD COLUMN calendar_event_id TEXT`,
		`ALTER TABLE appointments ADD COLUMN reminded BOOLEAN NOT NULL DEFAULT 0`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			db.logger.Debug().Err(err).Str("migration", m).Msg("Migration skipped")
		}
	}
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func nowText() string {
	return time.Now().Format(model.CreatedAtLayout)
}
