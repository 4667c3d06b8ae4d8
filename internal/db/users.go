package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/model"
)

// RegisterUser inserts the user or refreshes the profile of an existing one.
// The pending pointer is never touched here.
func (db *DB) RegisterUser(ctx context.Context, u *model.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, phone, notify_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone`,
		u.ID, u.Username, u.FirstName, u.LastName, u.Phone, u.NotifyEnabled, nowText())
	if err != nil {
		return fmt.Errorf("register user %d: %w", u.ID, err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, phone, notify_enabled,
		       pending_appointment_id, created_at
		FROM users
		WHERE id = ?`, id)

	var (
		u         model.User
		username  sql.NullString
		lastName  sql.NullString
		phone     sql.NullString
		pending   sql.NullInt64
		createdAt sql.NullString
	)
	err := row.Scan(&u.ID, &username, &u.FirstName, &lastName, &phone, &u.NotifyEnabled, &pending, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	u.Username = username.String
	u.LastName = lastName.String
	u.Phone = phone.String
	if pending.Valid {
		id := pending.Int64
		u.PendingAppointmentID = &id
	}
	if createdAt.Valid {
		u.CreatedAt, _ = time.ParseInLocation(model.CreatedAtLayout, createdAt.String, time.Local)
	}
	return &u, nil
}

// IsRegistered is the membership check used by the front end.
func (db *DB) IsRegistered(ctx context.Context, id int64) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
