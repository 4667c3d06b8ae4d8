package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"salonbot/internal/model"
)

func (db *DB) GetCleanup(ctx context.Context, appointmentID, userID int64) (*model.CalendarCleanup, error) {
	row := db.QueryRowContext(ctx, `
		SELECT event_id, user_id, appointment_id, created_at
		FROM calendar_cleanups
		WHERE appointment_id = ? AND user_id = ?`, appointmentID, userID)
	c, err := scanCleanup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

// ListCleanups returns unresolved remote deletions for a user, oldest first.
func (db *DB) ListCleanups(ctx context.Context, userID int64) ([]model.CalendarCleanup, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, user_id, appointment_id, created_at
		FROM calendar_cleanups
		WHERE user_id = ?
		ORDER BY created_at, appointment_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarCleanup
	for rows.Next() {
		c, err := scanCleanup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ResolveCleanup forgets a remote event once it has been deleted.
func (db *DB) ResolveCleanup(ctx context.Context, eventID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM calendar_cleanups WHERE event_id = ?`, eventID)
	return err
}

func scanCleanup(s rowScanner) (*model.CalendarCleanup, error) {
	var (
		c         model.CalendarCleanup
		createdAt string
	)
	if err := s.Scan(&c.EventID, &c.UserID, &c.AppointmentID, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.ParseInLocation(model.CreatedAtLayout, createdAt, time.Local)
	return &c, nil
}
