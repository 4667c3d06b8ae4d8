package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/model"
)

const appointmentColumns = `id, user_id, service, date_time, status, created_at, calendar_event_id, reminded`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s rowScanner) (*model.Appointment, error) {
	var (
		a         model.Appointment
		dateTime  sql.NullString
		status    string
		createdAt string
		eventID   sql.NullString
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Service, &dateTime, &status, &createdAt, &eventID, &a.Reminded); err != nil {
		return nil, err
	}

	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("appointment %d: %w", a.ID, err)
	}
	a.Status = st
	a.DateTime = dateTime.String
	a.CalendarEventID = eventID.String
	a.CreatedAt, _ = time.ParseInLocation(model.CreatedAtLayout, createdAt, time.Local)
	return &a, nil
}

// CreatePending retires the user's previous pending appointment, inserts a
// new one and points the user at it, all in one transaction.
func (db *DB) CreatePending(ctx context.Context, userID int64, service string) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx,
			`DELETE FROM appointments WHERE user_id = ? AND status = ?`,
			userID, model.StatusPending); err != nil {
			return fmt.Errorf("retire pending: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (user_id, service, status, created_at, reminded)
			VALUES (?, ?, ?, ?, 0)`,
			userID, service, model.StatusPending, nowText())
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET pending_appointment_id = ? WHERE id = ?`, id, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetDateTime attaches a slot to a pending appointment owned by userID.
func (db *DB) SetDateTime(ctx context.Context, appointmentID, userID int64, dateTime string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		rs, err := statusOf(ctx, tx, appointmentID, userID)
		if err != nil {
			return err
		}
		if rs.status != model.StatusPending {
			return fmt.Errorf("set date/time on %s appointment: %w", rs.status, model.ErrInvalidTransition)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE appointments SET date_time = ? WHERE id = ? AND user_id = ?`,
			dateTime, appointmentID, userID)
		return err
	})
}

func (db *DB) GetByID(ctx context.Context, appointmentID, userID int64) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = ? AND user_id = ?`,
		appointmentID, userID)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

// ListByUser returns the user's appointments, most recent first.
func (db *DB) ListByUser(ctx context.Context, userID int64) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Confirm moves a pending appointment with a date/time to confirmed and
// clears the user's pending pointer. It returns the previous status.
// ErrSlotUnavailable means another confirmed appointment holds the same slot.
func (db *DB) Confirm(ctx context.Context, appointmentID, userID int64) (model.Status, error) {
	var prev model.Status
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rs, err := statusOf(ctx, tx, appointmentID, userID)
		if err != nil {
			return err
		}
		prev = rs.status

		if rs.status != model.StatusPending {
			return fmt.Errorf("confirm %s appointment %d: %w", rs.status, appointmentID, model.ErrInvalidTransition)
		}
		if !rs.dateTime.Valid || rs.dateTime.String == "" {
			return fmt.Errorf("appointment %d has no date/time: %w", appointmentID, model.ErrInvalidTransition)
		}

		var taken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM appointments WHERE status = ? AND date_time = ? AND id != ?`,
			model.StatusConfirmed, rs.dateTime.String, appointmentID).Scan(&taken); err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("appointment %d at %s: %w", appointmentID, rs.dateTime.String, model.ErrSlotUnavailable)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE appointments SET status = ? WHERE id = ? AND status = ?`,
			model.StatusConfirmed, appointmentID, model.StatusPending)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return fmt.Errorf("appointment %d changed concurrently: %w", appointmentID, model.ErrInvalidTransition)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET pending_appointment_id = NULL WHERE id = ? AND pending_appointment_id = ?`,
			userID, appointmentID)
		return err
	})
	return prev, err
}

// CancelPending deletes a pending appointment and clears the pending pointer.
func (db *DB) CancelPending(ctx context.Context, appointmentID, userID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		rs, err := statusOf(ctx, tx, appointmentID, userID)
		if err != nil {
			return err
		}
		if rs.status != model.StatusPending {
			return fmt.Errorf("cancel pending on %s appointment: %w", rs.status, model.ErrInvalidTransition)
		}

		if _, err = tx.ExecContext(ctx,
			`DELETE FROM appointments WHERE id = ? AND status = ?`,
			appointmentID, model.StatusPending); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET pending_appointment_id = NULL WHERE id = ? AND pending_appointment_id = ?`,
			userID, appointmentID)
		return err
	})
}

// CancelConfirmed deletes a confirmed appointment and returns its calendar
// event id (empty when none). A non-empty id is recorded in calendar_cleanups
// in the same transaction so the remote event can still be removed later.
func (db *DB) CancelConfirmed(ctx context.Context, appointmentID, userID int64) (string, error) {
	var eventID string
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rs, err := statusOf(ctx, tx, appointmentID, userID)
		if err != nil {
			return err
		}
		if rs.status != model.StatusConfirmed {
			return fmt.Errorf("cancel confirmed on %s appointment: %w", rs.status, model.ErrInvalidTransition)
		}

		if _, err = tx.ExecContext(ctx,
			`DELETE FROM appointments WHERE id = ? AND status = ?`,
			appointmentID, model.StatusConfirmed); err != nil {
			return err
		}

		if rs.eventID.Valid && rs.eventID.String != "" {
			eventID = rs.eventID.String
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO calendar_cleanups (event_id, user_id, appointment_id, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(event_id) DO NOTHING`,
				eventID, userID, appointmentID, nowText()); err != nil {
				return fmt.Errorf("record cleanup: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET pending_appointment_id = NULL WHERE id = ? AND pending_appointment_id = ?`,
			userID, appointmentID)
		return err
	})
	if err != nil {
		return "", err
	}
	return eventID, nil
}

// AttachCalendarEvent stores the remote event id on a confirmed appointment.
// ErrNotFound means the appointment was canceled in the meantime.
func (db *DB) AttachCalendarEvent(ctx context.Context, appointmentID int64, eventID string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET calendar_event_id = ? WHERE id = ? AND status = ?`,
		eventID, appointmentID, model.StatusConfirmed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attach event to appointment %d: %w", appointmentID, model.ErrNotFound)
	}
	return nil
}

// ListReminderCandidates returns confirmed appointments not yet reminded.
func (db *DB) ListReminderCandidates(ctx context.Context) ([]model.ReminderCandidate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, service, date_time
		FROM appointments
		WHERE status = ? AND reminded = 0 AND date_time IS NOT NULL
		ORDER BY id`, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReminderCandidate
	for rows.Next() {
		var c model.ReminderCandidate
		if err := rows.Scan(&c.ID, &c.UserID, &c.Service, &c.DateTime); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkReminded flips the reminded flag on a confirmed appointment. Repeated
// calls and calls for appointments that are gone are no-ops.
func (db *DB) MarkReminded(ctx context.Context, appointmentID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE appointments SET reminded = 1 WHERE id = ? AND status = ? AND reminded = 0`,
		appointmentID, model.StatusConfirmed)
	return err
}

// rowState is what the transition checks need to know about one row.
type rowState struct {
	status   model.Status
	dateTime sql.NullString
	eventID  sql.NullString
}

func statusOf(ctx context.Context, tx *sql.Tx, appointmentID, userID int64) (rowState, error) {
	var (
		rs     rowState
		status string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, date_time, calendar_event_id FROM appointments WHERE id = ? AND user_id = ?`,
		appointmentID, userID).Scan(&status, &rs.dateTime, &rs.eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return rs, model.ErrNotFound
	}
	if err != nil {
		return rs, err
	}
	rs.status, err = model.ParseStatus(status)
	return rs, err
}
