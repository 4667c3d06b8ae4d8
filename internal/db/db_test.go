package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"salonbot/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	database, err := NewDB(filepath.Join(t.TempDir(), "salon.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func registerUser(t *testing.T, database *DB, id int64) {
	t.Helper()
	require.NoError(t, database.RegisterUser(context.Background(), &model.User{
		ID:            id,
		Username:      "client",
		FirstName:     "Анна",
		LastName:      "Иванова",
		Phone:         "+79991234567",
		NotifyEnabled: true,
	}))
}

func pendingCount(t *testing.T, database *DB, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(
		`SELECT COUNT(*) FROM appointments WHERE user_id = ? AND status = 'pending'`, userID).Scan(&n))
	return n
}

// confirmedAppointment creates a pending booking with a slot and confirms it.
func confirmedAppointment(t *testing.T, database *DB, userID int64, dateTime string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := database.CreatePending(ctx, userID, "Маникюр")
	require.NoError(t, err)
	require.NoError(t, database.SetDateTime(ctx, id, userID, dateTime))
	_, err = database.Confirm(ctx, id, userID)
	require.NoError(t, err)
	return id
}

func TestRegisterAndGetUser(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	ok, err := database.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = database.GetUser(ctx, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	registerUser(t, database, 1)
	ok, err = database.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := database.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Анна Иванова", u.FullName())
	assert.True(t, u.NotifyEnabled)
	assert.Nil(t, u.PendingAppointmentID)

	// Re-registration refreshes the profile.
	require.NoError(t, database.RegisterUser(ctx, &model.User{ID: 1, FirstName: "Мария", Phone: "+70000000000"}))
	u, err = database.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Мария", u.FirstName)
}

func TestCreatePendingRetiresPrevious(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	first, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)
	second, err := database.CreatePending(ctx, 1, "Педикюр")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	assert.Equal(t, 1, pendingCount(t, database, 1))

	_, err = database.GetByID(ctx, first, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	a, err := database.GetByID(ctx, second, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, "Педикюр", a.Service)
	assert.False(t, a.HasDateTime())
	assert.False(t, a.Reminded)

	u, err := database.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u.PendingAppointmentID)
	assert.Equal(t, second, *u.PendingAppointmentID)
}

func TestCreatePendingConcurrentKeepsOnePending(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := database.CreatePending(ctx, 1, "Брови")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, pendingCount(t, database, 1))
}

func TestCreatePendingUnknownUser(t *testing.T) {
	database := newTestDB(t)
	_, err := database.CreatePending(context.Background(), 99, "Маникюр")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSetDateTimeOwnership(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)
	registerUser(t, database, 2)

	id, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)

	err = database.SetDateTime(ctx, id, 2, "25.01.25 14:30:00")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, database.SetDateTime(ctx, id, 1, "25.01.25 14:30:00"))
	a, err := database.GetByID(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "25.01.25 14:30:00", a.DateTime)

	_, err = database.GetByID(ctx, id, 2)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirm(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)

	_, err = database.Confirm(ctx, id, 1)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "no date/time yet")

	require.NoError(t, database.SetDateTime(ctx, id, 1, "25.01.25 14:30:00"))
	prev, err := database.Confirm(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, prev)

	u, err := database.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, u.PendingAppointmentID)

	prev, err = database.Confirm(ctx, id, 1)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusConfirmed, prev)

	err = database.SetDateTime(ctx, id, 1, "26.01.25 10:00:00")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = database.Confirm(ctx, id+100, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmRejectsSlotHeldByAnotherBooking(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)
	registerUser(t, database, 2)

	confirmedAppointment(t, database, 1, "25.01.25 14:30:00")

	id, err := database.CreatePending(ctx, 2, "Стрижка")
	require.NoError(t, err)
	require.NoError(t, database.SetDateTime(ctx, id, 2, "25.01.25 14:30:00"))

	_, err = database.Confirm(ctx, id, 2)
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)

	a, err := database.GetByID(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)

	require.NoError(t, database.SetDateTime(ctx, id, 2, "25.01.25 16:00:00"))
	_, err = database.Confirm(ctx, id, 2)
	require.NoError(t, err)
}

func TestConfirmConcurrentExactlyOneWins(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)
	require.NoError(t, database.SetDateTime(ctx, id, 1, "25.01.25 14:30:00"))

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = database.Confirm(ctx, id, 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
}

func TestCancelRacingConfirmLeavesOneTerminalState(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)
	require.NoError(t, database.SetDateTime(ctx, id, 1, "25.01.25 14:30:00"))

	var confirmErr, cancelErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = database.Confirm(ctx, id, 1)
	}()
	go func() {
		defer wg.Done()
		cancelErr = database.CancelPending(ctx, id, 1)
	}()
	wg.Wait()

	a, getErr := database.GetByID(ctx, id, 1)
	if confirmErr == nil {
		assert.ErrorIs(t, cancelErr, model.ErrInvalidTransition)
		require.NoError(t, getErr)
		assert.Equal(t, model.StatusConfirmed, a.Status)
	} else {
		assert.NoError(t, cancelErr)
		assert.ErrorIs(t, confirmErr, model.ErrNotFound)
		assert.ErrorIs(t, getErr, model.ErrNotFound)
	}
}

func TestCancelPending(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id, err := database.CreatePending(ctx, 1, "Маникюр")
	require.NoError(t, err)
	require.NoError(t, database.CancelPending(ctx, id, 1))

	u, err := database.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, u.PendingAppointmentID)
	assert.ErrorIs(t, database.CancelPending(ctx, id, 1), model.ErrNotFound)

	confirmed := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	assert.ErrorIs(t, database.CancelPending(ctx, confirmed, 1), model.ErrInvalidTransition)
}

func TestCancelConfirmedRecordsCleanup(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	require.NoError(t, database.AttachCalendarEvent(ctx, id, "evt-1"))

	eventID, err := database.CancelConfirmed(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", eventID)

	_, err = database.GetByID(ctx, id, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := database.GetCleanup(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", c.EventID)

	list, err := database.ListCleanups(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, database.ResolveCleanup(ctx, "evt-1"))
	_, err = database.GetCleanup(ctx, id, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancelConfirmedWithoutEvent(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	eventID, err := database.CancelConfirmed(ctx, id, 1)
	require.NoError(t, err)
	assert.Empty(t, eventID)

	list, err := database.ListCleanups(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	pending, err := database.CreatePending(ctx, 1, "Брови")
	require.NoError(t, err)
	_, err = database.CancelConfirmed(ctx, pending, 1)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestAttachCalendarEventAfterCancel(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	_, err := database.CancelConfirmed(ctx, id, 1)
	require.NoError(t, err)

	err = database.AttachCalendarEvent(ctx, id, "evt-late")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestReminderCandidatesAndMarkReminded(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	id := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	_, err := database.CreatePending(ctx, 1, "Брови")
	require.NoError(t, err)

	candidates, err := database.ListReminderCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ReminderCandidate{ID: id, UserID: 1, Service: "Маникюр", DateTime: "25.01.25 14:30:00"}, candidates[0])

	require.NoError(t, database.MarkReminded(ctx, id))
	require.NoError(t, database.MarkReminded(ctx, id))

	candidates, err = database.ListReminderCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	a, err := database.GetByID(ctx, id, 1)
	require.NoError(t, err)
	assert.True(t, a.Reminded)
}

func TestListByUserMostRecentFirst(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)

	first := confirmedAppointment(t, database, 1, "25.01.25 14:30:00")
	second := confirmedAppointment(t, database, 1, "26.01.25 10:00:00")
	third, err := database.CreatePending(ctx, 1, "Ресницы")
	require.NoError(t, err)

	list, err := database.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{third, second, first}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestGetTableData(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	registerUser(t, database, 1)
	confirmedAppointment(t, database, 1, "25.01.25 14:30:00")

	data, columns, err := database.GetTableData(ctx, "appointments")
	require.NoError(t, err)
	assert.Contains(t, columns, "calendar_event_id")
	require.Len(t, data, 1)
	assert.Equal(t, "confirmed", data[0]["status"])

	_, _, err = database.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	database := newTestDB(t)
	logger := zerolog.Nop()
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(database, BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	svc.CleanupOldBackups()

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
