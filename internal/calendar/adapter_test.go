package calendar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"salonbot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	args := m.Called(ctx, start, end)
	return args.Bool(0), args.Error(1)
}

func (m *mockRemote) AddEvent(ctx context.Context, ev Event) (string, error) {
	args := m.Called(ctx, ev)
	return args.String(0), args.Error(1)
}

func (m *mockRemote) DeleteEvent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// blockingRemote holds every call until released or the context ends.
type blockingRemote struct {
	release  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (b *blockingRemote) wait(ctx context.Context) error {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingRemote) IsFree(ctx context.Context, _, _ time.Time) (bool, error) {
	return true, b.wait(ctx)
}

func (b *blockingRemote) AddEvent(ctx context.Context, _ Event) (string, error) {
	return "evt", b.wait(ctx)
}

func (b *blockingRemote) DeleteEvent(ctx context.Context, _ string) error {
	return b.wait(ctx)
}

var msk = time.FixedZone("MSK", 3*60*60)

func TestAdapterAddEventBuildsEvent(t *testing.T) {
	remote := new(mockRemote)
	a := NewAdapter(remote, AdapterConfig{Location: msk}, nil)

	start := time.Date(2025, 1, 25, 14, 30, 0, 0, msk)
	remote.On("AddEvent", mock.Anything, mock.MatchedBy(func(ev Event) bool {
		return ev.Summary == "Маникюр" &&
			ev.Start.Equal(start) &&
			ev.End.Equal(start.Add(time.Hour)) &&
			ev.Description == "Имя: Анна Иванова\nТелефон: +79991234567\nTelegram: https://t.me/anna" &&
			ev.Tags["appointment_id"] == "7" &&
			ev.Tags["user_id"] == "42"
	})).Return("evt-1", nil).Once()

	id, err := a.AddEvent(context.Background(), Booking{
		AppointmentID: 7,
		UserID:        42,
		ServiceName:   "Маникюр",
		Start:         start,
		ClientName:    "Анна Иванова",
		Phone:         "+79991234567",
		DeepLink:      "https://t.me/anna",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	remote.AssertExpectations(t)
}

func TestAdapterWrapsRemoteErrors(t *testing.T) {
	remote := new(mockRemote)
	a := NewAdapter(remote, AdapterConfig{}, nil)
	cause := errors.New("backend down")

	remote.On("DeleteEvent", mock.Anything, "evt-1").Return(cause).Once()
	err := a.DeleteEvent(context.Background(), "evt-1")

	var calErr *model.RemoteCalendarError
	require.ErrorAs(t, err, &calErr)
	assert.Equal(t, "delete", calErr.Op)
	assert.ErrorIs(t, err, cause)

	remote.On("IsFree", mock.Anything, mock.Anything, mock.Anything).Return(true, cause).Once()
	free, err := a.IsFree(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.False(t, free)
	assert.ErrorAs(t, err, &calErr)
}

func TestAdapterTimeout(t *testing.T) {
	remote := &blockingRemote{release: make(chan struct{})}
	defer close(remote.release)
	a := NewAdapter(remote, AdapterConfig{Timeout: 50 * time.Millisecond}, nil)

	started := time.Now()
	_, err := a.AddEvent(context.Background(), Booking{Start: time.Now()})
	assert.Less(t, time.Since(started), 2*time.Second)

	var calErr *model.RemoteCalendarError
	require.ErrorAs(t, err, &calErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdapterBoundsConcurrentCalls(t *testing.T) {
	remote := &blockingRemote{release: make(chan struct{})}
	a := NewAdapter(remote, AdapterConfig{Workers: 2, Timeout: 5 * time.Second}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.IsFree(context.Background(), time.Now(), time.Now().Add(time.Hour))
		}()
	}

	assert.Eventually(t, func() bool { return remote.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(remote.release)
	wg.Wait()

	assert.Equal(t, int32(2), remote.peak.Load())
}

func TestMemoryCalendarOverlap(t *testing.T) {
	cal := NewMemoryCalendar()
	ctx := context.Background()
	start := time.Date(2025, 1, 25, 14, 0, 0, 0, msk)

	free, err := cal.IsFree(ctx, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, free)

	id, err := cal.AddEvent(ctx, Event{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	free, _ = cal.IsFree(ctx, start.Add(30*time.Minute), start.Add(90*time.Minute))
	assert.False(t, free)
	free, _ = cal.IsFree(ctx, start.Add(time.Hour), start.Add(2*time.Hour))
	assert.True(t, free)

	require.NoError(t, cal.DeleteEvent(ctx, id))
	require.NoError(t, cal.DeleteEvent(ctx, id))
	assert.Equal(t, 0, cal.Len())
}
