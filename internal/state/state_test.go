package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRepository(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewRedisRepository(client, 30*time.Minute)
	ctx := context.Background()

	got, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	st := &UserState{UserID: 42, Step: StepRegLastName, FirstName: "Анна"}
	require.NoError(t, repo.SetState(ctx, st))
	assert.True(t, mr.Exists("salonbot:state:42"))
	assert.Equal(t, 30*time.Minute, mr.TTL("salonbot:state:42"))

	got, err = repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	mr.FastForward(31 * time.Minute)
	got, err = repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SetState(ctx, st))
	require.NoError(t, repo.ClearState(ctx, 42))
	assert.False(t, mr.Exists("salonbot:state:42"))
}

func TestRedisRepositoryUnavailable(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewRedisRepository(client, time.Minute)
	mr.Close()

	_, err := repo.GetState(context.Background(), 1)
	assert.Error(t, err)
}

func TestMemoryRepositoryExpires(t *testing.T) {
	repo := NewMemoryRepository(time.Minute)
	clock := time.Date(2025, 1, 25, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, &UserState{UserID: 1, Step: StepAwaitDateTime, AppointmentID: 9}))
	got, err := repo.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.AppointmentID)

	clock = clock.Add(2 * time.Minute)
	got, err = repo.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailoverFallsBackWhenRedisDies(t *testing.T) {
	mr, client := newMiniredis(t)
	repo := NewFailoverRepository(NewRedisRepository(client, time.Minute), NewMemoryRepository(time.Minute), nil)
	ctx := context.Background()

	mr.Close()
	st := &UserState{UserID: 7, Step: StepRegPhone, FirstName: "Анна", LastName: "Иванова"}
	require.NoError(t, repo.SetState(ctx, st))

	got, err := repo.GetState(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, st, got)
	assert.True(t, repo.isDown.Load())
}
