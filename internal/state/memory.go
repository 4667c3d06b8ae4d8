package state

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     UserState
	expiresAt time.Time
}

// MemoryRepository is the in-process store used without Redis or while it is down.
type MemoryRepository struct {
	mu  sync.Mutex
	m   map[int64]memoryEntry
	ttl time.Duration
	now func() time.Time
}

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryRepository{m: make(map[int64]memoryEntry), ttl: ttl, now: time.Now}
}

func (r *MemoryRepository) GetState(_ context.Context, userID int64) (*UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.m[userID]
	if !ok {
		return nil, nil
	}
	if r.now().After(e.expiresAt) {
		delete(r.m, userID)
		return nil, nil
	}
	st := e.state
	return &st, nil
}

func (r *MemoryRepository) SetState(_ context.Context, state *UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[state.UserID] = memoryEntry{state: *state, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryRepository) ClearState(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, userID)
	return nil
}
