package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverRepository uses the primary until it errors, then serves from the
// fallback and retries the primary once a minute.
type FailoverRepository struct {
	primary  Repository
	fallback Repository
	logger   zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverRepository(primary, fallback Repository, logger *zerolog.Logger) *FailoverRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "state").Logger(),
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) >= recheckInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Warn().Err(err).Msg("State primary failed, switching to in-memory fallback")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("State primary recovered")
	}
}

func (r *FailoverRepository) GetState(ctx context.Context, userID int64) (*UserState, error) {
	if r.usePrimary() {
		st, err := r.primary.GetState(ctx, userID)
		if err == nil {
			r.markUp()
			return st, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetState(ctx, userID)
}

func (r *FailoverRepository) SetState(ctx context.Context, state *UserState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverRepository) ClearState(ctx context.Context, userID int64) error {
	// Clear both so a stale fallback entry cannot resurface after recovery.
	_ = r.fallback.ClearState(ctx, userID)
	if r.usePrimary() {
		err := r.primary.ClearState(ctx, userID)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}
