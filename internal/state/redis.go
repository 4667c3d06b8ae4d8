package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "salonbot:state:"

// RedisRepository keeps dialog state as JSON under salonbot:state:<user>.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRepository{client: client, ttl: ttl}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

func (r *RedisRepository) GetState(ctx context.Context, userID int64) (*UserState, error) {
	val, err := r.client.Get(ctx, stateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st UserState
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, fmt.Errorf("decode state for user %d: %w", userID, err)
	}
	return &st, nil
}

func (r *RedisRepository) SetState(ctx context.Context, state *UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, stateKey(state.UserID), data, r.ttl).Err()
}

func (r *RedisRepository) ClearState(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, stateKey(userID)).Err()
}
