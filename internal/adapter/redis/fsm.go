package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	stateKeyPrefix    = "fsm:state:"
	dataKeyPrefix     = "fsm:data:"
	snapshotKeyPrefix = "practice:snapshot:"
	defaultTTL        = 24 * time.Hour
)

type FSM struct {
	client *redis.Client
}

func NewFSM(uri string) (*FSM, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &FSM{client: client}, nil
}

func (f *FSM) Close() error {
	return f.client.Close()
}

// Ping checks the connection
func (f *FSM) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// SetState sets the current state for a user
func (f *FSM) SetState(ctx context.Context, userID string, state domain.State) error {
	return f.client.Set(ctx, stateKey(userID), string(state), defaultTTL).Err()
}

// GetState gets the current state for a user
func (f *FSM) GetState(ctx context.Context, userID string) (domain.State, error) {
	val, err := f.client.Get(ctx, stateKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StateStart, nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return domain.State(val), nil
}

// SetData sets temporary data for a user's current session
func (f *FSM) SetData(ctx context.Context, userID, key, value string) error {
	return f.client.Set(ctx, dataKey(userID, key), value, defaultTTL).Err()
}

// GetData gets temporary data for a user's current session
func (f *FSM) GetData(ctx context.Context, userID, key string) (string, error) {
	val, err := f.client.Get(ctx, dataKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("data %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get data: %w", err)
	}
	return val, nil
}

// DeleteData deletes temporary data for a user
func (f *FSM) DeleteData(ctx context.Context, userID, key string) error {
	return f.client.Del(ctx, dataKey(userID, key)).Err()
}

// SaveSnapshot stores the live snapshot of the user's practice screen
func (f *FSM) SaveSnapshot(ctx context.Context, userID string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return f.client.Set(ctx, snapshotKey(userID), data, defaultTTL).Err()
}

// LoadSnapshot returns the last stored snapshot
func (f *FSM) LoadSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	data, err := f.client.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func stateKey(userID string) string {
	return stateKeyPrefix + userID
}

func dataKey(userID, key string) string {
	return fmt.Sprintf("%s%s:%s", dataKeyPrefix, userID, key)
}

func snapshotKey(userID string) string {
	return snapshotKeyPrefix + userID
}
