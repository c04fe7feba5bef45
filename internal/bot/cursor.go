package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CursorStore persists the next update offset between restarts.
type CursorStore interface {
	Load(ctx context.Context) (offset int64, found bool, err error)
	Save(ctx context.Context, offset int64) error
}

// MemoryCursor keeps the offset for the lifetime of the process.
type MemoryCursor struct {
	mu     sync.Mutex
	offset int64
	found  bool
}

func (m *MemoryCursor) Load(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, m.found, nil
}

func (m *MemoryCursor) Save(_ context.Context, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset, m.found = offset, true
	return nil
}

// RedisCursor stores the offset under a single Redis key.
type RedisCursor struct {
	client *redis.Client
	key    string
}

// NewRedisCursor connects to addr and checks the connection.
func NewRedisCursor(ctx context.Context, addr, key string) (*RedisCursor, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCursor{client: client, key: key}, nil
}

func (r *RedisCursor) Load(ctx context.Context) (int64, bool, error) {
	v, err := r.client.Get(ctx, r.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor: %w", err)
	}
	return v, true, nil
}

func (r *RedisCursor) Save(ctx context.Context, offset int64) error {
	if err := r.client.Set(ctx, r.key, offset, 0).Err(); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (r *RedisCursor) Close() error {
	return r.client.Close()
}
