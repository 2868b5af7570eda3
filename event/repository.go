// Package event remembers which session events have already been handled.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a processed event id is remembered.
const DefaultTTL = 24 * time.Hour

var (
	_ Repository = (*repository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

type Repository interface {
	// MarkAsProcessed records id and reports whether this was the first time it was seen.
	MarkAsProcessed(ctx context.Context, id string) (bool, error)
	// Forget releases id so a redelivered event is handled again.
	Forget(ctx context.Context, id string) error
}

type repository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRepository(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &repository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *repository) MarkAsProcessed(ctx context.Context, id string) (bool, error) {
	first, err := r.client.SetNX(ctx, r.prefix+id, time.Now().UTC().Format(time.RFC3339Nano), r.ttl).Result()
	if err != nil {
		r.logger.Error("Failed to mark event as processed", zap.String("event_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark event %s as processed: %w", id, err)
	}
	return first, nil
}

func (r *repository) Forget(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.prefix+id).Err(); err != nil {
		r.logger.Error("Failed to forget event", zap.String("event_id", id), zap.Error(err))
		return fmt.Errorf("failed to forget event %s: %w", id, err)
	}
	return nil
}

// MemoryRepository is the single-process variant. Ids are kept until the process exits.
type MemoryRepository struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{seen: make(map[string]struct{})}
}

func (r *MemoryRepository) MarkAsProcessed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return false, nil
	}
	r.seen[id] = struct{}{}
	return true, nil
}

func (r *MemoryRepository) Forget(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.seen, id)
	return nil
}
