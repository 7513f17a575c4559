package repositories

import (
	"context"
	"sync"

	"keyhub/internal/engine/licensing"
)

// MemoryRepository keeps the store in process memory. Writes run against a
// copy which replaces the live state only when the callback succeeds.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newSnapshot()}
}

func (r *MemoryRepository) Read(ctx context.Context, fn func(licensing.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.state)
}

func (r *MemoryRepository) Write(ctx context.Context, fn func(licensing.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (r *MemoryRepository) Close() error { return nil }
