package store

import (
	"context"
	"sync"
	"time"

	"copyx/internal/snippet"
)

// Memory is a Store held entirely in memory.
type Memory struct {
	mu      sync.RWMutex
	items   []snippet.Snippet
	closed  bool
	changes notifier
	now     func() time.Time
}

// NewMemory returns a Memory store seeded with items, which must already
// be valid.
func NewMemory(items ...snippet.Snippet) *Memory {
	return &Memory{
		items:   append([]snippet.Snippet(nil), items...),
		changes: newNotifier(),
		now:     time.Now,
	}
}

func (m *Memory) GetAll(ctx context.Context) ([]snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]snippet.Snippet(nil), m.items...), nil
}

func (m *Memory) Put(ctx context.Context, s snippet.Snippet) (snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return snippet.Snippet{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return snippet.Snippet{}, ErrClosed
	}

	items, stored, err := put(m.items, s, m.now())
	if err != nil {
		return snippet.Snippet{}, err
	}
	m.items = items
	m.changes.notify()
	return stored, nil
}

func (m *Memory) Delete(ctx context.Context, key string) (snippet.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return snippet.Snippet{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return snippet.Snippet{}, ErrClosed
	}

	items, removed, err := remove(m.items, key)
	if err != nil {
		return snippet.Snippet{}, err
	}
	m.items = items
	m.changes.notify()
	return removed, nil
}

func (m *Memory) ReplaceAll(ctx context.Context, items []snippet.Snippet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	normalized, err := normalize(items, m.now())
	if err != nil {
		return err
	}
	m.items = normalized
	m.changes.notify()
	return nil
}

func (m *Memory) Changes() <-chan struct{} {
	return m.changes
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
