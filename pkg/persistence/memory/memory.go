// Package memory provides an in-process persistence backend for tests and local runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/payflow/pkg/persistence"
)

// Backend implements persistence.Backend with a map guarded by a RWMutex.
type Backend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, false, persistence.NewStorageError("Get", key, persistence.ErrClosed)
	}

	value, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(value), true, nil
}

func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.NewStorageError("Keys", prefix, persistence.ErrClosed)
	}

	keys := make([]string, 0)

	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	return keys, nil
}

func (b *Backend) Apply(_ context.Context, batch *persistence.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return persistence.NewStorageError("Apply", "", persistence.ErrClosed)
	}

	ApplyTo(b.data, batch)

	return nil
}

func (b *Backend) HealthCheck(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return nil
}

func (b *Backend) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

// ApplyTo replays batch onto data in order.
func ApplyTo(data map[string][]byte, batch *persistence.Batch) {
	for _, op := range batch.Ops {
		switch op.Kind {
		case persistence.OpPut:
			data[op.Key] = slices.Clone(op.Value)
		case persistence.OpDelete:
			delete(data, op.Key)
		}
	}
}
