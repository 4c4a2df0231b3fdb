package persistencetest

import (
	"context"
	"sync"

	"github.com/dukex/payflow/pkg/persistence"
)

// FaultyBackend wraps a backend and fails chosen operations on demand.
type FaultyBackend struct {
	persistence.Backend

	mu       sync.Mutex
	applyErr error
	getErr   error
	applied  int
}

// NewFaultyBackend wraps inner. It behaves exactly like inner until a failure is armed.
func NewFaultyBackend(inner persistence.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: inner}
}

// FailApply makes every following Apply return err. A nil err disarms the failure.
func (f *FaultyBackend) FailApply(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyErr = err
}

// FailGet makes every following Get return err. A nil err disarms the failure.
func (f *FaultyBackend) FailGet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getErr = err
}

// Applied returns the number of batches that reached the wrapped backend.
func (f *FaultyBackend) Applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.applied
}

func (f *FaultyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()

	if err != nil {
		return nil, false, persistence.NewStorageError("Get", key, err)
	}

	return f.Backend.Get(ctx, key)
}

func (f *FaultyBackend) Apply(ctx context.Context, batch *persistence.Batch) error {
	f.mu.Lock()
	err := f.applyErr
	if err == nil {
		f.applied++
	}
	f.mu.Unlock()

	if err != nil {
		return persistence.NewStorageError("Apply", "", err)
	}

	return f.Backend.Apply(ctx, batch)
}
