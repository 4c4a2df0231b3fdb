// Package file provides file-based persistence for workflows.
//
// The whole key space is kept in memory and rewritten to a single JSON document on every
// batch. The document is written to a temporary file and renamed over the previous one, so
// a crash leaves either the old or the new generation on disk, never a mix.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/persistence/memory"
)

const storeFile = "store.json"

// Backend implements persistence.Backend on the file system.
type Backend struct {
	root string
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBackend opens (or creates) the store under root. A "file://" prefix is accepted.
func NewBackend(root string) (*Backend, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	backend := &Backend{
		root: cleanRoot,
		data: make(map[string][]byte),
	}

	body, err := os.ReadFile(backend.path())
	if err != nil {
		if os.IsNotExist(err) {
			return backend, nil
		}

		return nil, fmt.Errorf("failed to read store %s: %w", backend.path(), err)
	}

	err = json.Unmarshal(body, &backend.data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal store %s: %w", backend.path(), err)
	}

	return backend, nil
}

func (b *Backend) path() string {
	return filepath.Join(b.root, storeFile)
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}

	return slices.Clone(value), true, nil
}

func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0)

	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	return keys, nil
}

// Apply writes the next generation of the store and only then makes it visible in memory.
func (b *Backend) Apply(_ context.Context, batch *persistence.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := maps.Clone(b.data)
	memory.ApplyTo(next, batch)

	err := b.write(next)
	if err != nil {
		return persistence.NewStorageError("Apply", b.path(), err)
	}

	b.data = next

	return nil
}

func (b *Backend) write(data map[string][]byte) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(b.root, storeFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(body)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close temporary store file: %w", closeErr)
	}

	err = os.Rename(tmp.Name(), b.path())
	if err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	return nil
}

// HealthCheck checks that the store directory still exists.
func (b *Backend) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(b.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Every batch is already on disk, so there is nothing
// to flush.
func (b *Backend) Close(_ context.Context) error {
	return nil
}
