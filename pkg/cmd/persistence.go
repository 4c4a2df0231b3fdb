// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/persistence/file"
	"github.com/dukex/payflow/pkg/persistence/memory"
	"github.com/dukex/payflow/pkg/persistence/postgresql"
	"github.com/dukex/payflow/pkg/persistence/redis"
)

// ErrUnsupportedBackend is returned for a database URL whose scheme has no backend.
var ErrUnsupportedBackend = errors.New("unsupported persistence backend")

// RedisKeyPrefix namespaces payflow keys inside a shared Redis database.
const RedisKeyPrefix = "payflow:"

// NewBackend opens the persistence backend selected by the scheme of databaseURL.
// A URL without a scheme is treated as a directory for the file backend.
func NewBackend(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Backend, error) {
	provider := parsePersistenceProvider(databaseURL)

	var (
		backend persistence.Backend
		err     error
	)

	switch provider {
	case "memory":
		return memory.NewBackend(), nil
	case "file":
		backend, err = file.NewBackend(strings.TrimPrefix(databaseURL, "file://"))
	case "postgres", "postgresql":
		backend, err = postgresql.NewBackend(ctx, logger, databaseURL)
	case "redis", "rediss":
		backend, err = redis.NewBackend(ctx, logger, databaseURL, RedisKeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", provider, err)
	}

	return backend, nil
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
