// Package redis provides a Redis persistence backend for workflows.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/payflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const scanCount = 256

// Backend implements persistence.Backend on Redis strings. Every key is stored under
// prefix so several deployments can share one database.
type Backend struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewBackend connects to the Redis server described by databaseURL
// (redis://[user:password@]host:port/db).
func NewBackend(ctx context.Context, logger *slog.Logger, databaseURL, prefix string) (*Backend, error) {
	options, err := goredis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to redis", "addr", options.Addr, "prefix", prefix)

	return &Backend{client: client, prefix: prefix, logger: logger}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}

		return nil, false, persistence.NewStorageError("Get", key, err)
	}

	if value == nil {
		value = []byte{}
	}

	return value, true, nil
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

	return replacer.Replace(pattern)
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(b.prefix+prefix) + "*"
	keys := make([]string, 0)

	iter := b.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.prefix))
	}

	err := iter.Err()
	if err != nil {
		return nil, persistence.NewStorageError("Keys", prefix, err)
	}

	// SCAN may return a key more than once
	slices.Sort(keys)

	return slices.Compact(keys), nil
}

func (b *Backend) Apply(ctx context.Context, batch *persistence.Batch) error {
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, op := range batch.Ops {
			switch op.Kind {
			case persistence.OpPut:
				pipe.Set(ctx, b.prefix+op.Key, op.Value, 0)
			case persistence.OpDelete:
				pipe.Del(ctx, b.prefix+op.Key)
			}
		}

		return nil
	})
	if err != nil {
		return persistence.NewStorageError("Apply", "", err)
	}

	return nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	err := b.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (b *Backend) Close(_ context.Context) error {
	err := b.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
