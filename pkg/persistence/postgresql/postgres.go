// Package postgresql provides PostgreSQL persistence for workflows.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // registers the postgres driver
)

// Backend implements persistence.Backend on a single PostgreSQL table. Each batch runs in
// one transaction.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBackend connects to PostgreSQL and runs pending migrations.
func NewBackend(ctx context.Context, logger *slog.Logger, databaseURL string) (*Backend, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Backend{
		db:     database,
		logger: logger,
	}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte

	err := b.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, persistence.NewStorageError("Get", key, err)
	}

	if value == nil {
		value = []byte{}
	}

	return value, true, nil
}

// escapeLike escapes the LIKE wildcards so a prefix is matched literally.
func escapeLike(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return replacer.Replace(prefix)
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT key
		FROM kv_entries
		WHERE key LIKE $1 ESCAPE '\'
		ORDER BY key COLLATE "C"
	`

	rows, err := b.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, persistence.NewStorageError("Keys", prefix, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			b.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	keys := make([]string, 0)

	for rows.Next() {
		var key string

		err := rows.Scan(&key)
		if err != nil {
			return nil, persistence.NewStorageError("Keys", prefix, err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStorageError("Keys", prefix, err)
	}

	return keys, nil
}

func (b *Backend) Apply(ctx context.Context, batch *persistence.Batch) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStorageError("Apply", "", fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	for _, op := range batch.Ops {
		switch op.Kind {
		case persistence.OpPut:
			_, err = tx.ExecContext(ctx, upsert, op.Key, op.Value)
		case persistence.OpDelete:
			_, err = tx.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = $1", op.Key)
		}

		if err != nil {
			return persistence.NewStorageError("Apply", op.Key, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewStorageError("Apply", "", fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (b *Backend) HealthCheck(ctx context.Context) error {
	err := b.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (b *Backend) Close(_ context.Context) error {
	if b.db != nil {
		err := b.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
