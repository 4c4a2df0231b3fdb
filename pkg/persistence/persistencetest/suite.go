// Package persistencetest holds the behaviour every persistence.Backend must share.
package persistencetest

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/dukex/payflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendSuite exercises a backend created fresh by newBackend for every subtest.
func RunBackendSuite(t *testing.T, newBackend func(t *testing.T) persistence.Backend) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		backend := newBackend(t)

		value, found, err := backend.Get(t.Context(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("put then get", func(t *testing.T) {
		backend := newBackend(t)
		batch := persistence.NewBatch()
		batch.Put("wf/1", []byte(`{"id":"1"}`))
		batch.Put("idx/empty", nil)

		require.NoError(t, backend.Apply(t.Context(), batch))

		value, found, err := backend.Get(t.Context(), "wf/1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"id":"1"}`, string(value))

		value, found, err = backend.Get(t.Context(), "idx/empty")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, value)
	})

	t.Run("operations apply in order", func(t *testing.T) {
		backend := newBackend(t)
		batch := persistence.NewBatch()
		batch.Put("k", []byte("first"))
		batch.Delete("k")
		batch.Put("k", []byte("second"))
		batch.Delete("never-existed")

		require.NoError(t, backend.Apply(t.Context(), batch))

		value, found, err := backend.Get(t.Context(), "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "second", string(value))
	})

	t.Run("keys by prefix are sorted", func(t *testing.T) {
		backend := newBackend(t)
		batch := persistence.NewBatch()

		for _, key := range []string{"idx/acct/a/3", "idx/acct/a/1", "idx/acct/b/2", "idx/unit/a/1", "idx/acct/a/2"} {
			batch.Put(key, nil)
		}

		require.NoError(t, backend.Apply(t.Context(), batch))

		keys, err := backend.Keys(t.Context(), "idx/acct/a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"idx/acct/a/1", "idx/acct/a/2", "idx/acct/a/3"}, keys)

		keys, err = backend.Keys(t.Context(), "idx/none/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("prefix with pattern characters is literal", func(t *testing.T) {
		backend := newBackend(t)
		batch := persistence.NewBatch()
		batch.Put("p/a%_*[x]/1", nil)
		batch.Put("p/ab/1", nil)

		require.NoError(t, backend.Apply(t.Context(), batch))

		keys, err := backend.Keys(t.Context(), "p/a%_*[x]/")
		require.NoError(t, err)
		assert.Equal(t, []string{"p/a%_*[x]/1"}, keys)
	})

	t.Run("concurrent batches on distinct keys", func(t *testing.T) {
		backend := newBackend(t)

		var wg sync.WaitGroup

		for i := range 20 {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				batch := persistence.NewBatch()
				batch.Put("c/"+strconv.Itoa(i), []byte(strconv.Itoa(i)))
				assert.NoError(t, backend.Apply(context.Background(), batch))
			}(i)
		}

		wg.Wait()

		keys, err := backend.Keys(t.Context(), "c/")
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	})

	t.Run("health check", func(t *testing.T) {
		backend := newBackend(t)

		assert.NoError(t, backend.HealthCheck(t.Context()))
	})
}
