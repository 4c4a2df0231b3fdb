package memory_test

import (
	"testing"

	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/persistence/memory"
	"github.com/dukex/payflow/pkg/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	persistencetest.RunBackendSuite(t, func(t *testing.T) persistence.Backend {
		t.Helper()

		return memory.NewBackend()
	})
}

func TestBackend_Closed(t *testing.T) {
	backend := memory.NewBackend()
	require.NoError(t, backend.Close(t.Context()))

	_, _, err := backend.Get(t.Context(), "k")
	assert.True(t, persistence.IsStorageError(err))
	assert.ErrorIs(t, err, persistence.ErrClosed)

	err = backend.Apply(t.Context(), persistence.NewBatch())
	assert.True(t, persistence.IsStorageError(err))

	assert.Error(t, backend.HealthCheck(t.Context()))
}
