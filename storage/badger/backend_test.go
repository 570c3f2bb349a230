package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_CreatesDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/db"
	backend, err := OpenBackend(path, false)
	require.NoError(t, err)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)

	assert.False(t, backend.IsClosed())

	err = backend.Close()
	require.NoError(t, err)

	assert.True(t, backend.IsClosed())
}

func TestWithTransaction(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	t.Run("successful transaction", func(t *testing.T) {
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed transaction", func(t *testing.T) {
		testErr := assert.AnError
		err := backend.WithTransaction(ctx, func(ctx context.Context) error {
			return testErr
		})
		assert.Equal(t, testErr, err)
	})
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("test_sequence")
	require.NoError(t, err)
	require.NotNil(t, seq)
	defer seq.Release()

	// Get sequential IDs
	id1, err := seq.Next()
	require.NoError(t, err)

	id2, err := seq.Next()
	require.NoError(t, err)

	// IDs should be sequential
	assert.Greater(t, id2, id1)
}

func TestRepositoriesBundle(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	require.NotNil(t, repos)
	require.NotNil(t, repos.Backend())

	require.NoError(t, repos.Close())
	assert.True(t, repos.Backend().IsClosed())
}
