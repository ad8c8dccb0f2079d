package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryBackendRoundTrip(t *testing.T) {
	backend := NewMemoryBackend(testLogger())
	ctx := context.Background()

	payload := []byte("sealed document bytes")
	id, err := backend.Store(ctx, payload, interfaces.DocumentType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(payload), id)

	fetched, err := backend.Fetch(ctx, id, interfaces.DocumentType)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)

	// Content types are separate namespaces
	_, err = backend.Fetch(ctx, id, interfaces.ShareBundleType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackendRoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("bundle bytes")
	id, err := backend.Store(ctx, payload, interfaces.ShareBundleType)
	require.NoError(t, err)

	fetched, err := backend.Fetch(ctx, id, interfaces.ShareBundleType)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)

	missing := interfaces.ComputeID([]byte("never stored"))
	_, err = backend.Fetch(ctx, missing, interfaces.ShareBundleType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	assert.True(t, backend.Available(ctx))
}

func TestMultiBackendFetchFallsThrough(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryBackend(testLogger())
	second := NewMemoryBackend(testLogger())

	// Content only on the second backend
	payload := []byte("replicated content")
	id, err := second.Store(ctx, payload, interfaces.DocumentType)
	require.NoError(t, err)

	multi, err := NewMultiBackend(testLogger(), first, second)
	require.NoError(t, err)

	fetched, err := multi.Fetch(ctx, id, interfaces.DocumentType)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)
}

func TestMultiBackendStoreReplicates(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryBackend(testLogger())
	second := NewMemoryBackend(testLogger())

	multi, err := NewMultiBackend(testLogger(), first, second)
	require.NoError(t, err)

	payload := []byte("stored everywhere")
	id, err := multi.Store(ctx, payload, interfaces.ShareBundleType)
	require.NoError(t, err)

	for _, backend := range []interfaces.StorageBackend{first, second} {
		fetched, fetchErr := backend.Fetch(ctx, id, interfaces.ShareBundleType)
		require.NoError(t, fetchErr)
		assert.Equal(t, payload, fetched)
	}
}

func TestMultiBackendRequiresBackends(t *testing.T) {
	_, err := NewMultiBackend(testLogger())
	assert.Error(t, err)
}

func TestFactoryCreatesBackends(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	memLoc, err := interfaces.NewStorageBackendLocation("mem://")
	require.NoError(t, err)
	mem, err := factory.StorageBackendFor(memLoc)
	require.NoError(t, err)
	assert.Equal(t, "memory", mem.Name())

	fileLoc, err := interfaces.NewStorageBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)
	file, err := factory.StorageBackendFor(fileLoc)
	require.NoError(t, err)
	assert.True(t, file.Available(context.Background()))
}

func TestFactoryRejectsBadLocations(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	_, err := interfaces.NewStorageBackendLocation("redis://localhost")
	assert.Error(t, err)

	s3Loc, err := interfaces.NewStorageBackendLocation("s3:///prefix-only")
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(s3Loc)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	vaultLoc, err := interfaces.NewStorageBackendLocation("vault://vault.example.com:8200/secret/blink")
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(vaultLoc)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	locations := make([]interfaces.StorageBackendLocation, 0, 2)
	for _, uri := range []string{"mem://", "file://" + t.TempDir()} {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		require.NoError(t, err)
		locations = append(locations, loc)
	}

	multi, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("fan-out")
	id, err := multi.Store(ctx, payload, interfaces.DocumentType)
	require.NoError(t, err)

	fetched, err := multi.Fetch(ctx, id, interfaces.DocumentType)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)
}
