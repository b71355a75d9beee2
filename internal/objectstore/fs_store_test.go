package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/audiobook-service/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_UploadDownloadExists(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "deadbeef.wav"
	payload := []byte("chunk audio bytes")

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, key, payload))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFSStore_UploadIsWriteOnce(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "cafebabe.wav"

	require.NoError(t, store.Upload(ctx, key, []byte("first")))
	require.NoError(t, store.Upload(ctx, key, []byte("second write ignored")))

	got, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestFSStore_RejectsTraversalKeys(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewFS(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/b", `a\b`} {
		uploadErr := store.Upload(ctx, key, []byte("x"))
		require.ErrorIs(t, uploadErr, objectstore.ErrInvalidKey, "key %q", key)
	}
}

func TestFSStore_NoTempLeftovers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := objectstore.NewFS(root)
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), "obj.wav", []byte("x")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "obj.wav", filepath.Base(entries[0].Name()))
}
