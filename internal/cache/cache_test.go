// Package cache_test tests fingerprinting and the content-addressed store.
package cache_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/audiobook-service/internal/cache"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/objectstore"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("storage backend unavailable")

// brokenStore fails every blob operation, simulating storage I/O failure.
type brokenStore struct{}

func (brokenStore) Download(context.Context, string) ([]byte, error) {
	return nil, errBroken
}

func (brokenStore) Upload(context.Context, string, []byte) error {
	return errBroken
}

func (brokenStore) Exists(context.Context, string) (bool, error) {
	return false, errBroken
}

func (brokenStore) Delete(context.Context, string) error {
	return errBroken
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "cache-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()

	dir := t.TempDir()

	blobs, err := objectstore.NewFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	store, err := cache.Open(
		context.Background(), filepath.Join(dir, "index.db"), blobs, newTestLogger(t),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func audioPayload(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 512)
}

func TestFingerprint_DeterministicAndSensitive(t *testing.T) {
	t.Parallel()

	base := cache.Fingerprint("Hello world.", "Puck", core.ProviderGemini, "+0%")

	assert.Equal(t, base, cache.Fingerprint("Hello world.", "Puck", core.ProviderGemini, "+0%"))

	variants := []string{
		cache.Fingerprint("Hello world!", "Puck", core.ProviderGemini, "+0%"),
		cache.Fingerprint("Hello world.", "Charon", core.ProviderGemini, "+0%"),
		cache.Fingerprint("Hello world.", "Puck", core.ProviderPiper, "+0%"),
		cache.Fingerprint("Hello world.", "Puck", core.ProviderGemini, "+10%"),
	}

	seen := map[string]bool{base: true}

	for _, fp := range variants {
		assert.False(t, seen[fp], "fingerprint collision")
		seen[fp] = true
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	fp := cache.Fingerprint("some text", "Puck", core.ProviderGemini, "+0%")
	payload := audioPayload('a')

	_, hit, err := store.Get(ctx, fp)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, store.Put(ctx, fp, payload))

	got, hit, err := store.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, payload, got)
}

func TestStore_PutIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	fp := cache.Fingerprint("idempotent", "Puck", core.ProviderGemini, "+0%")
	payload := audioPayload('b')

	require.NoError(t, store.Put(ctx, fp, payload))
	require.NoError(t, store.Put(ctx, fp, payload))

	count, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, hit, err := store.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, payload, got)
}

func TestStore_RejectsTinyPayload(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	fp := cache.Fingerprint("tiny", "Puck", core.ProviderGemini, "+0%")
	err := store.Put(context.Background(), fp, []byte("too small"))

	require.ErrorIs(t, err, cache.ErrAudioTooSmall)
}

func TestStore_BlobFailureDegradesToMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Seed the index through a working blob store, then reopen it over a
	// broken one: lookups must degrade to misses with a warning error.
	blobs, err := objectstore.NewFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	log := newTestLogger(t)
	ctx := context.Background()
	indexPath := filepath.Join(dir, "index.db")

	seeded, err := cache.Open(ctx, indexPath, blobs, log)
	require.NoError(t, err)

	fp := cache.Fingerprint("degrade", "Puck", core.ProviderGemini, "+0%")
	require.NoError(t, seeded.Put(ctx, fp, audioPayload('c')))
	require.NoError(t, seeded.Close())

	broken, err := cache.Open(ctx, indexPath, brokenStore{}, log)
	require.NoError(t, err)

	defer func() {
		_ = broken.Close()
	}()

	data, hit, err := broken.Get(ctx, fp)
	assert.Nil(t, data)
	assert.False(t, hit)
	require.ErrorIs(t, err, core.ErrCacheIO)
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	ctx := context.Background()
	indexPath := filepath.Join(dir, "index.db")

	blobs, err := objectstore.NewFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	fp := cache.Fingerprint("durable", "Puck", core.ProviderGemini, "+0%")
	payload := audioPayload('d')

	first, err := cache.Open(ctx, indexPath, blobs, log)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, fp, payload))
	require.NoError(t, first.Close())

	second, err := cache.Open(ctx, indexPath, blobs, log)
	require.NoError(t, err)

	defer func() {
		_ = second.Close()
	}()

	got, hit, err := second.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, payload, got)
}

func TestStore_Purge(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	fp := cache.Fingerprint("purgeable", "Puck", core.ProviderGemini, "+0%")
	require.NoError(t, store.Put(ctx, fp, audioPayload('e')))

	// Nothing is older than a week yet.
	removed, err := store.Purge(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// A zero max age purges everything.
	removed, err = store.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit, err := store.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, hit)
}
