// Package cache implements the content-addressed audio cache: a durable
// index mapping chunk fingerprints to blobs held in an object store. The
// cache is what makes jobs resumable; entries are write-once, read-many.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
	_ "modernc.org/sqlite"
)

// minValidSize guards against caching truncated responses; anything smaller
// is treated as corrupt and reported as a miss.
const minValidSize = 200

const indexDirPermissions = 0o750

// ErrAudioTooSmall is returned by Put for payloads below the validity
// threshold.
var ErrAudioTooSmall = errors.New("audio payload below minimum valid size")

// fieldSeparator keeps fingerprint inputs unambiguous: no synthesis
// parameter may contain it, so (text, voice) pairs can never collide with
// shifted boundaries.
const fieldSeparator = "\x1f"

// Fingerprint derives the deterministic cache key for one chunk from every
// parameter that affects the synthesized audio.
func Fingerprint(chunkText, voice string, provider core.ProviderID, rate string) string {
	payload := strings.Join(
		[]string{string(provider), voice, rate, chunkText},
		fieldSeparator,
	)
	sum := sha256.Sum256([]byte(payload))

	return hex.EncodeToString(sum[:])
}

// Store is the content-addressed cache: blobs in a core.ObjectStore, plus a
// SQLite index (fingerprint → object key, created-at) that survives process
// restarts. Lookups and writes are safe to call concurrently; SQLite and
// the blob stores serialize internally.
type Store struct {
	blobs core.ObjectStore
	db    *sql.DB
	log   *logger.Logger
	clock func() time.Time
}

// Open initializes the cache index at indexPath and wires it to the given
// blob store.
func Open(ctx context.Context, indexPath string, blobs core.ObjectStore, log *logger.Logger) (*Store, error) {
	dir := filepath.Dir(indexPath)
	if dir != "." && dir != "" {
		err := os.MkdirAll(dir, indexDirPermissions)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache index directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", indexPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	pingErr := db.PingContext(ctx)
	if pingErr != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping cache index: %w", pingErr)
	}

	store := &Store{blobs: blobs, db: db, log: log, clock: time.Now}

	schemaErr := store.initSchema(ctx)
	if schemaErr != nil {
		_ = db.Close()

		return nil, schemaErr
	}

	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS entries (
    fingerprint TEXT PRIMARY KEY,
    object_key  TEXT NOT NULL,
    size        INTEGER NOT NULL,
    created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
`

	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return nil
}

// Close releases the index database.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close cache index: %w", err)
	}

	return nil
}

// Get returns the cached audio for a fingerprint. The second return value
// reports a hit. Storage failures never propagate as hard errors: they
// degrade to a miss, with the error returned so the caller can log a
// warning.
func (s *Store) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	var (
		objectKey string
		size      int64
	)

	row := s.db.QueryRowContext(
		ctx,
		`SELECT object_key, size FROM entries WHERE fingerprint = ?`,
		fingerprint,
	)

	err := row.Scan(&objectKey, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: index lookup: %w", core.ErrCacheIO, err)
	}

	if size < minValidSize {
		return nil, false, nil
	}

	data, err := s.blobs.Download(ctx, objectKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: blob download: %w", core.ErrCacheIO, err)
	}

	if len(data) < minValidSize {
		return nil, false, nil
	}

	return data, true, nil
}

// Put stores synthesized audio under its fingerprint. Writing the same
// fingerprint twice is a no-op after the first success; content is fully
// determined by the key.
func (s *Store) Put(ctx context.Context, fingerprint string, audio []byte) error {
	if len(audio) < minValidSize {
		return fmt.Errorf("%w: %d bytes", ErrAudioTooSmall, len(audio))
	}

	uploadErr := s.blobs.Upload(ctx, fingerprint, audio)
	if uploadErr != nil {
		return fmt.Errorf("%w: blob upload: %w", core.ErrCacheIO, uploadErr)
	}

	_, indexErr := s.db.ExecContext(
		ctx,
		`INSERT INTO entries(fingerprint, object_key, size, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		fingerprint, fingerprint, len(audio), s.clock().UTC(),
	)
	if indexErr != nil {
		return fmt.Errorf("%w: index insert: %w", core.ErrCacheIO, indexErr)
	}

	return nil
}

// Len returns the number of indexed entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`)

	err := row.Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}

	return count, nil
}

// Purge removes entries created before the cutoff along with their blobs
// and returns how many were removed. A zero maxAge purges everything.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.clock().UTC().Add(-maxAge)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT fingerprint, object_key FROM entries WHERE created_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale cache entries: %w", err)
	}

	type victim struct{ fingerprint, objectKey string }

	var victims []victim

	for rows.Next() {
		var v victim

		scanErr := rows.Scan(&v.fingerprint, &v.objectKey)
		if scanErr != nil {
			_ = rows.Close()

			return 0, fmt.Errorf("failed to scan stale cache entry: %w", scanErr)
		}

		victims = append(victims, v)
	}

	closeErr := rows.Close()
	if closeErr != nil {
		return 0, fmt.Errorf("failed to close stale entry cursor: %w", closeErr)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return 0, fmt.Errorf("failed to iterate stale cache entries: %w", rowsErr)
	}

	removed := 0

	for _, v := range victims {
		deleteErr := s.blobs.Delete(ctx, v.objectKey)
		if deleteErr != nil {
			s.log.Warn("Failed to delete cached blob %s: %v", v.objectKey, deleteErr)

			continue
		}

		_, indexErr := s.db.ExecContext(
			ctx, `DELETE FROM entries WHERE fingerprint = ?`, v.fingerprint,
		)
		if indexErr != nil {
			s.log.Warn("Failed to drop cache index row %s: %v", v.fingerprint, indexErr)

			continue
		}

		removed++
	}

	return removed, nil
}
