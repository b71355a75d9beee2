package extract_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "extract-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func TestExtract_PlainTextAndMarkdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ex := extract.New("", "", newTestLogger(t))

	for _, name := range []string{"book.txt", "book.md"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody text."), 0o600))

		text, err := ex.Extract(context.Background(), path)
		require.NoError(t, err)
		assert.Contains(t, text, "Body text.")
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t "), 0o600))

	ex := extract.New("", "", newTestLogger(t))

	_, err := ex.Extract(context.Background(), path)
	require.ErrorIs(t, err, extract.ErrEmptyDocument)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	ex := extract.New("", "", newTestLogger(t))

	_, err := ex.Extract(context.Background(), "audio.mp3")
	require.ErrorIs(t, err, extract.ErrUnsupportedFormat)
}

func TestExtract_MissingPdftotext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	ex := extract.New(filepath.Join(dir, "no-such-pdftotext"), "", newTestLogger(t))

	_, err := ex.Extract(context.Background(), path)
	require.ErrorIs(t, err, extract.ErrExtractorMissing)
}

func TestExtract_MissingPandocForEPUB(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "book.epub")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o600))

	ex := extract.New("", filepath.Join(dir, "no-such-pandoc"), newTestLogger(t))

	_, err := ex.Extract(context.Background(), path)
	require.ErrorIs(t, err, extract.ErrExtractorMissing)
}
