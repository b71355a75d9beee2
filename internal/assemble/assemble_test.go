package assemble_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/audiobook-service/internal/assemble"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "assemble-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func writeChunks(t *testing.T, dir string, count int) []string {
	t.Helper()

	files := make([]string, 0, count)

	for i := range count {
		path := filepath.Join(dir, "chunk_"+string(rune('a'+i))+".wav")
		require.NoError(t, os.WriteFile(path, []byte("audio-"+string(rune('a'+i))), 0o600))
		files = append(files, path)
	}

	return files
}

func TestFFmpeg_RejectsEmptyChunkList(t *testing.T) {
	t.Parallel()

	asm := assemble.NewFFmpeg(assemble.Config{}, newTestLogger(t))

	err := asm.Assemble(context.Background(), nil, "out.mp3")
	require.ErrorIs(t, err, core.ErrAssembly)
	require.ErrorIs(t, err, assemble.ErrNoChunks)
}

func TestFFmpeg_RejectsMissingChunkFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := writeChunks(t, dir, 2)
	files = append(files, filepath.Join(dir, "chunk_gone.wav"))

	asm := assemble.NewFFmpeg(assemble.Config{}, newTestLogger(t))

	err := asm.Assemble(context.Background(), files, filepath.Join(dir, "out.mp3"))
	require.ErrorIs(t, err, core.ErrAssembly)
	require.ErrorIs(t, err, assemble.ErrChunkMissing)
}

func TestFFmpeg_MissingBinaryReportsAssemblyError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := writeChunks(t, dir, 2)

	asm := assemble.NewFFmpeg(assemble.Config{
		FFmpegPath: filepath.Join(dir, "no-such-ffmpeg"),
	}, newTestLogger(t))

	err := asm.Assemble(context.Background(), files, filepath.Join(dir, "out.mp3"))
	require.ErrorIs(t, err, core.ErrAssembly)
}

func TestChunkCopy_KeepsPerChunkFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := writeChunks(t, dir, 3)
	outputPath := filepath.Join(dir, "book.mp3")

	asm := assemble.NewChunkCopy(newTestLogger(t))

	err := asm.Assemble(context.Background(), files, outputPath)
	require.NoError(t, err)

	chunkDir := filepath.Join(dir, "book.chunks")

	for _, src := range files {
		copied, readErr := os.ReadFile(filepath.Join(chunkDir, filepath.Base(src)))
		require.NoError(t, readErr)

		original, readErr := os.ReadFile(src)
		require.NoError(t, readErr)

		assert.Equal(t, original, copied)
	}
}

func TestDetect_FallsBackWithoutFFmpeg(t *testing.T) {
	t.Parallel()

	asm, available := assemble.Detect(assemble.Config{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
	}, newTestLogger(t))

	assert.False(t, available)
	assert.IsType(t, &assemble.ChunkCopy{}, asm)
}
