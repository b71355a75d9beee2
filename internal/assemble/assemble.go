// Package assemble concatenates ordered chunk audio into the final output
// file. The heavy lifting is delegated to ffmpeg; when ffmpeg is absent the
// package degrades to copying the per-chunk files next to the output path.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// External tool defaults.
const (
	DefaultFFmpegBinary  = "ffmpeg"
	DefaultFFprobeBinary = "ffprobe"
	DefaultTimeout       = 10 * time.Minute

	// mp3Quality is the libmp3lame VBR quality level for the final file.
	mp3Quality = "2"

	// normalizeFilter evens out loudness across chunks from different
	// synthesis sessions.
	normalizeFilter = "dynaudnorm,loudnorm"

	maxToolOutput = 400
)

// Static errors.
var (
	ErrNoChunks     = errors.New("no chunk files to assemble")
	ErrChunkMissing = errors.New("chunk file missing")
)

// Assembler is the concatenation contract the orchestrator consumes.
type Assembler interface {
	Assemble(ctx context.Context, chunkFiles []string, outputPath string) error
}

// Config tunes the external tool invocation.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// Normalize applies the loudness filter chain during the concat pass.
	Normalize bool
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = DefaultFFmpegBinary
	}

	if c.FFprobePath == "" {
		c.FFprobePath = DefaultFFprobeBinary
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return c
}

// FFmpeg assembles chunks with an ffmpeg concat-list invocation.
type FFmpeg struct {
	cfg Config
	log *logger.Logger
}

// NewFFmpeg returns an ffmpeg-backed assembler.
func NewFFmpeg(cfg Config, log *logger.Logger) *FFmpeg {
	return &FFmpeg{cfg: cfg.withDefaults(), log: log}
}

// Detect probes for ffmpeg and returns the best available assembler. When
// ffmpeg is missing the fallback keeps the per-chunk files instead, reported
// as a warning rather than a failure.
func Detect(cfg Config, log *logger.Logger) (Assembler, bool) {
	cfg = cfg.withDefaults()

	_, lookErr := exec.LookPath(cfg.FFmpegPath)
	if lookErr != nil {
		log.Warn("%s not found, falling back to per-chunk output files", cfg.FFmpegPath)

		return NewChunkCopy(log), false
	}

	return NewFFmpeg(cfg, log), true
}

// Assemble concatenates the chunk files, in the given order, into outputPath.
func (a *FFmpeg) Assemble(ctx context.Context, chunkFiles []string, outputPath string) error {
	checkErr := checkChunks(chunkFiles)
	if checkErr != nil {
		return checkErr
	}

	listPath, listErr := writeConcatList(chunkFiles)
	if listErr != nil {
		return fmt.Errorf("%w: %w", core.ErrAssembly, listErr)
	}

	defer func() {
		_ = os.Remove(listPath)
	}()

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath}

	if a.cfg.Normalize {
		args = append(args, "-af", normalizeFilter)
	}

	if strings.EqualFold(filepath.Ext(outputPath), ".mp3") {
		args = append(args, "-c:a", "libmp3lame", "-q:a", mp3Quality)
	}

	args = append(args, outputPath)

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.cfg.FFmpegPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("%w: %s: %w: %s",
			core.ErrAssembly, a.cfg.FFmpegPath, runErr, truncate(output))
	}

	a.log.Info("Assembled %d chunks into %s", len(chunkFiles), outputPath)

	return nil
}

// Duration probes the finished file's play time via ffprobe.
func (a *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, runErr := cmd.Output()
	if runErr != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", path, runErr)
	}

	seconds, parseErr := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if parseErr != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", path, parseErr)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// ChunkCopy is the degraded assembler used when ffmpeg is unavailable. It
// copies every chunk file into a directory next to the requested output.
type ChunkCopy struct {
	log *logger.Logger
}

// NewChunkCopy returns the per-chunk fallback assembler.
func NewChunkCopy(log *logger.Logger) *ChunkCopy {
	return &ChunkCopy{log: log}
}

// Assemble copies the chunk files into "<output without extension>.chunks/".
func (a *ChunkCopy) Assemble(_ context.Context, chunkFiles []string, outputPath string) error {
	checkErr := checkChunks(chunkFiles)
	if checkErr != nil {
		return checkErr
	}

	dir := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".chunks"

	mkErr := os.MkdirAll(dir, 0o750)
	if mkErr != nil {
		return fmt.Errorf("%w: create chunk dir: %w", core.ErrAssembly, mkErr)
	}

	for _, src := range chunkFiles {
		copyErr := copyFile(src, filepath.Join(dir, filepath.Base(src)))
		if copyErr != nil {
			return fmt.Errorf("%w: %w", core.ErrAssembly, copyErr)
		}
	}

	a.log.Warn("No concatenation tool available: %d chunk files kept in %s", len(chunkFiles), dir)

	return nil
}

// checkChunks validates that the file list is non-empty and fully present.
func checkChunks(chunkFiles []string) error {
	if len(chunkFiles) == 0 {
		return fmt.Errorf("%w: %w", core.ErrAssembly, ErrNoChunks)
	}

	for _, path := range chunkFiles {
		_, statErr := os.Stat(path)
		if statErr != nil {
			return fmt.Errorf("%w: %w: %s", core.ErrAssembly, ErrChunkMissing, path)
		}
	}

	return nil
}

// writeConcatList writes the ffmpeg concat demuxer list file. Single quotes
// in paths use the shell-style '\'' escape the demuxer expects.
func writeConcatList(chunkFiles []string) (string, error) {
	listFile, createErr := os.CreateTemp("", "audiobook-concat-*.txt")
	if createErr != nil {
		return "", fmt.Errorf("create concat list: %w", createErr)
	}

	var b strings.Builder

	for _, path := range chunkFiles {
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	_, writeErr := listFile.WriteString(b.String())
	if writeErr != nil {
		_ = listFile.Close()
		_ = os.Remove(listFile.Name())

		return "", fmt.Errorf("write concat list: %w", writeErr)
	}

	closeErr := listFile.Close()
	if closeErr != nil {
		_ = os.Remove(listFile.Name())

		return "", fmt.Errorf("close concat list: %w", closeErr)
	}

	return listFile.Name(), nil
}

func copyFile(src, dst string) error {
	in, openErr := os.Open(src)
	if openErr != nil {
		return fmt.Errorf("open %s: %w", src, openErr)
	}

	defer func() {
		_ = in.Close()
	}()

	out, createErr := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if createErr != nil {
		return fmt.Errorf("create %s: %w", dst, createErr)
	}

	_, copyErr := io.Copy(out, in)
	if copyErr != nil {
		_ = out.Close()

		return fmt.Errorf("copy to %s: %w", dst, copyErr)
	}

	closeErr := out.Close()
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", dst, closeErr)
	}

	return nil
}

func truncate(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > maxToolOutput {
		return text[:maxToolOutput] + "..."
	}

	return text
}
