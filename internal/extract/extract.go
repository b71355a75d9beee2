// Package extract turns source documents into plain text for chunking.
// Plain text and markdown are read directly; PDF is delegated to the
// external pdftotext tool.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

const (
	defaultPdftotextBinary = "pdftotext"
	defaultPandocBinary    = "pandoc"
	extractTimeout         = 2 * time.Minute
)

// Static errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtractorMissing  = errors.New("external extractor not installed")
	ErrEmptyDocument     = errors.New("document contains no text")
)

// Extractor produces plain text from a source document.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FileExtractor dispatches on the file extension.
type FileExtractor struct {
	pdftotext string
	pandoc    string
	log       *logger.Logger
}

// New returns an extractor using the given converter binaries, or the ones
// on PATH when empty.
func New(pdftotextPath, pandocPath string, log *logger.Logger) *FileExtractor {
	if pdftotextPath == "" {
		pdftotextPath = defaultPdftotextBinary
	}

	if pandocPath == "" {
		pandocPath = defaultPandocBinary
	}

	return &FileExtractor{pdftotext: pdftotextPath, pandoc: pandocPath, log: log}
}

// Extract reads the document at path and returns its raw text.
func (e *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", "":
		return e.extractPlain(path)
	case ".pdf":
		return e.extractPDF(ctx, path)
	case ".epub":
		return e.extractEPUB(ctx, path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func (e *FileExtractor) extractPlain(path string) (string, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", fmt.Errorf("read document %s: %w", path, readErr)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	return text, nil
}

// extractPDF shells out to pdftotext, writing to stdout via the "-" target.
func (e *FileExtractor) extractPDF(ctx context.Context, path string) (string, error) {
	_, lookErr := exec.LookPath(e.pdftotext)
	if lookErr != nil {
		return "", fmt.Errorf("%w: %s (install poppler-utils)", ErrExtractorMissing, e.pdftotext)
	}

	runCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.pdftotext, "-layout", path, "-")

	output, runErr := cmd.Output()
	if runErr != nil {
		return "", fmt.Errorf("%s failed on %s: %w", e.pdftotext, path, runErr)
	}

	text := string(output)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	e.log.Info("Extracted %d bytes of text from %s", len(text), path)

	return text, nil
}

// extractEPUB shells out to pandoc for a plain-text rendering of the book.
func (e *FileExtractor) extractEPUB(ctx context.Context, path string) (string, error) {
	_, lookErr := exec.LookPath(e.pandoc)
	if lookErr != nil {
		return "", fmt.Errorf("%w: %s (install pandoc)", ErrExtractorMissing, e.pandoc)
	}

	runCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.pandoc, "-t", "plain", path)

	output, runErr := cmd.Output()
	if runErr != nil {
		return "", fmt.Errorf("%s failed on %s: %w", e.pandoc, path, runErr)
	}

	text := string(output)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	e.log.Info("Extracted %d bytes of text from %s", len(text), path)

	return text, nil
}
