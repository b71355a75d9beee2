package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// Piper defaults.
const (
	DefaultPiperBinary = "piper"
	piperModelExt      = ".onnx"
)

// PiperConfig configures the local piper backend.
type PiperConfig struct {
	BinaryPath string
	VoicesDir  string
}

func (c PiperConfig) withDefaults() PiperConfig {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultPiperBinary
	}

	return c
}

// Piper runs the piper binary locally. It needs no credential, which makes
// it the fallback backend when no API keys are configured.
type Piper struct {
	cfg     PiperConfig
	timeout time.Duration
	log     *logger.Logger
}

// NewPiper builds the local exec backend.
func NewPiper(cfg PiperConfig, timeout time.Duration, log *logger.Logger) *Piper {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return &Piper{cfg: cfg.withDefaults(), timeout: timeout, log: log}
}

// ID returns the provider identifier.
func (p *Piper) ID() core.ProviderID {
	return core.ProviderPiper
}

// RequiresCredential reports that piper runs without one.
func (p *Piper) RequiresCredential() bool {
	return false
}

// Synthesize runs piper over the chunk text and returns the produced WAV
// bytes. The subprocess inherits the call context, so cancellation kills
// it promptly.
func (p *Piper) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrFatal, ErrTextEmpty)
	}

	if req.Voice == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrFatal, ErrVoiceEmpty)
	}

	modelPath := p.modelPath(req.Voice)

	_, statErr := os.Stat(modelPath)
	if statErr != nil {
		return nil, fmt.Errorf("%w: voice model %s: %w", core.ErrFatal, modelPath, statErr)
	}

	tempFile, err := os.CreateTemp("", "piper-chunk-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", core.ErrTransient, err)
	}

	tempPath := tempFile.Name()
	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			p.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"--model", modelPath,
		"--output_file", tempPath,
	}

	if scale, ok := lengthScaleFromRate(req.Rate); ok {
		args = append(args, "--length_scale", scale)
	}

	// #nosec G204 -- binary and model paths come from validated configuration
	cmd := exec.CommandContext(callCtx, p.cfg.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, classifyExecError(callCtx, runErr, output)
	}

	audio, readErr := os.ReadFile(tempPath)
	if readErr != nil {
		return nil, fmt.Errorf("%w: read piper output: %w", core.ErrTransient, readErr)
	}

	if len(audio) < minAudioBytes {
		return nil, fmt.Errorf("%w: piper produced %d bytes", core.ErrTransient, len(audio))
	}

	return audio, nil
}

// modelPath resolves a voice name to its model file. Absolute paths and
// explicit .onnx names pass through untouched.
func (p *Piper) modelPath(voice string) string {
	if filepath.IsAbs(voice) || strings.HasSuffix(voice, piperModelExt) {
		return voice
	}

	return filepath.Join(p.cfg.VoicesDir, voice+piperModelExt)
}

// lengthScaleFromRate converts an Edge-style rate string ("+10%", "-20%")
// into piper's length_scale argument. Faster speech means a smaller scale.
func lengthScaleFromRate(rateStr string) (string, bool) {
	rateStr = strings.TrimSpace(rateStr)
	if rateStr == "" || rateStr == "+0%" {
		return "", false
	}

	trimmed := strings.TrimSuffix(rateStr, "%")

	percent, err := strconv.ParseFloat(strings.TrimPrefix(trimmed, "+"), 64)
	if err != nil {
		return "", false
	}

	scale := 1.0 / (1.0 + percent/100.0)
	if scale <= 0 {
		return "", false
	}

	return strconv.FormatFloat(scale, 'f', 2, 64), true
}

// classifyExecError separates cancellation and missing-binary conditions
// from genuine synthesis failures.
func classifyExecError(ctx context.Context, runErr error, output []byte) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: piper call aborted: %w", core.ErrTransient, ctx.Err())
	}

	if errors.Is(runErr, exec.ErrNotFound) {
		return fmt.Errorf("%w: piper binary not found: %w", core.ErrFatal, runErr)
	}

	return fmt.Errorf(
		"%w: piper execution failed: %w - output: %s",
		core.ErrFatal, runErr, truncate(bytes.TrimSpace(output)),
	)
}
