package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
	"golang.org/x/time/rate"
)

// Gemini API defaults. The backup model absorbs transient 400 responses the
// preview model is known to produce.
const (
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultGeminiModel       = "gemini-2.5-flash-preview-tts"
	DefaultGeminiBackupModel = "gemini-2.0-flash-exp"
	DefaultCallTimeout       = 120 * time.Second
	defaultRequestsPerMinute = 8
)

// HTTP header values.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// minAudioBytes rejects responses too small to hold real PCM data.
const minAudioBytes = 100

// GeminiConfig configures the Gemini TTS backend.
type GeminiConfig struct {
	BaseURL           string
	Model             string
	BackupModel       string
	RequestsPerMinute int
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGeminiBaseURL
	}

	if c.Model == "" {
		c.Model = DefaultGeminiModel
	}

	if c.BackupModel == "" {
		c.BackupModel = DefaultGeminiBackupModel
	}

	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}

	return c
}

// Gemini synthesizes speech through the Gemini generateContent API. A
// client-side limiter paces requests below the per-key quota so the
// provider is not the one tripping 429s; the key pool handles the quotas
// the limiter cannot see.
type Gemini struct {
	httpClient *http.Client
	cfg        GeminiConfig
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewGemini builds the Gemini backend.
func NewGemini(cfg GeminiConfig, timeout time.Duration, log *logger.Logger) *Gemini {
	cfg = cfg.withDefaults()

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	perRequest := time.Minute / time.Duration(cfg.RequestsPerMinute)

	return &Gemini{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(perRequest), 1),
		log:        log,
	}
}

// ID returns the provider identifier.
func (g *Gemini) ID() core.ProviderID {
	return core.ProviderGemini
}

// RequiresCredential reports that Gemini calls need an API key.
func (g *Gemini) RequiresCredential() bool {
	return true
}

// geminiRequest is the generateContent payload for audio output.
type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// geminiResponse mirrors only the fields the pipeline consumes.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					Data string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Synthesize converts one chunk of text to WAV audio. HTTP 429 maps to
// core.ErrRateLimited, credential rejections likewise (the pool rotates
// them away), network failures to core.ErrTransient, and malformed-request
// responses to core.ErrFatal after the backup model has been tried.
func (g *Gemini) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrFatal, ErrTextEmpty)
	}

	if req.Voice == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrFatal, ErrVoiceEmpty)
	}

	waitErr := g.limiter.Wait(ctx)
	if waitErr != nil {
		return nil, fmt.Errorf("%w: limiter wait: %w", core.ErrTransient, waitErr)
	}

	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}

	audio, err := g.callModel(ctx, model, req)
	if err == nil {
		return audio, nil
	}

	// One retry against the backup model absorbs model-specific 400s.
	if isBadRequest(err) && model != g.cfg.BackupModel {
		g.log.Warn("Model %s rejected the request, retrying with %s", model, g.cfg.BackupModel)

		return g.callModel(ctx, g.cfg.BackupModel, req)
	}

	return nil, err
}

func (g *Gemini) callModel(ctx context.Context, model string, req core.SynthesisRequest) ([]byte, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: req.Voice},
				},
			},
		},
	}

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", core.ErrFatal, marshalErr)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.cfg.BaseURL, model, req.Credential)

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("%w: build request: %w", core.ErrFatal, reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, doErr := g.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransient, doErr)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: read response: %w", core.ErrTransient, readErr)
	}

	classified := classifyStatus(resp.StatusCode, respBody)
	if classified != nil {
		return nil, classified
	}

	return decodeAudio(respBody)
}

// classifyStatus maps HTTP status codes onto the pipeline error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", core.ErrRateLimited)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// An unusable credential behaves like an exhausted one: rotate.
		return fmt.Errorf("%w: HTTP %d credential rejected", core.ErrRateLimited, status)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: HTTP 400: %s", core.ErrFatal, truncate(body))
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: HTTP %d", core.ErrTransient, status)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", core.ErrFatal, status, truncate(body))
	}
}

// isBadRequest reports whether the error came from an HTTP 400 response.
func isBadRequest(err error) bool {
	return errors.Is(err, core.ErrFatal) && strings.Contains(err.Error(), "HTTP 400")
}

// decodeAudio extracts the base64 PCM payload and wraps it in a WAV header.
func decodeAudio(body []byte) ([]byte, error) {
	var parsed geminiResponse

	unmarshalErr := json.Unmarshal(body, &parsed)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: decode response: %w", core.ErrTransient, unmarshalErr)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: response carried no audio parts", core.ErrTransient)
	}

	encoded := parsed.Candidates[0].Content.Parts[0].InlineData.Data
	if encoded == "" {
		return nil, fmt.Errorf("%w: response carried empty audio data", core.ErrTransient)
	}

	pcm, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode audio payload: %w", core.ErrTransient, decodeErr)
	}

	if len(pcm) < minAudioBytes {
		return nil, fmt.Errorf("%w: audio payload too small (%d bytes)", core.ErrTransient, len(pcm))
	}

	return wavFromPCM(pcm), nil
}

const maxErrorBodyBytes = 120

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	return string(body)
}
