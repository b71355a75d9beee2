// Package provider_test tests the synthesis backends against stub servers.
package provider_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/provider"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "provider-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

// audioResponse builds a generateContent response carrying base64 PCM.
func audioResponse(t *testing.T, pcm []byte) []byte {
	t.Helper()

	payload := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{
					"inlineData": map[string]any{
						"data": base64.StdEncoding.EncodeToString(pcm),
					},
				}},
			},
		}},
	}

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	return body
}

func newGemini(t *testing.T, serverURL string) *provider.Gemini {
	t.Helper()

	return provider.NewGemini(provider.GeminiConfig{
		BaseURL:           serverURL,
		Model:             "primary-tts",
		BackupModel:       "backup-tts",
		RequestsPerMinute: 100000,
	}, 5*time.Second, newTestLogger(t))
}

func synthReq(text string) core.SynthesisRequest {
	return core.SynthesisRequest{
		Text:       text,
		Voice:      "Puck",
		Rate:       "+0%",
		Credential: "test-key",
	}
}

func TestGemini_SynthesizeSuccess(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 4800)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "primary-tts:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		_, _ = w.Write(audioResponse(t, pcm))
	}))
	defer server.Close()

	gem := newGemini(t, server.URL)

	audio, err := gem.Synthesize(context.Background(), synthReq("Hello there."))
	require.NoError(t, err)

	// The PCM must come back framed as RIFF/WAVE.
	require.Greater(t, len(audio), len(pcm))
	assert.Equal(t, "RIFF", string(audio[0:4]))
	assert.Equal(t, "WAVE", string(audio[8:12]))
	assert.Len(t, audio, 44+len(pcm))
}

func TestGemini_RateLimitClassification(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusTooManyRequests, http.StatusForbidden, http.StatusUnauthorized} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		gem := newGemini(t, server.URL)

		_, err := gem.Synthesize(context.Background(), synthReq("text"))
		require.ErrorIs(t, err, core.ErrRateLimited, "status %d", status)

		server.Close()
	}
}

func TestGemini_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gem := newGemini(t, server.URL)

	_, err := gem.Synthesize(context.Background(), synthReq("text"))
	require.ErrorIs(t, err, core.ErrTransient)
}

func TestGemini_BadRequestFallsBackToBackupModel(t *testing.T) {
	t.Parallel()

	var models []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ":generateContent")
		models = append(models, model)

		if model == "primary-tts" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		_, _ = w.Write(audioResponse(t, make([]byte, 2400)))
	}))
	defer server.Close()

	gem := newGemini(t, server.URL)

	audio, err := gem.Synthesize(context.Background(), synthReq("text"))
	require.NoError(t, err)
	assert.NotEmpty(t, audio)
	assert.Equal(t, []string{"primary-tts", "backup-tts"}, models)
}

func TestGemini_PersistentBadRequestIsFatal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	gem := newGemini(t, server.URL)

	_, err := gem.Synthesize(context.Background(), synthReq("text"))
	require.ErrorIs(t, err, core.ErrFatal)
}

func TestGemini_EmptyInputsAreFatal(t *testing.T) {
	t.Parallel()

	gem := newGemini(t, "http://127.0.0.1:0")

	_, err := gem.Synthesize(context.Background(), core.SynthesisRequest{Voice: "Puck"})
	require.ErrorIs(t, err, core.ErrFatal)

	_, err = gem.Synthesize(context.Background(), core.SynthesisRequest{Text: "hi"})
	require.ErrorIs(t, err, core.ErrFatal)
}

func TestGemini_NetworkFailureIsTransient(t *testing.T) {
	t.Parallel()

	// Nothing listens here.
	gem := newGemini(t, "http://127.0.0.1:1")

	_, err := gem.Synthesize(context.Background(), synthReq("text"))
	require.ErrorIs(t, err, core.ErrTransient)
}

func TestGemini_EmptyAudioIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	gem := newGemini(t, server.URL)

	_, err := gem.Synthesize(context.Background(), synthReq("text"))
	require.ErrorIs(t, err, core.ErrTransient)
}

func TestPiper_EmptyInputsAreFatal(t *testing.T) {
	t.Parallel()

	pip := provider.NewPiper(provider.PiperConfig{}, time.Second, newTestLogger(t))

	_, err := pip.Synthesize(context.Background(), core.SynthesisRequest{Voice: "en_US-lessac-medium"})
	require.ErrorIs(t, err, core.ErrFatal)

	_, err = pip.Synthesize(context.Background(), core.SynthesisRequest{Text: "hi"})
	require.ErrorIs(t, err, core.ErrFatal)
}

func TestPiper_MissingVoiceModelIsFatal(t *testing.T) {
	t.Parallel()

	pip := provider.NewPiper(provider.PiperConfig{VoicesDir: t.TempDir()}, time.Second, newTestLogger(t))

	_, err := pip.Synthesize(context.Background(), core.SynthesisRequest{
		Text:  "hello",
		Voice: "nonexistent-voice",
	})
	require.ErrorIs(t, err, core.ErrFatal)
}

func TestNew_Dispatch(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	gem, err := provider.New(core.ProviderGemini, provider.Config{}, log)
	require.NoError(t, err)
	assert.Equal(t, core.ProviderGemini, gem.ID())
	assert.True(t, gem.RequiresCredential())

	pip, err := provider.New(core.ProviderPiper, provider.Config{}, log)
	require.NoError(t, err)
	assert.Equal(t, core.ProviderPiper, pip.ID())
	assert.False(t, pip.RequiresCredential())

	_, err = provider.New("espeak", provider.Config{}, log)
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestVoices_CatalogAndDefaults(t *testing.T) {
	t.Parallel()

	geminiVoices := provider.Voices(core.ProviderGemini)
	require.NotEmpty(t, geminiVoices)

	found := false

	for _, v := range geminiVoices {
		if v.ID == provider.DefaultGeminiVoice {
			found = true
		}
	}

	assert.True(t, found, "default voice must be in the catalog")
	assert.Equal(t, provider.DefaultGeminiVoice, provider.DefaultVoice(core.ProviderGemini))
	assert.Equal(t, provider.DefaultPiperVoice, provider.DefaultVoice(core.ProviderPiper))
	assert.Empty(t, provider.DefaultVoice("espeak"))
	assert.Nil(t, provider.Voices("espeak"))
}
