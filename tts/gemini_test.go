package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func geminiAudioResponse() *http.Response {
	payload := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	body := `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + payload + `"}}]}}]}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func newTestGemini(t *testing.T, capture *geminiTTSRequest) *GeminiTTS {
	t.Helper()
	g := NewGeminiTTS("test-key", "", "")
	g.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, capture))
		return geminiAudioResponse(), nil
	})}
	g.run = func(context.Context, string, ...string) error { return nil }
	return g
}

func TestGeminiSingleVoiceRequest(t *testing.T) {
	var sent geminiTTSRequest
	g := newTestGemini(t, &sent)

	out := filepath.Join(t.TempDir(), "out.mp3")
	require.NoError(t, g.Synthesize(context.Background(), "hello", "english", out))

	require.NotNil(t, sent.GenerationConfig.SpeechConfig.VoiceConfig)
	assert.Nil(t, sent.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig)
	assert.Equal(t, "Charon", sent.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, []string{"AUDIO"}, sent.GenerationConfig.ResponseModalities)
}

func TestGeminiMultiSpeakerRequest(t *testing.T) {
	var sent geminiTTSRequest
	g := newTestGemini(t, &sent)
	g.MultiSpeaker = true

	out := filepath.Join(t.TempDir(), "out.mp3")
	require.NoError(t, g.Synthesize(context.Background(), "Speaker 1: hi\nSpeaker 2: hey", "english", out))

	assert.Nil(t, sent.GenerationConfig.SpeechConfig.VoiceConfig)
	ms := sent.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig
	require.NotNil(t, ms)
	require.Len(t, ms.SpeakerVoiceConfigs, 2)
	assert.Equal(t, "Speaker 1", ms.SpeakerVoiceConfigs[0].Speaker)
	assert.Equal(t, "Charon", ms.SpeakerVoiceConfigs[0].VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, "Speaker 2", ms.SpeakerVoiceConfigs[1].Speaker)
	assert.Equal(t, "Kore", ms.SpeakerVoiceConfigs[1].VoiceConfig.PrebuiltVoiceConfig.VoiceName)
}

func TestGeminiMissingKeyFails(t *testing.T) {
	g := NewGeminiTTS("", "", "")
	assert.Error(t, g.Synthesize(context.Background(), "hi", "english", "/tmp/out.mp3"))
}
