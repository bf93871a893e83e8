package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"top10-pipeline/services"
)

const geminiTTSEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

// GeminiTTS synthesizes speech through Gemini's audio-output models. The
// API returns raw 24kHz s16le PCM which is transcoded to mp3 with ffmpeg.
type GeminiTTS struct {
	apiKey      string
	model       string
	voice       string
	secondVoice string
	httpClient  *http.Client
	run         runner

	// MultiSpeaker switches to the two-voice dialog configuration.
	MultiSpeaker bool
}

// NewGeminiTTS builds a Gemini speech backend.
func NewGeminiTTS(apiKey, model, voice string) *GeminiTTS {
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	if voice == "" {
		voice = "Charon"
	}
	return &GeminiTTS{
		apiKey:      apiKey,
		model:       model,
		voice:       voice,
		secondVoice: "Kore",
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		run:         execRunner,
	}
}

func (g *GeminiTTS) Name() string { return "gemini-tts" }

type geminiTTSPart struct {
	Text string `json:"text"`
}

type geminiTTSContent struct {
	Parts []geminiTTSPart `json:"parts"`
}

type geminiTTSVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiTTSVoiceConfig struct {
	PrebuiltVoiceConfig geminiTTSVoice `json:"prebuiltVoiceConfig"`
}

type geminiTTSSpeakerConfig struct {
	Speaker     string               `json:"speaker"`
	VoiceConfig geminiTTSVoiceConfig `json:"voiceConfig"`
}

type geminiTTSMultiSpeaker struct {
	SpeakerVoiceConfigs []geminiTTSSpeakerConfig `json:"speakerVoiceConfigs"`
}

type geminiTTSSpeechConfig struct {
	VoiceConfig             *geminiTTSVoiceConfig  `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiTTSMultiSpeaker `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiTTSRequest struct {
	Contents         []geminiTTSContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string              `json:"responseModalities"`
		SpeechConfig       geminiTTSSpeechConfig `json:"speechConfig"`
	} `json:"generationConfig"`
}

type geminiTTSResponse struct {
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

// Synthesize writes spoken text to outPath as mp3.
func (g *GeminiTTS) Synthesize(ctx context.Context, text, language, outPath string) error {
	if g.apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not set")
	}

	var reqBody geminiTTSRequest
	reqBody.Contents = []geminiTTSContent{{Parts: []geminiTTSPart{{Text: text}}}}
	reqBody.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	if g.MultiSpeaker {
		reqBody.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig = &geminiTTSMultiSpeaker{
			SpeakerVoiceConfigs: []geminiTTSSpeakerConfig{
				{Speaker: "Speaker 1", VoiceConfig: geminiTTSVoiceConfig{PrebuiltVoiceConfig: geminiTTSVoice{VoiceName: g.voice}}},
				{Speaker: "Speaker 2", VoiceConfig: geminiTTSVoiceConfig{PrebuiltVoiceConfig: geminiTTSVoice{VoiceName: g.secondVoice}}},
			},
		}
	} else {
		reqBody.GenerationConfig.SpeechConfig.VoiceConfig = &geminiTTSVoiceConfig{PrebuiltVoiceConfig: geminiTTSVoice{VoiceName: g.voice}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiTTSEndpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini tts request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &services.HTTPError{Service: "gemini-tts", StatusCode: resp.StatusCode, Body: string(respBytes)}
	}

	var out geminiTTSResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return fmt.Errorf("parse gemini tts response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("gemini tts returned no audio")
	}

	pcm, err := base64.StdEncoding.DecodeString(out.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}

	rawPath := outPath + ".pcm"
	if err := os.WriteFile(rawPath, pcm, 0o644); err != nil {
		return err
	}
	defer os.Remove(rawPath)

	return g.run(ctx, "ffmpeg", "-y",
		"-f", "s16le", "-ar", "24000", "-ac", "1",
		"-i", rawPath,
		"-codec:a", "libmp3lame", "-q:a", "2",
		outPath,
	)
}
