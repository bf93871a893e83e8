package tts

import (
	"context"
	"strings"

	"top10-pipeline/logging"
)

// edgeVoices maps the configured language to an edge-tts neural voice.
var edgeVoices = map[string]string{
	"english":    "en-US-ChristopherNeural",
	"spanish":    "es-ES-AlvaroNeural",
	"french":     "fr-FR-HenriNeural",
	"german":     "de-DE-ConradNeural",
	"italian":    "it-IT-DiegoNeural",
	"portuguese": "pt-BR-AntonioNeural",
	"hindi":      "hi-IN-MadhurNeural",
	"japanese":   "ja-JP-KeitaNeural",
	"korean":     "ko-KR-InJoonNeural",
	"arabic":     "ar-SA-HamedNeural",
	"russian":    "ru-RU-DmitryNeural",
	"turkish":    "tr-TR-AhmetNeural",
}

const defaultVoice = "en-US-ChristopherNeural"

// Edge invokes the edge-tts CLI to synthesize narration.
type Edge struct {
	writeSubtitles bool
	run            runner
}

// NewEdge builds an edge-tts synthesizer. When writeSubtitles is set the
// engine also emits a sidecar .vtt next to each audio file.
func NewEdge(writeSubtitles bool) *Edge {
	return &Edge{writeSubtitles: writeSubtitles, run: execRunner}
}

func (e *Edge) Name() string { return "edge-tts" }

// Synthesize writes spoken text to outPath as mp3.
func (e *Edge) Synthesize(ctx context.Context, text, language, outPath string) error {
	voice := edgeVoices[strings.ToLower(strings.TrimSpace(language))]
	if voice == "" {
		voice = defaultVoice
	}

	args := []string{
		"--voice", voice,
		"--text", text,
		"--write-media", outPath,
	}
	if e.writeSubtitles {
		args = append(args, "--write-subtitles", strings.TrimSuffix(outPath, ".mp3")+".vtt")
	}

	if err := e.run(ctx, "edge-tts", args...); err != nil {
		return err
	}
	log := logging.For("tts")
	log.Debug().Str("voice", voice).Str("file", outPath).Msg("edge-tts done")
	return nil
}
