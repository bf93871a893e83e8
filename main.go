package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"top10-pipeline/assembly"
	"top10-pipeline/cache"
	"top10-pipeline/config"
	"top10-pipeline/content"
	"top10-pipeline/logging"
	"top10-pipeline/media"
	"top10-pipeline/pipeline"
	"top10-pipeline/publish"
	"top10-pipeline/ratelimit"
	"top10-pipeline/segment"
	"top10-pipeline/services"
	"top10-pipeline/textgen"
	"top10-pipeline/topics"
	"top10-pipeline/translate"
	"top10-pipeline/tts"
	"top10-pipeline/types"
)

func main() {
	// Local dev only; CI injects secrets through the environment.
	_ = godotenv.Load()

	logging.Init(os.Getenv("LOG_LEVEL"), os.Stderr)
	log := logging.For("main")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Cache, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Str("dir", dir).Err(err).Msg("failed to create dir")
		}
	}

	runID := uuid.NewString()[:8]
	runDir := filepath.Join(cfg.Paths.Output, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create run dir")
	}

	log.Info().Str("run_id", runID).Str("dir", runDir).Msg("🎬 pipeline starting")

	ctx := context.Background()
	if err := run(ctx, cfg, runID, runDir); err != nil {
		log.Error().Err(err).Msg("❌ pipeline failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runID, runDir string) error {
	log := logging.For("main")

	// Shared process-wide resources, passed by reference everywhere.
	limiter := ratelimit.New()
	adapter := services.NewAdapter(limiter)
	store, err := cache.New(cfg.Paths.Cache, 0)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if removed, err := store.Sweep("", 0); err == nil && removed > 0 {
		log.Info().Int("removed", removed).Msg("stale cache entries swept")
	}

	state := &types.PipelineState{RunID: runID, Stage: "topic"}
	defer saveJSON(filepath.Join(runDir, "pipeline_state.json"), state)

	// Stage 1: topic
	topic, err := resolveTopic(ctx, cfg)
	if err != nil {
		return fmt.Errorf("topic: %w", err)
	}
	state.Topic = topic
	saveJSON(filepath.Join(runDir, "pipeline_state.json"), state)
	log.Info().Str("topic", topic.Title).Str("genre", topic.Genre).Msg("topic resolved")

	// Stage 2: script generation
	state.Stage = "content"
	gen := buildGenerator(cfg, adapter)
	chain := content.New(gen, store, cfg.Generation.MaxRetries)
	chain.TargetMinutes = cfg.Video.DurationMinutes

	var bundle *types.ScriptBundle
	if cfg.Video.Mode == "short" {
		bundle, err = chain.BuildShort(ctx, topic, cfg.Video.ShortDurationSec)
	} else {
		bundle, err = chain.BuildLong(ctx, topic)
	}
	if err != nil {
		return fmt.Errorf("content chain: %w", err)
	}
	state.Bundle = bundle
	saveJSON(filepath.Join(runDir, "bundle.json"), bundle)
	saveJSON(filepath.Join(runDir, "pipeline_state.json"), state)

	// Stage 3: segments + assembly
	state.Stage = "segments"
	proc := buildProcessor(cfg, topic, store, adapter)
	asm := assembly.New(cfg.Paths.MusicList, cfg.Video.Mode == "short")
	orch := pipeline.New(proc, asm)

	outPath := filepath.Join(runDir, "final_video.mp4")
	video, err := orch.Run(ctx, bundle, runDir, outPath)
	if err != nil {
		return err
	}
	state.VideoPath = video
	state.Stage = "assembled"
	saveJSON(filepath.Join(runDir, "pipeline_state.json"), state)
	log.Info().Str("video", video).Msg("✅ video assembled")

	// Stage 4: publish (optional)
	if cfg.Upload.Enabled {
		state.Stage = "publish"
		uploader := publish.New(&cfg.Upload)
		meta := publish.BuildMetadata(topic, bundle, &cfg.Upload)
		videoID, videoURL, err := uploader.Run(ctx, video, meta)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ upload failed, video kept locally")
		} else {
			publish.LogUpload(videoID, videoURL, video, cfg.Paths.Logs, meta)
		}
	}

	state.Stage = "done"
	return nil
}

// resolveTopic uses the configured topic, or asks the suggester when none
// is set.
func resolveTopic(ctx context.Context, cfg *config.Config) (types.Topic, error) {
	if cfg.Video.Topic != "" {
		return types.Topic{
			Title:    cfg.Video.Topic,
			Genre:    cfg.Video.Genre,
			Language: cfg.Video.Language,
		}, nil
	}
	suggester, err := topics.New(&cfg.Topics)
	if err != nil {
		return types.Topic{}, err
	}
	return suggester.Suggest(ctx, cfg.Video.Language)
}

// buildGenerator wires the configured primary text backend with the other
// one as fallback.
func buildGenerator(cfg *config.Config, adapter *services.Adapter) textgen.Generator {
	gemini := textgen.NewGemini(config.GeminiKey(), cfg.Generation.GeminiModel, cfg.Generation.Temperature)
	claude := textgen.NewClaude(config.ClaudeKey(), cfg.Generation.ClaudeModel, cfg.Generation.Temperature)

	if cfg.Generation.Backend == "claude" {
		return textgen.NewFallback(claude, gemini, adapter, cfg.Generation.MaxRetries)
	}
	return textgen.NewFallback(gemini, claude, adapter, cfg.Generation.MaxRetries)
}

func buildProcessor(cfg *config.Config, topic types.Topic, store *cache.Store, adapter *services.Adapter) *segment.Processor {
	var synth tts.Synthesizer
	if cfg.Voice.Engine == "gemini" {
		g := tts.NewGeminiTTS(config.GeminiKey(), "", "")
		g.MultiSpeaker = cfg.Voice.MultiSpeaker
		synth = g
	} else {
		synth = tts.NewEdge(cfg.Voice.Subtitles)
	}

	// Shorts run on stock video; long-form item segments use image
	// slideshows, with an optional Pexels clip for the intro.
	pexelsKey := config.PexelsKey()
	var searcher media.Searcher
	if cfg.Video.Mode == "short" && pexelsKey != "" {
		searcher = media.NewPexelsVideos(pexelsKey, store)
	} else {
		searcher = media.NewBingImages(store)
	}

	dl := media.NewDownloader(time.Duration(cfg.Media.DownloadTimeout) * time.Second)

	proc := segment.NewProcessor(
		synth, searcher, dl,
		translate.New(store),
		segment.NewPlaceholderFactory(),
		adapter,
		pipeline.CPUSemaphore(),
	)
	if cfg.Video.Mode != "short" && cfg.Video.IntroUsesVideo && pexelsKey != "" {
		proc.IntroSearcher = media.NewPexelsVideos(pexelsKey, store)
	}
	proc.Language = cfg.Video.Language
	proc.Genre = topic.Genre
	proc.Topic = topic.Title
	proc.AssetsPerSeg = cfg.Media.ImagesPerSegment
	return proc
}

func saveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}
