// Package segment turns one script entry into audio and visual artifacts.
package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"top10-pipeline/logging"
	"top10-pipeline/media"
	"top10-pipeline/services"
	"top10-pipeline/tts"
	"top10-pipeline/types"
)

// pauseMarker tells the speech engine to breathe between the item number
// announcement and the narration.
const pauseMarker = ",,..,"

// wordsPerSecond estimates narration length when the real audio is missing.
const wordsPerSecond = 2.2

// Translator localizes narration text. Implemented by translate.Translator.
type Translator interface {
	Translate(ctx context.Context, text, language string) string
}

// Processor acquires audio and media for one segment at a time. Audio and
// media run concurrently and a failing side never sinks the segment.
type Processor struct {
	Synth       tts.Synthesizer
	Searcher    media.Searcher
	Downloader  *media.Downloader
	Translator  Translator
	Placeholder *PlaceholderFactory
	Adapter     *services.Adapter

	// IntroSearcher, when set, fetches one opening video for the intro
	// segment instead of the usual image set.
	IntroSearcher media.Searcher

	Language      string
	Genre         string
	Topic         string
	AssetsPerSeg  int
	MediaRetries  int

	// cpuSem bounds local post-processing, not network calls.
	cpuSem *semaphore.Weighted

	log zerolog.Logger
}

// NewProcessor wires a Processor. cpuSem may be nil to skip bounding.
func NewProcessor(synth tts.Synthesizer, searcher media.Searcher, dl *media.Downloader,
	tr Translator, pf *PlaceholderFactory, adapter *services.Adapter,
	cpuSem *semaphore.Weighted) *Processor {
	return &Processor{
		Synth:        synth,
		Searcher:     searcher,
		Downloader:   dl,
		Translator:   tr,
		Placeholder:  pf,
		Adapter:      adapter,
		AssetsPerSeg: 8,
		MediaRetries: 2,
		cpuSem:       cpuSem,
		log:          logging.For("segment"),
	}
}

// Process runs one task to completion, always returning usable artifacts.
// The returned error is non-nil only for environment failures (working
// directory cannot be created) or context cancellation.
func (p *Processor) Process(ctx context.Context, task types.SegmentTask) (types.SegmentArtifacts, error) {
	art := types.SegmentArtifacts{Index: task.Index, Kind: task.Kind}

	if err := os.MkdirAll(task.Dir, 0o755); err != nil {
		return art, fmt.Errorf("segment %d workdir: %w", task.Index, err)
	}

	text := p.effectiveText(ctx, task)
	query := p.searchQuery(task)

	var wg sync.WaitGroup
	var audioErr, mediaErr error
	var mediaPaths []string

	audioPath := filepath.Join(task.Dir, "narration.mp3")

	wg.Add(2)
	go func() {
		defer wg.Done()
		audioErr = p.generateAudio(ctx, text, audioPath)
	}()
	go func() {
		defer wg.Done()
		mediaPaths, mediaErr = p.getMedia(ctx, task, query)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return art, err
	}

	// Gather tolerating partial failure: each side resolves on its own.
	if audioErr != nil {
		p.log.Warn().Int("segment", task.Index).Err(audioErr).Msg("audio failed")
		art.AudioStatus = types.StatusFailed
	} else {
		art.AudioPath = audioPath
		art.AudioStatus = types.StatusOK
		if dur, err := tts.AudioDuration(audioPath); err == nil {
			art.DurationSec = dur
		}
	}

	if mediaErr != nil {
		p.log.Warn().Int("segment", task.Index).Err(mediaErr).Msg("media failed, using placeholder")
		placeholder := filepath.Join(task.Dir, "placeholder.png")
		if err := p.Placeholder.BlankImage(ctx, p.placeholderLabel(task), placeholder); err != nil {
			p.log.Error().Int("segment", task.Index).Err(err).Msg("placeholder image failed")
			art.MediaStatus = types.StatusFailed
		} else {
			art.MediaPaths = []string{placeholder}
			art.MediaStatus = types.StatusDegraded
		}
	} else {
		art.MediaPaths = p.validateAssets(ctx, mediaPaths)
		art.MediaStatus = types.StatusOK
		if len(art.MediaPaths) < len(mediaPaths) {
			art.MediaStatus = types.StatusDegraded
		}
	}

	// Both sides down: substitute silence so assembly still has timing.
	if art.AudioStatus == types.StatusFailed && art.MediaStatus != types.StatusOK {
		silent := filepath.Join(task.Dir, "silence.mp3")
		estimate := float64(len(strings.Fields(text))) / wordsPerSecond
		if err := p.Placeholder.SilentAudio(ctx, estimate, silent); err == nil {
			art.AudioPath = silent
			art.AudioStatus = types.StatusDegraded
			art.DurationSec = estimate
		}
	}

	p.log.Info().Int("segment", task.Index).Str("kind", string(task.Kind)).
		Str("audio", string(art.AudioStatus)).Str("media", string(art.MediaStatus)).
		Msg("segment done")
	return art, nil
}

// effectiveText derives narration text. Item segments announce their rank
// in the target language, separated from the script by the pause marker.
// Outro and scene narration are localized whole before synthesis.
func (p *Processor) effectiveText(ctx context.Context, task types.SegmentTask) string {
	switch task.Kind {
	case types.SegmentItem:
		prefix := fmt.Sprintf("number %d %s", task.Rank, task.Title)
		if p.Translator != nil {
			prefix = p.Translator.Translate(ctx, prefix, p.Language)
		}
		return prefix + pauseMarker + task.Text
	case types.SegmentConclusion, types.SegmentScene:
		if p.Translator != nil {
			return p.Translator.Translate(ctx, task.Text, p.Language)
		}
		return task.Text
	default:
		return task.Text
	}
}

// searchQuery picks the media query: explicit terms first, then the
// generic "{title} {genre}" composite.
func (p *Processor) searchQuery(task types.SegmentTask) string {
	if len(task.SearchTerms) > 0 {
		return task.SearchTerms[0]
	}
	title := task.Title
	if title == "" {
		title = task.Text
		if len(title) > 50 {
			title = title[:50]
		}
	}
	return strings.TrimSpace(title + " " + p.Genre)
}

func (p *Processor) placeholderLabel(task types.SegmentTask) string {
	if task.Title != "" {
		return task.Title
	}
	if p.Topic != "" {
		return p.Topic
	}
	label := task.Text
	if len(label) > 60 {
		label = label[:60]
	}
	return label
}

func (p *Processor) generateAudio(ctx context.Context, text, outPath string) error {
	_, err := services.Call(ctx, p.Adapter, p.Synth.Name(), 2, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Synth.Synthesize(ctx, text, p.Language, outPath)
	})
	return err
}

func (p *Processor) getMedia(ctx context.Context, task types.SegmentTask, query string) ([]string, error) {
	searcher := p.Searcher
	want := p.AssetsPerSeg
	if task.Kind == types.SegmentIntro && p.IntroSearcher != nil {
		searcher = p.IntroSearcher
		want = 1
	}
	urls, err := services.Call(ctx, p.Adapter, searcher.Name(), p.MediaRetries, func(ctx context.Context) ([]string, error) {
		return searcher.Search(ctx, query, want*2)
	})
	if err != nil {
		return nil, err
	}
	return p.Downloader.FetchFirst(ctx, urls, task.Dir, "asset", want)
}

// validateAssets drops empty files and orders the survivors. This local
// CPU work runs under the shared semaphore when one is configured.
func (p *Processor) validateAssets(ctx context.Context, paths []string) []string {
	if p.cpuSem != nil {
		if err := p.cpuSem.Acquire(ctx, 1); err != nil {
			return paths
		}
		defer p.cpuSem.Release(1)
	}

	var valid []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		valid = append(valid, path)
	}
	sort.Strings(valid)
	return valid
}
