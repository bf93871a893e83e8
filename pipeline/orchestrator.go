// Package pipeline fans segment work out across goroutines and hands the
// gathered artifacts to assembly exactly once.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"top10-pipeline/logging"
	"top10-pipeline/types"
)

// DefaultFailureThreshold is how many hard segment failures are tolerated
// before untried segments are skipped to bound wall-clock time.
const DefaultFailureThreshold = 3

// Assembler merges ordered segment artifacts into the final video.
type Assembler interface {
	Assemble(ctx context.Context, bundle *types.ScriptBundle, artifacts []types.SegmentArtifacts, outPath string) (string, error)
}

// SegmentRunner processes one segment task. Satisfied by segment.Processor.
type SegmentRunner interface {
	Process(ctx context.Context, task types.SegmentTask) (types.SegmentArtifacts, error)
}

// Orchestrator runs all segments of a bundle concurrently and assembles
// the result. Segment ordering in the output never depends on completion
// order.
type Orchestrator struct {
	Runner           SegmentRunner
	Assembly         Assembler
	FailureThreshold int

	// MaxParallel bounds how many segments run at once. Segments queued
	// behind the gate observe failures recorded by earlier ones, which is
	// what makes the threshold skip effective.
	MaxParallel int

	log zerolog.Logger
}

// New builds an Orchestrator with the default failure threshold.
func New(runner SegmentRunner, assembly Assembler) *Orchestrator {
	return &Orchestrator{
		Runner:           runner,
		Assembly:         assembly,
		FailureThreshold: DefaultFailureThreshold,
		MaxParallel:      defaultParallelism(),
		log:              logging.For("pipeline"),
	}
}

func defaultParallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n > 8 {
		n = 8
	}
	return n
}

// CPUSemaphore bounds local post-processing work across all segments.
func CPUSemaphore() *semaphore.Weighted {
	return semaphore.NewWeighted(int64(defaultParallelism()))
}

// Run processes every segment of bundle under workDir and assembles the
// final video at outPath. Per-segment directories and scratch files are
// removed in every outcome.
func (o *Orchestrator) Run(ctx context.Context, bundle *types.ScriptBundle, workDir, outPath string) (string, error) {
	tasks := BuildTasks(bundle, workDir)
	if len(tasks) == 0 {
		return "", fmt.Errorf("bundle yields no segments")
	}

	segDir := filepath.Join(workDir, "segments")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return "", fmt.Errorf("create segment root: %w", err)
	}
	defer o.cleanup(segDir)

	o.log.Info().Int("segments", len(tasks)).Str("kind", string(bundle.Kind)).Msg("fanning out segments")

	type slot struct {
		art types.SegmentArtifacts
		err error
		ok  bool
	}
	results := make([]slot, len(tasks))

	parallel := o.MaxParallel
	if parallel < 1 {
		parallel = defaultParallelism()
	}
	gate := make(chan struct{}, parallel)

	var hardFailures atomic.Int64
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task types.SegmentTask) {
			defer wg.Done()
			select {
			case gate <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-gate }()
			// Skip segments not yet started once the failure threshold is
			// crossed. In-flight siblings are still awaited below.
			if int(hardFailures.Load()) > o.FailureThreshold {
				o.log.Warn().Int("segment", task.Index).Msg("skipped: too many failures")
				return
			}
			art, err := o.Runner.Process(ctx, task)
			if err != nil {
				hardFailures.Add(1)
				results[i] = slot{err: err}
				return
			}
			results[i] = slot{art: art, ok: true}
		}(i, task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n := int(hardFailures.Load()); n > o.FailureThreshold {
		return "", fmt.Errorf("aborted after %d segment failures", n)
	}

	var artifacts []types.SegmentArtifacts
	for i, r := range results {
		if !r.ok {
			if r.err != nil {
				o.log.Error().Int("segment", tasks[i].Index).Err(r.err).Msg("segment lost")
			}
			continue
		}
		artifacts = append(artifacts, r.art)
	}
	if len(artifacts) == 0 {
		return "", fmt.Errorf("no segment produced artifacts")
	}

	// Deterministic order regardless of completion interleaving.
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Index < artifacts[j].Index })

	o.log.Info().Int("artifacts", len(artifacts)).Msg("fan-in complete, assembling")
	video, err := o.Assembly.Assemble(ctx, bundle, artifacts, outPath)
	if err != nil {
		return "", fmt.Errorf("assembly: %w", err)
	}
	return video, nil
}

// BuildTasks lays a bundle out as ordered segment tasks: intro, items rank
// 10 down to 1, outro for long-form; one task per scene for short-form.
func BuildTasks(bundle *types.ScriptBundle, workDir string) []types.SegmentTask {
	segDir := filepath.Join(workDir, "segments")
	var tasks []types.SegmentTask

	if bundle.Kind == types.KindShort {
		for i, scene := range bundle.Scenes {
			tasks = append(tasks, types.SegmentTask{
				Kind:        types.SegmentScene,
				Index:       i,
				Text:        scene.Text,
				SearchTerms: scene.SearchTerms,
				Dir:         filepath.Join(segDir, fmt.Sprintf("seg_%02d", i)),
			})
		}
		return tasks
	}

	idx := 0
	if bundle.IntroText != "" {
		tasks = append(tasks, types.SegmentTask{
			Kind:  types.SegmentIntro,
			Index: idx,
			Text:  bundle.IntroText,
			Dir:   filepath.Join(segDir, fmt.Sprintf("seg_%02d", idx)),
		})
		idx++
	}
	for _, item := range bundle.Items {
		tasks = append(tasks, types.SegmentTask{
			Kind:        types.SegmentItem,
			Index:       idx,
			Rank:        item.Rank,
			Title:       item.Title,
			Text:        item.Script,
			SearchTerms: item.SearchTerms,
			Dir:         filepath.Join(segDir, fmt.Sprintf("seg_%02d", idx)),
		})
		idx++
	}
	if bundle.Conclusion != "" {
		tasks = append(tasks, types.SegmentTask{
			Kind:  types.SegmentConclusion,
			Index: idx,
			Text:  bundle.Conclusion,
			Dir:   filepath.Join(segDir, fmt.Sprintf("seg_%02d", idx)),
		})
	}
	return tasks
}

func (o *Orchestrator) cleanup(segDir string) {
	if err := os.RemoveAll(segDir); err != nil {
		o.log.Warn().Err(err).Msg("segment cleanup failed")
		return
	}
	o.log.Debug().Str("dir", segDir).Msg("segment scratch removed")
}
