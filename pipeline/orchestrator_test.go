package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"top10-pipeline/types"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    []int
	failIdx  map[int]error
	mediaBad map[int]bool
}

func (f *fakeRunner) Process(ctx context.Context, task types.SegmentTask) (types.SegmentArtifacts, error) {
	f.mu.Lock()
	f.calls = append(f.calls, task.Index)
	f.mu.Unlock()

	if err, ok := f.failIdx[task.Index]; ok {
		return types.SegmentArtifacts{}, err
	}
	art := types.SegmentArtifacts{
		Index:       task.Index,
		Kind:        task.Kind,
		AudioPath:   filepath.Join(task.Dir, "narration.mp3"),
		MediaPaths:  []string{filepath.Join(task.Dir, "asset_00.jpg")},
		AudioStatus: types.StatusOK,
		MediaStatus: types.StatusOK,
	}
	if f.mediaBad[task.Index] {
		art.MediaStatus = types.StatusDegraded
	}
	return art, nil
}

type fakeAssembler struct {
	calls     atomic.Int64
	gotOrder  []int
	gotBundle *types.ScriptBundle
	err       error
}

func (f *fakeAssembler) Assemble(_ context.Context, bundle *types.ScriptBundle, artifacts []types.SegmentArtifacts, outPath string) (string, error) {
	f.calls.Add(1)
	f.gotBundle = bundle
	f.gotOrder = nil
	for _, a := range artifacts {
		f.gotOrder = append(f.gotOrder, a.Index)
	}
	if f.err != nil {
		return "", f.err
	}
	return outPath, nil
}

func longBundle() *types.ScriptBundle {
	b := &types.ScriptBundle{
		Kind:       types.KindLong,
		IntroText:  "intro",
		Conclusion: "outro",
	}
	for rank := 10; rank >= 1; rank-- {
		b.Items = append(b.Items, types.Item{
			Rank:   rank,
			Title:  fmt.Sprintf("Item %d", rank),
			Script: fmt.Sprintf("script %d", rank),
		})
	}
	return b
}

func TestBuildTasksLongFormLayout(t *testing.T) {
	tasks := BuildTasks(longBundle(), t.TempDir())
	require.Len(t, tasks, 12)

	assert.Equal(t, types.SegmentIntro, tasks[0].Kind)
	assert.Equal(t, 0, tasks[0].Index)
	assert.Equal(t, types.SegmentItem, tasks[1].Kind)
	assert.Equal(t, 10, tasks[1].Rank)
	assert.Equal(t, 1, tasks[10].Rank)
	assert.Equal(t, types.SegmentConclusion, tasks[11].Kind)
	assert.Equal(t, 11, tasks[11].Index)
}

func TestBuildTasksShortFormLayout(t *testing.T) {
	b := &types.ScriptBundle{
		Kind: types.KindShort,
		Scenes: []types.Scene{
			{Text: "one"}, {Text: "two"}, {Text: "three"},
		},
	}
	tasks := BuildTasks(b, t.TempDir())
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, types.SegmentScene, task.Kind)
		assert.Equal(t, i, task.Index)
	}
}

func TestRunHappyPathAssemblesOnceInOrder(t *testing.T) {
	runner := &fakeRunner{failIdx: map[int]error{}, mediaBad: map[int]bool{}}
	asm := &fakeAssembler{}
	o := New(runner, asm)

	dir := t.TempDir()
	out := filepath.Join(dir, "final.mp4")
	video, err := o.Run(context.Background(), longBundle(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, out, video)

	assert.EqualValues(t, 1, asm.calls.Load())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, asm.gotOrder)
	assert.Len(t, runner.calls, 12)
}

func TestRunDegradedSegmentsStillAssemble(t *testing.T) {
	runner := &fakeRunner{
		failIdx:  map[int]error{},
		mediaBad: map[int]bool{2: true, 5: true, 7: true, 9: true},
	}
	asm := &fakeAssembler{}
	o := New(runner, asm)

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, asm.calls.Load())
	assert.Len(t, asm.gotOrder, 12)
}

func TestRunToleratesFewHardFailures(t *testing.T) {
	runner := &fakeRunner{
		failIdx:  map[int]error{3: errors.New("workdir gone"), 6: errors.New("workdir gone")},
		mediaBad: map[int]bool{},
	}
	asm := &fakeAssembler{}
	o := New(runner, asm)

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, asm.calls.Load())
	// The failed segments are absent, the rest keep their order.
	assert.Equal(t, []int{0, 1, 2, 4, 5, 7, 8, 9, 10, 11}, asm.gotOrder)
}

func TestRunAbortsPastFailureThreshold(t *testing.T) {
	failures := map[int]error{}
	for i := 0; i < 12; i++ {
		failures[i] = errors.New("workdir gone")
	}
	runner := &fakeRunner{failIdx: failures, mediaBad: map[int]bool{}}
	asm := &fakeAssembler{}
	o := New(runner, asm)

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment failures")
	assert.EqualValues(t, 0, asm.calls.Load())
}

func TestRunSkipsQueuedSegmentsAfterThreshold(t *testing.T) {
	failures := map[int]error{}
	for i := 0; i < 12; i++ {
		failures[i] = errors.New("workdir gone")
	}
	runner := &fakeRunner{failIdx: failures, mediaBad: map[int]bool{}}
	asm := &fakeAssembler{}
	o := New(runner, asm)
	o.FailureThreshold = 0
	o.MaxParallel = 1

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment failures")

	// Serial execution: the first failure crosses the threshold, so the
	// remaining eleven segments never start.
	assert.Len(t, runner.calls, 1)
}

// concurrencyRunner tracks how many Process calls overlap.
type concurrencyRunner struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (c *concurrencyRunner) Process(_ context.Context, task types.SegmentTask) (types.SegmentArtifacts, error) {
	n := c.current.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer c.current.Add(-1)
	return types.SegmentArtifacts{
		Index:       task.Index,
		Kind:        task.Kind,
		AudioStatus: types.StatusOK,
		MediaStatus: types.StatusOK,
	}, nil
}

func TestRunBoundsParallelism(t *testing.T) {
	runner := &concurrencyRunner{}
	asm := &fakeAssembler{}
	o := New(runner, asm)
	o.MaxParallel = 2

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.NoError(t, err)
	assert.LessOrEqual(t, runner.peak.Load(), int64(2))
}

func TestRunAssemblyFailureSurfacesAfterCleanup(t *testing.T) {
	runner := &fakeRunner{failIdx: map[int]error{}, mediaBad: map[int]bool{}}
	asm := &fakeAssembler{err: errors.New("ffmpeg exploded")}
	o := New(runner, asm)

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.ErrorContains(t, err, "assembly")

	// Scratch is gone even though assembly failed.
	_, statErr := os.Stat(filepath.Join(dir, "segments"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCleansUpOnSuccess(t *testing.T) {
	runner := &fakeRunner{failIdx: map[int]error{}, mediaBad: map[int]bool{}}
	asm := &fakeAssembler{}
	o := New(runner, asm)

	dir := t.TempDir()
	_, err := o.Run(context.Background(), longBundle(), dir, filepath.Join(dir, "final.mp4"))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "segments"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunEmptyBundle(t *testing.T) {
	o := New(&fakeRunner{}, &fakeAssembler{})
	_, err := o.Run(context.Background(), &types.ScriptBundle{Kind: types.KindLong}, t.TempDir(), "out.mp4")
	assert.Error(t, err)
}

func TestCPUSemaphoreBounded(t *testing.T) {
	sem := CPUSemaphore()
	require.NotNil(t, sem)
	// Must admit at least one worker.
	require.NoError(t, sem.Acquire(context.Background(), 1))
	sem.Release(1)
}
