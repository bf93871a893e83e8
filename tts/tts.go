// Package tts turns segment text into narration audio files.
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Synthesizer renders text into an audio file at outPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, outPath string) error
	Name() string
}

// runner executes an external command, swapped in tests.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, truncate(string(out), 300))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// AudioDuration reads the duration of an audio file via ffprobe.
func AudioDuration(audioFile string) (float64, error) {
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioFile,
	).Output()
	if err != nil {
		return 0, err
	}
	var dur float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur)
	return dur, err
}
