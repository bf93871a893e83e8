package segment

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runner executes an external command, swapped in tests.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

// PlaceholderFactory builds stand-in assets with ffmpeg so a degraded
// segment still has something to show and say.
type PlaceholderFactory struct {
	run runner
}

// NewPlaceholderFactory returns a factory driving the system ffmpeg.
func NewPlaceholderFactory() *PlaceholderFactory {
	return &PlaceholderFactory{run: execRunner}
}

// BlankImage writes a dark 1920x1080 frame with text centered on it.
func (f *PlaceholderFactory) BlankImage(ctx context.Context, text, outPath string) error {
	label := sanitizeDrawtext(text)
	if len(label) > 60 {
		label = label[:60]
	}
	return f.run(ctx, "ffmpeg", "-y",
		"-f", "lavfi",
		"-i", "color=c=0x101018:s=1920x1080:d=1",
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=56:x=(w-text_w)/2:y=(h-text_h)/2", label),
		"-frames:v", "1",
		outPath,
	)
}

// SilentAudio writes seconds of silence as mp3.
func (f *PlaceholderFactory) SilentAudio(ctx context.Context, seconds float64, outPath string) error {
	if seconds <= 0 {
		seconds = 3
	}
	return f.run(ctx, "ffmpeg", "-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=24000:cl=mono",
		"-t", fmt.Sprintf("%.1f", seconds),
		"-codec:a", "libmp3lame", "-q:a", "9",
		outPath,
	)
}

// sanitizeDrawtext strips the characters ffmpeg's drawtext filter treats
// specially.
func sanitizeDrawtext(s string) string {
	r := strings.NewReplacer("'", "", ":", " ", "\\", "", "%", "", "\n", " ")
	return strings.TrimSpace(r.Replace(s))
}
