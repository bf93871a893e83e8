// Package assembly merges per-segment artifacts into the final video.
package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"top10-pipeline/logging"
	"top10-pipeline/types"
)

// defaultSegmentSec is the visual duration assumed when a segment has no
// usable narration to derive timing from.
const defaultSegmentSec = 5.0

// runner executes an external command, swapped in tests.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 400 {
			msg = msg[:400]
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

// Service drives ffmpeg to build segment clips, concatenate them and mux
// the narration track, optionally mixing in background music.
type Service struct {
	MusicPath string
	Vertical  bool

	run runner
	log zerolog.Logger
}

// New builds the assembly service. musicPath may be empty.
func New(musicPath string, vertical bool) *Service {
	return &Service{
		MusicPath: musicPath,
		Vertical:  vertical,
		run:       execRunner,
		log:       logging.For("assembly"),
	}
}

// Assemble renders every segment as a clip, concatenates them in the order
// given and writes the final mp4 at outPath. Artifacts arrive already
// ordered; assembly never reorders them.
func (s *Service) Assemble(ctx context.Context, bundle *types.ScriptBundle, artifacts []types.SegmentArtifacts, outPath string) (string, error) {
	if len(artifacts) == 0 {
		return "", fmt.Errorf("nothing to assemble")
	}
	s.log.Info().Int("segments", len(artifacts)).Msg("assembling final video")

	workDir := filepath.Dir(outPath)
	scratch := filepath.Join(workDir, "assembly_scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", fmt.Errorf("create assembly scratch: %w", err)
	}
	defer os.RemoveAll(scratch)

	var clips []string
	for _, art := range artifacts {
		clip, err := s.segmentClip(ctx, art, scratch)
		if err != nil {
			s.log.Warn().Int("segment", art.Index).Err(err).Msg("segment clip failed, dropping")
			continue
		}
		clips = append(clips, clip)
	}
	if len(clips) == 0 {
		return "", fmt.Errorf("no segment produced a playable clip")
	}

	joined := filepath.Join(scratch, "joined.mp4")
	if err := s.concat(ctx, clips, joined); err != nil {
		return "", fmt.Errorf("concat segments: %w", err)
	}

	final := joined
	if s.MusicPath != "" {
		mixed := filepath.Join(scratch, "with_music.mp4")
		if err := s.mixMusic(ctx, joined, mixed); err != nil {
			s.log.Warn().Err(err).Msg("music mix failed, keeping narration only")
		} else {
			final = mixed
		}
	}

	if err := s.finalize(ctx, final, outPath); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	s.log.Info().Str("video", outPath).Msg("✅ final video ready")
	return outPath, nil
}

// segmentClip renders one artifact as a self-contained clip: stock video
// looped under the narration, or a slideshow timed to it, muxed with the
// audio track.
func (s *Service) segmentClip(ctx context.Context, art types.SegmentArtifacts, scratch string) (string, error) {
	if len(art.MediaPaths) == 0 {
		return "", fmt.Errorf("segment %d has no media", art.Index)
	}

	duration := art.DurationSec
	if duration <= 0 {
		duration = defaultSegmentSec
	}

	if isVideo(art.MediaPaths[0]) {
		return s.videoClip(ctx, art, duration, scratch)
	}

	perImage := duration / float64(len(art.MediaPaths))
	if perImage < 1 {
		perImage = 1
	}

	listFile := filepath.Join(scratch, fmt.Sprintf("clip_%02d_list.txt", art.Index))
	var lines []string
	for _, m := range art.MediaPaths {
		lines = append(lines, fmt.Sprintf("file '%s'", m))
		lines = append(lines, fmt.Sprintf("duration %.2f", perImage))
	}
	// concat demuxer needs the last file repeated without a duration.
	lines = append(lines, fmt.Sprintf("file '%s'", art.MediaPaths[len(art.MediaPaths)-1]))
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return "", err
	}

	outFile := filepath.Join(scratch, fmt.Sprintf("clip_%02d.mp4", art.Index))
	args := []string{"-y",
		"-f", "concat", "-safe", "0", "-i", listFile,
	}
	hasAudio := art.AudioPath != ""
	if hasAudio {
		args = append(args, "-i", art.AudioPath)
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-vf", s.scaleFilter(),
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.2f", duration),
	)
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-shortest")
	} else {
		args = append(args, "-an")
	}
	args = append(args, outFile)

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return "", err
	}
	return outFile, nil
}

func isVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".webm", ".mkv":
		return true
	}
	return false
}

// videoClip loops one stock video for the segment's duration and muxes the
// narration over it. The clip's own audio track is discarded.
func (s *Service) videoClip(ctx context.Context, art types.SegmentArtifacts, duration float64, scratch string) (string, error) {
	outFile := filepath.Join(scratch, fmt.Sprintf("clip_%02d.mp4", art.Index))

	args := []string{"-y",
		"-stream_loop", "-1", "-i", art.MediaPaths[0],
	}
	hasAudio := art.AudioPath != ""
	if hasAudio {
		args = append(args, "-i", art.AudioPath)
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-vf", s.scaleFilter(),
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.2f", duration),
	)
	if hasAudio {
		args = append(args, "-map", "0:v", "-map", "1:a", "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-map", "0:v", "-an")
	}
	args = append(args, outFile)

	if err := s.run(ctx, "ffmpeg", args...); err != nil {
		return "", err
	}
	return outFile, nil
}

func (s *Service) scaleFilter() string {
	w, h := 1920, 1080
	if s.Vertical {
		w, h = 1080, 1920
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=30", w, h, w, h)
}

func (s *Service) concat(ctx context.Context, clips []string, outFile string) error {
	listFile := outFile + "_list.txt"
	var lines []string
	for _, c := range clips {
		lines = append(lines, fmt.Sprintf("file '%s'", c))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return err
	}
	return s.run(ctx, "ffmpeg", "-y",
		"-f", "concat", "-safe", "0", "-i", listFile,
		"-c", "copy",
		outFile,
	)
}

// mixMusic ducks background music under the narration.
func (s *Service) mixMusic(ctx context.Context, videoFile, outFile string) error {
	return s.run(ctx, "ffmpeg", "-y",
		"-i", videoFile,
		"-stream_loop", "-1", "-i", s.MusicPath,
		"-filter_complex", "[1:a]volume=0.12[bg];[0:a][bg]amix=inputs=2:duration=first:normalize=0[aout]",
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "192k",
		"-shortest",
		outFile,
	)
}

// finalize rewrites the container with faststart for web playback.
func (s *Service) finalize(ctx context.Context, inFile, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return s.run(ctx, "ffmpeg", "-y",
		"-i", inFile,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	)
}
