// Package video wraps the ffmpeg and ffprobe binaries for splitting, mixing,
// and concatenating match footage.
package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes an external command and returns its combined output. Tests
// substitute a fake to assert on the exact arguments.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Tools locates the media binaries and runs them.
type Tools struct {
	FFmpeg  string
	FFprobe string

	run Runner
}

// NewTools creates a Tools using the given binary paths, defaulting to the
// names on PATH.
func NewTools(ffmpeg, ffprobe string) *Tools {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Tools{FFmpeg: ffmpeg, FFprobe: ffprobe, run: execRunner}
}

// Duration returns the container duration of path in seconds.
func (t *Tools) Duration(ctx context.Context, path string) (float64, error) {
	out, err := t.run(ctx, t.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", path, err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", path, err)
	}
	return d, nil
}

// HasAudio reports whether path contains at least one audio stream.
func (t *Tools) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := t.run(ctx, t.FFprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("probe audio streams of %s: %w", path, err)
	}
	return strings.Contains(string(out), "audio"), nil
}

// EnsureAudio returns a path to a copy of src that has an audio track, adding
// a silent one when src has none. Commentary mixing requires an original
// audio stream to mix against.
func (t *Tools) EnsureAudio(ctx context.Context, src, workDir string) (string, error) {
	hasAudio, err := t.HasAudio(ctx, src)
	if err != nil {
		return "", err
	}
	if hasAudio {
		return src, nil
	}

	out := filepath.Join(workDir, "source_with_audio.mp4")
	_, err = t.run(ctx, t.FFmpeg,
		"-y",
		"-i", src,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		out,
	)
	if err != nil {
		return "", fmt.Errorf("add silent audio track to %s: %w", src, err)
	}
	return out, nil
}

func ffmpegFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Concat joins the chunk files into one MP4 without re-encoding.
func (t *Tools) Concat(ctx context.Context, chunkPaths []string, outPath string) error {
	if len(chunkPaths) == 0 {
		return fmt.Errorf("concat: no chunks")
	}

	listPath := outPath + ".txt"
	var b strings.Builder
	for _, p := range chunkPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve chunk path %s: %w", p, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	_, err := t.run(ctx, t.FFmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("concat %d chunks: %w", len(chunkPaths), err)
	}
	return nil
}
