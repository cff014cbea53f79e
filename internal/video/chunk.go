package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ChunkSpec describes one output chunk of the final video. When Audio is nil
// the chunk is cut with its original soundtrack untouched; otherwise the
// commentary audio is mixed in, delayed to DelaySec within the chunk.
type ChunkSpec struct {
	Source   string
	StartSec float64
	EndSec   float64
	Audio    []byte
	DelaySec float64
	OutPath  string
}

// WriteChunk renders one chunk. The video stream is always stream-copied;
// only the audio is re-encoded when commentary is mixed in. Mixing is done in
// two passes, cut then mix, so the commentary delay is relative to the chunk
// start rather than the source timeline.
func (t *Tools) WriteChunk(ctx context.Context, spec ChunkSpec) error {
	if spec.Audio == nil {
		return t.cut(ctx, spec.Source, spec.StartSec, spec.EndSec, spec.OutPath)
	}

	cutPath := spec.OutPath + ".cut.mp4"
	if err := t.cut(ctx, spec.Source, spec.StartSec, spec.EndSec, cutPath); err != nil {
		return err
	}
	defer os.Remove(cutPath)

	audioPath := spec.OutPath + ".commentary.mp3"
	if err := os.WriteFile(audioPath, spec.Audio, 0o644); err != nil {
		return fmt.Errorf("write commentary audio: %w", err)
	}
	defer os.Remove(audioPath)

	delayMs := strconv.Itoa(int(spec.DelaySec * 1000))
	filter := fmt.Sprintf(
		"[0:a]volume=0.2[orig];[1:a]adelay=%s|%s[comm];[orig][comm]amix=inputs=2:duration=first[aout]",
		delayMs, delayMs,
	)

	_, err := t.run(ctx, t.FFmpeg,
		"-y",
		"-i", cutPath,
		"-i", audioPath,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", "44100",
		"-b:a", "192k",
		"-movflags", "+faststart",
		spec.OutPath,
	)
	if err != nil {
		return fmt.Errorf("mix chunk %s: %w", filepath.Base(spec.OutPath), err)
	}
	return nil
}

func (t *Tools) cut(ctx context.Context, src string, startSec, endSec float64, outPath string) error {
	_, err := t.run(ctx, t.FFmpeg,
		"-y",
		"-i", src,
		"-ss", ffmpegFloat(startSec),
		"-to", ffmpegFloat(endSec),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("cut chunk [%s, %s): %w", ffmpegFloat(startSec), ffmpegFloat(endSec), err)
	}
	return nil
}
