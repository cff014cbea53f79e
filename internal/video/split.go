package video

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ovrbk/matchcast/internal/timeutil"
)

// Clip is one stream-copied slice of the source video.
type Clip struct {
	Path     string
	StartSec float64
	EndSec   float64
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	return c.EndSec - c.StartSec
}

// Splitter cuts the source into fixed-length clips for upload.
type Splitter struct {
	tools *Tools
	dir   string
}

// NewSplitter creates a splitter writing clips into dir.
func NewSplitter(tools *Tools, dir string) *Splitter {
	return &Splitter{tools: tools, dir: dir}
}

// Split cuts src into clips of segmentSeconds each, the last one truncated at
// videoDuration. Any failed cut aborts the whole split: a missing clip would
// leave a hole in the analyzed timeline.
func (s *Splitter) Split(ctx context.Context, src string, videoDuration, segmentSeconds float64) ([]Clip, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip directory: %w", err)
	}

	intervals := timeutil.Intervals(videoDuration, segmentSeconds)
	clips := make([]Clip, 0, len(intervals))
	for i, iv := range intervals {
		name := fmt.Sprintf("clip_%03d_%04d_%04d.mp4", i, int(iv.Start), int(iv.End))
		out := filepath.Join(s.dir, name)

		// -ss after -i so timestamps are rebased to zero in the output.
		_, err := s.tools.run(ctx, s.tools.FFmpeg,
			"-y",
			"-i", src,
			"-ss", ffmpegFloat(iv.Start),
			"-to", ffmpegFloat(iv.End),
			"-c", "copy",
			"-avoid_negative_ts", "make_zero",
			out,
		)
		if err != nil {
			return nil, fmt.Errorf("split clip %d [%s, %s): %w", i,
				timeutil.FormatTimecode(iv.Start), timeutil.FormatTimecode(iv.End), err)
		}

		clips = append(clips, Clip{Path: out, StartSec: iv.Start, EndSec: iv.End})
	}

	log.Printf("video: split %s into %d clips of %.0fs", filepath.Base(src), len(clips), segmentSeconds)
	return clips, nil
}

// Cleanup removes the clip files. Failures are logged, not returned; clips
// are scratch data.
func (s *Splitter) Cleanup(clips []Clip) {
	for _, c := range clips {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("video: remove clip %s: %v", c.Path, err)
		}
	}
}
