// Package pipeline drives a session end to end: splitting the source video,
// detecting events, narrating them, synthesizing speech, and muxing the
// commentary back into a gap-free sequence of playable chunks.
package pipeline

import (
	"context"
	"time"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/video"
)

// Detector uploads clips and extracts clip-relative events from them.
type Detector interface {
	Upload(ctx context.Context, path string) (string, error)
	Detect(ctx context.Context, fileURI string, clipDuration float64) ([]commentary.Event, error)
}

// Narrator turns a window of events into timed commentary segments.
type Narrator interface {
	Narrate(ctx context.Context, events []commentary.Event, windowStart, windowEnd, lastEnd float64) ([]commentary.Segment, error)
}

// Synthesizer renders one segment's text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, seg commentary.Segment) ([]byte, error)
}

// MediaTools is the subset of ffmpeg operations the pipeline needs.
type MediaTools interface {
	Duration(ctx context.Context, path string) (float64, error)
	EnsureAudio(ctx context.Context, src, workDir string) (string, error)
	WriteChunk(ctx context.Context, spec video.ChunkSpec) error
	Concat(ctx context.Context, chunkPaths []string, outPath string) error
}

// ClipSplitter cuts the source into fixed-length clips for upload.
type ClipSplitter interface {
	Split(ctx context.Context, src string, videoDuration, segmentSeconds float64) ([]video.Clip, error)
	Cleanup(clips []video.Clip)
}

// Emitter receives progress notifications as the session advances. Every
// method must be safe to call from multiple goroutines.
type Emitter interface {
	Status(message string, progress int)
	EventsDetected(events []commentary.Event, timeAnalyzed float64)
	CommentaryReady(segments []commentary.Segment)
	ChunkReady(chunk Chunk, progress int)
}

// Catalog records sessions and their chunks durably.
type Catalog interface {
	CreateSession(id, source string, startedAt time.Time) error
	AddChunk(sessionID string, chunk Chunk) error
	EndSession(id string, endedAt time.Time, status, finalPath string, chunkCount int) error
}

// Chunk is one finished slice of the output video.
type Chunk struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Path     string  `json:"-"`
	URL      string  `json:"url"`
}

// eventBatch carries one clip's worth of detected events to narration.
type eventBatch struct {
	events      []commentary.Event
	windowStart float64
	windowEnd   float64
}
