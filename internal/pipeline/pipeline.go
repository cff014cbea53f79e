package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/state"
	"github.com/ovrbk/matchcast/internal/video"
)

// minChunkDuration is the shortest chunk worth writing. Anything below it is
// skipped without advancing the cursor so coverage stays gap-free.
const minChunkDuration = 0.1

// Config holds the tuning knobs for one pipeline run.
type Config struct {
	SegmentSeconds       float64
	ChunkTolerance       float64
	MaxSynthesisParallel int
	OutputDir            string
	BaseURL              string
}

// Pipeline wires the collaborators together for session runs.
type Pipeline struct {
	detector Detector
	narrator Narrator
	synth    Synthesizer
	tools    MediaTools
	splitter ClipSplitter
	catalog  Catalog
	cfg      Config
}

// New creates a pipeline. catalog may be nil when durable session records are
// not wanted.
func New(detector Detector, narrator Narrator, synth Synthesizer, tools MediaTools, splitter ClipSplitter, catalog Catalog, cfg Config) *Pipeline {
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 30
	}
	if cfg.MaxSynthesisParallel <= 0 {
		cfg.MaxSynthesisParallel = 5
	}
	return &Pipeline{
		detector: detector,
		narrator: narrator,
		synth:    synth,
		tools:    tools,
		splitter: splitter,
		catalog:  catalog,
		cfg:      cfg,
	}
}

// Result is what a completed run produced.
type Result struct {
	Chunks     []Chunk
	FinalVideo string
}

// Analyze runs one session with a fresh (or resumed) state store under the
// session's output directory.
func (p *Pipeline) Analyze(ctx context.Context, sessionID, videoPath string, emit Emitter) (*Result, error) {
	store, err := state.NewStore(filepath.Join(p.cfg.OutputDir, sessionID))
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, sessionID, videoPath, store, emit)
}

// Run processes videoPath as one session. Progress is reported through emit;
// the caller is responsible for the terminal completion or error event.
func (p *Pipeline) Run(ctx context.Context, sessionID, videoPath string, store *state.Store, emit Emitter) (*Result, error) {
	sessionDir := filepath.Join(p.cfg.OutputDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	emit.Status("probing source video", 2)
	duration, err := p.tools.Duration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("source video %s has no duration", videoPath)
	}

	src, err := p.tools.EnsureAudio(ctx, videoPath, sessionDir)
	if err != nil {
		return nil, err
	}

	emit.Status("splitting source into clips", 5)
	clips, err := p.splitter.Split(ctx, src, duration, p.cfg.SegmentSeconds)
	if err != nil {
		return nil, err
	}
	defer p.splitter.Cleanup(clips)

	if p.catalog != nil {
		if err := p.catalog.CreateSession(sessionID, filepath.Base(videoPath), time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("record session: %w", err)
		}
	}

	emit.Status("analyzing match footage", 10)

	narrateCh := make(chan eventBatch, len(clips))
	synthCh := make(chan commentary.Segment, 16)
	muxCh := make(chan AudioClip, 16)

	var chunks []Chunk

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(narrateCh)
		return p.detectStage(gctx, clips, store, emit, narrateCh)
	})

	g.Go(func() error {
		defer close(synthCh)
		return p.narrateStage(gctx, store, emit, narrateCh, synthCh)
	})

	g.Go(func() error {
		defer close(muxCh)
		return p.synthStage(gctx, synthCh, muxCh)
	})

	g.Go(func() error {
		out, err := p.muxStage(gctx, sessionID, src, duration, sessionDir, emit, muxCh)
		chunks = out
		return err
	})

	if err := g.Wait(); err != nil {
		p.endSession(sessionID, "failed", "", len(chunks))
		return nil, err
	}

	emit.Status("assembling final video", 96)
	finalPath := filepath.Join(sessionDir, "final.mp4")
	chunkPaths := make([]string, len(chunks))
	for i, c := range chunks {
		chunkPaths[i] = c.Path
	}
	if err := p.tools.Concat(ctx, chunkPaths, finalPath); err != nil {
		p.endSession(sessionID, "failed", "", len(chunks))
		return nil, err
	}

	p.endSession(sessionID, "complete", finalPath, len(chunks))
	return &Result{Chunks: chunks, FinalVideo: finalPath}, nil
}

func (p *Pipeline) endSession(sessionID, status, finalPath string, chunkCount int) {
	if p.catalog == nil {
		return
	}
	if err := p.catalog.EndSession(sessionID, time.Now().UTC(), status, finalPath, chunkCount); err != nil {
		log.Printf("pipeline: record session end: %v", err)
	}
}

// detectStage uploads each clip in order and extracts its events. Detection
// failures on individual clips are logged and skipped; the watermark still
// advances so downstream stages never stall on a bad clip. Upload failures
// are fatal because they indicate the service is rejecting the session.
func (p *Pipeline) detectStage(ctx context.Context, clips []video.Clip, store *state.Store, emit Emitter, out chan<- eventBatch) error {
	for i, clip := range clips {
		uri, err := p.detector.Upload(ctx, clip.Path)
		if err != nil {
			return fmt.Errorf("upload clip %d: %w", i, err)
		}

		events, err := p.detector.Detect(ctx, uri, clip.Duration())
		if err != nil {
			log.Printf("pipeline: detection failed for clip %d [%.0fs, %.0fs), skipping: %v", i, clip.StartSec, clip.EndSec, err)
			store.AdvanceWatermark(clip.EndSec)
			continue
		}

		events = correctEventTimes(events, clip)
		if err := store.AppendEvents(events); err != nil {
			return err
		}
		store.AdvanceWatermark(clip.EndSec)

		if len(events) > 0 {
			emit.EventsDetected(events, store.TimeAnalyzed())
		}

		select {
		case out <- eventBatch{events: events, windowStart: clip.StartSec, windowEnd: clip.EndSec}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// correctEventTimes converts clip-relative event times to absolute video
// times. The detection prompt asks for clip-relative times, but responses
// sometimes come back absolute anyway; a time that already falls inside the
// clip's absolute window is taken as absolute.
func correctEventTimes(events []commentary.Event, clip video.Clip) []commentary.Event {
	out := make([]commentary.Event, 0, len(events))
	for _, e := range events {
		t := e.TimeSec
		if clip.StartSec > 0 && t >= clip.StartSec && t <= clip.EndSec {
			log.Printf("pipeline: event time %.1fs already absolute for clip [%.0fs, %.0fs)", t, clip.StartSec, clip.EndSec)
		} else {
			if t < 0 {
				t = 0
			}
			if d := clip.Duration(); t > d {
				t = d
			}
			t += clip.StartSec
		}
		e.TimeSec = t
		out = append(out, e)
	}
	return out
}

func (p *Pipeline) narrateStage(ctx context.Context, store *state.Store, emit Emitter, in <-chan eventBatch, out chan<- commentary.Segment) error {
	for batch := range in {
		if len(batch.events) == 0 {
			continue
		}

		lastEnd := store.LastCommentaryEnd()
		segments, err := p.narrator.Narrate(ctx, batch.events, batch.windowStart, batch.windowEnd, lastEnd)
		if err != nil {
			log.Printf("pipeline: narration failed for window [%.0fs, %.0fs), skipping: %v", batch.windowStart, batch.windowEnd, err)
			continue
		}
		if len(segments) == 0 {
			continue
		}

		if err := store.AppendCommentary(segments); err != nil {
			return err
		}
		emit.CommentaryReady(segments)

		for _, seg := range segments {
			select {
			case out <- seg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// synthStage renders segments to audio with bounded parallelism. This is the
// only stage that reorders; the mux stage restores timeline order. A failed
// synthesis forwards the segment with nil audio so its chunk is still cut.
func (p *Pipeline) synthStage(ctx context.Context, in <-chan commentary.Segment, out chan<- AudioClip) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxSynthesisParallel)

	for seg := range in {
		seg := seg
		g.Go(func() error {
			audio, err := p.synth.Synthesize(gctx, seg)
			if err != nil {
				log.Printf("pipeline: synthesis failed for segment at %.1fs, chunk will keep original audio: %v", seg.StartSec, err)
				audio = nil
			}

			select {
			case out <- AudioClip{Segment: seg, Audio: audio}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	return g.Wait()
}

// muxStage consumes audio clips, restores timeline order, and writes chunks
// so that every emitted chunk starts exactly where the previous one ended.
func (p *Pipeline) muxStage(ctx context.Context, sessionID, src string, videoDuration float64, sessionDir string, emit Emitter, in <-chan AudioClip) ([]Chunk, error) {
	var (
		buf    ReorderBuffer
		chunks []Chunk
		cursor float64
	)

	// Rough chunk-count estimate for progress reporting only.
	estimated := int(videoDuration / 10)
	if estimated < 1 {
		estimated = 1
	}

	emitChunk := func(clip AudioClip) error {
		end := clip.Segment.EndSec
		if end > videoDuration {
			end = videoDuration
		}
		if end-cursor < minChunkDuration {
			log.Printf("pipeline: skipping chunk shorter than %.1fs at cursor %.2fs", minChunkDuration, cursor)
			return nil
		}

		delay := clip.Segment.StartSec - cursor
		if delay < 0 {
			log.Printf("pipeline: commentary at %.2fs starts before cursor %.2fs, playing immediately", clip.Segment.StartSec, cursor)
			delay = 0
		}

		index := len(chunks)
		outPath := filepath.Join(sessionDir, fmt.Sprintf("chunk_%03d.mp4", index))
		err := p.tools.WriteChunk(ctx, video.ChunkSpec{
			Source:   src,
			StartSec: cursor,
			EndSec:   end,
			Audio:    clip.Audio,
			DelaySec: delay,
			OutPath:  outPath,
		})
		if err != nil {
			// The cursor stays put so the next chunk covers this span too.
			log.Printf("pipeline: chunk %d failed, coverage deferred to next chunk: %v", index, err)
			return nil
		}

		chunk := Chunk{
			Index:    index,
			StartSec: cursor,
			EndSec:   end,
			Path:     outPath,
			URL:      fmt.Sprintf("%s/videos/%s/chunk_%03d.mp4", p.cfg.BaseURL, sessionID, index),
		}
		chunks = append(chunks, chunk)
		cursor = end

		if p.catalog != nil {
			if err := p.catalog.AddChunk(sessionID, chunk); err != nil {
				log.Printf("pipeline: record chunk %d: %v", index, err)
			}
		}

		progress := 15 + 80*index/estimated
		if progress > 95 {
			progress = 95
		}
		emit.ChunkReady(chunk, progress)
		return nil
	}

	// A clip is only safe to release once its start time is within
	// tolerance of the cursor; an earlier segment may still be in flight
	// behind a slow synthesis call no matter how many later clips have
	// already arrived. Everything else waits for the end-of-stream drain,
	// which the channel close guarantees runs.
	for clip := range in {
		buf.Push(clip)
		for {
			next, ok := buf.Peek()
			if !ok || next.Segment.StartSec > cursor+p.cfg.ChunkTolerance {
				break
			}
			buf.Pop()
			if err := emitChunk(next); err != nil {
				return chunks, err
			}
		}
	}

	for {
		next, ok := buf.Pop()
		if !ok {
			break
		}
		if err := emitChunk(next); err != nil {
			return chunks, err
		}
	}

	// Trailing chunk with no commentary overlay covers the rest of the video.
	if videoDuration-cursor >= minChunkDuration {
		index := len(chunks)
		outPath := filepath.Join(sessionDir, fmt.Sprintf("chunk_%03d.mp4", index))
		err := p.tools.WriteChunk(ctx, video.ChunkSpec{
			Source:   src,
			StartSec: cursor,
			EndSec:   videoDuration,
			OutPath:  outPath,
		})
		if err != nil {
			return chunks, fmt.Errorf("write trailing chunk: %w", err)
		}

		chunk := Chunk{
			Index:    index,
			StartSec: cursor,
			EndSec:   videoDuration,
			Path:     outPath,
			URL:      fmt.Sprintf("%s/videos/%s/chunk_%03d.mp4", p.cfg.BaseURL, sessionID, index),
		}
		chunks = append(chunks, chunk)

		if p.catalog != nil {
			if err := p.catalog.AddChunk(sessionID, chunk); err != nil {
				log.Printf("pipeline: record chunk %d: %v", index, err)
			}
		}
		emit.ChunkReady(chunk, 95)
	}

	return chunks, nil
}
