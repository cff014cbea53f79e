package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records every invocation and replies from a queue of outputs.
type fakeRunner struct {
	calls   [][]string
	outputs []string
	errs    []error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	i := len(f.calls) - 1
	var out string
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return []byte(out), err
}

func newFakeTools(f *fakeRunner) *Tools {
	t := NewTools("ffmpeg", "ffprobe")
	t.run = f.run
	return t
}

func argString(call []string) string {
	return strings.Join(call, " ")
}

func TestDuration(t *testing.T) {
	f := &fakeRunner{outputs: []string{"65.123\n"}}
	tools := newFakeTools(f)

	d, err := tools.Duration(context.Background(), "match.mp4")
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if d != 65.123 {
		t.Fatalf("duration = %v, want 65.123", d)
	}

	call := argString(f.calls[0])
	if !strings.HasPrefix(call, "ffprobe") {
		t.Fatalf("expected ffprobe, got %q", call)
	}
	if !strings.Contains(call, "format=duration") {
		t.Fatalf("missing duration query: %q", call)
	}
}

func TestDurationUnparseable(t *testing.T) {
	f := &fakeRunner{outputs: []string{"N/A"}}
	tools := newFakeTools(f)

	if _, err := tools.Duration(context.Background(), "match.mp4"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHasAudio(t *testing.T) {
	f := &fakeRunner{outputs: []string{"audio\n", ""}}
	tools := newFakeTools(f)

	got, err := tools.HasAudio(context.Background(), "a.mp4")
	if err != nil || !got {
		t.Fatalf("HasAudio = %v, %v", got, err)
	}
	got, err = tools.HasAudio(context.Background(), "b.mp4")
	if err != nil || got {
		t.Fatalf("HasAudio on silent file = %v, %v", got, err)
	}
}

func TestEnsureAudioAddsSilentTrack(t *testing.T) {
	f := &fakeRunner{outputs: []string{"", ""}}
	tools := newFakeTools(f)
	dir := t.TempDir()

	out, err := tools.EnsureAudio(context.Background(), "silent.mp4", dir)
	if err != nil {
		t.Fatalf("EnsureAudio failed: %v", err)
	}
	if out == "silent.mp4" {
		t.Fatal("expected a new file for silent source")
	}

	call := argString(f.calls[1])
	if !strings.Contains(call, "anullsrc") {
		t.Fatalf("silent track not generated: %q", call)
	}
	if !strings.Contains(call, "-c:v copy") {
		t.Fatalf("video should be stream-copied: %q", call)
	}
}

func TestEnsureAudioPassThrough(t *testing.T) {
	f := &fakeRunner{outputs: []string{"audio"}}
	tools := newFakeTools(f)

	out, err := tools.EnsureAudio(context.Background(), "loud.mp4", t.TempDir())
	if err != nil {
		t.Fatalf("EnsureAudio failed: %v", err)
	}
	if out != "loud.mp4" {
		t.Fatalf("expected source passthrough, got %q", out)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected only the probe call, got %d", len(f.calls))
	}
}

func TestSplit(t *testing.T) {
	f := &fakeRunner{}
	tools := newFakeTools(f)
	dir := t.TempDir()
	splitter := NewSplitter(tools, dir)

	clips, err := splitter.Split(context.Background(), "match.mp4", 65, 30)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	if clips[2].StartSec != 60 || clips[2].EndSec != 65 {
		t.Fatalf("unexpected final clip: %#v", clips[2])
	}
	if filepath.Base(clips[0].Path) != "clip_000_0000_0030.mp4" {
		t.Fatalf("unexpected clip name: %s", clips[0].Path)
	}

	// -ss must come after -i so output timestamps are rebased.
	call := argString(f.calls[0])
	iIdx := strings.Index(call, "-i match.mp4")
	ssIdx := strings.Index(call, "-ss ")
	if iIdx < 0 || ssIdx < 0 || ssIdx < iIdx {
		t.Fatalf("expected -ss after -i: %q", call)
	}
	if !strings.Contains(call, "-avoid_negative_ts make_zero") {
		t.Fatalf("missing timestamp rebase: %q", call)
	}
	if !strings.Contains(call, "-c copy") {
		t.Fatalf("clips should be stream-copied: %q", call)
	}
}

func TestSplitFailureIsFatal(t *testing.T) {
	f := &fakeRunner{errs: []error{nil, fmt.Errorf("ffmpeg exploded")}}
	tools := newFakeTools(f)
	splitter := NewSplitter(tools, t.TempDir())

	_, err := splitter.Split(context.Background(), "match.mp4", 65, 30)
	if err == nil {
		t.Fatal("expected error when a cut fails")
	}
	if !strings.Contains(err.Error(), "clip 1") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteChunkPlainCut(t *testing.T) {
	f := &fakeRunner{}
	tools := newFakeTools(f)

	err := tools.WriteChunk(context.Background(), ChunkSpec{
		Source:   "src.mp4",
		StartSec: 45,
		EndSec:   65,
		OutPath:  filepath.Join(t.TempDir(), "chunk_002.mp4"),
	})
	if err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected a single cut, got %d calls", len(f.calls))
	}
	call := argString(f.calls[0])
	if !strings.Contains(call, "-ss 45.000") || !strings.Contains(call, "-to 65.000") {
		t.Fatalf("unexpected cut bounds: %q", call)
	}
	if !strings.Contains(call, "-c copy") {
		t.Fatalf("plain chunk should be stream-copied: %q", call)
	}
}

func TestWriteChunkMixesCommentary(t *testing.T) {
	f := &fakeRunner{}
	tools := newFakeTools(f)
	out := filepath.Join(t.TempDir(), "chunk_000.mp4")

	err := tools.WriteChunk(context.Background(), ChunkSpec{
		Source:   "src.mp4",
		StartSec: 0,
		EndSec:   12,
		Audio:    []byte("mp3 bytes"),
		DelaySec: 2.5,
		OutPath:  out,
	})
	if err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if len(f.calls) != 2 {
		t.Fatalf("expected cut then mix, got %d calls", len(f.calls))
	}

	mix := argString(f.calls[1])
	if !strings.Contains(mix, "[0:a]volume=0.2[orig];[1:a]adelay=2500|2500[comm];[orig][comm]amix=inputs=2:duration=first[aout]") {
		t.Fatalf("unexpected mix filter: %q", mix)
	}
	if !strings.Contains(mix, "-c:v copy") {
		t.Fatalf("video must not be re-encoded: %q", mix)
	}
	if !strings.Contains(mix, "-map 0:v") || !strings.Contains(mix, "-map [aout]") {
		t.Fatalf("unexpected stream mapping: %q", mix)
	}
	if !strings.Contains(mix, "-movflags +faststart") {
		t.Fatalf("missing faststart: %q", mix)
	}
}

func TestConcatWritesListFile(t *testing.T) {
	var captured string
	f := &fakeRunner{}
	tools := NewTools("ffmpeg", "ffprobe")
	tools.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		for i, a := range args {
			if a == "-i" && i+1 < len(args) {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					return nil, err
				}
				captured = string(data)
			}
		}
		return f.run(ctx, name, args...)
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "final.mp4")
	err := tools.Concat(context.Background(), []string{
		filepath.Join(dir, "chunk_000.mp4"),
		filepath.Join(dir, "chunk_001.mp4"),
	}, out)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}

	if !strings.Contains(captured, "chunk_000.mp4") || !strings.Contains(captured, "chunk_001.mp4") {
		t.Fatalf("list file missing chunks: %q", captured)
	}
	if strings.Index(captured, "chunk_000") > strings.Index(captured, "chunk_001") {
		t.Fatalf("chunks out of order: %q", captured)
	}

	call := argString(f.calls[0])
	if !strings.Contains(call, "-f concat") || !strings.Contains(call, "-safe 0") {
		t.Fatalf("unexpected concat invocation: %q", call)
	}
	if _, err := os.Stat(out + ".txt"); !os.IsNotExist(err) {
		t.Fatalf("list file not cleaned up: %v", err)
	}
}

func TestConcatNoChunks(t *testing.T) {
	tools := newFakeTools(&fakeRunner{})
	if err := tools.Concat(context.Background(), nil, "out.mp4"); err == nil {
		t.Fatal("expected error for empty chunk list")
	}
}
