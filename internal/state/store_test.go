package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ovrbk/matchcast/internal/commentary"
)

func TestStorePersistsAndResumes(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	events := []commentary.Event{
		{TimeSec: 12.5, Description: "Shot on target", Intensity: 6},
		{TimeSec: 18, Description: "Corner conceded", Intensity: 3},
	}
	if err := store.AppendEvents(events); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	segments := []commentary.Segment{
		{StartSec: 12.5, EndSec: 16, Text: "A fierce drive!", Speaker: commentary.SpeakerLead},
	}
	if err := store.AppendCommentary(segments); err != nil {
		t.Fatalf("AppendCommentary failed: %v", err)
	}

	// Snapshot files exist on disk before any restart.
	for _, name := range []string{"events.json", "commentary.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Events(); len(got) != 2 || got[0].Description != "Shot on target" {
		t.Fatalf("unexpected events after reopen: %#v", got)
	}
	if got := reopened.Commentary(); len(got) != 1 || got[0].Text != "A fierce drive!" {
		t.Fatalf("unexpected commentary after reopen: %#v", got)
	}
	if got := reopened.LastCommentaryEnd(); got != 16 {
		t.Fatalf("LastCommentaryEnd = %v, want 16", got)
	}
}

func TestStoreLoadsBareArraySnapshot(t *testing.T) {
	dir := t.TempDir()

	raw, _ := json.Marshal([]commentary.Event{{TimeSec: 5, Description: "Kickoff"}})
	if err := os.WriteFile(filepath.Join(dir, "events.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if got := store.Events(); len(got) != 1 || got[0].TimeSec != 5 {
		t.Fatalf("unexpected events: %#v", got)
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	store.AdvanceWatermark(30)
	store.AdvanceWatermark(15)
	if got := store.TimeAnalyzed(); got != 30 {
		t.Fatalf("watermark regressed to %v", got)
	}
	store.AdvanceWatermark(60)
	if got := store.TimeAnalyzed(); got != 60 {
		t.Fatalf("watermark = %v, want 60", got)
	}
}

func TestWatermarkNeverAheadOfEvents(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	// Simulate the detection stage: append then advance, many times, while
	// a reader checks that every observed watermark is backed by persisted
	// events for that span.
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			end := float64((i + 1) * 30)
			_ = store.AppendEvents([]commentary.Event{{TimeSec: end - 1, Description: "event"}})
			store.AdvanceWatermark(end)
		}
		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			watermark := store.TimeAnalyzed()
			visible := store.EventsUpTo(watermark)
			expected := int(watermark / 30)
			if len(visible) < expected {
				t.Errorf("watermark %v ahead of events: saw %d, expected at least %d", watermark, len(visible), expected)
				return
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	wg.Wait()
}

func TestEventsUpTo(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	_ = store.AppendEvents([]commentary.Event{
		{TimeSec: 10, Description: "early"},
		{TimeSec: 40, Description: "late"},
	})

	got := store.EventsUpTo(30)
	if len(got) != 1 || got[0].Description != "early" {
		t.Fatalf("EventsUpTo(30) = %#v", got)
	}
}
