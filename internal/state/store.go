// Package state holds the shared session state written by the detection and
// narration stages and read by progress observers: accumulated events,
// accumulated commentary, and the time-analyzed watermark.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/ovrbk/matchcast/internal/commentary"
)

// Store is the single mutable resource shared across pipeline stages within a
// session. All access goes through one mutex; every append rewrites the full
// snapshot file synchronously inside the lock, so a reader that observes an
// advanced watermark is guaranteed to find the corresponding events persisted.
//
// AdvanceWatermark must only be called after the matching AppendEvents has
// returned. The two are deliberately not one atomic operation: a crash
// between them leaves the watermark behind the true state, never ahead of it.
type Store struct {
	mu           sync.Mutex
	events       []commentary.Event
	segments     []commentary.Segment
	timeAnalyzed float64

	eventsPath     string
	commentaryPath string
}

type eventsSnapshot struct {
	Events []commentary.Event `json:"events"`
}

type commentarySnapshot struct {
	Commentaries []commentary.Segment `json:"commentaries"`
}

// NewStore creates (or reopens) a store rooted at dir. Pre-existing snapshot
// files are loaded so a restarted session resumes instead of duplicating.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &Store{
		eventsPath:     filepath.Join(dir, "events.json"),
		commentaryPath: filepath.Join(dir, "commentary.json"),
	}

	if err := s.loadSnapshots(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadSnapshots() error {
	if data, err := os.ReadFile(s.eventsPath); err == nil {
		var snap eventsSnapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil && snap.Events != nil {
			s.events = snap.Events
		} else if jsonErr := json.Unmarshal(data, &s.events); jsonErr != nil {
			log.Printf("state: unreadable events snapshot, starting fresh: %v", jsonErr)
			s.events = nil
		}
		if len(s.events) > 0 {
			log.Printf("state: loaded %d existing events", len(s.events))
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read events snapshot: %w", err)
	}

	if data, err := os.ReadFile(s.commentaryPath); err == nil {
		var snap commentarySnapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil && snap.Commentaries != nil {
			s.segments = snap.Commentaries
		} else if jsonErr := json.Unmarshal(data, &s.segments); jsonErr != nil {
			log.Printf("state: unreadable commentary snapshot, starting fresh: %v", jsonErr)
			s.segments = nil
		}
		if len(s.segments) > 0 {
			log.Printf("state: loaded %d existing commentary segments", len(s.segments))
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read commentary snapshot: %w", err)
	}

	return nil
}

// AppendEvents records newly detected events and persists the full event list
// before returning.
func (s *Store) AppendEvents(events []commentary.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	if err := s.persistEvents(); err != nil {
		return err
	}
	return nil
}

// AppendCommentary records validated commentary segments and persists the
// full list before returning.
func (s *Store) AppendCommentary(segments []commentary.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments = append(s.segments, segments...)
	if err := s.persistCommentary(); err != nil {
		return err
	}
	return nil
}

// AdvanceWatermark moves the time-analyzed watermark forward. Regressions are
// ignored so the watermark stays monotonic.
func (s *Store) AdvanceWatermark(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t > s.timeAnalyzed {
		s.timeAnalyzed = t
	}
}

// TimeAnalyzed returns the watermark: how many seconds of the video have had
// their events durably recorded.
func (s *Store) TimeAnalyzed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeAnalyzed
}

// Events returns a copy of all recorded events.
func (s *Store) Events() []commentary.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commentary.Event(nil), s.events...)
}

// EventsUpTo returns a copy of the events at or before t seconds.
func (s *Store) EventsUpTo(t float64) []commentary.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []commentary.Event
	for _, e := range s.events {
		if e.TimeSec <= t {
			out = append(out, e)
		}
	}
	return out
}

// Commentary returns a copy of all recorded commentary segments.
func (s *Store) Commentary() []commentary.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commentary.Segment(nil), s.segments...)
}

// LastCommentaryEnd returns the end time of the most recent commentary
// segment, or 0 when none exists.
func (s *Store) LastCommentaryEnd() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments) == 0 {
		return 0
	}
	return s.segments[len(s.segments)-1].EndSec
}

func (s *Store) persistEvents() error {
	data, err := json.MarshalIndent(eventsSnapshot{Events: s.events}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events snapshot: %w", err)
	}
	if err := os.WriteFile(s.eventsPath, data, 0o644); err != nil {
		return fmt.Errorf("write events snapshot: %w", err)
	}
	return nil
}

func (s *Store) persistCommentary() error {
	data, err := json.MarshalIndent(commentarySnapshot{Commentaries: s.segments}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal commentary snapshot: %w", err)
	}
	if err := os.WriteFile(s.commentaryPath, data, 0o644); err != nil {
		return fmt.Errorf("write commentary snapshot: %w", err)
	}
	return nil
}
