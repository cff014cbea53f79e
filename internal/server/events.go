package server

import (
	"time"

	"github.com/ovrbk/matchcast/internal/catalog"
	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/pipeline"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type StatusEvent struct {
	Event
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

type EventsDetectedEvent struct {
	Event
	Events       []commentary.Event `json:"events"`
	TimeAnalyzed float64            `json:"time_analyzed"`
}

type CommentaryReadyEvent struct {
	Event
	Segments []commentary.Segment `json:"segments"`
}

type ChunkReadyEvent struct {
	Event
	Index     int     `json:"index"`
	URL       string  `json:"url"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Progress  int     `json:"progress"`
}

type CompleteEvent struct {
	Event
	Chunks     int    `json:"chunks"`
	FinalVideo string `json:"final_video"`
	Progress   int    `json:"progress"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

type ConnectionEvent struct {
	Event
	Connected bool              `json:"connected"`
	Sessions  []catalog.Session `json:"sessions,omitempty"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

func statusEvent(message string, progress int) StatusEvent {
	return StatusEvent{Event: newEvent("status", time.Now().UTC()), Message: message, Progress: progress}
}

func eventsDetectedEvent(events []commentary.Event, timeAnalyzed float64) EventsDetectedEvent {
	return EventsDetectedEvent{Event: newEvent("events_detected", time.Now().UTC()), Events: events, TimeAnalyzed: timeAnalyzed}
}

func commentaryReadyEvent(segments []commentary.Segment) CommentaryReadyEvent {
	return CommentaryReadyEvent{Event: newEvent("commentary_ready", time.Now().UTC()), Segments: segments}
}

func chunkReadyEvent(chunk pipeline.Chunk, progress int) ChunkReadyEvent {
	return ChunkReadyEvent{
		Event:     newEvent("chunk_ready", time.Now().UTC()),
		Index:     chunk.Index,
		URL:       chunk.URL,
		StartTime: chunk.StartSec,
		EndTime:   chunk.EndSec,
		Progress:  progress,
	}
}

func completeEvent(chunks int, finalVideo string) CompleteEvent {
	return CompleteEvent{Event: newEvent("complete", time.Now().UTC()), Chunks: chunks, FinalVideo: finalVideo, Progress: 100}
}

func errorEvent(message string) ErrorEvent {
	return ErrorEvent{Event: newEvent("error", time.Now().UTC()), Message: message}
}

func connectionEvent(sessions []catalog.Session) ConnectionEvent {
	return ConnectionEvent{Event: newEvent("connection", time.Now().UTC()), Connected: true, Sessions: sessions}
}
