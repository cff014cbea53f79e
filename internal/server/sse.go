package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/ovrbk/matchcast/internal/commentary"
	"github.com/ovrbk/matchcast/internal/pipeline"
)

// sseEmitter streams pipeline progress to one HTTP client as server-sent
// events and mirrors every event to the websocket hub. Pipeline stages emit
// concurrently, so writes are serialized with a mutex.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	hub     *Hub
	failed  bool
}

func newSSEEmitter(w http.ResponseWriter, hub *Hub) (*sseEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseEmitter{w: w, flusher: flusher, hub: hub}, nil
}

func (e *sseEmitter) send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("sse marshal error: %v", err)
		return
	}

	e.mu.Lock()
	if !e.failed {
		if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
			// The client went away; keep feeding the hub so websocket
			// observers still see the rest of the session.
			e.failed = true
		} else {
			e.flusher.Flush()
		}
	}
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.Broadcast(payload)
	}
}

func (e *sseEmitter) Status(message string, progress int) {
	e.send(statusEvent(message, progress))
}

func (e *sseEmitter) EventsDetected(events []commentary.Event, timeAnalyzed float64) {
	e.send(eventsDetectedEvent(events, timeAnalyzed))
}

func (e *sseEmitter) CommentaryReady(segments []commentary.Segment) {
	e.send(commentaryReadyEvent(segments))
}

func (e *sseEmitter) ChunkReady(chunk pipeline.Chunk, progress int) {
	e.send(chunkReadyEvent(chunk, progress))
}

func (e *sseEmitter) Complete(chunks int, finalVideo string) {
	e.send(completeEvent(chunks, finalVideo))
}

func (e *sseEmitter) Error(message string) {
	e.send(errorEvent(message))
}
