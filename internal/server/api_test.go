package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ovrbk/matchcast/internal/catalog"
	"github.com/ovrbk/matchcast/internal/pipeline"
	"github.com/ovrbk/matchcast/internal/teamdata"
)

type fakeCatalog struct {
	sessions []catalog.Session
	chunks   map[string][]pipeline.Chunk
}

func (f *fakeCatalog) GetSessions() ([]catalog.Session, error) { return f.sessions, nil }

func (f *fakeCatalog) GetSession(id string) (catalog.Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return catalog.Session{}, sql.ErrNoRows
}

func (f *fakeCatalog) GetChunks(sessionID string) ([]pipeline.Chunk, error) {
	return f.chunks[sessionID], nil
}

type fakeAnalyzer struct {
	sessionID string
	videoPath string
	err       error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, sessionID, videoPath string, emit pipeline.Emitter) (*pipeline.Result, error) {
	f.sessionID = sessionID
	f.videoPath = videoPath
	if f.err != nil {
		return nil, f.err
	}

	chunk := pipeline.Chunk{Index: 0, StartSec: 0, EndSec: 12, URL: "http://h/videos/s/chunk_000.mp4"}
	emit.Status("analyzing match footage", 10)
	emit.ChunkReady(chunk, 15)
	return &pipeline.Result{Chunks: []pipeline.Chunk{chunk}, FinalVideo: "/out/final.mp4"}, nil
}

func newTestDeps(t *testing.T, analyzer Analyzer) Deps {
	t.Helper()
	videosDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(videosDir, "match.mp4"), []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	return Deps{
		Hub:      NewHub(),
		Catalog:  &fakeCatalog{chunks: map[string][]pipeline.Chunk{}},
		Analyzer: analyzer,
		Teamdata: teamdata.NewManager(t.TempDir()),

		VideosDir: videosDir,
		OutputDir: t.TempDir(),
	}
}

func TestListVideos(t *testing.T) {
	deps := newTestDeps(t, nil)
	for _, name := range []string{"b.mov", "notes.txt", "a.mp4"} {
		if err := os.WriteFile(filepath.Join(deps.VideosDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/videos")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var videos []string
	if err := json.NewDecoder(resp.Body).Decode(&videos); err != nil {
		t.Fatal(err)
	}
	want := []string{"a.mp4", "b.mov", "match.mp4"}
	if len(videos) != len(want) {
		t.Fatalf("videos = %v, want %v", videos, want)
	}
	for i := range want {
		if videos[i] != want[i] {
			t.Fatalf("videos = %v, want %v", videos, want)
		}
	}
}

func TestAnalyzeStreamsSSE(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	deps := newTestDeps(t, analyzer)
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	body := strings.NewReader(`{"video": "match.mp4", "session_id": "sess-abc"}`)
	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	data := readAll(t, resp)
	frames := parseSSEFrames(t, data)

	if analyzer.sessionID != "sess-abc" {
		t.Fatalf("analyzer saw session %q", analyzer.sessionID)
	}
	if filepath.Base(analyzer.videoPath) != "match.mp4" {
		t.Fatalf("analyzer saw video %q", analyzer.videoPath)
	}

	types := frameTypes(frames)
	if types[len(types)-1] != "complete" {
		t.Fatalf("expected terminal complete event, got %v", types)
	}
	if count(types, "complete")+count(types, "error") != 1 {
		t.Fatalf("expected exactly one terminal event, got %v", types)
	}
	if count(types, "chunk_ready") != 1 {
		t.Fatalf("expected one chunk_ready, got %v", types)
	}
}

func TestAnalyzeErrorTerminal(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("upload rejected")}
	deps := newTestDeps(t, analyzer)
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(`{"video": "match.mp4"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	frames := parseSSEFrames(t, readAll(t, resp))
	types := frameTypes(frames)
	if types[len(types)-1] != "error" {
		t.Fatalf("expected terminal error event, got %v", types)
	}
	if count(types, "complete") != 0 {
		t.Fatalf("complete emitted after failure: %v", types)
	}

	last := frames[len(frames)-1]
	if !strings.Contains(last["message"].(string), "upload rejected") {
		t.Fatalf("error message missing: %v", last)
	}
}

func TestAnalyzeGeneratesSessionID(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	deps := newTestDeps(t, analyzer)
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(`{"video": "match.mp4"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	_ = readAll(t, resp)

	if analyzer.sessionID == "" {
		t.Fatal("no session id generated")
	}
	if !validSessionID(analyzer.sessionID) {
		t.Fatalf("generated session id %q is invalid", analyzer.sessionID)
	}
}

func TestAnalyzeValidation(t *testing.T) {
	deps := newTestDeps(t, &fakeAnalyzer{})
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing video", body: `{}`, want: http.StatusBadRequest},
		{name: "unknown video", body: `{"video": "ghost.mp4"}`, want: http.StatusNotFound},
		{name: "bad session id", body: `{"video": "match.mp4", "session_id": "../etc"}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAnalyzeWithoutAnalyzer(t *testing.T) {
	deps := newTestDeps(t, nil)
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(`{"video": "match.mp4"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGetSessions(t *testing.T) {
	deps := newTestDeps(t, nil)
	started := time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)
	deps.Catalog = &fakeCatalog{
		sessions: []catalog.Session{{ID: "sess1", Source: "match.mp4", StartedAt: started, Status: catalog.StatusComplete, ChunkCount: 3}},
		chunks: map[string][]pipeline.Chunk{
			"sess1": {{Index: 0, StartSec: 0, EndSec: 12, URL: "http://h/videos/sess1/chunk_000.mp4"}},
		},
	}
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/sess1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	session := got["session"].(map[string]any)
	if session["id"] != "sess1" {
		t.Fatalf("unexpected session: %v", session)
	}
	chunks := got["chunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("unexpected chunks: %v", chunks)
	}

	resp2, err := http.Get(srv.URL + "/api/sessions/ghost")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session status = %d", resp2.StatusCode)
	}
}

func TestMatchContextEndpoints(t *testing.T) {
	deps := newTestDeps(t, nil)
	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()
	client := srv.Client()

	// Empty at first.
	resp, err := client.Get(srv.URL + "/api/match-context")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("initial status = %d", resp.StatusCode)
	}

	body := `{"home": {"name": "Rivertown FC"}, "away": {"name": "Harbour United"}}`
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/match-context", strings.NewReader(body))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	resp, err = client.Get(srv.URL + "/api/match-context")
	if err != nil {
		t.Fatal(err)
	}
	var mc teamdata.MatchContext
	if err := json.NewDecoder(resp.Body).Decode(&mc); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if mc.Home.Name != "Rivertown FC" {
		t.Fatalf("unexpected context: %#v", mc)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/match-context", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}

func TestChunkFileServing(t *testing.T) {
	deps := newTestDeps(t, nil)
	sessionDir := filepath.Join(deps.OutputDir, "sess1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, "chunk_000.mp4"), []byte("chunk bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler(deps))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/videos/sess1/chunk_000.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chunk fetch status = %d", resp.StatusCode)
	}

	// Directory listing is refused.
	resp2, err := http.Get(srv.URL + "/videos/sess1/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("directory listing status = %d", resp2.StatusCode)
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return b.String()
}

func parseSSEFrames(t *testing.T, data string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, block := range strings.Split(data, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed SSE frame: %q", block)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &payload); err != nil {
			t.Fatalf("bad frame payload %q: %v", block, err)
		}
		frames = append(frames, payload)
	}
	return frames
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f["type"].(string))
	}
	return types
}

func count(items []string, want string) int {
	n := 0
	for _, item := range items {
		if item == want {
			n++
		}
	}
	return n
}
