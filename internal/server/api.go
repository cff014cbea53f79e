package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ovrbk/matchcast/internal/catalog"
	"github.com/ovrbk/matchcast/internal/pipeline"
	"github.com/ovrbk/matchcast/internal/teamdata"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionCatalog lists past sessions and their chunks.
type SessionCatalog interface {
	GetSessions() ([]catalog.Session, error)
	GetSession(id string) (catalog.Session, error)
	GetChunks(sessionID string) ([]pipeline.Chunk, error)
}

// Analyzer runs one commentary session, reporting progress through emit.
type Analyzer interface {
	Analyze(ctx context.Context, sessionID, videoPath string, emit pipeline.Emitter) (*pipeline.Result, error)
}

type analyzeRequest struct {
	Video     string `json:"video"`
	SessionID string `json:"session_id,omitempty"`
}

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /api/videos", func(w http.ResponseWriter, r *http.Request) {
		videos, err := listVideos(deps.VideosDir)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list videos: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, videos)
	})

	mux.HandleFunc("POST /api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if deps.Analyzer == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "analysis is not configured: missing API credentials")
			return
		}

		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse request: %v", err))
			return
		}

		videoName := filepath.Base(strings.TrimSpace(req.Video))
		if videoName == "" || videoName == "." || videoName == string(filepath.Separator) {
			writeJSONError(w, http.StatusBadRequest, "video name is required")
			return
		}
		videoPath := filepath.Join(deps.VideosDir, videoName)
		if _, err := os.Stat(videoPath); err != nil {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("video %s not found", videoName))
			return
		}

		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		emitter, err := newSSEEmitter(w, deps.Hub)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		emitter.Status(fmt.Sprintf("starting session %s", sessionID), 1)
		result, err := deps.Analyzer.Analyze(r.Context(), sessionID, videoPath, emitter)
		if err != nil {
			emitter.Error(err.Error())
			return
		}
		emitter.Complete(len(result.Chunks), result.FinalVideo)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if deps.Catalog == nil {
			writeJSON(w, http.StatusOK, []catalog.Session{})
			return
		}
		sessions, err := deps.Catalog.GetSessions()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if deps.Catalog == nil {
			writeJSONError(w, http.StatusNotFound, "session catalog is not configured")
			return
		}

		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sessionData, err := deps.Catalog.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		chunks, err := deps.Catalog.GetChunks(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session chunks: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionData,
			"chunks":  chunks,
		})
	})

	mux.HandleFunc("GET /api/match-context", func(w http.ResponseWriter, r *http.Request) {
		if deps.Teamdata == nil {
			writeJSONError(w, http.StatusNotFound, "match context is not configured")
			return
		}
		mc, ok, err := deps.Teamdata.Load()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load match context: %v", err))
			return
		}
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no match context set")
			return
		}
		writeJSON(w, http.StatusOK, mc)
	})

	mux.HandleFunc("PUT /api/match-context", func(w http.ResponseWriter, r *http.Request) {
		if deps.Teamdata == nil {
			writeJSONError(w, http.StatusNotFound, "match context is not configured")
			return
		}
		var mc teamdata.MatchContext
		if err := json.NewDecoder(r.Body).Decode(&mc); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse match context: %v", err))
			return
		}
		if err := deps.Teamdata.Save(mc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save match context: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /api/match-context", func(w http.ResponseWriter, r *http.Request) {
		if deps.Teamdata == nil {
			writeJSONError(w, http.StatusNotFound, "match context is not configured")
			return
		}
		if err := deps.Teamdata.Clear(); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("clear match context: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func listVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	videos := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mp4", ".mov", ".mkv", ".webm":
			videos = append(videos, entry.Name())
		}
	}
	sort.Strings(videos)
	return videos, nil
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
