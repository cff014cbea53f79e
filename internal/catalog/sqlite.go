// Package catalog persists session and chunk records so finished commentary
// runs can be listed and replayed after a restart.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ovrbk/matchcast/internal/pipeline"
)

const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Status     string     `json:"status"`
	FinalPath  string     `json:"final_path"`
	ChunkCount int        `json:"chunk_count"`
}

type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "matchcast.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *SQLiteCatalog) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := c.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			final_path TEXT NOT NULL DEFAULT '',
			chunk_count INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			start_sec REAL NOT NULL,
			end_sec REAL NOT NULL,
			path TEXT NOT NULL,
			url TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE,
			UNIQUE(session_id, idx)
		);
	`); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}

	if _, err := c.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := c.db.Exec("CREATE INDEX IF NOT EXISTS idx_chunks_session_id ON chunks(session_id, idx)"); err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}

	return nil
}

func (c *SQLiteCatalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *SQLiteCatalog) CreateSession(id, source string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := c.db.Exec(
		`INSERT INTO sessions(id, source, started_at, status) VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		id,
		source,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (c *SQLiteCatalog) EndSession(id string, endedAt time.Time, status, finalPath string, chunkCount int) error {
	res, err := c.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ?, final_path = ?, chunk_count = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		status,
		finalPath,
		chunkCount,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (c *SQLiteCatalog) AddChunk(sessionID string, chunk pipeline.Chunk) error {
	_, err := c.db.Exec(
		`INSERT INTO chunks(session_id, idx, start_sec, end_sec, path, url) VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, idx) DO UPDATE SET start_sec = excluded.start_sec, end_sec = excluded.end_sec, path = excluded.path, url = excluded.url`,
		sessionID,
		chunk.Index,
		chunk.StartSec,
		chunk.EndSec,
		chunk.Path,
		chunk.URL,
	)
	if err != nil {
		return fmt.Errorf("add chunk %d for session %s: %w", chunk.Index, sessionID, err)
	}
	return nil
}

func (c *SQLiteCatalog) GetSessions() ([]Session, error) {
	rows, err := c.db.Query(
		`SELECT id, source, started_at, ended_at, status, final_path, chunk_count
		 FROM sessions
		 ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (c *SQLiteCatalog) GetSession(id string) (Session, error) {
	rows, err := c.db.Query(
		`SELECT id, source, started_at, ended_at, status, final_path, chunk_count FROM sessions WHERE id = ?`,
		id,
	)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Session{}, fmt.Errorf("query session %s: %w", id, err)
		}
		return Session{}, sql.ErrNoRows
	}
	return scanSession(rows)
}

func (c *SQLiteCatalog) GetChunks(sessionID string) ([]pipeline.Chunk, error) {
	rows, err := c.db.Query(
		`SELECT idx, start_sec, end_sec, path, url
		 FROM chunks
		 WHERE session_id = ?
		 ORDER BY idx ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]pipeline.Chunk, 0, 32)
	for rows.Next() {
		var chunk pipeline.Chunk
		if err := rows.Scan(&chunk.Index, &chunk.StartSec, &chunk.EndSec, &chunk.Path, &chunk.URL); err != nil {
			return nil, fmt.Errorf("scan chunk for session %s: %w", sessionID, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows for session %s: %w", sessionID, err)
	}

	return chunks, nil
}

func scanSession(rows *sql.Rows) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := rows.Scan(&sess.ID, &sess.Source, &startedAt, &endedAt, &sess.Status, &sess.FinalPath, &sess.ChunkCount); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}
