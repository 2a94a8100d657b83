// Package storage persists sessions and their reduced state snapshots in
// a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/agent/session"
	"github.com/agenthost/agenthost/internal/common/logger"
)

// ErrSessionNotFound is returned for lookups of unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is one persisted session.
type SessionRecord struct {
	ID         string    `db:"id" json:"id"`
	AgentName  string    `db:"agent_name" json:"agentName"`
	WorkingDir string    `db:"working_dir" json:"workingDir"`
	Title      string    `db:"title" json:"title,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Store wraps the database handle.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	agent_name  TEXT NOT NULL,
	working_dir TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS session_snapshots (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	state      TEXT NOT NULL,
	saved_at   TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.WithFields(zap.String("component", "storage")),
	}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession persists a new session record.
func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, agent_name, working_dir, title, created_at, updated_at)
		VALUES (:id, :agent_name, :working_dir, :title, :created_at, :updated_at)`, rec)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", rec.ID, err)
	}
	s.logger.Debug("session created", zap.String("session_id", rec.ID))
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	var recs []SessionRecord
	err := s.db.SelectContext(ctx, &recs, `SELECT * FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return recs, nil
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session and its snapshot.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SaveSnapshot upserts the latest reduced state for a session and bumps
// its updated_at.
func (s *Store) SaveSnapshot(ctx context.Context, state session.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_snapshots (session_id, state, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, saved_at = excluded.saved_at`,
		state.SessionID, string(data), now)
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", state.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, state.SessionID)
	if err != nil {
		return fmt.Errorf("touching session %s: %w", state.SessionID, err)
	}
	return nil
}

// LoadSnapshot returns the last saved state for a session.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (session.State, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		`SELECT state FROM session_snapshots WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, ErrSessionNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("loading snapshot for %s: %w", sessionID, err)
	}
	var state session.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return session.State{}, fmt.Errorf("decoding snapshot for %s: %w", sessionID, err)
	}
	return state, nil
}
