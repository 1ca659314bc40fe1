// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions in a local SQLite database so
// transcripts and their version history survive restarts.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrDatabaseClosed  = errors.New("session store is closed")
)

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore persists chat sessions. A single writer connection keeps
// SQLite happy under WAL.
type SessionStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	role            TEXT NOT NULL,
	current_version INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS message_versions (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	idx        INTEGER NOT NULL,
	content    TEXT NOT NULL,
	sources    TEXT NOT NULL,
	PRIMARY KEY (message_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);
`

// Open opens (or creates) the session database under dir.
func Open(dir string) (*SessionStore, error) {
	path := filepath.Join(dir, "chats.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	// Single connection: SQLite allows one writer and the driver is
	// happier without connection churn.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Close releases the database.
func (s *SessionStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save upserts a whole session with its messages and versions in one
// transaction. Messages are rewritten wholesale; transcripts are small
// and this keeps edit/version bookkeeping trivial.
func (s *SessionStore) Save(ctx context.Context, session *model.ChatSession) error {
	if s.db == nil {
		return ErrDatabaseClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`,
		session.ID, session.Title, session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for pos, msg := range session.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, position, role, current_version, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, session.ID, pos, string(msg.Role), msg.CurrentVersionIndex, msg.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		for idx, version := range msg.Versions {
			sources, err := json.Marshal(version.Sources)
			if err != nil {
				return fmt.Errorf("failed to encode sources: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO message_versions (message_id, idx, content, sources) VALUES (?, ?, ?, ?)`,
				msg.ID, idx, version.Content, string(sources))
			if err != nil {
				return fmt.Errorf("failed to insert version: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Load reads one session with all messages and versions.
func (s *SessionStore) Load(ctx context.Context, id string) (*model.ChatSession, error) {
	if s.db == nil {
		return nil, ErrDatabaseClosed
	}

	session := &model.ChatSession{ID: id}
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&session.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	session.CreatedAt = time.UnixMilli(created)
	session.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, current_version, created_at FROM messages
		 WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.ChatMessage{}
		var role string
		var msgCreated int64
		if err := rows.Scan(&msg.ID, &role, &msg.CurrentVersionIndex, &msgCreated); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = time.UnixMilli(msgCreated)
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	for _, msg := range session.Messages {
		if err := s.loadVersions(ctx, msg); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *SessionStore) loadVersions(ctx context.Context, msg *model.ChatMessage) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, sources FROM message_versions WHERE message_id = ? ORDER BY idx`, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to load versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var content, sourcesJSON string
		if err := rows.Scan(&content, &sourcesJSON); err != nil {
			return fmt.Errorf("failed to scan version: %w", err)
		}
		var sources []model.SourceRef
		if sourcesJSON != "" && sourcesJSON != "null" {
			// Corrupted sources lose citations, not the transcript.
			_ = json.Unmarshal([]byte(sourcesJSON), &sources)
		}
		msg.Versions = append(msg.Versions, model.MessageVersion{Content: content, Sources: sources})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate versions: %w", err)
	}

	if len(msg.Versions) > 0 {
		idx := msg.CurrentVersionIndex
		if idx < 0 || idx >= len(msg.Versions) {
			idx = len(msg.Versions) - 1
			msg.CurrentVersionIndex = idx
		}
		msg.Content = msg.Versions[idx].Content
		msg.Sources = msg.Versions[idx].Sources
	}
	return nil
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID           string
	Title        string
	MessageCount int
	UpdatedAt    time.Time
}

// List returns session summaries, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]SessionSummary, error) {
	if s.db == nil {
		return nil, ErrDatabaseClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.updated_at, COUNT(m.id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var updated int64
		if err := rows.Scan(&sum.ID, &sum.Title, &updated, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session and, via cascade, its messages and versions.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return ErrDatabaseClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
