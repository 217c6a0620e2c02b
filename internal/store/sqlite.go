// Package store provides storage backends for the intake service.
//
// This file implements a SQLite-backed store for sessions, telemetry,
// submissions and key-value entries.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/karuna-health/intake/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database; missing directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(session models.FormSession) error {
	answersJSON, err := marshalJSONField(session.Answers)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "sessionID", session.SessionID)
		return err
	}
	snapshotJSON, err := marshalJSONField(session.LastIdentitySnapshot)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions (session_id, form_id, current_segment_index, answers, terminal_state, last_identity_snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.FormID, session.CurrentSegmentIndex, answersJSON,
		string(session.TerminalState), snapshotJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", session.SessionID)
		return fmt.Errorf("failed to save session %s: %w", session.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", session.SessionID, "index", session.CurrentSegmentIndex)
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*models.FormSession, error) {
	row := s.db.QueryRow(`
		SELECT session_id, form_id, current_segment_index, answers, terminal_state, last_identity_snapshot, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return err
	}
	return nil
}

func (s *SQLiteStore) AddEvent(event models.AbandonmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	identityJSON, err := marshalJSONField(event.Identity)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO abandonment_events (id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.SessionID, event.FormID, identityJSON,
		event.SegmentIndexReached, int(event.State), event.SegmentDisplayName, event.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddEvent failed", "error", err, "sessionID", event.SessionID)
		return fmt.Errorf("failed to insert event for %s: %w", event.SessionID, err)
	}
	slog.Debug("SQLiteStore AddEvent succeeded", "sessionID", event.SessionID, "state", event.State)
	return nil
}

func (s *SQLiteStore) GetEvents() ([]models.AbandonmentEvent, error) {
	return s.queryEvents(`SELECT id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp FROM abandonment_events ORDER BY timestamp`)
}

func (s *SQLiteStore) GetEventsBySession(sessionID string) ([]models.AbandonmentEvent, error) {
	return s.queryEvents(`SELECT id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp FROM abandonment_events WHERE session_id = ? ORDER BY timestamp`, sessionID)
}

func (s *SQLiteStore) ListAbandoned(olderThan time.Time) ([]models.AbandonmentEvent, error) {
	// Latest event per session, restricted to in-progress sessions stale
	// beyond the cutoff.
	return s.queryEvents(`
		SELECT e.id, e.session_id, e.form_id, e.identity, e.segment_index_reached, e.state, e.segment_display_name, e.timestamp
		FROM abandonment_events e
		JOIN (
			SELECT session_id, MAX(timestamp) AS max_ts
			FROM abandonment_events
			GROUP BY session_id
		) latest ON e.session_id = latest.session_id AND e.timestamp = latest.max_ts
		WHERE e.state = 0 AND e.timestamp < ?
		ORDER BY e.timestamp`, olderThan)
}

func (s *SQLiteStore) queryEvents(query string, args ...any) ([]models.AbandonmentEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore event query failed", "error", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.AbandonmentEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			slog.Error("SQLiteStore event scan failed", "error", err)
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) AddSubmission(submission models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	answersJSON, err := marshalJSONField(submission.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO submissions (id, session_id, form_id, authorization_id, answers, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		submission.ID, submission.SessionID, submission.FormID,
		submission.AuthorizationID, answersJSON, submission.SubmittedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSubmission failed", "error", err, "sessionID", submission.SessionID)
		return fmt.Errorf("failed to insert submission for %s: %w", submission.SessionID, err)
	}
	slog.Debug("SQLiteStore AddSubmission succeeded", "sessionID", submission.SessionID, "authorizationID", submission.AuthorizationID)
	return nil
}

func (s *SQLiteStore) GetSubmissions() ([]models.Submission, error) {
	rows, err := s.db.Query(`SELECT id, session_id, form_id, authorization_id, answers, submitted_at FROM submissions ORDER BY submitted_at`)
	if err != nil {
		slog.Error("SQLiteStore GetSubmissions query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []models.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return submissions, nil
}

func (s *SQLiteStore) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetKV failed", "error", err, "key", key)
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) SetKV(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO kv_entries (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		slog.Error("SQLiteStore SetKV failed", "error", err, "key", key)
		return err
	}
	return nil
}

func (s *SQLiteStore) DeleteKV(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		slog.Error("SQLiteStore DeleteKV failed", "error", err, "key", key)
		return err
	}
	return nil
}

func (s *SQLiteStore) MarkNotified(sessionID string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO followup_notifications (session_id, notified_at) VALUES (?, ?)`, sessionID, time.Now())
	if err != nil {
		slog.Error("SQLiteStore MarkNotified failed", "error", err, "sessionID", sessionID)
		return err
	}
	return nil
}

func (s *SQLiteStore) WasNotified(sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM followup_notifications WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore WasNotified failed", "error", err, "sessionID", sessionID)
		return false, err
	}
	return count > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
