// Package store provides storage backends for the intake service.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/karuna-health/intake/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(session models.FormSession) error {
	answersJSON, err := marshalJSONField(session.Answers)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "sessionID", session.SessionID)
		return err
	}
	snapshotJSON, err := marshalJSONField(session.LastIdentitySnapshot)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, form_id, current_segment_index, answers, terminal_state, last_identity_snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			current_segment_index = EXCLUDED.current_segment_index,
			answers = EXCLUDED.answers,
			terminal_state = EXCLUDED.terminal_state,
			last_identity_snapshot = EXCLUDED.last_identity_snapshot,
			updated_at = EXCLUDED.updated_at`,
		session.SessionID, session.FormID, session.CurrentSegmentIndex, answersJSON,
		string(session.TerminalState), snapshotJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", session.SessionID)
		return fmt.Errorf("failed to save session %s: %w", session.SessionID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", session.SessionID, "index", session.CurrentSegmentIndex)
	return nil
}

func (s *PostgresStore) GetSession(sessionID string) (*models.FormSession, error) {
	row := s.db.QueryRow(`
		SELECT session_id, form_id, current_segment_index, answers, terminal_state, last_identity_snapshot, created_at, updated_at
		FROM sessions WHERE session_id = $1`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	return session, nil
}

func (s *PostgresStore) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return err
	}
	return nil
}

func (s *PostgresStore) AddEvent(event models.AbandonmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	identityJSON, err := marshalJSONField(event.Identity)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO abandonment_events (id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.SessionID, event.FormID, identityJSON,
		event.SegmentIndexReached, int(event.State), event.SegmentDisplayName, event.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddEvent failed", "error", err, "sessionID", event.SessionID)
		return fmt.Errorf("failed to insert event for %s: %w", event.SessionID, err)
	}
	slog.Debug("PostgresStore AddEvent succeeded", "sessionID", event.SessionID, "state", event.State)
	return nil
}

func (s *PostgresStore) GetEvents() ([]models.AbandonmentEvent, error) {
	return s.queryEvents(`SELECT id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp FROM abandonment_events ORDER BY timestamp`)
}

func (s *PostgresStore) GetEventsBySession(sessionID string) ([]models.AbandonmentEvent, error) {
	return s.queryEvents(`SELECT id, session_id, form_id, identity, segment_index_reached, state, segment_display_name, timestamp FROM abandonment_events WHERE session_id = $1 ORDER BY timestamp`, sessionID)
}

func (s *PostgresStore) ListAbandoned(olderThan time.Time) ([]models.AbandonmentEvent, error) {
	return s.queryEvents(`
		SELECT e.id, e.session_id, e.form_id, e.identity, e.segment_index_reached, e.state, e.segment_display_name, e.timestamp
		FROM abandonment_events e
		JOIN (
			SELECT session_id, MAX(timestamp) AS max_ts
			FROM abandonment_events
			GROUP BY session_id
		) latest ON e.session_id = latest.session_id AND e.timestamp = latest.max_ts
		WHERE e.state = 0 AND e.timestamp < $1
		ORDER BY e.timestamp`, olderThan)
}

func (s *PostgresStore) queryEvents(query string, args ...any) ([]models.AbandonmentEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore event query failed", "error", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.AbandonmentEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			slog.Error("PostgresStore event scan failed", "error", err)
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) AddSubmission(submission models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	answersJSON, err := marshalJSONField(submission.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO submissions (id, session_id, form_id, authorization_id, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		submission.ID, submission.SessionID, submission.FormID,
		submission.AuthorizationID, answersJSON, submission.SubmittedAt)
	if err != nil {
		slog.Error("PostgresStore AddSubmission failed", "error", err, "sessionID", submission.SessionID)
		return fmt.Errorf("failed to insert submission for %s: %w", submission.SessionID, err)
	}
	slog.Debug("PostgresStore AddSubmission succeeded", "sessionID", submission.SessionID, "authorizationID", submission.AuthorizationID)
	return nil
}

func (s *PostgresStore) GetSubmissions() ([]models.Submission, error) {
	rows, err := s.db.Query(`SELECT id, session_id, form_id, authorization_id, answers, submitted_at FROM submissions ORDER BY submitted_at`)
	if err != nil {
		slog.Error("PostgresStore GetSubmissions query failed", "error", err)
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

func (s *PostgresStore) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore GetKV failed", "error", err, "key", key)
		return "", err
	}
	return value, nil
}

func (s *PostgresStore) SetKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		slog.Error("PostgresStore SetKV failed", "error", err, "key", key)
		return err
	}
	return nil
}

func (s *PostgresStore) DeleteKV(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = $1`, key)
	if err != nil {
		slog.Error("PostgresStore DeleteKV failed", "error", err, "key", key)
		return err
	}
	return nil
}

func (s *PostgresStore) MarkNotified(sessionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO followup_notifications (session_id, notified_at) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET notified_at = EXCLUDED.notified_at`, sessionID, time.Now())
	if err != nil {
		slog.Error("PostgresStore MarkNotified failed", "error", err, "sessionID", sessionID)
		return err
	}
	return nil
}

func (s *PostgresStore) WasNotified(sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM followup_notifications WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore WasNotified failed", "error", err, "sessionID", sessionID)
		return false, err
	}
	return count > 0, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
