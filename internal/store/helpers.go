package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/karuna-health/intake/internal/models"
)

// marshalJSONField converts a value to its JSON string for a text column,
// returning "" for nil maps so the column stays NULL-ish.
func marshalJSONField(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json field: %w", err)
	}
	return string(data), nil
}

// scanSession reads a session from a single row shared by both SQL backends.
func scanSession(row *sql.Row) (*models.FormSession, error) {
	var session models.FormSession
	var answersJSON, snapshotJSON, terminal sql.NullString
	err := row.Scan(
		&session.SessionID, &session.FormID, &session.CurrentSegmentIndex,
		&answersJSON, &terminal, &snapshotJSON, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.TerminalState = models.TerminalState(terminal.String)
	session.Answers = make(map[string]any)
	if answersJSON.String != "" {
		if err := json.Unmarshal([]byte(answersJSON.String), &session.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session answers: %w", err)
		}
	}
	if snapshotJSON.String != "" {
		if err := json.Unmarshal([]byte(snapshotJSON.String), &session.LastIdentitySnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal identity snapshot: %w", err)
		}
	}
	return &session, nil
}

// scanEvent reads an abandonment event from sql.Rows.
func scanEvent(rows *sql.Rows) (models.AbandonmentEvent, error) {
	var event models.AbandonmentEvent
	var identityJSON, displayName sql.NullString
	var state int
	err := rows.Scan(
		&event.ID, &event.SessionID, &event.FormID, &identityJSON,
		&event.SegmentIndexReached, &state, &displayName, &event.Timestamp,
	)
	if err != nil {
		return event, fmt.Errorf("scan event failed: %w", err)
	}
	event.State = models.SessionState(state)
	event.SegmentDisplayName = displayName.String
	if identityJSON.String != "" {
		if err := json.Unmarshal([]byte(identityJSON.String), &event.Identity); err != nil {
			return event, fmt.Errorf("failed to unmarshal event identity: %w", err)
		}
	}
	return event, nil
}

// scanSubmission reads a submission from sql.Rows.
func scanSubmission(rows *sql.Rows) (models.Submission, error) {
	var submission models.Submission
	var answersJSON sql.NullString
	err := rows.Scan(
		&submission.ID, &submission.SessionID, &submission.FormID,
		&submission.AuthorizationID, &answersJSON, &submission.SubmittedAt,
	)
	if err != nil {
		return submission, fmt.Errorf("scan submission failed: %w", err)
	}
	if answersJSON.String != "" {
		submission.Answers = make(map[string]any)
		if err := json.Unmarshal([]byte(answersJSON.String), &submission.Answers); err != nil {
			return submission, fmt.Errorf("failed to unmarshal submission answers: %w", err)
		}
	}
	return submission, nil
}
