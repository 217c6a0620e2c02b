// Package models defines telemetry and submission records for the intake service.
package models

import "time"

// SessionState encodes wizard progress in abandonment telemetry.
// The numeric values are part of the recorded data and must not change.
type SessionState int

const (
	// SessionInProgress indicates the patient is still working through segments.
	SessionInProgress SessionState = 0
	// SessionIneligible indicates the patient was screened out at a gate.
	SessionIneligible SessionState = 1
	// SessionCompleted indicates the questionnaire was submitted.
	SessionCompleted SessionState = 2
)

// String returns a human-readable label for the session state.
func (s SessionState) String() string {
	switch s {
	case SessionInProgress:
		return "in_progress"
	case SessionIneligible:
		return "ineligible"
	case SessionCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// AbandonmentEvent is a write-once telemetry record capturing wizard
// progress at a point in time. Events are emitted on session start and
// every segment transition; they are never read back by the wizard itself.
type AbandonmentEvent struct {
	ID                  string           `json:"id,omitempty"`
	SessionID           string           `json:"session_id"`
	FormID              string           `json:"form_id"`
	Identity            IdentitySnapshot `json:"identity"`
	SegmentIndexReached int              `json:"segment_index_reached"`
	State               SessionState     `json:"state"`
	SegmentDisplayName  string           `json:"segment_display_name"`
	Timestamp           time.Time        `json:"timestamp"`
}

// Submission is a completed questionnaire payload.
type Submission struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	FormID          string         `json:"form_id"`
	AuthorizationID string         `json:"authorization_id"`
	Answers         map[string]any `json:"answers"`
	SubmittedAt     time.Time      `json:"submitted_at"`
}
