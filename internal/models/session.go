// Package models defines the core data structures for the intake service.
//
// It includes types for form sessions, questionnaire definitions, abandonment
// telemetry and submissions, which are shared across modules.
package models

import "time"

// TerminalState represents the final disposition of a form session.
type TerminalState string

const (
	// TerminalNone indicates the session is still in progress.
	TerminalNone TerminalState = ""
	// TerminalIneligible indicates the session ended at an eligibility gate.
	TerminalIneligible TerminalState = "ineligible"
	// TerminalSubmitted indicates the session completed with a submission.
	TerminalSubmitted TerminalState = "submitted"
)

// IdentityFields lists the answer fields captured in identity snapshots.
var IdentityFields = []string{"firstName", "lastName", "phone", "email"}

// IdentitySnapshot captures the contact subset of answers at a point in time.
// It is embedded in abandonment events so staff can follow up with patients
// who never finished the questionnaire.
type IdentitySnapshot struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Equal reports whether two snapshots hold identical values.
func (s IdentitySnapshot) Equal(other IdentitySnapshot) bool {
	return s == other
}

// IsEmpty reports whether no identity field has been answered yet.
func (s IdentitySnapshot) IsEmpty() bool {
	return s == IdentitySnapshot{}
}

// FormSession represents one in-progress questionnaire attempt.
//
// Answers holds every field the patient has touched; values are strings,
// option tags, string slices (multi-select) or booleans. Answers are only
// ever overwritten, never removed.
type FormSession struct {
	SessionID            string           `json:"session_id"`
	FormID               string           `json:"form_id"`
	CurrentSegmentIndex  int              `json:"current_segment_index"`
	Answers              map[string]any   `json:"answers,omitempty"`
	TerminalState        TerminalState    `json:"terminal_state,omitempty"`
	LastIdentitySnapshot IdentitySnapshot `json:"last_identity_snapshot,omitempty"`
	Submitting           bool             `json:"submitting,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Terminal reports whether the session has reached a terminal state.
// Once terminal, no further answer mutation or navigation is permitted.
func (s *FormSession) Terminal() bool {
	return s.TerminalState != TerminalNone
}

// Identity extracts the current identity snapshot from the answer map.
func (s *FormSession) Identity() IdentitySnapshot {
	str := func(field string) string {
		if v, ok := s.Answers[field].(string); ok {
			return v
		}
		return ""
	}
	return IdentitySnapshot{
		FirstName: str("firstName"),
		LastName:  str("lastName"),
		Phone:     str("phone"),
		Email:     str("email"),
	}
}
