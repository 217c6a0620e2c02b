package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/karuna-health/intake/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "intake.db")))
	if err != nil {
		t.Skipf("SQLite not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error when DSN is not set")
	}
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	session := models.FormSession{
		SessionID:           "wl-1-42",
		FormID:              "weight-loss",
		CurrentSegmentIndex: 1,
		Answers:             map[string]any{"firstName": "Ada", "sideEffects": "no"},
		LastIdentitySnapshot: models.IdentitySnapshot{
			FirstName: "Ada",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveSession(session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSession("wl-1-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session to be found")
	}
	if got.CurrentSegmentIndex != 1 || got.Answers["firstName"] != "Ada" {
		t.Errorf("session fields lost in round trip: %+v", got)
	}
	if got.LastIdentitySnapshot.FirstName != "Ada" {
		t.Errorf("identity snapshot lost in round trip: %+v", got.LastIdentitySnapshot)
	}

	// Saving again overwrites in place.
	session.CurrentSegmentIndex = 2
	session.TerminalState = models.TerminalSubmitted
	if err := s.SaveSession(session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.GetSession("wl-1-42")
	if got.CurrentSegmentIndex != 2 || got.TerminalState != models.TerminalSubmitted {
		t.Errorf("session update not persisted: %+v", got)
	}
}

func TestSQLiteStore_EventTrailAndAbandonment(t *testing.T) {
	s := newTestSQLiteStore(t)
	old := time.Now().UTC().Add(-2 * time.Hour)

	events := []models.AbandonmentEvent{
		{SessionID: "stale", FormID: "weight-loss", State: models.SessionInProgress, SegmentIndexReached: 1, SegmentDisplayName: "About You", Timestamp: old},
		{SessionID: "done", FormID: "weight-loss", State: models.SessionInProgress, Timestamp: old},
		{SessionID: "done", FormID: "weight-loss", State: models.SessionCompleted, Timestamp: old.Add(time.Minute)},
	}
	for _, event := range events {
		if err := s.AddEvent(event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	bySession, err := s.GetEventsBySession("done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("expected 2 events for session done, got %d", len(bySession))
	}

	abandoned, err := s.ListAbandoned(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(abandoned) != 1 || abandoned[0].SessionID != "stale" {
		t.Fatalf("expected only the stale session, got %+v", abandoned)
	}
	if abandoned[0].SegmentDisplayName != "About You" {
		t.Errorf("event fields lost in round trip: %+v", abandoned[0])
	}
}

func TestSQLiteStore_KVAndNotifications(t *testing.T) {
	s := newTestSQLiteStore(t)

	if v, _ := s.GetKV("missing"); v != "" {
		t.Error("missing key must return empty string")
	}
	s.SetKV("client|intake-session:weight-loss", "wl-1-1")
	s.SetKV("client|intake-session:weight-loss", "wl-1-2")
	if v, _ := s.GetKV("client|intake-session:weight-loss"); v != "wl-1-2" {
		t.Errorf("expected overwrite to wl-1-2, got %q", v)
	}
	s.DeleteKV("client|intake-session:weight-loss")
	if v, _ := s.GetKV("client|intake-session:weight-loss"); v != "" {
		t.Error("deleted key must return empty string")
	}

	if notified, _ := s.WasNotified("x"); notified {
		t.Error("unmarked session must not be notified")
	}
	s.MarkNotified("x")
	if notified, _ := s.WasNotified("x"); !notified {
		t.Error("marked session must be notified")
	}
}

func TestSQLiteStore_Submissions(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.AddSubmission(models.Submission{
		SessionID:       "wl-1-1",
		FormID:          "weight-loss",
		AuthorizationID: "W00427",
		Answers:         map[string]any{"medicationPreference": "semaglutide"},
		SubmittedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	subs, err := s.GetSubmissions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 1 || subs[0].AuthorizationID != "W00427" {
		t.Fatalf("submission not stored correctly: %+v", subs)
	}
	if subs[0].Answers["medicationPreference"] != "semaglutide" {
		t.Errorf("answers lost in round trip: %+v", subs[0].Answers)
	}
}
