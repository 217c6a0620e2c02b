package followup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []string
	bodies []string
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, to string, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to)
	n.bodies = append(n.bodies, body)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func staleEvent(t *testing.T, st store.Store, sessionID string) {
	t.Helper()
	err := st.AddEvent(models.AbandonmentEvent{
		SessionID:           sessionID,
		FormID:              "weight-loss",
		Identity:            models.IdentitySnapshot{FirstName: "Ada", Phone: "+15551234567"},
		SegmentIndexReached: 1,
		State:               models.SessionInProgress,
		SegmentDisplayName:  "Medical History",
		Timestamp:           time.Now().Add(-3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
}

func TestSweepNotifiesStaleSessionsOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{}
	w := NewWorker(st, notifier,
		WithStaleAfter(time.Hour),
		WithStaffPhone("+15559990000"),
	)

	staleEvent(t, st, "wl-100-1")
	staleEvent(t, st, "wl-100-2")

	w.Sweep(context.Background())
	if got := notifier.count(); got != 2 {
		t.Fatalf("notifications after first sweep = %d, want 2", got)
	}
	if notifier.sent[0] != "+15559990000" {
		t.Errorf("notified %q, want staff phone", notifier.sent[0])
	}
	if !strings.Contains(notifier.bodies[0], "Ada") || !strings.Contains(notifier.bodies[0], "Medical History") {
		t.Errorf("body missing patient context: %q", notifier.bodies[0])
	}

	// Second sweep must not re-notify.
	w.Sweep(context.Background())
	if got := notifier.count(); got != 2 {
		t.Errorf("notifications after second sweep = %d, want 2", got)
	}
}

func TestSweepSkipsFreshAndFinishedSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{}
	w := NewWorker(st, notifier, WithStaleAfter(time.Hour), WithStaffPhone("+15559990000"))

	// Fresh activity, inside the window.
	if err := st.AddEvent(models.AbandonmentEvent{
		SessionID: "wl-200-1",
		FormID:    "weight-loss",
		State:     models.SessionInProgress,
		Timestamp: time.Now().Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	// Old but completed.
	if err := st.AddEvent(models.AbandonmentEvent{
		SessionID: "wl-200-2",
		FormID:    "weight-loss",
		State:     models.SessionCompleted,
		Timestamp: time.Now().Add(-3 * time.Hour),
	}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	w.Sweep(context.Background())
	if got := notifier.count(); got != 0 {
		t.Errorf("notifications = %d, want 0", got)
	}
}

func TestSweepRetriesFailedNotifications(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{err: errors.New("twilio down")}
	w := NewWorker(st, notifier, WithStaleAfter(time.Hour), WithStaffPhone("+15559990000"))

	staleEvent(t, st, "wl-300-1")

	w.Sweep(context.Background())
	if got := notifier.count(); got != 0 {
		t.Fatalf("notifications while failing = %d, want 0", got)
	}
	notified, err := st.WasNotified("wl-300-1")
	if err != nil {
		t.Fatalf("WasNotified: %v", err)
	}
	if notified {
		t.Fatal("session marked notified despite delivery failure")
	}

	notifier.mu.Lock()
	notifier.err = nil
	notifier.mu.Unlock()

	w.Sweep(context.Background())
	if got := notifier.count(); got != 1 {
		t.Errorf("notifications after recovery = %d, want 1", got)
	}
}

func TestStartStop(t *testing.T) {
	st := store.NewInMemoryStore()
	notifier := &recordingNotifier{}
	w := NewWorker(st, notifier,
		WithInterval(10*time.Millisecond),
		WithStaleAfter(time.Hour),
		WithStaffPhone("+15559990000"),
	)

	staleEvent(t, st, "wl-400-1")

	w.Start(context.Background())
	deadline := time.After(2 * time.Second)
	for notifier.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
	w.Stop()
	// Stop again is a no-op.
	w.Stop()
}

func TestFollowupMessageFallbacks(t *testing.T) {
	msg := followupMessage(models.AbandonmentEvent{
		SessionID:          "wl-1-1",
		FormID:             "weight-loss",
		SegmentDisplayName: "Contact Info",
	})
	if !strings.Contains(msg, "A patient") || !strings.Contains(msg, "no contact info") {
		t.Errorf("unexpected fallback message: %q", msg)
	}
}
