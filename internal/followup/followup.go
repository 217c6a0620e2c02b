// Package followup periodically scans for abandoned intake sessions and
// alerts the care team so staff can follow up with the patient.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/notify"
	"github.com/karuna-health/intake/internal/store"
)

const (
	// DefaultInterval is how often the worker sweeps for stale sessions.
	DefaultInterval = 15 * time.Minute
	// DefaultStaleAfter is how long a session must sit untouched before it
	// counts as abandoned.
	DefaultStaleAfter = 2 * time.Hour
)

// Opts holds configuration options for the follow-up worker.
type Opts struct {
	Interval   time.Duration
	StaleAfter time.Duration
	StaffPhone string
}

// Option defines a configuration option for the follow-up worker.
type Option func(*Opts)

// WithInterval sets the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// WithStaleAfter sets the abandonment window.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Opts) { o.StaleAfter = d }
}

// WithStaffPhone sets the phone number that receives follow-up alerts.
func WithStaffPhone(phone string) Option {
	return func(o *Opts) { o.StaffPhone = phone }
}

// Worker watches the abandonment trail and notifies staff about sessions
// that stalled mid-questionnaire. Each session is notified at most once.
type Worker struct {
	store      store.Store
	notifier   notify.Notifier
	interval   time.Duration
	staleAfter time.Duration
	staffPhone string

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewWorker creates a follow-up worker over the given store and notifier.
func NewWorker(st store.Store, notifier notify.Notifier, opts ...Option) *Worker {
	cfg := Opts{Interval: DefaultInterval, StaleAfter: DefaultStaleAfter}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Followup worker created",
		"interval", cfg.Interval, "staleAfter", cfg.StaleAfter, "staffPhoneSet", cfg.StaffPhone != "")
	return &Worker{
		store:      st,
		notifier:   notifier,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		staffPhone: cfg.StaffPhone,
	}
}

// Start launches the sweep loop. It returns immediately; the loop runs until
// Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		slog.Warn("Followup worker already started")
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		slog.Info("Followup worker started", "interval", w.interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Followup worker stopped")
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep runs one pass: list sessions whose latest activity is older than the
// abandonment window, skip those already notified, and alert staff about the
// rest. Notification failures are logged and retried on the next sweep.
func (w *Worker) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	events, err := w.store.ListAbandoned(cutoff)
	if err != nil {
		slog.Error("Followup sweep failed to list abandoned sessions", "error", err)
		return
	}
	slog.Debug("Followup sweep", "cutoff", cutoff, "candidates", len(events))

	for _, ev := range events {
		notified, err := w.store.WasNotified(ev.SessionID)
		if err != nil {
			slog.Error("Followup sweep failed to check notification ledger", "error", err, "sessionID", ev.SessionID)
			continue
		}
		if notified {
			continue
		}
		if err := w.notifier.Notify(ctx, w.staffPhone, followupMessage(ev)); err != nil {
			slog.Error("Followup notification failed", "error", err, "sessionID", ev.SessionID)
			continue
		}
		if err := w.store.MarkNotified(ev.SessionID); err != nil {
			slog.Error("Followup sweep failed to record notification", "error", err, "sessionID", ev.SessionID)
			continue
		}
		slog.Info("Followup notification sent", "sessionID", ev.SessionID, "formID", ev.FormID, "segment", ev.SegmentDisplayName)
	}
}

func followupMessage(ev models.AbandonmentEvent) string {
	name := "A patient"
	if ev.Identity.FirstName != "" {
		name = ev.Identity.FirstName
		if ev.Identity.LastName != "" {
			name += " " + ev.Identity.LastName
		}
	}
	contact := ev.Identity.Phone
	if contact == "" {
		contact = ev.Identity.Email
	}
	if contact == "" {
		contact = "no contact info"
	}
	return fmt.Sprintf("%s stopped the %s questionnaire at %q (%s). Session %s.",
		name, ev.FormID, ev.SegmentDisplayName, contact, ev.SessionID)
}
