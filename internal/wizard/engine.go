// Package wizard provides the questionnaire engine implementation.
package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/util"
)

// SessionKeyPrefix namespaces session-identity keys in the storage port,
// one key per form variant.
const SessionKeyPrefix = "intake-session:"

// ValidationResult reports the outcome of validating one segment.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// NavigationResult reports the outcome of a forward navigation attempt.
type NavigationResult struct {
	Advanced     bool                 `json:"advanced"`
	SegmentIndex int                  `json:"segment_index"`
	Terminal     models.TerminalState `json:"terminal,omitempty"`
	Validation   ValidationResult     `json:"validation"`
}

// SubmitResult reports the outcome of a submission attempt.
type SubmitResult struct {
	Submitted       bool              `json:"submitted"`
	AuthorizationID string            `json:"authorization_id,omitempty"`
	SegmentIndex    int               `json:"segment_index"`
	FieldErrors     map[string]string `json:"field_errors,omitempty"`
	Retryable       bool              `json:"retryable,omitempty"`
}

// Engine drives a patient through one form variant's ordered segment list.
//
// All operations run to completion before the next one is applied; the engine
// assumes a single writer per session and holds no locks of its own.
type Engine struct {
	form    models.FormDefinition
	deps    Dependencies
	session *models.FormSession
}

// NewEngine creates an engine for the given form variant.
func NewEngine(form models.FormDefinition, deps Dependencies) *Engine {
	slog.Debug("Engine created", "formID", form.ID, "segments", len(form.Segments))
	return &Engine{form: form, deps: deps}
}

// Session returns the session the engine is operating on.
func (e *Engine) Session() *models.FormSession {
	return e.session
}

// Resume attaches an existing session to the engine.
func (e *Engine) Resume(session *models.FormSession) {
	if session.Answers == nil {
		session.Answers = make(map[string]any)
	}
	e.session = session
}

// sessionKey is the storage-port key holding this form variant's session id.
func (e *Engine) sessionKey() string {
	return SessionKeyPrefix + e.form.ID
}

// InitializeSession loads or creates the session for this form variant.
//
// If the storage port already holds a session id it is reused and no initial
// telemetry fires, so resuming never duplicates the session-start event. On
// first creation a new id is minted, stored, and an initial in-progress event
// with an empty identity snapshot is emitted. The returned bool reports
// whether a new session was created.
func (e *Engine) InitializeSession(ctx context.Context) (*models.FormSession, bool, error) {
	existing, err := e.deps.Storage.Get(e.sessionKey())
	if err != nil {
		slog.Error("Engine InitializeSession storage read failed", "error", err, "formID", e.form.ID)
		return nil, false, fmt.Errorf("failed to read session storage: %w", err)
	}

	now := time.Now()
	if existing != "" {
		slog.Debug("Engine InitializeSession resuming", "formID", e.form.ID, "sessionID", existing)
		e.session = &models.FormSession{
			SessionID: existing,
			FormID:    e.form.ID,
			Answers:   make(map[string]any),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return e.session, false, nil
	}

	id := util.GenerateSessionID(e.form.SessionPrefix)
	if err := e.deps.Storage.Set(e.sessionKey(), id); err != nil {
		// The session still works without resume continuity.
		slog.Warn("Engine InitializeSession storage write failed", "error", err, "formID", e.form.ID, "sessionID", id)
	}
	e.session = &models.FormSession{
		SessionID: id,
		FormID:    e.form.ID,
		Answers:   make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.emit(models.SessionInProgress, 0)
	slog.Info("Engine InitializeSession created", "formID", e.form.ID, "sessionID", id)
	return e.session, true, nil
}

// UpdateAnswer overwrites a single answer. No validation happens here;
// validation runs at navigation time.
//
// When an identity field changes on the first segment an in-progress
// telemetry event fires, debounced by snapshot equality rather than time:
// at most one event per distinct snapshot value.
func (e *Engine) UpdateAnswer(ctx context.Context, field string, value any) error {
	if e.session.Terminal() {
		slog.Debug("Engine UpdateAnswer rejected, session terminal", "sessionID", e.session.SessionID, "field", field)
		return models.ErrSessionTerminal
	}
	if field == "" {
		return models.ErrEmptyFieldName
	}

	e.session.Answers[field] = value
	e.session.UpdatedAt = time.Now()
	slog.Debug("Engine UpdateAnswer", "sessionID", e.session.SessionID, "field", field, "segment", e.session.CurrentSegmentIndex)

	if e.session.CurrentSegmentIndex == 0 && isIdentityField(field) {
		snapshot := e.session.Identity()
		if !snapshot.Equal(e.session.LastIdentitySnapshot) {
			e.session.LastIdentitySnapshot = snapshot
			e.emit(models.SessionInProgress, e.session.CurrentSegmentIndex)
		}
	}
	return nil
}

// ValidateSegment evaluates every rule of the named segment against the
// current answers. Validation is local and synchronous.
func (e *Engine) ValidateSegment(segmentID string) (ValidationResult, error) {
	seg := e.form.SegmentByID(segmentID)
	if seg == nil {
		return ValidationResult{}, fmt.Errorf("unknown segment %q in form %s", segmentID, e.form.ID)
	}
	fieldErrors := evaluateSegment(*seg, e.session.Answers)
	return ValidationResult{Valid: len(fieldErrors) == 0, FieldErrors: fieldErrors}, nil
}

// NextSegment attempts to advance past the current segment.
//
// Order of checks: segment validation first (invalid answers never reach the
// gate), then the eligibility gate (failing it is terminal), then the index
// advances unless already at the last segment, which is a navigation no-op.
func (e *Engine) NextSegment(ctx context.Context) (NavigationResult, error) {
	if e.session.Terminal() {
		slog.Debug("Engine NextSegment rejected, session terminal", "sessionID", e.session.SessionID)
		return NavigationResult{}, models.ErrSessionTerminal
	}

	idx := e.session.CurrentSegmentIndex
	seg := e.form.Segments[idx]

	fieldErrors := evaluateSegment(seg, e.session.Answers)
	if len(fieldErrors) > 0 {
		slog.Debug("Engine NextSegment validation failed", "sessionID", e.session.SessionID, "segment", seg.ID, "errors", len(fieldErrors))
		return NavigationResult{
			SegmentIndex: idx,
			Validation:   ValidationResult{Valid: false, FieldErrors: fieldErrors},
		}, nil
	}

	if gate := seg.EligibilityGate; gate != nil {
		if !gate.Allows(answerString(e.session.Answers[gate.Field])) {
			e.session.TerminalState = models.TerminalIneligible
			e.session.UpdatedAt = time.Now()
			e.emit(models.SessionIneligible, idx)
			slog.Info("Engine NextSegment gated ineligible", "sessionID", e.session.SessionID, "segment", seg.ID)
			return NavigationResult{
				SegmentIndex: idx,
				Terminal:     models.TerminalIneligible,
				Validation:   ValidationResult{Valid: true},
			}, nil
		}
	}

	if idx < len(e.form.Segments)-1 {
		e.session.CurrentSegmentIndex = idx + 1
		e.session.UpdatedAt = time.Now()
		e.emit(models.SessionInProgress, e.session.CurrentSegmentIndex)
		slog.Debug("Engine NextSegment advanced", "sessionID", e.session.SessionID, "from", idx, "to", idx+1)
		return NavigationResult{
			Advanced:     true,
			SegmentIndex: idx + 1,
			Validation:   ValidationResult{Valid: true},
		}, nil
	}

	// Already on the last segment: navigation no-op, submission is separate.
	slog.Debug("Engine NextSegment at last segment", "sessionID", e.session.SessionID, "segment", seg.ID)
	return NavigationResult{
		SegmentIndex: idx,
		Validation:   ValidationResult{Valid: true},
	}, nil
}

// PreviousSegment moves back one segment without revalidating the segment
// being left.
func (e *Engine) PreviousSegment(ctx context.Context) (NavigationResult, error) {
	if e.session.Terminal() {
		slog.Debug("Engine PreviousSegment rejected, session terminal", "sessionID", e.session.SessionID)
		return NavigationResult{}, models.ErrSessionTerminal
	}
	if e.session.CurrentSegmentIndex == 0 {
		return NavigationResult{}, models.ErrAlreadyAtFirst
	}

	e.session.CurrentSegmentIndex--
	e.session.UpdatedAt = time.Now()
	e.emit(models.SessionInProgress, e.session.CurrentSegmentIndex)
	slog.Debug("Engine PreviousSegment", "sessionID", e.session.SessionID, "to", e.session.CurrentSegmentIndex)
	return NavigationResult{
		Advanced:     true,
		SegmentIndex: e.session.CurrentSegmentIndex,
		Validation:   ValidationResult{Valid: true},
	}, nil
}

// Submit revalidates every segment and delivers the final payload.
//
// Revalidating the whole form guards against sessions that reached the last
// segment without passing through gated segments. On any failure the current
// index jumps to the first failing segment. Delivery failure leaves all state
// untouched so the patient can retry without re-entering answers; retrying
// may create a duplicate record server-side, which is accepted behavior.
func (e *Engine) Submit(ctx context.Context) (SubmitResult, error) {
	if e.session.Terminal() {
		slog.Debug("Engine Submit rejected, session terminal", "sessionID", e.session.SessionID)
		return SubmitResult{}, models.ErrSessionTerminal
	}
	if e.session.Submitting {
		slog.Warn("Engine Submit rejected, submission in flight", "sessionID", e.session.SessionID)
		return SubmitResult{}, models.ErrSubmitInFlight
	}

	for i, seg := range e.form.Segments {
		fieldErrors := evaluateSegment(seg, e.session.Answers)
		if len(fieldErrors) > 0 {
			e.session.CurrentSegmentIndex = i
			e.session.UpdatedAt = time.Now()
			slog.Debug("Engine Submit validation failed", "sessionID", e.session.SessionID, "segment", seg.ID, "index", i)
			return SubmitResult{
				SegmentIndex: i,
				FieldErrors:  fieldErrors,
			}, nil
		}
	}

	e.session.Submitting = true
	defer func() { e.session.Submitting = false }()

	submission := models.Submission{
		SessionID:       e.session.SessionID,
		FormID:          e.form.ID,
		AuthorizationID: util.GenerateAuthorizationID(e.form.AuthIDLetter),
		Answers:         e.session.Answers,
		SubmittedAt:     time.Now(),
	}

	if err := e.deps.Submitter.Submit(ctx, submission); err != nil {
		slog.Error("Engine Submit delivery failed", "error", err, "sessionID", e.session.SessionID)
		return SubmitResult{
			SegmentIndex: e.session.CurrentSegmentIndex,
			Retryable:    true,
		}, fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
	}

	e.emit(models.SessionCompleted, e.session.CurrentSegmentIndex)
	if err := e.deps.Storage.Remove(e.sessionKey()); err != nil {
		slog.Warn("Engine Submit storage cleanup failed", "error", err, "sessionID", e.session.SessionID)
	}
	e.session.TerminalState = models.TerminalSubmitted
	e.session.UpdatedAt = time.Now()
	slog.Info("Engine Submit succeeded", "sessionID", e.session.SessionID, "authorizationID", submission.AuthorizationID)
	return SubmitResult{
		Submitted:       true,
		AuthorizationID: submission.AuthorizationID,
		SegmentIndex:    e.session.CurrentSegmentIndex,
	}, nil
}

// emit hands an abandonment event to the telemetry port. Telemetry is
// best-effort: a nil emitter is allowed and failures never reach the caller.
func (e *Engine) emit(state models.SessionState, segmentIndex int) {
	if e.deps.Emitter == nil {
		return
	}
	displayName := ""
	if segmentIndex >= 0 && segmentIndex < len(e.form.Segments) {
		displayName = e.form.Segments[segmentIndex].DisplayName
	}
	e.deps.Emitter.Emit(models.AbandonmentEvent{
		SessionID:           e.session.SessionID,
		FormID:              e.form.ID,
		Identity:            e.session.Identity(),
		SegmentIndexReached: segmentIndex,
		State:               state,
		SegmentDisplayName:  displayName,
		Timestamp:           time.Now(),
	})
}

func isIdentityField(field string) bool {
	for _, f := range models.IdentityFields {
		if f == field {
			return true
		}
	}
	return false
}
