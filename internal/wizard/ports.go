// Package wizard implements the multi-segment questionnaire engine.
//
// One generic engine drives every form variant: it walks an ordered list of
// segments, gates forward progress on per-segment validation, branches to an
// ineligible terminal state on screening answers, and records a best-effort
// abandonment trail on every transition.
package wizard

import (
	"context"

	"github.com/karuna-health/intake/internal/models"
)

// Storage is the session-identity port: a key-value string store holding one
// session id per form variant. Injecting it keeps the engine deterministic
// under test instead of reaching into ambient state.
type Storage interface {
	// Get retrieves the value for a key, or "" if absent.
	Get(key string) (string, error)

	// Set stores the value for a key.
	Set(key, value string) error

	// Remove deletes a key.
	Remove(key string) error
}

// Emitter is the abandonment telemetry port. Emit is a one-way send with no
// acknowledgment contract: implementations must never block the caller and
// must swallow their own failures.
type Emitter interface {
	Emit(event models.AbandonmentEvent)
}

// Submitter delivers the final questionnaire payload. Unlike telemetry this
// call is awaited and its failure is surfaced to the patient as a retryable
// error.
type Submitter interface {
	Submit(ctx context.Context, submission models.Submission) error
}

// Dependencies holds the collaborators injected into the engine.
type Dependencies struct {
	Storage   Storage
	Emitter   Emitter
	Submitter Submitter
}
