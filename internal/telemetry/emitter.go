// Package telemetry records the abandonment trail emitted by the wizard engine.
//
// Emission is a one-way send: the engine never waits on the write and never
// sees its failure. Staff tooling reads the trail through the store.
package telemetry

import (
	"log/slog"
	"sync"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/store"
)

// StoreEmitter writes abandonment events to the store on a background
// goroutine. Errors are swallowed after logging; telemetry must never block
// or fail the intake flow.
type StoreEmitter struct {
	store store.Store
	wg    sync.WaitGroup
}

// NewStoreEmitter creates an emitter backed by the given store.
func NewStoreEmitter(st store.Store) *StoreEmitter {
	return &StoreEmitter{store: st}
}

// Emit records the event asynchronously and returns immediately.
func (e *StoreEmitter) Emit(event models.AbandonmentEvent) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.store.AddEvent(event); err != nil {
			slog.Warn("StoreEmitter failed to record event", "error", err, "sessionID", event.SessionID, "state", event.State)
			return
		}
		slog.Debug("StoreEmitter recorded event", "sessionID", event.SessionID, "state", event.State, "segment", event.SegmentIndexReached)
	}()
}

// Flush blocks until all in-flight writes complete. Used on shutdown and in
// tests; the request path never calls it.
func (e *StoreEmitter) Flush() {
	e.wg.Wait()
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(models.AbandonmentEvent) {}
