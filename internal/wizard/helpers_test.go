package wizard

import (
	"context"
	"errors"
	"sync"

	"github.com/karuna-health/intake/internal/models"
)

// Test fakes shared across the wizard package tests. The emitter records
// synchronously so tests can assert on the telemetry trail without racing a
// background writer.

type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	failOn string // operation name to fail: "get", "set", "remove"
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (m *memStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "get" {
		return "", errors.New("storage get failure")
	}
	return m.values[key], nil
}

func (m *memStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "set" {
		return errors.New("storage set failure")
	}
	m.values[key] = value
	return nil
}

func (m *memStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "remove" {
		return errors.New("storage remove failure")
	}
	delete(m.values, key)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []models.AbandonmentEvent
}

func (c *captureEmitter) Emit(event models.AbandonmentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureEmitter) last() models.AbandonmentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type fakeSubmitter struct {
	mu          sync.Mutex
	err         error
	submissions []models.Submission
}

func (f *fakeSubmitter) Submit(ctx context.Context, submission models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submissions = append(f.submissions, submission)
	return nil
}

// testForm is a three-segment fixture: contact details, medical history with
// a conditional detail field, and a final review segment with no rules.
func testForm() models.FormDefinition {
	return models.FormDefinition{
		ID:            "weight-loss",
		DisplayName:   "Weight Loss Intake",
		SessionPrefix: "wl",
		AuthIDLetter:  "W",
		Segments: []models.Segment{
			{
				ID:          "contact",
				DisplayName: "Contact Details",
				Rules: []models.FieldRule{
					{Kind: models.RuleAlways, Field: "firstName"},
					{Kind: models.RuleAlways, Field: "lastName"},
					{Kind: models.RuleEmail, Field: "email"},
				},
			},
			{
				ID:          "history",
				DisplayName: "Medical History",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "sex", Options: []string{"male", "female"}},
					{Kind: models.RuleEnum, Field: "sideEffects", Options: []string{"yes", "no"}},
					{Kind: models.RuleConditional, Field: "sideEffectsDetail", TriggerField: "sideEffects", TriggerValue: "yes"},
				},
			},
			{
				ID:          "review",
				DisplayName: "Review & Consent",
			},
		},
	}
}

// gateForm is a fixture whose first segment screens eligibility.
func gateForm() models.FormDefinition {
	return models.FormDefinition{
		ID:            "longevity",
		DisplayName:   "Longevity Intake",
		SessionPrefix: "lv",
		AuthIDLetter:  "L",
		Segments: []models.Segment{
			{
				ID:          "screening",
				DisplayName: "Eligibility Screening",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "over18", Options: []string{"yes", "no"}},
				},
				EligibilityGate: &models.EligibilityGate{
					Field:         "over18",
					AllowedValues: []string{"yes"},
				},
			},
			{
				ID:          "goals",
				DisplayName: "Health Goals",
				Rules: []models.FieldRule{
					{Kind: models.RuleAlways, Field: "primaryGoal"},
				},
			},
		},
	}
}

type engineFixture struct {
	engine    *Engine
	storage   *memStorage
	emitter   *captureEmitter
	submitter *fakeSubmitter
}

func newEngineFixture(form models.FormDefinition) *engineFixture {
	f := &engineFixture{
		storage:   newMemStorage(),
		emitter:   &captureEmitter{},
		submitter: &fakeSubmitter{},
	}
	f.engine = NewEngine(form, Dependencies{
		Storage:   f.storage,
		Emitter:   f.emitter,
		Submitter: f.submitter,
	})
	return f
}
