// Package forms holds the questionnaire catalog: the built-in intake form
// variants plus a YAML loader for additional definitions.
//
// The four built-in variants replace the per-form duplication of the original
// intake pages with configuration over a single generic engine.
package forms

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/karuna-health/intake/internal/models"
)

// Registry maps form ids to their definitions.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]models.FormDefinition
}

// NewRegistry creates a registry pre-populated with the built-in variants.
func NewRegistry() *Registry {
	r := &Registry{forms: make(map[string]models.FormDefinition)}
	for _, def := range BuiltinForms() {
		// Built-ins are defined in this package and must always validate.
		if err := r.Register(def); err != nil {
			panic(fmt.Sprintf("invalid built-in form %s: %v", def.ID, err))
		}
	}
	return r
}

// Register validates and adds a form definition, replacing any existing
// definition with the same id.
func (r *Registry) Register(def models.FormDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[def.ID] = def
	slog.Debug("Registry registered form", "formID", def.ID, "segments", len(def.Segments))
	return nil
}

// Get returns the definition for a form id.
func (r *Registry) Get(id string) (models.FormDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.forms[id]
	return def, ok
}

// List returns all registered definitions sorted by id.
func (r *Registry) List() []models.FormDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.FormDefinition, 0, len(r.forms))
	for _, def := range r.forms {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuiltinForms returns the four intake variants shipped with the service.
func BuiltinForms() []models.FormDefinition {
	return []models.FormDefinition{
		weightLossForm(),
		longevityForm(),
		skinRefillForm(),
		hairRefillForm(),
	}
}

func contactSegment() models.Segment {
	return models.Segment{
		ID:          "contact",
		DisplayName: "Contact Details",
		Rules: []models.FieldRule{
			{Kind: models.RuleAlways, Field: "firstName", Message: "Please enter your first name"},
			{Kind: models.RuleAlways, Field: "lastName", Message: "Please enter your last name"},
			{Kind: models.RuleAlways, Field: "phone", Message: "Please enter your phone number"},
			{Kind: models.RuleEmail, Field: "email"},
		},
	}
}

func weightLossForm() models.FormDefinition {
	return models.FormDefinition{
		ID:            "weight-loss",
		DisplayName:   "Weight Loss Intake",
		SessionPrefix: "wl",
		AuthIDLetter:  "W",
		Segments: []models.Segment{
			contactSegment(),
			{
				ID:          "basics",
				DisplayName: "About You",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "sex", Options: []string{"male", "female"}},
					{Kind: models.RuleAlways, Field: "dateOfBirth"},
					{Kind: models.RuleAlways, Field: "heightIn"},
					{Kind: models.RuleAlways, Field: "weightLb"},
				},
			},
			{
				ID:          "screening",
				DisplayName: "Eligibility Screening",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "pregnantOrNursing", Options: []string{"yes", "no"}},
				},
				EligibilityGate: &models.EligibilityGate{
					Field:         "pregnantOrNursing",
					AllowedValues: []string{"no"},
				},
			},
			{
				ID:          "history",
				DisplayName: "Medical History",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "priorGLP1", Options: []string{"yes", "no"}},
					{Kind: models.RuleConditional, Field: "priorGLP1Detail", TriggerField: "priorGLP1", TriggerValue: "yes", Message: "Please describe your previous medication experience"},
					{Kind: models.RuleEnum, Field: "sideEffects", Options: []string{"yes", "no"}},
					{Kind: models.RuleConditional, Field: "sideEffectsDetail", TriggerField: "sideEffects", TriggerValue: "yes", Message: "Please describe your side effects"},
				},
			},
			{
				ID:          "preferences",
				DisplayName: "Medication Preference",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "medicationPreference", Options: []string{"semaglutide", "tirzepatide", "no-preference"}},
				},
			},
		},
	}
}

func longevityForm() models.FormDefinition {
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
			contactSegment(),
			{
				ID:          "goals",
				DisplayName: "Health Goals",
				Rules: []models.FieldRule{
					{Kind: models.RuleAlways, Field: "primaryGoal", Message: "Please tell us your primary goal"},
					{Kind: models.RuleEnum, Field: "activityLevel", Options: []string{"sedentary", "light", "moderate", "high"}},
				},
			},
			{
				ID:          "history",
				DisplayName: "Medical History",
				Rules: []models.FieldRule{
					{Kind: models.RuleEnum, Field: "chronicConditions", Options: []string{"yes", "no"}},
					{Kind: models.RuleConditional, Field: "chronicConditionsDetail", TriggerField: "chronicConditions", TriggerValue: "yes", Message: "Please list your conditions"},
				},
			},
		},
	}
}

func skinRefillForm() models.FormDefinition {
	return refillForm("skin-refill", "Skin Refill", "sk", "S", "skin")
}

func hairRefillForm() models.FormDefinition {
	return refillForm("hair-refill", "Hair Refill", "hr", "H", "hair")
}

// refillForm builds the short refill questionnaire shared by the skin and
// hair products.
func refillForm(id, displayName, prefix, letter, product string) models.FormDefinition {
	return models.FormDefinition{
		ID:            id,
		DisplayName:   displayName,
		SessionPrefix: prefix,
		AuthIDLetter:  letter,
		Segments: []models.Segment{
			contactSegment(),
			{
				ID:          "treatment",
				DisplayName: "Current Treatment",
				Rules: []models.FieldRule{
					{Kind: models.RuleAlways, Field: "currentMedication", Message: "Please enter your current " + product + " medication"},
					{Kind: models.RuleEnum, Field: "sideEffects", Options: []string{"yes", "no"}},
					{Kind: models.RuleConditional, Field: "sideEffectsDetail", TriggerField: "sideEffects", TriggerValue: "yes", Message: "Please describe your side effects"},
					{Kind: models.RuleEnum, Field: "doseChange", Options: []string{"same", "increase", "decrease"}},
				},
			},
		},
	}
}
