package forms

import (
	"testing"

	"github.com/karuna-health/intake/internal/models"
)

func TestBuiltinForms_AllValid(t *testing.T) {
	for _, def := range BuiltinForms() {
		if err := def.Validate(); err != nil {
			t.Errorf("built-in form %s failed validation: %v", def.ID, err)
		}
	}
}

func TestNewRegistry_ContainsBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"weight-loss", "longevity", "skin-refill", "hair-refill"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("expected registry to contain %q", id)
		}
	}
	if got := len(r.List()); got != 4 {
		t.Errorf("expected 4 built-in forms, got %d", got)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID > list[i].ID {
			t.Fatalf("list not sorted: %s before %s", list[i-1].ID, list[i].ID)
		}
	}
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	err := r.Register(models.FormDefinition{ID: "broken", AuthIDLetter: "B"})
	if err == nil {
		t.Error("expected validation error for form without segments")
	}
}

func TestBuiltinForms_UniqueSessionPrefixes(t *testing.T) {
	seen := make(map[string]string)
	for _, def := range BuiltinForms() {
		if other, dup := seen[def.SessionPrefix]; dup {
			t.Errorf("session prefix %q shared by %s and %s", def.SessionPrefix, other, def.ID)
		}
		seen[def.SessionPrefix] = def.ID
	}
}

func TestWeightLossForm_GateScreensPregnancy(t *testing.T) {
	r := NewRegistry()
	def, _ := r.Get("weight-loss")
	seg := def.SegmentByID("screening")
	if seg == nil || seg.EligibilityGate == nil {
		t.Fatal("weight-loss screening segment must carry an eligibility gate")
	}
	if seg.EligibilityGate.Allows("yes") {
		t.Error("pregnant or nursing patients must not pass the gate")
	}
	if !seg.EligibilityGate.Allows("no") {
		t.Error("non-pregnant patients must pass the gate")
	}
}
