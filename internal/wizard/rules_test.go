package wizard

import (
	"testing"

	"github.com/karuna-health/intake/internal/models"
)

func TestEvaluateRule_Always(t *testing.T) {
	rule := models.FieldRule{Kind: models.RuleAlways, Field: "name"}
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"missing", nil, false},
		{"empty string", "", false},
		{"whitespace only", "   \t", false},
		{"filled", "Ada", true},
		{"boolean false", false, true},
		{"empty slice", []string{}, false},
		{"filled slice", []string{"nausea"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := map[string]any{}
			if tt.value != nil {
				answers["name"] = tt.value
			}
			ok, msg := EvaluateRule(rule, answers)
			if ok != tt.want {
				t.Errorf("value %v: got valid=%v, want %v", tt.value, ok, tt.want)
			}
			if !ok && msg == "" {
				t.Error("failed rule must carry a message")
			}
		})
	}
}

func TestEvaluateRule_ConditionalRequirementLaw(t *testing.T) {
	rule := models.FieldRule{
		Kind:         models.RuleConditional,
		Field:        "sideEffectsDetail",
		TriggerField: "sideEffects",
		TriggerValue: "yes",
	}
	tests := []struct {
		name    string
		trigger any
		detail  any
		want    bool
	}{
		{"trigger yes, empty detail", "yes", "", false},
		{"trigger yes, filled detail", "yes", "mild nausea", true},
		{"trigger no, empty detail", "no", "", true},
		{"trigger no, filled detail", "no", "stale text", true},
		{"trigger unanswered, empty detail", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := map[string]any{"sideEffectsDetail": tt.detail}
			if tt.trigger != nil {
				answers["sideEffects"] = tt.trigger
			}
			ok, _ := EvaluateRule(rule, answers)
			if ok != tt.want {
				t.Errorf("trigger=%v detail=%v: got valid=%v, want %v", tt.trigger, tt.detail, ok, tt.want)
			}
		})
	}
}

func TestEvaluateRule_Email(t *testing.T) {
	rule := models.FieldRule{Kind: models.RuleEmail, Field: "email"}
	tests := []struct {
		value string
		want  bool
	}{
		{"ada@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"  ada@example.com  ", true},
		{"", false},
		{"not-an-email", false},
		{"missing@tld", false},
		{"@example.com", false},
		{"spaces in@example.com", false},
	}
	for _, tt := range tests {
		ok, _ := EvaluateRule(rule, map[string]any{"email": tt.value})
		if ok != tt.want {
			t.Errorf("email %q: got valid=%v, want %v", tt.value, ok, tt.want)
		}
	}
}

func TestEvaluateRule_Enum(t *testing.T) {
	rule := models.FieldRule{Kind: models.RuleEnum, Field: "sex", Options: []string{"male", "female"}}

	if ok, _ := EvaluateRule(rule, map[string]any{"sex": "female"}); !ok {
		t.Error("declared option must be valid")
	}
	if ok, _ := EvaluateRule(rule, map[string]any{"sex": "other"}); ok {
		t.Error("undeclared option must be invalid")
	}
	if ok, _ := EvaluateRule(rule, map[string]any{}); ok {
		t.Error("missing enum value must be invalid")
	}
}

func TestEvaluateRule_CustomMessage(t *testing.T) {
	rule := models.FieldRule{Kind: models.RuleAlways, Field: "name", Message: "Please tell us your name"}
	_, msg := EvaluateRule(rule, map[string]any{})
	if msg != "Please tell us your name" {
		t.Errorf("expected custom message, got %q", msg)
	}
}

func TestEvaluateSegment_CollectsAllFieldErrors(t *testing.T) {
	seg := testForm().Segments[0]
	errors := evaluateSegment(seg, map[string]any{"firstName": "Ada"})
	if len(errors) != 2 {
		t.Fatalf("expected errors on lastName and email, got %v", errors)
	}
	if _, ok := errors["lastName"]; !ok {
		t.Error("expected error on lastName")
	}
	if _, ok := errors["email"]; !ok {
		t.Error("expected error on email")
	}
}

func TestEvaluateSegment_ValidAnswersProduceNoErrors(t *testing.T) {
	seg := testForm().Segments[1]
	answers := map[string]any{"sex": "male", "sideEffects": "yes", "sideEffectsDetail": "headaches"}
	if errors := evaluateSegment(seg, answers); len(errors) != 0 {
		t.Errorf("expected no errors, got %v", errors)
	}
}

func TestAnswerString_Conversions(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, ""},
		{"yes", "yes"},
		{true, "true"},
		{false, "false"},
		{[]string{"a", "b"}, "a,b"},
		{[]any{"a", "b"}, "a,b"},
		{42, ""},
	}
	for _, tt := range tests {
		if got := answerString(tt.value); got != tt.want {
			t.Errorf("answerString(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
