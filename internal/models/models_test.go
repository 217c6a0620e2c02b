package models

import (
	"errors"
	"strings"
	"testing"
)

func TestUpdateAnswerRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     UpdateAnswerRequest
		wantErr error
	}{
		{"valid string answer", UpdateAnswerRequest{Field: "firstName", Value: "Ada"}, nil},
		{"valid bool answer", UpdateAnswerRequest{Field: "over18", Value: true}, nil},
		{"empty field", UpdateAnswerRequest{Field: "", Value: "x"}, ErrEmptyFieldName},
		{"field too long", UpdateAnswerRequest{Field: strings.Repeat("f", MaxFieldNameLength+1), Value: "x"}, ErrFieldNameTooLong},
		{"answer too long", UpdateAnswerRequest{Field: "notes", Value: strings.Repeat("a", MaxAnswerValueLength+1)}, ErrAnswerTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Success(map[string]int{"count": 3})
	if resp.Status != string(APIStatusOK) {
		t.Errorf("Success status = %s, want %s", resp.Status, APIStatusOK)
	}
	if resp.Result == nil {
		t.Error("Success result should carry data")
	}

	resp = Error("boom")
	if resp.Status != string(APIStatusError) || resp.Message != "boom" {
		t.Errorf("Error response = %+v", resp)
	}

	resp = Invalid(map[string]string{"email": "Please enter a valid email"})
	if resp.Status != string(APIStatusInvalid) {
		t.Errorf("Invalid status = %s, want %s", resp.Status, APIStatusInvalid)
	}
	if resp.FieldErrors["email"] == "" {
		t.Error("Invalid response should carry field errors")
	}

	resp = Ineligible(nil)
	if resp.Status != string(APIStatusIneligible) {
		t.Errorf("Ineligible status = %s, want %s", resp.Status, APIStatusIneligible)
	}

	custom := NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage("done").
		WithResult("r").
		Build()
	if custom.Status != string(APIStatusOK) || custom.Message != "done" || custom.Result != "r" {
		t.Errorf("builder response = %+v", custom)
	}
}

func TestSessionTerminal(t *testing.T) {
	sess := FormSession{}
	if sess.Terminal() {
		t.Error("fresh session should not be terminal")
	}
	sess.TerminalState = TerminalIneligible
	if !sess.Terminal() {
		t.Error("ineligible session should be terminal")
	}
	sess.TerminalState = TerminalSubmitted
	if !sess.Terminal() {
		t.Error("submitted session should be terminal")
	}
}

func TestSessionIdentity(t *testing.T) {
	sess := FormSession{Answers: map[string]any{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"phone":      "+15551234567",
		"email":      "ada@example.com",
		"medication": "semaglutide",
		"over18":     true,
	}}

	snap := sess.Identity()
	want := IdentitySnapshot{FirstName: "Ada", LastName: "Lovelace", Phone: "+15551234567", Email: "ada@example.com"}
	if !snap.Equal(want) {
		t.Errorf("Identity() = %+v, want %+v", snap, want)
	}
	if snap.IsEmpty() {
		t.Error("populated snapshot reported empty")
	}

	empty := FormSession{Answers: map[string]any{"goal": "longevity"}}
	if !empty.Identity().IsEmpty() {
		t.Error("snapshot with no identity answers should be empty")
	}
}

func TestFormDefinitionValidate(t *testing.T) {
	valid := FormDefinition{
		ID:            "wl",
		DisplayName:   "Weight Loss",
		SessionPrefix: "wl",
		AuthIDLetter:  "W",
		Segments: []Segment{
			{
				ID:          "contact",
				DisplayName: "Contact",
				Rules: []FieldRule{
					{Kind: RuleAlways, Field: "firstName"},
					{Kind: RuleEmail, Field: "email"},
					{Kind: RuleEnum, Field: "sex", Options: []string{"female", "male"}},
					{Kind: RuleConditional, Field: "detail", TriggerField: "flag", TriggerValue: "yes"},
				},
				EligibilityGate: &EligibilityGate{Field: "over18", AllowedValues: []string{"yes"}},
			},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid form rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*FormDefinition)
		wantErr error
	}{
		{"missing id", func(f *FormDefinition) { f.ID = "" }, ErrFormMissingID},
		{"no segments", func(f *FormDefinition) { f.Segments = nil }, ErrFormNoSegments},
		{"bad auth letter", func(f *FormDefinition) { f.AuthIDLetter = "w" }, ErrFormBadAuthLetter},
		{"multi-char auth letter", func(f *FormDefinition) { f.AuthIDLetter = "WL" }, ErrFormBadAuthLetter},
		{"segment missing id", func(f *FormDefinition) { f.Segments[0].ID = "" }, ErrSegmentMissingID},
		{"duplicate segment id", func(f *FormDefinition) {
			f.Segments = append(f.Segments, Segment{ID: "contact"})
		}, ErrDuplicateSegmentID},
		{"rule missing field", func(f *FormDefinition) {
			f.Segments[0].Rules[0].Field = ""
		}, ErrRuleMissingField},
		{"unknown rule kind", func(f *FormDefinition) {
			f.Segments[0].Rules[0].Kind = "fancy"
		}, ErrRuleUnknownKind},
		{"conditional without trigger", func(f *FormDefinition) {
			f.Segments[0].Rules[3].TriggerValue = ""
		}, ErrRuleMissingTrigger},
		{"enum without options", func(f *FormDefinition) {
			f.Segments[0].Rules[2].Options = nil
		}, ErrRuleMissingOptions},
		{"gate missing field", func(f *FormDefinition) {
			f.Segments[0].EligibilityGate.Field = ""
		}, ErrGateMissingField},
		{"gate missing allowed values", func(f *FormDefinition) {
			f.Segments[0].EligibilityGate.AllowedValues = nil
		}, ErrGateMissingAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			form.Segments = make([]Segment, len(valid.Segments))
			copy(form.Segments, valid.Segments)
			form.Segments[0].Rules = make([]FieldRule, len(valid.Segments[0].Rules))
			copy(form.Segments[0].Rules, valid.Segments[0].Rules)
			gate := *valid.Segments[0].EligibilityGate
			form.Segments[0].EligibilityGate = &gate

			tt.mutate(&form)
			if err := form.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEligibilityGateAllows(t *testing.T) {
	gate := EligibilityGate{Field: "over18", AllowedValues: []string{"yes", "maybe"}}
	if !gate.Allows("yes") {
		t.Error("expected yes to pass the gate")
	}
	if gate.Allows("no") {
		t.Error("expected no to fail the gate")
	}
	if gate.Allows("") {
		t.Error("expected empty answer to fail the gate")
	}
}

func TestSegmentByID(t *testing.T) {
	form := FormDefinition{
		ID:           "wl",
		AuthIDLetter: "W",
		Segments:     []Segment{{ID: "contact"}, {ID: "history"}},
	}
	if seg := form.SegmentByID("history"); seg == nil || seg.ID != "history" {
		t.Errorf("SegmentByID(history) = %+v", seg)
	}
	if seg := form.SegmentByID("missing"); seg != nil {
		t.Errorf("SegmentByID(missing) = %+v, want nil", seg)
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{SessionInProgress, "in_progress"},
		{SessionIneligible, "ineligible"},
		{SessionCompleted, "completed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SessionState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
