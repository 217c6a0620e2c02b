// Package models defines questionnaire form definitions shared across modules.
package models

import (
	"errors"
	"fmt"
)

// RuleKind identifies how a field validation rule is evaluated.
type RuleKind string

const (
	// RuleAlways requires a non-empty value unconditionally.
	RuleAlways RuleKind = "always"
	// RuleConditional requires a value only when a sibling field holds a trigger value.
	RuleConditional RuleKind = "conditional"
	// RuleEmail requires a syntactically valid email address.
	RuleEmail RuleKind = "email"
	// RuleEnum requires the value to be one of a declared option set.
	RuleEnum RuleKind = "enum"
)

// IsValidRuleKind checks if the given rule kind is supported.
func IsValidRuleKind(k RuleKind) bool {
	switch k {
	case RuleAlways, RuleConditional, RuleEmail, RuleEnum:
		return true
	default:
		return false
	}
}

// FieldRule is a tagged validation rule for one field within a segment.
// Conditional rules name a trigger field and value; enum rules carry the
// option set. A single dispatcher in the wizard package evaluates all kinds.
type FieldRule struct {
	Kind         RuleKind `json:"kind" yaml:"kind"`
	Field        string   `json:"field" yaml:"field"`
	TriggerField string   `json:"trigger_field,omitempty" yaml:"trigger_field,omitempty"`
	TriggerValue string   `json:"trigger_value,omitempty" yaml:"trigger_value,omitempty"`
	Options      []string `json:"options,omitempty" yaml:"options,omitempty"`
	Message      string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// EligibilityGate is a predicate over answers evaluated when leaving a
// segment. If the gate field's answer is not in AllowedValues the session
// ends in the ineligible terminal state instead of advancing.
type EligibilityGate struct {
	Field         string   `json:"field" yaml:"field"`
	AllowedValues []string `json:"allowed_values" yaml:"allowed_values"`
}

// Allows reports whether the given answer value passes the gate.
func (g *EligibilityGate) Allows(value string) bool {
	for _, v := range g.AllowedValues {
		if v == value {
			return true
		}
	}
	return false
}

// Segment is the static, ordered definition of one wizard step.
type Segment struct {
	ID              string           `json:"id" yaml:"id"`
	DisplayName     string           `json:"display_name" yaml:"display_name"`
	Rules           []FieldRule      `json:"rules,omitempty" yaml:"rules,omitempty"`
	EligibilityGate *EligibilityGate `json:"eligibility_gate,omitempty" yaml:"eligibility_gate,omitempty"`
}

// FormDefinition configures one questionnaire variant: an ordered segment
// list plus the identifiers used for session keys and authorization ids.
type FormDefinition struct {
	ID            string    `json:"id" yaml:"id"`
	DisplayName   string    `json:"display_name" yaml:"display_name"`
	SessionPrefix string    `json:"session_prefix" yaml:"session_prefix"`
	AuthIDLetter  string    `json:"auth_id_letter" yaml:"auth_id_letter"`
	Segments      []Segment `json:"segments" yaml:"segments"`
}

// Validation errors for form definitions.
var (
	ErrFormMissingID       = errors.New("form id is required")
	ErrFormNoSegments      = errors.New("form must define at least one segment")
	ErrFormBadAuthLetter   = errors.New("auth id letter must be a single uppercase letter")
	ErrSegmentMissingID    = errors.New("segment id is required")
	ErrDuplicateSegmentID  = errors.New("duplicate segment id")
	ErrRuleMissingField    = errors.New("rule field is required")
	ErrRuleUnknownKind     = errors.New("unknown rule kind")
	ErrRuleMissingTrigger  = errors.New("conditional rule requires trigger field and value")
	ErrRuleMissingOptions  = errors.New("enum rule requires options")
	ErrGateMissingField    = errors.New("eligibility gate requires a field")
	ErrGateMissingAllowed  = errors.New("eligibility gate requires allowed values")
)

// Validate performs structural validation on a form definition.
func (f *FormDefinition) Validate() error {
	if f.ID == "" {
		return ErrFormMissingID
	}
	if len(f.Segments) == 0 {
		return fmt.Errorf("form %s: %w", f.ID, ErrFormNoSegments)
	}
	if len(f.AuthIDLetter) != 1 || f.AuthIDLetter[0] < 'A' || f.AuthIDLetter[0] > 'Z' {
		return fmt.Errorf("form %s: %w", f.ID, ErrFormBadAuthLetter)
	}
	seen := make(map[string]bool, len(f.Segments))
	for _, seg := range f.Segments {
		if seg.ID == "" {
			return fmt.Errorf("form %s: %w", f.ID, ErrSegmentMissingID)
		}
		if seen[seg.ID] {
			return fmt.Errorf("form %s segment %s: %w", f.ID, seg.ID, ErrDuplicateSegmentID)
		}
		seen[seg.ID] = true
		for _, rule := range seg.Rules {
			if err := validateRule(rule); err != nil {
				return fmt.Errorf("form %s segment %s: %w", f.ID, seg.ID, err)
			}
		}
		if gate := seg.EligibilityGate; gate != nil {
			if gate.Field == "" {
				return fmt.Errorf("form %s segment %s: %w", f.ID, seg.ID, ErrGateMissingField)
			}
			if len(gate.AllowedValues) == 0 {
				return fmt.Errorf("form %s segment %s: %w", f.ID, seg.ID, ErrGateMissingAllowed)
			}
		}
	}
	return nil
}

func validateRule(rule FieldRule) error {
	if rule.Field == "" {
		return ErrRuleMissingField
	}
	if !IsValidRuleKind(rule.Kind) {
		return fmt.Errorf("%w: %q", ErrRuleUnknownKind, rule.Kind)
	}
	if rule.Kind == RuleConditional && (rule.TriggerField == "" || rule.TriggerValue == "") {
		return fmt.Errorf("field %s: %w", rule.Field, ErrRuleMissingTrigger)
	}
	if rule.Kind == RuleEnum && len(rule.Options) == 0 {
		return fmt.Errorf("field %s: %w", rule.Field, ErrRuleMissingOptions)
	}
	return nil
}

// SegmentByID returns the segment with the given id, or nil if absent.
func (f *FormDefinition) SegmentByID(id string) *Segment {
	for i := range f.Segments {
		if f.Segments[i].ID == id {
			return &f.Segments[i]
		}
	}
	return nil
}
