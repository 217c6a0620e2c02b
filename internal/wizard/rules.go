// Package wizard provides the validation rule dispatcher for questionnaire segments.
package wizard

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/karuna-health/intake/internal/models"
)

// Default validation messages used when a rule declares none.
const (
	DefaultRequiredMessage = "This field is required"
	DefaultEmailMessage    = "Enter a valid email address"
	DefaultEnumMessage     = "Select one of the available options"
)

// emailPattern matches standard email syntax. Intentionally permissive about
// local parts; the goal is catching typos, not RFC 5322 conformance.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// EvaluateRule checks a single field rule against the full answer map and
// returns whether it passes plus a message for inline display when it fails.
// The answer map is needed in full because conditional rules depend on
// sibling field values.
func EvaluateRule(rule models.FieldRule, answers map[string]any) (bool, string) {
	value := answers[rule.Field]

	switch rule.Kind {
	case models.RuleAlways:
		if isEmptyValue(value) {
			return false, messageOr(rule, DefaultRequiredMessage)
		}
		return true, ""

	case models.RuleConditional:
		// Required if and only if the trigger field currently holds the
		// trigger value; any other trigger value makes the field valid
		// regardless of content.
		if answerString(answers[rule.TriggerField]) != rule.TriggerValue {
			return true, ""
		}
		if isEmptyValue(value) {
			return false, messageOr(rule, DefaultRequiredMessage)
		}
		return true, ""

	case models.RuleEmail:
		s := strings.TrimSpace(answerString(value))
		if !emailPattern.MatchString(s) {
			return false, messageOr(rule, DefaultEmailMessage)
		}
		return true, ""

	case models.RuleEnum:
		s := answerString(value)
		for _, opt := range rule.Options {
			if s == opt {
				return true, ""
			}
		}
		return false, messageOr(rule, DefaultEnumMessage)

	default:
		// Unknown kinds are rejected at form load; treat defensively as required.
		if isEmptyValue(value) {
			return false, messageOr(rule, DefaultRequiredMessage)
		}
		return true, ""
	}
}

// evaluateSegment runs every rule in a segment and collects field errors.
func evaluateSegment(seg models.Segment, answers map[string]any) map[string]string {
	var fieldErrors map[string]string
	for _, rule := range seg.Rules {
		if _, seen := fieldErrors[rule.Field]; seen {
			continue
		}
		if ok, msg := EvaluateRule(rule, answers); !ok {
			if fieldErrors == nil {
				fieldErrors = make(map[string]string)
			}
			fieldErrors[rule.Field] = msg
		}
	}
	return fieldErrors
}

func messageOr(rule models.FieldRule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return fallback
}

// answerString renders an answer value for comparisons. Slices render as
// their first element joined form is not needed; triggers and enum options
// are always scalar in practice.
func answerString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case []string:
		if len(val) == 0 {
			return ""
		}
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// isEmptyValue reports whether an answer counts as missing for required
// checks: nil, whitespace-only strings, and empty slices are empty; booleans
// never are.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		return false
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}
