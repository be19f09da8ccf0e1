package ruleengine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ContentEvaluator implements the Evaluator interface for CONTENT_BASED rules.
// It only performs literal checks: length, case-insensitive substrings and
// equality on variables.
type ContentEvaluator struct{}

// Eval checks the content and variables against the compiled condition.
//
// Any blocked keyword found makes the rule NOT match. Lengths are counted in
// characters (runes), not bytes.
func (e *ContentEvaluator) Eval(_ context.Context, ruleData any, input EvaluationInput) (bool, error) {
	cond, ok := ruleData.(ContentCondition)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected ContentCondition, got %T", ruleData)
	}

	return cond.holds(input), nil
}

func (c ContentCondition) holds(input EvaluationInput) bool {
	if c.MaxContentLength != nil && utf8.RuneCountInString(input.Content) > *c.MaxContentLength {
		return false
	}

	var lowered string
	if len(c.BlockedKeywords) > 0 || len(c.RequiredKeywords) > 0 {
		lowered = strings.ToLower(input.Content)
	}

	for _, kw := range c.BlockedKeywords {
		if strings.Contains(lowered, kw) {
			return false
		}
	}

	if len(c.RequiredKeywords) > 0 {
		found := false
		for _, kw := range c.RequiredKeywords {
			if strings.Contains(lowered, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, vc := range c.Variables {
		if !vc.holds(input.Variables) {
			return false
		}
	}

	return true
}

// holds applies every constraint to the variable's string form.
// A missing or nil variable fails.
func (vc VariableCondition) holds(vars map[string]any) bool {
	raw, ok := vars[vc.Name]
	if !ok || raw == nil {
		return false
	}

	value := VariableString(raw)

	if vc.Equals != nil && value != *vc.Equals {
		return false
	}
	if vc.NotEquals != nil && value == *vc.NotEquals {
		return false
	}
	if vc.Contains != nil && !strings.Contains(value, *vc.Contains) {
		return false
	}

	length := utf8.RuneCountInString(value)
	if vc.MinLength != nil && length < *vc.MinLength {
		return false
	}
	if vc.MaxLength != nil && length > *vc.MaxLength {
		return false
	}

	return true
}
