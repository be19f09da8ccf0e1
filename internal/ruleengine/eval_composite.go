package ruleengine

import (
	"context"
	"fmt"
)

// CompositeEvaluator implements the Evaluator interface for COMPOSITE rules.
// Each enabled family runs against the rule's own fields; a disabled family
// counts as satisfied, so a composite with no families always matches.
type CompositeEvaluator struct{}

// Eval combines the enabled families with AND (RequireAll) or OR.
func (e *CompositeEvaluator) Eval(ctx context.Context, ruleData any, input EvaluationInput) (bool, error) {
	cond, ok := ruleData.(CompositeCondition)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected CompositeCondition, got %T", ruleData)
	}

	timeOK, frequencyOK, contentOK := true, true, true

	if cond.Time != nil {
		timeOK = cond.Time.holds(input)
	}

	if cond.Frequency != nil {
		held, err := cond.Frequency.holds(ctx, input)
		if err != nil {
			return false, err
		}
		frequencyOK = held
	}

	if cond.Content != nil {
		contentOK = cond.Content.holds(input)
	}

	if cond.RequireAll {
		return timeOK && frequencyOK && contentOK, nil
	}
	return timeOK || frequencyOK || contentOK, nil
}
