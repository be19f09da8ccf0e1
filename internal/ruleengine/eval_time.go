package ruleengine

import (
	"context"
	"fmt"
)

// TimeEvaluator implements the Evaluator interface for TIME_BASED rules.
// It checks the current day and time of day in the rule's zone.
type TimeEvaluator struct{}

// Eval checks whether input.Now falls inside the rule's window.
//
// Parameters:
//   - ruleData: Expected to be of type TimeCondition.
//   - input: The evaluation input; only Now is read.
//
// A condition with no day or time constraints always matches. Bounds are
// inclusive and a window does not wrap past midnight.
func (e *TimeEvaluator) Eval(_ context.Context, ruleData any, input EvaluationInput) (bool, error) {
	cond, ok := ruleData.(TimeCondition)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected TimeCondition, got %T", ruleData)
	}

	return cond.holds(input), nil
}

func (c TimeCondition) holds(input EvaluationInput) bool {
	now := input.Now
	if c.Location != nil {
		now = now.In(c.Location)
	}

	if len(c.Days) > 0 {
		if _, ok := c.Days[now.Weekday()]; !ok {
			return false
		}
	}

	current := sinceMidnight(now)

	if c.Start != nil && current < c.Start.Offset() {
		return false
	}
	if c.End != nil && current > c.End.Offset() {
		return false
	}

	return true
}
