package ruleengine

import (
	"context"
	"fmt"
)

// FrequencyEvaluator implements the Evaluator interface for FREQUENCY_BASED rules.
// It reads (never writes) the recipient's delivery stats.
type FrequencyEvaluator struct{}

// Eval reports whether a configured frequency threshold has been reached:
// the daily count is at or above the limit, or the last send is more recent
// than the minimum interval. With neither threshold set the rule always matches.
//
// Paired with a BLOCK action this reads as "too many sent, block further sends".
func (e *FrequencyEvaluator) Eval(ctx context.Context, ruleData any, input EvaluationInput) (bool, error) {
	cond, ok := ruleData.(FrequencyCondition)
	if !ok {
		return false, fmt.Errorf("invalid rule data type: expected FrequencyCondition, got %T", ruleData)
	}

	return cond.holds(ctx, input)
}

func (c FrequencyCondition) holds(ctx context.Context, input EvaluationInput) (bool, error) {
	if c.MaxPerDay == nil && c.MinInterval == nil {
		return true, nil
	}

	if input.Stats == nil {
		return false, fmt.Errorf("frequency rule requires a stats reader")
	}

	recipientID := c.RecipientID
	if recipientID == "" {
		recipientID = input.RecipientID
	}

	s, err := input.Stats.GetOrCreate(ctx, recipientID)
	if err != nil {
		return false, fmt.Errorf("failed to read stats: %w", err)
	}

	if c.MaxPerDay != nil && s.DailyCount >= *c.MaxPerDay {
		return true, nil
	}

	if c.MinInterval != nil && s.LastNotificationTime != nil {
		if input.Now.Before(s.LastNotificationTime.Add(*c.MinInterval)) {
			return true, nil
		}
	}

	return false, nil
}
