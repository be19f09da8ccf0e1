package ruleengine

import "context"

// Evaluator is the interface that all rule strategies must implement.
// It encapsulates the logic to determine if a rule's condition currently holds.
type Evaluator interface {
	// Eval checks if the input satisfies the rule's condition.
	//
	// Parameters:
	// - ruleData: The compiled condition (e.g., TimeCondition).
	//   The compiler is responsible for parsing the stored documents into this structure.
	// - input: The per-call context (recipient, content, variables, clock, stats).
	//
	// Returns:
	// - bool: True if the rule matches.
	// - error: Non-nil if the ruleData type is invalid or a dependency failed.
	Eval(ctx context.Context, ruleData any, input EvaluationInput) (bool, error)
}
