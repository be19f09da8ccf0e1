package ruleengine

import "time"

// Condition is the compiled, typed form of a rule's condition. It is a closed
// set: only the types in this file implement it.
type Condition interface {
	conditionType() RuleType
}

// TimeCondition restricts a rule to certain days and hours in a zone.
type TimeCondition struct {
	// Days is empty for "any day".
	Days     map[time.Weekday]struct{}
	Start    *TimeOfDay
	End      *TimeOfDay
	Location *time.Location
}

// FrequencyCondition reflects how often the recipient has been notified.
type FrequencyCondition struct {
	RecipientID string
	MaxPerDay   *int
	MinInterval *time.Duration
}

// ContentCondition checks the literal content and variables of a notification.
// A zero value matches everything.
type ContentCondition struct {
	MaxContentLength *int
	// Keywords are stored lower-cased.
	BlockedKeywords  []string
	RequiredKeywords []string
	// Variables are sorted by name.
	Variables []VariableCondition
}

// VariableCondition constrains the string form of one request variable.
type VariableCondition struct {
	Name      string
	Equals    *string
	NotEquals *string
	Contains  *string
	MinLength *int
	MaxLength *int
}

// CompositeCondition combines the other families of the same rule.
// A nil family is not evaluated and counts as satisfied.
type CompositeCondition struct {
	RequireAll bool
	Time       *TimeCondition
	Frequency  *FrequencyCondition
	Content    *ContentCondition
}

func (TimeCondition) conditionType() RuleType      { return RuleTypeTimeBased }
func (FrequencyCondition) conditionType() RuleType { return RuleTypeFrequencyBased }
func (ContentCondition) conditionType() RuleType   { return RuleTypeContentBased }
func (CompositeCondition) conditionType() RuleType { return RuleTypeComposite }
