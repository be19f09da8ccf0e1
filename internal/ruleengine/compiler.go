package ruleengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without a zoneinfo database
)

const (
	// MaxKeywords limits the keyword lists of a single content rule.
	// Every keyword costs one scan of the content per evaluation.
	MaxKeywords = 1_000
)

// ErrMalformedRule wraps every compilation failure.
var ErrMalformedRule = errors.New("malformed rule")

// conditionsDoc mirrors the stored conditions document.
type conditionsDoc struct {
	MaxContentLength   *int                            `json:"maxContentLength"`
	BlockedKeywords    []string                        `json:"blockedKeywords"`
	RequiredKeywords   []string                        `json:"requiredKeywords"`
	VariableConditions map[string]variableConditionDoc `json:"variableConditions"`

	RequireAll     *bool `json:"requireAll"`
	TimeBased      *bool `json:"timeBased"`
	FrequencyBased *bool `json:"frequencyBased"`
	ContentBased   *bool `json:"contentBased"`
}

type variableConditionDoc struct {
	Equals    *scalar `json:"equals"`
	NotEquals *scalar `json:"notEquals"`
	Contains  *scalar `json:"contains"`
	MinLength *int    `json:"minLength"`
	MaxLength *int    `json:"maxLength"`
}

type actionConfigDoc struct {
	Recipient  *scalar `json:"recipient"`
	Subject    *scalar `json:"subject"`
	SenderName *scalar `json:"senderName"`
	NetworkID  *scalar `json:"networkId"`
}

// scalar is a JSON string, number or boolean read as its text form.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch x := v.(type) {
	case string:
		*s = scalar(x)
	case json.Number:
		*s = scalar(x.String())
	case bool:
		*s = scalar(strconv.FormatBool(x))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("expected a string, number or boolean, got %T", v)
	}
	return nil
}

func (s *scalar) ptr() *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (s *scalar) value() string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// CompileRules compiles every rule in place. A rule that fails keeps the error
// in CompileErr (the engine skips it) and the joined failures are returned.
// This must be called after loading rules from storage and before evaluation.
func CompileRules(rules []Rule) error {
	var errs []error
	for i := range rules {
		if err := CompileRule(&rules[i]); err != nil {
			errs = append(errs, fmt.Errorf("failed to compile rule %s: %w", rules[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

// CompileRule parses the rule's stored documents into Condition and Action.
func CompileRule(rule *Rule) error {
	rule.Condition = nil
	rule.Action = ActionConfig{}
	rule.CompileErr = nil

	err := compileRule(rule)
	if err != nil {
		rule.CompileErr = fmt.Errorf("%w: %w", ErrMalformedRule, err)
	}
	return rule.CompileErr
}

func compileRule(rule *Rule) error {
	action, err := compileActionConfig(rule.ActionConfig)
	if err != nil {
		return err
	}
	rule.Action = action

	switch rule.Type {
	case RuleTypeTimeBased:
		cond, err := compileTimeCondition(rule)
		if err != nil {
			return err
		}
		rule.Condition = cond
	case RuleTypeFrequencyBased:
		cond, err := compileFrequencyCondition(rule)
		if err != nil {
			return err
		}
		rule.Condition = cond
	case RuleTypeContentBased:
		doc, err := parseConditions(rule.Conditions)
		if err != nil {
			return err
		}
		cond, err := compileContentCondition(doc)
		if err != nil {
			return err
		}
		rule.Condition = cond
	case RuleTypeComposite:
		cond, err := compileCompositeCondition(rule)
		if err != nil {
			return err
		}
		rule.Condition = cond
	default:
		// Unknown rule types are left uncompiled; the engine skips them.
	}

	return nil
}

// parseConditions decodes the conditions document. Absent or null yields a zero doc.
func parseConditions(raw json.RawMessage) (conditionsDoc, error) {
	var doc conditionsDoc
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("invalid conditions document: %w", err)
	}
	return doc, nil
}

func compileActionConfig(raw json.RawMessage) (ActionConfig, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ActionConfig{}, nil
	}

	var doc actionConfigDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ActionConfig{}, fmt.Errorf("invalid action config: %w", err)
	}

	return ActionConfig{
		Recipient:  doc.Recipient.value(),
		Subject:    doc.Subject.value(),
		SenderName: doc.SenderName.value(),
		NetworkID:  doc.NetworkID.value(),
	}, nil
}

func compileTimeCondition(rule *Rule) (TimeCondition, error) {
	tz := rule.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return TimeCondition{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	cond := TimeCondition{
		Start:    rule.StartTime,
		End:      rule.EndTime,
		Location: loc,
	}

	if len(rule.DaysOfWeek) > 0 {
		cond.Days = make(map[time.Weekday]struct{}, len(rule.DaysOfWeek))
		for _, d := range rule.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				return TimeCondition{}, fmt.Errorf("invalid day of week %d", d)
			}
			cond.Days[d] = struct{}{}
		}
	}

	return cond, nil
}

func compileFrequencyCondition(rule *Rule) (FrequencyCondition, error) {
	cond := FrequencyCondition{RecipientID: rule.RecipientID}

	if rule.MaxNotificationsPerDay != nil {
		if *rule.MaxNotificationsPerDay < 0 {
			return FrequencyCondition{}, fmt.Errorf("max notifications per day cannot be negative, got %d", *rule.MaxNotificationsPerDay)
		}
		limit := *rule.MaxNotificationsPerDay
		cond.MaxPerDay = &limit
	}

	if rule.MinIntervalMinutes != nil {
		if *rule.MinIntervalMinutes < 0 {
			return FrequencyCondition{}, fmt.Errorf("min interval minutes cannot be negative, got %d", *rule.MinIntervalMinutes)
		}
		interval := time.Duration(*rule.MinIntervalMinutes) * time.Minute
		cond.MinInterval = &interval
	}

	return cond, nil
}

func compileContentCondition(doc conditionsDoc) (ContentCondition, error) {
	var cond ContentCondition

	if doc.MaxContentLength != nil {
		if *doc.MaxContentLength < 0 {
			return ContentCondition{}, fmt.Errorf("maxContentLength cannot be negative, got %d", *doc.MaxContentLength)
		}
		cond.MaxContentLength = doc.MaxContentLength
	}

	if len(doc.BlockedKeywords) > MaxKeywords || len(doc.RequiredKeywords) > MaxKeywords {
		return ContentCondition{}, fmt.Errorf("keyword list exceeds maximum size %d", MaxKeywords)
	}
	cond.BlockedKeywords = lowerAll(doc.BlockedKeywords)
	cond.RequiredKeywords = lowerAll(doc.RequiredKeywords)

	if len(doc.VariableConditions) > 0 {
		cond.Variables = make([]VariableCondition, 0, len(doc.VariableConditions))
		for name, vc := range doc.VariableConditions {
			cond.Variables = append(cond.Variables, VariableCondition{
				Name:      name,
				Equals:    vc.Equals.ptr(),
				NotEquals: vc.NotEquals.ptr(),
				Contains:  vc.Contains.ptr(),
				MinLength: vc.MinLength,
				MaxLength: vc.MaxLength,
			})
		}
		slices.SortFunc(cond.Variables, func(a, b VariableCondition) int {
			return strings.Compare(a.Name, b.Name)
		})
	}

	return cond, nil
}

func compileCompositeCondition(rule *Rule) (CompositeCondition, error) {
	doc, err := parseConditions(rule.Conditions)
	if err != nil {
		return CompositeCondition{}, err
	}

	cond := CompositeCondition{RequireAll: true}
	if doc.RequireAll != nil {
		cond.RequireAll = *doc.RequireAll
	}

	if isSet(doc.TimeBased) {
		tc, err := compileTimeCondition(rule)
		if err != nil {
			return CompositeCondition{}, err
		}
		cond.Time = &tc
	}

	if isSet(doc.FrequencyBased) {
		fc, err := compileFrequencyCondition(rule)
		if err != nil {
			return CompositeCondition{}, err
		}
		cond.Frequency = &fc
	}

	if isSet(doc.ContentBased) {
		cc, err := compileContentCondition(doc)
		if err != nil {
			return CompositeCondition{}, err
		}
		cond.Content = &cc
	}

	return cond, nil
}

func isSet(flag *bool) bool {
	return flag != nil && *flag
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
