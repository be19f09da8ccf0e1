// Package ruleengine decides, per recipient, whether an outbound notification
// may proceed. It implements a Strategy pattern where each rule type has its
// own evaluator, and an Engine walks a recipient's rules in priority order.
package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rafaeljc/herald/internal/stats"
)

// RuleType selects the evaluator applied to a rule.
type RuleType string

const (
	RuleTypeTimeBased      RuleType = "TIME_BASED"
	RuleTypeFrequencyBased RuleType = "FREQUENCY_BASED"
	RuleTypeContentBased   RuleType = "CONTENT_BASED"
	RuleTypeComposite      RuleType = "COMPOSITE"
)

// NotificationType is the channel a rule pertains to. The engine ignores it;
// the dispatcher routes on it.
type NotificationType string

const (
	NotificationEmail           NotificationType = "EMAIL"
	NotificationWhatsApp        NotificationType = "WHATSAPP"
	NotificationSMS             NotificationType = "SMS"
	NotificationPush            NotificationType = "PUSH"
	NotificationMobileBroadcast NotificationType = "MOBILE_BROADCAST"
)

// Well-known action types. Only ActionBlock has meaning inside the engine.
const (
	ActionBlock            = "BLOCK"
	ActionAllow            = "ALLOW"
	ActionSendNotification = "SEND_NOTIFICATION"
)

// DefaultTimezone applies when a rule has no timezone.
const DefaultTimezone = "UTC"

// Rule is a stored per-recipient policy. It is read-only to the engine.
type Rule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	RecipientID      string           `json:"recipient_id"`
	Type             RuleType         `json:"rule_type"`
	NotificationType NotificationType `json:"notification_type"`
	Active           bool             `json:"active"`
	Priority         int              `json:"priority"`

	// Temporal fields.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	StartTime  *TimeOfDay     `json:"start_time,omitempty"`
	EndTime    *TimeOfDay     `json:"end_time,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`

	// Frequency fields.
	MaxNotificationsPerDay *int `json:"max_notifications_per_day,omitempty"`
	MinIntervalMinutes     *int `json:"min_interval_minutes,omitempty"`

	// Conditions is the raw condition document (content and composite rules).
	Conditions json.RawMessage `json:"conditions,omitempty"`

	ActionType   string          `json:"action_type"`
	ActionConfig json.RawMessage `json:"action_config,omitempty"`
	TemplateName string          `json:"template_name,omitempty"`

	// Compiled form, populated by CompileRule.
	Condition  Condition    `json:"-"`
	Action     ActionConfig `json:"-"`
	CompileErr error        `json:"-"`
}

// Summary returns the public view of the rule reported in results.
func (r *Rule) Summary() RuleSummary {
	return RuleSummary{
		ID:               r.ID,
		Name:             r.Name,
		Type:             r.Type,
		NotificationType: r.NotificationType,
		ActionType:       r.ActionType,
		Priority:         r.Priority,
	}
}

// IsBlocking reports whether a match of this rule blocks the notification.
// The comparison is case-sensitive.
func (r *Rule) IsBlocking() bool {
	return r.ActionType == ActionBlock
}

// ActionConfig holds per-rule dispatch overrides. Empty fields fall back to
// request variables and then to dispatcher defaults.
type ActionConfig struct {
	Recipient  string `json:"recipient,omitempty"`
	Subject    string `json:"subject,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	NetworkID  string `json:"networkId,omitempty"`
}

// RuleSummary identifies a rule that matched during an evaluation.
type RuleSummary struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Type             RuleType         `json:"rule_type"`
	NotificationType NotificationType `json:"notification_type"`
	ActionType       string           `json:"action_type"`
	Priority         int              `json:"priority"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Blocked     bool   `json:"blocked"`
	BlockReason string `json:"block_reason,omitempty"`
	// AppliedRules lists matching rules in priority order, up to and including the blocking one.
	AppliedRules []RuleSummary `json:"applied_rules"`
}

// EvaluationInput is the per-call context handed to every evaluator.
type EvaluationInput struct {
	RecipientID string
	Content     string
	Variables   map[string]any
	Now         time.Time
	Stats       stats.Reader
}

// TimeOfDay is a wall-clock time without date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}

	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on malformed input.
func MustTimeOfDay(s string) *TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return &t
}

// Offset returns the duration since midnight.
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// sinceMidnight returns how far t is into its local day.
func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
