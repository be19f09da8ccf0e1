package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCompileRule_TimeBased(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rule     Rule
		wantErr  string
		wantZone string
		wantDays int
	}{
		{
			name:     "Should default to UTC when timezone is empty",
			rule:     Rule{ID: "r1", Type: RuleTypeTimeBased},
			wantZone: "UTC",
		},
		{
			name: "Should load an IANA zone and collect days",
			rule: Rule{
				ID:         "r2",
				Type:       RuleTypeTimeBased,
				Timezone:   "America/New_York",
				DaysOfWeek: []time.Weekday{time.Monday, time.Friday, time.Monday},
			},
			wantZone: "America/New_York",
			wantDays: 2,
		},
		{
			name:    "Should fail on unknown timezone",
			rule:    Rule{ID: "r3", Type: RuleTypeTimeBased, Timezone: "Mars/Olympus_Mons"},
			wantErr: "invalid timezone",
		},
		{
			name:    "Should fail on out of range weekday",
			rule:    Rule{ID: "r4", Type: RuleTypeTimeBased, DaysOfWeek: []time.Weekday{7}},
			wantErr: "invalid day of week",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := tt.rule
			err := CompileRule(&rule)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedRule)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, err, rule.CompileErr)
				assert.Nil(t, rule.Condition)
				return
			}

			require.NoError(t, err)
			cond, ok := rule.Condition.(TimeCondition)
			require.True(t, ok, "expected TimeCondition, got %T", rule.Condition)
			assert.Equal(t, tt.wantZone, cond.Location.String())
			assert.Len(t, cond.Days, tt.wantDays)
		})
	}
}

func TestCompileRule_FrequencyBased(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:                     "f1",
		RecipientID:            "u1",
		Type:                   RuleTypeFrequencyBased,
		MaxNotificationsPerDay: intPtr(3),
		MinIntervalMinutes:     intPtr(15),
	}
	require.NoError(t, CompileRule(&rule))

	cond, ok := rule.Condition.(FrequencyCondition)
	require.True(t, ok)
	assert.Equal(t, "u1", cond.RecipientID)
	assert.Equal(t, 3, *cond.MaxPerDay)
	assert.Equal(t, 15*time.Minute, *cond.MinInterval)

	negative := Rule{ID: "f2", Type: RuleTypeFrequencyBased, MaxNotificationsPerDay: intPtr(-1)}
	assert.ErrorIs(t, CompileRule(&negative), ErrMalformedRule)

	negativeInterval := Rule{ID: "f3", Type: RuleTypeFrequencyBased, MinIntervalMinutes: intPtr(-5)}
	assert.ErrorIs(t, CompileRule(&negativeInterval), ErrMalformedRule)
}

func TestCompileRule_ContentBased(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		conditions string
		want       ContentCondition
		wantErr    bool
	}{
		{
			name:       "Should treat absent conditions as match-all",
			conditions: "",
			want:       ContentCondition{},
		},
		{
			name:       "Should treat null conditions as match-all",
			conditions: "null",
			want:       ContentCondition{},
		},
		{
			name: "Should lower-case keywords and sort variables",
			conditions: `{
				"maxContentLength": 160,
				"blockedKeywords": ["SPAM", "Casino"],
				"requiredKeywords": ["Invoice"],
				"variableConditions": {
					"tier": {"equals": "gold"},
					"amount": {"notEquals": 0, "minLength": 1}
				}
			}`,
			want: ContentCondition{
				MaxContentLength: intPtr(160),
				BlockedKeywords:  []string{"spam", "casino"},
				RequiredKeywords: []string{"invoice"},
				Variables: []VariableCondition{
					{Name: "amount", NotEquals: strPtr("0"), MinLength: intPtr(1)},
					{Name: "tier", Equals: strPtr("gold")},
				},
			},
		},
		{
			name:       "Should read boolean scalars as text",
			conditions: `{"variableConditions": {"vip": {"equals": true}}}`,
			want: ContentCondition{
				Variables: []VariableCondition{{Name: "vip", Equals: strPtr("true")}},
			},
		},
		{
			name:       "Should fail when blockedKeywords is not a list",
			conditions: `{"blockedKeywords": "spam"}`,
			wantErr:    true,
		},
		{
			name:       "Should fail on object scalar",
			conditions: `{"variableConditions": {"x": {"equals": {"nested": 1}}}}`,
			wantErr:    true,
		},
		{
			name:       "Should fail on negative maxContentLength",
			conditions: `{"maxContentLength": -1}`,
			wantErr:    true,
		},
		{
			name:       "Should fail on malformed JSON",
			conditions: `{"maxContentLength":`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := Rule{ID: "c", Type: RuleTypeContentBased, Conditions: json.RawMessage(tt.conditions)}
			err := CompileRule(&rule)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRule)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.Condition)
		})
	}
}

func TestCompileRule_ContentKeywordLimit(t *testing.T) {
	t.Parallel()

	keywords := make([]string, MaxKeywords+1)
	for i := range keywords {
		keywords[i] = fmt.Sprintf("%q", fmt.Sprintf("kw-%d", i))
	}
	raw := fmt.Sprintf(`{"blockedKeywords": [%s]}`, strings.Join(keywords, ","))

	rule := Rule{ID: "big", Type: RuleTypeContentBased, Conditions: json.RawMessage(raw)}
	err := CompileRule(&rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestCompileRule_Composite(t *testing.T) {
	t.Parallel()

	t.Run("Should default requireAll to true and enable only flagged families", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			ID:                     "cmp",
			RecipientID:            "u1",
			Type:                   RuleTypeComposite,
			MaxNotificationsPerDay: intPtr(2),
			Conditions:             json.RawMessage(`{"contentBased": true, "frequencyBased": false, "blockedKeywords": ["spam"]}`),
		}
		require.NoError(t, CompileRule(&rule))

		cond, ok := rule.Condition.(CompositeCondition)
		require.True(t, ok)
		assert.True(t, cond.RequireAll)
		assert.Nil(t, cond.Time)
		assert.Nil(t, cond.Frequency, "a false flag leaves the family vacuous")
		require.NotNil(t, cond.Content)
		assert.Equal(t, []string{"spam"}, cond.Content.BlockedKeywords)
	})

	t.Run("Should compile no families when conditions are absent", func(t *testing.T) {
		t.Parallel()

		rule := Rule{ID: "empty", Type: RuleTypeComposite}
		require.NoError(t, CompileRule(&rule))
		assert.Equal(t, CompositeCondition{RequireAll: true}, rule.Condition)
	})

	t.Run("Should fail when an enabled family is malformed", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			ID:         "bad-tz",
			Type:       RuleTypeComposite,
			Timezone:   "Not/AZone",
			Conditions: json.RawMessage(`{"timeBased": true, "requireAll": false}`),
		}
		assert.ErrorIs(t, CompileRule(&rule), ErrMalformedRule)
	})

	t.Run("Should ignore a bad timezone when the time family is off", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			ID:         "tz-unused",
			Type:       RuleTypeComposite,
			Timezone:   "Not/AZone",
			Conditions: json.RawMessage(`{"contentBased": true}`),
		}
		assert.NoError(t, CompileRule(&rule))
	})
}

func TestCompileRule_ActionConfig(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:           "a1",
		Type:         RuleTypeContentBased,
		ActionConfig: json.RawMessage(`{"recipient": "ops@example.com", "subject": "Alert", "networkId": 42}`),
	}
	require.NoError(t, CompileRule(&rule))
	assert.Equal(t, ActionConfig{Recipient: "ops@example.com", Subject: "Alert", NetworkID: "42"}, rule.Action)

	bad := Rule{ID: "a2", Type: RuleTypeContentBased, ActionConfig: json.RawMessage(`[1,2]`)}
	assert.ErrorIs(t, CompileRule(&bad), ErrMalformedRule)
}

func TestCompileRule_UnknownTypeIsLeftUncompiled(t *testing.T) {
	t.Parallel()

	rule := Rule{ID: "geo", Type: "GEO_FENCE"}
	require.NoError(t, CompileRule(&rule))
	assert.Nil(t, rule.Condition)
	assert.NoError(t, rule.CompileErr)
}

func TestCompileRules_KeepsGoingAfterFailures(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{ID: "ok", Type: RuleTypeContentBased},
		{ID: "broken", Type: RuleTypeTimeBased, Timezone: "Bad/Zone"},
		{ID: "ok-too", Type: RuleTypeFrequencyBased},
	}

	err := CompileRules(rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.NoError(t, rules[0].CompileErr)
	assert.NotNil(t, rules[0].Condition)
	assert.Error(t, rules[1].CompileErr)
	assert.NoError(t, rules[2].CompileErr)
	assert.NotNil(t, rules[2].Condition)
}

func TestCompileRule_RecompileResetsState(t *testing.T) {
	t.Parallel()

	rule := Rule{ID: "r", Type: RuleTypeTimeBased, Timezone: "Bad/Zone"}
	require.Error(t, CompileRule(&rule))

	rule.Timezone = "Europe/Lisbon"
	require.NoError(t, CompileRule(&rule))
	assert.NoError(t, rule.CompileErr)
	assert.IsType(t, TimeCondition{}, rule.Condition)
}

func TestTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, 9*time.Hour+30*time.Minute, tod.Offset())

	tod, err = ParseTimeOfDay("23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "23:59:59", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	var decoded struct {
		At TimeOfDay `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"17:05"}`), &decoded))
	assert.Equal(t, TimeOfDay{Hour: 17, Minute: 5}, decoded.At)

	out, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"17:05:00"}`, string(out))
}

func strPtr(v string) *string { return &v }
