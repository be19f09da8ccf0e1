//go:build integration

// Package store_test contains integration tests for the Data Access Layer.
// We use the '_test' suffix to enforce black-box testing, ensuring we only
// access the exported API of the store package.
package store_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/ruleengine"
	"github.com/rafaeljc/herald/internal/store"
	"github.com/rafaeljc/herald/internal/testsupport"
)

// TestPostgresStore_Integration spins up a real PostgreSQL container once and
// runs scenarios against it.
func TestPostgresStore_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	// Relative path from 'internal/store' to the 'migrations' folder in root.
	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")

	// Ensure resource cleanup even if tests fail
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	var logBuffer bytes.Buffer
	repo := store.NewPostgresStore(pgContainer.DB, slog.New(slog.NewTextHandler(&logBuffer, nil)))
	db := pgContainer.DB

	// 2. Fixtures
	var templateID int64
	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO notification_templates (name, type, subject, content)
		VALUES ('invoice-ready', 'EMAIL', 'Invoice {{number}}', 'Hello {{name}}')
		RETURNING id`).Scan(&templateID))

	_, err = db.Exec(ctx, `
		INSERT INTO notification_templates (name, type, content, is_active)
		VALUES ('retired', 'EMAIL', 'old', FALSE)`)
	require.NoError(t, err)

	insertRule := func(name string, priority int, extra string, args ...any) int64 {
		t.Helper()
		var id int64
		query := `INSERT INTO notification_rules (name, recipient_id, rule_type, notification_type, priority` + extra
		require.NoError(t, db.QueryRow(ctx, query, append([]any{name, priority}, args...)...).Scan(&id))
		return id
	}

	timeRuleID := insertRule("office hours", 10,
		`, start_time, end_time, timezone) VALUES ($1, 'u1', 'TIME_BASED', 'EMAIL', $2, '09:00', '17:30', 'Europe/Lisbon') RETURNING id`)
	_, err = db.Exec(ctx, `INSERT INTO rule_days_of_week (rule_id, day_of_week) VALUES ($1, 5), ($1, 1)`, timeRuleID)
	require.NoError(t, err)

	insertRule("daily cap", 10,
		`, max_notifications_per_day, action_type) VALUES ($1, 'u1', 'FREQUENCY_BASED', 'EMAIL', $2, 3, 'BLOCK') RETURNING id`)

	insertRule("invoice", 5,
		`, conditions, action_config, template_id) VALUES ($1, 'u1', 'CONTENT_BASED', 'EMAIL', $2, '{"requiredKeywords": ["Invoice"]}', '{"subject": "Billing"}', $3) RETURNING id`,
		templateID)

	insertRule("broken", 1,
		`, conditions) VALUES ($1, 'u1', 'CONTENT_BASED', 'EMAIL', $2, '{"blockedKeywords": "spam"}') RETURNING id`)

	insertRule("disabled", 99,
		`, is_active) VALUES ($1, 'u1', 'CONTENT_BASED', 'EMAIL', $2, FALSE) RETURNING id`)

	insertRule("other recipient", 50,
		`) VALUES ($1, 'u2', 'CONTENT_BASED', 'EMAIL', $2) RETURNING id`)

	// 3. Scenarios
	t.Run("Should list active rules by priority with stable ties", func(t *testing.T) {
		rules, err := repo.ListActiveRulesForRecipient(ctx, "u1")
		require.NoError(t, err)

		names := make([]string, 0, len(rules))
		for _, r := range rules {
			names = append(names, r.Name)
		}
		assert.Equal(t, []string{"office hours", "daily cap", "invoice", "broken"}, names)
	})

	t.Run("Should map columns into the rule", func(t *testing.T) {
		rules, err := repo.ListActiveRulesForRecipient(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rules, 4)

		office := rules[0]
		assert.Equal(t, ruleengine.RuleTypeTimeBased, office.Type)
		assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, office.DaysOfWeek)
		assert.Equal(t, &ruleengine.TimeOfDay{Hour: 9}, office.StartTime)
		assert.Equal(t, &ruleengine.TimeOfDay{Hour: 17, Minute: 30}, office.EndTime)
		assert.Equal(t, "Europe/Lisbon", office.Timezone)
		assert.Equal(t, ruleengine.ActionSendNotification, office.ActionType)
		assert.IsType(t, ruleengine.TimeCondition{}, office.Condition)

		capRule := rules[1]
		require.NotNil(t, capRule.MaxNotificationsPerDay)
		assert.Equal(t, 3, *capRule.MaxNotificationsPerDay)
		assert.Nil(t, capRule.MinIntervalMinutes)
		assert.True(t, capRule.IsBlocking())

		invoice := rules[2]
		assert.Equal(t, "invoice-ready", invoice.TemplateName)
		assert.Equal(t, "Billing", invoice.Action.Subject)
		cond, ok := invoice.Condition.(ruleengine.ContentCondition)
		require.True(t, ok)
		assert.Equal(t, []string{"invoice"}, cond.RequiredKeywords)
	})

	t.Run("Should keep malformed rules with their compile error", func(t *testing.T) {
		rules, err := repo.ListActiveRulesForRecipient(ctx, "u1")
		require.NoError(t, err)

		broken := rules[3]
		assert.ErrorIs(t, broken.CompileErr, ruleengine.ErrMalformedRule)
		assert.Contains(t, logBuffer.String(), "rule_id="+broken.ID)
	})

	t.Run("Should return an empty list for unknown recipients", func(t *testing.T) {
		rules, err := repo.ListActiveRulesForRecipient(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, rules)
		assert.Empty(t, rules)
	})

	t.Run("Should load active templates only", func(t *testing.T) {
		tmpl, err := repo.GetTemplate(ctx, "invoice-ready")
		require.NoError(t, err)
		assert.Equal(t, &dispatch.Template{
			Name:    "invoice-ready",
			Type:    ruleengine.NotificationEmail,
			Subject: "Invoice {{number}}",
			Content: "Hello {{name}}",
		}, tmpl)

		_, err = repo.GetTemplate(ctx, "retired")
		assert.ErrorIs(t, err, dispatch.ErrTemplateNotFound)

		_, err = repo.GetTemplate(ctx, "never-existed")
		assert.ErrorIs(t, err, dispatch.ErrTemplateNotFound)
	})
}
